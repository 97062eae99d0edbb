package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a keyed bulk write into Table.
type UpsertConfig struct {
	Table        string   // optionally schema-qualified, e.g. "public.env_samples"
	Columns      []string // columns of every row, in row order
	ConflictKeys []string // unique key of Table
	UpdateCols   []string // overwritten on conflict; nil means every non-key column

	// ReplaceBy, when set, deletes the rows whose ReplaceBy column equals
	// ReplaceValue inside the same transaction before merging, so the write
	// replaces that slice of Table instead of adding to it.
	ReplaceBy    string
	ReplaceValue any
}

func (c UpsertConfig) validate() error {
	switch {
	case c.Table == "":
		return eris.New("db: upsert: no table specified")
	case len(c.Columns) == 0:
		return eris.New("db: upsert: no columns specified")
	case len(c.ConflictKeys) == 0:
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (c UpsertConfig) updateColumns() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	var out []string
	for _, col := range c.Columns {
		if !slices.Contains(c.ConflictKeys, col) {
			out = append(out, col)
		}
	}
	return out
}

// stagingTable is the per-transaction temp table rows are copied into.
func (c UpsertConfig) stagingTable() string {
	return "_tmp_upsert_" + strings.ReplaceAll(c.Table, ".", "_")
}

func (c UpsertConfig) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", tableIdent(c.Table), pgx.Identifier{c.ReplaceBy}.Sanitize())
}

// insertSQL moves the staged rows into the target table. Rows whose key
// already exists are overwritten, or left alone when there is nothing to
// update.
func (c UpsertConfig) insertSQL() string {
	cols := identList(c.Columns)
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) ",
		tableIdent(c.Table), cols, cols, pgx.Identifier{c.stagingTable()}.Sanitize(), identList(c.ConflictKeys))

	update := c.updateColumns()
	if len(update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	sets := make([]string, len(update))
	for i, col := range update {
		id := pgx.Identifier{col}.Sanitize()
		sets[i] = id + " = EXCLUDED." + id
	}
	b.WriteString("DO UPDATE SET " + strings.Join(sets, ", "))
	return b.String()
}

// BulkUpsert stages rows in a temp table with COPY and merges them into the
// target with INSERT ... ON CONFLICT, all in one transaction. It returns the
// number of rows inserted or updated. With ReplaceBy set an empty rows slice
// still clears the slice.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 && cfg.ReplaceBy == "" {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if cfg.ReplaceBy != "" {
		if _, err := tx.Exec(ctx, cfg.deleteSQL(), cfg.ReplaceValue); err != nil {
			return 0, eris.Wrapf(err, "db: upsert: clear %s", cfg.Table)
		}
	}

	var n int64
	if len(rows) > 0 {
		staging := pgx.Identifier{cfg.stagingTable()}
		create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			staging.Sanitize(), tableIdent(cfg.Table))
		if _, err := tx.Exec(ctx, create); err != nil {
			return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", cfg.Table)
		}
		if _, err := tx.CopyFrom(ctx, staging, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
			return 0, eris.Wrapf(err, "db: upsert: copy into staging table for %s", cfg.Table)
		}

		tag, err := tx.Exec(ctx, cfg.insertSQL())
		if err != nil {
			return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
		}
		n = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return n, nil
}

// tableIdent quotes a table name, keeping an optional schema prefix.
func tableIdent(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}

func identList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
