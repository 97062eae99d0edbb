package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/envprep/internal/catalog"
	"github.com/sells-group/envprep/internal/config"
	"github.com/sells-group/envprep/internal/period"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the local scene catalog",
}

// collectionSummary is what the catalog resolves for one configured dataset.
type collectionSummary struct {
	Collection string
	Band       string
	Scenes     int
	First      string
	Last       string
	Err        error
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show which scenes each configured dataset resolves to",
	Long:  "Dry-runs the dataset loader: for every configured dataset, lists how many catalog scenes fall in the configured date range.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := catalog.OpenDir(cfg.Catalog.Dir)
		if err != nil {
			return err
		}
		dates, err := period.ParseDateRange(cfg.Study.StartDate, cfg.Study.EndDate)
		if err != nil {
			return err
		}

		datasets := cfg.Datasets
		if len(datasets) == 0 {
			datasets = config.DefaultDatasets()
		}
		formatCatalogSummary(os.Stdout, summarizeCatalog(cmd.Context(), dir, datasets, dates))
		return nil
	},
}

func summarizeCatalog(ctx context.Context, cat catalog.Catalog, datasets []config.DatasetConfig, dates period.DateRange) []collectionSummary {
	out := make([]collectionSummary, 0, len(datasets))
	for _, d := range datasets {
		s := collectionSummary{Collection: d.Collection, Band: d.Band}
		refs, err := cat.Find(ctx, catalog.Query{Collection: d.Collection, Band: d.Band, Dates: dates})
		if err != nil {
			s.Err = err
			out = append(out, s)
			continue
		}
		// refs are ordered by date
		s.Scenes = len(refs)
		if len(refs) > 0 {
			s.First = refs[0].Date.Format(period.DateLayout)
			s.Last = refs[len(refs)-1].Date.Format(period.DateLayout)
		}
		out = append(out, s)
	}
	return out
}

func formatCatalogSummary(w io.Writer, rows []collectionSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tBAND\tSCENES\tFIRST\tLAST")
	for _, r := range rows {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\terror: %v\t\t\n", r.Collection, r.Band, r.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.Collection, r.Band, r.Scenes, r.First, r.Last)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}
