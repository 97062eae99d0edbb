package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, st Store, id string, want Status) *Task {
	t.Helper()
	var got *Task
	require.Eventually(t, func() bool {
		tk, err := st.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = tk
		return tk.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestRunner_Completes(t *testing.T) {
	st := newTestSQLiteStore(t)
	r := NewRunner(st)

	tk, err := r.Submit(context.Background(), "fp", "desc", func(ctx context.Context) (Outcome, error) {
		return Outcome{Rows: 504, ArtifactURI: "/out/desc.csv"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, tk.Status)

	r.Wait()
	got := waitFor(t, st, tk.ID, StatusCompleted)
	assert.Equal(t, 504, got.Rows)
	assert.Equal(t, "/out/desc.csv", got.ArtifactURI)
	assert.Equal(t, 0, r.Active())
}

func TestRunner_Fails(t *testing.T) {
	st := newTestSQLiteStore(t)
	r := NewRunner(st)

	tk, err := r.Submit(context.Background(), "fp", "desc", func(ctx context.Context) (Outcome, error) {
		return Outcome{}, errors.New(`catalog: unknown collection: "MODIS/999"`)
	})
	require.NoError(t, err)

	r.Wait()
	got := waitFor(t, st, tk.ID, StatusFailed)
	assert.Contains(t, got.Error, "MODIS/999")
}

func TestRunner_Panics(t *testing.T) {
	st := newTestSQLiteStore(t)
	r := NewRunner(st)

	tk, err := r.Submit(context.Background(), "fp", "desc", func(ctx context.Context) (Outcome, error) {
		panic("boom")
	})
	require.NoError(t, err)

	r.Wait()
	got := waitFor(t, st, tk.ID, StatusFailed)
	assert.Contains(t, got.Error, "panicked: boom")
}

func TestRunner_SubmitOutlivesRequestContext(t *testing.T) {
	st := newTestSQLiteStore(t)
	r := NewRunner(st)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	tk, err := r.Submit(ctx, "fp", "desc", func(ctx context.Context) (Outcome, error) {
		<-release
		return Outcome{Rows: 1}, ctx.Err()
	})
	require.NoError(t, err)
	cancel()
	close(release)

	r.Wait()
	waitFor(t, st, tk.ID, StatusCompleted)
}

func TestRunner_Cancel(t *testing.T) {
	st := newTestSQLiteStore(t)
	r := NewRunner(st)

	started := make(chan struct{})
	tk, err := r.Submit(context.Background(), "fp", "desc", func(ctx context.Context) (Outcome, error) {
		close(started)
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, r.Cancel(context.Background(), tk.ID))
	r.Wait()

	got := waitFor(t, st, tk.ID, StatusCancelled)
	assert.Equal(t, "cancelled", got.Error)
}

func TestRunner_CancelFinished(t *testing.T) {
	st := newTestSQLiteStore(t)
	r := NewRunner(st)

	tk, err := r.Submit(context.Background(), "fp", "desc", func(ctx context.Context) (Outcome, error) {
		return Outcome{}, nil
	})
	require.NoError(t, err)
	r.Wait()
	waitFor(t, st, tk.ID, StatusCompleted)

	err = r.Cancel(context.Background(), tk.ID)
	assert.True(t, errors.Is(err, ErrFinished))
}

func TestRunner_CancelOrphan(t *testing.T) {
	st := newTestSQLiteStore(t)
	r := NewRunner(st)
	ctx := context.Background()

	tk, err := st.Create(ctx, "fp", "desc")
	require.NoError(t, err)

	require.NoError(t, r.Cancel(ctx, tk.ID))
	got, err := st.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestRunner_CancelUnknown(t *testing.T) {
	r := NewRunner(newTestSQLiteStore(t))
	err := r.Cancel(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRunner_Shutdown(t *testing.T) {
	st := newTestSQLiteStore(t)
	r := NewRunner(st)

	started := make(chan struct{})
	tk, err := r.Submit(context.Background(), "fp", "desc", func(ctx context.Context) (Outcome, error) {
		close(started)
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	})
	require.NoError(t, err)

	<-started
	assert.Equal(t, 1, r.Active())
	r.Shutdown()
	assert.Equal(t, 0, r.Active())
	waitFor(t, st, tk.ID, StatusCancelled)
}
