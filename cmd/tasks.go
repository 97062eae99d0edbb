package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sells-group/envprep/internal/backend"
	"github.com/sells-group/envprep/internal/task"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and control export tasks",
	Long:  "Commands for listing, inspecting, cancelling and waiting on export tasks of the configured backend.",
}

// -- tasks list --

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List export tasks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		statusFlag, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		status, err := task.ParseStatus(statusFlag)
		if err != nil {
			return err
		}

		b, cleanup, err := initBackend(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		tasks, err := b.List(ctx, task.Filter{Status: status, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "tasks list")
		}
		if len(tasks) == 0 {
			fmt.Fprintln(os.Stderr, "No tasks found.")
			return nil
		}

		formatTaskList(os.Stdout, tasks)
		return nil
	},
}

// -- tasks status --

var tasksStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		b, cleanup, err := initBackend(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		t, err := b.Status(ctx, args[0])
		if err != nil {
			return err
		}
		formatTask(os.Stdout, t)
		return nil
	},
}

// -- tasks cancel --

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a queued or running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		b, cleanup, err := initBackend(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := b.Cancel(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Cancellation requested for %s\n", args[0])
		return nil
	},
}

// -- tasks wait --

var tasksWaitCmd = &cobra.Command{
	Use:   "wait <task-id>",
	Short: "Wait until a task completes, fails or is cancelled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		quiet, _ := cmd.Flags().GetBool("quiet")
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		b, cleanup, err := initBackend(ctx, false)
		if err != nil {
			return err
		}
		defer cleanup()

		t, err := waitTask(ctx, b, args[0], pollInterval(), quiet)
		if t != nil {
			formatTask(os.Stdout, t)
		}
		return err
	},
}

// waitTask polls until the task ends, showing a spinner with its status.
func waitTask(ctx context.Context, b backend.Backend, id string, interval time.Duration, quiet bool) (*task.Task, error) {
	opts := []backend.PollOption{backend.WithPollInterval(interval)}
	if !quiet {
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("task "+id),
			progressbar.OptionSpinnerType(14),
		)
		defer bar.Finish() //nolint:errcheck
		opts = append(opts, backend.OnPoll(func(t *task.Task) {
			bar.Describe(fmt.Sprintf("task %s: %s", id, t.Status))
			_ = bar.Add(1)
		}))
	}
	return backend.Wait(ctx, b, id, opts...)
}

func formatTaskList(w io.Writer, tasks []task.Task) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDESCRIPTION\tSTATUS\tROWS\tUPDATED\tERROR")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.Description, t.Status, t.Rows,
			t.UpdatedAt.Format(time.RFC3339), truncate(t.Error, 60),
		)
	}
	tw.Flush() //nolint:errcheck
}

func formatTask(w io.Writer, t *task.Task) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", t.ID)
	fmt.Fprintf(tw, "Description:\t%s\n", t.Description)
	fmt.Fprintf(tw, "Status:\t%s\n", t.Status)
	fmt.Fprintf(tw, "Rows:\t%d\n", t.Rows)
	if t.ArtifactURI != "" {
		fmt.Fprintf(tw, "Artifact:\t%s\n", t.ArtifactURI)
	}
	if t.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", t.Error)
	}
	fmt.Fprintf(tw, "Fingerprint:\t%s\n", t.Fingerprint)
	fmt.Fprintf(tw, "Created:\t%s\n", t.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Updated:\t%s\n", t.UpdatedAt.Format(time.RFC3339))
	tw.Flush() //nolint:errcheck
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	tasksListCmd.Flags().String("status", "", "filter by status (queued, running, completed, failed, cancelled)")
	tasksListCmd.Flags().Int("limit", 50, "maximum number of tasks")
	tasksWaitCmd.Flags().Duration("timeout", 0, "give up after this long (0 waits forever)")
	tasksWaitCmd.Flags().Bool("quiet", false, "disable the spinner")

	tasksCmd.AddCommand(tasksListCmd, tasksStatusCmd, tasksCancelCmd, tasksWaitCmd)
	rootCmd.AddCommand(tasksCmd)
}
