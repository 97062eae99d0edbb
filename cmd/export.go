package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/envprep/internal/engine"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Submit the plan and export the sample table",
	Long: `Submits the plan to the configured backend and prints the task id.
The local backend runs the task in this process, so export waits for it to
finish. With the remote backend, export returns at once unless --wait is set.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		planFile, _ := cmd.Flags().GetString("plan")
		wait, _ := cmd.Flags().GetBool("wait")
		quiet, _ := cmd.Flags().GetBool("quiet")

		if planFile == "" {
			if err := cfg.Validate("export"); err != nil {
				return err
			}
		}
		p, err := loadPlan(ctx, planFile)
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}

		var opts []engine.Option
		if !quiet {
			opts = append(opts, compositeProgress())
		}
		b, cleanup, err := initBackend(ctx, true, opts...)
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := b.Submit(ctx, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Submitted task %s (%s)\n", id, p.ArtifactName())

		if cfg.Backend.Kind == "remote" && !wait {
			fmt.Println(id)
			return nil
		}

		t, err := waitTask(ctx, b, id, pollInterval(), quiet)
		if t != nil {
			formatTask(os.Stdout, t)
		}
		return err
	},
}

func pollInterval() time.Duration {
	if cfg.Backend.Kind != "remote" {
		return 200 * time.Millisecond
	}
	return time.Duration(cfg.Remote.PollIntervalMs) * time.Millisecond
}

func init() {
	exportCmd.Flags().String("plan", "", "submit a saved .json/.yaml plan instead of building one from config")
	exportCmd.Flags().Bool("wait", false, "wait for a remote task to finish")
	exportCmd.Flags().Bool("quiet", false, "disable progress output")
	rootCmd.AddCommand(exportCmd)
}
