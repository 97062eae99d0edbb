package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/envprep/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the request graph without submitting it",
	Long:  "Builds the plan from config (or --plan), validates it and prints it as a graph, YAML or JSON. Use --out to save it for a later export.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		in, _ := cmd.Flags().GetString("plan")
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		p, err := loadPlan(ctx, in)
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}

		if out != "" {
			if err := plan.WriteFile(p, out); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Plan written to %s\n", out)
		}

		data, err := renderPlan(p, format)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func renderPlan(p plan.Plan, format string) ([]byte, error) {
	switch format {
	case "graph":
		return []byte(strings.Join(p.Graph(), "\n") + "\n"), nil
	case "yaml":
		return p.ToYAML()
	case "json":
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "plan: encode json")
		}
		return append(data, '\n'), nil
	default:
		return nil, eris.Errorf("unknown plan format %q (want graph, yaml or json)", format)
	}
}

func init() {
	planCmd.Flags().String("plan", "", "read the plan from a .json/.yaml file instead of config")
	planCmd.Flags().String("format", "graph", "output format: graph, yaml or json")
	planCmd.Flags().String("out", "", "also write the plan to this .json/.yaml file")
	rootCmd.AddCommand(planCmd)
}
