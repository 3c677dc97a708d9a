package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SamoraDC/Tetrad/internal/output"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show evaluator availability, consensus settings, cache and pattern store state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun(cmd)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func statusRun(cmd *cobra.Command) error {
	o, err := getOrchestrator(nil)
	if err != nil {
		return err
	}
	st := o.Status(cmd.Context())

	if statusJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(ui.Out, "Rule: %s  Min score: %d  Max loops: %d\n\n", output.Cyan(st.Rule), st.MinScore, st.MaxLoops)

	table := ui.Table([]string{"EVALUATOR", "AVAILABLE", "FOCUS"})
	for _, e := range st.Evaluators {
		available := output.Red("no")
		if e.Available {
			available = output.Green("yes")
		}
		if err := table.Append([]string{e.Name, available, e.Specialization}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(ui.Out)

	if !st.Quorum {
		ui.Warning("No evaluator is available; every evaluation will BLOCK. Set ANTHROPIC_API_KEY or anthropic.api_key.")
	}

	if st.CacheEnabled {
		ui.Info("Cache: %d/%d entries, %d hits, %d misses", st.Cache.Size, st.Cache.Capacity, st.Cache.Hits, st.Cache.Misses)
	} else {
		ui.Info("Cache: disabled")
	}

	switch {
	case !st.ReasoningEnabled:
		ui.Info("Reasoning: disabled")
	case st.StoreError != "":
		ui.Error("Pattern store: %s", st.StoreError)
	default:
		ui.Info("Patterns: %d  Trajectories: %d  Avg loops to consensus: %.2f", st.Patterns, st.Trajectories, st.AvgLoops)
	}
	return nil
}
