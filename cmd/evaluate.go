package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/SamoraDC/Tetrad/internal/models"
)

var (
	evalLanguage string
	evalKind     string
	evalContext  string
	evalLoop     int
	evalJSON     bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <file|->",
	Short: "Evaluate a plan, code or tests",
	Long: `Send a submission to every configured evaluator and print the consensus
decision. Use "-" to read from stdin.

The exit status is 0 for PASS, 1 on error, 2 for REVISE and 3 for BLOCK.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return evaluateRun(cmd, args[0])
	},
}

func init() {
	evaluateCmd.Flags().StringVarP(&evalLanguage, "language", "l", "", "Programming language (detected when omitted)")
	evaluateCmd.Flags().StringVarP(&evalKind, "kind", "k", string(models.KindCode), "What is being evaluated: plan, code, tests, final_check")
	evaluateCmd.Flags().StringVar(&evalContext, "context", "", "What the submission is meant to do")
	evaluateCmd.Flags().IntVar(&evalLoop, "loop", 1, "Refinement loop number")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(evaluateCmd)
}

func readSubmission(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func evaluateRun(cmd *cobra.Command, path string) error {
	code, err := readSubmission(cmd, path)
	if err != nil {
		return err
	}

	o, err := getOrchestrator(nil)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would send %d bytes to %d evaluators", len(code), len(o.Status(cmd.Context()).Evaluators))
		return nil
	}

	result, err := o.Evaluate(cmd.Context(), &models.EvaluationRequest{
		Code:     code,
		Language: evalLanguage,
		Kind:     models.Kind(evalKind),
		Context:  evalContext,
		Loop:     evalLoop,
	})
	if err != nil {
		return err
	}

	if evalJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		if err := ui.Result(result, o.Config().MinScore); err != nil {
			return err
		}
		if ui.Verbose && result.Feedback != "" {
			fmt.Fprintf(ui.Out, "\n%s\n", result.Feedback)
		}
	}

	closeDeps()
	switch result.Decision {
	case models.DecisionRevise:
		os.Exit(2)
	case models.DecisionBlock:
		os.Exit(3)
	}
	return nil
}
