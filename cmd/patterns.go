package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SamoraDC/Tetrad/internal/models"
	"github.com/SamoraDC/Tetrad/internal/reasoning"
	"github.com/SamoraDC/Tetrad/internal/store"
)

var (
	patternsType     string
	patternsLanguage string
	patternsCategory string
	patternsLimit    int
	distillJSON      bool
	exportFormat     string
)

var patternsCmd = &cobra.Command{
	Use:     "patterns",
	Aliases: []string{"p"},
	Short:   "Inspect and maintain learned patterns",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		return patternsListRun(cmd)
	},
}

var patternsDistillCmd = &cobra.Command{
	Use:   "distill",
	Short: "Summarize what has been learned",
	RunE: func(cmd *cobra.Command, args []string) error {
		return patternsDistillRun(cmd)
	},
}

var patternsConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge near-duplicate patterns, prune weak ones and protect reliable ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return patternsConsolidateRun(cmd)
	},
}

var patternsExportCmd = &cobra.Command{
	Use:   "export <file|->",
	Short: "Export patterns and a knowledge summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return patternsExportRun(cmd, args[0])
	},
}

var patternsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import patterns, merging into existing ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return patternsImportRun(cmd, args[0])
	},
}

func init() {
	patternsListCmd.Flags().StringVar(&patternsType, "type", "", "Filter by type: anti_pattern, good_pattern, ambiguous")
	patternsListCmd.Flags().StringVar(&patternsLanguage, "language", "", "Filter by language")
	patternsListCmd.Flags().StringVar(&patternsCategory, "category", "", "Filter by issue category")
	patternsListCmd.Flags().IntVar(&patternsLimit, "limit", 50, "Maximum patterns to show (0 for all)")
	patternsDistillCmd.Flags().BoolVar(&distillJSON, "json", false, "Print the report as JSON")
	patternsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "json or yaml (default from file extension, else json)")

	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsDistillCmd)
	patternsCmd.AddCommand(patternsConsolidateCmd)
	patternsCmd.AddCommand(patternsExportCmd)
	patternsCmd.AddCommand(patternsImportCmd)
	rootCmd.AddCommand(patternsCmd)
}

func patternsListRun(cmd *cobra.Command) error {
	filter := store.PatternFilter{
		Type:     models.PatternType(patternsType),
		Language: patternsLanguage,
		Category: patternsCategory,
		Limit:    patternsLimit,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("unknown pattern type %q", patternsType)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	patterns, err := s.ListPatterns(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return ui.Patterns(patterns)
}

func patternsDistillRun(cmd *cobra.Command) error {
	bank, err := getBank()
	if err != nil {
		return err
	}
	k, err := bank.Distill(cmd.Context())
	if err != nil {
		return err
	}
	if distillJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(k)
	}
	return ui.Knowledge(k)
}

func patternsConsolidateRun(cmd *cobra.Command) error {
	if dryRun {
		ui.DryRunMsg("Would consolidate the pattern store at %s", viper.GetString("reasoning.db_path"))
		return nil
	}
	bank, err := getBank()
	if err != nil {
		return err
	}
	summary, err := bank.Consolidate(cmd.Context())
	if err != nil {
		return err
	}
	ui.Success("Consolidated: %d merged, %d pruned, %d reinforced, %d recalculated",
		summary.Merged, summary.Pruned, summary.Reinforced, summary.Recalculated)
	return nil
}

// formatFor picks the export format from the flag, then the file extension.
func formatFor(flag, path string) (reasoning.Format, error) {
	if flag != "" {
		return reasoning.ParseFormat(flag)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return reasoning.FormatYAML, nil
	}
	return reasoning.FormatJSON, nil
}

func patternsExportRun(cmd *cobra.Command, path string) error {
	format, err := formatFor(exportFormat, path)
	if err != nil {
		return err
	}
	bank, err := getBank()
	if err != nil {
		return err
	}

	if path == "-" {
		_, err := bank.Export(cmd.Context(), ui.Out, format)
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would export patterns to %s as %s", path, format)
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	doc, err := bank.Export(cmd.Context(), f, format)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	ui.Success("Exported %d patterns to %s", len(doc.Patterns), path)
	return nil
}

func patternsImportRun(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if dryRun {
		doc, err := reasoning.DecodeExport(f)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would import %d patterns from %s", len(doc.Patterns), path)
		return nil
	}

	bank, err := getBank()
	if err != nil {
		return err
	}
	summary, err := bank.Import(cmd.Context(), f)
	if err != nil {
		return err
	}
	ui.Success("Imported %d new patterns, merged %d", summary.Imported, summary.Merged)
	return nil
}
