package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meshnerd/internal/workflow"
)

// catalogCmd groups catalog inspection subcommands.
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the workflow catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workflows in the catalog directory",
	RunE:  runCatalogList,
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate workflow definitions without loading them",
	Long: `Parses and validates every YAML file in the given directory (or the
configured catalog directory) and reports the first structural problem
found. Exits non-zero on invalid definitions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalogValidate,
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	defs, err := workflow.LoadDirectory(cfg.GetCatalogDir())
	if err != nil {
		return err
	}

	if jsonOutput {
		type row struct {
			Name        string `json:"name"`
			Description string `json:"description,omitempty"`
			Steps       int    `json:"steps"`
			Optional    bool   `json:"has_optional_steps"`
		}
		rows := make([]row, len(defs))
		for i, d := range defs {
			rows[i] = row{Name: d.Name, Description: d.Description, Steps: len(d.Steps), Optional: d.HasOptionalSteps()}
		}
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	if len(defs) == 0 {
		fmt.Println("No workflows found in", cfg.GetCatalogDir())
		return nil
	}
	for _, d := range defs {
		fmt.Printf("%-24s %2d steps  %s\n", d.Name, len(d.Steps), d.Description)
	}
	return nil
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	dir := cfg.GetCatalogDir()
	if len(args) == 1 {
		dir = args[0]
	}

	defs, err := workflow.LoadDirectory(dir)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("OK: %d workflows valid in %s\n", len(defs), dir)
	return nil
}
