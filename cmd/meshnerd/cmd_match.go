package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meshnerd/internal/engine"
	"meshnerd/internal/workflow"
)

var (
	matchContext []string
	matchRecord  bool
)

// matchCmd matches a prompt without expanding the winner.
var matchCmd = &cobra.Command{
	Use:   "match [prompt]",
	Short: "Match a prompt against the workflow catalog",
	Long: `Runs the matching ensemble over the prompt and prints the winning
workflow, its score and confidence level, per-matcher contributions,
and any extracted modifier overrides. Nothing is expanded.

Example:
  meshnerd match "make me a thick phone case"
  meshnerd match --context current_mode=EDIT "add a gear"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().StringArrayVar(&matchContext, "context", nil, "context entries as key=value (repeatable)")
	matchCmd.Flags().BoolVar(&matchRecord, "record", false, "record the match in the learned pattern store")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	ctx := cmd.Context()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	mctx, err := parseMatchContext(matchContext)
	if err != nil {
		return err
	}

	logger.Info("Matching prompt", zap.String("prompt", prompt))
	result := eng.Decide(ctx, prompt, mctx)

	if matchRecord && result.Matched() {
		if err := eng.RecordUsage(ctx, prompt, result.Workflow, result.Score); err != nil {
			logger.Warn("Failed to record usage", zap.Error(err))
		}
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(result)
	}
	printMatch(result)
	return nil
}

func printMatch(result workflow.EnsembleResult) {
	if !result.Matched() {
		fmt.Println("No workflow matched (confidence NONE)")
		return
	}

	fmt.Printf("Workflow:   %s\n", result.Workflow)
	fmt.Printf("Score:      %.3f\n", result.Score)
	fmt.Printf("Confidence: %s\n", result.Level)
	if result.CompositionMode {
		fmt.Printf("Composition candidates: %s\n", strings.Join(result.Secondary, ", "))
	}
	if result.AdaptationRequired {
		fmt.Println("Adaptation: optional steps will be filtered on expansion")
	}

	if len(result.Contributions) > 0 {
		names := make([]string, 0, len(result.Contributions))
		for name := range result.Contributions {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("Contributions:")
		for _, name := range names {
			fmt.Printf("  %-10s %.3f\n", name, result.Contributions[name])
		}
	}

	if len(result.Modifiers) > 0 {
		fmt.Println("Modifiers:")
		keys := make([]string, 0, len(result.Modifiers))
		for k := range result.Modifiers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %v\n", k, result.Modifiers[k])
		}
	}
}

// parseMatchContext turns key=value flags into a match context. Values
// parse as bool or number when they look like one, else stay strings.
func parseMatchContext(entries []string) (workflow.MatchContext, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	mctx := make(workflow.MatchContext, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid context entry %q (want key=value)", entry)
		}
		mctx[key] = coerceFlagValue(value)
	}
	return mctx, nil
}

func coerceFlagValue(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err == nil && fmt.Sprintf("%g", f) == s {
		return f
	}
	return s
}
