package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meshnerd/internal/engine"
	"meshnerd/internal/expand"
	"meshnerd/internal/workflow"
)

var (
	expandParams  []string
	expandContext []string
	expandLevel   string
	expandLimit   int
)

// expandCmd expands a named workflow directly, bypassing matching.
var expandCmd = &cobra.Command{
	Use:   "expand [workflow]",
	Short: "Expand a workflow into its concrete action list",
	Long: `Expands a named workflow template: merges defaults with the given
parameters, resolves $CALCULATE and $AUTO_* macros, unrolls loops,
filters conditional steps against the simulated scene state, and prints
the resulting action list.

Example:
  meshnerd expand gear --param teeth=12
  meshnerd expand phone_case --level MEDIUM --context current_mode=OBJECT`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

// runFullCmd matches a prompt and expands the winner in one shot.
var runFullCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Match a prompt and expand the winning workflow",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFull,
}

func init() {
	expandCmd.Flags().StringArrayVar(&expandParams, "param", nil, "parameter override as key=value (repeatable)")
	expandCmd.Flags().StringArrayVar(&expandContext, "context", nil, "context entries as key=value (repeatable)")
	expandCmd.Flags().StringVar(&expandLevel, "level", "", "confidence level for adaptation (HIGH, MEDIUM, LOW)")
	expandCmd.Flags().IntVar(&expandLimit, "limit", 0, "override the expansion step ceiling")
	runFullCmd.Flags().StringArrayVar(&expandContext, "context", nil, "context entries as key=value (repeatable)")
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(runFullCmd)
}

func runExpand(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	params := make(map[string]interface{}, len(expandParams))
	for _, entry := range expandParams {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return fmt.Errorf("invalid parameter %q (want key=value)", entry)
		}
		params[key] = coerceFlagValue(value)
	}

	mctx, err := parseMatchContext(expandContext)
	if err != nil {
		return err
	}

	level := workflow.ConfidenceLevel(strings.ToUpper(expandLevel))
	logger.Info("Expanding workflow", zap.String("workflow", name), zap.String("level", string(level)))

	actions, err := eng.ExpandWorkflow(ctx, name, expand.Options{
		Params:  params,
		Context: mctx,
		Level:   level,
		Limit:   expandLimit,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(actions)
	}
	printActions(actions)
	return nil
}

func runFull(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	ctx := cmd.Context()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	mctx, err := parseMatchContext(expandContext)
	if err != nil {
		return err
	}

	decision, err := eng.Process(ctx, prompt, mctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(decision)
	}
	printMatch(decision.Match)
	if len(decision.Actions) > 0 {
		fmt.Println()
		printActions(decision.Actions)
	}
	return nil
}

func printActions(actions []expand.Action) {
	if len(actions) == 0 {
		fmt.Println("No actions")
		return
	}
	fmt.Printf("%d actions:\n", len(actions))
	for i, a := range actions {
		if len(a.Params) > 0 {
			params, _ := json.Marshal(a.Params)
			fmt.Printf("  %2d. %s %s\n", i+1, a.Tool, params)
		} else {
			fmt.Printf("  %2d. %s\n", i+1, a.Tool)
		}
	}
}
