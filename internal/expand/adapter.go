package expand

import (
	"context"
	"strings"

	"meshnerd/internal/logging"
	"meshnerd/internal/semantic"
	"meshnerd/internal/workflow"
)

// DefaultAdaptationThreshold gates description similarity for MEDIUM
// confidence optional-step inclusion.
const DefaultAdaptationThreshold = 0.6

// Adapter filters a workflow's optional steps by match confidence. It
// is a pure function of (definition, level, prompt); the oracle only
// refines MEDIUM-level relevance judgments.
type Adapter struct {
	oracle    *semantic.Oracle
	threshold float64
}

// NewAdapter builds an adapter. oracle may be nil; relevance then falls
// back to tag substring matching alone.
func NewAdapter(oracle *semantic.Oracle, threshold float64) *Adapter {
	if threshold <= 0 {
		threshold = DefaultAdaptationThreshold
	}
	return &Adapter{oracle: oracle, threshold: threshold}
}

// Adapt selects which steps survive at the given confidence level:
//
//   - HIGH: every step, strategy FULL.
//   - MEDIUM: core steps plus optional steps judged relevant to the
//     prompt, strategy FILTERED.
//   - LOW/NONE: only non-optional steps, strategy CORE_ONLY.
//
// A workflow with no optional steps passes through unchanged at every
// level.
func (a *Adapter) Adapt(ctx context.Context, def *workflow.WorkflowDefinition, level workflow.ConfidenceLevel, prompt string) workflow.AdaptationResult {
	timer := logging.StartTimer(logging.CategoryAdaptation, "Adapter.Adapt")
	defer timer.Stop()

	result := workflow.AdaptationResult{
		OriginalCount: len(def.Steps),
		Level:         level,
	}

	switch level {
	case workflow.ConfidenceHigh:
		result.Strategy = workflow.AdaptFull
		result.Steps = append(result.Steps, def.Steps...)

	case workflow.ConfidenceMedium:
		result.Strategy = workflow.AdaptFiltered
		for _, step := range def.Steps {
			if !step.Optional {
				result.Steps = append(result.Steps, step)
				continue
			}
			if a.relevant(ctx, step, prompt) {
				result.Steps = append(result.Steps, step)
				result.IncludedOptional = append(result.IncludedOptional, stepLabel(step))
			} else {
				result.SkippedOptional = append(result.SkippedOptional, stepLabel(step))
			}
		}

	default: // LOW and NONE
		result.Strategy = workflow.AdaptCoreOnly
		for _, step := range def.Steps {
			if step.Optional {
				result.SkippedOptional = append(result.SkippedOptional, stepLabel(step))
				continue
			}
			result.Steps = append(result.Steps, step)
		}
	}

	result.AdaptedCount = len(result.Steps)
	logging.Adaptation("Adapted %s at %s: %d/%d steps (%s), skipped %d optional",
		def.Name, level, result.AdaptedCount, result.OriginalCount, result.Strategy, len(result.SkippedOptional))
	return result
}

// relevant decides whether a MEDIUM-confidence optional step belongs in
// the adapted workflow: any semantic tag contained in the prompt wins;
// failing that, description similarity through the oracle.
func (a *Adapter) relevant(ctx context.Context, step workflow.WorkflowStep, prompt string) bool {
	promptLower := strings.ToLower(prompt)
	for _, tag := range step.Tags {
		if tag != "" && strings.Contains(promptLower, strings.ToLower(tag)) {
			logging.AdaptationDebug("Optional step %s relevant via tag %q", step.Tool, tag)
			return true
		}
	}

	if a.oracle == nil || !a.oracle.Available() || step.Description == "" {
		return false
	}
	sim, err := a.oracle.Similarity(ctx, prompt, step.Description)
	if err != nil {
		logging.AdaptationDebug("Description similarity failed for %s: %v", step.Tool, err)
		return false
	}
	if sim >= a.threshold {
		logging.AdaptationDebug("Optional step %s relevant via description similarity %.3f", step.Tool, sim)
		return true
	}
	return false
}

func stepLabel(step workflow.WorkflowStep) string {
	if step.Description != "" {
		return step.Description
	}
	return step.Tool
}
