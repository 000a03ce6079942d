package match

import (
	"context"
	"strings"

	"meshnerd/internal/logging"
	"meshnerd/internal/semantic"
	"meshnerd/internal/workflow"
)

// ExtractModifiers merges a workflow's declared defaults with every
// modifier whose phrase the prompt triggers. Phrase matching is
// case-insensitive substring containment, upgraded to oracle similarity
// (>= threshold) when an oracle is available; if the oracle cannot
// answer for a phrase, the substring check stands alone. Modifiers are
// applied in declaration order, so later-declared keys win conflicts.
func ExtractModifiers(ctx context.Context, prompt string, def *workflow.WorkflowDefinition, oracle *semantic.Oracle, threshold float64) map[string]interface{} {
	merged := make(map[string]interface{}, len(def.Defaults))
	for k, v := range def.Defaults {
		merged[k] = v
	}

	promptLower := strings.ToLower(prompt)
	for _, mod := range def.Modifiers {
		if !modifierTriggered(ctx, promptLower, prompt, mod.Phrase, oracle, threshold) {
			continue
		}
		logging.ModifiersDebug("Modifier triggered: %q (%d overrides)", mod.Phrase, len(mod.Overrides))
		for k, v := range mod.Overrides {
			merged[k] = v
		}
	}
	return merged
}

func modifierTriggered(ctx context.Context, promptLower, prompt, phrase string, oracle *semantic.Oracle, threshold float64) bool {
	if phrase == "" {
		return false
	}
	if strings.Contains(promptLower, strings.ToLower(phrase)) {
		return true
	}
	if oracle == nil || !oracle.Available() {
		return false
	}
	sim, err := oracle.Similarity(ctx, phrase, prompt)
	if err != nil {
		logging.ModifiersDebug("Modifier similarity failed for %q: %v (substring only)", phrase, err)
		return false
	}
	return sim >= threshold
}
