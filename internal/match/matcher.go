// Package match turns a free-text prompt into a workflow decision. Three
// independent matchers (keyword, semantic, pattern) each vote with a
// confidence, and the ensemble aggregates the votes into one ranked
// result with confidence leveling and modifier extraction.
package match

import (
	"context"
	"strings"

	"meshnerd/internal/logging"
	"meshnerd/internal/semantic"
	"meshnerd/internal/workflow"
)

// Matcher is one independent matching signal. Match never panics the
// ensemble: errors are isolated at the orchestration boundary.
type Matcher interface {
	Name() string
	Weight() float64
	Match(ctx context.Context, prompt string, mctx workflow.MatchContext, snap *workflow.Snapshot) (workflow.MatcherResult, error)
}

// =============================================================================
// KEYWORD MATCHER
// =============================================================================

// KeywordMatcher matches by case-insensitive substring lookup against
// each workflow's declared trigger keywords. Any hit is a full-confidence
// candidate; workflows are scanned in catalog declaration order and the
// first hit wins.
type KeywordMatcher struct {
	weight float64
}

func NewKeywordMatcher(weight float64) *KeywordMatcher {
	return &KeywordMatcher{weight: weight}
}

func (m *KeywordMatcher) Name() string    { return "keyword" }
func (m *KeywordMatcher) Weight() float64 { return m.weight }

func (m *KeywordMatcher) Match(_ context.Context, prompt string, _ workflow.MatchContext, snap *workflow.Snapshot) (workflow.MatcherResult, error) {
	promptLower := strings.ToLower(prompt)
	for _, def := range snap.All() {
		for _, kw := range def.TriggerKeywords {
			if kw == "" {
				continue
			}
			if strings.Contains(promptLower, strings.ToLower(kw)) {
				logging.MatchingDebug("Keyword matcher: %q hit workflow %s", kw, def.Name)
				r, err := workflow.NewMatcherResult(m.Name(), def.Name, 1.0, m.weight)
				if err != nil {
					return workflow.MatcherResult{}, err
				}
				r.Metadata = map[string]interface{}{"keyword": kw}
				return r, nil
			}
		}
	}
	return workflow.NewMatcherResult(m.Name(), "", 0, m.weight)
}

// =============================================================================
// SEMANTIC MATCHER
// =============================================================================

// SemanticMatcher delegates to the similarity oracle. It produces a
// candidate only when the oracle's discretized level is not NONE.
type SemanticMatcher struct {
	oracle *semantic.Oracle
	weight float64
}

func NewSemanticMatcher(oracle *semantic.Oracle, weight float64) *SemanticMatcher {
	return &SemanticMatcher{oracle: oracle, weight: weight}
}

func (m *SemanticMatcher) Name() string    { return "semantic" }
func (m *SemanticMatcher) Weight() float64 { return m.weight }

func (m *SemanticMatcher) Match(ctx context.Context, prompt string, _ workflow.MatchContext, _ *workflow.Snapshot) (workflow.MatcherResult, error) {
	if m.oracle == nil {
		return workflow.NewMatcherResult(m.Name(), "", 0, m.weight)
	}
	best, err := m.oracle.FindBestMatch(ctx, prompt)
	if err != nil {
		return workflow.MatcherResult{}, err
	}
	if best.Level == workflow.ConfidenceNone {
		return workflow.NewMatcherResult(m.Name(), "", 0, m.weight)
	}

	confidence := best.Score
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	r, err := workflow.NewMatcherResult(m.Name(), best.Workflow, confidence, m.weight)
	if err != nil {
		return workflow.MatcherResult{}, err
	}
	meta := map[string]interface{}{"oracle_level": string(best.Level)}
	if len(best.Fallbacks) > 0 {
		names := make([]string, len(best.Fallbacks))
		for i, f := range best.Fallbacks {
			names[i] = f.Workflow
		}
		meta["fallbacks"] = names
	}
	r.Metadata = meta
	return r, nil
}

// =============================================================================
// PATTERN MATCHER
// =============================================================================

// PatternConfidence is the fixed confidence assigned when a detected
// structural pattern is bound to a workflow.
const PatternConfidence = 0.95

// PatternMatcher reads the detected structural pattern key from the
// request context and looks for a workflow bound to it. Absence of the
// key disables this matcher only.
type PatternMatcher struct {
	weight float64
}

func NewPatternMatcher(weight float64) *PatternMatcher {
	return &PatternMatcher{weight: weight}
}

func (m *PatternMatcher) Name() string    { return "pattern" }
func (m *PatternMatcher) Weight() float64 { return m.weight }

func (m *PatternMatcher) Match(_ context.Context, _ string, mctx workflow.MatchContext, snap *workflow.Snapshot) (workflow.MatcherResult, error) {
	key := mctx.DetectedPattern()
	if key == "" {
		return workflow.NewMatcherResult(m.Name(), "", 0, m.weight)
	}
	for _, def := range snap.All() {
		if def.TriggerPattern == key {
			logging.MatchingDebug("Pattern matcher: %q bound to workflow %s", key, def.Name)
			r, err := workflow.NewMatcherResult(m.Name(), def.Name, PatternConfidence, m.weight)
			if err != nil {
				return workflow.MatcherResult{}, err
			}
			r.Metadata = map[string]interface{}{"pattern": key}
			return r, nil
		}
	}
	logging.MatchingDebug("Pattern matcher: %q bound to no workflow", key)
	return workflow.NewMatcherResult(m.Name(), "", 0, m.weight)
}
