package workflow

import "fmt"

// ConfidenceLevel buckets an aggregated ensemble score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceNone   ConfidenceLevel = "NONE"
)

// MatcherResult is one matcher's verdict for one prompt: the chosen
// workflow (empty when the matcher abstains), a confidence and weight
// in [0, 1], and free-form metadata for diagnostics.
type MatcherResult struct {
	Matcher    string
	Workflow   string
	Confidence float64
	Weight     float64
	Metadata   map[string]interface{}
}

// NewMatcherResult builds a validated result. Confidence or weight
// outside [0, 1] is rejected here so aggregation can trust its inputs.
func NewMatcherResult(matcher, workflow string, confidence, weight float64) (MatcherResult, error) {
	if confidence < 0 || confidence > 1 {
		return MatcherResult{}, fmt.Errorf("matcher %s: confidence %v outside [0, 1]", matcher, confidence)
	}
	if weight < 0 || weight > 1 {
		return MatcherResult{}, fmt.Errorf("matcher %s: weight %v outside [0, 1]", matcher, weight)
	}
	return MatcherResult{Matcher: matcher, Workflow: workflow, Confidence: confidence, Weight: weight}, nil
}

// Abstained reports whether the matcher produced no candidate.
func (r MatcherResult) Abstained() bool { return r.Workflow == "" }

// Contribution is the matcher's weighted share of its candidate's score.
func (r MatcherResult) Contribution() float64 { return r.Confidence * r.Weight }

// EnsembleResult is the combined decision over all matchers.
type EnsembleResult struct {
	// Workflow is the winning workflow name, empty when nothing matched.
	Workflow string
	// Score is the winner's aggregated (and possibly boosted) score.
	Score float64
	// Level is the discretized confidence bucket.
	Level ConfidenceLevel
	// AdaptationRequired is set unless the match leveled HIGH.
	AdaptationRequired bool
	// CompositionMode flags a runner-up close enough to suggest blending.
	CompositionMode bool
	// Secondary lists non-executed runner-up workflow names.
	Secondary []string
	// Contributions maps matcher name to its weighted contribution to
	// the winner's score.
	Contributions map[string]float64
	// PerMatcher keeps each matcher's raw result for diagnostics.
	PerMatcher []MatcherResult
	// Modifiers is the merged defaults-plus-overrides parameter map.
	Modifiers map[string]interface{}
}

// Matched reports whether any workflow won at all.
func (r EnsembleResult) Matched() bool { return r.Workflow != "" && r.Level != ConfidenceNone }

// AdaptationStrategy names the three confidence-driven adaptation shapes.
type AdaptationStrategy string

const (
	AdaptFull     AdaptationStrategy = "FULL"
	AdaptFiltered AdaptationStrategy = "FILTERED"
	AdaptCoreOnly AdaptationStrategy = "CORE_ONLY"
)

// AdaptationResult records how a workflow was trimmed to the confidence
// of its match before expansion.
type AdaptationResult struct {
	Steps            []WorkflowStep
	OriginalCount    int
	AdaptedCount     int
	SkippedOptional  []string
	IncludedOptional []string
	Level            ConfidenceLevel
	Strategy         AdaptationStrategy
}
