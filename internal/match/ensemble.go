package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"meshnerd/internal/logging"
	"meshnerd/internal/semantic"
	"meshnerd/internal/workflow"
)

// Config holds ensemble tuning. The defaults are the reference values
// the tests pin; deployments may adjust them.
type Config struct {
	KeywordWeight  float64 // default 0.40
	SemanticWeight float64 // default 0.40
	PatternWeight  float64 // default 0.15

	// PatternBoost multiplies a candidate's score when the pattern
	// matcher contributed to it (default 1.3).
	PatternBoost float64

	// CompositionMargin is the absolute score distance within which a
	// runner-up triggers composition mode (default 0.15).
	CompositionMargin float64

	// HighThreshold and MediumThreshold bucket the winning score
	// (defaults 0.7 and 0.4).
	HighThreshold   float64
	MediumThreshold float64

	// ModifierSimilarityThreshold gates oracle-based modifier phrase
	// matching (default 0.70).
	ModifierSimilarityThreshold float64

	// EnableParallel runs the matchers concurrently (default true).
	EnableParallel bool
}

// DefaultConfig returns the reference ensemble parameters.
func DefaultConfig() Config {
	return Config{
		KeywordWeight:               0.40,
		SemanticWeight:              0.40,
		PatternWeight:               0.15,
		PatternBoost:                1.3,
		CompositionMargin:           0.15,
		HighThreshold:               0.7,
		MediumThreshold:             0.4,
		ModifierSimilarityThreshold: 0.70,
		EnableParallel:              true,
	}
}

// simplePhrases is the fixed multilingual "wants something simple"
// phrase set. Any of these in the prompt forces the confidence level to
// LOW regardless of score.
var simplePhrases = []string{
	"simple",
	"basic",
	"prosty",
	"proste",
	"einfach",
	"simples",
	"sencillo",
	"простой",
}

// Ensemble orchestrates the three matchers and aggregates their votes.
type Ensemble struct {
	matchers []Matcher
	oracle   *semantic.Oracle
	config   Config
}

// NewEnsemble builds the ensemble with its fixed matcher declaration
// order: keyword, semantic, pattern. That order is the documented
// tie-break for equal scores.
func NewEnsemble(oracle *semantic.Oracle, cfg Config) *Ensemble {
	logging.Matching("Creating ensemble matcher (weights: keyword=%.2f semantic=%.2f pattern=%.2f)",
		cfg.KeywordWeight, cfg.SemanticWeight, cfg.PatternWeight)
	return &Ensemble{
		matchers: []Matcher{
			NewKeywordMatcher(cfg.KeywordWeight),
			NewSemanticMatcher(oracle, cfg.SemanticWeight),
			NewPatternMatcher(cfg.PatternWeight),
		},
		oracle: oracle,
		config: cfg,
	}
}

// Match runs every matcher, aggregates the votes, levels the confidence
// and extracts modifiers. It always returns a result: no candidate from
// any matcher yields a NONE-level result with empty modifiers.
func (e *Ensemble) Match(ctx context.Context, prompt string, mctx workflow.MatchContext, snap *workflow.Snapshot) workflow.EnsembleResult {
	timer := logging.StartTimer(logging.CategoryMatching, "Ensemble.Match")
	defer timer.Stop()

	results := e.runMatchers(ctx, prompt, mctx, snap)
	result := e.aggregate(prompt, results)

	// Modifiers always run, independent of which matcher won.
	if result.Workflow != "" {
		if def, ok := snap.Get(result.Workflow); ok {
			result.Modifiers = ExtractModifiers(ctx, prompt, def, e.oracle, e.config.ModifierSimilarityThreshold)
		}
	}
	if result.Modifiers == nil {
		result.Modifiers = map[string]interface{}{}
	}

	logging.Matching("Ensemble decision: workflow=%q score=%.4f level=%s composition=%v",
		result.Workflow, result.Score, result.Level, result.CompositionMode)
	return result
}

// runMatchers fans the matchers out and isolates each failure: a
// matcher error becomes a zero-confidence result carrying the error in
// metadata, never a failed request.
func (e *Ensemble) runMatchers(ctx context.Context, prompt string, mctx workflow.MatchContext, snap *workflow.Snapshot) []workflow.MatcherResult {
	results := make([]workflow.MatcherResult, len(e.matchers))

	run := func(i int, m Matcher) {
		r, err := m.Match(ctx, prompt, mctx, snap)
		if err != nil {
			logging.Get(logging.CategoryMatching).Warn("Matcher %s failed: %v", m.Name(), err)
			results[i] = workflow.MatcherResult{
				Matcher:  m.Name(),
				Weight:   m.Weight(),
				Metadata: map[string]interface{}{"error": err.Error()},
			}
			return
		}
		results[i] = r
	}

	if e.config.EnableParallel {
		var g errgroup.Group
		for i, m := range e.matchers {
			i, m := i, m
			g.Go(func() error {
				defer func() {
					if rec := recover(); rec != nil {
						logging.Get(logging.CategoryMatching).Error("Matcher %s panicked: %v", m.Name(), rec)
						results[i] = workflow.MatcherResult{
							Matcher:  m.Name(),
							Weight:   m.Weight(),
							Metadata: map[string]interface{}{"error": fmt.Sprintf("panic: %v", rec)},
						}
					}
				}()
				run(i, m)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, m := range e.matchers {
			run(i, m)
		}
	}
	return results
}

// candidate accumulates one workflow's aggregated score.
type candidate struct {
	workflow      string
	score         float64
	patternWeight float64
	firstSeen     int
	contributions map[string]float64
}

// aggregate combines matcher results into a ranked decision.
func (e *Ensemble) aggregate(prompt string, results []workflow.MatcherResult) workflow.EnsembleResult {
	byWorkflow := make(map[string]*candidate)
	var order []*candidate

	for _, r := range results {
		if r.Abstained() {
			continue
		}
		c, ok := byWorkflow[r.Workflow]
		if !ok {
			c = &candidate{
				workflow:      r.Workflow,
				firstSeen:     len(order),
				contributions: make(map[string]float64),
			}
			byWorkflow[r.Workflow] = c
			order = append(order, c)
		}
		contribution := r.Contribution()
		c.score += contribution
		c.contributions[r.Matcher] += contribution
		if r.Matcher == "pattern" {
			c.patternWeight += contribution
		}
	}

	if len(order) == 0 {
		return workflow.EnsembleResult{
			Level:              workflow.ConfidenceNone,
			AdaptationRequired: true,
			PerMatcher:         results,
		}
	}

	// Pattern boost applies only where the pattern matcher contributed.
	for _, c := range order {
		if c.patternWeight > 0 {
			boosted := c.score * e.config.PatternBoost
			logging.MatchingDebug("Pattern boost: %s %.4f -> %.4f", c.workflow, c.score, boosted)
			c.score = boosted
		}
	}

	// Stable sort on (-score, firstSeen): equal scores keep first-seen
	// order, which follows the fixed matcher declaration order.
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].firstSeen < order[j].firstSeen
	})

	winner := order[0]
	result := workflow.EnsembleResult{
		Workflow:      winner.workflow,
		Score:         winner.score,
		Contributions: winner.contributions,
		PerMatcher:    results,
	}

	for _, c := range order[1:] {
		if winner.score-c.score <= e.config.CompositionMargin {
			result.CompositionMode = true
			result.Secondary = append(result.Secondary, c.workflow)
		}
	}

	result.Level = e.level(prompt, winner.score)
	result.AdaptationRequired = result.Level != workflow.ConfidenceHigh
	return result
}

// level buckets the winning score, with the simple-phrase override.
func (e *Ensemble) level(prompt string, score float64) workflow.ConfidenceLevel {
	promptLower := strings.ToLower(prompt)
	for _, phrase := range simplePhrases {
		if strings.Contains(promptLower, phrase) {
			logging.MatchingDebug("Simple-request phrase %q forces LOW confidence", phrase)
			return workflow.ConfidenceLow
		}
	}
	switch {
	case score >= e.config.HighThreshold:
		return workflow.ConfidenceHigh
	case score >= e.config.MediumThreshold:
		return workflow.ConfidenceMedium
	default:
		return workflow.ConfidenceLow
	}
}
