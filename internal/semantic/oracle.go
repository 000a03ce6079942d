// Package semantic provides the similarity oracle used by matching,
// modifier extraction and description-level adaptation. It embeds the
// catalog's descriptive phrases once, then answers prompt-to-workflow
// and phrase-to-phrase similarity queries against that corpus plus the
// recorded usage patterns.
package semantic

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"meshnerd/internal/embedding"
	"meshnerd/internal/logging"
	"meshnerd/internal/store"
	"meshnerd/internal/workflow"
)

// ThresholdDisabled turns off minimum-similarity filtering when used as
// Config.MatchThreshold.
const ThresholdDisabled = -1.0

// Scored is one corpus phrase with its similarity to a query.
type Scored struct {
	Workflow   string
	Phrase     string
	Similarity float64
}

// Match is the oracle's best answer for a prompt, with the runner-up
// candidates kept for composition detection.
type Match struct {
	Workflow  string
	Score     float64
	Level     workflow.ConfidenceLevel
	Fallbacks []Scored
}

// Config holds oracle tuning.
type Config struct {
	// TopK is the number of candidates kept per source (default: 5)
	TopK int

	// MatchThreshold is the minimum similarity for a candidate, or
	// ThresholdDisabled to keep everything (default: 0.4)
	MatchThreshold float64

	// HighThreshold and MediumThreshold derive the confidence level
	// from the best similarity (defaults: 0.7 and 0.4)
	HighThreshold   float64
	MediumThreshold float64

	// LearnedBoost is added to usage-pattern matches so previously
	// confirmed prompts outrank cold catalog phrases (default: 0.1)
	LearnedBoost float64

	// EnableParallel searches catalog corpus and usage patterns
	// concurrently (default: true)
	EnableParallel bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopK:            5,
		MatchThreshold:  0.4,
		HighThreshold:   0.7,
		MediumThreshold: 0.4,
		LearnedBoost:    0.1,
		EnableParallel:  true,
	}
}

type corpusEntry struct {
	workflow string
	phrase   string
}

// Oracle answers similarity queries over the loaded workflow corpus.
// A nil embedding engine degrades gracefully: every query answers
// "no match" instead of failing the request.
type Oracle struct {
	mu       sync.RWMutex
	engine   embedding.EmbeddingEngine
	entries  []corpusEntry
	vectors  [][]float32
	patterns *store.PatternStore
	cache    map[string][]float32
	config   Config
}

// NewOracle creates an oracle. engine may be nil.
func NewOracle(engine embedding.EmbeddingEngine, cfg Config) *Oracle {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	logging.Matching("Creating similarity oracle (engine=%v)", engine != nil)
	return &Oracle{
		engine: engine,
		cache:  make(map[string][]float32),
		config: cfg,
	}
}

// SetPatternStore attaches the recorded-usage store. Optional; without
// it the oracle answers from the catalog corpus alone.
func (o *Oracle) SetPatternStore(ps *store.PatternStore) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.patterns = ps
}

// Available reports whether semantic queries can be answered at all.
func (o *Oracle) Available() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine != nil
}

// LoadWorkflows embeds the descriptive phrases of every definition:
// the description, the sample prompts, and the humanized name. Safe to
// call again after a catalog reload; the corpus is rebuilt wholesale.
func (o *Oracle) LoadWorkflows(ctx context.Context, defs []*workflow.WorkflowDefinition) error {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Oracle.LoadWorkflows")
	defer timer.Stop()

	o.mu.RLock()
	engine := o.engine
	o.mu.RUnlock()

	if engine == nil {
		logging.Get(logging.CategoryEmbedding).Warn("Oracle: no embedding engine, semantic matching disabled")
		return nil
	}

	var entries []corpusEntry
	var phrases []string
	for _, d := range defs {
		for _, phrase := range corpusPhrases(d) {
			entries = append(entries, corpusEntry{workflow: d.Name, phrase: phrase})
			phrases = append(phrases, phrase)
		}
	}

	vectors, err := engine.EmbedBatch(ctx, phrases)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("Oracle: corpus embedding failed: %v (semantic matching disabled until reload)", err)
		return err
	}

	o.mu.Lock()
	o.entries = entries
	o.vectors = vectors
	o.mu.Unlock()

	logging.Embedding("Oracle corpus loaded: %d phrases from %d workflows", len(entries), len(defs))
	return nil
}

// corpusPhrases collects the phrases that describe one workflow.
func corpusPhrases(d *workflow.WorkflowDefinition) []string {
	var phrases []string
	if d.Description != "" {
		phrases = append(phrases, d.Description)
	}
	phrases = append(phrases, d.SamplePrompts...)
	// "bevel_edges" also matches as "bevel edges".
	if humanized := strings.ReplaceAll(d.Name, "_", " "); humanized != d.Name {
		phrases = append(phrases, humanized)
	} else {
		phrases = append(phrases, d.Name)
	}
	return phrases
}

// Similarity returns the cosine similarity of two phrases. Embeddings
// are cached per phrase, so repeated modifier checks stay cheap.
func (o *Oracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	va, err := o.embedCached(ctx, a)
	if err != nil {
		return 0, err
	}
	vb, err := o.embedCached(ctx, b)
	if err != nil {
		return 0, err
	}
	return embedding.CosineSimilarity(va, vb)
}

func (o *Oracle) embedCached(ctx context.Context, phrase string) ([]float32, error) {
	o.mu.RLock()
	engine := o.engine
	cached, ok := o.cache[phrase]
	o.mu.RUnlock()

	if engine == nil {
		return nil, errEngineUnavailable
	}
	if ok {
		return cached, nil
	}

	vec, err := engine.Embed(ctx, phrase)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.cache[phrase] = vec
	o.mu.Unlock()
	return vec, nil
}

// FindBestMatch scores the prompt against the loaded corpus and the
// recorded usage patterns, and returns the best workflow with its
// confidence level. A missing engine or embedding failure yields a
// NONE-level match, never an error; matching falls back to the other
// signals.
func (o *Oracle) FindBestMatch(ctx context.Context, prompt string) (Match, error) {
	timer := logging.StartTimer(logging.CategoryMatching, "Oracle.FindBestMatch")
	defer timer.Stop()

	o.mu.RLock()
	engine := o.engine
	entries := o.entries
	vectors := o.vectors
	patterns := o.patterns
	cfg := o.config
	o.mu.RUnlock()

	none := Match{Level: workflow.ConfidenceNone}

	if engine == nil {
		logging.MatchingDebug("Oracle: no embedding engine, returning NONE")
		return none, nil
	}

	queryVec, err := engine.Embed(ctx, prompt)
	if err != nil {
		logging.Get(logging.CategoryMatching).Warn("Oracle: prompt embedding failed: %v, returning NONE", err)
		return none, nil
	}

	var corpusScored, learnedScored []Scored

	searchCorpus := func() {
		results, err := embedding.FindTopK(queryVec, vectors, cfg.TopK)
		if err != nil {
			logging.Get(logging.CategoryMatching).Warn("Oracle: corpus search failed: %v", err)
			return
		}
		for _, r := range results {
			corpusScored = append(corpusScored, Scored{
				Workflow:   entries[r.Index].workflow,
				Phrase:     entries[r.Index].phrase,
				Similarity: r.Similarity,
			})
		}
	}
	searchPatterns := func() {
		if patterns == nil {
			return
		}
		matches, err := patterns.Search(queryVec, cfg.TopK)
		if err != nil {
			logging.Get(logging.CategoryMatching).Warn("Oracle: pattern search failed: %v", err)
			return
		}
		for _, m := range matches {
			sim := m.Similarity + cfg.LearnedBoost
			if sim > 1.0 {
				sim = 1.0
			}
			learnedScored = append(learnedScored, Scored{
				Workflow:   m.Workflow,
				Phrase:     m.Prompt,
				Similarity: sim,
			})
		}
	}

	if cfg.EnableParallel {
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error { searchCorpus(); return nil })
		g.Go(func() error { searchPatterns(); return nil })
		_ = g.Wait()
	} else {
		searchCorpus()
		searchPatterns()
	}

	all := append(corpusScored, learnedScored...)
	if cfg.MatchThreshold != ThresholdDisabled {
		filtered := all[:0]
		for _, s := range all {
			if s.Similarity >= cfg.MatchThreshold {
				filtered = append(filtered, s)
			}
		}
		all = filtered
	}
	if len(all) == 0 {
		return none, nil
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })

	// Collapse to the best phrase per workflow.
	best := all[0]
	seen := map[string]bool{best.Workflow: true}
	var fallbacks []Scored
	for _, s := range all[1:] {
		if seen[s.Workflow] {
			continue
		}
		seen[s.Workflow] = true
		fallbacks = append(fallbacks, s)
	}

	level := workflow.ConfidenceLow
	switch {
	case best.Similarity >= cfg.HighThreshold:
		level = workflow.ConfidenceHigh
	case best.Similarity >= cfg.MediumThreshold:
		level = workflow.ConfidenceMedium
	}

	logging.MatchingDebug("Oracle: best=%s score=%.4f level=%s fallbacks=%d",
		best.Workflow, best.Similarity, level, len(fallbacks))

	return Match{
		Workflow:  best.Workflow,
		Score:     best.Similarity,
		Level:     level,
		Fallbacks: fallbacks,
	}, nil
}
