// Package engine wires the decision layer together: catalog, semantic
// oracle, matching ensemble, learned pattern store, adapter and
// expander behind one facade. Every dependency degrades gracefully: no
// embedding engine means keyword-only matching, no pattern store means
// no learning, a missing catalog directory means an empty catalog.
package engine

import (
	"context"
	"fmt"
	"os"

	"meshnerd/internal/config"
	"meshnerd/internal/embedding"
	"meshnerd/internal/expand"
	"meshnerd/internal/logging"
	"meshnerd/internal/match"
	"meshnerd/internal/semantic"
	"meshnerd/internal/store"
	"meshnerd/internal/workflow"
)

// Decision is the full outcome for one request: the match and, when a
// workflow won, its expanded action list.
type Decision struct {
	Match   workflow.EnsembleResult
	Actions []expand.Action
}

// Engine is the decision layer facade.
type Engine struct {
	catalog  *workflow.Catalog
	watcher  *workflow.CatalogWatcher
	oracle   *semantic.Oracle
	ensemble *match.Ensemble
	patterns *store.PatternStore
	expander *expand.Expander
}

// New builds the engine from configuration. Infrastructure failures
// (embedding provider, pattern store, missing catalog directory) are
// logged and degraded around; only unrecoverable wiring errors return.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "engine.New")
	defer timer.Stop()

	e := &Engine{catalog: workflow.NewCatalog()}

	embEngine, err := embedding.NewEngine(cfg.GetEmbeddingConfig())
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("Embedding unavailable, semantic matching disabled: %v", err)
		embEngine = nil
	}
	e.oracle = semantic.NewOracle(embEngine, cfg.GetOracleConfig())

	if embEngine != nil {
		ps, err := store.NewPatternStore(cfg.GetStorePath(), embEngine)
		if err != nil {
			logging.Get(logging.CategoryBoot).Warn("Pattern store unavailable, learning disabled: %v", err)
		} else {
			e.patterns = ps
			e.oracle.SetPatternStore(ps)
		}
	}

	if err := e.loadCatalog(ctx, cfg.GetCatalogDir()); err != nil {
		return nil, err
	}

	if cfg.WatchCatalog() {
		watcher, err := workflow.NewCatalogWatcher(cfg.GetCatalogDir(), e.catalog)
		if err != nil {
			logging.Get(logging.CategoryCatalog).Warn("Catalog watcher unavailable: %v", err)
		} else if err := watcher.Start(ctx); err != nil {
			logging.Get(logging.CategoryCatalog).Warn("Catalog watcher failed to start: %v", err)
		} else {
			e.watcher = watcher
		}
	}

	e.ensemble = match.NewEnsemble(e.oracle, cfg.GetMatchConfig())

	adapter := expand.NewAdapter(e.oracle, cfg.GetAdaptationThreshold())
	e.expander = expand.NewExpander(e.catalog, adapter)
	if limit := cfg.GetExpansionLimit(); limit > 0 {
		e.expander.SetLimit(limit)
	}

	logging.Boot("Engine ready: %d workflows, semantic=%v, learning=%v",
		e.catalog.Snapshot().Len(), e.oracle.Available(), e.patterns != nil)
	return e, nil
}

// loadCatalog reads the workflow directory into the catalog. A missing
// directory yields an empty catalog; malformed definitions fail.
func (e *Engine) loadCatalog(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logging.Get(logging.CategoryCatalog).Warn("Workflow directory %s does not exist, starting empty", dir)
		return nil
	}

	defs, err := workflow.LoadDirectory(dir)
	if err != nil {
		return fmt.Errorf("loading workflow directory %s: %w", dir, err)
	}
	if err := e.catalog.Replace(defs); err != nil {
		return fmt.Errorf("installing workflow catalog: %w", err)
	}

	if err := e.oracle.LoadWorkflows(ctx, defs); err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("Semantic corpus unavailable: %v", err)
	}
	return nil
}

// Catalog exposes the live catalog (read via snapshots).
func (e *Engine) Catalog() *workflow.Catalog { return e.catalog }

// Decide matches a prompt against the catalog without expanding.
func (e *Engine) Decide(ctx context.Context, prompt string, mctx workflow.MatchContext) workflow.EnsembleResult {
	return e.ensemble.Match(ctx, prompt, mctx, e.catalog.Snapshot())
}

// ExpandWorkflow expands a named workflow directly, bypassing matching.
// Unknown names yield an empty action list.
func (e *Engine) ExpandWorkflow(ctx context.Context, name string, opts expand.Options) ([]expand.Action, error) {
	return e.expander.Expand(ctx, name, opts)
}

// Process runs the full pipeline: match, then expand the winner with
// its extracted modifiers at the matched confidence level. A NONE match
// returns the match alone with no actions.
func (e *Engine) Process(ctx context.Context, prompt string, mctx workflow.MatchContext) (Decision, error) {
	timer := logging.StartTimer(logging.CategoryMatching, "Engine.Process")
	defer timer.Stop()

	result := e.Decide(ctx, prompt, mctx)
	decision := Decision{Match: result}
	if !result.Matched() {
		return decision, nil
	}

	actions, err := e.expander.Expand(ctx, result.Workflow, expand.Options{
		Params:  result.Modifiers,
		Context: mctx,
		Level:   result.Level,
		Prompt:  prompt,
	})
	if err != nil {
		return decision, fmt.Errorf("expanding %s: %w", result.Workflow, err)
	}
	decision.Actions = actions
	return decision, nil
}

// RecordUsage reinforces a prompt-to-workflow association in the
// learned pattern store. A no-op without a store.
func (e *Engine) RecordUsage(ctx context.Context, prompt, workflowName string, confidence float64) error {
	if e.patterns == nil {
		return nil
	}
	pattern := ""
	if snap := e.catalog.Snapshot(); snap != nil {
		if def, ok := snap.Get(workflowName); ok {
			pattern = def.TriggerPattern
		}
	}
	return e.patterns.RecordUsage(ctx, prompt, workflowName, pattern, confidence)
}

// Reload re-reads the catalog directory and rebuilds the semantic
// corpus.
func (e *Engine) Reload(ctx context.Context, dir string) error {
	return e.loadCatalog(ctx, dir)
}

// Close releases the watcher and pattern store.
func (e *Engine) Close() error {
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if e.patterns != nil {
		return e.patterns.Close()
	}
	return nil
}
