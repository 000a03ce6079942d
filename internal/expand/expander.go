package expand

import (
	"context"

	"github.com/google/uuid"

	"meshnerd/internal/expr"
	"meshnerd/internal/logging"
	"meshnerd/internal/workflow"
)

// Action is one ready-to-execute instruction for the actuator.
type Action struct {
	Tool       string                 `json:"tool"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Provenance Provenance             `json:"provenance"`
}

// Provenance ties an action back to its source for observability.
type Provenance struct {
	Workflow    string `json:"workflow"`
	StepIndex   int    `json:"step_index"`
	ExpansionID string `json:"expansion_id"`
}

// Options carries the per-request inputs to one expansion.
type Options struct {
	// Params are explicit caller parameters (typically the ensemble's
	// merged modifiers); they override declared defaults.
	Params map[string]interface{}

	// Context is the caller-supplied request context used to seed
	// condition simulation and supply the dimension vector.
	Context workflow.MatchContext

	// Dimensions is the object's [x, y, z] size driving $AUTO_* macros.
	// When empty, the "dimensions" context key is consulted.
	Dimensions []float64

	// Level gates optional steps. Zero value means no adaptation
	// (treated as HIGH).
	Level workflow.ConfidenceLevel

	// Prompt refines MEDIUM-level adaptation relevance.
	Prompt string

	// Limit overrides the expansion step ceiling when positive.
	Limit int
}

// Expander is the top-level expansion orchestrator: defaults and
// overrides merge into a context, computed parameters resolve in
// dependency order, macros and variables substitute, loops expand,
// and conditions filter against the simulated running state.
type Expander struct {
	catalog *workflow.Catalog
	adapter *Adapter
	sim     *Simulator
	limit   int
}

// NewExpander wires the expander. adapter may be nil, in which case
// every confidence level receives the full step list.
func NewExpander(catalog *workflow.Catalog, adapter *Adapter) *Expander {
	return &Expander{
		catalog: catalog,
		adapter: adapter,
		sim:     NewSimulator(),
		limit:   DefaultExpansionLimit,
	}
}

// Simulator exposes the effect table for registration of extra tools.
func (e *Expander) Simulator() *Simulator { return e.sim }

// SetLimit overrides the expansion step ceiling.
func (e *Expander) SetLimit(limit int) {
	if limit > 0 {
		e.limit = limit
	}
}

// Expand turns a workflow name into the final ordered action list. An
// unknown workflow name yields an empty list, not an error; authoring
// errors inside a known workflow (unknown placeholders, group
// mismatches, the expansion ceiling) propagate.
func (e *Expander) Expand(ctx context.Context, name string, opts Options) ([]Action, error) {
	timer := logging.StartTimer(logging.CategoryExpansion, "Expander.Expand")
	defer timer.Stop()

	snap := e.catalog.Snapshot()
	def, ok := snap.Get(name)
	if !ok {
		logging.Expansion("Workflow %q not in catalog, returning empty action list", name)
		return []Action{}, nil
	}
	return e.ExpandDefinition(ctx, def, opts)
}

// ExpandDefinition expands an already-resolved definition. Used by the
// engine facade after matching, where the definition snapshot is in
// hand.
func (e *Expander) ExpandDefinition(ctx context.Context, def *workflow.WorkflowDefinition, opts Options) ([]Action, error) {
	level := opts.Level
	if level == "" {
		level = workflow.ConfidenceHigh
	}

	steps := def.Steps
	if e.adapter != nil {
		adapted := e.adapter.Adapt(ctx, def, level, opts.Prompt)
		steps = adapted.Steps
	}

	evalCtx, err := e.buildContext(def, opts)
	if err != nil {
		return nil, err
	}

	dims := e.dimensions(opts)

	// Macro and variable resolution precedes loop expansion, so loop
	// variables reach steps only through "{name}" interpolation.
	resolved := make([]workflow.WorkflowStep, len(steps))
	for i, step := range steps {
		resolved[i] = step.Clone()
		resolved[i].Params = ResolveParams(resolved[i].Params, evalCtx, dims)
	}

	limit := e.limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	expanded, err := ExpandSteps(resolved, evalCtx, limit)
	if err != nil {
		return nil, err
	}

	seed := SeedContext(opts.Context)
	final := FilterByCondition(expanded, seed, e.sim)

	expansionID := uuid.NewString()
	actions := make([]Action, len(final))
	for i, step := range final {
		actions[i] = Action{
			Tool:   step.Tool,
			Params: step.Params,
			Provenance: Provenance{
				Workflow:    def.Name,
				StepIndex:   i,
				ExpansionID: expansionID,
			},
		}
	}

	logging.Expansion("Expanded %s: %d steps -> %d actions (level=%s)", def.Name, len(def.Steps), len(actions), level)
	return actions, nil
}

// buildContext merges schema defaults, declared defaults and caller
// params (in that precedence order), then resolves computed parameters
// and clamps declared numeric ranges.
func (e *Expander) buildContext(def *workflow.WorkflowDefinition, opts Options) (expr.Context, error) {
	merged := make(map[string]interface{})
	for _, p := range def.Parameters {
		if p.Default != nil {
			merged[p.Name] = p.Default
		}
	}
	for k, v := range def.Defaults {
		merged[k] = v
	}
	for k, v := range opts.Params {
		merged[k] = v
	}

	initial := expr.ContextFromMap(merged)

	var computed []expr.ComputedParam
	for _, p := range def.Parameters {
		if !p.Computed() {
			continue
		}
		// Explicit caller values win over computed expressions.
		if _, supplied := opts.Params[p.Name]; supplied {
			continue
		}
		computed = append(computed, expr.ComputedParam{
			Name:       p.Name,
			Expression: p.Expression,
			DependsOn:  p.DependsOn,
		})
	}

	evalCtx, err := expr.ResolveComputed(computed, initial)
	if err != nil {
		return nil, err
	}

	// Declared numeric ranges clamp whatever value won the merge.
	for _, p := range def.Parameters {
		v, ok := evalCtx[p.Name]
		if !ok {
			continue
		}
		f, ferr := v.Float()
		if ferr != nil {
			continue
		}
		if p.Min != nil && f < *p.Min {
			logging.ExpansionDebug("Clamping %s from %v to min %v", p.Name, f, *p.Min)
			evalCtx.SetNumber(p.Name, *p.Min)
		}
		if p.Max != nil && f > *p.Max {
			logging.ExpansionDebug("Clamping %s from %v to max %v", p.Name, f, *p.Max)
			evalCtx.SetNumber(p.Name, *p.Max)
		}
	}
	return evalCtx, nil
}

func (e *Expander) dimensions(opts Options) []float64 {
	if len(opts.Dimensions) == 3 {
		return opts.Dimensions
	}
	raw, ok := opts.Context["dimensions"]
	if !ok {
		return nil
	}
	switch t := raw.(type) {
	case []float64:
		return t
	case []interface{}:
		if len(t) != 3 {
			return nil
		}
		dims := make([]float64, 3)
		for i, e := range t {
			f, ok := workflow.AsFloat(e)
			if !ok {
				return nil
			}
			dims[i] = f
		}
		return dims
	}
	return nil
}
