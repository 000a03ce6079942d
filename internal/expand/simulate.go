package expand

import (
	"meshnerd/internal/expr"
	"meshnerd/internal/logging"
	"meshnerd/internal/workflow"
)

// EffectFunc applies one tool's simulated side effect to the running
// context. Params are the step's resolved parameters.
type EffectFunc func(ctx expr.Context, params map[string]interface{})

// Simulator tracks the state later step conditions will see, without
// executing anything. Effects are a lookup from tool name to a pure
// context transition, open for extension via Register.
type Simulator struct {
	effects map[string]EffectFunc
}

// NewSimulator builds a simulator with the built-in effect table:
// mode setters update current_mode, selection tools toggle
// has_selection, creation/deletion tools adjust object_count (floored
// at zero).
func NewSimulator() *Simulator {
	s := &Simulator{effects: make(map[string]EffectFunc)}

	s.Register("system_set_mode", func(ctx expr.Context, params map[string]interface{}) {
		if mode, ok := params["mode"].(string); ok {
			ctx.SetString("current_mode", mode)
		}
	})

	selectAll := func(ctx expr.Context, _ map[string]interface{}) {
		ctx.SetBool("has_selection", true)
	}
	s.Register("select_all", selectAll)
	s.Register("mesh_select_all", selectAll)

	deselect := func(ctx expr.Context, _ map[string]interface{}) {
		ctx.SetBool("has_selection", false)
	}
	s.Register("select_none", deselect)
	s.Register("mesh_select_none", deselect)

	created := func(ctx expr.Context, _ map[string]interface{}) {
		s.adjustObjectCount(ctx, 1)
	}
	s.Register("primitive_add", created)
	s.Register("object_add", created)
	s.Register("object_duplicate", created)

	deleted := func(ctx expr.Context, _ map[string]interface{}) {
		s.adjustObjectCount(ctx, -1)
	}
	s.Register("object_delete", deleted)
	s.Register("delete_selected", deleted)

	return s
}

// Register binds a tool name to a context transition, replacing any
// existing binding.
func (s *Simulator) Register(tool string, fn EffectFunc) {
	s.effects[tool] = fn
}

// Apply runs the simulated effect of an accepted step, if the tool has
// one. Tools without an entry leave the context untouched.
func (s *Simulator) Apply(ctx expr.Context, tool string, params map[string]interface{}) {
	fn, ok := s.effects[tool]
	if !ok {
		return
	}
	fn(ctx, params)
	logging.SimulationDebug("Simulated effect of %s", tool)
}

func (s *Simulator) adjustObjectCount(ctx expr.Context, delta float64) {
	count := 0.0
	if v, ok := ctx["object_count"]; ok {
		if f, err := v.Float(); err == nil {
			count = f
		}
	}
	count += delta
	if count < 0 {
		count = 0
	}
	ctx.SetNumber("object_count", count)
}

// SeedContext normalizes the caller-supplied request context into an
// evaluation context for condition checks: current_mode, has_selection,
// object_count and any other scalar keys come across as-is.
func SeedContext(mctx workflow.MatchContext) expr.Context {
	return expr.ContextFromMap(mctx)
}

// FilterByCondition walks the expanded steps in order, evaluating each
// step's condition against the running simulated context. Conditions
// evaluate fail-open: an evaluation error means the step proceeds. An
// accepted step's simulated effect updates the context for later steps;
// a rejected step leaves it untouched.
func FilterByCondition(steps []workflow.WorkflowStep, seed expr.Context, sim *Simulator) []workflow.WorkflowStep {
	timer := logging.StartTimer(logging.CategorySimulation, "FilterByCondition")
	defer timer.Stop()

	ctx := seed.Clone()
	out := make([]workflow.WorkflowStep, 0, len(steps))
	for _, step := range steps {
		if step.Condition != "" {
			ok, err := expr.EvaluateBool(step.Condition, ctx)
			if err != nil {
				logging.SimulationDebug("Condition %q failed to evaluate (%v), proceeding fail-open", step.Condition, err)
			} else if !ok {
				logging.SimulationDebug("Condition %q false, omitting step %s", step.Condition, step.Tool)
				continue
			}
		}
		out = append(out, step)
		sim.Apply(ctx, step.Tool, step.Params)
	}
	return out
}
