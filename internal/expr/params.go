package expr

import (
	"fmt"
	"sort"

	"meshnerd/internal/logging"
)

// ComputedParam describes one parameter whose value is derived from an
// expression over other parameters. DependsOn lists the names the
// expression reads; dependencies on non-computed names are satisfied by
// the initial context.
type ComputedParam struct {
	Name       string
	Expression string
	DependsOn  []string
}

// ResolveComputed resolves all computed parameters in dependency order
// (Kahn's algorithm, counting only edges whose source is itself
// computed). The returned context extends the initial one with every
// resolved value. A cycle yields a CircularDependencyError naming the
// unresolved set; any evaluation failure aborts the whole resolution.
func ResolveComputed(params []ComputedParam, initial Context) (Context, error) {
	timer := logging.StartTimer(logging.CategoryEval, "ResolveComputed")
	defer timer.Stop()

	ctx := initial.Clone()
	if len(params) == 0 {
		return ctx, nil
	}

	computed := make(map[string]ComputedParam, len(params))
	for _, p := range params {
		computed[p.Name] = p
	}

	// In-degree counts only dependencies that are themselves computed;
	// plain context values are already available.
	inDegree := make(map[string]int, len(params))
	dependents := make(map[string][]string)
	for _, p := range params {
		inDegree[p.Name] = 0
	}
	for _, p := range params {
		for _, dep := range p.DependsOn {
			if _, ok := computed[dep]; ok {
				inDegree[p.Name]++
				dependents[dep] = append(dependents[dep], p.Name)
			}
		}
	}

	queue := make([]string, 0, len(params))
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	// Deterministic resolution order among ready nodes.
	sort.Strings(queue)

	resolved := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		p := computed[name]

		v, err := Evaluate(p.Expression, ctx)
		if err != nil {
			return nil, fmt.Errorf("computed parameter %q: %w", name, err)
		}
		ctx[name] = v
		resolved++
		logging.EvalDebug("Resolved computed parameter %s = %v", name, v.Interface())

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if resolved < len(params) {
		var unresolved []string
		for name, deg := range inDegree {
			if deg > 0 {
				unresolved = append(unresolved, name)
			}
		}
		sort.Strings(unresolved)
		logging.Get(logging.CategoryEval).Error("Circular dependency among computed parameters: %v", unresolved)
		return nil, &CircularDependencyError{Unresolved: unresolved}
	}

	return ctx, nil
}
