package expand

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"meshnerd/internal/expr"
	"meshnerd/internal/logging"
	"meshnerd/internal/workflow"
)

// DefaultExpansionLimit is the runaway guard on total expanded steps.
const DefaultExpansionLimit = 2000

// rangeTolerance is how far an evaluated range bound may sit from an
// integer before it is rejected.
const rangeTolerance = 1e-9

// iteration is one loop pass: ordered variable names and their values.
type iteration struct {
	Names  []string
	Values []interface{}
}

// ExpandSteps expands loop specifications and applies "{name}"
// interpolation, emitting concrete steps in order. Adjacent steps
// sharing a non-empty loop group are interleaved per iteration. The
// total emitted count is capped by limit.
func ExpandSteps(steps []workflow.WorkflowStep, ctx expr.Context, limit int) ([]workflow.WorkflowStep, error) {
	timer := logging.StartTimer(logging.CategoryExpansion, "ExpandSteps")
	defer timer.Stop()

	if limit <= 0 {
		limit = DefaultExpansionLimit
	}

	var out []workflow.WorkflowStep
	emit := func(s workflow.WorkflowStep) error {
		out = append(out, s)
		if len(out) > limit {
			return &ExpansionLimitError{Produced: len(out), Limit: limit}
		}
		return nil
	}

	i := 0
	for i < len(steps) {
		step := steps[i]

		if step.Loop == nil {
			concrete, err := concreteStep(step, ctx, nil)
			if err != nil {
				return nil, err
			}
			if err := emit(concrete); err != nil {
				return nil, err
			}
			i++
			continue
		}

		// Collect the adjacent run of steps sharing this loop group.
		group := []workflow.WorkflowStep{step}
		if step.Loop.Group != "" {
			for i+len(group) < len(steps) {
				next := steps[i+len(group)]
				if next.Loop == nil || next.Loop.Group != step.Loop.Group {
					break
				}
				group = append(group, next)
			}
		}

		space, err := iterationSpace(step.Loop, ctx)
		if err != nil {
			return nil, err
		}
		if len(group) > 1 {
			if err := checkGroupSpaces(group, space, ctx); err != nil {
				return nil, err
			}
		}

		// Interleaved: one concrete copy of every grouped step per
		// iteration, in original order, before the next iteration.
		for _, iter := range space {
			for _, gs := range group {
				concrete, err := concreteStep(gs, ctx, &iter)
				if err != nil {
					return nil, err
				}
				if err := emit(concrete); err != nil {
					return nil, err
				}
			}
		}
		i += len(group)
	}

	logging.ExpansionDebug("Expanded %d source steps into %d concrete steps", len(steps), len(out))
	return out, nil
}

// checkGroupSpaces verifies every grouped step shares the leader's
// iteration space exactly.
func checkGroupSpaces(group []workflow.WorkflowStep, leader []iteration, ctx expr.Context) error {
	for _, gs := range group[1:] {
		space, err := iterationSpace(gs.Loop, ctx)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(space, leader) {
			tools := make([]string, len(group))
			for i, g := range group {
				tools[i] = g.Tool
			}
			return &GroupMismatchError{Group: group[0].Loop.Group, Tools: tools}
		}
	}
	return nil
}

// concreteStep clones the step, clears its loop spec, binds the
// iteration's variables and interpolates every string surface.
func concreteStep(step workflow.WorkflowStep, ctx expr.Context, iter *iteration) (workflow.WorkflowStep, error) {
	out := step.Clone()
	out.Loop = nil

	vars := ctx
	if iter != nil {
		vars = ctx.Clone()
		for i, name := range iter.Names {
			switch v := iter.Values[i].(type) {
			case string:
				vars.SetString(name, v)
			default:
				if f, ok := workflow.AsFloat(v); ok {
					vars.SetNumber(name, f)
				} else {
					vars.SetString(name, fmt.Sprintf("%v", v))
				}
			}
		}
	}

	var err error
	if out.ID, err = Interpolate(out.ID, vars); err != nil {
		return workflow.WorkflowStep{}, err
	}
	if out.Description, err = Interpolate(out.Description, vars); err != nil {
		return workflow.WorkflowStep{}, err
	}
	if out.Params, err = interpolateMap(out.Params, vars); err != nil {
		return workflow.WorkflowStep{}, err
	}
	return out, nil
}

// iterationSpace enumerates a loop's iterations in order.
func iterationSpace(loop *workflow.LoopSpec, ctx expr.Context) ([]iteration, error) {
	if loop.MultiVariable() {
		return cartesianSpace(loop, ctx)
	}

	if len(loop.Values) > 0 {
		space := make([]iteration, len(loop.Values))
		for i, v := range loop.Values {
			space[i] = iteration{Names: []string{loop.Variable}, Values: []interface{}{v}}
		}
		return space, nil
	}

	start, end, err := resolveRange(loop.Range, ctx)
	if err != nil {
		return nil, err
	}
	var space []iteration
	for v := start; v <= end; v++ {
		space = append(space, iteration{Names: []string{loop.Variable}, Values: []interface{}{v}})
	}
	return space, nil
}

// cartesianSpace enumerates the cross product of all ranges, with the
// first-listed variable varying slowest.
func cartesianSpace(loop *workflow.LoopSpec, ctx expr.Context) ([]iteration, error) {
	bounds := make([][2]int, len(loop.Ranges))
	total := 1
	for i, r := range loop.Ranges {
		start, end, err := resolveRange(r, ctx)
		if err != nil {
			return nil, err
		}
		bounds[i] = [2]int{start, end}
		n := end - start + 1
		if n < 0 {
			n = 0
		}
		total *= n
	}
	if total == 0 {
		return nil, nil
	}

	space := make([]iteration, 0, total)
	current := make([]int, len(bounds))
	for i := range current {
		current[i] = bounds[i][0]
	}
	for {
		values := make([]interface{}, len(current))
		for i, v := range current {
			values[i] = v
		}
		space = append(space, iteration{
			Names:  append([]string(nil), loop.Variables...),
			Values: values,
		})

		// Odometer: the last variable varies fastest.
		pos := len(current) - 1
		for pos >= 0 {
			current[pos]++
			if current[pos] <= bounds[pos][1] {
				break
			}
			current[pos] = bounds[pos][0]
			pos--
		}
		if pos < 0 {
			break
		}
	}
	return space, nil
}

// resolveRange resolves an inclusive [start, end] pair whose bounds may
// be numbers or arithmetic expressions. Bounds must land on integers.
func resolveRange(bounds []interface{}, ctx expr.Context) (int, int, error) {
	if len(bounds) != 2 {
		return 0, 0, fmt.Errorf("loop range must have exactly [start, end], got %d elements", len(bounds))
	}
	start, err := resolveRangeBound(bounds[0], ctx)
	if err != nil {
		return 0, 0, err
	}
	end, err := resolveRangeBound(bounds[1], ctx)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func resolveRangeBound(bound interface{}, ctx expr.Context) (int, error) {
	var f float64
	switch b := bound.(type) {
	case string:
		v, err := expr.EvaluateFloat(b, ctx)
		if err != nil {
			return 0, fmt.Errorf("loop range bound %q: %w", b, err)
		}
		f = v
	default:
		v, ok := workflow.AsFloat(b)
		if !ok {
			return 0, fmt.Errorf("loop range bound %v is not numeric", bound)
		}
		f = v
	}

	rounded := math.Round(f)
	if math.Abs(f-rounded) > rangeTolerance {
		return 0, fmt.Errorf("loop range bound %v does not land on an integer", bound)
	}
	return int(rounded), nil
}

// Interpolate substitutes "{name}" placeholders from the context, with
// doubled braces as literal escapes. A placeholder missing from the
// context is a hard UnknownPlaceholderError.
func Interpolate(s string, vars expr.Context) (string, error) {
	if !strings.ContainsAny(s, "{}") {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				b.WriteByte('{')
				i++
				continue
			}
			name := s[i+1 : i+end]
			v, ok := vars[name]
			if !ok {
				return "", &UnknownPlaceholderError{Placeholder: name, Text: s}
			}
			b.WriteString(formatValue(v))
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			b.WriteByte('}')
			i++
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), nil
}

func interpolateMap(params map[string]interface{}, vars expr.Context) (map[string]interface{}, error) {
	if params == nil {
		return nil, nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		iv, err := interpolateValue(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = iv
	}
	return out, nil
}

func interpolateValue(v interface{}, vars expr.Context) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return Interpolate(t, vars)
	case map[string]interface{}:
		return interpolateMap(t, vars)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			iv, err := interpolateValue(e, vars)
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	default:
		return v, nil
	}
}

func formatValue(v expr.Value) string {
	switch v.Kind {
	case expr.KindString:
		return v.Str
	case expr.KindBool:
		if v.Num != 0 {
			return "true"
		}
		return "false"
	default:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
}
