// Package expand implements workflow expansion: parameter and macro
// resolution, loop expansion with interpolation, condition evaluation
// against a simulated context, and confidence-driven adaptation. The
// output is the final ordered action list handed to the actuator.
package expand

import (
	"strings"

	"meshnerd/internal/expr"
	"meshnerd/internal/logging"
)

const (
	calcPrefix = "$CALCULATE("
	autoPrefix = "$AUTO_"
)

// ResolveParams resolves the parameter micro-syntax recursively through
// nested maps and lists, returning a new structure (the input is never
// mutated). Per leaf scalar:
//
//  1. "$CALCULATE(expr)" evaluates through the sandboxed evaluator;
//     on failure the literal token is left unchanged.
//  2. "$AUTO_<NAME>" resolves against the dimension vector; unknown
//     macros or a missing vector leave the token unresolved.
//  3. "$name" substitutes from the merged context if present, and is
//     dropped (not defaulted) when absent.
//  4. Anything else passes through unchanged.
func ResolveParams(params map[string]interface{}, ctx expr.Context, dims []float64) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		resolved, keep := resolveValue(v, ctx, dims)
		if keep {
			out[k] = resolved
		} else {
			logging.ExpansionDebug("Dropped unresolvable parameter %q", k)
		}
	}
	return out
}

func resolveValue(v interface{}, ctx expr.Context, dims []float64) (interface{}, bool) {
	switch t := v.(type) {
	case string:
		return resolveScalar(t, ctx, dims)
	case map[string]interface{}:
		return ResolveParams(t, ctx, dims), true
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, e := range t {
			resolved, keep := resolveValue(e, ctx, dims)
			if keep {
				out = append(out, resolved)
			}
		}
		return out, true
	default:
		return v, true
	}
}

func resolveScalar(s string, ctx expr.Context, dims []float64) (interface{}, bool) {
	switch {
	case strings.HasPrefix(s, calcPrefix) && strings.HasSuffix(s, ")"):
		expression := s[len(calcPrefix) : len(s)-1]
		v, err := expr.Evaluate(expression, ctx)
		if err != nil {
			// The literal token stays put for later inspection.
			logging.ExpansionDebug("$CALCULATE failed (%v), leaving token %q", err, s)
			return s, true
		}
		return v.Interface(), true

	case strings.HasPrefix(s, autoPrefix):
		if v, ok := ResolveAuto(s, dims); ok {
			return v, true
		}
		return s, true

	case strings.HasPrefix(s, "$") && isIdentifier(s[1:]):
		if v, ok := ctx[s[1:]]; ok {
			return v.Interface(), true
		}
		// Direct references to absent names are dropped, not defaulted.
		return nil, false

	default:
		return s, true
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}
