package expand

import (
	"meshnerd/internal/logging"
)

// macroFunc computes one $AUTO_* macro from the object's dimension
// vector [x, y, z].
type macroFunc func(dims [3]float64) interface{}

// autoMacros is the fixed table of dimension-relative macros. Values
// are proportions of the object the workflow operates on, so a bevel on
// a 10cm part and a 10m part both look right.
var autoMacros = map[string]macroFunc{
	// 5% of the smallest dimension: a generic visible-but-subtle bevel.
	"$AUTO_BEVEL_WIDTH": func(dims [3]float64) interface{} {
		return 0.05 * min3(dims[0], dims[1], dims[2])
	},
	// 3% of the smaller footprint dimension: an inset border.
	"$AUTO_INSET_DEPTH": func(dims [3]float64) interface{} {
		return 0.03 * min2(dims[0], dims[1])
	},
	// 30% of height: a solid extrusion.
	"$AUTO_EXTRUDE_HEIGHT": func(dims [3]float64) interface{} {
		return 0.30 * dims[2]
	},
	// 2% of height: a shallow screen/panel recess.
	"$AUTO_SCREEN_DEPTH": func(dims [3]float64) interface{} {
		return 0.02 * dims[2]
	},
	// Uniform scale-downs, returned as full 3-element dimension vectors.
	"$AUTO_SCALE_DOWN": func(dims [3]float64) interface{} {
		return []interface{}{dims[0] * 0.8, dims[1] * 0.8, dims[2] * 0.8}
	},
	"$AUTO_SCALE_HALF": func(dims [3]float64) interface{} {
		return []interface{}{dims[0] * 0.5, dims[1] * 0.5, dims[2] * 0.5}
	},
}

// ResolveAuto resolves a $AUTO_<NAME> token against the dimension
// vector. ok is false for an unknown macro or a missing vector, in
// which case the caller leaves the token unresolved.
func ResolveAuto(token string, dims []float64) (interface{}, bool) {
	fn, known := autoMacros[token]
	if !known {
		logging.ExpansionDebug("Unknown auto macro %q, leaving unresolved", token)
		return nil, false
	}
	if len(dims) != 3 {
		logging.ExpansionDebug("Auto macro %q needs a 3-element dimension vector, got %d", token, len(dims))
		return nil, false
	}
	v := fn([3]float64{dims[0], dims[1], dims[2]})
	logging.ExpansionDebug("Resolved %s -> %v (dims=%v)", token, v, dims)
	return v, true
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func min3(a, b, c float64) float64 {
	return min2(min2(a, b), c)
}
