package expr

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates the three value types an evaluation context holds.
type ValueKind int

const (
	KindNumber ValueKind = iota
	KindBool
	KindString
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a single context or result value. Numbers and booleans are
// interchangeable in arithmetic (booleans coerce to 1.0/0.0) but the
// original kind is preserved on read-back. Strings are legal only as
// comparison operands.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
}

// Number wraps a float as a Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Bool wraps a boolean as a Value, coercible to 1.0/0.0.
func Bool(b bool) Value {
	v := Value{Kind: KindBool}
	if b {
		v.Num = 1.0
	}
	return v
}

// String wraps a string as a Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// IsTruthy reports the truthiness used by condition evaluation:
// nonzero numbers/booleans and non-empty strings are true.
func (v Value) IsTruthy() bool {
	if v.Kind == KindString {
		return v.Str != ""
	}
	return v.Num != 0
}

// Float returns the numeric value, failing for strings.
func (v Value) Float() (float64, error) {
	if v.Kind == KindString {
		return 0, fmt.Errorf("value is a string (%q), not a number", v.Str)
	}
	return v.Num, nil
}

// Interface returns the value as a plain Go scalar, preserving the
// original kind on read-back.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindBool:
		return v.Num != 0
	case KindString:
		return v.Str
	default:
		return v.Num
	}
}

func (v Value) String_() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Num != 0)
	case KindString:
		return v.Str
	default:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
}

// Context maps variable names to values. A Context is created fresh per
// call and never shared across evaluations.
type Context map[string]Value

// NewContext returns an empty evaluation context.
func NewContext() Context { return make(Context) }

// Clone returns an independent copy of the context.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// SetNumber binds a numeric variable.
func (c Context) SetNumber(name string, f float64) { c[name] = Number(f) }

// SetBool binds a boolean variable.
func (c Context) SetBool(name string, b bool) { c[name] = Bool(b) }

// SetString binds a string variable.
func (c Context) SetString(name string, s string) { c[name] = String(s) }

// ContextFromMap builds a context from plain Go scalars. Unsupported leaf
// types are skipped; callers that need them keep their own raw mapping.
func ContextFromMap(m map[string]interface{}) Context {
	ctx := make(Context, len(m))
	for name, raw := range m {
		if v, ok := CoerceValue(raw); ok {
			ctx[name] = v
		}
	}
	return ctx
}

// CoerceValue converts a plain Go scalar into a Value.
func CoerceValue(raw interface{}) (Value, bool) {
	switch t := raw.(type) {
	case float64:
		return Number(t), true
	case float32:
		return Number(float64(t)), true
	case int:
		return Number(float64(t)), true
	case int32:
		return Number(float64(t)), true
	case int64:
		return Number(float64(t)), true
	case uint:
		return Number(float64(t)), true
	case bool:
		return Bool(t), true
	case string:
		return String(t), true
	case Value:
		return t, true
	default:
		return Value{}, false
	}
}
