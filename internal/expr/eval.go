package expr

import (
	"fmt"
	"math"
	"strings"

	"meshnerd/internal/logging"
)

// =============================================================================
// PUBLIC EVALUATION API
// =============================================================================

// Evaluate parses and evaluates an expression against the context,
// returning a number, boolean, or string value.
func Evaluate(expression string, ctx Context) (Value, error) {
	node, err := Parse(expression)
	if err != nil {
		return Value{}, err
	}
	v, err := evalNode(node, ctx)
	if err != nil {
		if ie, ok := err.(*InvalidExpressionError); ok {
			return Value{}, ie
		}
		return Value{}, invalidExpr(expression, "%v", err)
	}
	logging.EvalDebug("Evaluated %q -> %v", expression, v.Interface())
	return v, nil
}

// EvaluateBool evaluates an expression and coerces the result via
// truthiness: nonzero numbers and non-empty strings are true.
func EvaluateBool(expression string, ctx Context) (bool, error) {
	v, err := Evaluate(expression, ctx)
	if err != nil {
		return false, err
	}
	return v.IsTruthy(), nil
}

// EvaluateFloat evaluates an expression and fails if the result is a string.
func EvaluateFloat(expression string, ctx Context) (float64, error) {
	v, err := Evaluate(expression, ctx)
	if err != nil {
		return 0, err
	}
	f, err := v.Float()
	if err != nil {
		return 0, invalidExpr(expression, "%v", err)
	}
	return f, nil
}

// EvaluateFloatOr evaluates an expression and returns the fallback on any
// failure instead of an error.
func EvaluateFloatOr(expression string, ctx Context, fallback float64) float64 {
	f, err := EvaluateFloat(expression, ctx)
	if err != nil {
		logging.EvalDebug("EvaluateFloatOr(%q) failed (%v), using fallback %v", expression, err, fallback)
		return fallback
	}
	return f
}

// EvaluateBoolOr evaluates a condition and returns the fallback on any
// failure instead of an error. Condition callers use this to fail open.
func EvaluateBoolOr(expression string, ctx Context, fallback bool) bool {
	b, err := EvaluateBool(expression, ctx)
	if err != nil {
		logging.EvalDebug("EvaluateBoolOr(%q) failed (%v), using fallback %v", expression, err, fallback)
		return fallback
	}
	return b
}

// =============================================================================
// AST EVALUATION
// =============================================================================

func evalNode(n *Node, ctx Context) (Value, error) {
	switch n.Kind {
	case NodeNumber:
		return Number(n.Num), nil

	case NodeString:
		return String(n.Str), nil

	case NodeName:
		if v, ok := ctx[n.Str]; ok {
			return v, nil
		}
		// Case-insensitive true/false resolve even absent a declared variable.
		switch strings.ToLower(n.Str) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("undefined variable %q", n.Str)

	case NodeUnary:
		return evalUnary(n, ctx)

	case NodeBinary:
		return evalBinary(n, ctx)

	case NodeCompare:
		return evalCompare(n, ctx)

	case NodeBoolOp:
		return evalBoolOp(n, ctx)

	case NodeCond:
		cond, err := evalNode(n.Args[1], ctx)
		if err != nil {
			return Value{}, err
		}
		if cond.IsTruthy() {
			return evalNode(n.Args[0], ctx)
		}
		return evalNode(n.Args[2], ctx)

	case NodeCall:
		return evalCall(n, ctx)
	}
	return Value{}, fmt.Errorf("unknown node kind %d", n.Kind)
}

func evalUnary(n *Node, ctx Context) (Value, error) {
	operand, err := evalNode(n.Args[0], ctx)
	if err != nil {
		return Value{}, err
	}
	if n.Op == "not" {
		return Bool(!operand.IsTruthy()), nil
	}
	f, err := operand.Float()
	if err != nil {
		return Value{}, fmt.Errorf("unary %q on string operand", n.Op)
	}
	if n.Op == "-" {
		return Number(-f), nil
	}
	return Number(f), nil
}

func evalBinary(n *Node, ctx Context) (Value, error) {
	left, err := evalNode(n.Args[0], ctx)
	if err != nil {
		return Value{}, err
	}
	right, err := evalNode(n.Args[1], ctx)
	if err != nil {
		return Value{}, err
	}

	a, err := left.Float()
	if err != nil {
		return Value{}, fmt.Errorf("arithmetic %q on string operand", n.Op)
	}
	b, err := right.Float()
	if err != nil {
		return Value{}, fmt.Errorf("arithmetic %q on string operand", n.Op)
	}

	switch n.Op {
	case "+":
		return Number(a + b), nil
	case "-":
		return Number(a - b), nil
	case "*":
		return Number(a * b), nil
	case "/":
		if b == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return Number(a / b), nil
	case "//":
		if b == 0 {
			return Value{}, fmt.Errorf("floor division by zero")
		}
		return Number(math.Floor(a / b)), nil
	case "%":
		if b == 0 {
			return Value{}, fmt.Errorf("modulo by zero")
		}
		// Floored modulo: result takes the divisor's sign.
		return Number(a - math.Floor(a/b)*b), nil
	case "**":
		result := math.Pow(a, b)
		if math.IsNaN(result) {
			return Value{}, fmt.Errorf("invalid power operation %v ** %v", a, b)
		}
		return Number(result), nil
	}
	return Value{}, fmt.Errorf("unknown operator %q", n.Op)
}

// evalCompare implements chained comparisons (a < b < c) as a
// conjunction that short-circuits at the first false pair.
func evalCompare(n *Node, ctx Context) (Value, error) {
	left, err := evalNode(n.Args[0], ctx)
	if err != nil {
		return Value{}, err
	}
	for i, op := range n.Ops {
		right, err := evalNode(n.Args[i+1], ctx)
		if err != nil {
			return Value{}, err
		}
		ok, err := comparePair(left, right, op)
		if err != nil {
			return Value{}, err
		}
		if !ok {
			return Bool(false), nil
		}
		left = right
	}
	return Bool(true), nil
}

func comparePair(left, right Value, op string) (bool, error) {
	leftStr := left.Kind == KindString
	rightStr := right.Kind == KindString

	if leftStr != rightStr {
		// Mixed string/number: equality is well-defined (never equal),
		// ordering is not.
		switch op {
		case "==":
			return false, nil
		case "!=":
			return true, nil
		}
		return false, fmt.Errorf("ordering comparison %q between string and number", op)
	}

	if leftStr {
		a, b := left.Str, right.Str
		switch op {
		case "==":
			return a == b, nil
		case "!=":
			return a != b, nil
		case "<":
			return a < b, nil
		case "<=":
			return a <= b, nil
		case ">":
			return a > b, nil
		case ">=":
			return a >= b, nil
		}
		return false, fmt.Errorf("unknown comparison %q", op)
	}

	a, b := left.Num, right.Num
	switch op {
	case "==":
		return a == b, nil
	case "!=":
		return a != b, nil
	case "<":
		return a < b, nil
	case "<=":
		return a <= b, nil
	case ">":
		return a > b, nil
	case ">=":
		return a >= b, nil
	}
	return false, fmt.Errorf("unknown comparison %q", op)
}

// evalBoolOp short-circuits and returns the deciding operand's value,
// so "x or fallback" keeps x's original type.
func evalBoolOp(n *Node, ctx Context) (Value, error) {
	var last Value
	for i, operand := range n.Args {
		v, err := evalNode(operand, ctx)
		if err != nil {
			return Value{}, err
		}
		last = v
		if i == len(n.Args)-1 {
			break
		}
		if n.Op == "and" && !v.IsTruthy() {
			return v, nil
		}
		if n.Op == "or" && v.IsTruthy() {
			return v, nil
		}
	}
	return last, nil
}

func evalCall(n *Node, ctx Context) (Value, error) {
	fn := builtinFuncs[n.Str]
	if fn.apply == nil {
		return Value{}, fmt.Errorf("call to unlisted function %q", n.Str)
	}
	if len(n.Args) < fn.minArgs || (fn.maxArgs >= 0 && len(n.Args) > fn.maxArgs) {
		return Value{}, fmt.Errorf("%s() takes %s arguments, got %d", n.Str, fn.arity(), len(n.Args))
	}

	args := make([]float64, len(n.Args))
	for i, argNode := range n.Args {
		v, err := evalNode(argNode, ctx)
		if err != nil {
			return Value{}, err
		}
		f, err := v.Float()
		if err != nil {
			return Value{}, fmt.Errorf("%s() argument %d is a string", n.Str, i+1)
		}
		args[i] = f
	}

	result, err := fn.apply(args)
	if err != nil {
		return Value{}, err
	}
	return Number(result), nil
}

// =============================================================================
// FUNCTION WHITELIST
// =============================================================================

type builtin struct {
	minArgs int
	maxArgs int // -1 = variadic
	apply   func(args []float64) (float64, error)
}

func (b builtin) arity() string {
	if b.maxArgs < 0 {
		return fmt.Sprintf("at least %d", b.minArgs)
	}
	if b.minArgs == b.maxArgs {
		return fmt.Sprintf("%d", b.minArgs)
	}
	return fmt.Sprintf("%d to %d", b.minArgs, b.maxArgs)
}

func unary1(f func(float64) float64) builtin {
	return builtin{minArgs: 1, maxArgs: 1, apply: func(args []float64) (float64, error) {
		return f(args[0]), nil
	}}
}

func checked1(name string, f func(float64) (float64, error)) builtin {
	return builtin{minArgs: 1, maxArgs: 1, apply: func(args []float64) (float64, error) {
		v, err := f(args[0])
		if err != nil {
			return 0, fmt.Errorf("%s(%v): %w", name, args[0], err)
		}
		return v, nil
	}}
}

var builtinFuncs = map[string]builtin{
	"abs": unary1(math.Abs),
	"min": {minArgs: 1, maxArgs: -1, apply: func(args []float64) (float64, error) {
		m := args[0]
		for _, a := range args[1:] {
			if a < m {
				m = a
			}
		}
		return m, nil
	}},
	"max": {minArgs: 1, maxArgs: -1, apply: func(args []float64) (float64, error) {
		m := args[0]
		for _, a := range args[1:] {
			if a > m {
				m = a
			}
		}
		return m, nil
	}},
	"round": {minArgs: 1, maxArgs: 2, apply: func(args []float64) (float64, error) {
		if len(args) == 1 {
			return math.Round(args[0]), nil
		}
		shift := math.Pow(10, math.Trunc(args[1]))
		return math.Round(args[0]*shift) / shift, nil
	}},
	"floor": unary1(math.Floor),
	"ceil":  unary1(math.Ceil),
	"trunc": unary1(math.Trunc),
	"sqrt": checked1("sqrt", func(x float64) (float64, error) {
		if x < 0 {
			return 0, fmt.Errorf("negative argument")
		}
		return math.Sqrt(x), nil
	}),
	"sin": unary1(math.Sin),
	"cos": unary1(math.Cos),
	"tan": unary1(math.Tan),
	"asin": checked1("asin", func(x float64) (float64, error) {
		if x < -1 || x > 1 {
			return 0, fmt.Errorf("argument out of range")
		}
		return math.Asin(x), nil
	}),
	"acos": checked1("acos", func(x float64) (float64, error) {
		if x < -1 || x > 1 {
			return 0, fmt.Errorf("argument out of range")
		}
		return math.Acos(x), nil
	}),
	"atan": unary1(math.Atan),
	"atan2": {minArgs: 2, maxArgs: 2, apply: func(args []float64) (float64, error) {
		return math.Atan2(args[0], args[1]), nil
	}},
	"degrees": unary1(func(x float64) float64 { return x * 180 / math.Pi }),
	"radians": unary1(func(x float64) float64 { return x * math.Pi / 180 }),
	"log": {minArgs: 1, maxArgs: 2, apply: func(args []float64) (float64, error) {
		if args[0] <= 0 {
			return 0, fmt.Errorf("log(%v): non-positive argument", args[0])
		}
		if len(args) == 1 {
			return math.Log(args[0]), nil
		}
		if args[1] <= 0 || args[1] == 1 {
			return 0, fmt.Errorf("log base %v is invalid", args[1])
		}
		return math.Log(args[0]) / math.Log(args[1]), nil
	}},
	"log10": checked1("log10", func(x float64) (float64, error) {
		if x <= 0 {
			return 0, fmt.Errorf("non-positive argument")
		}
		return math.Log10(x), nil
	}),
	"exp": unary1(math.Exp),
	"pow": {minArgs: 2, maxArgs: 2, apply: func(args []float64) (float64, error) {
		result := math.Pow(args[0], args[1])
		if math.IsNaN(result) {
			return 0, fmt.Errorf("invalid pow(%v, %v)", args[0], args[1])
		}
		return result, nil
	}},
	"hypot": {minArgs: 2, maxArgs: 2, apply: func(args []float64) (float64, error) {
		return math.Hypot(args[0], args[1]), nil
	}},
}
