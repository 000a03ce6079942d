package expr

import (
	"errors"
	"math"
	"testing"
)

func numCtx(vals map[string]float64) Context {
	ctx := NewContext()
	for k, v := range vals {
		ctx.SetNumber(k, v)
	}
	return ctx
}

func TestEvaluateArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		ctx  Context
		want float64
	}{
		{"1 + 2", nil, 3},
		{"2 * 3 + 4", nil, 10},
		{"2 + 3 * 4", nil, 14},
		{"(2 + 3) * 4", nil, 20},
		{"10 / 4", nil, 2.5},
		{"10 // 4", nil, 2},
		{"-7 // 2", nil, -4},
		{"10 % 3", nil, 1},
		{"-7 % 3", nil, 2},
		{"2 ** 10", nil, 1024},
		{"2 ** 3 ** 2", nil, 512},
		{"-2 ** 2", nil, -4},
		{"-x", numCtx(map[string]float64{"x": 5}), -5},
		{"+x", numCtx(map[string]float64{"x": 5}), 5},
		{"width / 2", numCtx(map[string]float64{"width": 2}), 1},
		{"1.5e2 + .5", nil, 150.5},
	}

	for _, tt := range tests {
		got, err := EvaluateFloat(tt.expr, tt.ctx)
		if err != nil {
			t.Errorf("EvaluateFloat(%q) error: %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("EvaluateFloat(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	ctx := numCtx(map[string]float64{"x": 3.25, "y": -1.5})
	first, err := EvaluateFloat("sqrt(x*x + y*y) + atan2(y, x)", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := EvaluateFloat("sqrt(x*x + y*y) + atan2(y, x)", ctx)
		if err != nil {
			t.Fatalf("unexpected error on repeat: %v", err)
		}
		if again != first {
			t.Fatalf("evaluation not deterministic: %v != %v", again, first)
		}
	}
}

func TestChainedComparison(t *testing.T) {
	tests := []struct {
		expr string
		x    float64
		want bool
	}{
		{"0 < x < 10", 5, true},
		{"0 < x < 10", 15, false},
		{"0 < x < 10", -1, false},
		{"0 <= x <= 10", 0, true},
		{"1 < x < 10 < 100", 5, true},
		{"x == 5 == 5", 5, true},
	}

	for _, tt := range tests {
		got, err := EvaluateBool(tt.expr, numCtx(map[string]float64{"x": tt.x}))
		if err != nil {
			t.Errorf("EvaluateBool(%q) error: %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EvaluateBool(%q) with x=%v = %v, want %v", tt.expr, tt.x, got, tt.want)
		}
	}
}

func TestChainedComparisonShortCircuit(t *testing.T) {
	// The right operand of the second comparison is invalid, but the
	// first pair is already false so it must never be evaluated.
	ctx := numCtx(map[string]float64{"x": 20})
	got, err := EvaluateBool("x < 10 < undefined_name", ctx)
	if err != nil {
		t.Fatalf("expected short-circuit, got error: %v", err)
	}
	if got {
		t.Error("expected false from short-circuited chain")
	}
}

func TestBooleanPrecedence(t *testing.T) {
	ctx := NewContext()
	ctx.SetBool("A", true)
	ctx.SetBool("B", false)
	ctx.SetBool("C", true)

	// not binds tighter than and
	got, err := EvaluateBool("not A and B", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error(`"not A and B" with A=true, B=false should be false`)
	}

	// parentheses override and/or precedence
	got, err = EvaluateBool("(A and B) or C", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`"(A and B) or C" with A=true, B=false, C=true should be true`)
	}

	// and binds tighter than or
	got, err = EvaluateBool("B or A and A", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`"B or A and A" should be true`)
	}
}

func TestShortCircuit(t *testing.T) {
	// Right operands are undefined; short-circuit must skip them.
	ctx := NewContext()
	ctx.SetBool("A", false)
	if got, err := EvaluateBool("A and missing", ctx); err != nil || got {
		t.Errorf("A and missing = (%v, %v), want (false, nil)", got, err)
	}

	ctx.SetBool("A", true)
	if got, err := EvaluateBool("A or missing", ctx); err != nil || !got {
		t.Errorf("A or missing = (%v, %v), want (true, nil)", got, err)
	}
}

func TestTernary(t *testing.T) {
	tests := []struct {
		expr string
		x    float64
		want float64
	}{
		{"1 if x > 0 else 2", 5, 1},
		{"1 if x > 0 else 2", -5, 2},
		{"x * 2 if x < 10 else x / 2", 4, 8},
		{"x * 2 if x < 10 else x / 2", 20, 10},
		{"1 if x > 0 else 2 if x == 0 else 3", -1, 3},
	}

	for _, tt := range tests {
		got, err := EvaluateFloat(tt.expr, numCtx(map[string]float64{"x": tt.x}))
		if err != nil {
			t.Errorf("EvaluateFloat(%q) error: %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EvaluateFloat(%q) with x=%v = %v, want %v", tt.expr, tt.x, got, tt.want)
		}
	}
}

func TestTrueFalseLiterals(t *testing.T) {
	// Case-insensitive true/false resolve without a declared variable.
	for _, expr := range []string{"true", "True", "TRUE"} {
		got, err := EvaluateFloat(expr+" + 1", nil)
		if err != nil {
			t.Errorf("EvaluateFloat(%q + 1) error: %v", expr, err)
			continue
		}
		if got != 2 {
			t.Errorf("%s + 1 = %v, want 2", expr, got)
		}
	}
	got, err := EvaluateBool("False or false", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("False or false should be false")
	}

	// A declared variable shadows the literal.
	ctx := NewContext()
	ctx.SetNumber("true", 7)
	f, err := EvaluateFloat("true", ctx)
	if err != nil || f != 7 {
		t.Errorf("declared variable should shadow literal: got (%v, %v)", f, err)
	}
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"abs(-3.5)", 3.5},
		{"min(3, 1, 2)", 1},
		{"max(3, 1, 2)", 3},
		{"round(2.567)", 3},
		{"round(2.567, 2)", 2.57},
		{"floor(2.9)", 2},
		{"ceil(2.1)", 3},
		{"trunc(-2.9)", -2},
		{"sqrt(16)", 4},
		{"sin(0)", 0},
		{"cos(0)", 1},
		{"degrees(radians(90))", 90},
		{"atan2(0, 1)", 0},
		{"log(exp(1))", 1},
		{"log10(1000)", 3},
		{"pow(2, 8)", 256},
		{"hypot(3, 4)", 5},
	}

	for _, tt := range tests {
		got, err := EvaluateFloat(tt.expr, nil)
		if err != nil {
			t.Errorf("EvaluateFloat(%q) error: %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("EvaluateFloat(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestStringComparison(t *testing.T) {
	ctx := NewContext()
	ctx.SetString("mode", "EDIT")

	got, err := EvaluateBool("mode == 'EDIT'", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("mode == 'EDIT' should be true")
	}

	got, err = EvaluateBool("mode != 'OBJECT'", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("mode != 'OBJECT' should be true")
	}

	// Mixed-type equality is defined (never equal); ordering is not.
	got, err = EvaluateBool("mode == 5", ctx)
	if err != nil || got {
		t.Errorf("mode == 5 = (%v, %v), want (false, nil)", got, err)
	}
	if _, err := Evaluate("mode < 5", ctx); err == nil {
		t.Error("expected error for string/number ordering comparison")
	}
}

func TestRejectedConstructs(t *testing.T) {
	invalid := []string{
		"x[0]",
		"obj.attr",
		"__import__('os')",
		"open('/etc/passwd')",
		"lambda: 1",
		"[1, 2, 3]",
		"{1: 2}",
		"x; y",
		"eval('1')",
		"unknown_func(1)",
		"1 +",
		"(1 + 2",
		"'unterminated",
		"1 if 2",
		"",
	}

	for _, src := range invalid {
		if _, err := Evaluate(src, nil); err == nil {
			t.Errorf("Evaluate(%q) should fail", src)
		}
	}
}

func TestArithmeticOnStringFails(t *testing.T) {
	ctx := NewContext()
	ctx.SetString("name", "cube")

	for _, src := range []string{"name + 1", "1 + name", "name * 2", "-name", "sqrt(name)"} {
		_, err := Evaluate(src, ctx)
		if err == nil {
			t.Errorf("Evaluate(%q) should fail for string operand", src)
			continue
		}
		var ie *InvalidExpressionError
		if !errors.As(err, &ie) {
			t.Errorf("Evaluate(%q) error type = %T, want *InvalidExpressionError", src, err)
		}
	}
}

func TestEvaluateFloatRejectsStringResult(t *testing.T) {
	ctx := NewContext()
	ctx.SetString("name", "cube")
	if _, err := EvaluateFloat("name", ctx); err == nil {
		t.Error("EvaluateFloat on string result should fail")
	}
	if _, err := Evaluate("name", ctx); err != nil {
		t.Errorf("Evaluate on string result should succeed: %v", err)
	}
}

func TestUndefinedVariable(t *testing.T) {
	if _, err := Evaluate("missing + 1", nil); err == nil {
		t.Error("expected error for undefined variable")
	}
}

func TestDivisionByZero(t *testing.T) {
	for _, src := range []string{"1 / 0", "1 // 0", "1 % 0"} {
		if _, err := Evaluate(src, nil); err == nil {
			t.Errorf("Evaluate(%q) should fail", src)
		}
	}
}

func TestSafeVariants(t *testing.T) {
	if got := EvaluateFloatOr("1 / 0", nil, 42); got != 42 {
		t.Errorf("EvaluateFloatOr fallback = %v, want 42", got)
	}
	if got := EvaluateFloatOr("2 + 2", nil, 42); got != 4 {
		t.Errorf("EvaluateFloatOr = %v, want 4", got)
	}
	if got := EvaluateBoolOr("garbage ===", nil, true); !got {
		t.Error("EvaluateBoolOr should fail open to true")
	}
}

func TestBoolCoercionPreservesKind(t *testing.T) {
	ctx := NewContext()
	ctx.SetBool("flag", true)

	// Arithmetic coerces the bool to 1.0.
	f, err := EvaluateFloat("flag + 1", ctx)
	if err != nil || f != 2 {
		t.Errorf("flag + 1 = (%v, %v), want (2, nil)", f, err)
	}

	// Read-back preserves the original kind.
	v, err := Evaluate("flag", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != KindBool {
		t.Errorf("read-back kind = %v, want bool", v.Kind)
	}
	if b, ok := v.Interface().(bool); !ok || !b {
		t.Errorf("read-back value = %v, want true", v.Interface())
	}
}

func TestTruthiness(t *testing.T) {
	ctx := NewContext()
	ctx.SetString("empty", "")
	ctx.SetString("full", "x")
	ctx.SetNumber("zero", 0)

	cases := []struct {
		expr string
		want bool
	}{
		{"empty", false},
		{"full", true},
		{"zero", false},
		{"0.001", true},
	}
	for _, tt := range cases {
		got, err := EvaluateBool(tt.expr, ctx)
		if err != nil {
			t.Errorf("EvaluateBool(%q) error: %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("EvaluateBool(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}
