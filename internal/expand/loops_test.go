package expand

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"meshnerd/internal/expr"
	"meshnerd/internal/workflow"
)

func stepIDs(steps []workflow.WorkflowStep) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	return ids
}

func loopStep(id, tool string, loop *workflow.LoopSpec) workflow.WorkflowStep {
	return workflow.WorkflowStep{ID: id, Tool: tool, Loop: loop}
}

func TestExpandStepsValuesLoop(t *testing.T) {
	steps := []workflow.WorkflowStep{
		{
			ID:   "Side_{side}",
			Tool: "mesh_mirror",
			Params: map[string]interface{}{
				"axis": "{side}",
			},
			Loop: &workflow.LoopSpec{Variable: "side", Values: []interface{}{"L", "R"}},
		},
	}
	out, err := ExpandSteps(steps, expr.NewContext(), 0)
	if err != nil {
		t.Fatalf("ExpandSteps: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expanded %d steps, want 2", len(out))
	}
	if out[0].ID != "Side_L" || out[1].ID != "Side_R" {
		t.Errorf("ids = %q, %q, want Side_L, Side_R", out[0].ID, out[1].ID)
	}
	if out[0].Params["axis"] != "L" || out[1].Params["axis"] != "R" {
		t.Errorf("params = %v, %v", out[0].Params, out[1].Params)
	}
	for i, s := range out {
		if s.Loop != nil {
			t.Errorf("step %d still carries a loop spec", i)
		}
	}
}

func TestExpandStepsRangeInclusive(t *testing.T) {
	steps := []workflow.WorkflowStep{
		{
			ID:   "cut_{i}",
			Tool: "mesh_loop_cut",
			Loop: &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 3}},
		},
	}
	out, err := ExpandSteps(steps, expr.NewContext(), 0)
	if err != nil {
		t.Fatalf("ExpandSteps: %v", err)
	}
	want := []string{"cut_1", "cut_2", "cut_3"}
	if len(out) != len(want) {
		t.Fatalf("expanded %d steps, want %d", len(out), len(want))
	}
	for i, id := range want {
		if out[i].ID != id {
			t.Errorf("step %d id = %q, want %q", i, out[i].ID, id)
		}
	}
}

func TestExpandStepsRangeExpressionBounds(t *testing.T) {
	ctx := expr.NewContext()
	ctx.SetNumber("count", 4)
	steps := []workflow.WorkflowStep{
		{
			ID:   "s{i}",
			Tool: "t",
			Loop: &workflow.LoopSpec{Variable: "i", Range: []interface{}{"1", "count - 1"}},
		},
	}
	out, err := ExpandSteps(steps, ctx, 0)
	if err != nil {
		t.Fatalf("ExpandSteps: %v", err)
	}
	if len(out) != 3 {
		t.Errorf("expanded %d steps, want 3 (1..3)", len(out))
	}
}

func TestExpandStepsRangeRejectsNonInteger(t *testing.T) {
	steps := []workflow.WorkflowStep{
		loopStep("s{i}", "t", &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 2.5}}),
	}
	if _, err := ExpandSteps(steps, expr.NewContext(), 0); err == nil {
		t.Error("non-integer range bound should fail")
	}
}

func TestExpandStepsRangeToleratesFloatNoise(t *testing.T) {
	steps := []workflow.WorkflowStep{
		loopStep("s{i}", "t", &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 2.9999999999995}}),
	}
	out, err := ExpandSteps(steps, expr.NewContext(), 0)
	if err != nil {
		t.Fatalf("bound within tolerance should round: %v", err)
	}
	if len(out) != 3 {
		t.Errorf("expanded %d steps, want 3", len(out))
	}
}

func TestExpandStepsCartesianOrder(t *testing.T) {
	steps := []workflow.WorkflowStep{
		{
			ID:   "cell_{row}_{col}",
			Tool: "t",
			Loop: &workflow.LoopSpec{
				Variables: []string{"row", "col"},
				Ranges:    [][]interface{}{{1, 2}, {1, 3}},
			},
		},
	}
	out, err := ExpandSteps(steps, expr.NewContext(), 0)
	if err != nil {
		t.Fatalf("ExpandSteps: %v", err)
	}
	// First-listed variable varies slowest.
	want := []string{"cell_1_1", "cell_1_2", "cell_1_3", "cell_2_1", "cell_2_2", "cell_2_3"}
	if diff := cmp.Diff(want, stepIDs(out)); diff != "" {
		t.Errorf("iteration order mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandStepsGroupInterleaving(t *testing.T) {
	steps := []workflow.WorkflowStep{
		{
			ID:   "A{i}",
			Tool: "tool_a",
			Loop: &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 3}, Group: "g"},
		},
		{
			ID:   "B{i}",
			Tool: "tool_b",
			Loop: &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 3}, Group: "g"},
		},
	}
	out, err := ExpandSteps(steps, expr.NewContext(), 0)
	if err != nil {
		t.Fatalf("ExpandSteps: %v", err)
	}
	want := []string{"A1", "B1", "A2", "B2", "A3", "B3"}
	if diff := cmp.Diff(want, stepIDs(out)); diff != "" {
		t.Errorf("interleave order mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandStepsGroupsSeparatedByPlainStep(t *testing.T) {
	// A plain step between two grouped runs breaks adjacency: the runs
	// expand independently.
	steps := []workflow.WorkflowStep{
		loopStep("A{i}", "a", &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 2}, Group: "g"}),
		{ID: "mid", Tool: "mid"},
		loopStep("B{i}", "b", &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 2}, Group: "g"}),
	}
	out, err := ExpandSteps(steps, expr.NewContext(), 0)
	if err != nil {
		t.Fatalf("ExpandSteps: %v", err)
	}
	want := []string{"A1", "A2", "mid", "B1", "B2"}
	if diff := cmp.Diff(want, stepIDs(out)); diff != "" {
		t.Errorf("expansion order mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandStepsGroupMismatch(t *testing.T) {
	steps := []workflow.WorkflowStep{
		loopStep("A{i}", "a", &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 3}, Group: "g"}),
		loopStep("B{i}", "b", &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 4}, Group: "g"}),
	}
	_, err := ExpandSteps(steps, expr.NewContext(), 0)
	var gm *GroupMismatchError
	if !errors.As(err, &gm) {
		t.Fatalf("error = %v, want GroupMismatchError", err)
	}
	if gm.Group != "g" {
		t.Errorf("Group = %q, want g", gm.Group)
	}
}

func TestExpandStepsLimit(t *testing.T) {
	steps := []workflow.WorkflowStep{
		loopStep("s{i}", "t", &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 100}}),
	}
	_, err := ExpandSteps(steps, expr.NewContext(), 10)
	var le *ExpansionLimitError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v, want ExpansionLimitError", err)
	}
	if le.Limit != 10 {
		t.Errorf("Limit = %d, want 10", le.Limit)
	}
}

func TestExpandStepsUnknownPlaceholder(t *testing.T) {
	steps := []workflow.WorkflowStep{
		{ID: "s_{nope}", Tool: "t"},
	}
	_, err := ExpandSteps(steps, expr.NewContext(), 0)
	var up *UnknownPlaceholderError
	if !errors.As(err, &up) {
		t.Fatalf("error = %v, want UnknownPlaceholderError", err)
	}
	if up.Placeholder != "nope" {
		t.Errorf("Placeholder = %q, want nope", up.Placeholder)
	}
}

func TestInterpolate(t *testing.T) {
	vars := expr.NewContext()
	vars.SetNumber("i", 2)
	vars.SetString("side", "L")
	vars.SetBool("flag", true)
	vars.SetNumber("f", 0.5)

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"step_{i}", "step_2"},
		{"{side}_{i}", "L_2"},
		{"{flag}", "true"},
		{"{f}", "0.5"},
		{"literal {{braces}}", "literal {braces}"},
		{"{{", "{"},
		{"}}", "}"},
		{"open { brace", "open { brace"},
	}
	for _, tt := range tests {
		got, err := Interpolate(tt.in, vars)
		if err != nil {
			t.Errorf("Interpolate(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInterpolateUnknownName(t *testing.T) {
	if _, err := Interpolate("{missing}", expr.NewContext()); err == nil {
		t.Error("unknown placeholder should fail")
	}
}

func TestExpandStepsLoopVariableInNestedParams(t *testing.T) {
	steps := []workflow.WorkflowStep{
		{
			ID:   "s{i}",
			Tool: "t",
			Params: map[string]interface{}{
				"nested": map[string]interface{}{"label": "pass_{i}"},
				"list":   []interface{}{"item_{i}"},
			},
			Loop: &workflow.LoopSpec{Variable: "i", Range: []interface{}{1, 2}},
		},
	}
	out, err := ExpandSteps(steps, expr.NewContext(), 0)
	if err != nil {
		t.Fatalf("ExpandSteps: %v", err)
	}
	nested := out[1].Params["nested"].(map[string]interface{})
	if nested["label"] != "pass_2" {
		t.Errorf("nested label = %v, want pass_2", nested["label"])
	}
	list := out[1].Params["list"].([]interface{})
	if list[0] != "item_2" {
		t.Errorf("list item = %v, want item_2", list[0])
	}
}

func TestExpandStepsEmptyRange(t *testing.T) {
	steps := []workflow.WorkflowStep{
		loopStep("s{i}", "t", &workflow.LoopSpec{Variable: "i", Range: []interface{}{3, 1}}),
	}
	out, err := ExpandSteps(steps, expr.NewContext(), 0)
	if err != nil {
		t.Fatalf("ExpandSteps: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("inverted range expanded %d steps, want 0", len(out))
	}
}
