package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"

	"meshnerd/internal/config"
	"meshnerd/internal/expand"
	"meshnerd/internal/workflow"
)

func TestMain(m *testing.M) {
	// go.opencensus.io (a transitive dependency) starts a background
	// worker goroutine at package init that cannot be stopped.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const testCatalog = `workflows:
  - name: phone_case
    description: Create a phone case shell
    trigger_keywords: ["phone case", "protective case"]
    trigger_pattern: "case"
    defaults:
      thickness: 0.3
    modifiers:
      - phrase: "thick"
        overrides:
          thickness: 0.6
    steps:
      - tool: primitive_add
        params:
          kind: cube
          thickness: "$thickness"
      - tool: mesh_bevel
        description: Round the corners
        optional: true
        tags: ["rounded"]
  - name: gear
    description: Create a spur gear
    trigger_keywords: ["gear"]
    steps:
      - id: tooth_{i}
        tool: mesh_extrude
        loop:
          variable: i
          range: [1, 3]
`

// offlineConfig wires a config whose embedding provider cannot
// initialize, so the engine degrades to keyword-only matching and no
// pattern store. Keeps the tests deterministic and offline.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(testCatalog), 0644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}
	return &config.Config{
		Embedding: &config.EmbeddingConfig{Provider: "genai"}, // no API key
		Catalog:   &config.CatalogConfig{Dir: dir},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), offlineConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineDegradesWithoutEmbedding(t *testing.T) {
	e := newTestEngine(t)
	if e.oracle.Available() {
		t.Error("oracle should be unavailable without an embedding engine")
	}
	if e.patterns != nil {
		t.Error("pattern store should be skipped without an embedding engine")
	}
	if e.catalog.Snapshot().Len() != 2 {
		t.Errorf("catalog holds %d workflows, want 2", e.catalog.Snapshot().Len())
	}
}

func TestEngineDecideByKeyword(t *testing.T) {
	e := newTestEngine(t)
	result := e.Decide(context.Background(), "make me a phone case", nil)
	if result.Workflow != "phone_case" {
		t.Fatalf("matched %q, want phone_case", result.Workflow)
	}
	if !result.Matched() {
		t.Error("keyword hit should produce a match")
	}
}

func TestEngineDecideNoMatch(t *testing.T) {
	e := newTestEngine(t)
	result := e.Decide(context.Background(), "write me a poem", nil)
	if result.Matched() {
		t.Errorf("matched %q, want none", result.Workflow)
	}
	if result.Level != workflow.ConfidenceNone {
		t.Errorf("level = %s, want NONE", result.Level)
	}
}

func TestEngineProcessEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	decision, err := e.Process(context.Background(), "make me a thick phone case", nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if decision.Match.Workflow != "phone_case" {
		t.Fatalf("matched %q, want phone_case", decision.Match.Workflow)
	}
	if len(decision.Actions) == 0 {
		t.Fatal("no actions expanded")
	}

	// The "thick" modifier override must flow into the expanded params.
	if got := decision.Actions[0].Params["thickness"]; got != 0.6 {
		t.Errorf("thickness = %v, want the modifier override 0.6", got)
	}
	for _, a := range decision.Actions {
		if a.Provenance.Workflow != "phone_case" {
			t.Errorf("provenance workflow = %q", a.Provenance.Workflow)
		}
	}
}

func TestEngineProcessNoMatchHasNoActions(t *testing.T) {
	e := newTestEngine(t)
	decision, err := e.Process(context.Background(), "completely unrelated request", nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(decision.Actions) != 0 {
		t.Errorf("NONE match expanded %d actions", len(decision.Actions))
	}
}

func TestEngineExpandWorkflowDirectly(t *testing.T) {
	e := newTestEngine(t)
	actions, err := e.ExpandWorkflow(context.Background(), "gear", expand.Options{})
	if err != nil {
		t.Fatalf("ExpandWorkflow: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expanded %d actions, want 3", len(actions))
	}
	if actions[2].Tool != "mesh_extrude" {
		t.Errorf("tool = %q", actions[2].Tool)
	}
}

func TestEngineExpandUnknownWorkflow(t *testing.T) {
	e := newTestEngine(t)
	actions, err := e.ExpandWorkflow(context.Background(), "does_not_exist", expand.Options{})
	if err != nil {
		t.Fatalf("ExpandWorkflow: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("unknown workflow expanded %d actions", len(actions))
	}
}

func TestEngineRecordUsageWithoutStore(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RecordUsage(context.Background(), "make a gear", "gear", 0.9); err != nil {
		t.Errorf("RecordUsage without a store should be a no-op, got %v", err)
	}
}

func TestEngineReload(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(testCatalog), 0644); err != nil {
		t.Fatalf("writing catalog: %v", err)
	}
	cfg := &config.Config{
		Embedding: &config.EmbeddingConfig{Provider: "genai"},
		Catalog:   &config.CatalogConfig{Dir: dir},
	}
	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	extra := `workflows:
  - name: bracket
    description: Mounting bracket
    trigger_keywords: ["bracket"]
    steps:
      - tool: primitive_add
`
	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(extra), 0644); err != nil {
		t.Fatalf("writing extra catalog: %v", err)
	}
	if err := e.Reload(context.Background(), dir); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if e.catalog.Snapshot().Len() != 3 {
		t.Errorf("catalog holds %d workflows after reload, want 3", e.catalog.Snapshot().Len())
	}
}
