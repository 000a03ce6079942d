package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCatalogYAML = `
workflows:
  - name: bevel_edges
    description: Bevel the selected edges
    trigger_keywords: [bevel, chamfer, "round edge"]
    defaults:
      width: 0.5
      segments: 2
    modifiers:
      - phrase: slightly
        overrides: {width: 0.2}
      - phrase: heavily
        overrides: {width: 1.5, segments: 4}
    steps:
      - tool: mesh.select_all
      - tool: mesh.bevel
        params:
          width: $width
          segments: $segments
  - name: mirror_object
    description: Mirror the object across an axis
    steps:
      - tool: object.mirror
        params: {axis: X}
`

func writeCatalogFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestParseDefinitionsList(t *testing.T) {
	defs, err := ParseDefinitions([]byte(sampleCatalogYAML), "test.yaml")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d workflows, want 2", len(defs))
	}
	if defs[0].Name != "bevel_edges" || defs[1].Name != "mirror_object" {
		t.Errorf("names = %s, %s", defs[0].Name, defs[1].Name)
	}
	if len(defs[0].Modifiers) != 2 {
		t.Fatalf("got %d modifiers, want 2", len(defs[0].Modifiers))
	}
	// Declaration order of modifiers is preserved.
	if defs[0].Modifiers[0].Phrase != "slightly" || defs[0].Modifiers[1].Phrase != "heavily" {
		t.Errorf("modifier order = %s, %s", defs[0].Modifiers[0].Phrase, defs[0].Modifiers[1].Phrase)
	}
	if w, ok := AsFloat(defs[0].Defaults["width"]); !ok || w != 0.5 {
		t.Errorf("default width = %v", defs[0].Defaults["width"])
	}
}

func TestParseDefinitionsSingle(t *testing.T) {
	data := []byte(`
name: solo
steps:
  - tool: mesh.subdivide
`)
	defs, err := ParseDefinitions(data, "solo.yaml")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "solo" {
		t.Fatalf("unexpected result: %+v", defs)
	}
}

func TestParseDefinitionsInvalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no steps", "name: broken\n"},
		{"step without tool", "name: broken\nsteps:\n  - params: {x: 1}\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		if _, err := ParseDefinitions([]byte(tc.data), tc.name); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestLoadDirectoryOrder(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "b_second.yaml", "name: second\nsteps:\n  - tool: t2\n")
	writeCatalogFile(t, dir, "a_first.yml", "name: first\nsteps:\n  - tool: t1\n")
	writeCatalogFile(t, dir, "ignored.txt", "not a workflow")

	defs, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d workflows, want 2", len(defs))
	}
	// Files load in sorted filename order.
	if defs[0].Name != "first" || defs[1].Name != "second" {
		t.Errorf("order = %s, %s", defs[0].Name, defs[1].Name)
	}
}

func TestLoadDirectoryMissing(t *testing.T) {
	if _, err := LoadDirectory(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestAsFloat(t *testing.T) {
	cases := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{3, 3, true},
		{int64(4), 4, true},
		{2.5, 2.5, true},
		{float32(1.5), 1.5, true},
		{true, 1, true},
		{false, 0, true},
		{"nope", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := AsFloat(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("AsFloat(%v) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
