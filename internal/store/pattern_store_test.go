package store

import (
	"context"
	"path/filepath"
	"testing"
)

// fakeEngine produces deterministic low-dimensional embeddings so
// similarity ordering is predictable without a live backend.
type fakeEngine struct {
	vectors map[string][]float32
}

func (f *fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Name() string    { return "fake" }

func newTestStore(t *testing.T, engine *fakeEngine) *PatternStore {
	t.Helper()
	s, err := NewPatternStore(filepath.Join(t.TempDir(), "patterns.db"), engine)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndSearch(t *testing.T) {
	engine := &fakeEngine{vectors: map[string][]float32{
		"bevel the edges":  {1, 0, 0},
		"mirror the thing": {0, 1, 0},
	}}
	s := newTestStore(t, engine)
	ctx := context.Background()

	if err := s.RecordUsage(ctx, "bevel the edges", "bevel_edges", "", 1.0); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordUsage(ctx, "mirror the thing", "mirror_object", "symmetric_pair", 1.0); err != nil {
		t.Fatalf("record: %v", err)
	}

	matches, err := s.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Workflow != "bevel_edges" {
		t.Errorf("top match = %s, want bevel_edges", matches[0].Workflow)
	}
	if matches[0].Similarity <= matches[1].Similarity {
		t.Error("matches not sorted by similarity")
	}
	if matches[0].Rank != 1 || matches[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", matches[0].Rank, matches[1].Rank)
	}
}

func TestRecordUsageReinforces(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestStore(t, engine)
	ctx := context.Background()

	if err := s.RecordUsage(ctx, "subdivide it", "subdivide", "", 0.5); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordUsage(ctx, "subdivide it", "subdivide", "", 0.5); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	patterns, err := s.GetAllPatterns()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1 (upsert)", len(patterns))
	}
	if patterns[0].Confidence <= 0.5 {
		t.Errorf("confidence = %v, want reinforced above 0.5", patterns[0].Confidence)
	}
}

func TestRecordUsageValidation(t *testing.T) {
	s := newTestStore(t, &fakeEngine{})
	ctx := context.Background()

	if err := s.RecordUsage(ctx, "", "wf", "", 1.0); err == nil {
		t.Error("empty prompt accepted")
	}
	if err := s.RecordUsage(ctx, "prompt", "", "", 1.0); err == nil {
		t.Error("empty workflow accepted")
	}
}

func TestGetPatternsByWorkflow(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestStore(t, engine)
	ctx := context.Background()

	for _, p := range []string{"a", "b"} {
		if err := s.RecordUsage(ctx, p, "bevel_edges", "", 1.0); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := s.RecordUsage(ctx, "c", "mirror_object", "", 1.0); err != nil {
		t.Fatalf("record: %v", err)
	}

	patterns, err := s.GetPatternsByWorkflow("bevel_edges")
	if err != nil {
		t.Fatalf("get by workflow: %v", err)
	}
	if len(patterns) != 2 {
		t.Errorf("got %d patterns, want 2", len(patterns))
	}
}

func TestDeletePattern(t *testing.T) {
	s := newTestStore(t, &fakeEngine{})
	ctx := context.Background()

	if err := s.RecordUsage(ctx, "gone soon", "wf", "", 1.0); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.DeletePattern("gone soon"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	patterns, err := s.GetAllPatterns()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("got %d patterns after delete, want 0", len(patterns))
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t, &fakeEngine{})
	ctx := context.Background()

	if err := s.RecordUsage(ctx, "p1", "wf1", "", 1.0); err != nil {
		t.Fatalf("record: %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["total_patterns"] != int64(1) {
		t.Errorf("total_patterns = %v, want 1", stats["total_patterns"])
	}
	if stats["embedding_engine"] != "fake" {
		t.Errorf("embedding_engine = %v", stats["embedding_engine"])
	}
}

func TestBlobRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.25, 0}
	out := decodeFloat32SliceFromBlob(encodeFloat32SliceToBlob(in))
	if len(out) != len(in) {
		t.Fatalf("got %d values, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value %d: %v != %v", i, in[i], out[i])
		}
	}
	if decodeFloat32SliceFromBlob([]byte{1, 2, 3}) != nil {
		t.Error("misaligned blob accepted")
	}
}
