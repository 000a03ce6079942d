// Package store persists workflow usage patterns: which prompts led to
// which workflow, with embeddings for similarity search. The store backs
// the pattern matcher and lets the system recognize previously seen
// request shapes.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"meshnerd/internal/embedding"
	"meshnerd/internal/logging"
)

// UsagePattern is one recorded prompt-to-workflow association.
type UsagePattern struct {
	ID         int64
	Prompt     string
	Workflow   string
	Pattern    string // Structural pattern key, if one was detected
	Confidence float64
	CreatedAt  time.Time
}

// PatternMatch is a similarity search result over recorded patterns.
type PatternMatch struct {
	Prompt     string
	Workflow   string
	Pattern    string
	Confidence float64
	Similarity float64
	Rank       int
}

// PatternStore manages recorded usage patterns with embeddings in a
// local SQLite database. Search uses sqlite-vec when the extension is
// available and falls back to brute-force cosine similarity otherwise.
type PatternStore struct {
	db          *sql.DB
	embedEngine embedding.EmbeddingEngine
	dbPath      string
	mu          sync.RWMutex
}

// NewPatternStore creates or opens the pattern store at dbPath
// (e.g. ".meshnerd/patterns.db") and initializes the schema.
func NewPatternStore(dbPath string, engine embedding.EmbeddingEngine) (*PatternStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewPatternStore")
	defer timer.Stop()

	if dbPath == "" {
		return nil, fmt.Errorf("database path required")
	}

	logging.Store("Initializing pattern store at: %s", dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open pattern database: %v", err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		logging.Get(logging.CategoryStore).Error("Failed to ping pattern database: %v", err)
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	s := &PatternStore{
		db:          db,
		embedEngine: engine,
		dbPath:      dbPath,
	}

	if err := s.initializeSchema(); err != nil {
		db.Close()
		logging.Get(logging.CategoryStore).Error("Failed to initialize pattern schema: %v", err)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("Pattern store initialized")
	return s, nil
}

func (s *PatternStore) initializeSchema() error {
	patternsTable := `
	CREATE TABLE IF NOT EXISTS usage_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt TEXT NOT NULL UNIQUE,
		workflow TEXT NOT NULL,
		pattern TEXT,
		confidence REAL DEFAULT 1.0,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_usage_workflow ON usage_patterns(workflow);
	CREATE INDEX IF NOT EXISTS idx_usage_confidence ON usage_patterns(confidence);
	`

	if _, err := s.db.Exec(patternsTable); err != nil {
		return fmt.Errorf("failed to create usage_patterns table: %w", err)
	}

	dims := 768
	if s.embedEngine != nil {
		dims = s.embedEngine.Dimensions()
	}

	vecTable := fmt.Sprintf(`
	CREATE VIRTUAL TABLE IF NOT EXISTS vec_patterns USING vec0(
		embedding float[%d],
		prompt TEXT,
		workflow TEXT
	);
	`, dims)

	if _, err := s.db.Exec(vecTable); err != nil {
		// Not fatal: the vec extension may be absent, brute-force search
		// still works against the embedding blobs.
		logging.Get(logging.CategoryStore).Warn("Failed to create vec_patterns table (sqlite-vec may not be available): %v", err)
	} else {
		logging.StoreDebug("sqlite-vec table created with %d dimensions", dims)
	}

	return nil
}

// RecordUsage records that a prompt resolved to a workflow. Re-recording
// the same prompt reinforces its confidence.
func (s *PatternStore) RecordUsage(ctx context.Context, prompt, workflow, pattern string, confidence float64) error {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.RecordUsage")
	defer timer.Stop()

	if prompt == "" {
		return fmt.Errorf("prompt text required")
	}
	if workflow == "" {
		return fmt.Errorf("workflow name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embedEngine == nil {
		return fmt.Errorf("embedding engine not configured")
	}

	embeddingVec, err := s.embedEngine.Embed(ctx, prompt)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to embed prompt: %v", err)
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	embeddingBlob := encodeFloat32SliceToBlob(embeddingVec)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO usage_patterns (prompt, workflow, pattern, confidence, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(prompt) DO UPDATE SET
			workflow = excluded.workflow,
			pattern = excluded.pattern,
			confidence = MIN(1.0, confidence + 0.1),
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP
	`, prompt, workflow, pattern, confidence, embeddingBlob)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to insert usage pattern: %v", err)
		return fmt.Errorf("failed to insert pattern: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vec_patterns (embedding, prompt, workflow)
		VALUES (?, ?, ?)
	`, embeddingBlob, prompt, workflow); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to insert into vec_patterns (ANN may be unavailable): %v", err)
	}

	logging.Store("Usage pattern recorded: workflow=%s", workflow)
	return nil
}

// Search performs similarity search over recorded patterns.
func (s *PatternStore) Search(queryEmbedding []float32, topK int) ([]PatternMatch, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.Search")
	defer timer.Stop()

	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("pattern store not initialized")
	}

	queryBlob := encodeFloat32SliceToBlob(queryEmbedding)

	matches, err := s.searchVec(queryBlob, topK)
	if err != nil {
		logging.StoreDebug("Falling back to brute-force search: %v", err)
		return s.searchBruteForce(queryEmbedding, topK)
	}

	logging.StoreDebug("Pattern search returned %d matches", len(matches))
	return matches, nil
}

// searchVec performs ANN search using sqlite-vec.
func (s *PatternStore) searchVec(queryBlob []byte, topK int) ([]PatternMatch, error) {
	query := `
		SELECT
			up.prompt,
			up.workflow,
			up.pattern,
			up.confidence,
			vec_distance_cosine(vp.embedding, ?) AS distance
		FROM vec_patterns vp
		JOIN usage_patterns up ON vp.prompt = up.prompt
		WHERE up.confidence > 0.3
		ORDER BY distance ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, queryBlob, topK)
	if err != nil {
		return nil, fmt.Errorf("vec search failed: %w", err)
	}
	defer rows.Close()

	var matches []PatternMatch
	rank := 1
	for rows.Next() {
		var m PatternMatch
		var distance float64
		var pattern sql.NullString

		if err := rows.Scan(&m.Prompt, &m.Workflow, &pattern, &m.Confidence, &distance); err != nil {
			logging.Get(logging.CategoryStore).Warn("Failed to scan pattern row: %v", err)
			continue
		}

		m.Pattern = pattern.String
		m.Similarity = 1.0 - distance
		m.Rank = rank
		rank++
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// searchBruteForce performs brute-force cosine similarity search. Used
// as fallback when sqlite-vec is not available.
func (s *PatternStore) searchBruteForce(queryEmbedding []float32, topK int) ([]PatternMatch, error) {
	rows, err := s.db.Query(`
		SELECT prompt, workflow, pattern, confidence, embedding
		FROM usage_patterns
		WHERE confidence > 0.3
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var candidates []PatternMatch
	for rows.Next() {
		var m PatternMatch
		var pattern sql.NullString
		var embeddingBlob []byte

		if err := rows.Scan(&m.Prompt, &m.Workflow, &pattern, &m.Confidence, &embeddingBlob); err != nil {
			continue
		}

		vec := decodeFloat32SliceFromBlob(embeddingBlob)
		if len(vec) == 0 {
			continue
		}

		similarity, err := embedding.CosineSimilarity(queryEmbedding, vec)
		if err != nil {
			continue
		}

		m.Pattern = pattern.String
		m.Similarity = similarity
		candidates = append(candidates, m)
	}

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].Similarity > candidates[i].Similarity {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates, rows.Err()
}

// GetAllPatterns returns every stored pattern, most confident first.
func (s *PatternStore) GetAllPatterns() ([]UsagePattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, prompt, workflow, pattern, confidence, created_at
		FROM usage_patterns
		ORDER BY confidence DESC, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []UsagePattern
	for rows.Next() {
		var p UsagePattern
		var pattern sql.NullString
		if err := rows.Scan(&p.ID, &p.Prompt, &p.Workflow, &pattern, &p.Confidence, &p.CreatedAt); err != nil {
			logging.Get(logging.CategoryStore).Warn("Failed to scan pattern row: %v", err)
			continue
		}
		p.Pattern = pattern.String
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// GetPatternsByWorkflow returns active patterns for one workflow.
func (s *PatternStore) GetPatternsByWorkflow(workflow string) ([]UsagePattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, prompt, workflow, pattern, confidence, created_at
		FROM usage_patterns
		WHERE workflow = ? AND confidence > 0.3
		ORDER BY confidence DESC
	`, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns by workflow: %w", err)
	}
	defer rows.Close()

	var patterns []UsagePattern
	for rows.Next() {
		var p UsagePattern
		var pattern sql.NullString
		if err := rows.Scan(&p.ID, &p.Prompt, &p.Workflow, &pattern, &p.Confidence, &p.CreatedAt); err != nil {
			continue
		}
		p.Pattern = pattern.String
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// DecayConfidence reduces the confidence of patterns that have not been
// reinforced recently and prunes those that have faded out entirely.
func (s *PatternStore) DecayConfidence(decayFactor float64, olderThanDays int) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.DecayConfidence")
	defer timer.Stop()

	if decayFactor <= 0 || decayFactor >= 1 {
		decayFactor = 0.9
	}
	if olderThanDays <= 0 {
		olderThanDays = 7
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store("Decaying pattern confidence (factor=%.2f, older than %d days)", decayFactor, olderThanDays)

	result, err := s.db.Exec(`
		UPDATE usage_patterns
		SET confidence = confidence * ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE datetime(updated_at) < datetime('now', '-' || ? || ' days')
	`, decayFactor, olderThanDays)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to decay pattern confidence: %v", err)
		return 0, fmt.Errorf("failed to decay confidence: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()

	pruneResult, err := s.db.Exec(`DELETE FROM usage_patterns WHERE confidence < 0.1`)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to prune faded patterns: %v", err)
	} else {
		pruned, _ := pruneResult.RowsAffected()
		if pruned > 0 {
			logging.Store("Pruned %d faded patterns (confidence < 0.1)", pruned)
		}
	}

	return int(rowsAffected), nil
}

// DeletePattern removes one recorded pattern by prompt.
func (s *PatternStore) DeletePattern(prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM usage_patterns WHERE prompt = ?", prompt); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to delete pattern: %v", err)
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM vec_patterns WHERE prompt = ?", prompt); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to delete from vec_patterns: %v", err)
	}
	return nil
}

// GetStats returns statistics about the recorded patterns.
func (s *PatternStore) GetStats() (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	var total int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM usage_patterns").Scan(&total); err == nil {
		stats["total_patterns"] = total
	}

	var active int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM usage_patterns WHERE confidence > 0.3").Scan(&active); err == nil {
		stats["active_patterns"] = active
	}

	var avgConfidence float64
	if err := s.db.QueryRow("SELECT COALESCE(AVG(confidence), 0) FROM usage_patterns").Scan(&avgConfidence); err == nil {
		stats["avg_confidence"] = avgConfidence
	}

	workflowRows, err := s.db.Query("SELECT workflow, COUNT(*) FROM usage_patterns GROUP BY workflow ORDER BY COUNT(*) DESC")
	if err == nil {
		byWorkflow := make(map[string]int64)
		for workflowRows.Next() {
			var workflow string
			var count int64
			if err := workflowRows.Scan(&workflow, &count); err == nil {
				byWorkflow[workflow] = count
			}
		}
		workflowRows.Close()
		stats["by_workflow"] = byWorkflow
	}

	if s.embedEngine != nil {
		stats["embedding_engine"] = s.embedEngine.Name()
		stats["embedding_dimensions"] = s.embedEngine.Dimensions()
	} else {
		stats["embedding_engine"] = "none"
	}
	stats["db_path"] = s.dbPath

	return stats, nil
}

// SetEmbeddingEngine configures or replaces the embedding engine. Can
// be called after creation if the engine was not available initially.
func (s *PatternStore) SetEmbeddingEngine(engine embedding.EmbeddingEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.Store("Setting embedding engine for pattern store: %s", engine.Name())
	s.embedEngine = engine

	vecTable := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_patterns USING vec0(
			embedding float[%d],
			prompt TEXT,
			workflow TEXT
		);
	`, engine.Dimensions())
	if _, err := s.db.Exec(vecTable); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to create/update vec_patterns table: %v", err)
	}
}

// Close closes the database connection.
func (s *PatternStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to close pattern database: %v", err)
			return err
		}
		s.db = nil
	}
	logging.Store("Pattern store closed")
	return nil
}

// encodeFloat32SliceToBlob encodes a float32 slice as a binary blob for
// sqlite-vec. Little-endian, as the extension expects.
func encodeFloat32SliceToBlob(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}

// decodeFloat32SliceFromBlob decodes a binary blob back to a float32 slice.
func decodeFloat32SliceFromBlob(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	reader := bytes.NewReader(blob)
	if err := binary.Read(reader, binary.LittleEndian, &vec); err != nil {
		return nil
	}
	return vec
}
