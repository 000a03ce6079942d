// Package config holds meshNERD configuration from .meshnerd/config.json.
// A missing file yields a usable default configuration; environment
// variables override selected fields after the file is read.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"meshnerd/internal/embedding"
	"meshnerd/internal/match"
	"meshnerd/internal/semantic"
)

// Config is the single source of truth for configuration.
type Config struct {
	// Embedding engine for semantic matching and learned patterns.
	Embedding *EmbeddingConfig `json:"embedding,omitempty"`

	// Matching thresholds and weights for the ensemble.
	Matching *MatchingConfig `json:"matching,omitempty"`

	// Expansion limits and adaptation threshold.
	Expansion *ExpansionConfig `json:"expansion,omitempty"`

	// Catalog holds workflow definition loading settings.
	Catalog *CatalogConfig `json:"catalog,omitempty"`

	// Store holds the learned pattern database settings.
	Store *StoreConfig `json:"store,omitempty"`
}

// EmbeddingConfig selects and parameterizes the embedding provider.
type EmbeddingConfig struct {
	// Provider: "ollama" (default, local) or "genai" (Gemini API).
	Provider string `json:"provider,omitempty"`

	OllamaEndpoint string `json:"ollama_endpoint,omitempty"`
	OllamaModel    string `json:"ollama_model,omitempty"`

	GenAIAPIKey string `json:"genai_api_key,omitempty"`
	GenAIModel  string `json:"genai_model,omitempty"`
}

// MatchingConfig tunes the ensemble. Zero values fall back to the
// built-in defaults; Threshold uses a pointer so an explicit 0 (or the
// -1 disable sentinel) survives the round trip.
type MatchingConfig struct {
	KeywordWeight  float64  `json:"keyword_weight,omitempty"`
	SemanticWeight float64  `json:"semantic_weight,omitempty"`
	PatternWeight  float64  `json:"pattern_weight,omitempty"`
	PatternBoost   float64  `json:"pattern_boost,omitempty"`
	Threshold      *float64 `json:"threshold,omitempty"`
}

// ExpansionConfig tunes expansion and adaptation.
type ExpansionConfig struct {
	StepLimit           int     `json:"step_limit,omitempty"`
	AdaptationThreshold float64 `json:"adaptation_threshold,omitempty"`
}

// CatalogConfig locates workflow definitions.
type CatalogConfig struct {
	// Dir is the workflow YAML directory, relative to the workspace
	// root unless absolute.
	Dir string `json:"dir,omitempty"`

	// Watch enables hot reload of the catalog directory.
	Watch bool `json:"watch,omitempty"`
}

// StoreConfig locates the learned pattern database.
type StoreConfig struct {
	// Path is the sqlite database file, relative to the workspace root
	// unless absolute. Empty disables the pattern store.
	Path string `json:"path,omitempty"`
}

// DefaultCatalogDir is where workflow definitions live when the config
// doesn't say otherwise.
const DefaultCatalogDir = "workflows"

// DefaultStorePath is the learned pattern database location.
const DefaultStorePath = ".meshnerd/patterns.db"

// GetEmbeddingConfig returns the embedding config with defaults applied.
func (c *Config) GetEmbeddingConfig() embedding.Config {
	cfg := embedding.DefaultConfig()
	if c.Embedding == nil {
		return cfg
	}
	if c.Embedding.Provider != "" {
		cfg.Provider = c.Embedding.Provider
	}
	if c.Embedding.OllamaEndpoint != "" {
		cfg.OllamaEndpoint = c.Embedding.OllamaEndpoint
	}
	if c.Embedding.OllamaModel != "" {
		cfg.OllamaModel = c.Embedding.OllamaModel
	}
	if c.Embedding.GenAIAPIKey != "" {
		cfg.GenAIAPIKey = c.Embedding.GenAIAPIKey
	}
	if c.Embedding.GenAIModel != "" {
		cfg.GenAIModel = c.Embedding.GenAIModel
	}
	return cfg
}

// GetMatchConfig returns the ensemble config with defaults applied.
func (c *Config) GetMatchConfig() match.Config {
	cfg := match.DefaultConfig()
	if c.Matching == nil {
		return cfg
	}
	if c.Matching.KeywordWeight > 0 {
		cfg.KeywordWeight = c.Matching.KeywordWeight
	}
	if c.Matching.SemanticWeight > 0 {
		cfg.SemanticWeight = c.Matching.SemanticWeight
	}
	if c.Matching.PatternWeight > 0 {
		cfg.PatternWeight = c.Matching.PatternWeight
	}
	if c.Matching.PatternBoost > 0 {
		cfg.PatternBoost = c.Matching.PatternBoost
	}
	return cfg
}

// GetOracleConfig returns the semantic oracle config with defaults
// applied. An explicit threshold of -1 disables threshold filtering.
func (c *Config) GetOracleConfig() semantic.Config {
	cfg := semantic.DefaultConfig()
	if c.Matching != nil && c.Matching.Threshold != nil {
		cfg.MatchThreshold = *c.Matching.Threshold
	}
	return cfg
}

// GetExpansionLimit returns the configured step ceiling, or 0 for the
// built-in default.
func (c *Config) GetExpansionLimit() int {
	if c.Expansion == nil {
		return 0
	}
	return c.Expansion.StepLimit
}

// GetAdaptationThreshold returns the configured similarity threshold
// for optional-step inclusion, or 0 for the built-in default.
func (c *Config) GetAdaptationThreshold() float64 {
	if c.Expansion == nil {
		return 0
	}
	return c.Expansion.AdaptationThreshold
}

// GetCatalogDir returns the workflow directory, resolved against the
// workspace root when relative.
func (c *Config) GetCatalogDir() string {
	dir := DefaultCatalogDir
	if c.Catalog != nil && c.Catalog.Dir != "" {
		dir = c.Catalog.Dir
	}
	return resolveWorkspacePath(dir)
}

// WatchCatalog reports whether hot reload is enabled.
func (c *Config) WatchCatalog() bool {
	return c.Catalog != nil && c.Catalog.Watch
}

// GetStorePath returns the pattern database path, resolved against the
// workspace root when relative.
func (c *Config) GetStorePath() string {
	path := DefaultStorePath
	if c.Store != nil && c.Store.Path != "" {
		path = c.Store.Path
	}
	return resolveWorkspacePath(path)
}

func resolveWorkspacePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	root, err := FindWorkspaceRoot()
	if err != nil {
		return path
	}
	return filepath.Join(root, path)
}

// DefaultConfigPath returns the default path to .meshnerd/config.json.
func DefaultConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return filepath.Join(".meshnerd", "config.json")
	}
	return filepath.Join(root, ".meshnerd", "config.json")
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .meshnerd directory or a go.mod. Falls back to the working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".meshnerd")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// Load reads configuration from path. A missing file yields an empty
// config, not an error. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides layers environment variables over the file values.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.Embedding == nil {
			c.Embedding = &EmbeddingConfig{}
		}
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if endpoint := os.Getenv("OLLAMA_HOST"); endpoint != "" {
		if c.Embedding == nil {
			c.Embedding = &EmbeddingConfig{}
		}
		c.Embedding.OllamaEndpoint = endpoint
	}
	if path := os.Getenv("MESHNERD_DB"); path != "" {
		if c.Store == nil {
			c.Store = &StoreConfig{}
		}
		c.Store.Path = path
	}
	if dir := os.Getenv("MESHNERD_WORKFLOWS"); dir != "" {
		if c.Catalog == nil {
			c.Catalog = &CatalogConfig{}
		}
		c.Catalog.Dir = dir
	}
}
