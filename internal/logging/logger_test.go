package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func resetLoggingState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
	logLevel = LevelInfo
}

func writeTestConfig(t *testing.T, tempDir, content string) {
	t.Helper()
	configDir := filepath.Join(tempDir, ".meshnerd")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	writeTestConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`)

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategoryCatalog, CategoryEval, CategoryMatching,
		CategoryModifiers, CategoryExpansion, CategorySimulation,
		CategoryAdaptation, CategoryEmbedding, CategoryStore,
	}

	for _, cat := range categories {
		Get(cat).Info("test message for %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".meshnerd", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	found := make(map[string]bool)
	for _, e := range entries {
		for _, cat := range categories {
			if strings.HasSuffix(e.Name(), string(cat)+".log") {
				found[string(cat)] = true
			}
		}
	}

	for _, cat := range categories {
		if !found[string(cat)] {
			t.Errorf("Expected log file for category %s", cat)
		}
	}
}

// TestProductionModeNoLogs verifies logging is a silent no-op without debug_mode
func TestProductionModeNoLogs(t *testing.T) {
	tempDir := t.TempDir()

	resetLoggingState()
	defer resetLoggingState()

	// No config file at all = production mode
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled without config")
	}

	Get(CategoryMatching).Info("should not be written")

	if _, err := os.Stat(filepath.Join(tempDir, ".meshnerd", "logs")); !os.IsNotExist(err) {
		t.Error("Expected no logs directory in production mode")
	}
}

// TestCategoryFiltering verifies disabled categories return no-op loggers
func TestCategoryFiltering(t *testing.T) {
	tempDir := t.TempDir()

	writeTestConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"matching": true,
				"expansion": false
			}
		}
	}`)

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsCategoryEnabled(CategoryMatching) {
		t.Error("Expected matching category enabled")
	}
	if IsCategoryEnabled(CategoryExpansion) {
		t.Error("Expected expansion category disabled")
	}
	// Unlisted categories default to enabled
	if !IsCategoryEnabled(CategoryEval) {
		t.Error("Expected unlisted category enabled by default")
	}

	if l := Get(CategoryExpansion); l.logger != nil {
		t.Error("Expected no-op logger for disabled category")
	}
}

// TestConcurrentLogging exercises Get/log from multiple goroutines
func TestConcurrentLogging(t *testing.T) {
	tempDir := t.TempDir()

	writeTestConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true
		}
	}`)

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				Get(CategoryExpansion).Debug("goroutine %d message %d", n, j)
			}
		}(i)
	}
	wg.Wait()
	CloseAll()
}

// TestRequestLogger verifies request-scoped formatting does not panic on no-op loggers
func TestRequestLogger(t *testing.T) {
	resetLoggingState()

	rl := WithRequestID(CategoryMatching, "req-123").WithField("workflow", "create_table")
	rl.Info("decision made")
	rl.Debug("details")
	rl.Error("failure path")
}

// TestTimer verifies StartTimer/Stop on disabled logging
func TestTimer(t *testing.T) {
	resetLoggingState()

	timer := StartTimer(CategoryEval, "unit-test-op")
	if d := timer.Stop(); d < 0 {
		t.Errorf("Expected non-negative duration, got %v", d)
	}
}
