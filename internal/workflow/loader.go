package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"meshnerd/internal/logging"
)

// catalogFile is the YAML shape of one definitions file: either a
// single workflow at the top level or a "workflows" list.
type catalogFile struct {
	Workflows []*WorkflowDefinition `yaml:"workflows"`
}

// LoadFile parses one YAML file into workflow definitions.
func LoadFile(path string) ([]*WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseDefinitions(data, path)
}

// ParseDefinitions parses YAML bytes into validated definitions. The
// source name is only used in error messages.
func ParseDefinitions(data []byte, source string) ([]*WorkflowDefinition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}

	defs := file.Workflows
	if len(defs) == 0 {
		// Fall back to a single top-level definition.
		var single WorkflowDefinition
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", source, err)
		}
		if single.Name == "" {
			return nil, fmt.Errorf("%s contains no workflow definitions", source)
		}
		defs = []*WorkflowDefinition{&single}
	}

	for _, d := range defs {
		normalizeDefinition(d)
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
	}
	return defs, nil
}

// LoadDirectory loads every .yaml/.yml file in dir, sorted by filename
// so catalog order is stable across runs.
func LoadDirectory(dir string) ([]*WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	var defs []*WorkflowDefinition
	for _, path := range paths {
		fileDefs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}

	logging.Catalog("Loaded %d workflows from %s (%d files)", len(defs), dir, len(paths))
	return defs, nil
}

// normalizeDefinition smooths over duck-typed YAML input: nested
// interface maps in params and defaults become map[string]interface{}
// recursively, and scalar shorthand in modifier overrides is kept as-is.
func normalizeDefinition(d *WorkflowDefinition) {
	d.Defaults = normalizeMap(d.Defaults)
	for i := range d.Steps {
		d.Steps[i].Params = normalizeMap(d.Steps[i].Params)
	}
	for i := range d.Modifiers {
		d.Modifiers[i].Overrides = normalizeMap(d.Modifiers[i].Overrides)
	}
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return normalizeMap(t)
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[fmt.Sprintf("%v", k)] = normalizeValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return t
	}
}

// AsFloat coerces YAML-decoded scalars to float64. Bools map to 1 and
// 0 so numeric comparisons over context flags behave uniformly.
func AsFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
