// Package workflow defines the shared entities of the decision layer:
// workflow definitions and steps, loop specifications, parameter schemas,
// matcher/ensemble/adaptation results, and the catalog that holds
// loaded definitions.
package workflow

import (
	"fmt"
)

// ParamType enumerates the declared parameter schema types.
type ParamType string

const (
	TypeFloat  ParamType = "float"
	TypeInt    ParamType = "int"
	TypeBool   ParamType = "bool"
	TypeString ParamType = "string"
)

// ValidParamType reports whether t is one of the declared schema types.
func ValidParamType(t ParamType) bool {
	switch t {
	case TypeFloat, TypeInt, TypeBool, TypeString:
		return true
	}
	return false
}

// ParameterSchema declares one workflow parameter: its type, optional
// numeric range, default, optional computed expression with explicit
// dependency names, semantic hint phrases, and an optional group tag.
type ParameterSchema struct {
	Name          string        `yaml:"name"`
	Type          ParamType     `yaml:"type"`
	Min           *float64      `yaml:"min,omitempty"`
	Max           *float64      `yaml:"max,omitempty"`
	Default       interface{}   `yaml:"default,omitempty"`
	Expression    string        `yaml:"expression,omitempty"`
	DependsOn     []string      `yaml:"depends_on,omitempty"`
	SemanticHints []string      `yaml:"semantic_hints,omitempty"`
	Group         string        `yaml:"group,omitempty"`
}

// Computed reports whether the parameter carries a computed expression.
func (p ParameterSchema) Computed() bool { return p.Expression != "" }

// LoopSpec describes step repetition. Either the single-variable form
// (Variable with Values or Range) or the multi-variable form (Variables
// with Ranges, expanded as a cross product with the first variable
// varying slowest). Range bounds may be arithmetic expressions that must
// evaluate to integers. Adjacent steps sharing a non-empty Group and an
// identical iteration space expand interleaved.
type LoopSpec struct {
	Variable  string          `yaml:"variable,omitempty"`
	Values    []interface{}   `yaml:"values,omitempty"`
	Range     []interface{}   `yaml:"range,omitempty"`
	Variables []string        `yaml:"variables,omitempty"`
	Ranges    [][]interface{} `yaml:"ranges,omitempty"`
	Group     string          `yaml:"group,omitempty"`
}

// MultiVariable reports whether the spec uses the cross-product form.
func (l *LoopSpec) MultiVariable() bool { return len(l.Variables) > 0 }

// Validate checks structural sanity of the loop specification.
func (l *LoopSpec) Validate() error {
	if l.MultiVariable() {
		if l.Variable != "" || len(l.Values) > 0 || len(l.Range) > 0 {
			return fmt.Errorf("loop mixes single-variable and multi-variable forms")
		}
		if len(l.Ranges) != len(l.Variables) {
			return fmt.Errorf("loop declares %d variables but %d ranges", len(l.Variables), len(l.Ranges))
		}
		for i, r := range l.Ranges {
			if len(r) != 2 {
				return fmt.Errorf("loop range %d must have exactly [start, end]", i)
			}
		}
		return nil
	}
	if l.Variable == "" {
		return fmt.Errorf("loop missing variable name")
	}
	if len(l.Values) > 0 && len(l.Range) > 0 {
		return fmt.Errorf("loop declares both values and range")
	}
	if len(l.Values) == 0 && len(l.Range) == 0 {
		return fmt.Errorf("loop declares neither values nor range")
	}
	if len(l.Range) > 0 && len(l.Range) != 2 {
		return fmt.Errorf("loop range must have exactly [start, end]")
	}
	return nil
}

// Clone returns a deep copy of the loop spec.
func (l *LoopSpec) Clone() *LoopSpec {
	if l == nil {
		return nil
	}
	out := &LoopSpec{
		Variable: l.Variable,
		Group:    l.Group,
	}
	out.Values = append([]interface{}(nil), l.Values...)
	out.Range = append([]interface{}(nil), l.Range...)
	out.Variables = append([]string(nil), l.Variables...)
	for _, r := range l.Ranges {
		out.Ranges = append(out.Ranges, append([]interface{}(nil), r...))
	}
	return out
}

// WorkflowStep is one unit of a workflow: a tool identifier plus
// parameters, optionally conditional, optional (skippable under low
// confidence), tagged, and looped. DependsOn is interpolation-only
// metadata, not a scheduling constraint.
type WorkflowStep struct {
	ID          string                 `yaml:"id,omitempty"`
	Tool        string                 `yaml:"tool"`
	Params      map[string]interface{} `yaml:"params,omitempty"`
	Description string                 `yaml:"description,omitempty"`
	Condition   string                 `yaml:"condition,omitempty"`
	Optional    bool                   `yaml:"optional,omitempty"`
	Tags        []string               `yaml:"tags,omitempty"`
	Loop        *LoopSpec              `yaml:"loop,omitempty"`
	DependsOn   []string               `yaml:"depends_on,omitempty"`
}

// Clone returns a deep copy of the step, including nested params.
func (s WorkflowStep) Clone() WorkflowStep {
	out := s
	out.Params = deepCopyMap(s.Params)
	out.Tags = append([]string(nil), s.Tags...)
	out.DependsOn = append([]string(nil), s.DependsOn...)
	out.Loop = s.Loop.Clone()
	return out
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return t
	}
}

// Modifier is one phrase-triggered set of parameter overrides. The
// declaration order matters: later-declared keys win merge conflicts.
type Modifier struct {
	Phrase    string                 `yaml:"phrase"`
	Overrides map[string]interface{} `yaml:"overrides"`
}

// WorkflowDefinition is a named, ordered template of steps together
// with its matching triggers and parameter declarations. Definitions
// are immutable for the duration of one expansion.
type WorkflowDefinition struct {
	Name            string                 `yaml:"name"`
	Description     string                 `yaml:"description,omitempty"`
	Steps           []WorkflowStep         `yaml:"steps"`
	TriggerKeywords []string               `yaml:"trigger_keywords,omitempty"`
	TriggerPattern  string                 `yaml:"trigger_pattern,omitempty"`
	SamplePrompts   []string               `yaml:"sample_prompts,omitempty"`
	Defaults        map[string]interface{} `yaml:"defaults,omitempty"`
	Modifiers       []Modifier             `yaml:"modifiers,omitempty"`
	Parameters      []ParameterSchema      `yaml:"parameters,omitempty"`
}

// Validate checks a definition for structural problems. Called at the
// loader boundary so the core never re-checks input shape.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow missing name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", d.Name)
	}
	for i, step := range d.Steps {
		if step.Tool == "" {
			return fmt.Errorf("workflow %q step %d missing tool", d.Name, i)
		}
		if step.Loop != nil {
			if err := step.Loop.Validate(); err != nil {
				return fmt.Errorf("workflow %q step %d: %w", d.Name, i, err)
			}
		}
	}
	for _, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("workflow %q has a parameter without a name", d.Name)
		}
		if p.Type != "" && !ValidParamType(p.Type) {
			return fmt.Errorf("workflow %q parameter %q has invalid type %q", d.Name, p.Name, p.Type)
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("workflow %q parameter %q has min > max", d.Name, p.Name)
		}
	}
	return nil
}

// HasOptionalSteps reports whether any step is optional; a workflow
// without optional steps is adaptation-inert at every confidence level.
func (d *WorkflowDefinition) HasOptionalSteps() bool {
	for _, s := range d.Steps {
		if s.Optional {
			return true
		}
	}
	return false
}

// MatchContext carries the caller-supplied request context consumed by
// matching and condition simulation: the detected structural pattern,
// current mode, selection state and object counters.
type MatchContext map[string]interface{}

// ContextKeyDetectedPattern is the context key the upstream structural
// pattern detector fills in; its absence disables the pattern matcher.
const ContextKeyDetectedPattern = "detected_pattern"

// DetectedPattern returns the structural pattern key, if present.
func (c MatchContext) DetectedPattern() string {
	if c == nil {
		return ""
	}
	if v, ok := c[ContextKeyDetectedPattern].(string); ok {
		return v
	}
	return ""
}
