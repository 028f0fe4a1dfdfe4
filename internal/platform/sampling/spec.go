// Package sampling draws concrete field values from declarative
// randomization specs. A spec names a distribution with base parameters and
// optional parameter overrides keyed by patient gender, age group, and
// active conditions. Disease modifiers compose in template declaration
// order by per-parameter replacement, and the run's randomization level
// scales dispersion only, so condition-driven central tendencies survive
// any level.
package sampling

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/synthrec/synthrec/internal/platform/expr"
)

// Distribution identifies a supported sampling distribution.
type Distribution string

const (
	Normal      Distribution = "normal"
	LogNormal   Distribution = "lognormal"
	Uniform     Distribution = "uniform"
	Categorical Distribution = "categorical"
)

// IsValid reports whether the distribution is one of the supported kinds.
func (d Distribution) IsValid() bool {
	switch d {
	case Normal, LogNormal, Uniform, Categorical:
		return true
	}
	return false
}

func (d Distribution) String() string { return string(d) }

// Level is the run-wide dispersion scale.
type Level string

const (
	Conservative Level = "conservative"
	Moderate     Level = "moderate"
	High         Level = "high"
)

// IsValid reports whether the level is one of the supported values.
func (l Level) IsValid() bool {
	switch l {
	case Conservative, Moderate, High:
		return true
	}
	return false
}

func (l Level) String() string { return string(l) }

// Multiplier returns the dispersion scale factor for the level. It applies
// to std (normal, lognormal) and to the half-range about the midpoint
// (uniform); never to means, midpoints, or categorical weights.
func (l Level) Multiplier() float64 {
	switch l {
	case Conservative:
		return 0.5
	case High:
		return 1.5
	}
	return 1.0
}

// ParseLevel validates a level string.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.IsValid() {
		return "", fmt.Errorf("invalid randomization level %q (want conservative, moderate, or high)", s)
	}
	return l, nil
}

// Age group thresholds for age modifiers.
const (
	ElderlyAge = 65
	YoungAge   = 30
)

// ModifierParams overrides a subset of a spec's base parameters. Nil fields
// carry the current value through.
type ModifierParams struct {
	Mean *float64
	Std  *float64
	Min  *float64
	Max  *float64
}

// ConditionModifier is a disease modifier entry in template declaration
// order.
type ConditionModifier struct {
	Condition string
	Params    ModifierParams
}

// CriticalBounds clamps a drawn value into a physiologically survivable
// range.
type CriticalBounds struct {
	Low  *float64
	High *float64
}

// Spec is a parsed randomization block.
type Spec struct {
	Distribution Distribution

	// Normal / lognormal parameters.
	Mean float64
	Std  float64

	// Uniform parameters.
	Min float64
	Max float64

	// Categorical parameters. Weights may be empty for an even draw.
	Choices []expr.Value
	Weights []float64

	// Overrides, applied gender then age then disease.
	GenderModifiers  map[string]ModifierParams
	AgeModifiers     map[string]ModifierParams
	DiseaseModifiers []ConditionModifier

	Critical *CriticalBounds

	// Integer marks specs whose base parameters were all declared as
	// integers; draws round to whole numbers. Precision overrides the
	// default of two decimals for non-integer specs.
	Integer   bool
	Precision *int
}

// Validate checks semantic coherence of the parameters for the declared
// distribution.
func (s *Spec) Validate() error {
	switch s.Distribution {
	case Normal:
		if s.Std < 0 {
			return fmt.Errorf("normal distribution requires std >= 0, got %g", s.Std)
		}
	case LogNormal:
		if s.Mean <= 0 {
			return fmt.Errorf("lognormal distribution requires mean > 0, got %g", s.Mean)
		}
		if s.Std < 0 {
			return fmt.Errorf("lognormal distribution requires std >= 0, got %g", s.Std)
		}
	case Uniform:
		if s.Min > s.Max {
			return fmt.Errorf("uniform distribution requires min <= max, got [%g, %g]", s.Min, s.Max)
		}
	case Categorical:
		if len(s.Choices) == 0 {
			return fmt.Errorf("categorical distribution requires at least one choice")
		}
		if len(s.Weights) > 0 && len(s.Weights) != len(s.Choices) {
			return fmt.Errorf("categorical distribution has %d choices but %d weights", len(s.Choices), len(s.Weights))
		}
		total := 0.0
		for _, w := range s.Weights {
			if w < 0 {
				return fmt.Errorf("categorical weight %g is negative", w)
			}
			total += w
		}
		if len(s.Weights) > 0 && total == 0 {
			return fmt.Errorf("categorical weights sum to zero")
		}
	default:
		return fmt.Errorf("unknown distribution %q", s.Distribution)
	}
	return nil
}

// specKeys are the mapping keys the unmarshaler owns. Foreign keys (unit,
// reference_range, ...) belong to the enclosing template field and are
// skipped here.
var specKeys = map[string]bool{
	"distribution": true, "mean": true, "std": true, "min": true, "max": true,
	"choices": true, "weights": true, "precision": true,
	"critical_values": true, "gender_modifiers": true, "age_modifiers": true,
	"disease_modifiers": true,
}

// OwnsKey reports whether a mapping key is consumed by the spec
// unmarshaler.
func OwnsKey(key string) bool { return specKeys[key] }

// UnmarshalYAML parses a randomization block from a mapping node. It walks
// the node directly so disease-modifier declaration order survives, and it
// records whether the base parameters were declared as integers.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("randomization block must be a mapping")
	}

	intParams := true
	sawNumeric := false
	seen := make(map[string]bool)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		if seen[key] {
			return fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = true

		switch key {
		case "distribution":
			s.Distribution = Distribution(val.Value)
		case "mean", "std", "min", "max":
			f, isInt, err := scalarFloat(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			sawNumeric = true
			if !isInt {
				intParams = false
			}
			switch key {
			case "mean":
				s.Mean = f
			case "std":
				s.Std = f
			case "min":
				s.Min = f
			case "max":
				s.Max = f
			}
		case "choices":
			if val.Kind != yaml.SequenceNode {
				return fmt.Errorf("choices must be a sequence")
			}
			for _, c := range val.Content {
				s.Choices = append(s.Choices, scalarValue(c))
			}
		case "weights":
			if val.Kind != yaml.SequenceNode {
				return fmt.Errorf("weights must be a sequence")
			}
			for _, w := range val.Content {
				f, _, err := scalarFloat(w)
				if err != nil {
					return fmt.Errorf("weights: %w", err)
				}
				s.Weights = append(s.Weights, f)
			}
		case "precision":
			p, err := strconv.Atoi(val.Value)
			if err != nil || p < 0 {
				return fmt.Errorf("precision must be a non-negative integer, got %q", val.Value)
			}
			s.Precision = &p
		case "critical_values":
			cb, err := parseCriticalBounds(val)
			if err != nil {
				return err
			}
			s.Critical = cb
		case "gender_modifiers":
			mods, _, err := parseModifierMap(val, "gender_modifiers")
			if err != nil {
				return err
			}
			s.GenderModifiers = mods
		case "age_modifiers":
			mods, _, err := parseModifierMap(val, "age_modifiers")
			if err != nil {
				return err
			}
			s.AgeModifiers = mods
		case "disease_modifiers":
			_, ordered, err := parseModifierMap(val, "disease_modifiers")
			if err != nil {
				return err
			}
			s.DiseaseModifiers = ordered
		default:
			// Field-level metadata handled by the template parser.
		}
	}

	s.Integer = sawNumeric && intParams && s.Precision == nil
	if s.Distribution == "" {
		return fmt.Errorf("randomization block missing distribution")
	}
	return nil
}

func parseCriticalBounds(node *yaml.Node) (*CriticalBounds, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("critical_values must be a mapping")
	}
	cb := &CriticalBounds{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		f, _, err := scalarFloat(node.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("critical_values.%s: %w", key, err)
		}
		v := f
		switch key {
		case "low":
			cb.Low = &v
		case "high":
			cb.High = &v
		default:
			return nil, fmt.Errorf("critical_values has unknown key %q", key)
		}
	}
	return cb, nil
}

// parseModifierMap returns both map and ordered forms of a modifier
// mapping; callers keep whichever their lookup semantics need.
func parseModifierMap(node *yaml.Node, what string) (map[string]ModifierParams, []ConditionModifier, error) {
	if node.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("%s must be a mapping", what)
	}
	byName := make(map[string]ModifierParams, len(node.Content)/2)
	var ordered []ConditionModifier
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if _, dup := byName[name]; dup {
			return nil, nil, fmt.Errorf("%s has duplicate entry %q", what, name)
		}
		params, err := parseModifierParams(node.Content[i+1], what, name)
		if err != nil {
			return nil, nil, err
		}
		byName[name] = params
		ordered = append(ordered, ConditionModifier{Condition: name, Params: params})
	}
	return byName, ordered, nil
}

func parseModifierParams(node *yaml.Node, what, name string) (ModifierParams, error) {
	var p ModifierParams
	if node.Kind != yaml.MappingNode {
		return p, fmt.Errorf("%s.%s must be a mapping", what, name)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		f, _, err := scalarFloat(node.Content[i+1])
		if err != nil {
			return p, fmt.Errorf("%s.%s.%s: %w", what, name, key, err)
		}
		v := f
		switch key {
		case "mean":
			p.Mean = &v
		case "std":
			p.Std = &v
		case "min":
			p.Min = &v
		case "max":
			p.Max = &v
		default:
			return p, fmt.Errorf("%s.%s has unknown parameter %q", what, name, key)
		}
	}
	return p, nil
}

// scalarFloat parses a numeric scalar node, reporting whether it was
// declared as an integer.
func scalarFloat(node *yaml.Node) (float64, bool, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, false, fmt.Errorf("expected a number")
	}
	f, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("expected a number, got %q", node.Value)
	}
	return f, node.Tag == "!!int", nil
}

// scalarValue converts a scalar node into a typed value for categorical
// choices.
func scalarValue(node *yaml.Node) expr.Value {
	switch node.Tag {
	case "!!int", "!!float":
		if f, err := strconv.ParseFloat(node.Value, 64); err == nil {
			return expr.Num(f)
		}
	case "!!bool":
		if b, err := strconv.ParseBool(node.Value); err == nil {
			return expr.BoolVal(b)
		}
	}
	return expr.Str(node.Value)
}
