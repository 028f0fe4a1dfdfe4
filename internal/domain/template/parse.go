package template

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/synthrec/synthrec/internal/domain/validation"
	"github.com/synthrec/synthrec/internal/platform/expr"
	"github.com/synthrec/synthrec/internal/platform/sampling"
)

// Parse decodes one template file. Structural problems (missing identity,
// duplicate field paths, malformed field blocks, invalid rule metadata) are
// errors; a rule whose expression fails to parse is recorded as skipped
// instead, per the error taxonomy.
func Parse(data []byte, file string) (*Template, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty template document")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("template document must be a mapping")
	}

	t := &Template{File: file}
	var treeNode, sectionsNode, constraintsNode, rulesNode *yaml.Node

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		val := doc.Content[i+1]
		switch key {
		case "name":
			t.Name = val.Value
		case "document_type":
			t.DocumentType = val.Value
		case "specialty":
			t.Specialty = val.Value
		case "template":
			treeNode = val
		case "sections":
			sectionsNode = val
		case "constraints":
			constraintsNode = val
		case "validation_rules":
			rulesNode = val
		}
	}

	if t.Name == "" || t.DocumentType == "" || t.Specialty == "" {
		return nil, fmt.Errorf("template must declare name, document_type, and specialty")
	}
	if treeNode == nil {
		return nil, fmt.Errorf("template %s has no field tree", t.Name)
	}

	seen := make(map[string]bool)
	if err := parseFieldTree(treeNode, "", t, seen); err != nil {
		return nil, err
	}
	if constraintsNode != nil {
		if err := parseConstraints(constraintsNode, t); err != nil {
			return nil, err
		}
	}
	if sectionsNode != nil {
		if err := parseSections(sectionsNode, t); err != nil {
			return nil, err
		}
	}
	if rulesNode != nil {
		if err := parseRules(rulesNode, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func parseFieldTree(node *yaml.Node, prefix string, t *Template, seen map[string]bool) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("field %q must be a mapping", prefix)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		path := joinPath(prefix, key)
		if err := parseFieldNode(val, path, t, seen); err != nil {
			return err
		}
	}
	return nil
}

func parseFieldNode(val *yaml.Node, path string, t *Template, seen map[string]bool) error {
	switch val.Kind {
	case yaml.ScalarNode:
		return addField(t, seen, Field{Path: path, Kind: FieldLiteral, Literal: scalarValue(val)})

	case yaml.SequenceNode:
		for i, item := range val.Content {
			if err := parseFieldNode(item, path+"."+strconv.Itoa(i), t, seen); err != nil {
				return err
			}
		}
		return nil

	case yaml.MappingNode:
		if calc := childNode(val, "calculated"); calc != nil {
			e, err := expr.Parse(calc.Value)
			if err != nil {
				return fmt.Errorf("calculated field %q: %w", path, err)
			}
			f := Field{Path: path, Kind: FieldCalculated, CalcSrc: calc.Value, Calc: e}
			f.Unit, f.ReferenceRange = fieldMeta(val)
			return addField(t, seen, f)
		}

		// The randomization block may be inline (distribution at the top
		// level) or nested under a randomization key.
		specNode := val
		if nested := childNode(val, "randomization"); nested != nil {
			specNode = nested
		} else if childNode(val, "distribution") == nil {
			return parseFieldTree(val, path, t, seen)
		}

		spec := &sampling.Spec{}
		if err := spec.UnmarshalYAML(specNode); err != nil {
			return fmt.Errorf("field %q: %w", path, err)
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", path, err)
		}
		f := Field{Path: path, Kind: FieldRandomized, Spec: spec}
		f.Unit, f.ReferenceRange = fieldMeta(val)
		return addField(t, seen, f)
	}
	return fmt.Errorf("field %q has unsupported node kind", path)
}

func addField(t *Template, seen map[string]bool, f Field) error {
	if seen[f.Path] {
		return fmt.Errorf("duplicate field %q", f.Path)
	}
	seen[f.Path] = true
	t.Fields = append(t.Fields, f)
	return nil
}

// childNode returns the value node for a mapping key, or nil.
func childNode(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// fieldMeta extracts the presentation keys a field block may carry next to
// its randomization parameters.
func fieldMeta(node *yaml.Node) (unit, refRange string) {
	if n := childNode(node, "unit"); n != nil {
		unit = n.Value
	}
	if n := childNode(node, "reference_range"); n != nil {
		refRange = n.Value
	}
	return unit, refRange
}

// scalarValue converts a YAML scalar into a typed field value.
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

func parseConstraints(node *yaml.Node, t *Template) error {
	var raw struct {
		Gender             []string `yaml:"gender"`
		AgeRange           []int    `yaml:"age_range"`
		RequiredConditions []string `yaml:"required_conditions"`
		ConditionsRelevant []string `yaml:"conditions_relevant"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("constraints: %w", err)
	}
	if len(raw.AgeRange) > 0 {
		if len(raw.AgeRange) != 2 || raw.AgeRange[0] > raw.AgeRange[1] {
			return fmt.Errorf("constraints: age_range must be [min, max] with min <= max")
		}
		t.Constraints.AgeRange = &[2]int{raw.AgeRange[0], raw.AgeRange[1]}
	}
	t.Constraints.Genders = raw.Gender
	t.Constraints.RequiredConditions = raw.RequiredConditions
	t.Constraints.RelevantConditions = raw.ConditionsRelevant
	return nil
}

func parseSections(node *yaml.Node, t *Template) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("sections must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		t.Sections = append(t.Sections, Section{
			Name: node.Content[i].Value,
			Text: node.Content[i+1].Value,
		})
	}
	return nil
}

func parseRules(node *yaml.Node, t *Template) error {
	var rules []validation.Rule
	if err := node.Decode(&rules); err != nil {
		return fmt.Errorf("validation_rules: %w", err)
	}
	for i := range rules {
		r := rules[i]
		if r.Name == "" {
			return fmt.Errorf("validation rule %d has no name", i)
		}
		if r.Severity == "" {
			r.Severity = validation.SeverityWarning
		}
		if r.Tier == "" {
			r.Tier = validation.TierBasic
		}
		if r.Kind == "" {
			r.Kind = validation.KindStructural
		}
		if !r.Severity.IsValid() {
			return fmt.Errorf("rule %q has invalid severity %q", r.Name, r.Severity)
		}
		if !r.Tier.IsValid() {
			return fmt.Errorf("rule %q has invalid tier %q", r.Name, r.Tier)
		}
		if !r.Kind.IsValid() {
			return fmt.Errorf("rule %q has invalid kind %q", r.Name, r.Kind)
		}

		if err := r.Compile(); err != nil {
			// Malformed expression: skip the rule, never fail the load.
			t.SkippedRules = append(t.SkippedRules, validation.SkippedRule{
				Rule:   r.Name,
				Reason: err.Error(),
			})
			continue
		}
		t.Rules = append(t.Rules, r)
	}
	return nil
}
