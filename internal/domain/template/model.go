// Package template loads and validates document template definitions.
// Templates are content-addressed by their specialty/document-type/name
// triple, parsed once at startup, and immutable afterwards.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/synthrec/synthrec/internal/domain/validation"
	"github.com/synthrec/synthrec/internal/platform/expr"
	"github.com/synthrec/synthrec/internal/platform/sampling"
)

var placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// Placeholders returns the field names referenced by {{name}} markers in a
// literal or section text, in appearance order.
func Placeholders(s string) []string {
	var out []string
	for _, m := range placeholderRE.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

// ExpandPlaceholders replaces every {{name}} marker using lookup. The bool
// result reports whether every marker resolved.
func ExpandPlaceholders(s string, lookup func(string) (string, bool)) (string, bool) {
	complete := true
	out := placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		if v, ok := lookup(name); ok {
			return v
		}
		complete = false
		return m
	})
	return out, complete
}

// FieldKind discriminates the three field flavors in a template tree.
type FieldKind int

const (
	// FieldLiteral is a constant value; string literals may contain
	// {{placeholder}} references interpolated at resolution.
	FieldLiteral FieldKind = iota
	// FieldRandomized draws its value from a sampling spec.
	FieldRandomized
	// FieldCalculated evaluates an expression over sibling fields.
	FieldCalculated
)

func (k FieldKind) String() string {
	switch k {
	case FieldLiteral:
		return "literal"
	case FieldRandomized:
		return "randomized"
	case FieldCalculated:
		return "calculated"
	}
	return "unknown"
}

// Field is one node of the flattened template field tree. Nested mappings
// flatten into dot-joined paths; declaration order is preserved.
type Field struct {
	Path string
	Kind FieldKind

	Literal expr.Value
	Spec    *sampling.Spec
	CalcSrc string
	Calc    expr.Expr

	// Presentation metadata carried through to the resolved document.
	Unit           string
	ReferenceRange string
}

// Section is a narrative block rendered by interpolating resolved fields
// into its text.
type Section struct {
	Name string
	Text string
}

// Constraints restrict which patient profiles a template may be resolved
// for. Gender, age-range, and required-condition violations fail the
// document; a relevant-conditions miss is only a warning.
type Constraints struct {
	Genders            []string
	AgeRange           *[2]int
	RequiredConditions []string
	RelevantConditions []string
}

// Template is one loaded template definition.
type Template struct {
	Name         string
	DocumentType string
	Specialty    string

	Fields      []Field
	Sections    []Section
	Rules       []validation.Rule
	Constraints Constraints

	// SkippedRules records rules whose expressions failed to parse at
	// load; they are carried into every validation report for this
	// template.
	SkippedRules []validation.SkippedRule

	// File is the source path, for load error messages.
	File string
}

// Path returns the canonical specialty/document-type/name address.
func (t *Template) Path() string {
	return t.Specialty + "/" + t.DocumentType + "/" + t.Name
}

// FieldByPath returns the field with the given path.
func (t *Template) FieldByPath(path string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].Path == path {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// CheckConstraints verifies a patient against the template's constraints.
// The error names the first hard violation; warnings list soft misses.
func (t *Template) CheckConstraints(gender string, age int, conditions []string) (warnings []string, err error) {
	c := t.Constraints

	if len(c.Genders) > 0 {
		ok := false
		for _, g := range c.Genders {
			if g == gender {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("template %s requires gender %s, patient is %s",
				t.Path(), strings.Join(c.Genders, " or "), gender)
		}
	}

	if c.AgeRange != nil && (age < c.AgeRange[0] || age > c.AgeRange[1]) {
		return nil, fmt.Errorf("template %s requires age %d-%d, patient is %d",
			t.Path(), c.AgeRange[0], c.AgeRange[1], age)
	}

	has := func(name string) bool {
		for _, c := range conditions {
			if c == name {
				return true
			}
		}
		return false
	}

	for _, req := range c.RequiredConditions {
		if !has(req) {
			return nil, fmt.Errorf("template %s requires condition %q", t.Path(), req)
		}
	}

	if len(c.RelevantConditions) > 0 {
		relevant := false
		for _, rel := range c.RelevantConditions {
			if has(rel) {
				relevant = true
				break
			}
		}
		if !relevant {
			warnings = append(warnings, fmt.Sprintf(
				"patient has none of the conditions this template targets: %s",
				strings.Join(c.RelevantConditions, ", ")))
		}
	}
	return warnings, nil
}
