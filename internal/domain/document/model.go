// Package document resolves templates into concrete documents for a patient
// profile: ambient placeholder fields, randomized draws, calculated-field
// fixed-point resolution, and narrative section rendering. A document moves
// through unresolved -> resolving -> resolved -> validated and is immutable
// once terminal.
package document

import (
	"fmt"
	"time"

	"github.com/synthrec/synthrec/internal/domain/patient"
	"github.com/synthrec/synthrec/internal/domain/validation"
	"github.com/synthrec/synthrec/internal/platform/expr"
)

// State is the document lifecycle state. Transitions never skip a state.
type State int

const (
	StateUnresolved State = iota
	StateResolving
	StateResolved
	StateValidated
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateValidated:
		return "validated"
	}
	return "unknown"
}

// Document is one resolved template instance bound to a patient.
type Document struct {
	TemplatePath string
	PatientID    string
	Seed         int64
	GeneratedAt  time.Time

	// ConstraintWarnings records soft template-constraint misses
	// (relevant-conditions), which do not affect the validation score.
	ConstraintWarnings []string

	// Report is attached by MarkValidated and never replaced.
	Report *validation.Report

	state   State
	paths   []string
	fields  map[string]expr.Value
	units   map[string]string
	section map[string]string
	secOrd  []string
	profile *patient.Profile
}

func newDocument(templatePath string, profile *patient.Profile, seed int64) *Document {
	return &Document{
		TemplatePath: templatePath,
		PatientID:    profile.ID,
		Seed:         seed,
		GeneratedAt:  time.Now().UTC(),
		fields:       make(map[string]expr.Value),
		units:        make(map[string]string),
		section:      make(map[string]string),
		profile:      profile,
	}
}

// State returns the current lifecycle state.
func (d *Document) State() State { return d.state }

func (d *Document) transition(from, to State) error {
	if d.state != from {
		return fmt.Errorf("document %s/%s: cannot move from %s to %s",
			d.TemplatePath, d.PatientID, d.state, to)
	}
	d.state = to
	return nil
}

// MarkValidated attaches the validation report and moves the document to its
// terminal state. A nil report records that validation was disabled.
func (d *Document) MarkValidated(rep *validation.Report) error {
	if err := d.transition(StateResolved, StateValidated); err != nil {
		return err
	}
	if rep == nil {
		rep = &validation.Report{Outcome: validation.OutcomeNotValidated}
	}
	d.Report = rep
	return nil
}

// set records a resolved field value, keeping declaration order.
func (d *Document) set(path string, v expr.Value) {
	if _, exists := d.fields[path]; !exists {
		d.paths = append(d.paths, path)
	}
	d.fields[path] = v
}

func (d *Document) setSection(name, text string) {
	if _, exists := d.section[name]; !exists {
		d.secOrd = append(d.secOrd, name)
	}
	d.section[name] = text
}

// Field implements expr.Env.
func (d *Document) Field(path string) (expr.Value, bool) {
	v, ok := d.fields[path]
	return v, ok
}

// HasCondition implements expr.Env against the owning profile.
func (d *Document) HasCondition(name string) bool { return d.profile.HasCondition(name) }

// HasMedication implements expr.Env against the owning profile.
func (d *Document) HasMedication(name string) bool { return d.profile.HasMedication(name) }

// FieldPaths returns every resolved field path in declaration order.
func (d *Document) FieldPaths() []string {
	out := make([]string, len(d.paths))
	copy(out, d.paths)
	return out
}

// Unit returns the declared unit for a field, if any.
func (d *Document) Unit(path string) (string, bool) {
	u, ok := d.units[path]
	return u, ok
}

// Section returns a rendered narrative section by name.
func (d *Document) Section(name string) (string, bool) {
	s, ok := d.section[name]
	return s, ok
}

// SectionNames returns the rendered section names in declaration order.
func (d *Document) SectionNames() []string {
	out := make([]string, len(d.secOrd))
	copy(out, d.secOrd)
	return out
}

// Profile returns the owning patient profile.
func (d *Document) Profile() *patient.Profile { return d.profile }

// Export converts the document into a plain serializable form for the
// output layer. Field values become float64 / string / bool.
func (d *Document) Export() ExportedDocument {
	out := ExportedDocument{
		TemplatePath: d.TemplatePath,
		PatientID:    d.PatientID,
		Seed:         d.Seed,
		GeneratedAt:  d.GeneratedAt,
		Fields:       make(map[string]interface{}, len(d.fields)),
		FieldOrder:   d.FieldPaths(),
		Warnings:     d.ConstraintWarnings,
		Validation:   d.Report,
	}
	for path, v := range d.fields {
		switch v.Kind {
		case expr.KindNumber:
			out.Fields[path] = v.Num
		case expr.KindBool:
			out.Fields[path] = v.Bool
		default:
			out.Fields[path] = v.Str
		}
	}
	if len(d.units) > 0 {
		out.Units = make(map[string]string, len(d.units))
		for p, u := range d.units {
			out.Units[p] = u
		}
	}
	if len(d.section) > 0 {
		out.Sections = make(map[string]string, len(d.section))
		for n, s := range d.section {
			out.Sections[n] = s
		}
	}
	return out
}

// ExportedDocument is the serializable projection of a validated document.
type ExportedDocument struct {
	TemplatePath string                 `json:"template_path"`
	PatientID    string                 `json:"patient_id"`
	Seed         int64                  `json:"seed"`
	GeneratedAt  time.Time              `json:"generated_at"`
	Fields       map[string]interface{} `json:"fields"`
	FieldOrder   []string               `json:"field_order"`
	Units        map[string]string      `json:"units,omitempty"`
	Sections     map[string]string      `json:"sections,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
	Validation   *validation.Report     `json:"validation,omitempty"`
}
