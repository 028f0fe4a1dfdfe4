package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/synthrec/synthrec/internal/domain/patient"
	"github.com/synthrec/synthrec/internal/domain/template"
	"github.com/synthrec/synthrec/internal/platform/expr"
	"github.com/synthrec/synthrec/internal/platform/sampling"
)

// ResolutionError is a fatal per-document failure: a draw, calculation, or
// interpolation that could not complete. It carries the field path so the
// report can point at the offending template node.
type ResolutionError struct {
	Template string
	Field    string
	Msg      string
	Err      error
}

func (e *ResolutionError) Error() string {
	s := fmt.Sprintf("resolve %s", e.Template)
	if e.Field != "" {
		s += " field " + e.Field
	}
	s += ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ConstraintError reports a patient that a template's hard constraints
// exclude. The document is not produced; the run records the skip and
// continues.
type ConstraintError struct {
	Template string
	Reason   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraints exclude patient: %v", e.Reason)
}

func (e *ConstraintError) Unwrap() error { return e.Reason }

// Resolve materializes a template for a patient profile under a document
// seed. Resolution order is fixed: ambient fields, then template fields in
// declaration order (randomized draws and raw literals), then calculated
// fields to a fixed point, then placeholder interpolation in string literals
// and sections. Each field draws from a stream derived from the document
// seed and the field path, so adding a field never shifts sibling draws.
func Resolve(t *template.Template, profile *patient.Profile, docSeed int64, level sampling.Level, start, end time.Time) (*Document, error) {
	warnings, err := t.CheckConstraints(profile.Gender, profile.Age, profile.Conditions)
	if err != nil {
		return nil, &ConstraintError{Template: t.Path(), Reason: err}
	}

	d := newDocument(t.Path(), profile, docSeed)
	d.ConstraintWarnings = warnings
	if err := d.transition(StateUnresolved, StateResolving); err != nil {
		return nil, err
	}

	fillAmbient(d, docSeed, start, end)

	subject := sampling.Subject{
		Gender:     profile.Gender,
		Age:        profile.Age,
		Conditions: profile.Conditions,
	}

	var calcs []*template.Field
	for i := range t.Fields {
		f := &t.Fields[i]
		switch f.Kind {
		case template.FieldLiteral:
			d.set(f.Path, f.Literal)
		case template.FieldRandomized:
			rng := sampling.New(sampling.FieldSeed(docSeed, f.Path))
			v, err := sampling.Draw(f.Spec, subject, rng, level)
			if err != nil {
				return nil, &ResolutionError{Template: t.Path(), Field: f.Path, Msg: "draw", Err: err}
			}
			d.set(f.Path, v)
		case template.FieldCalculated:
			calcs = append(calcs, f)
		}
		if f.Unit != "" {
			d.units[f.Path] = f.Unit
		}
	}

	if err := resolveCalculated(d, t, calcs); err != nil {
		return nil, err
	}

	if err := interpolate(d, t); err != nil {
		return nil, err
	}

	return d, d.transition(StateResolving, StateResolved)
}

// resolveCalculated evaluates calculated fields to a fixed point. A field is
// ready once all of its references are resolved; a pass that makes no
// progress with fields remaining means a dependency cycle, which the
// registry rejects at load but hand-built templates can still hit.
func resolveCalculated(d *Document, t *template.Template, calcs []*template.Field) error {
	pending := calcs
	for len(pending) > 0 {
		var next []*template.Field
		progressed := false
		for _, f := range pending {
			if !refsResolved(d, f.Calc) {
				next = append(next, f)
				continue
			}
			v, err := f.Calc.Eval(d)
			if err != nil {
				return &ResolutionError{Template: t.Path(), Field: f.Path, Msg: "calculate", Err: err}
			}
			d.set(f.Path, v)
			progressed = true
		}
		if !progressed {
			names := make([]string, len(next))
			for i, f := range next {
				names[i] = f.Path
			}
			return &ResolutionError{Template: t.Path(), Field: names[0],
				Msg: fmt.Sprintf("calculated field cycle or unresolvable reference among %s", strings.Join(names, ", "))}
		}
		pending = next
	}
	return nil
}

func refsResolved(d *Document, e expr.Expr) bool {
	for _, ref := range expr.CollectFields(e) {
		if _, ok := d.fields[ref]; !ok {
			return false
		}
	}
	return true
}

// interpolate expands {{marker}} references in string literals and renders
// the narrative sections. Every marker must resolve; the finished document
// never carries an unresolved placeholder.
func interpolate(d *Document, t *template.Template) error {
	lookup := func(name string) (string, bool) {
		v, ok := d.fields[name]
		if !ok {
			return "", false
		}
		if u, has := d.units[name]; has && v.Kind == expr.KindNumber {
			return v.String() + " " + u, true
		}
		return v.String(), true
	}

	for _, path := range d.paths {
		v := d.fields[path]
		if v.Kind != expr.KindString || !strings.Contains(v.Str, "{{") {
			continue
		}
		out, complete := template.ExpandPlaceholders(v.Str, lookup)
		if !complete {
			return &ResolutionError{Template: t.Path(), Field: path, Msg: "unresolved placeholder in literal"}
		}
		d.fields[path] = expr.Str(out)
	}

	for _, s := range t.Sections {
		out, complete := template.ExpandPlaceholders(s.Text, lookup)
		if !complete {
			return &ResolutionError{Template: t.Path(), Field: s.Name, Msg: "unresolved placeholder in section"}
		}
		d.setSection(s.Name, out)
	}
	return nil
}
