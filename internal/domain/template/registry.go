package template

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/synthrec/synthrec/internal/platform/expr"
)

// ErrNotFound is returned by Resolve for an unknown template path.
var ErrNotFound = errors.New("template not found")

// LoadError describes a template that failed to load. Any load error aborts
// the whole load; partial registries are never exposed.
type LoadError struct {
	File     string
	Template string
	Msg      string
	Err      error
}

func (e *LoadError) Error() string {
	name := e.Template
	if name == "" {
		name = e.File
	}
	if e.Err != nil {
		return fmt.Sprintf("template %s: %s: %v", name, e.Msg, e.Err)
	}
	return fmt.Sprintf("template %s: %s", name, e.Msg)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Registry holds every loaded template, addressed by the
// specialty/document-type/name triple. Immutable after Load.
type Registry struct {
	templates map[string]*Template
	order     []string

	// ambient is the set of field names the document layer provides for
	// every document (patient_name, visit_date, ...). Calculated fields
	// and rules may reference them in addition to template fields.
	ambient map[string]bool

	log zerolog.Logger
}

// NewRegistry returns an empty registry. ambientFields lists the built-in
// placeholder names available to every template.
func NewRegistry(log zerolog.Logger, ambientFields []string) *Registry {
	ambient := make(map[string]bool, len(ambientFields))
	for _, f := range ambientFields {
		ambient[f] = true
	}
	return &Registry{
		templates: make(map[string]*Template),
		ambient:   ambient,
		log:       log,
	}
}

// Load walks dir for *.yaml / *.yml files, parses and validates each, and
// registers them. Any failure aborts the whole load: a malformed template
// must never silently shape generated data.
func (r *Registry) Load(dir string) error {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk template directory %s: %w", dir, err)
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return &LoadError{File: file, Msg: "read", Err: err}
		}
		t, err := Parse(data, file)
		if err != nil {
			return &LoadError{File: file, Msg: "parse", Err: err}
		}
		if err := r.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// Add validates a template's structure and registers it.
func (r *Registry) Add(t *Template) error {
	if err := r.validate(t); err != nil {
		return err
	}
	path := t.Path()
	if _, dup := r.templates[path]; dup {
		return &LoadError{File: t.File, Template: path, Msg: "duplicate specialty/document_type/name triple"}
	}
	r.templates[path] = t
	r.order = append(r.order, path)

	for _, s := range t.SkippedRules {
		r.log.Warn().
			Str("template", path).
			Str("rule", s.Rule).
			Str("reason", s.Reason).
			Msg("validation rule skipped at load")
	}
	return nil
}

// validate runs the load-time structural checks: calculated-field references
// must exist, calculated fields must form a DAG, and rule references must
// name known fields. Malformed rule expressions were already downgraded to
// skips by the parser.
func (r *Registry) validate(t *Template) error {
	known := make(map[string]bool, len(t.Fields))
	for i := range t.Fields {
		known[t.Fields[i].Path] = true
	}
	resolvable := func(path string) bool {
		return known[path] || r.ambient[path]
	}

	calcDeps := make(map[string][]string)
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Kind != FieldCalculated {
			continue
		}
		refs := expr.CollectFields(f.Calc)
		for _, ref := range refs {
			if !resolvable(ref) {
				return &LoadError{File: t.File, Template: t.Path(),
					Msg: fmt.Sprintf("calculated field %q references unknown field %q", f.Path, ref)}
			}
		}
		calcDeps[f.Path] = refs
	}

	if cycle := findCycle(calcDeps); len(cycle) > 0 {
		return &LoadError{File: t.File, Template: t.Path(),
			Msg: fmt.Sprintf("calculated field cycle: %s", strings.Join(cycle, " -> "))}
	}

	for i := range t.Rules {
		rule := &t.Rules[i]
		for _, ref := range rule.ReferencedFields() {
			if !resolvable(ref) {
				return &LoadError{File: t.File, Template: t.Path(),
					Msg: fmt.Sprintf("rule %q references unknown field %q", rule.Name, ref)}
			}
		}
	}

	// Placeholder markers in literal strings and section text must be
	// resolvable too, so no document can carry an unresolved {{marker}}.
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Kind != FieldLiteral || f.Literal.Kind != expr.KindString {
			continue
		}
		for _, ref := range Placeholders(f.Literal.Str) {
			if !resolvable(ref) {
				return &LoadError{File: t.File, Template: t.Path(),
					Msg: fmt.Sprintf("field %q references unknown placeholder %q", f.Path, ref)}
			}
		}
	}
	for _, s := range t.Sections {
		for _, ref := range Placeholders(s.Text) {
			if !resolvable(ref) {
				return &LoadError{File: t.File, Template: t.Path(),
					Msg: fmt.Sprintf("section %q references unknown placeholder %q", s.Name, ref)}
			}
		}
	}
	return nil
}

// findCycle runs a DFS over the calculated-field dependency graph and
// returns the first cycle found, or nil. Edges into non-calculated fields
// are leaves.
func findCycle(deps map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(deps))
	var stack []string

	var visit func(string) []string
	visit = func(n string) []string {
		color[n] = gray
		stack = append(stack, n)
		for _, dep := range deps[n] {
			if _, isCalc := deps[dep]; !isCalc {
				continue
			}
			switch color[dep] {
			case gray:
				// Close the loop for the error message.
				for i, s := range stack {
					if s == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
				return []string{dep, dep}
			case white:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		color[n] = black
		stack = stack[:len(stack)-1]
		return nil
	}

	// Deterministic iteration order for reproducible error messages.
	names := make([]string, 0, len(deps))
	for n := range deps {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if color[n] == white {
			if c := visit(n); c != nil {
				return c
			}
		}
	}
	return nil
}

// Resolve returns the template at a specialty/document_type/name path.
func (r *Registry) Resolve(path string) (*Template, error) {
	t, ok := r.templates[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return t, nil
}

// List returns every template in registration order.
func (r *Registry) List() []*Template {
	out := make([]*Template, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.templates[p])
	}
	return out
}

// Search returns templates whose path contains the substring, in
// registration order. Used by the legacy doc-type mapping.
func (r *Registry) Search(substr string) []*Template {
	var out []*Template
	for _, p := range r.order {
		if strings.Contains(p, substr) {
			out = append(out, r.templates[p])
		}
	}
	return out
}
