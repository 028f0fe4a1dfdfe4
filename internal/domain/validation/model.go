// Package validation scores resolved documents against declarative template
// rules and a built-in medical-plausibility check suite. Rules are compiled
// to expression ASTs at template load; malformed rule expressions are
// downgraded to skipped rules rather than failing a run.
package validation

import (
	"fmt"

	"github.com/synthrec/synthrec/internal/platform/expr"
)

// Severity of a rule or finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// IsValid reports whether the severity is a supported value.
func (s Severity) IsValid() bool {
	return s == SeverityWarning || s == SeverityError
}

// Tier is a validation strictness level. Tiers are monotonically inclusive:
// every rule active at basic is also active at standard and strict.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierStrict   Tier = "strict"
)

// IsValid reports whether the tier is a supported value.
func (t Tier) IsValid() bool {
	return t == TierBasic || t == TierStandard || t == TierStrict
}

func (t Tier) rank() int {
	switch t {
	case TierBasic:
		return 0
	case TierStandard:
		return 1
	case TierStrict:
		return 2
	}
	return -1
}

// ActiveAt reports whether a rule declared at tier t runs when validation is
// requested at the given strictness.
func (t Tier) ActiveAt(strictness Tier) bool {
	return t.rank() <= strictness.rank()
}

// ParseTier validates a strictness string.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid validation strictness %q (want basic, standard, or strict)", s)
	}
	return t, nil
}

// Kind classifies a rule for the medical-accuracy sub-score.
type Kind string

const (
	KindMedical    Kind = "medical"
	KindStructural Kind = "structural"
)

// IsValid reports whether the kind is a supported value.
func (k Kind) IsValid() bool {
	return k == KindMedical || k == KindStructural
}

// Rule is one declarative validation rule owned by a template. When is an
// optional gate: if it evaluates false the rule passes vacuously. Assert is
// the condition that must hold.
type Rule struct {
	Name     string   `json:"name"`
	When     string   `json:"when,omitempty"`
	Assert   string   `json:"assert"`
	Message  string   `json:"message,omitempty"`
	Severity Severity `json:"severity"`
	Tier     Tier     `json:"tier"`
	Kind     Kind     `json:"kind"`

	when   expr.Expr
	assert expr.Expr
}

// Compile parses the rule's expressions. A parse failure is returned so the
// template registry can record the rule as skipped.
func (r *Rule) Compile() error {
	if r.Assert == "" {
		return fmt.Errorf("rule %q has no assert expression", r.Name)
	}
	if r.When != "" {
		w, err := expr.Parse(r.When)
		if err != nil {
			return fmt.Errorf("rule %q when: %w", r.Name, err)
		}
		r.when = w
	}
	a, err := expr.Parse(r.Assert)
	if err != nil {
		return fmt.Errorf("rule %q assert: %w", r.Name, err)
	}
	r.assert = a
	return nil
}

// ReferencedFields returns every field path the rule's expressions read, for
// the registry's undefined-field check. Compile must have succeeded.
func (r *Rule) ReferencedFields() []string {
	var out []string
	if r.when != nil {
		out = append(out, expr.CollectFields(r.when)...)
	}
	out = append(out, expr.CollectFields(r.assert)...)
	return out
}

// Outcome is the authoritative three-state validation verdict. The numeric
// scores are advisory.
type Outcome string

const (
	OutcomeValid        Outcome = "valid"
	OutcomeWarnings     Outcome = "valid_with_warnings"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeNotValidated Outcome = "not_validated"
)

// Finding is one recorded rule or check failure.
type Finding struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Kind     Kind     `json:"kind"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// SkippedRule records a rule that could not be evaluated.
type SkippedRule struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Report is the validation result for one document. Never mutated after
// Validate returns it.
type Report struct {
	Outcome      Outcome       `json:"outcome"`
	Score        int           `json:"score"`
	MedicalScore int           `json:"medical_score"`
	Findings     []Finding     `json:"findings,omitempty"`
	Skipped      []SkippedRule `json:"skipped,omitempty"`
	Strictness   Tier          `json:"strictness"`
}

// Score deduction per finding severity.
const (
	warningPenalty = 5
	errorPenalty   = 15
)

// score computes the 0-100 aggregate for a finding set, optionally
// restricted to medical-kind findings.
func score(findings []Finding, medicalOnly bool) int {
	s := 100
	for _, f := range findings {
		if medicalOnly && f.Kind != KindMedical {
			continue
		}
		switch f.Severity {
		case SeverityError:
			s -= errorPenalty
		default:
			s -= warningPenalty
		}
	}
	if s < 0 {
		s = 0
	}
	return s
}

// outcome derives the three-state verdict from a finding set.
func outcome(findings []Finding) Outcome {
	warnings := false
	for _, f := range findings {
		if f.Severity == SeverityError {
			return OutcomeInvalid
		}
		warnings = true
	}
	if warnings {
		return OutcomeWarnings
	}
	return OutcomeValid
}
