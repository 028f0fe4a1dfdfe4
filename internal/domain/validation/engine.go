package validation

import (
	"github.com/rs/zerolog"

	"github.com/synthrec/synthrec/internal/domain/patient"
	"github.com/synthrec/synthrec/internal/platform/expr"
)

// Subject is the document view the engine evaluates against: an expression
// environment plus field enumeration for the built-in range checks.
type Subject interface {
	expr.Env
	// FieldPaths returns every resolved field path in declaration order.
	FieldPaths() []string
}

// Options control one validation pass.
type Options struct {
	Strictness Tier
	// ConsistencyChecks enables the built-in demographic-consistency
	// checks (patient_consistency, gender_specific, age_appropriate) in
	// addition to the always-on medical checks.
	ConsistencyChecks bool
}

// Engine runs template rules and built-in checks over resolved documents.
// Stateless apart from its logger; safe for concurrent use.
type Engine struct {
	log zerolog.Logger
}

// NewEngine returns a validation engine logging skipped rules to log.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Validate evaluates every template rule active at the requested strictness,
// then the built-in check suite, and scores the result. Rule evaluation
// errors downgrade the rule to skipped with a logged warning; they never
// fail the document.
func (e *Engine) Validate(doc Subject, profile *patient.Profile, rules []Rule, opts Options) *Report {
	rep := &Report{Strictness: opts.Strictness}

	for i := range rules {
		r := &rules[i]
		if !r.Tier.ActiveAt(opts.Strictness) {
			continue
		}
		if r.assert == nil {
			// Not compiled: the registry already logged the parse
			// failure at load.
			rep.Skipped = append(rep.Skipped, SkippedRule{Rule: r.Name, Reason: "rule expression failed to parse"})
			continue
		}

		if r.when != nil {
			cond, err := r.when.Eval(doc)
			if err != nil {
				e.skip(rep, r.Name, "when: "+err.Error())
				continue
			}
			active, err := cond.AsBool()
			if err != nil {
				e.skip(rep, r.Name, "when: "+err.Error())
				continue
			}
			if !active {
				continue
			}
		}

		res, err := r.assert.Eval(doc)
		if err != nil {
			e.skip(rep, r.Name, "assert: "+err.Error())
			continue
		}
		ok, err := res.AsBool()
		if err != nil {
			e.skip(rep, r.Name, "assert: "+err.Error())
			continue
		}
		if !ok {
			msg := r.Message
			if msg == "" {
				msg = "assertion failed: " + r.Assert
			}
			rep.Findings = append(rep.Findings, Finding{
				Rule:     r.Name,
				Severity: r.Severity,
				Kind:     r.Kind,
				Message:  msg,
			})
		}
	}

	for _, check := range builtinChecks {
		if !check.Tier.ActiveAt(opts.Strictness) {
			continue
		}
		if check.Consistency && !opts.ConsistencyChecks {
			continue
		}
		rep.Findings = append(rep.Findings, check.Run(doc, profile)...)
	}

	rep.Outcome = outcome(rep.Findings)
	rep.Score = score(rep.Findings, false)
	rep.MedicalScore = score(rep.Findings, true)
	return rep
}

func (e *Engine) skip(rep *Report, rule, reason string) {
	e.log.Warn().Str("rule", rule).Str("reason", reason).Msg("validation rule skipped")
	rep.Skipped = append(rep.Skipped, SkippedRule{Rule: rule, Reason: reason})
}
