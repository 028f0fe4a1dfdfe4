package validation

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/synthrec/synthrec/internal/domain/patient"
	"github.com/synthrec/synthrec/internal/platform/expr"
)

// fakeDoc is a minimal Subject over a field map and the owning profile.
type fakeDoc struct {
	fields  map[string]expr.Value
	order   []string
	profile *patient.Profile
}

func newFakeDoc(profile *patient.Profile) *fakeDoc {
	return &fakeDoc{fields: make(map[string]expr.Value), profile: profile}
}

func (d *fakeDoc) set(path string, v expr.Value) *fakeDoc {
	if _, ok := d.fields[path]; !ok {
		d.order = append(d.order, path)
	}
	d.fields[path] = v
	return d
}

func (d *fakeDoc) Field(path string) (expr.Value, bool) {
	v, ok := d.fields[path]
	return v, ok
}

func (d *fakeDoc) HasCondition(name string) bool  { return d.profile.HasCondition(name) }
func (d *fakeDoc) HasMedication(name string) bool { return d.profile.HasMedication(name) }
func (d *fakeDoc) FieldPaths() []string           { return d.order }

func mustRule(t *testing.T, r Rule) Rule {
	t.Helper()
	if err := r.Compile(); err != nil {
		t.Fatalf("compile rule %s: %v", r.Name, err)
	}
	return r
}

func testEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

func healthyProfile() *patient.Profile {
	return &patient.Profile{ID: "P1", Gender: "male", Age: 45}
}

func TestValidate_CleanDocumentScoresFull(t *testing.T) {
	doc := newFakeDoc(healthyProfile()).set("glucose", expr.Num(95))
	rules := []Rule{
		mustRule(t, Rule{Name: "glucose_range", Assert: "glucose >= 70 and glucose <= 99",
			Severity: SeverityWarning, Tier: TierBasic, Kind: KindMedical}),
	}

	rep := testEngine().Validate(doc, doc.profile, rules, Options{Strictness: TierStandard, ConsistencyChecks: true})
	if rep.Outcome != OutcomeValid {
		t.Errorf("outcome = %s, want valid; findings: %+v", rep.Outcome, rep.Findings)
	}
	if rep.Score != 100 || rep.MedicalScore != 100 {
		t.Errorf("scores = %d/%d, want 100/100", rep.Score, rep.MedicalScore)
	}
}

func TestValidate_FailedRuleRecordsFinding(t *testing.T) {
	profile := &patient.Profile{ID: "P1", Gender: "female", Age: 60, Conditions: []string{"diabetes"}}
	doc := newFakeDoc(profile).set("glucose", expr.Num(100))
	rules := []Rule{
		mustRule(t, Rule{
			Name: "glucose_diabetes_floor", When: "has_condition('diabetes')",
			Assert: "glucose >= 110", Message: "glucose inconsistent with diabetes",
			Severity: SeverityWarning, Tier: TierStandard, Kind: KindMedical,
		}),
	}

	rep := testEngine().Validate(doc, profile, rules, Options{Strictness: TierStandard})
	if len(rep.Findings) != 1 {
		t.Fatalf("findings = %+v, want exactly one", rep.Findings)
	}
	f := rep.Findings[0]
	if f.Rule != "glucose_diabetes_floor" || f.Severity != SeverityWarning || f.Kind != KindMedical {
		t.Errorf("finding = %+v", f)
	}
	if f.Message != "glucose inconsistent with diabetes" {
		t.Errorf("message = %q", f.Message)
	}
	if rep.Outcome != OutcomeWarnings {
		t.Errorf("outcome = %s, want valid_with_warnings", rep.Outcome)
	}
	if rep.Score != 95 {
		t.Errorf("score = %d, want 95", rep.Score)
	}
}

func TestValidate_WhenGateSkipsInactiveRule(t *testing.T) {
	doc := newFakeDoc(healthyProfile()).set("glucose", expr.Num(100))
	rules := []Rule{
		mustRule(t, Rule{
			Name: "glucose_diabetes_floor", When: "has_condition('diabetes')",
			Assert: "glucose >= 110", Severity: SeverityWarning, Tier: TierStandard, Kind: KindMedical,
		}),
	}

	rep := testEngine().Validate(doc, doc.profile, rules, Options{Strictness: TierStandard})
	if len(rep.Findings) != 0 {
		t.Errorf("gated rule fired for a patient without the condition: %+v", rep.Findings)
	}
}

func TestValidate_TierActivation(t *testing.T) {
	doc := newFakeDoc(healthyProfile()).set("x", expr.Num(1))
	failAt := func(tier Tier) Rule {
		return mustRule(t, Rule{Name: "fail_" + string(tier), Assert: "x > 5",
			Severity: SeverityWarning, Tier: tier, Kind: KindStructural})
	}
	rules := []Rule{failAt(TierBasic), failAt(TierStandard), failAt(TierStrict)}

	tests := []struct {
		strictness Tier
		want       int
	}{
		{TierBasic, 1},
		{TierStandard, 2},
		{TierStrict, 3},
	}
	for _, tt := range tests {
		rep := testEngine().Validate(doc, doc.profile, rules, Options{Strictness: tt.strictness})
		if len(rep.Findings) != tt.want {
			t.Errorf("strictness %s: %d findings, want %d", tt.strictness, len(rep.Findings), tt.want)
		}
	}
}

func TestValidate_EvaluationErrorSkipsNeverFails(t *testing.T) {
	doc := newFakeDoc(healthyProfile()).set("present", expr.Num(1))
	rules := []Rule{
		mustRule(t, Rule{Name: "missing_field", Assert: "absent > 1",
			Severity: SeverityError, Tier: TierBasic, Kind: KindStructural}),
	}

	rep := testEngine().Validate(doc, doc.profile, rules, Options{Strictness: TierStrict})
	if len(rep.Findings) != 0 {
		t.Errorf("evaluation error produced a finding: %+v", rep.Findings)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0].Rule != "missing_field" {
		t.Fatalf("skipped = %+v, want the failing rule", rep.Skipped)
	}
	if !strings.Contains(rep.Skipped[0].Reason, "assert") {
		t.Errorf("skip reason %q does not name the failing expression", rep.Skipped[0].Reason)
	}
	if rep.Outcome != OutcomeValid {
		t.Errorf("skipped rule changed the outcome: %s", rep.Outcome)
	}
}

func TestValidate_ScoreFloor(t *testing.T) {
	doc := newFakeDoc(healthyProfile()).set("x", expr.Num(1))
	var rules []Rule
	for i := 0; i < 10; i++ {
		rules = append(rules, mustRule(t, Rule{
			Name: "err" + string(rune('a'+i)), Assert: "x > 5",
			Severity: SeverityError, Tier: TierBasic, Kind: KindMedical,
		}))
	}

	rep := testEngine().Validate(doc, doc.profile, rules, Options{Strictness: TierBasic})
	if rep.Score != 0 {
		t.Errorf("score = %d, want floor of 0", rep.Score)
	}
	if rep.Outcome != OutcomeInvalid {
		t.Errorf("outcome = %s, want invalid", rep.Outcome)
	}
}

func TestValidate_MedicalScoreIgnoresStructural(t *testing.T) {
	doc := newFakeDoc(healthyProfile()).set("x", expr.Num(1))
	rules := []Rule{
		mustRule(t, Rule{Name: "structural", Assert: "x > 5",
			Severity: SeverityWarning, Tier: TierBasic, Kind: KindStructural}),
		mustRule(t, Rule{Name: "medical", Assert: "x > 5",
			Severity: SeverityWarning, Tier: TierBasic, Kind: KindMedical}),
	}

	rep := testEngine().Validate(doc, doc.profile, rules, Options{Strictness: TierBasic})
	if rep.Score != 90 {
		t.Errorf("score = %d, want 90", rep.Score)
	}
	if rep.MedicalScore != 95 {
		t.Errorf("medical score = %d, want 95", rep.MedicalScore)
	}
}

func TestBuiltin_MedicalAccuracy(t *testing.T) {
	// Diabetic-range glucose without a diabetes diagnosis.
	doc := newFakeDoc(healthyProfile()).set("glucose", expr.Num(150))
	rep := testEngine().Validate(doc, doc.profile, nil, Options{Strictness: TierStandard})

	found := false
	for _, f := range rep.Findings {
		if f.Rule == "medical_accuracy" && f.Field == "glucose" {
			found = true
			if f.Severity != SeverityWarning {
				t.Errorf("severity = %s, want warning", f.Severity)
			}
		}
	}
	if !found {
		t.Errorf("diabetic glucose without diagnosis not flagged: %+v", rep.Findings)
	}

	// The same value with the diagnosis passes.
	diabetic := &patient.Profile{ID: "P2", Gender: "male", Age: 50, Conditions: []string{"diabetes"}}
	doc2 := newFakeDoc(diabetic).set("glucose", expr.Num(150))
	rep2 := testEngine().Validate(doc2, diabetic, nil, Options{Strictness: TierStandard})
	for _, f := range rep2.Findings {
		if f.Rule == "medical_accuracy" {
			t.Errorf("diagnosed patient flagged: %+v", f)
		}
	}
}

func TestBuiltin_ValueRanges(t *testing.T) {
	doc := newFakeDoc(healthyProfile()).set("glucose", expr.Num(900))
	rep := testEngine().Validate(doc, doc.profile, nil, Options{Strictness: TierStandard})

	found := false
	for _, f := range rep.Findings {
		if f.Rule == "value_ranges" && f.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("non-survivable glucose not flagged: %+v", rep.Findings)
	}
	if rep.Outcome != OutcomeInvalid {
		t.Errorf("outcome = %s, want invalid", rep.Outcome)
	}

	// Abnormal but survivable passes the range check.
	doc2 := newFakeDoc(healthyProfile()).set("glucose", expr.Num(180))
	rep2 := testEngine().Validate(doc2, doc2.profile, nil, Options{Strictness: TierBasic})
	for _, f := range rep2.Findings {
		if f.Rule == "value_ranges" {
			t.Errorf("survivable value flagged: %+v", f)
		}
	}
}

func TestBuiltin_ConsistencyChecksGated(t *testing.T) {
	profile := &patient.Profile{ID: "P1", Gender: "male", Age: 45}
	doc := newFakeDoc(profile).set("patient_gender", expr.Str("female"))

	with := testEngine().Validate(doc, profile, nil, Options{Strictness: TierBasic, ConsistencyChecks: true})
	found := false
	for _, f := range with.Findings {
		if f.Rule == "patient_consistency" {
			found = true
		}
	}
	if !found {
		t.Errorf("gender mismatch not flagged with consistency checks on: %+v", with.Findings)
	}

	without := testEngine().Validate(doc, profile, nil, Options{Strictness: TierBasic, ConsistencyChecks: false})
	for _, f := range without.Findings {
		if f.Rule == "patient_consistency" {
			t.Errorf("consistency check ran while disabled: %+v", f)
		}
	}
}

func TestBuiltin_StrictTierChecks(t *testing.T) {
	// aspirin+clopidogrel is a known interaction; the pair only surfaces at
	// strict.
	profile := &patient.Profile{
		ID: "P1", Gender: "male", Age: 70,
		Conditions:  []string{"heart_disease"},
		Medications: []string{"aspirin", "clopidogrel"},
	}
	doc := newFakeDoc(profile)

	std := testEngine().Validate(doc, profile, nil, Options{Strictness: TierStandard})
	for _, f := range std.Findings {
		if f.Rule == "drug_interactions" {
			t.Errorf("strict check ran at standard: %+v", f)
		}
	}

	strict := testEngine().Validate(doc, profile, nil, Options{Strictness: TierStrict})
	found := false
	for _, f := range strict.Findings {
		if f.Rule == "drug_interactions" {
			found = true
		}
	}
	if !found {
		t.Errorf("interaction pair not flagged at strict: %+v", strict.Findings)
	}
}

func TestTierActiveAt(t *testing.T) {
	tests := []struct {
		rule, strictness Tier
		want             bool
	}{
		{TierBasic, TierBasic, true},
		{TierStandard, TierBasic, false},
		{TierStandard, TierStandard, true},
		{TierStrict, TierStandard, false},
		{TierBasic, TierStrict, true},
		{TierStrict, TierStrict, true},
	}
	for _, tt := range tests {
		if got := tt.rule.ActiveAt(tt.strictness); got != tt.want {
			t.Errorf("Tier(%s).ActiveAt(%s) = %v, want %v", tt.rule, tt.strictness, got, tt.want)
		}
	}
}
