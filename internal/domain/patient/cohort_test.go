package patient

import (
	"testing"
)

func TestGenerateCohort_SizeAndDeterminism(t *testing.T) {
	diseases := []string{"diabetes", "hypertension"}
	a := GenerateCohort(diseases, 8, testStart, testEnd, 42)
	b := GenerateCohort(diseases, 8, testStart, testEnd, 42)

	// One batch per disease plus the multi-condition batch.
	want := 2*8 + 2*8/4
	if len(a) != want {
		t.Fatalf("cohort size = %d, want %d", len(a), want)
	}
	if len(b) != len(a) {
		t.Fatalf("second run size differs: %d vs %d", len(b), len(a))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Age != b[i].Age {
			t.Fatalf("cohort not deterministic at %d: %+v vs %+v", i, a[i], b[i])
		}
	}

	c := GenerateCohort(diseases, 8, testStart, testEnd, 43)
	same := true
	for i := range a {
		if a[i].ID != c[i].ID {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced an identical cohort")
	}
}

func TestGenerateCohort_EligibilityNeverViolated(t *testing.T) {
	profiles := GenerateCohort([]string{"pregnancy", "copd"}, 20, testStart, testEnd, 42)
	for _, p := range profiles {
		for _, cond := range p.Conditions {
			info, known := conditionInfo(cond)
			if !known {
				continue
			}
			if ok, reason := info.Eligible(p.Gender, p.Age); !ok {
				t.Errorf("patient %s (%s, %d) carries ineligible condition %s: %s",
					p.ID, p.Gender, p.Age, cond, reason)
			}
		}
	}
}

func TestGenerateCohort_TargetsRepresented(t *testing.T) {
	profiles := GenerateCohort([]string{"diabetes"}, 40, testStart, testEnd, 42)
	withTarget := 0
	for _, p := range profiles {
		if p.HasCondition("diabetes") {
			withTarget++
		}
	}
	// Inclusion probability is 0.8; well over half the cohort should carry
	// the target.
	if withTarget < len(profiles)/2 {
		t.Errorf("only %d of %d cohort patients carry the target disease", withTarget, len(profiles))
	}
}

func TestSummarize(t *testing.T) {
	profiles := []*Profile{
		{Age: 30, Gender: "male", Conditions: []string{"diabetes"}},
		{Age: 50, Gender: "female", Conditions: []string{"diabetes", "hypertension"}},
		{Age: 70, Gender: "female", Conditions: nil},
		{Age: 40, Gender: "male", Conditions: []string{"asthma"}},
	}

	s := Summarize(profiles)
	if s.TotalPatients != 4 {
		t.Errorf("total = %d", s.TotalPatients)
	}
	if s.MinAge != 30 || s.MaxAge != 70 {
		t.Errorf("age range = [%d, %d], want [30, 70]", s.MinAge, s.MaxAge)
	}
	if s.AverageAge != 47.5 {
		t.Errorf("average age = %v, want 47.5", s.AverageAge)
	}
	if s.GenderDistribution["female"] != 0.5 {
		t.Errorf("female share = %v, want 0.5", s.GenderDistribution["female"])
	}
	if s.ConditionCounts["diabetes"] != 2 {
		t.Errorf("diabetes count = %d, want 2", s.ConditionCounts["diabetes"])
	}
	if s.MultiCondition != 1 {
		t.Errorf("multi-condition = %d, want 1", s.MultiCondition)
	}

	empty := Summarize(nil)
	if empty.TotalPatients != 0 {
		t.Errorf("empty summary total = %d", empty.TotalPatients)
	}
}
