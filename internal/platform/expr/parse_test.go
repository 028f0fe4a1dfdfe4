package expr

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	exprs := []string{
		"glucose >= 126",
		"bun / creatinine",
		"weight_kg / (height_m * height_m)",
		"has_condition('diabetes')",
		"has_condition('diabetes') and glucose >= 126",
		"not has_medication('metformin')",
		"patient_gender == 'female'",
		"age >= 18 and age <= 90",
		"systolic_bp > diastolic_bp",
		"-5 + 3 * 2",
		"(hdl + ldl) < total_cholesterol",
		"labs.glucose < 200",
		"true or false",
	}
	for _, src := range exprs {
		if _, err := Parse(src); err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", src, err)
		}
	}
}

func TestParse_Rejected(t *testing.T) {
	exprs := []string{
		"",
		"glucose = 126",
		"glucose >== 126",
		"glucose ** 2",
		"rand('x')",
		"lookup(glucose)",
		"glucose >",
		"(glucose > 1",
		"'unterminated",
		"has_condition('a'",
		"glucose & 1",
		"and glucose",
	}
	for _, src := range exprs {
		_, err := Parse(src)
		if err == nil {
			t.Errorf("Parse(%q): expected error, got none", src)
			continue
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q): expected *ParseError, got %T", src, err)
		}
	}
}

func TestParse_Precedence(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3).
	e, err := Parse("1 + 2 * 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := e.Eval(emptyEnv{})
	if err != nil {
		t.Fatalf("unexpected eval error: %v", err)
	}
	if v.Num != 7 {
		t.Errorf("expected 7, got %v", v.Num)
	}

	// Comparison binds tighter than "and".
	e, err = Parse("1 < 2 and 3 < 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err = e.Eval(emptyEnv{})
	if err != nil {
		t.Fatalf("unexpected eval error: %v", err)
	}
	if v.Bool {
		t.Error("expected false")
	}
}

func TestCollectFields(t *testing.T) {
	e, err := Parse("bun / creatinine + bun < labs.glucose")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := CollectFields(e)
	want := []string{"bun", "creatinine", "labs.glucose"}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d: %v", len(want), len(fields), fields)
	}
	for i, f := range want {
		if fields[i] != f {
			t.Errorf("field %d: expected %s, got %s", i, f, fields[i])
		}
	}
}

// emptyEnv satisfies Env for expressions with no references.
type emptyEnv struct{}

func (emptyEnv) Field(string) (Value, bool) { return Value{}, false }
func (emptyEnv) HasCondition(string) bool   { return false }
func (emptyEnv) HasMedication(string) bool  { return false }
