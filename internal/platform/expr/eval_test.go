package expr

import (
	"strings"
	"testing"
)

// mapEnv is a test environment over plain maps.
type mapEnv struct {
	fields     map[string]Value
	conditions map[string]bool
	meds       map[string]bool
}

func (m mapEnv) Field(path string) (Value, bool) {
	v, ok := m.fields[path]
	return v, ok
}

func (m mapEnv) HasCondition(name string) bool  { return m.conditions[name] }
func (m mapEnv) HasMedication(name string) bool { return m.meds[name] }

func testEnv() mapEnv {
	return mapEnv{
		fields: map[string]Value{
			"glucose":        Num(180),
			"bun":            Num(18),
			"creatinine":     Num(0.9),
			"patient_gender": Str("female"),
			"smoker":         BoolVal(false),
		},
		conditions: map[string]bool{"diabetes": true},
		meds:       map[string]bool{"metformin": true},
	}
}

func TestEval_Expressions(t *testing.T) {
	tests := []struct {
		src  string
		want Value
	}{
		{"glucose >= 126", BoolVal(true)},
		{"glucose < 126", BoolVal(false)},
		{"bun / creatinine", Num(20)},
		{"has_condition('diabetes')", BoolVal(true)},
		{"has_condition('copd')", BoolVal(false)},
		{"has_medication('metformin')", BoolVal(true)},
		{"patient_gender == 'female'", BoolVal(true)},
		{"patient_gender != 'male'", BoolVal(true)},
		{"not smoker", BoolVal(true)},
		{"has_condition('diabetes') and glucose >= 126", BoolVal(true)},
		{"has_condition('copd') or glucose > 150", BoolVal(true)},
		{"-glucose", Num(-180)},
		{"glucose + 20", Num(200)},
		{"glucose - 80", Num(100)},
		{"glucose == 'high'", BoolVal(false)},
	}
	env := testEnv()
	for _, tt := range tests {
		e, err := Parse(tt.src)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.src, err)
			continue
		}
		got, err := e.Eval(env)
		if err != nil {
			t.Errorf("Eval(%q): %v", tt.src, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Eval(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"missing_field > 1", "not resolved"},
		{"bun / 0", "division by zero"},
		{"patient_gender > 1", "expected number"},
		{"glucose and smoker", "expected bool"},
		{"not glucose", "expected bool"},
	}
	env := testEnv()
	for _, tt := range tests {
		e, err := Parse(tt.src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.src, err)
		}
		_, err = e.Eval(env)
		if err == nil {
			t.Errorf("Eval(%q): expected error", tt.src)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Eval(%q): error %q does not contain %q", tt.src, err, tt.want)
		}
	}
}

func TestEval_ShortCircuit(t *testing.T) {
	env := testEnv()

	// The right side references a missing field but must never be reached.
	e, err := Parse("has_condition('copd') and missing > 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := e.Eval(env)
	if err != nil {
		t.Fatalf("short-circuit and evaluated right side: %v", err)
	}
	if v.Bool {
		t.Error("expected false")
	}

	e, err = Parse("has_condition('diabetes') or missing > 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err = e.Eval(env)
	if err != nil {
		t.Fatalf("short-circuit or evaluated right side: %v", err)
	}
	if !v.Bool {
		t.Error("expected true")
	}
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Num(95), "95"},
		{Num(1.25), "1.25"},
		{Str("normal"), "normal"},
		{BoolVal(true), "true"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
