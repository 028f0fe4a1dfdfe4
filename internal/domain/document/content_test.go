package document

import "testing"

func TestDiagnosisText(t *testing.T) {
	tests := []struct {
		cond string
		want string
	}{
		{"diabetes", "Type 2 Diabetes Mellitus (E11.9)"},
		{"hypertension", "Essential Hypertension (I10)"},
		{"kidney_disease", "Chronic Kidney Disease (N18.9)"},
		{"made_up_condition", "made_up_condition"},
		{"", "No active diagnoses"},
	}

	for _, tt := range tests {
		if got := diagnosisText(tt.cond); got != tt.want {
			t.Errorf("diagnosisText(%q) = %q, want %q", tt.cond, got, tt.want)
		}
	}
}
