// Package clinical holds the shared clinical vocabulary used across the
// engine: condition identifiers with their ICD-10 codes, gender constants,
// laboratory reference ranges, and known drug interaction pairs.
package clinical

// Gender constants used throughout the engine. Profiles always carry one of
// these values.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Condition describes a recognized medical condition.
type Condition struct {
	Name    string
	ICD10   string
	Display string
}

// Conditions is the catalog of conditions the engine knows about, in a fixed
// order so iteration is deterministic.
var Conditions = []Condition{
	{Name: "diabetes", ICD10: "E11.9", Display: "Type 2 Diabetes Mellitus"},
	{Name: "hypertension", ICD10: "I10", Display: "Essential Hypertension"},
	{Name: "asthma", ICD10: "J45.9", Display: "Asthma, unspecified"},
	{Name: "copd", ICD10: "J44.9", Display: "Chronic Obstructive Pulmonary Disease"},
	{Name: "heart_disease", ICD10: "I25.10", Display: "Coronary Artery Disease"},
	{Name: "obesity", ICD10: "E66.9", Display: "Obesity, unspecified"},
	{Name: "colon_cancer", ICD10: "C18.9", Display: "Malignant Neoplasm of Colon"},
	{Name: "pregnancy", ICD10: "Z33.1", Display: "Pregnant State, Incidental"},
	{Name: "kidney_disease", ICD10: "N18.9", Display: "Chronic Kidney Disease"},
}

// ConditionByName returns the catalog entry for a condition name.
func ConditionByName(name string) (Condition, bool) {
	for _, c := range Conditions {
		if c.Name == name {
			return c, true
		}
	}
	return Condition{}, false
}

// ReferenceRange is the physiologically plausible range for a measurement.
// Values outside [CriticalLow, CriticalHigh] are impossible or immediately
// life-threatening; values outside [Low, High] are abnormal but survivable.
type ReferenceRange struct {
	Field        string
	Unit         string
	Low          float64
	High         float64
	CriticalLow  float64
	CriticalHigh float64
}

// ReferenceRanges lists the lab and vital-sign ranges the built-in
// value-range checks validate against, keyed by resolved field name.
var ReferenceRanges = []ReferenceRange{
	{Field: "glucose", Unit: "mg/dL", Low: 70, High: 100, CriticalLow: 40, CriticalHigh: 600},
	{Field: "hba1c", Unit: "%", Low: 4.0, High: 5.6, CriticalLow: 3.0, CriticalHigh: 20.0},
	{Field: "creatinine", Unit: "mg/dL", Low: 0.6, High: 1.3, CriticalLow: 0.1, CriticalHigh: 15.0},
	{Field: "bun", Unit: "mg/dL", Low: 7, High: 20, CriticalLow: 1, CriticalHigh: 150},
	{Field: "sodium", Unit: "mEq/L", Low: 135, High: 145, CriticalLow: 110, CriticalHigh: 170},
	{Field: "potassium", Unit: "mEq/L", Low: 3.5, High: 5.0, CriticalLow: 2.0, CriticalHigh: 8.0},
	{Field: "hemoglobin", Unit: "g/dL", Low: 12.0, High: 17.5, CriticalLow: 4.0, CriticalHigh: 25.0},
	{Field: "systolic_bp", Unit: "mmHg", Low: 90, High: 120, CriticalLow: 50, CriticalHigh: 260},
	{Field: "diastolic_bp", Unit: "mmHg", Low: 60, High: 80, CriticalLow: 30, CriticalHigh: 160},
	{Field: "heart_rate", Unit: "bpm", Low: 60, High: 100, CriticalLow: 25, CriticalHigh: 220},
	{Field: "respiratory_rate", Unit: "breaths/min", Low: 12, High: 20, CriticalLow: 5, CriticalHigh: 60},
	{Field: "temperature", Unit: "F", Low: 97.0, High: 99.5, CriticalLow: 90.0, CriticalHigh: 108.0},
	{Field: "oxygen_saturation", Unit: "%", Low: 95, High: 100, CriticalLow: 60, CriticalHigh: 100},
}

// RangeForField returns the reference range for a field name, matching the
// last path segment so nested fields (results.glucose) still resolve.
func RangeForField(field string) (ReferenceRange, bool) {
	for _, r := range ReferenceRanges {
		if r.Field == field || hasSuffixSegment(field, r.Field) {
			return r, true
		}
	}
	return ReferenceRange{}, false
}

func hasSuffixSegment(path, field string) bool {
	n := len(path) - len(field)
	return n > 0 && path[n-1] == '.' && path[n:] == field
}

// Interaction is a pair of medications that should not be combined without
// review, flagged by the strict drug-interaction check.
type Interaction struct {
	A      string
	B      string
	Reason string
}

// Interactions lists the known hazardous medication pairs.
var Interactions = []Interaction{
	{A: "lisinopril", B: "potassium", Reason: "risk of hyperkalemia"},
	{A: "metformin", B: "prednisone", Reason: "steroid-induced hyperglycemia undermines glycemic control"},
	{A: "aspirin", B: "clopidogrel", Reason: "additive bleeding risk"},
	{A: "metoprolol", B: "albuterol", Reason: "beta-blockade antagonizes bronchodilation"},
	{A: "atorvastatin", B: "clarithromycin", Reason: "CYP3A4 inhibition raises statin levels"},
}

// Contraindication pairs a medication with a condition it should not be
// prescribed for, flagged by the strict contraindication check.
type Contraindication struct {
	Medication string
	Condition  string
	Reason     string
}

// Contraindications lists the known medication/condition conflicts.
var Contraindications = []Contraindication{
	{Medication: "metformin", Condition: "kidney_disease", Reason: "risk of lactic acidosis in renal impairment"},
	{Medication: "metoprolol", Condition: "asthma", Reason: "beta-blockers may provoke bronchospasm"},
	{Medication: "prednisone", Condition: "diabetes", Reason: "corticosteroids worsen glycemic control"},
	{Medication: "ibuprofen", Condition: "kidney_disease", Reason: "NSAIDs reduce renal perfusion"},
}
