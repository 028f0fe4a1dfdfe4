package validation

import (
	"fmt"

	"github.com/synthrec/synthrec/internal/domain/patient"
	"github.com/synthrec/synthrec/internal/platform/expr"
	"github.com/synthrec/synthrec/pkg/clinical"
)

// builtinCheck is one entry in the built-in plausibility suite. Consistency
// checks compare the document against the profile's demographics and are
// gated by the request's consistency-checks flag; the rest always run when
// validation is enabled.
type builtinCheck struct {
	Name        string
	Tier        Tier
	Consistency bool
	Run         func(doc Subject, profile *patient.Profile) []Finding
}

// builtinChecks in activation order: patient_consistency and gender_specific
// at basic, medical_accuracy and value_ranges at standard, age_appropriate,
// drug_interactions, and contraindications at strict.
var builtinChecks = []builtinCheck{
	{Name: "patient_consistency", Tier: TierBasic, Consistency: true, Run: checkPatientConsistency},
	{Name: "gender_specific", Tier: TierBasic, Consistency: true, Run: checkGenderSpecific},
	{Name: "medical_accuracy", Tier: TierStandard, Run: checkMedicalAccuracy},
	{Name: "value_ranges", Tier: TierStandard, Run: checkValueRanges},
	{Name: "age_appropriate", Tier: TierStrict, Consistency: true, Run: checkAgeAppropriate},
	{Name: "drug_interactions", Tier: TierStrict, Run: checkDrugInteractions},
	{Name: "contraindications", Tier: TierStrict, Run: checkContraindications},
}

// numField returns the numeric value of a resolved field, if present.
func numField(doc Subject, path string) (float64, bool) {
	v, ok := doc.Field(path)
	if !ok || v.Kind != expr.KindNumber {
		return 0, false
	}
	return v.Num, true
}

// checkPatientConsistency verifies that demographic fields resolved into the
// document match the owning profile.
func checkPatientConsistency(doc Subject, profile *patient.Profile) []Finding {
	var out []Finding
	mismatch := func(field, want, got string) {
		out = append(out, Finding{
			Rule:     "patient_consistency",
			Severity: SeverityError,
			Kind:     KindStructural,
			Field:    field,
			Message:  fmt.Sprintf("%s is %q but the patient profile says %q", field, got, want),
		})
	}

	if v, ok := doc.Field("patient_id"); ok && v.Str != profile.ID {
		mismatch("patient_id", profile.ID, v.Str)
	}
	if v, ok := doc.Field("patient_gender"); ok && v.Str != profile.Gender {
		mismatch("patient_gender", profile.Gender, v.Str)
	}
	if age, ok := numField(doc, "patient_age"); ok && int(age) != profile.Age {
		mismatch("patient_age", fmt.Sprintf("%d", profile.Age), fmt.Sprintf("%g", age))
	}
	return out
}

// checkGenderSpecific flags conditions incompatible with the profile's
// gender. The profile generator filters these at assignment, so a finding
// here indicates a profile built outside the generator.
func checkGenderSpecific(_ Subject, profile *patient.Profile) []Finding {
	var out []Finding
	for _, cond := range profile.Conditions {
		if ok, reason := patient.GenderCompatible(cond, profile.Gender); !ok {
			out = append(out, Finding{
				Rule:     "gender_specific",
				Severity: SeverityError,
				Kind:     KindMedical,
				Field:    cond,
				Message:  reason,
			})
		}
	}
	return out
}

// checkMedicalAccuracy flags resolved values that contradict the profile's
// condition set: disease-level values without the disease.
func checkMedicalAccuracy(doc Subject, profile *patient.Profile) []Finding {
	var out []Finding
	flag := func(field, msg string) {
		out = append(out, Finding{
			Rule:     "medical_accuracy",
			Severity: SeverityWarning,
			Kind:     KindMedical,
			Field:    field,
			Message:  msg,
		})
	}

	if v, ok := numField(doc, "glucose"); ok && v >= 126 && !profile.HasCondition("diabetes") {
		flag("glucose", fmt.Sprintf("glucose %g is in the diabetic range but the patient has no diabetes diagnosis", v))
	}
	if v, ok := numField(doc, "hba1c"); ok && v >= 6.5 && !profile.HasCondition("diabetes") {
		flag("hba1c", fmt.Sprintf("HbA1c %g is diagnostic for diabetes but the patient has no diabetes diagnosis", v))
	}
	if v, ok := numField(doc, "systolic_bp"); ok && v >= 140 && !profile.HasCondition("hypertension") {
		flag("systolic_bp", fmt.Sprintf("systolic BP %g is hypertensive but the patient has no hypertension diagnosis", v))
	}
	if v, ok := numField(doc, "oxygen_saturation"); ok && v < 90 &&
		!profile.HasCondition("copd") && !profile.HasCondition("asthma") && !profile.HasCondition("heart_disease") {
		flag("oxygen_saturation", fmt.Sprintf("oxygen saturation %g%% is hypoxic without a pulmonary or cardiac diagnosis", v))
	}
	return out
}

// checkValueRanges flags values outside the physiologically survivable
// bounds of their reference range. Abnormal-but-survivable values are
// expected in disease documents and pass.
func checkValueRanges(doc Subject, _ *patient.Profile) []Finding {
	var out []Finding
	for _, path := range doc.FieldPaths() {
		v, ok := numField(doc, path)
		if !ok {
			continue
		}
		r, ok := clinical.RangeForField(path)
		if !ok {
			continue
		}
		if v < r.CriticalLow || v > r.CriticalHigh {
			out = append(out, Finding{
				Rule:     "value_ranges",
				Severity: SeverityError,
				Kind:     KindMedical,
				Field:    path,
				Message:  fmt.Sprintf("%s %g %s is outside the survivable range [%g, %g]", path, v, r.Unit, r.CriticalLow, r.CriticalHigh),
			})
		}
	}
	return out
}

// checkAgeAppropriate flags conditions atypical for the profile's age.
func checkAgeAppropriate(_ Subject, profile *patient.Profile) []Finding {
	var out []Finding
	for _, cond := range profile.Conditions {
		if ok, reason := patient.AgeCompatible(cond, profile.Age); !ok {
			out = append(out, Finding{
				Rule:     "age_appropriate",
				Severity: SeverityWarning,
				Kind:     KindMedical,
				Field:    cond,
				Message:  reason,
			})
		}
	}
	return out
}

// checkDrugInteractions flags known hazardous medication pairs.
func checkDrugInteractions(_ Subject, profile *patient.Profile) []Finding {
	var out []Finding
	for _, ix := range clinical.Interactions {
		if profile.HasMedication(ix.A) && profile.HasMedication(ix.B) {
			out = append(out, Finding{
				Rule:     "drug_interactions",
				Severity: SeverityWarning,
				Kind:     KindMedical,
				Field:    ix.A,
				Message:  fmt.Sprintf("%s with %s: %s", ix.A, ix.B, ix.Reason),
			})
		}
	}
	return out
}

// checkContraindications flags medications contraindicated by an active
// condition.
func checkContraindications(_ Subject, profile *patient.Profile) []Finding {
	var out []Finding
	for _, ci := range clinical.Contraindications {
		if profile.HasMedication(ci.Medication) && profile.HasCondition(ci.Condition) {
			out = append(out, Finding{
				Rule:     "contraindications",
				Severity: SeverityWarning,
				Kind:     KindMedical,
				Field:    ci.Medication,
				Message:  fmt.Sprintf("%s with %s: %s", ci.Medication, ci.Condition, ci.Reason),
			})
		}
	}
	return out
}
