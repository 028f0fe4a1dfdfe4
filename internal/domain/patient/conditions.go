package patient

import (
	"fmt"

	"github.com/synthrec/synthrec/pkg/clinical"
)

// AgeWeight scales a condition's prevalence within an age bracket.
type AgeWeight struct {
	MinAge int
	MaxAge int
	Weight float64
}

// ConditionInfo is one entry in the condition catalog: epidemiology weights
// used by cohort mode, the medication pool, and eligibility constraints
// enforced when conditions are assigned to a profile.
type ConditionInfo struct {
	Name          string
	Prevalence    float64
	AgeWeights    []AgeWeight
	MaleWeight    float64
	FemaleWeight  float64
	Related       []string
	Medications   []string
	RequireGender string // empty means any
	MinAge        int    // zero means no minimum
	MaxAge        int    // zero means no maximum
}

// catalog lists the conditions the generator knows how to assign, in a fixed
// order so iteration and draws stay deterministic.
var catalog = []ConditionInfo{
	{
		Name:       "diabetes",
		Prevalence: 0.11,
		AgeWeights: []AgeWeight{{18, 30, 0.3}, {31, 50, 1.0}, {51, 70, 2.5}, {71, 100, 3.0}},
		MaleWeight: 1.1, FemaleWeight: 0.9,
		Related:     []string{"hypertension", "heart_disease", "kidney_disease"},
		Medications: []string{"metformin", "insulin", "glipizide", "empagliflozin"},
	},
	{
		Name:       "hypertension",
		Prevalence: 0.45,
		AgeWeights: []AgeWeight{{18, 30, 0.1}, {31, 50, 0.8}, {51, 70, 2.0}, {71, 100, 3.5}},
		MaleWeight: 1.2, FemaleWeight: 0.8,
		Related:     []string{"diabetes", "heart_disease", "stroke"},
		Medications: []string{"lisinopril", "amlodipine", "hydrochlorothiazide", "metoprolol"},
	},
	{
		Name:       "asthma",
		Prevalence: 0.08,
		AgeWeights: []AgeWeight{{18, 30, 1.5}, {31, 50, 1.0}, {51, 70, 0.8}, {71, 100, 0.6}},
		MaleWeight: 0.8, FemaleWeight: 1.2,
		Related:     []string{"copd", "allergies"},
		Medications: []string{"albuterol", "fluticasone", "montelukast", "budesonide"},
	},
	{
		Name:       "copd",
		Prevalence: 0.06,
		AgeWeights: []AgeWeight{{18, 30, 0.1}, {31, 50, 0.3}, {51, 70, 1.5}, {71, 100, 3.0}},
		MaleWeight: 1.1, FemaleWeight: 0.9,
		Related:     []string{"asthma", "heart_disease"},
		Medications: []string{"tiotropium", "salmeterol", "prednisone", "oxygen"},
		MinAge:      35,
	},
	{
		Name:       "heart_disease",
		Prevalence: 0.065,
		AgeWeights: []AgeWeight{{18, 30, 0.1}, {31, 50, 0.5}, {51, 70, 2.0}, {71, 100, 4.0}},
		MaleWeight: 1.4, FemaleWeight: 0.6,
		Related:     []string{"diabetes", "hypertension", "stroke"},
		Medications: []string{"atorvastatin", "clopidogrel", "metoprolol", "aspirin"},
	},
	{
		Name:       "obesity",
		Prevalence: 0.36,
		AgeWeights: []AgeWeight{{18, 30, 0.8}, {31, 50, 1.2}, {51, 70, 1.3}, {71, 100, 1.0}},
		MaleWeight: 0.9, FemaleWeight: 1.1,
		Related:     []string{"diabetes", "hypertension", "heart_disease"},
		Medications: []string{"orlistat", "phentermine", "liraglutide"},
	},
	{
		Name:       "colon_cancer",
		Prevalence: 0.05,
		AgeWeights: []AgeWeight{{18, 30, 0.1}, {31, 50, 0.5}, {51, 70, 2.0}, {71, 100, 3.5}},
		MaleWeight: 1.1, FemaleWeight: 0.9,
		Related:     []string{"obesity", "diabetes"},
		Medications: []string{"5-fluorouracil", "oxaliplatin", "irinotecan", "bevacizumab", "cetuximab"},
		MinAge:      30,
	},
	{
		Name:       "pregnancy",
		Prevalence: 0.04,
		AgeWeights: []AgeWeight{{18, 30, 2.0}, {31, 50, 1.0}, {51, 70, 0.0}, {71, 100, 0.0}},
		MaleWeight: 0.0, FemaleWeight: 1.0,
		Medications:   []string{"prenatal_vitamins", "folic_acid"},
		RequireGender: clinical.GenderFemale,
		MinAge:        18,
		MaxAge:        50,
	},
}

// combinationTherapies replaces the individually drawn medications for a
// condition pair with an established combination regimen.
var combinationTherapies = []struct {
	Conditions  [2]string
	Medications []string
}{
	{[2]string{"diabetes", "hypertension"}, []string{"metformin", "lisinopril"}},
	{[2]string{"diabetes", "heart_disease"}, []string{"metformin", "atorvastatin", "aspirin"}},
	{[2]string{"hypertension", "heart_disease"}, []string{"lisinopril", "metoprolol", "atorvastatin"}},
	{[2]string{"asthma", "copd"}, []string{"albuterol", "tiotropium", "fluticasone"}},
}

// conditionInfo looks a condition up in the catalog.
func conditionInfo(name string) (ConditionInfo, bool) {
	for _, c := range catalog {
		if c.Name == name {
			return c, true
		}
	}
	return ConditionInfo{}, false
}

// Eligible reports whether a profile with the given gender and age may carry
// this condition. The returned reason is empty when eligible.
func (c ConditionInfo) Eligible(gender string, age int) (bool, string) {
	if c.RequireGender != "" && gender != c.RequireGender {
		return false, "condition " + c.Name + " requires gender " + c.RequireGender
	}
	if c.MinAge > 0 && age < c.MinAge {
		return false, "condition " + c.Name + " requires minimum age"
	}
	if c.MaxAge > 0 && age > c.MaxAge {
		return false, "condition " + c.Name + " requires maximum age"
	}
	return true, ""
}

// GenderCompatible reports whether a condition may be carried by a patient
// of the given gender. Unknown conditions are always compatible.
func GenderCompatible(condition, gender string) (bool, string) {
	info, ok := conditionInfo(condition)
	if !ok || info.RequireGender == "" || gender == info.RequireGender {
		return true, ""
	}
	return false, "condition " + condition + " requires gender " + info.RequireGender
}

// AgeCompatible reports whether a condition may be carried at the given age.
// Unknown conditions are always compatible.
func AgeCompatible(condition string, age int) (bool, string) {
	info, ok := conditionInfo(condition)
	if !ok {
		return true, ""
	}
	if info.MinAge > 0 && age < info.MinAge {
		return false, fmt.Sprintf("condition %s is atypical under age %d", condition, info.MinAge)
	}
	if info.MaxAge > 0 && age > info.MaxAge {
		return false, fmt.Sprintf("condition %s is atypical over age %d", condition, info.MaxAge)
	}
	return true, ""
}

// ageWeight returns the prevalence multiplier for an age.
func (c ConditionInfo) ageWeight(age int) float64 {
	for _, w := range c.AgeWeights {
		if age >= w.MinAge && age <= w.MaxAge {
			return w.Weight
		}
	}
	return 1.0
}

// genderWeight returns the prevalence multiplier for a gender.
func (c ConditionInfo) genderWeight(gender string) float64 {
	switch gender {
	case clinical.GenderMale:
		return c.MaleWeight
	case clinical.GenderFemale:
		return c.FemaleWeight
	}
	return 1.0
}
