package patient

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/synthrec/synthrec/internal/platform/expr"
	"github.com/synthrec/synthrec/internal/platform/sampling"
)

// Demographic randomization specs. Ages skew older, matching the typical
// clinical population: the bracket is drawn categorically and the exact age
// uniformly within it.
var (
	ageBracketSpec = &sampling.Spec{
		Distribution: sampling.Categorical,
		Choices:      []expr.Value{expr.Str("18-30"), expr.Str("31-50"), expr.Str("51-70"), expr.Str("71-90")},
		Weights:      []float64{0.15, 0.25, 0.40, 0.20},
	}

	genderSpec = &sampling.Spec{
		Distribution: sampling.Categorical,
		Choices:      []expr.Value{expr.Str("male"), expr.Str("female")},
	}
)

var ageBrackets = map[string][2]int{
	"18-30": {18, 30},
	"31-50": {31, 50},
	"51-70": {51, 70},
	"71-90": {71, 90},
}

var (
	maleFirstNames   = []string{"James", "John", "Robert", "Michael", "William", "David", "Richard", "Thomas"}
	femaleFirstNames = []string{"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara", "Susan", "Jessica"}
	lastNames        = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez", "Anderson", "Taylor", "Wilson", "Moore"}

	addresses = []string{
		"123 Main St, Anytown, ST 12345",
		"456 Oak Ave, Anytown, ST 12345",
		"789 Elm St, Riverside, ST 12346",
		"321 Maple Dr, Medical City, ST 12347",
		"654 Pine Ln, Downtown, ST 12348",
	}
	insurers    = []string{"Blue Cross Blue Shield", "Aetna", "Cigna", "UnitedHealthcare", "Medicare"}
	occupations = []string{"Teacher", "Engineer", "Nurse", "Accountant", "Retired", "Manager", "Sales", "Construction"}
)

// CreateProfile builds the profile for patient index under the run seed.
// Demographics come from the patient's private demographic stream; the
// active condition set is the requested diseases filtered by eligibility,
// with every filtered condition recorded as a warning. The same (seed,
// index) always yields an identical profile.
func CreateProfile(diseases []string, start, end time.Time, seed int64, index int) *Profile {
	p := newDemographics(end, seed, index)

	for _, d := range diseases {
		info, known := conditionInfo(d)
		if !known {
			// Conditions outside the catalog carry no eligibility
			// constraints; templates may still reference them.
			p.Conditions = append(p.Conditions, d)
			continue
		}
		if ok, reason := info.Eligible(p.Gender, p.Age); !ok {
			p.Warnings = append(p.Warnings, IneligibleConditionWarning{Condition: d, Reason: reason})
			continue
		}
		p.Conditions = append(p.Conditions, d)
	}

	medRNG := sampling.New(sampling.Derive(p.Seed, streamMedications))
	p.Medications = assignMedications(p.Conditions, medRNG)
	return p
}

// newDemographics fills identity and demographic fields for a patient index.
func newDemographics(end time.Time, seed int64, index int) *Profile {
	profileSeed := sampling.Derive(seed, uint64(index))
	rng := sampling.New(sampling.Derive(profileSeed, streamDemographics))

	p := &Profile{Seed: profileSeed, Index: index}
	p.ID = fmt.Sprintf("P%08X", rng.Uint32())

	gv, _ := sampling.Draw(genderSpec, sampling.Subject{}, rng, sampling.Moderate)
	p.Gender = gv.Str

	bv, _ := sampling.Draw(ageBracketSpec, sampling.Subject{}, rng, sampling.Moderate)
	bracket := ageBrackets[bv.Str]
	p.Age = bracket[0] + rng.Intn(bracket[1]-bracket[0]+1)

	first := maleFirstNames[rng.Intn(len(maleFirstNames))]
	if p.Gender == "female" {
		first = femaleFirstNames[rng.Intn(len(femaleFirstNames))]
	}
	p.Name = first + " " + lastNames[rng.Intn(len(lastNames))]

	// Day capped at 28 so every month is valid.
	p.DOB = time.Date(end.Year()-p.Age, time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)

	p.MRN = fmt.Sprintf("MRN%06d", 100000+rng.Intn(900000))
	p.Phone = fmt.Sprintf("(%03d) %03d-%04d", 200+rng.Intn(800), 200+rng.Intn(800), 1000+rng.Intn(9000))
	p.Address = addresses[rng.Intn(len(addresses))]
	p.Insurance = insurers[rng.Intn(len(insurers))]
	p.Occupation = occupations[rng.Intn(len(occupations))]
	return p
}

// assignMedications draws one or two medications per active condition, then
// substitutes established combination regimens for known condition pairs.
// The result is deduplicated preserving first-appearance order.
func assignMedications(conditions []string, rng *rand.Rand) []string {
	var meds []string
	for _, cond := range conditions {
		info, ok := conditionInfo(cond)
		if !ok || len(info.Medications) == 0 {
			continue
		}
		n := 1
		if len(info.Medications) >= 2 {
			n += rng.Intn(2)
		}
		for _, i := range rng.Perm(len(info.Medications))[:n] {
			meds = append(meds, info.Medications[i])
		}
	}

	for _, combo := range combinationTherapies {
		if containsAll(conditions, combo.Conditions[:]) {
			meds = without(meds, combo.Medications)
			meds = append(meds, combo.Medications...)
		}
	}

	seen := make(map[string]bool, len(meds))
	out := meds[:0]
	for _, m := range meds {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func containsAll(have []string, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func without(meds []string, drop []string) []string {
	out := meds[:0]
	for _, m := range meds {
		keep := true
		for _, d := range drop {
			if m == d {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, m)
		}
	}
	return out
}
