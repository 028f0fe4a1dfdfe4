package patient

import (
	"math/rand"
	"time"

	"github.com/synthrec/synthrec/internal/platform/sampling"
)

// Cohort-mode tuning. Target diseases are included with high probability
// rather than unconditionally, comorbidity doubles a related condition's
// chance, and no condition's final probability exceeds the cap.
const (
	targetInclusionProb = 0.8
	comorbidityFactor   = 2.0
	probabilityCap      = 0.9
)

// cohortShuffleStream is the run-level stream used to shuffle the finished
// cohort. Patient indices occupy the low stream numbers, so the shuffle
// stream sits far outside that range.
const cohortShuffleStream = uint64(1) << 62

// GenerateCohort builds a prevalence-weighted cohort: one batch of patients
// per target disease, plus a multi-condition batch of size
// len(diseases)*perDisease/4, shuffled deterministically. Unlike
// CreateProfile's requested-set rule, cohort condition assignment is
// probabilistic, weighted by age, gender, and comorbidity, but eligibility
// filtering still applies: an ineligible condition is never assigned.
func GenerateCohort(diseases []string, perDisease int, start, end time.Time, seed int64) []*Profile {
	var profiles []*Profile
	index := 0

	build := func(targets []string) {
		p := newDemographics(end, seed, index)
		rng := sampling.New(sampling.Derive(p.Seed, streamCohort))
		p.Conditions = assignCohortConditions(p.Age, p.Gender, targets, rng)
		p.Medications = assignMedications(p.Conditions, rng)
		profiles = append(profiles, p)
		index++
	}

	for _, disease := range diseases {
		for i := 0; i < perDisease; i++ {
			build([]string{disease})
		}
	}
	for i := 0; i < len(diseases)*perDisease/4; i++ {
		build(diseases)
	}

	shuffle := sampling.New(sampling.Derive(seed, cohortShuffleStream))
	shuffle.Shuffle(len(profiles), func(i, j int) {
		profiles[i], profiles[j] = profiles[j], profiles[i]
	})
	return profiles
}

// assignCohortConditions draws an active condition set for one cohort
// patient. Targets are considered first, then the rest of the catalog by
// demographic-weighted prevalence.
func assignCohortConditions(age int, gender string, targets []string, rng *rand.Rand) []string {
	var conds []string
	has := func(name string) bool {
		for _, c := range conds {
			if c == name {
				return true
			}
		}
		return false
	}

	for _, t := range targets {
		info, known := conditionInfo(t)
		if !known {
			continue
		}
		if ok, _ := info.Eligible(gender, age); !ok {
			continue
		}
		if rng.Float64() < targetInclusionProb {
			conds = append(conds, info.Name)
		}
	}

	for _, info := range catalog {
		if has(info.Name) {
			continue
		}
		if ok, _ := info.Eligible(gender, age); !ok {
			continue
		}
		p := info.Prevalence * info.ageWeight(age) * info.genderWeight(gender)
		for _, existing := range conds {
			for _, rel := range info.Related {
				if rel == existing {
					p *= comorbidityFactor
				}
			}
		}
		if p > probabilityCap {
			p = probabilityCap
		}
		if rng.Float64() < p {
			conds = append(conds, info.Name)
		}
	}

	// A targeted cohort patient should rarely be condition-free; fall back
	// to the first eligible target.
	if len(conds) == 0 {
		for _, t := range targets {
			info, known := conditionInfo(t)
			if !known {
				continue
			}
			if ok, _ := info.Eligible(gender, age); ok {
				conds = append(conds, info.Name)
				break
			}
		}
	}
	if len(conds) == 0 && age > 50 && rng.Float64() < 0.6 {
		conds = append(conds, "hypertension")
	}
	return conds
}

// Summary aggregates cohort-level statistics for the generation result.
type Summary struct {
	TotalPatients      int                `json:"total_patients"`
	AverageAge         float64            `json:"average_age"`
	MinAge             int                `json:"min_age"`
	MaxAge             int                `json:"max_age"`
	GenderDistribution map[string]float64 `json:"gender_distribution"`
	ConditionCounts    map[string]int     `json:"condition_counts"`
	MultiCondition     int                `json:"multi_condition_patients"`
}

// Summarize computes aggregate demographics over a set of profiles.
func Summarize(profiles []*Profile) Summary {
	s := Summary{
		GenderDistribution: make(map[string]float64),
		ConditionCounts:    make(map[string]int),
	}
	if len(profiles) == 0 {
		return s
	}

	s.TotalPatients = len(profiles)
	s.MinAge = profiles[0].Age
	s.MaxAge = profiles[0].Age
	genderCounts := make(map[string]int)
	ageSum := 0

	for _, p := range profiles {
		ageSum += p.Age
		if p.Age < s.MinAge {
			s.MinAge = p.Age
		}
		if p.Age > s.MaxAge {
			s.MaxAge = p.Age
		}
		genderCounts[p.Gender]++
		for _, c := range p.Conditions {
			s.ConditionCounts[c]++
		}
		if len(p.Conditions) > 1 {
			s.MultiCondition++
		}
	}

	s.AverageAge = float64(ageSum) / float64(len(profiles))
	for g, n := range genderCounts {
		s.GenderDistribution[g] = float64(n) / float64(len(profiles))
	}
	return s
}
