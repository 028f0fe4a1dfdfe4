// Package patient generates synthetic patient profiles: demographics, active
// conditions, and medications. A profile is built once per patient and shared
// by reference across every document generated for that patient, so
// cross-document fields stay consistent. Profiles are immutable after
// construction.
package patient

import (
	"time"

	"github.com/synthrec/synthrec/internal/platform/sampling"
)

// Profile is the stable demographic and condition state for one synthetic
// patient. All of a patient's documents resolve against the same profile.
type Profile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Gender     string    `json:"gender"`
	Age        int       `json:"age"`
	DOB        time.Time `json:"dob"`
	MRN        string    `json:"mrn"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	Insurance  string    `json:"insurance"`
	Occupation string    `json:"occupation"`

	Conditions  []string `json:"conditions"`
	Medications []string `json:"medications"`

	// Warnings records conditions that were requested but filtered out
	// because the profile is not eligible for them.
	Warnings []IneligibleConditionWarning `json:"warnings,omitempty"`

	// Seed is the per-patient sub-seed derived from the run seed. Every
	// stream used for this patient's documents derives from it.
	Seed  int64 `json:"seed"`
	Index int   `json:"index"`
}

// IneligibleConditionWarning records a requested condition that was dropped
// for a profile, with the eligibility rule that excluded it.
type IneligibleConditionWarning struct {
	Condition string `json:"condition"`
	Reason    string `json:"reason"`
}

// HasCondition reports whether the profile carries the named condition.
func (p *Profile) HasCondition(name string) bool {
	for _, c := range p.Conditions {
		if c == name {
			return true
		}
	}
	return false
}

// HasMedication reports whether the profile takes the named medication.
func (p *Profile) HasMedication(name string) bool {
	for _, m := range p.Medications {
		if m == name {
			return true
		}
	}
	return false
}

// Stream indices under the profile seed. Demographics, the document-count
// draw, and each document slot get independent derived streams so adding a
// document never shifts another document's values.
const (
	streamDemographics = 0
	streamDocCount     = 1
	streamMedications  = 2
	streamCohort       = 3

	// streamDocBase leaves headroom for more fixed streams.
	streamDocBase = 16
)

// DocCountSeed returns the seed for the documents-per-patient draw.
func (p *Profile) DocCountSeed() int64 {
	return sampling.Derive(p.Seed, streamDocCount)
}

// DocumentCount draws this patient's document count uniformly from
// [min, max] on its private document-count stream.
func (p *Profile) DocumentCount(min, max int) int {
	if max <= min {
		return min
	}
	rng := sampling.New(p.DocCountSeed())
	return min + rng.Intn(max-min+1)
}

// DocSeed returns the seed for document slot n of this patient.
func (p *Profile) DocSeed(n int) int64 {
	return sampling.Derive(p.Seed, uint64(streamDocBase+n))
}
