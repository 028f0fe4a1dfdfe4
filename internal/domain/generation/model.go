// Package generation orchestrates a run: patient profiles, document
// resolution across a bounded worker pool, validation, summaries, and
// optional run persistence.
package generation

import (
	"time"

	"github.com/google/uuid"

	"github.com/synthrec/synthrec/internal/domain/document"
	"github.com/synthrec/synthrec/internal/domain/patient"
	"github.com/synthrec/synthrec/internal/domain/validation"
)

// Result is the full outcome of one generation run. Patient results are
// ordered by patient index regardless of worker scheduling.
type Result struct {
	RunID    uuid.UUID       `json:"run_id"`
	Metadata RunMetadata     `json:"metadata"`
	Patients []PatientResult `json:"patients"`

	// Warnings aggregates run-level issues: ineligible requested
	// conditions, templates that excluded patients, failed documents.
	Warnings []string `json:"warnings,omitempty"`

	ValidationSummary *ValidationSummary `json:"validation_summary,omitempty"`
	PatientSummary    patient.Summary    `json:"patient_summary"`
}

// RunMetadata records how the run was produced. Seed is always filled, even
// when the request omitted it and the run self-assigned one.
type RunMetadata struct {
	Seed         int64         `json:"seed"`
	SeedAssigned bool          `json:"seed_assigned"`
	Level        string        `json:"level"`
	Strictness   string        `json:"strictness,omitempty"`
	Validated    bool          `json:"validated"`
	Cohort       bool          `json:"cohort,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Patients     int           `json:"patients"`
	Documents    int           `json:"documents"`
	Failed       int           `json:"failed_documents"`
	Templates    []string      `json:"templates"`
}

// PatientResult pairs a profile with its generated documents.
type PatientResult struct {
	Profile   *patient.Profile `json:"profile"`
	Documents []DocumentResult `json:"documents"`
}

// DocumentResult is one document slot's outcome: either a resolved document
// or the error that stopped it. Constraint exclusions and resolution
// failures land here without affecting sibling documents.
type DocumentResult struct {
	TemplatePath string                     `json:"template_path"`
	Slot         int                        `json:"slot"`
	Document     *document.ExportedDocument `json:"document,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

// ValidationSummary aggregates validation outcomes across a run.
type ValidationSummary struct {
	TotalDocuments      int     `json:"total_documents"`
	Valid               int     `json:"valid"`
	ValidWithWarnings   int     `json:"valid_with_warnings"`
	Invalid             int     `json:"invalid"`
	NotValidated        int     `json:"not_validated"`
	ValidationRate      float64 `json:"validation_rate"`
	AverageScore        float64 `json:"average_score"`
	AverageMedicalScore float64 `json:"average_medical_score"`
}

func summarizeValidation(patients []PatientResult) *ValidationSummary {
	s := &ValidationSummary{}
	scoreSum, medSum, scored := 0, 0, 0

	for _, pr := range patients {
		for _, dr := range pr.Documents {
			if dr.Document == nil {
				continue
			}
			s.TotalDocuments++
			rep := dr.Document.Validation
			if rep == nil || rep.Outcome == validation.OutcomeNotValidated {
				s.NotValidated++
				continue
			}
			switch rep.Outcome {
			case validation.OutcomeValid:
				s.Valid++
			case validation.OutcomeWarnings:
				s.ValidWithWarnings++
			case validation.OutcomeInvalid:
				s.Invalid++
			}
			scoreSum += rep.Score
			medSum += rep.MedicalScore
			scored++
		}
	}

	if s.TotalDocuments > 0 {
		s.ValidationRate = float64(s.Valid+s.ValidWithWarnings) / float64(s.TotalDocuments)
	}
	if scored > 0 {
		s.AverageScore = float64(scoreSum) / float64(scored)
		s.AverageMedicalScore = float64(medSum) / float64(scored)
	}
	return s
}

// StoredRun is the persisted projection of a run for the history endpoints.
type StoredRun struct {
	ID         uuid.UUID `json:"id"`
	Seed       int64     `json:"seed"`
	Level      string    `json:"level"`
	Strictness string    `json:"strictness"`
	Patients   int       `json:"patients"`
	Documents  int       `json:"documents"`
	Valid      int       `json:"valid"`
	Warnings   int       `json:"valid_with_warnings"`
	Invalid    int       `json:"invalid"`
	AvgScore   float64   `json:"average_score"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// StoredDocument is one persisted document row. Body holds the exported
// document JSON.
type StoredDocument struct {
	ID           uuid.UUID `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	PatientID    string    `json:"patient_id"`
	TemplatePath string    `json:"template_path"`
	Outcome      string    `json:"outcome"`
	Score        int       `json:"score"`
	MedicalScore int       `json:"medical_score"`
	Body         []byte    `json:"body,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
