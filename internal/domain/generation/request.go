package generation

import (
	"fmt"
	"time"

	"github.com/synthrec/synthrec/internal/domain/validation"
	"github.com/synthrec/synthrec/internal/platform/sampling"
)

// Request describes one generation run. Dates are "2006-01-02" strings so
// the same shape serves the HTTP body and the CLI flags.
type Request struct {
	Diseases []string `json:"diseases"`
	Patients int      `json:"patients"`
	MinDocs  int      `json:"min_docs"`
	MaxDocs  int      `json:"max_docs"`

	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	// Templates selects explicit specialty/type/name paths. DocTypes is the
	// legacy selection, mapped through registry substring search. When both
	// are empty every loaded template participates.
	Templates []string `json:"templates,omitempty"`
	DocTypes  []string `json:"doc_types,omitempty"`

	Level      string `json:"level,omitempty"`
	Strictness string `json:"strictness,omitempty"`

	// Validate defaults to true; ConsistencyChecks defaults to true.
	Validate          *bool `json:"validate,omitempty"`
	ConsistencyChecks *bool `json:"consistency_checks,omitempty"`

	// Cohort switches patient generation to the prevalence-weighted cohort
	// mode, where Patients means patients per target disease.
	Cohort bool `json:"cohort,omitempty"`

	Seed *int64 `json:"seed,omitempty"`
}

// options is the validated, typed form of a request.
type options struct {
	start, end   time.Time
	level        sampling.Level
	strictness   validation.Tier
	validate     bool
	consistency  bool
	seed         int64
	seedAssigned bool
}

const dateLayout = "2006-01-02"

// normalize validates the request and fills defaults. A missing seed is
// self-assigned here and reported through options.seedAssigned so the run
// metadata can record it.
func (r *Request) normalize(now func() time.Time) (*options, error) {
	if r.Patients <= 0 {
		return nil, fmt.Errorf("patients must be positive, got %d", r.Patients)
	}
	if r.MinDocs < 0 || r.MinDocs > r.MaxDocs {
		return nil, fmt.Errorf("documents-per-patient range must satisfy 0 <= min <= max, got [%d, %d]", r.MinDocs, r.MaxDocs)
	}

	opt := &options{
		level:       sampling.Moderate,
		strictness:  validation.TierStandard,
		validate:    true,
		consistency: true,
	}

	var err error
	if r.StartDate == "" || r.EndDate == "" {
		return nil, fmt.Errorf("start_date and end_date are required")
	}
	if opt.start, err = time.Parse(dateLayout, r.StartDate); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if opt.end, err = time.Parse(dateLayout, r.EndDate); err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	if opt.start.After(opt.end) {
		return nil, fmt.Errorf("start_date %s is after end_date %s", r.StartDate, r.EndDate)
	}

	if r.Level != "" {
		if opt.level, err = sampling.ParseLevel(r.Level); err != nil {
			return nil, err
		}
	}
	if r.Strictness != "" {
		if opt.strictness, err = validation.ParseTier(r.Strictness); err != nil {
			return nil, err
		}
	}
	if r.Validate != nil {
		opt.validate = *r.Validate
	}
	if r.ConsistencyChecks != nil {
		opt.consistency = *r.ConsistencyChecks
	}

	if r.Seed != nil {
		opt.seed = *r.Seed
	} else {
		opt.seed = now().UnixNano()
		opt.seedAssigned = true
	}
	return opt, nil
}
