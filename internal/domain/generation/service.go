package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/synthrec/synthrec/internal/domain/document"
	"github.com/synthrec/synthrec/internal/domain/patient"
	"github.com/synthrec/synthrec/internal/domain/template"
	"github.com/synthrec/synthrec/internal/domain/validation"
)

const defaultWorkers = 4

// Metrics receives run and per-document observations. Implemented by the
// telemetry package; a nil Metrics disables recording.
type Metrics interface {
	ObserveRun(d time.Duration, documents int)
	ObserveDocument(outcome string, score int)
}

// Service runs generation requests against a loaded template registry.
type Service struct {
	reg    *template.Registry
	engine *validation.Engine
	repo   Repository
	log    zerolog.Logger

	workers     int
	maxPatients int
	metrics     Metrics
	now         func() time.Time
}

// NewService wires the orchestrator. repo may be nil (no run history);
// metrics may be nil.
func NewService(reg *template.Registry, engine *validation.Engine, log zerolog.Logger) *Service {
	return &Service{
		reg:     reg,
		engine:  engine,
		log:     log,
		workers: defaultWorkers,
		now:     time.Now,
	}
}

// SetRepository attaches optional run persistence.
func (s *Service) SetRepository(repo Repository) { s.repo = repo }

// SetMetrics attaches optional telemetry.
func (s *Service) SetMetrics(m Metrics) { s.metrics = m }

// SetWorkers bounds the patient worker pool.
func (s *Service) SetWorkers(n int) {
	if n > 0 {
		s.workers = n
	}
}

// SetMaxPatients caps the per-request patient count. Zero means no cap.
func (s *Service) SetMaxPatients(n int) { s.maxPatients = n }

// legacyDocTypes maps the older request vocabulary onto registry search
// substrings. Unknown doc types search for their own name.
var legacyDocTypes = map[string]string{
	"lab_results":    "lab_reports",
	"labs":           "lab_reports",
	"visit_note":     "visit_notes",
	"letters":        "letter",
	"vitals":         "vital_signs",
	"prescriptions":  "prescription",
	"consult_notes":  "consultation",
	"consultations":  "consultation",
	"imaging_report": "imaging",
}

// maxTemplatesPerDocType bounds how many templates one legacy doc type can
// pull in, keeping old requests from fanning out over a grown template set.
const maxTemplatesPerDocType = 2

// selectTemplates resolves the request's template selection up front. Any
// failure here aborts the run before generation starts.
func (s *Service) selectTemplates(req *Request) ([]*template.Template, error) {
	if len(req.Templates) > 0 {
		out := make([]*template.Template, 0, len(req.Templates))
		for _, path := range req.Templates {
			t, err := s.reg.Resolve(path)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	}

	if len(req.DocTypes) > 0 {
		var out []*template.Template
		for _, dt := range req.DocTypes {
			sub := dt
			if mapped, ok := legacyDocTypes[dt]; ok {
				sub = mapped
			}
			matches := s.reg.Search(sub)
			if len(matches) == 0 {
				return nil, fmt.Errorf("no templates match doc type %q", dt)
			}
			if len(matches) > maxTemplatesPerDocType {
				matches = matches[:maxTemplatesPerDocType]
			}
			out = append(out, matches...)
		}
		return out, nil
	}

	all := s.reg.List()
	if len(all) == 0 {
		return nil, fmt.Errorf("no templates loaded")
	}
	return all, nil
}

// Run executes one generation request. Patient results are written into an
// index-addressed slice, so output order never depends on worker
// scheduling. The context is checked between patients.
func (s *Service) Run(ctx context.Context, req *Request) (*Result, error) {
	opt, err := req.normalize(s.now)
	if err != nil {
		return nil, err
	}
	if s.maxPatients > 0 && req.Patients > s.maxPatients {
		return nil, fmt.Errorf("patients %d exceeds the configured maximum %d", req.Patients, s.maxPatients)
	}

	selection, err := s.selectTemplates(req)
	if err != nil {
		return nil, err
	}

	started := s.now()

	var profiles []*patient.Profile
	if req.Cohort {
		profiles = patient.GenerateCohort(req.Diseases, req.Patients, opt.start, opt.end, opt.seed)
	} else {
		profiles = make([]*patient.Profile, req.Patients)
		for i := range profiles {
			profiles[i] = patient.CreateProfile(req.Diseases, opt.start, opt.end, opt.seed, i)
		}
	}

	results := make([]PatientResult, len(profiles))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := s.workers
	if workers > len(profiles) {
		workers = len(profiles)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.generatePatient(profiles[i], selection, req.MinDocs, req.MaxDocs, opt)
			}
		}()
	}

dispatch:
	for i := range profiles {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:    uuid.New(),
		Patients: results,
	}
	docs, failed := 0, 0
	for _, pr := range results {
		for _, p := range pr.Profile.Warnings {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"patient %s: condition %s not assigned: %s", pr.Profile.ID, p.Condition, p.Reason))
		}
		for _, dr := range pr.Documents {
			if dr.Error != "" {
				failed++
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"patient %s: %s slot %d: %s", pr.Profile.ID, dr.TemplatePath, dr.Slot, dr.Error))
				continue
			}
			docs++
		}
	}

	templatePaths := make([]string, len(selection))
	for i, t := range selection {
		templatePaths[i] = t.Path()
	}
	res.Metadata = RunMetadata{
		Seed:         opt.seed,
		SeedAssigned: opt.seedAssigned,
		Level:        opt.level.String(),
		Validated:    opt.validate,
		Cohort:       req.Cohort,
		StartedAt:    started.UTC(),
		Duration:     s.now().Sub(started),
		Patients:     len(profiles),
		Documents:    docs,
		Failed:       failed,
		Templates:    templatePaths,
	}
	if opt.validate {
		res.Metadata.Strictness = string(opt.strictness)
	}
	res.ValidationSummary = summarizeValidation(results)
	res.PatientSummary = patient.Summarize(profiles)

	s.record(res)
	s.persist(ctx, res)

	s.log.Info().
		Str("run_id", res.RunID.String()).
		Int64("seed", opt.seed).
		Int("patients", len(profiles)).
		Int("documents", docs).
		Int("failed", failed).
		Dur("duration", res.Metadata.Duration).
		Msg("generation run complete")
	return res, nil
}

// generatePatient resolves and validates every document slot for one
// patient. A failure in one slot is recorded and never stops the others.
func (s *Service) generatePatient(p *patient.Profile, selection []*template.Template, minDocs, maxDocs int, opt *options) PatientResult {
	pr := PatientResult{Profile: p}

	n := p.DocumentCount(minDocs, maxDocs)
	for slot := 0; slot < n; slot++ {
		t := selection[slot%len(selection)]
		dr := DocumentResult{TemplatePath: t.Path(), Slot: slot}

		doc, err := document.Resolve(t, p, p.DocSeed(slot), opt.level, opt.start, opt.end)
		if err != nil {
			dr.Error = err.Error()
			pr.Documents = append(pr.Documents, dr)
			continue
		}

		var rep *validation.Report
		if opt.validate {
			rep = s.engine.Validate(doc, p, t.Rules, validation.Options{
				Strictness:        opt.strictness,
				ConsistencyChecks: opt.consistency,
			})
			// Rules dropped at template load stay visible on every report.
			if len(t.SkippedRules) > 0 {
				rep.Skipped = append(append([]validation.SkippedRule{}, t.SkippedRules...), rep.Skipped...)
			}
		}
		if err := doc.MarkValidated(rep); err != nil {
			dr.Error = err.Error()
			pr.Documents = append(pr.Documents, dr)
			continue
		}

		exported := doc.Export()
		dr.Document = &exported
		pr.Documents = append(pr.Documents, dr)
	}
	return pr
}

func (s *Service) record(res *Result) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRun(res.Metadata.Duration, res.Metadata.Documents)
	for _, pr := range res.Patients {
		for _, dr := range pr.Documents {
			if dr.Document == nil || dr.Document.Validation == nil {
				continue
			}
			rep := dr.Document.Validation
			s.metrics.ObserveDocument(string(rep.Outcome), rep.Score)
		}
	}
}

// persist stores the run history row and document rows. Persistence is best
// effort: a storage failure is logged, never surfaced to the caller.
func (s *Service) persist(ctx context.Context, res *Result) {
	if s.repo == nil {
		return
	}

	run := &StoredRun{
		ID:         res.RunID,
		Seed:       res.Metadata.Seed,
		Level:      res.Metadata.Level,
		Strictness: res.Metadata.Strictness,
		Patients:   res.Metadata.Patients,
		Documents:  res.Metadata.Documents,
		DurationMS: res.Metadata.Duration.Milliseconds(),
		CreatedAt:  res.Metadata.StartedAt,
	}
	if vs := res.ValidationSummary; vs != nil {
		run.Valid = vs.Valid
		run.Warnings = vs.ValidWithWarnings
		run.Invalid = vs.Invalid
		run.AvgScore = vs.AverageScore
	}

	var docs []*StoredDocument
	for _, pr := range res.Patients {
		for _, dr := range pr.Documents {
			if dr.Document == nil {
				continue
			}
			body, err := json.Marshal(dr.Document)
			if err != nil {
				s.log.Warn().Err(err).Str("template", dr.TemplatePath).Msg("encode document for storage")
				continue
			}
			sd := &StoredDocument{
				ID:           uuid.New(),
				RunID:        res.RunID,
				PatientID:    dr.Document.PatientID,
				TemplatePath: dr.TemplatePath,
				Body:         body,
				CreatedAt:    dr.Document.GeneratedAt,
			}
			if rep := dr.Document.Validation; rep != nil {
				sd.Outcome = string(rep.Outcome)
				sd.Score = rep.Score
				sd.MedicalScore = rep.MedicalScore
			}
			docs = append(docs, sd)
		}
	}

	if err := s.repo.CreateRun(ctx, run, docs); err != nil {
		s.log.Warn().Err(err).Str("run_id", run.ID.String()).Msg("persist generation run")
	}
}
