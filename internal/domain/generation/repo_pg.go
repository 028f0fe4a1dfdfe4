package generation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the Postgres-backed run store.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const runCols = `id, seed, level, strictness, patients, documents,
	valid, valid_with_warnings, invalid, avg_score, duration_ms, created_at`

func (r *repoPG) CreateRun(ctx context.Context, run *StoredRun, docs []*StoredDocument) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO generation_run (
			id, seed, level, strictness, patients, documents,
			valid, valid_with_warnings, invalid, avg_score, duration_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		run.ID, run.Seed, run.Level, run.Strictness, run.Patients, run.Documents,
		run.Valid, run.Warnings, run.Invalid, run.AvgScore, run.DurationMS, run.CreatedAt,
	)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(`
			INSERT INTO generation_document (
				id, run_id, patient_id, template_path,
				outcome, score, medical_score, body, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			d.ID, d.RunID, d.PatientID, d.TemplatePath,
			d.Outcome, d.Score, d.MedicalScore, d.Body, d.CreatedAt,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *repoPG) GetRun(ctx context.Context, id uuid.UUID) (*StoredRun, error) {
	run := &StoredRun{}
	err := r.pool.QueryRow(ctx, `SELECT `+runCols+` FROM generation_run WHERE id = $1`, id).Scan(
		&run.ID, &run.Seed, &run.Level, &run.Strictness, &run.Patients, &run.Documents,
		&run.Valid, &run.Warnings, &run.Invalid, &run.AvgScore, &run.DurationMS, &run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *repoPG) ListRuns(ctx context.Context, limit, offset int) ([]*StoredRun, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM generation_run`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+runCols+` FROM generation_run ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*StoredRun
	for rows.Next() {
		run := &StoredRun{}
		if err := rows.Scan(
			&run.ID, &run.Seed, &run.Level, &run.Strictness, &run.Patients, &run.Documents,
			&run.Valid, &run.Warnings, &run.Invalid, &run.AvgScore, &run.DurationMS, &run.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, run)
	}
	return out, total, rows.Err()
}

func (r *repoPG) ListDocuments(ctx context.Context, runID uuid.UUID, limit, offset int) ([]*StoredDocument, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM generation_document WHERE run_id = $1`, runID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		// Distinguish an unknown run from a run with no documents.
		if _, err := r.GetRun(ctx, runID); err != nil {
			return nil, 0, err
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, run_id, patient_id, template_path, outcome, score, medical_score, body, created_at
		FROM generation_document
		WHERE run_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`,
		runID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*StoredDocument
	for rows.Next() {
		d := &StoredDocument{}
		if err := rows.Scan(
			&d.ID, &d.RunID, &d.PatientID, &d.TemplatePath,
			&d.Outcome, &d.Score, &d.MedicalScore, &d.Body, &d.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}
