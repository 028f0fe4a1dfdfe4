package generation

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("generation run not found")

// Repository stores run history. Implementations: Postgres (RepoPG) and an
// in-memory store for DB-less deployments and tests.
type Repository interface {
	CreateRun(ctx context.Context, run *StoredRun, docs []*StoredDocument) error
	GetRun(ctx context.Context, id uuid.UUID) (*StoredRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*StoredRun, int, error)
	ListDocuments(ctx context.Context, runID uuid.UUID, limit, offset int) ([]*StoredDocument, int, error)
}

type repoMemory struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*StoredRun
	docs map[uuid.UUID][]*StoredDocument
	// order keeps newest-first listing without timestamp ties.
	order []uuid.UUID
}

// NewMemoryRepo returns an in-memory run store.
func NewMemoryRepo() Repository {
	return &repoMemory{
		runs: make(map[uuid.UUID]*StoredRun),
		docs: make(map[uuid.UUID][]*StoredDocument),
	}
}

func (r *repoMemory) CreateRun(_ context.Context, run *StoredRun, docs []*StoredDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	r.docs[run.ID] = docs
	r.order = append([]uuid.UUID{run.ID}, r.order...)
	return nil
}

func (r *repoMemory) GetRun(_ context.Context, id uuid.UUID) (*StoredRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (r *repoMemory) ListRuns(_ context.Context, limit, offset int) ([]*StoredRun, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.order)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*StoredRun, 0, end-offset)
	for _, id := range r.order[offset:end] {
		out = append(out, r.runs[id])
	}
	return out, total, nil
}

func (r *repoMemory) ListDocuments(_ context.Context, runID uuid.UUID, limit, offset int) ([]*StoredDocument, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.runs[runID]; !ok {
		return nil, 0, ErrRunNotFound
	}
	docs := r.docs[runID]
	total := len(docs)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return docs[offset:end], total, nil
}
