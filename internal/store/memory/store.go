// Package memory is an in-process implementation of core.Store. It backs the
// CLI when no database is configured and the pipeline tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

// Store keeps jobs and records in maps guarded by one mutex.
type Store struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*core.ImportJob
	records map[core.RecordKind]map[uuid.UUID]core.Record

	// brokerIDs enforces the per-user uniqueness of broker ids, like the
	// partial unique indexes of the postgres schema.
	brokerIDs map[core.RecordKind]map[string]uuid.UUID
}

var _ core.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	s := &Store{
		jobs:      make(map[uuid.UUID]*core.ImportJob),
		records:   make(map[core.RecordKind]map[uuid.UUID]core.Record),
		brokerIDs: make(map[core.RecordKind]map[string]uuid.UUID),
	}
	for _, k := range core.AllKinds {
		s.records[k] = make(map[uuid.UUID]core.Record)
		s.brokerIDs[k] = make(map[string]uuid.UUID)
	}
	return s
}

func (s *Store) CreateJob(_ context.Context, job *core.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, core.ErrDuplicateRecord)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *Store) ListJobs(_ context.Context, userID string, limit int) ([]*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.ImportJob
	for _, job := range s.jobs {
		if job.UserID == userID {
			out = append(out, job.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *core.ImportJob) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(b.ID[:], a.ID[:])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveJob(_ context.Context, job *core.ImportJob, expect core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return core.ErrJobNotFound
	}
	if stored.Status != expect {
		return core.ErrStatusChanged
	}
	next := job.Clone()
	// The rollback sub-state is owned by MarkRolledBack.
	next.Rollback.IsRolledBack = stored.Rollback.IsRolledBack
	next.Rollback.RollbackTime = stored.Rollback.RollbackTime
	next.Rollback.Reason = stored.Rollback.Reason
	s.jobs[job.ID] = next
	return nil
}

func (s *Store) MarkRolledBack(_ context.Context, id uuid.UUID, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return core.ErrJobNotFound
	}
	if job.Status != core.StatusCompleted || job.Rollback.IsRolledBack {
		return core.ErrStatusChanged
	}
	job.Rollback = core.RollbackState{
		CanRollback:  false,
		IsRolledBack: true,
		RollbackTime: &at,
		Reason:       reason,
	}
	job.UpdatedAt = at
	return nil
}

func (s *Store) ListStuckJobs(_ context.Context, before time.Time) ([]*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.ImportJob
	for _, job := range s.jobs {
		if job.Status != core.StatusProcessing {
			continue
		}
		beat := job.UpdatedAt
		if job.HeartbeatAt != nil {
			beat = *job.HeartbeatAt
		}
		if beat.Before(before) {
			out = append(out, job.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListPendingJobs(_ context.Context, before time.Time) ([]*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.ImportJob
	for _, job := range s.jobs {
		if job.Status == core.StatusPending && job.CreatedAt.Before(before) {
			out = append(out, job.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *core.ImportJob) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) DeleteJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return core.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *Store) InsertRecord(_ context.Context, rec core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := rec.Kind()
	table, ok := s.records[kind]
	if !ok {
		return fmt.Errorf("unknown record kind %q", kind)
	}
	base := rec.Base()
	if _, exists := table[base.ID]; exists {
		return fmt.Errorf("%s %s: %w", kind, base.ID, core.ErrDuplicateRecord)
	}

	key := ""
	if id := rec.DedupeKey(); id != "" {
		key = base.UserID + "\x00" + id
		if _, exists := s.brokerIDs[kind][key]; exists {
			return fmt.Errorf("%s broker id %q: %w", kind, id, core.ErrDuplicateRecord)
		}
	}

	table[base.ID] = rec
	if key != "" {
		s.brokerIDs[kind][key] = base.ID
	}
	return nil
}

func (s *Store) DeleteByBatch(_ context.Context, kind core.RecordKind, userID string, batchID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.records[kind]
	if !ok {
		return 0, fmt.Errorf("unknown record kind %q", kind)
	}
	var n int64
	for id, rec := range table {
		base := rec.Base()
		if base.ImportBatchID != batchID || base.UserID != userID {
			continue
		}
		if key := rec.DedupeKey(); key != "" {
			delete(s.brokerIDs[kind], base.UserID+"\x00"+key)
		}
		delete(table, id)
		n++
	}
	return n, nil
}

func (s *Store) CountByBatch(_ context.Context, kind core.RecordKind, userID string, batchID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.records[kind]
	if !ok {
		return 0, fmt.Errorf("unknown record kind %q", kind)
	}
	var n int64
	for _, rec := range table {
		if base := rec.Base(); base.ImportBatchID == batchID && base.UserID == userID {
			n++
		}
	}
	return n, nil
}

// Records returns the stored records of one kind for a batch, for inspection.
func (s *Store) Records(kind core.RecordKind, batchID uuid.UUID) []core.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Record
	for _, rec := range s.records[kind] {
		if rec.Base().ImportBatchID == batchID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b core.Record) int {
		return slices.Compare(a.Base().ID[:], b.Base().ID[:])
	})
	return out
}
