package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// recordWriter persists validated records for one job.
type recordWriter struct {
	store   RecordStore
	userID  string
	batchID uuid.UUID
	now     func() time.Time

	// seen maps broker ids already written in this run to their row.
	seen map[RecordKind]map[string]int
}

func newRecordWriter(store RecordStore, job *ImportJob, now func() time.Time) *recordWriter {
	return &recordWriter{
		store:   store,
		userID:  job.UserID,
		batchID: job.ID,
		now:     now,
		seen:    make(map[RecordKind]map[string]int),
	}
}

// errInFileDuplicate marks a broker id repeated within the same upload.
var errInFileDuplicate = errors.New("duplicate broker id in file")

// write stamps the record with a fresh UUIDv7, the owner and the batch id and
// inserts it. Every failure comes back as a *PersistenceError.
func (w *recordWriter) write(ctx context.Context, rec Record, row int) error {
	kind := rec.Kind()
	key := rec.DedupeKey()
	if key != "" {
		if first, dup := w.seen[kind][key]; dup {
			return &PersistenceError{
				Kind:      kind,
				Duplicate: true,
				Err:       fmt.Errorf("%w: %q already imported from row %d", errInFileDuplicate, key, first),
			}
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return &PersistenceError{Kind: kind, Err: fmt.Errorf("generate id: %w", err)}
	}

	base := rec.Base()
	base.ID = id
	base.UserID = w.userID
	base.ImportBatchID = w.batchID
	base.CreatedAt = w.now().UTC()

	if err := w.store.InsertRecord(ctx, rec); err != nil {
		return &PersistenceError{
			Kind:      kind,
			Duplicate: errors.Is(err, ErrDuplicateRecord),
			Err:       err,
		}
	}

	if key != "" {
		if w.seen[kind] == nil {
			w.seen[kind] = make(map[string]int)
		}
		w.seen[kind][key] = row
	}
	return nil
}
