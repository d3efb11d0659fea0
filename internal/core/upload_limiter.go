package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyUploads is returned when no import slot frees up within the wait time.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

const (
	DefaultMaxConcurrentImports = 4
	DefaultMaxSlotWait          = 10 * time.Minute
)

// ImportLimiter caps the number of pipeline runs in one process. Jobs that
// cannot get a slot within maxWait are failed with ErrTooManyUploads rather
// than queued forever.
type ImportLimiter struct {
	slots    chan struct{}
	maxWait  time.Duration
	waiting  atomic.Int64
	rejected atomic.Int64
}

func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxSlotWait
	}
	return &ImportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. Every successful Acquire must be paired with Release.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		observeSlotWait(0)
		return nil
	default:
	}

	l.waiting.Add(1)
	defer l.waiting.Add(-1)

	start := time.Now()
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		observeSlotWait(time.Since(start))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		l.rejected.Add(1)
		return ErrTooManyUploads
	}
}

func (l *ImportLimiter) Release() {
	<-l.slots
}

// LimiterStatus is a snapshot for the health endpoint.
type LimiterStatus struct {
	Active        int   `json:"active"`
	Waiting       int   `json:"waiting"`
	MaxConcurrent int   `json:"maxConcurrent"`
	Rejected      int64 `json:"rejected"`
}

func (l *ImportLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        len(l.slots),
		Waiting:       int(l.waiting.Load()),
		MaxConcurrent: cap(l.slots),
		Rejected:      l.rejected.Load(),
	}
}
