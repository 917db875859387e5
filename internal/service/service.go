package service

import (
	"context"
	"fmt"
	"sync"
)

// VisitStore defines the interface for the durable visit store at the
// business logic layer. Both schema variants (append-only visit log and
// sentinel counter row) implement it.
type VisitStore interface {
	// Record durably stores one visit. Exactly one write per call.
	Record(ctx context.Context) error

	// Count returns the current view total.
	Count(ctx context.Context) (int64, error)
}

// LedgerService provides the visit-recording and count-reading operations.
// It guards recording so that each page session produces at most one durable
// write: a session records on its first call and every later call for the
// same session is a no-op. The guard is in-memory and scoped to this service
// instance; a page refresh mints a new session and therefore a new visit,
// which is intentional.
type LedgerService struct {
	store VisitStore

	mu       sync.Mutex
	recorded map[string]struct{}
}

// NewLedgerService creates a new instance of LedgerService backed by the
// provided store.
func NewLedgerService(store VisitStore) *LedgerService {
	return &LedgerService{
		store:    store,
		recorded: make(map[string]struct{}),
	}
}

// RecordVisit records one visit for the session, at most once per session.
// The guard flag is set only after the write succeeds, so a session whose
// write failed may retry on its next call.
func (s *LedgerService) RecordVisit(ctx context.Context, sessionID string) error {
	const op = "service.LedgerService.RecordVisit"

	s.mu.Lock()
	if _, ok := s.recorded[sessionID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.store.Record(ctx); err != nil {
		return fmt.Errorf("%s: failed to record visit: %w", op, err)
	}

	s.mu.Lock()
	s.recorded[sessionID] = struct{}{}
	s.mu.Unlock()

	return nil
}

// ViewCount returns the current view total. An error means the count is
// unknown, which callers must treat as distinct from zero.
func (s *LedgerService) ViewCount(ctx context.Context) (int64, error) {
	const op = "service.LedgerService.ViewCount"

	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get view count: %w", op, err)
	}

	return count, nil
}
