package orders

import (
	"context"
	"sync"
	"time"

	"wishwell/pkg/platform/sentinel"
)

// InMemory keeps idempotency receipts in memory; for tests and local runs.
type InMemory struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt
}

// NewInMemory creates an empty in-memory receipt store.
func NewInMemory() *InMemory {
	return &InMemory{receipts: make(map[string]*Receipt)}
}

func (s *InMemory) CreateIfAbsent(_ context.Context, r *Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.receipts[r.RequestKey]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *r
	s.receipts[r.RequestKey] = &cp
	return nil
}

func (s *InMemory) Find(_ context.Context, requestKey string) (*Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[requestKey]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) ClaimRetry(_ context.Context, requestKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[requestKey]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.Status != ReceiptFailed {
		return sentinel.ErrConflict
	}
	r.Status = ReceiptPending
	r.UpdatedAt = time.Now()
	return nil
}

func (s *InMemory) Update(_ context.Context, r *Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[r.RequestKey]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *r
	cp.UpdatedAt = time.Now()
	s.receipts[r.RequestKey] = &cp
	return nil
}
