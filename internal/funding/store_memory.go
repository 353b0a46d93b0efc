package funding

import (
	"context"
	"sort"
	"sync"
	"time"

	"wishwell/pkg/domain"
	"wishwell/pkg/platform/sentinel"
)

// InMemory is the in-memory ledger store used by tests and local development.
// One RWMutex guards everything; per-campaign isolation comes from the version
// check, the same CAS contract the durable store enforces.
type InMemory struct {
	mu            sync.RWMutex
	campaigns     map[domain.CampaignID]*Campaign
	contributions map[domain.CampaignID][]*Contribution
	outbox        []*TransitionRecord
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		campaigns:     make(map[domain.CampaignID]*Campaign),
		contributions: make(map[domain.CampaignID][]*Contribution),
	}
}

func (s *InMemory) CreateCampaign(_ context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.campaigns[c.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *InMemory) FindCampaign(_ context.Context, id domain.CampaignID) (*Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) ApplyContribution(_ context.Context, campaignID domain.CampaignID, expectedVersion int, contrib *Contribution, complete bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[campaignID]
	if c == nil {
		return sentinel.ErrNotFound
	}
	if c.Status != StatusActive {
		return sentinel.ErrInvalidState
	}
	if c.Version != expectedVersion {
		return sentinel.ErrConflict
	}

	cp := *contrib
	s.contributions[campaignID] = append(s.contributions[campaignID], &cp)
	c.CurrentAmount += contrib.Amount
	c.ContributorCount++
	c.Version++
	c.UpdatedAt = time.Now()
	if complete {
		c.Status = StatusCompleted
		rec := NewTransitionRecord(campaignID, TransitionCompleted, time.Now())
		s.outbox = append(s.outbox, rec)
	}
	return nil
}

func (s *InMemory) Transition(_ context.Context, campaignID domain.CampaignID, from, to Status, rec *TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[campaignID]
	if c == nil {
		return sentinel.ErrNotFound
	}
	if c.Status != from {
		return sentinel.ErrInvalidState
	}
	c.Status = to
	c.Version++
	c.UpdatedAt = time.Now()
	if rec != nil {
		cp := *rec
		s.outbox = append(s.outbox, &cp)
	}
	return nil
}

func (s *InMemory) SetFulfilled(_ context.Context, id domain.CampaignID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Fulfilled = true
	c.UpdatedAt = time.Now()
	return nil
}

func (s *InMemory) SetReconciled(_ context.Context, id domain.CampaignID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Reconciled = true
	c.UpdatedAt = time.Now()
	return nil
}

func (s *InMemory) ListDue(_ context.Context, now time.Time, limit int) ([]*Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*Campaign
	for _, c := range s.campaigns {
		if c.Status == StatusActive && !c.Deadline.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Deadline.Before(due[j].Deadline) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *InMemory) ListContributions(_ context.Context, campaignID domain.CampaignID) ([]*Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contribs := s.contributions[campaignID]
	out := make([]*Contribution, 0, len(contribs))
	for _, c := range contribs {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) UpdateContributionStatus(_ context.Context, id domain.ContributionID, from, to ContributionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, contribs := range s.contributions {
		for _, c := range contribs {
			if c.ID == id {
				if c.Status != from {
					return sentinel.ErrInvalidState
				}
				c.Status = to
				return nil
			}
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) UnprocessedTransitions(_ context.Context, limit int) ([]*TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TransitionRecord
	for _, rec := range s.outbox {
		if rec.ProcessedAt == nil {
			cp := *rec
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemory) MarkTransitionProcessed(_ context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.outbox {
		if rec.ID == recordID {
			now := time.Now()
			rec.ProcessedAt = &now
			return nil
		}
	}
	return sentinel.ErrNotFound
}
