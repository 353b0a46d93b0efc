package funding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"wishwell/pkg/domain"
	"wishwell/pkg/platform/sentinel"
)

type LedgerStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *LedgerStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestLedgerStoreSuite(t *testing.T) {
	suite.Run(t, new(LedgerStoreSuite))
}

func (s *LedgerStoreSuite) newCampaign(target domain.Cents) *Campaign {
	now := time.Now()
	return &Campaign{
		ID:              domain.NewCampaignID(),
		TargetAmount:    target,
		MinContribution: 100,
		Deadline:        now.Add(24 * time.Hour),
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *LedgerStoreSuite) newContribution(campaignID domain.CampaignID, amount domain.Cents) *Contribution {
	return &Contribution{
		ID:         domain.NewContributionID(),
		CampaignID: campaignID,
		Amount:     amount,
		Status:     ContributionCompleted,
		CreatedAt:  time.Now(),
	}
}

func (s *LedgerStoreSuite) TestCreateAndFind() {
	c := s.newCampaign(10000)
	s.Require().NoError(s.store.CreateCampaign(s.ctx, c))

	s.Run("finds a created campaign", func() {
		found, err := s.store.FindCampaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.TargetAmount, found.TargetAmount)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindCampaign(s.ctx, domain.NewCampaignID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate ids", func() {
		s.Require().ErrorIs(s.store.CreateCampaign(s.ctx, c), sentinel.ErrAlreadyUsed)
	})

	s.Run("hands out copies, not aliases", func() {
		found, err := s.store.FindCampaign(s.ctx, c.ID)
		s.Require().NoError(err)
		found.CurrentAmount = 99999

		again, err := s.store.FindCampaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Zero(again.CurrentAmount)
	})
}

func (s *LedgerStoreSuite) TestApplyContribution() {
	c := s.newCampaign(10000)
	s.Require().NoError(s.store.CreateCampaign(s.ctx, c))

	s.Run("applies and bumps the version", func() {
		err := s.store.ApplyContribution(s.ctx, c.ID, 0, s.newContribution(c.ID, 4000), false)
		s.Require().NoError(err)

		found, err := s.store.FindCampaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(domain.Cents(4000), found.CurrentAmount)
		s.Equal(1, found.Version)
		s.Equal(1, found.ContributorCount)
	})

	s.Run("rejects a stale version", func() {
		err := s.store.ApplyContribution(s.ctx, c.ID, 0, s.newContribution(c.ID, 1000), false)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("completion writes the outbox record atomically", func() {
		err := s.store.ApplyContribution(s.ctx, c.ID, 1, s.newContribution(c.ID, 6000), true)
		s.Require().NoError(err)

		found, err := s.store.FindCampaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(StatusCompleted, found.Status)

		records, err := s.store.UnprocessedTransitions(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(TransitionCompleted, records[0].Kind)
	})

	s.Run("rejects writes to a non-active campaign", func() {
		err := s.store.ApplyContribution(s.ctx, c.ID, 2, s.newContribution(c.ID, 100), false)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})
}

// TestConcurrentApplyOneWinnerPerVersion mirrors the durable store's CAS
// contract: racing writes against one version admit exactly one.
func (s *LedgerStoreSuite) TestConcurrentApplyOneWinnerPerVersion() {
	c := s.newCampaign(1000000)
	s.Require().NoError(s.store.CreateCampaign(s.ctx, c))

	const goroutines = 20
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.ApplyContribution(s.ctx, c.ID, 0, s.newContribution(c.ID, 100), false)
			if err == nil {
				wins.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())

	got, err := s.store.FindCampaign(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(domain.Cents(100), got.CurrentAmount)
	s.Equal(1, got.Version)
}

func (s *LedgerStoreSuite) TestTransition() {
	c := s.newCampaign(10000)
	s.Require().NoError(s.store.CreateCampaign(s.ctx, c))

	s.Run("moves active to expired", func() {
		rec := NewTransitionRecord(c.ID, TransitionExpired, time.Now())
		s.Require().NoError(s.store.Transition(s.ctx, c.ID, StatusActive, StatusExpired, rec))

		found, err := s.store.FindCampaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(StatusExpired, found.Status)
	})

	s.Run("guards on the from status", func() {
		rec := NewTransitionRecord(c.ID, TransitionCancelled, time.Now())
		err := s.store.Transition(s.ctx, c.ID, StatusActive, StatusCancelled, rec)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *LedgerStoreSuite) TestListDue() {
	overdue := s.newCampaign(5000)
	overdue.Deadline = time.Now().Add(-time.Hour)
	fresh := s.newCampaign(5000)
	s.Require().NoError(s.store.CreateCampaign(s.ctx, overdue))
	s.Require().NoError(s.store.CreateCampaign(s.ctx, fresh))

	due, err := s.store.ListDue(s.ctx, time.Now(), 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(overdue.ID, due[0].ID)
}

func (s *LedgerStoreSuite) TestContributionStatusFlip() {
	c := s.newCampaign(10000)
	s.Require().NoError(s.store.CreateCampaign(s.ctx, c))
	contrib := s.newContribution(c.ID, 1000)
	s.Require().NoError(s.store.ApplyContribution(s.ctx, c.ID, 0, contrib, false))

	s.Run("flips completed to refunded once", func() {
		err := s.store.UpdateContributionStatus(s.ctx, contrib.ID, ContributionCompleted, ContributionRefunded)
		s.Require().NoError(err)

		err = s.store.UpdateContributionStatus(s.ctx, contrib.ID, ContributionCompleted, ContributionRefunded)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *LedgerStoreSuite) TestOutboxProcessing() {
	c := s.newCampaign(10000)
	s.Require().NoError(s.store.CreateCampaign(s.ctx, c))
	rec := NewTransitionRecord(c.ID, TransitionExpired, time.Now())
	s.Require().NoError(s.store.Transition(s.ctx, c.ID, StatusActive, StatusExpired, rec))

	records, err := s.store.UnprocessedTransitions(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(records, 1)

	s.Require().NoError(s.store.MarkTransitionProcessed(s.ctx, records[0].ID))

	records, err = s.store.UnprocessedTransitions(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(records)
}
