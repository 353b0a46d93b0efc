package funding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"wishwell/internal/platform/logger"
	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
	dErrors "wishwell/pkg/domain-errors"
)

type stubCatalog struct{}

func (stubCatalog) ItemSnapshot(_ context.Context, productRef, variantRef string) (shipping.ItemRef, error) {
	return shipping.ItemRef{
		ProductRef:      productRef,
		VariantRef:      variantRef,
		Title:           "Espresso Machine",
		Quantity:        1,
		UnitPrice:       domain.Cents(15000),
		UnitWeightGrams: 4000,
		Currency:        domain.CurrencyUSD,
		Destination:     shipping.Destination{Kind: shipping.DestinationRecipient},
	}, nil
}

type LedgerSuite struct {
	suite.Suite
	store *InMemory
	svc   *Service
	ctx   context.Context
	clock time.Time
	mu    sync.Mutex
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.svc = NewService(s.store, stubCatalog{}, nil, logger.Discard(), WithClock(s.now))
}

func (s *LedgerSuite) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

func (s *LedgerSuite) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(d)
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func validAddress() shipping.Address {
	return shipping.Address{
		Name:       "Ada Lovelace",
		Line1:      "12 Crescent Road",
		City:       "London",
		PostalCode: "N1 9GU",
		Country:    "GB",
	}
}

func (s *LedgerSuite) startCampaign(target, minContribution domain.Cents, maxContributors int) *Campaign {
	c, err := s.svc.StartCampaign(s.ctx, StartCampaignRequest{
		ProductRef:      "prod-espresso",
		ShipTo:          validAddress(),
		Organizer:       "Grace",
		OrganizerEmail:  "grace@example.com",
		TargetAmount:    target,
		MinContribution: minContribution,
		MaxContributors: maxContributors,
		Deadline:        s.now().Add(72 * time.Hour),
	})
	s.Require().NoError(err)
	return c
}

func (s *LedgerSuite) contribute(id domain.CampaignID, amount domain.Cents) (*Contribution, error) {
	return s.svc.Contribute(s.ctx, ContributeRequest{
		CampaignID: id,
		Amount:     amount,
		PaymentRef: "pay-" + amount.String(),
	})
}

func (s *LedgerSuite) TestStartCampaignValidation() {
	base := StartCampaignRequest{
		ProductRef:      "prod-1",
		ShipTo:          validAddress(),
		Organizer:       "Grace",
		OrganizerEmail:  "grace@example.com",
		TargetAmount:    10000,
		MinContribution: 500,
		Deadline:        s.now().Add(time.Hour),
	}

	s.Run("rejects non-positive target", func() {
		req := base
		req.TargetAmount = 0
		_, err := s.svc.StartCampaign(s.ctx, req)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("rejects minimum above target", func() {
		req := base
		req.MinContribution = 20000
		_, err := s.svc.StartCampaign(s.ctx, req)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("rejects past deadline", func() {
		req := base
		req.Deadline = s.now().Add(-time.Minute)
		_, err := s.svc.StartCampaign(s.ctx, req)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("rejects invalid ship-to address", func() {
		req := base
		req.ShipTo.PostalCode = ""
		_, err := s.svc.StartCampaign(s.ctx, req)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("snapshots the item at start", func() {
		c, err := s.svc.StartCampaign(s.ctx, base)
		s.Require().NoError(err)
		s.Equal("prod-1", c.Item.ProductRef)
		s.Equal(StatusActive, c.Status)
		s.Zero(c.CurrentAmount)
	})
}

func (s *LedgerSuite) TestContributeBasics() {
	c := s.startCampaign(15000, 2500, 0)

	s.Run("admits a contribution at the minimum", func() {
		contrib, err := s.contribute(c.ID, 2500)
		s.Require().NoError(err)
		s.Equal(ContributionCompleted, contrib.Status)

		got, err := s.svc.Campaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(domain.Cents(2500), got.CurrentAmount)
		s.Equal(1, got.ContributorCount)
	})

	s.Run("rejects below the minimum", func() {
		_, err := s.contribute(c.ID, 2499)
		s.True(dErrors.Is(err, dErrors.CodeBelowMinimum))
	})

	s.Run("rejects unknown campaign", func() {
		_, err := s.contribute(domain.NewCampaignID(), 2500)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("rejects overshoot with the remaining balance", func() {
		_, err := s.contribute(c.ID, 15000)
		s.Require().True(dErrors.Is(err, dErrors.CodeExceedsTarget))

		got, err := s.svc.Campaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(domain.Cents(2500), got.CurrentAmount, "rejected contribution must not move the balance")
	})
}

func (s *LedgerSuite) TestExactCompletion() {
	c := s.startCampaign(15000, 2500, 0)

	_, err := s.contribute(c.ID, 5000)
	s.Require().NoError(err)
	_, err = s.contribute(c.ID, 2500)
	s.Require().NoError(err)
	_, err = s.contribute(c.ID, 7500)
	s.Require().NoError(err)

	got, err := s.svc.Campaign(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, got.Status)
	s.Equal(got.TargetAmount, got.CurrentAmount)

	records, err := s.store.UnprocessedTransitions(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(records, 1, "exactly one completion record")
	s.Equal(TransitionCompleted, records[0].Kind)

	s.Run("completed campaign admits nothing further", func() {
		_, err := s.contribute(c.ID, 2500)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})
}

func (s *LedgerSuite) TestJointOvershootHasOneWinner() {
	// Target 150.00, raised 75.00. Two 40.00 contributions both fit alone but
	// not together: exactly one wins, the loser re-quotes against 35.00.
	c := s.startCampaign(15000, 2500, 0)
	_, err := s.contribute(c.ID, 5000)
	s.Require().NoError(err)
	_, err = s.contribute(c.ID, 2500)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = s.contribute(c.ID, 4000)
		}()
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range results {
		if err == nil {
			admitted++
		} else if dErrors.Is(err, dErrors.CodeExceedsTarget) || dErrors.Is(err, dErrors.CodeUnavailable) {
			rejected++
		}
	}
	s.Equal(1, admitted, "exactly one of the racing contributions wins")
	s.Equal(1, rejected)

	got, err := s.svc.Campaign(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(domain.Cents(11500), got.CurrentAmount)
	s.Equal(domain.Cents(3500), got.Remaining())
}

func (s *LedgerSuite) TestConcurrentContributionsNeverOvershoot() {
	const workers = 32
	c := s.startCampaign(10000, 100, 0)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.contribute(c.ID, 700)
		}()
	}
	wg.Wait()

	got, err := s.svc.Campaign(s.ctx, c.ID)
	s.Require().NoError(err)
	s.LessOrEqual(got.CurrentAmount, got.TargetAmount)

	contributions, err := s.store.ListContributions(s.ctx, c.ID)
	s.Require().NoError(err)
	var sum domain.Cents
	for _, contrib := range contributions {
		sum += contrib.Amount
	}
	s.Equal(got.CurrentAmount, sum, "balance equals the sum of admitted contributions")

	records, err := s.store.UnprocessedTransitions(s.ctx, 10)
	s.Require().NoError(err)
	var completions int
	for _, rec := range records {
		if rec.Kind == TransitionCompleted {
			completions++
		}
	}
	s.LessOrEqual(completions, 1, "at most one completion record ever")
}

func (s *LedgerSuite) TestContributorLimit() {
	c := s.startCampaign(10000, 100, 2)

	_, err := s.contribute(c.ID, 100)
	s.Require().NoError(err)
	_, err = s.contribute(c.ID, 100)
	s.Require().NoError(err)

	_, err = s.contribute(c.ID, 100)
	s.True(dErrors.Is(err, dErrors.CodeContributorLimit))
}

func (s *LedgerSuite) TestLazyExpiry() {
	c := s.startCampaign(15000, 2500, 0)
	_, err := s.contribute(c.ID, 2500)
	s.Require().NoError(err)

	s.advance(80 * time.Hour)

	s.Run("overdue campaign rejects and flips to expired", func() {
		_, err := s.contribute(c.ID, 2500)
		s.Require().True(dErrors.Is(err, dErrors.CodeCampaignExpired))

		got, err := s.svc.Campaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(StatusExpired, got.Status)
	})

	s.Run("expiry emits one transition record", func() {
		records, err := s.store.UnprocessedTransitions(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(TransitionExpired, records[0].Kind)
	})

	s.Run("ExpireIfOverdue is idempotent", func() {
		s.Require().NoError(s.svc.ExpireIfOverdue(s.ctx, c.ID))
		records, err := s.store.UnprocessedTransitions(s.ctx, 10)
		s.Require().NoError(err)
		s.Len(records, 1)
	})
}

func (s *LedgerSuite) TestCancel() {
	c := s.startCampaign(15000, 2500, 0)
	_, err := s.contribute(c.ID, 2500)
	s.Require().NoError(err)

	s.Run("cancels an active campaign", func() {
		s.Require().NoError(s.svc.Cancel(s.ctx, c.ID))
		got, err := s.svc.Campaign(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(StatusCancelled, got.Status)
	})

	s.Run("cancel is idempotent", func() {
		s.Require().NoError(s.svc.Cancel(s.ctx, c.ID))
		records, err := s.store.UnprocessedTransitions(s.ctx, 10)
		s.Require().NoError(err)
		s.Len(records, 1)
	})

	s.Run("cancelled campaign admits nothing", func() {
		_, err := s.contribute(c.ID, 2500)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("cancelling a completed campaign conflicts", func() {
		done := s.startCampaign(5000, 1000, 0)
		_, err := s.contribute(done.ID, 5000)
		s.Require().NoError(err)
		err = s.svc.Cancel(s.ctx, done.ID)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})
}

func (s *LedgerSuite) TestProgress() {
	c := s.startCampaign(10000, 100, 0)
	_, err := s.contribute(c.ID, 2500)
	s.Require().NoError(err)

	p, err := s.svc.Progress(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(domain.Cents(2500), p.CurrentAmount)
	s.Equal(domain.Cents(7500), p.Remaining)
	s.InDelta(25.0, p.Percent, 0.01)
}
