package orders

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"wishwell/internal/platform/logger"
	"wishwell/internal/recon"
	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
	dErrors "wishwell/pkg/domain-errors"
	"wishwell/pkg/platform/retry"
	"wishwell/pkg/platform/sentinel"
)

func retryPolicyForTests() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

type fakePlatform struct {
	results []func() (PlatformResult, error)
	calls   int
}

func (p *fakePlatform) CreateOrder(_ context.Context, _ PlatformOrder) (PlatformResult, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	return p.results[idx]()
}

func (p *fakePlatform) AnnotateOrder(context.Context, string, map[string]string) error {
	return nil
}

func succeedWith(id string) func() (PlatformResult, error) {
	return func() (PlatformResult, error) {
		return PlatformResult{ID: id, Number: "N-" + id}, nil
	}
}

func failWith(err error) func() (PlatformResult, error) {
	return func() (PlatformResult, error) { return PlatformResult{}, err }
}

type CommitterSuite struct {
	suite.Suite
	ctx      context.Context
	store    *InMemory
	recon    *recon.InMemory
	platform *fakePlatform
}

func (s *CommitterSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
	s.recon = recon.NewInMemory()
	s.platform = &fakePlatform{}
}

func TestCommitterSuite(t *testing.T) {
	suite.Run(t, new(CommitterSuite))
}

func (s *CommitterSuite) newCommitter() *Committer {
	policy := retryPolicyForTests()
	return NewCommitter(s.store, s.platform, s.recon, policy, logger.Discard())
}

func (s *CommitterSuite) request(key string) CommitRequest {
	rate := shipping.Rate{
		ID:                "ground",
		Price:             650,
		DeliveryDays:      5,
		EstimatedDelivery: time.Now().AddDate(0, 0, 5),
	}
	return CommitRequest{
		RequestKey: key,
		Group: shipping.Group{
			GroupKey: "grp-1",
			Address: shipping.Address{
				Name: "Robin", Line1: "1 Way", City: "Portland", PostalCode: "97201", Country: "US",
			},
			Items: []shipping.ItemRef{{
				ProductRef: "p1", Title: "blender", Quantity: 1,
				UnitPrice: 4999, UnitWeightGrams: 2000, Currency: domain.CurrencyUSD,
			}},
			TotalValue:   4999,
			SelectedRate: &rate,
		},
		Buyer:      Buyer{Name: "Sam", Email: "sam@example.com"},
		PaymentRef: "pay-1",
	}
}

func (s *CommitterSuite) TestHappyPath() {
	s.platform.results = []func() (PlatformResult, error){succeedWith("ext-1")}
	c := s.newCommitter()

	receipt, err := c.Commit(s.ctx, s.request("co-1:grp-1"))
	s.Require().NoError(err)
	s.Equal(ReceiptCreated, receipt.Status)
	s.Equal("ext-1", receipt.ExternalOrderID)
	s.Equal(domain.Cents(4999+650), receipt.TotalPrice, "total includes the selected rate")

	stored, err := s.store.Find(s.ctx, "co-1:grp-1")
	s.Require().NoError(err)
	s.Equal(ReceiptCreated, stored.Status)
}

func (s *CommitterSuite) TestRetryReturnsExistingOrder() {
	s.platform.results = []func() (PlatformResult, error){succeedWith("ext-1")}
	c := s.newCommitter()

	first, err := c.Commit(s.ctx, s.request("co-1:grp-1"))
	s.Require().NoError(err)

	second, err := c.Commit(s.ctx, s.request("co-1:grp-1"))
	s.Require().NoError(err)
	s.Equal(first.ExternalOrderID, second.ExternalOrderID)
	s.Equal(1, s.platform.calls, "retry must not create a second external order")
}

func (s *CommitterSuite) TestTransientFailureRetriesThenSucceeds() {
	transient := dErrors.New(dErrors.CodeUnavailable, "platform 503")
	s.platform.results = []func() (PlatformResult, error){
		failWith(transient), failWith(transient), succeedWith("ext-2"),
	}
	c := s.newCommitter()

	receipt, err := c.Commit(s.ctx, s.request("co-2:grp-1"))
	s.Require().NoError(err)
	s.Equal("ext-2", receipt.ExternalOrderID)
	s.Equal(3, receipt.Attempts)
}

func (s *CommitterSuite) TestExhaustionSettlesFailedAndRecords() {
	transient := dErrors.New(dErrors.CodeUnavailable, "platform down")
	s.platform.results = []func() (PlatformResult, error){failWith(transient)}
	c := s.newCommitter()

	_, err := c.Commit(s.ctx, s.request("co-3:grp-1"))
	s.Require().True(dErrors.Is(err, dErrors.CodeUnavailable))

	stored, err := s.store.Find(s.ctx, "co-3:grp-1")
	s.Require().NoError(err)
	s.Equal(ReceiptFailed, stored.Status)

	entries, err := s.recon.List(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(recon.KindCommitFailed, entries[0].Kind)

	s.Run("a failed receipt may be retried fresh", func() {
		s.platform.results = []func() (PlatformResult, error){succeedWith("ext-3")}
		s.platform.calls = 0
		receipt, err := c.Commit(s.ctx, s.request("co-3:grp-1"))
		s.Require().NoError(err)
		s.Equal(ReceiptCreated, receipt.Status)
	})
}

func (s *CommitterSuite) TestValidationFailureDoesNotRetry() {
	invalid := dErrors.New(dErrors.CodeValidation, "address rejected by platform")
	s.platform.results = []func() (PlatformResult, error){failWith(invalid)}
	c := s.newCommitter()

	_, err := c.Commit(s.ctx, s.request("co-4:grp-1"))
	s.Require().True(dErrors.Is(err, dErrors.CodeValidation))
	s.Equal(1, s.platform.calls)

	entries, err := s.recon.List(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(entries, "caller-correctable failures are not operator work")
}

func (s *CommitterSuite) TestPendingRecordBlocksDuplicateAndQueuesRecon() {
	// Simulate a crash after claiming the key: a pending receipt with no
	// settled outcome.
	pending := &Receipt{
		RequestKey: "co-5:grp-1",
		Status:     ReceiptPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, pending))

	s.platform.results = []func() (PlatformResult, error){succeedWith("ext-never")}
	c := s.newCommitter()

	_, err := c.Commit(s.ctx, s.request("co-5:grp-1"))
	s.Require().True(dErrors.Is(err, dErrors.CodeUnavailable))
	s.Zero(s.platform.calls, "unknown outcome must not trigger another external order")

	entries, err := s.recon.List(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(recon.KindOrderUnconfirmed, entries[0].Kind)
}

// slowPlatform answers every order after a delay and counts calls under a
// mutex so racing commits can be observed safely.
type slowPlatform struct {
	mu    sync.Mutex
	delay time.Duration
	calls int
}

func (p *slowPlatform) CreateOrder(_ context.Context, _ PlatformOrder) (PlatformResult, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	time.Sleep(p.delay)
	id := "ext-slow-" + strconv.Itoa(n)
	return PlatformResult{ID: id, Number: "N-" + id}, nil
}

func (p *slowPlatform) AnnotateOrder(context.Context, string, map[string]string) error {
	return nil
}

func (p *slowPlatform) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (s *CommitterSuite) TestConcurrentRetriesOfFailedReceiptPlaceOneOrder() {
	failed := &Receipt{
		RequestKey: "co-7:grp-1",
		Status:     ReceiptFailed,
		Attempts:   3,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, failed))

	platform := &slowPlatform{delay: 50 * time.Millisecond}
	c := NewCommitter(s.store, platform, s.recon, retryPolicyForTests(), logger.Discard())

	type outcome struct {
		receipt *Receipt
		err     error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			r, err := c.Commit(s.ctx, s.request("co-7:grp-1"))
			results <- outcome{receipt: r, err: err}
		}()
	}

	var settled int
	for i := 0; i < 2; i++ {
		out := <-results
		if out.err == nil {
			settled++
			s.Equal(ReceiptCreated, out.receipt.Status)
		} else {
			// The loser of the re-claim defers instead of ordering again.
			s.True(dErrors.Is(out.err, dErrors.CodeUnavailable))
		}
	}

	s.Equal(1, platform.callCount(), "racing retries must place exactly one external order")
	s.GreaterOrEqual(settled, 1, "the re-claim winner always settles")

	s.Run("a later retry returns the winner's order", func() {
		receipt, err := c.Commit(s.ctx, s.request("co-7:grp-1"))
		s.Require().NoError(err)
		s.Equal(ReceiptCreated, receipt.Status)
		s.Equal(1, platform.callCount())
	})
}

func (s *CommitterSuite) TestClaimRetryGuards() {
	failed := &Receipt{
		RequestKey: "co-8:grp-1",
		Status:     ReceiptFailed,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	s.Require().NoError(s.store.CreateIfAbsent(s.ctx, failed))

	s.Require().NoError(s.store.ClaimRetry(s.ctx, "co-8:grp-1"))

	s.Run("second claim loses", func() {
		err := s.store.ClaimRetry(s.ctx, "co-8:grp-1")
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("settled receipts cannot be claimed", func() {
		failed.Status = ReceiptCreated
		s.Require().NoError(s.store.Update(s.ctx, failed))
		err := s.store.ClaimRetry(s.ctx, "co-8:grp-1")
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown keys are not found", func() {
		err := s.store.ClaimRetry(s.ctx, "co-missing:grp-1")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *CommitterSuite) TestRejectsEmptyRequests() {
	c := s.newCommitter()

	req := s.request("")
	_, err := c.Commit(s.ctx, req)
	s.True(dErrors.Is(err, dErrors.CodeValidation))

	req = s.request("co-6:grp-1")
	req.Group.Items = nil
	_, err = c.Commit(s.ctx, req)
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}
