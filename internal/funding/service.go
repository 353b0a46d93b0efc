package funding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wishwell/internal/funding/metrics"
	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
	dErrors "wishwell/pkg/domain-errors"
	"wishwell/pkg/platform/sentinel"
)

// admitAttempts bounds the optimistic-concurrency replay loop. Contention on
// one campaign resolves in one or two replays in practice; the bound exists so
// a pathological store cannot spin the request forever.
const admitAttempts = 5

// Catalog is the external catalog/pricing collaborator, consumed at campaign
// start to snapshot the item.
type Catalog interface {
	ItemSnapshot(ctx context.Context, productRef, variantRef string) (shipping.ItemRef, error)
}

// Service is the pooled-contribution ledger for group-gift campaigns. It owns
// every campaign mutation: admit, completion, expiry and cancellation.
type Service struct {
	store   Store
	catalog Catalog
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source; for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds the ledger service. metrics may be nil.
func NewService(store Store, catalog Catalog, m *metrics.Metrics, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		catalog: catalog,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCampaignRequest carries everything needed to open a campaign.
type StartCampaignRequest struct {
	ProductRef      string
	VariantRef      string
	Quantity        int
	ShipTo          shipping.Address
	Organizer       string
	OrganizerEmail  string
	TargetAmount    domain.Cents
	MinContribution domain.Cents
	MaxContributors int
	Deadline        time.Time
}

// StartCampaign snapshots the item and opens an active campaign.
func (s *Service) StartCampaign(ctx context.Context, req StartCampaignRequest) (*Campaign, error) {
	now := s.now()
	switch {
	case req.TargetAmount <= 0:
		return nil, dErrors.New(dErrors.CodeValidation, "target amount must be positive")
	case req.MinContribution <= 0:
		return nil, dErrors.New(dErrors.CodeValidation, "minimum contribution must be positive")
	case req.MinContribution > req.TargetAmount:
		return nil, dErrors.New(dErrors.CodeValidation, "minimum contribution exceeds target")
	case req.MaxContributors < 0:
		return nil, dErrors.New(dErrors.CodeValidation, "max contributors must not be negative")
	case !req.Deadline.After(now):
		return nil, dErrors.New(dErrors.CodeValidation, "deadline must be in the future")
	case req.Organizer == "":
		return nil, dErrors.New(dErrors.CodeValidation, "organizer is required")
	}
	if err := req.ShipTo.Validate(); err != nil {
		return nil, err
	}
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}

	item, err := s.catalog.ItemSnapshot(ctx, req.ProductRef, req.VariantRef)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "catalog snapshot failed", err)
	}
	item.Quantity = qty

	c := &Campaign{
		ID:              domain.NewCampaignID(),
		Item:            item,
		ShipTo:          req.ShipTo,
		Organizer:       req.Organizer,
		OrganizerEmail:  req.OrganizerEmail,
		TargetAmount:    req.TargetAmount,
		MinContribution: req.MinContribution,
		MaxContributors: req.MaxContributors,
		Deadline:        req.Deadline,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "create campaign", err)
	}
	s.logger.InfoContext(ctx, "campaign started",
		"campaign_id", c.ID.String(),
		"target", int64(c.TargetAmount),
		"deadline", c.Deadline,
	)
	return c, nil
}

// ContributeRequest carries one contribution attempt.
type ContributeRequest struct {
	CampaignID    domain.CampaignID
	Amount        domain.Cents
	ContributorID string
	Anonymous     bool
	PaymentRef    string
}

// Contribute admits one contribution against the current campaign balance.
//
// Preconditions are checked against a fresh snapshot on every attempt and the
// increment-and-complete is a single atomic store operation, so two
// contributions that jointly overshoot have exactly one winner; the loser gets
// ExceedsTarget and must re-quote against the new balance. When the admitted
// amount closes the gap exactly, the campaign transitions to completed in the
// same atomic unit and exactly one completed transition record is emitted.
func (s *Service) Contribute(ctx context.Context, req ContributeRequest) (*Contribution, error) {
	start := s.now()
	defer func() { s.metrics.ObserveAdmitLatency(s.now().Sub(start)) }()

	if req.Amount <= 0 {
		s.metrics.IncrementAdmitOutcome("below_minimum")
		return nil, dErrors.New(dErrors.CodeValidation, "contribution amount must be positive")
	}

	for attempt := 0; attempt < admitAttempts; attempt++ {
		c, err := s.store.FindCampaign(ctx, req.CampaignID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "campaign not found")
			}
			return nil, dErrors.Wrap(dErrors.CodeInternal, "load campaign", err)
		}

		if err := s.checkAdmissible(ctx, c, req.Amount); err != nil {
			return nil, err
		}

		contrib := &Contribution{
			ID:            domain.NewContributionID(),
			CampaignID:    c.ID,
			ContributorID: req.ContributorID,
			Anonymous:     req.Anonymous,
			Amount:        req.Amount,
			PaymentRef:    req.PaymentRef,
			Status:        ContributionCompleted,
			CreatedAt:     s.now(),
		}
		complete := c.CurrentAmount+req.Amount == c.TargetAmount

		err = s.store.ApplyContribution(ctx, c.ID, c.Version, contrib, complete)
		switch {
		case err == nil:
			s.metrics.IncrementAdmitOutcome("admitted")
			if complete {
				s.metrics.IncrementTransition(string(TransitionCompleted))
				s.logger.InfoContext(ctx, "campaign completed",
					"campaign_id", c.ID.String(),
					"contribution_id", contrib.ID.String(),
				)
			}
			return contrib, nil
		case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
			// Lost the race; re-read the balance and re-decide.
			s.metrics.IncrementContention()
			continue
		default:
			s.metrics.IncrementAdmitOutcome("error")
			return nil, dErrors.Wrap(dErrors.CodeInternal, "apply contribution", err)
		}
	}

	s.metrics.IncrementAdmitOutcome("conflict")
	return nil, dErrors.New(dErrors.CodeUnavailable, "campaign under heavy contention, retry")
}

// checkAdmissible validates the contribution against a campaign snapshot.
// Precondition failures are caller-correctable and never retried.
func (s *Service) checkAdmissible(ctx context.Context, c *Campaign, amount domain.Cents) error {
	now := s.now()
	if c.Status == StatusActive && !now.Before(c.Deadline) {
		// Lazy expiry: the deadline passed but the sweep has not run yet.
		s.expireNow(ctx, c)
		s.metrics.IncrementAdmitOutcome("expired")
		return dErrors.New(dErrors.CodeCampaignExpired, "campaign deadline has passed")
	}
	switch c.Status {
	case StatusActive:
	case StatusExpired:
		s.metrics.IncrementAdmitOutcome("expired")
		return dErrors.New(dErrors.CodeCampaignExpired, "campaign deadline has passed")
	default:
		s.metrics.IncrementAdmitOutcome("closed")
		return dErrors.Newf(dErrors.CodeConflict, "campaign is %s", c.Status)
	}
	if amount < c.MinContribution {
		s.metrics.IncrementAdmitOutcome("below_minimum")
		return dErrors.Newf(dErrors.CodeBelowMinimum,
			"contribution %s is below the minimum %s", amount, c.MinContribution)
	}
	if c.MaxContributors > 0 && c.ContributorCount >= c.MaxContributors {
		s.metrics.IncrementAdmitOutcome("limit_reached")
		return dErrors.New(dErrors.CodeContributorLimit, "campaign contributor limit reached")
	}
	if c.CurrentAmount+amount > c.TargetAmount {
		// Reject rather than clip so the contributor gets clear feedback and
		// can re-quote against the remaining balance.
		s.metrics.IncrementAdmitOutcome("exceeds_target")
		return dErrors.Newf(dErrors.CodeExceedsTarget,
			"contribution %s exceeds the remaining balance %s", amount, c.Remaining())
	}
	return nil
}

// ExpireIfOverdue transitions an overdue active campaign to expired.
// Idempotent: an already-expired campaign is a no-op.
func (s *Service) ExpireIfOverdue(ctx context.Context, id domain.CampaignID) error {
	c, err := s.store.FindCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "campaign not found")
		}
		return dErrors.Wrap(dErrors.CodeInternal, "load campaign", err)
	}
	if c.Status != StatusActive || s.now().Before(c.Deadline) {
		return nil
	}
	s.expireNow(ctx, c)
	return nil
}

// expireNow moves an overdue campaign to expired, tolerating races with
// concurrent admits and sweeps.
func (s *Service) expireNow(ctx context.Context, c *Campaign) {
	rec := NewTransitionRecord(c.ID, TransitionExpired, s.now())
	err := s.store.Transition(ctx, c.ID, StatusActive, StatusExpired, rec)
	switch {
	case err == nil:
		s.metrics.IncrementTransition(string(TransitionExpired))
		s.logger.InfoContext(ctx, "campaign expired",
			"campaign_id", c.ID.String(),
			"raised", int64(c.CurrentAmount),
			"target", int64(c.TargetAmount),
		)
	case errors.Is(err, sentinel.ErrInvalidState):
		// Another actor already moved it to a terminal state.
	default:
		s.logger.ErrorContext(ctx, "campaign expiry failed",
			"campaign_id", c.ID.String(), "error", err)
	}
}

// Cancel transitions an active campaign to cancelled. Idempotent: cancelling
// an already-cancelled campaign is a no-op; other terminal states conflict.
func (s *Service) Cancel(ctx context.Context, id domain.CampaignID) error {
	c, err := s.store.FindCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "campaign not found")
		}
		return dErrors.Wrap(dErrors.CodeInternal, "load campaign", err)
	}
	if c.Status == StatusCancelled {
		return nil
	}
	if c.Status.Terminal() {
		return dErrors.Newf(dErrors.CodeConflict, "campaign is %s", c.Status)
	}

	rec := NewTransitionRecord(id, TransitionCancelled, s.now())
	err = s.store.Transition(ctx, id, StatusActive, StatusCancelled, rec)
	switch {
	case err == nil:
		s.metrics.IncrementTransition(string(TransitionCancelled))
		s.logger.InfoContext(ctx, "campaign cancelled", "campaign_id", id.String())
		return nil
	case errors.Is(err, sentinel.ErrInvalidState):
		// Raced with completion or expiry; report the fresh state.
		fresh, ferr := s.store.FindCampaign(ctx, id)
		if ferr == nil && fresh.Status == StatusCancelled {
			return nil
		}
		return dErrors.New(dErrors.CodeConflict, "campaign already closed")
	default:
		return dErrors.Wrap(dErrors.CodeInternal, "cancel campaign", err)
	}
}

// Progress returns the campaign read model.
func (s *Service) Progress(ctx context.Context, id domain.CampaignID) (*Progress, error) {
	c, err := s.store.FindCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "campaign not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load campaign", err)
	}
	percent := 0.0
	if c.TargetAmount > 0 {
		percent = float64(c.CurrentAmount) / float64(c.TargetAmount) * 100
	}
	return &Progress{
		CampaignID:       c.ID,
		TargetAmount:     c.TargetAmount,
		CurrentAmount:    c.CurrentAmount,
		Remaining:        c.Remaining(),
		Percent:          percent,
		ContributorCount: c.ContributorCount,
		IsCompleted:      c.Status == StatusCompleted,
		IsExpired:        c.Status == StatusExpired || (c.Status == StatusActive && !s.now().Before(c.Deadline)),
		Deadline:         c.Deadline,
	}, nil
}

// Campaign returns the full campaign aggregate.
func (s *Service) Campaign(ctx context.Context, id domain.CampaignID) (*Campaign, error) {
	c, err := s.store.FindCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "campaign not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load campaign", err)
	}
	return c, nil
}
