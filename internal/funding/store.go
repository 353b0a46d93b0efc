package funding

import (
	"context"
	"time"

	"wishwell/pkg/domain"
)

// Store is the ledger's persistence contract. Implementations must make
// ApplyContribution and Transition atomic per campaign; nothing in the store
// may serialize unrelated campaigns against each other.
//
// Stores return pkg/platform/sentinel errors; the service translates them into
// domain errors.
type Store interface {
	CreateCampaign(ctx context.Context, c *Campaign) error
	FindCampaign(ctx context.Context, id domain.CampaignID) (*Campaign, error)

	// ApplyContribution atomically persists the contribution, adds its amount
	// to the campaign balance, bumps the contributor count and version, and,
	// when complete is true, flips the campaign to completed and appends the
	// transition record, all as one unit. Returns sentinel.ErrConflict when
	// expectedVersion is stale so the caller can re-read and re-decide.
	ApplyContribution(ctx context.Context, campaignID domain.CampaignID, expectedVersion int, contrib *Contribution, complete bool) error

	// Transition moves the campaign from one status to another and appends the
	// transition record atomically. Returns sentinel.ErrInvalidState when the
	// campaign is not in the from status.
	Transition(ctx context.Context, campaignID domain.CampaignID, from, to Status, rec *TransitionRecord) error

	SetFulfilled(ctx context.Context, id domain.CampaignID) error
	SetReconciled(ctx context.Context, id domain.CampaignID) error

	// ListDue returns active campaigns whose deadline has passed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Campaign, error)

	ListContributions(ctx context.Context, campaignID domain.CampaignID) ([]*Contribution, error)

	// UpdateContributionStatus transitions one contribution, guarded by its
	// current status. Returns sentinel.ErrInvalidState when the contribution
	// is not in the from status (safe to ignore on refund retries).
	UpdateContributionStatus(ctx context.Context, id domain.ContributionID, from, to ContributionStatus) error

	// UnprocessedTransitions returns outbox records not yet processed, oldest
	// first.
	UnprocessedTransitions(ctx context.Context, limit int) ([]*TransitionRecord, error)
	MarkTransitionProcessed(ctx context.Context, recordID string) error
}
