package funding

import (
	"time"

	"github.com/google/uuid"

	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
)

// Status is the campaign lifecycle state. Completed, expired and cancelled are
// terminal; no transition ever leaves a terminal state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// validTransitions defines allowed campaign state transitions.
var validTransitions = map[Status][]Status{
	StatusActive:    {StatusCompleted, StatusExpired, StatusCancelled},
	StatusCompleted: {},
	StatusExpired:   {},
	StatusCancelled: {},
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(validTransitions[s]) == 0 && s != ""
}

// CanTransitionTo checks whether the transition is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Campaign is one pooled-funding effort against a single registry item goal.
// Owned exclusively by the ledger; mutated only through its admit, expire and
// cancel operations. CurrentAmount is the authoritative sum of all completed
// contributions and never exceeds TargetAmount.
type Campaign struct {
	ID               domain.CampaignID
	Item             shipping.ItemRef
	ShipTo           shipping.Address
	Organizer        string
	OrganizerEmail   string
	TargetAmount     domain.Cents
	CurrentAmount    domain.Cents
	MinContribution  domain.Cents
	MaxContributors  int // 0 means uncapped
	ContributorCount int // completed contributions only
	Deadline         time.Time
	Status           Status
	// Fulfilled and Reconciled are orthogonal flags, not ledger states: a
	// crash between the downstream effect and the flag write is recovered by
	// re-checking the idempotent downstream result, never by re-charging.
	Fulfilled  bool
	Reconciled bool
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Remaining is the balance still needed to reach the target.
func (c *Campaign) Remaining() domain.Cents {
	return c.TargetAmount - c.CurrentAmount
}

// ContributionStatus is the contribution lifecycle state. A contribution is
// immutable once completed except for the single transition to refunded.
type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "pending"
	ContributionCompleted ContributionStatus = "completed"
	ContributionRefunded  ContributionStatus = "refunded"
	ContributionFailed    ContributionStatus = "failed"
)

// Contribution is one contributor's pledge toward a campaign.
type Contribution struct {
	ID            domain.ContributionID
	CampaignID    domain.CampaignID
	ContributorID string // empty when anonymous
	Anonymous     bool
	Amount        domain.Cents
	PaymentRef    string
	Status        ContributionStatus
	CreatedAt     time.Time
}

// TransitionKind labels a campaign state transition record.
type TransitionKind string

const (
	TransitionCompleted TransitionKind = "completed"
	TransitionExpired   TransitionKind = "expired"
	TransitionCancelled TransitionKind = "cancelled"
)

// TransitionRecord is the outbox row emitted in the same atomic unit as the
// status change it describes. The poller delivers each record at least once;
// downstream handlers are idempotent.
type TransitionRecord struct {
	ID          string
	CampaignID  domain.CampaignID
	Kind        TransitionKind
	OccurredAt  time.Time
	ProcessedAt *time.Time
}

// NewTransitionRecord builds an unprocessed record for the given transition.
func NewTransitionRecord(campaignID domain.CampaignID, kind TransitionKind, at time.Time) *TransitionRecord {
	return &TransitionRecord{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Kind:       kind,
		OccurredAt: at,
	}
}

// Progress is the read model served to contributors.
type Progress struct {
	CampaignID       domain.CampaignID `json:"campaign_id"`
	TargetAmount     domain.Cents      `json:"target_amount"`
	CurrentAmount    domain.Cents      `json:"current_amount"`
	Remaining        domain.Cents      `json:"remaining"`
	Percent          float64           `json:"percent"`
	ContributorCount int               `json:"contributor_count"`
	IsCompleted      bool              `json:"is_completed"`
	IsExpired        bool              `json:"is_expired"`
	Deadline         time.Time         `json:"deadline"`
}
