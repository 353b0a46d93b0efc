package domain

import (
	"github.com/google/uuid"

	dErrors "wishwell/pkg/domain-errors"
)

// Typed identifiers for the funding and checkout aggregates. Construct via the
// Parse helpers at trust boundaries; direct casting bypasses validation.

// CampaignID identifies one pooled-funding campaign.
type CampaignID uuid.UUID

// ContributionID identifies one contribution within a campaign.
type ContributionID uuid.UUID

// NewCampaignID returns a fresh random campaign id.
func NewCampaignID() CampaignID { return CampaignID(uuid.New()) }

// NewContributionID returns a fresh random contribution id.
func NewContributionID() ContributionID { return ContributionID(uuid.New()) }

// ParseCampaignID constructs a CampaignID from external input.
func ParseCampaignID(s string) (CampaignID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return CampaignID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid campaign id")
	}
	return CampaignID(u), nil
}

// ParseContributionID constructs a ContributionID from external input.
func ParseContributionID(s string) (ContributionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ContributionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid contribution id")
	}
	return ContributionID(u), nil
}

func (id CampaignID) String() string     { return uuid.UUID(id).String() }
func (id ContributionID) String() string { return uuid.UUID(id).String() }

func (id CampaignID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ContributionID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
