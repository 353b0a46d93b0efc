package handler

import (
	"time"

	"github.com/asaskevich/govalidator"

	"wishwell/internal/funding"
	"wishwell/internal/shipping"
	"wishwell/pkg/domain"
	dErrors "wishwell/pkg/domain-errors"
)

// StartCampaignRequest is the wire form of a campaign creation request.
type StartCampaignRequest struct {
	ProductRef           string           `json:"product_ref"`
	VariantRef           string           `json:"variant_ref,omitempty"`
	Quantity             int              `json:"quantity,omitempty"`
	ShipTo               shipping.Address `json:"ship_to"`
	Organizer            string           `json:"organizer"`
	OrganizerEmail       string           `json:"organizer_email"`
	TargetAmountCents    int64            `json:"target_amount_cents"`
	MinContributionCents int64            `json:"min_contribution_cents"`
	MaxContributors      int              `json:"max_contributors,omitempty"`
	Deadline             time.Time        `json:"deadline"`
}

// ToDomain validates wire-level concerns and builds the service request.
// Ledger rules (amount bounds, deadline ordering) stay in the service.
func (r StartCampaignRequest) ToDomain() (funding.StartCampaignRequest, error) {
	if r.ProductRef == "" {
		return funding.StartCampaignRequest{}, dErrors.New(dErrors.CodeValidation, "product_ref is required")
	}
	if r.OrganizerEmail == "" || !govalidator.IsEmail(r.OrganizerEmail) {
		return funding.StartCampaignRequest{}, dErrors.New(dErrors.CodeValidation, "organizer_email is invalid")
	}
	return funding.StartCampaignRequest{
		ProductRef:      r.ProductRef,
		VariantRef:      r.VariantRef,
		Quantity:        r.Quantity,
		ShipTo:          r.ShipTo,
		Organizer:       r.Organizer,
		OrganizerEmail:  r.OrganizerEmail,
		TargetAmount:    domain.Cents(r.TargetAmountCents),
		MinContribution: domain.Cents(r.MinContributionCents),
		MaxContributors: r.MaxContributors,
		Deadline:        r.Deadline,
	}, nil
}

// ContributeRequest is the wire form of a contribution.
type ContributeRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	ContributorID string `json:"contributor_id,omitempty"`
	Anonymous     bool   `json:"anonymous,omitempty"`
	PaymentRef    string `json:"payment_ref"`
}
