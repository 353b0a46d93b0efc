package handler

import (
	"time"

	"wishwell/internal/funding"
)

// CampaignResponse is the wire form of a campaign.
type CampaignResponse struct {
	ID                   string    `json:"id"`
	ProductRef           string    `json:"product_ref"`
	Title                string    `json:"title"`
	Organizer            string    `json:"organizer"`
	TargetAmountCents    int64     `json:"target_amount_cents"`
	CurrentAmountCents   int64     `json:"current_amount_cents"`
	RemainingCents       int64     `json:"remaining_cents"`
	MinContributionCents int64     `json:"min_contribution_cents"`
	MaxContributors      int       `json:"max_contributors,omitempty"`
	ContributorCount     int       `json:"contributor_count"`
	Deadline             time.Time `json:"deadline"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
}

// FromCampaign converts a domain campaign into its wire form.
func FromCampaign(c *funding.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:                   c.ID.String(),
		ProductRef:           c.Item.ProductRef,
		Title:                c.Item.Title,
		Organizer:            c.Organizer,
		TargetAmountCents:    int64(c.TargetAmount),
		CurrentAmountCents:   int64(c.CurrentAmount),
		RemainingCents:       int64(c.Remaining()),
		MinContributionCents: int64(c.MinContribution),
		MaxContributors:      c.MaxContributors,
		ContributorCount:     c.ContributorCount,
		Deadline:             c.Deadline,
		Status:               string(c.Status),
		CreatedAt:            c.CreatedAt,
	}
}

// ContributionResponse is the wire form of an admitted contribution.
type ContributionResponse struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// FromContribution converts a domain contribution into its wire form.
func FromContribution(c *funding.Contribution) ContributionResponse {
	return ContributionResponse{
		ID:          c.ID.String(),
		CampaignID:  c.CampaignID.String(),
		AmountCents: int64(c.Amount),
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
	}
}
