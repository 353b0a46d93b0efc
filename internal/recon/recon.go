// Package recon is the operator-visible reconciliation queue. Money-affecting
// failures land here instead of being dropped: an order commit that exhausted
// its retries, a refund that could not be reversed, or an external order whose
// local confirmation is missing.
package recon

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a reconciliation entry.
type Kind string

const (
	KindOrderUnconfirmed Kind = "order_unconfirmed"
	KindCommitFailed     Kind = "commit_failed"
	KindRefundFailed     Kind = "refund_failed"
)

// Entry is one unit of operator work.
type Entry struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	CampaignID string    `json:"campaign_id,omitempty"`
	RequestKey string    `json:"request_key,omitempty"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewEntry builds an entry with a fresh id and timestamp.
func NewEntry(kind Kind, campaignID, requestKey, detail string) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Kind:       kind,
		CampaignID: campaignID,
		RequestKey: requestKey,
		Detail:     detail,
		CreatedAt:  time.Now(),
	}
}

// Recorder is the write side consumed by the committer, the fulfillment
// trigger and the refund coordinator.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store adds the operator read side.
type Store interface {
	Recorder
	List(ctx context.Context, limit int) ([]Entry, error)
}
