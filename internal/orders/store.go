package orders

import "context"

// Store persists idempotency receipts. CreateIfAbsent is the single
// atomically-checked insert that makes retried commits safe.
type Store interface {
	// CreateIfAbsent inserts the receipt, returning sentinel.ErrAlreadyUsed
	// when a record for its RequestKey already exists.
	CreateIfAbsent(ctx context.Context, r *Receipt) error
	// Find returns the receipt for the key, or sentinel.ErrNotFound.
	Find(ctx context.Context, requestKey string) (*Receipt, error)
	// Update overwrites the receipt for its RequestKey.
	Update(ctx context.Context, r *Receipt) error
	// ClaimRetry flips a failed receipt back to pending. The status guard
	// makes it a CAS: sentinel.ErrConflict means another caller holds the
	// claim (or the receipt settled meanwhile) and the loser must defer.
	ClaimRetry(ctx context.Context, requestKey string) error
}
