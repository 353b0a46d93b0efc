package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"wishwell/pkg/domain"
	"wishwell/pkg/platform/sentinel"
)

// Postgres persists idempotency receipts. The primary key on request_key is
// the uniqueness guarantee the commit protocol relies on.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed receipt store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the receipts table when missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS order_receipts (
			request_key TEXT PRIMARY KEY,
			external_order_id TEXT NOT NULL DEFAULT '',
			order_number TEXT NOT NULL DEFAULT '',
			total_price BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			estimated_delivery TIMESTAMPTZ,
			status TEXT NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("migrate order receipts: %w", err)
	}
	return nil
}

func (s *Postgres) CreateIfAbsent(ctx context.Context, r *Receipt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_receipts (request_key, external_order_id, order_number, total_price,
			currency, estimated_delivery, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		r.RequestKey, r.ExternalOrderID, r.OrderNumber, int64(r.TotalPrice),
		string(r.Currency), r.EstimatedDelivery, string(r.Status), r.Attempts, r.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create receipt: %w", err)
	}
	return nil
}

func (s *Postgres) Find(ctx context.Context, requestKey string) (*Receipt, error) {
	var (
		r         Receipt
		currency  string
		status    string
		estimated sql.NullTime
		total     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT request_key, external_order_id, order_number, total_price, currency,
			estimated_delivery, status, attempts, created_at, updated_at
		FROM order_receipts WHERE request_key = $1`, requestKey).
		Scan(&r.RequestKey, &r.ExternalOrderID, &r.OrderNumber, &total, &currency,
			&estimated, &status, &r.Attempts, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	r.TotalPrice = domain.Cents(total)
	r.Currency = domain.Currency(currency)
	r.Status = ReceiptStatus(status)
	if estimated.Valid {
		r.EstimatedDelivery = estimated.Time
	}
	return &r, nil
}

func (s *Postgres) ClaimRetry(ctx context.Context, requestKey string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE order_receipts
		SET status = $1, updated_at = now()
		WHERE request_key = $2 AND status = $3`,
		string(ReceiptPending), requestKey, string(ReceiptFailed))
	if err != nil {
		return fmt.Errorf("claim retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim retry: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, r *Receipt) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE order_receipts
		SET external_order_id = $1, order_number = $2, total_price = $3, currency = $4,
			estimated_delivery = $5, status = $6, attempts = $7, updated_at = now()
		WHERE request_key = $8`,
		r.ExternalOrderID, r.OrderNumber, int64(r.TotalPrice), string(r.Currency),
		r.EstimatedDelivery, string(r.Status), r.Attempts, r.RequestKey)
	if err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
