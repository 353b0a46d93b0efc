package recon

import (
	"context"
	"database/sql"
	"fmt"
)

// Postgres persists reconciliation entries so they survive restarts; operators
// drain the queue through the read endpoint.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed reconciliation store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the reconciliation table when missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reconciliation_entries (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			campaign_id TEXT NOT NULL DEFAULT '',
			request_key TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("migrate reconciliation: %w", err)
	}
	return nil
}

func (s *Postgres) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_entries (id, kind, campaign_id, request_key, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, string(e.Kind), e.CampaignID, e.RequestKey, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record reconciliation entry: %w", err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, campaign_id, request_key, detail, created_at
		FROM reconciliation_entries ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.CampaignID, &e.RequestKey, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation entry: %w", err)
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
