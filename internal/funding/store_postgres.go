package funding

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wishwell/pkg/domain"
	"wishwell/pkg/platform/sentinel"
)

// Postgres persists the ledger in PostgreSQL. The contribution admit path is a
// single transaction with an optimistic version check on the campaign row, so
// two contributors racing for the last remaining balance get exactly one
// winner.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the ledger tables when missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS campaigns (
			id UUID PRIMARY KEY,
			item JSONB NOT NULL,
			ship_to JSONB NOT NULL,
			organizer TEXT NOT NULL,
			organizer_email TEXT NOT NULL DEFAULT '',
			target_amount BIGINT NOT NULL,
			current_amount BIGINT NOT NULL DEFAULT 0,
			min_contribution BIGINT NOT NULL,
			max_contributors INT NOT NULL DEFAULT 0,
			contributor_count INT NOT NULL DEFAULT 0,
			deadline TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			fulfilled BOOLEAN NOT NULL DEFAULT FALSE,
			reconciled BOOLEAN NOT NULL DEFAULT FALSE,
			version INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT amount_within_target CHECK (current_amount <= target_amount)
		)`,
		`CREATE TABLE IF NOT EXISTS contributions (
			id UUID PRIMARY KEY,
			campaign_id UUID NOT NULL REFERENCES campaigns(id),
			contributor_id TEXT NOT NULL DEFAULT '',
			anonymous BOOLEAN NOT NULL DEFAULT FALSE,
			amount BIGINT NOT NULL,
			payment_ref TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS contributions_campaign_idx ON contributions (campaign_id)`,
		`CREATE TABLE IF NOT EXISTS campaign_transitions (
			id UUID PRIMARY KEY,
			campaign_id UUID NOT NULL REFERENCES campaigns(id),
			kind TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS transitions_unprocessed_idx ON campaign_transitions (occurred_at) WHERE processed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS campaigns_due_idx ON campaigns (deadline) WHERE status = 'active'`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

func (s *Postgres) CreateCampaign(ctx context.Context, c *Campaign) error {
	item, err := json.Marshal(c.Item)
	if err != nil {
		return fmt.Errorf("marshal item snapshot: %w", err)
	}
	shipTo, err := json.Marshal(c.ShipTo)
	if err != nil {
		return fmt.Errorf("marshal ship-to address: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, item, ship_to, organizer, organizer_email, target_amount,
			current_amount, min_contribution, max_contributors, contributor_count,
			deadline, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, 0, $9, $10, 0, $11, $11)`,
		c.ID.String(), item, shipTo, c.Organizer, c.OrganizerEmail, int64(c.TargetAmount),
		int64(c.MinContribution), c.MaxContributors, c.Deadline, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

const campaignColumns = `id, item, ship_to, organizer, organizer_email, target_amount,
	current_amount, min_contribution, max_contributors, contributor_count,
	deadline, status, fulfilled, reconciled, version, created_at, updated_at`

func (s *Postgres) FindCampaign(ctx context.Context, id domain.CampaignID) (*Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id.String())
	return scanCampaign(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*Campaign, error) {
	var (
		c            Campaign
		idStr        string
		item, shipTo []byte
		target, min  int64
		current      int64
		status       string
	)
	err := row.Scan(&idStr, &item, &shipTo, &c.Organizer, &c.OrganizerEmail, &target,
		&current, &min, &c.MaxContributors, &c.ContributorCount,
		&c.Deadline, &status, &c.Fulfilled, &c.Reconciled, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	id, err := domain.ParseCampaignID(idStr)
	if err != nil {
		return nil, fmt.Errorf("campaign id corrupt: %w", err)
	}
	c.ID = id
	c.TargetAmount = domain.Cents(target)
	c.CurrentAmount = domain.Cents(current)
	c.MinContribution = domain.Cents(min)
	c.Status = Status(status)
	if err := json.Unmarshal(item, &c.Item); err != nil {
		return nil, fmt.Errorf("item snapshot corrupt: %w", err)
	}
	if err := json.Unmarshal(shipTo, &c.ShipTo); err != nil {
		return nil, fmt.Errorf("ship-to address corrupt: %w", err)
	}
	return &c, nil
}

func (s *Postgres) ApplyContribution(ctx context.Context, campaignID domain.CampaignID, expectedVersion int, contrib *Contribution, complete bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admit tx: %w", err)
	}
	defer tx.Rollback()

	status := string(StatusActive)
	if complete {
		status = string(StatusCompleted)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns
		SET current_amount = current_amount + $1,
			contributor_count = contributor_count + 1,
			status = $2,
			version = version + 1,
			updated_at = now()
		WHERE id = $3 AND status = 'active' AND version = $4`,
		int64(contrib.Amount), status, campaignID.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("apply contribution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply contribution: %w", err)
	}
	if affected == 0 {
		// Stale version, terminal status, or missing campaign; the service
		// re-reads and decides which.
		return sentinel.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contributions (id, campaign_id, contributor_id, anonymous, amount, payment_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		contrib.ID.String(), campaignID.String(), contrib.ContributorID, contrib.Anonymous,
		int64(contrib.Amount), contrib.PaymentRef, string(contrib.Status), contrib.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}

	if complete {
		rec := NewTransitionRecord(campaignID, TransitionCompleted, time.Now())
		if err := insertTransition(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admit tx: %w", err)
	}
	return nil
}

func insertTransition(ctx context.Context, tx *sql.Tx, rec *TransitionRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO campaign_transitions (id, campaign_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.CampaignID.String(), string(rec.Kind), rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert transition record: %w", err)
	}
	return nil
}

func (s *Postgres) Transition(ctx context.Context, campaignID domain.CampaignID, from, to Status, rec *TransitionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		string(to), campaignID.String(), string(from),
	)
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInvalidState
	}
	if rec != nil {
		if err := insertTransition(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition tx: %w", err)
	}
	return nil
}

func (s *Postgres) SetFulfilled(ctx context.Context, id domain.CampaignID) error {
	return s.setFlag(ctx, id, "fulfilled")
}

func (s *Postgres) SetReconciled(ctx context.Context, id domain.CampaignID) error {
	return s.setFlag(ctx, id, "reconciled")
}

func (s *Postgres) setFlag(ctx context.Context, id domain.CampaignID, column string) error {
	// column is one of two compile-time constants, never user input.
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET `+column+` = TRUE, updated_at = now() WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListDue(ctx context.Context, now time.Time, limit int) ([]*Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'active' AND deadline <= $1
		ORDER BY deadline ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var due []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

func (s *Postgres) ListContributions(ctx context.Context, campaignID domain.CampaignID) ([]*Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, contributor_id, anonymous, amount, payment_ref, status, created_at
		FROM contributions WHERE campaign_id = $1 ORDER BY created_at ASC`,
		campaignID.String())
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []*Contribution
	for rows.Next() {
		var (
			c            Contribution
			idStr, cmpID string
			amount       int64
			status       string
		)
		if err := rows.Scan(&idStr, &cmpID, &c.ContributorID, &c.Anonymous, &amount, &c.PaymentRef, &status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		cid, err := domain.ParseContributionID(idStr)
		if err != nil {
			return nil, fmt.Errorf("contribution id corrupt: %w", err)
		}
		campID, err := domain.ParseCampaignID(cmpID)
		if err != nil {
			return nil, fmt.Errorf("campaign id corrupt: %w", err)
		}
		c.ID = cid
		c.CampaignID = campID
		c.Amount = domain.Cents(amount)
		c.Status = ContributionStatus(status)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateContributionStatus(ctx context.Context, id domain.ContributionID, from, to ContributionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contributions SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), id.String(), string(from))
	if err != nil {
		return fmt.Errorf("update contribution status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contribution status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *Postgres) UnprocessedTransitions(ctx context.Context, limit int) ([]*TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, kind, occurred_at, processed_at
		FROM campaign_transitions WHERE processed_at IS NULL
		ORDER BY occurred_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed transitions: %w", err)
	}
	defer rows.Close()

	var out []*TransitionRecord
	for rows.Next() {
		var (
			rec       TransitionRecord
			cmpID     string
			kind      string
			processed sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &cmpID, &kind, &rec.OccurredAt, &processed); err != nil {
			return nil, fmt.Errorf("scan transition record: %w", err)
		}
		campID, err := domain.ParseCampaignID(cmpID)
		if err != nil {
			return nil, fmt.Errorf("campaign id corrupt: %w", err)
		}
		rec.CampaignID = campID
		rec.Kind = TransitionKind(kind)
		if processed.Valid {
			t := processed.Time
			rec.ProcessedAt = &t
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkTransitionProcessed(ctx context.Context, recordID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaign_transitions SET processed_at = now() WHERE id = $1 AND processed_at IS NULL`,
		recordID)
	if err != nil {
		return fmt.Errorf("mark transition processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark transition processed: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
