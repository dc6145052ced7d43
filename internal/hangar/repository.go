package hangar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/shared"
)

// Repository provides PostgreSQL backed persistence for hangars.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in one transaction; the unit of work flushes after commit.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error) error {
	return db.WithUnitOfWork(ctx, r.pool, func(tx pgx.Tx, uow *db.UnitOfWork) error {
		return fn(ctx, &txRepository{tx: tx}, uow)
	})
}

// ListHangars returns every corporate hangar.
func (r *Repository) ListHangars(ctx context.Context) ([]Hangar, error) {
	const query = `
		SELECT id, corporation_id, site_id, tier, lease_start, lease_end, lease_expired
		FROM corporate_hangars
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("hangar: list: %w", err)
	}
	defer rows.Close()

	var hangars []Hangar
	for rows.Next() {
		var h Hangar
		if err := rows.Scan(&h.ID, &h.CorporationID, &h.SiteID, &h.Tier,
			&h.LeaseStart, &h.LeaseEnd, &h.LeaseExpired); err != nil {
			return nil, fmt.Errorf("hangar: scan: %w", err)
		}
		hangars = append(hangars, h)
	}
	return hangars, rows.Err()
}

// GetSite returns the docking facility a hangar belongs to.
func (r *Repository) GetSite(ctx context.Context, siteID int64) (Site, error) {
	const query = `
		SELECT id, COALESCE(owner_corporation_id, 0), standing_limit, rent_price, COALESCE(rent_period_hours, 0)
		FROM docking_sites
		WHERE id = $1`

	var s Site
	var periodHours int64
	err := r.pool.QueryRow(ctx, query, siteID).Scan(
		&s.ID, &s.OwnerCorporationID, &s.StandingLimit, &s.RentPrice, &periodHours)
	if errors.Is(err, pgx.ErrNoRows) {
		return Site{}, shared.ErrNotFound
	}
	if err != nil {
		return Site{}, fmt.Errorf("hangar: get site: %w", err)
	}
	s.RentPeriod = time.Duration(periodHours) * time.Hour
	return s, nil
}

// Standing returns how owner regards toward, or 0 when no relation exists.
func (r *Repository) Standing(ctx context.Context, ownerCorp, towardCorp int64) (int, error) {
	var standing int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(standing, 0)
		FROM corporation_standings
		WHERE corporation_id = $1 AND toward_corporation_id = $2`,
		ownerCorp, towardCorp).Scan(&standing)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("hangar: standing: %w", err)
	}
	return standing, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) DebitCorporation(ctx context.Context, corporationID, amount int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE corporations SET wallet = wallet - $2 WHERE id = $1 AND wallet >= $2`,
		corporationID, amount)
	if err != nil {
		return fmt.Errorf("hangar: debit corporation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return corp.ErrInsufficientFunds
	}
	return nil
}

func (t *txRepository) ExtendLease(ctx context.Context, hangarID int64, start, end time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE corporate_hangars
		SET lease_start = $2, lease_end = $3, lease_expired = FALSE
		WHERE id = $1`,
		hangarID, start, end)
	if err != nil {
		return fmt.Errorf("hangar: extend lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("hangar: extend lease: %w", shared.ErrNoRowsAffected)
	}
	return nil
}

func (t *txRepository) MarkLeaseExpired(ctx context.Context, hangarID int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE corporate_hangars SET lease_expired = TRUE WHERE id = $1`,
		hangarID)
	if err != nil {
		return fmt.Errorf("hangar: mark expired: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("hangar: mark expired: %w", shared.ErrNoRowsAffected)
	}
	return nil
}

func (t *txRepository) LogTransaction(ctx context.Context, tr corp.Transaction) error {
	var characterID, counterparty pgtype.Int8
	if tr.CharacterID != 0 {
		characterID = pgtype.Int8{Int64: tr.CharacterID, Valid: true}
	}
	if tr.CounterpartyCorp != 0 {
		counterparty = pgtype.Int8{Int64: tr.CounterpartyCorp, Valid: true}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO corporation_transactions (corporation_id, character_id, counterparty_corp, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tr.CorporationID, characterID, counterparty, tr.Amount, tr.Reason, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("hangar: log transaction: %w", err)
	}
	return nil
}
