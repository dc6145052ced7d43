package succession

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/roles"
)

// Repository provides PostgreSQL backed persistence for CEO candidacies.
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

// Insert records a candidacy. A character volunteering twice refreshes the
// expiry instead of erroring.
func (r *Repository) Insert(ctx context.Context, v Volunteer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ceo_takeover_candidates (character_id, corporation_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (character_id) DO UPDATE SET corporation_id = $2, expires_at = $3`,
		v.CharacterID, v.CorporationID, v.ExpiresAt)
	if err != nil {
		return fmt.Errorf("succession: insert: %w", err)
	}
	return nil
}

// Delete drops a candidacy. Deleting a missing row is not an error.
func (r *Repository) Delete(ctx context.Context, characterID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM ceo_takeover_candidates WHERE character_id = $1`, characterID)
	if err != nil {
		return fmt.Errorf("succession: delete: %w", err)
	}
	return nil
}

// ListExpired returns candidacies whose window has closed.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]Volunteer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT character_id, corporation_id, expires_at
		FROM ceo_takeover_candidates
		WHERE expires_at <= $1
		ORDER BY expires_at
		LIMIT 100`, now)
	if err != nil {
		return nil, fmt.Errorf("succession: list expired: %w", err)
	}
	defer rows.Close()

	var out []Volunteer
	for rows.Next() {
		var v Volunteer
		if err := rows.Scan(&v.CharacterID, &v.CorporationID, &v.ExpiresAt); err != nil {
			return nil, fmt.Errorf("succession: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) UpdateMemberRole(ctx context.Context, corporationID, characterID int64, role roles.RoleSet) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE corporation_members SET role = $3
		WHERE corporation_id = $1 AND character_id = $2`,
		corporationID, characterID, role)
	if err != nil {
		return fmt.Errorf("succession: update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("succession: update role: member %d not in corporation %d", characterID, corporationID)
	}
	return nil
}

func (t *txRepository) InsertRoleHistory(ctx context.Context, corporationID, characterID int64, oldRole, newRole roles.RoleSet, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO corporation_role_history (corporation_id, character_id, old_role, new_role, changed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		corporationID, characterID, oldRole, newRole, at)
	if err != nil {
		return fmt.Errorf("succession: role history: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteVolunteer(ctx context.Context, characterID int64) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM ceo_takeover_candidates WHERE character_id = $1`, characterID)
	if err != nil {
		return fmt.Errorf("succession: delete volunteer: %w", err)
	}
	return nil
}
