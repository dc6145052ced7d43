package votes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyongames/starhold/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for votes. One entry per
// (vote, member) is enforced by a unique index on vote_entries.
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

// InsertVote opens a ballot and returns its id.
func (r *Repository) InsertVote(ctx context.Context, v Vote) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO votes (corporation_id, vote_group, name, topic, participation, consensus_rate, started_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		v.CorporationID, v.Group, v.Name, v.Topic, v.Participation, v.ConsensusRate, v.StartedAt, v.EndsAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("votes: insert: %w", err)
	}
	return id, nil
}

// GetVote returns one ballot.
func (r *Repository) GetVote(ctx context.Context, voteID int64) (Vote, error) {
	return scanVote(r.pool.QueryRow(ctx, voteQuery+` WHERE id = $1`, voteID))
}

// ListOpenVotes lists a corporation's undecided ballots.
func (r *Repository) ListOpenVotes(ctx context.Context, corporationID int64) ([]Vote, error) {
	rows, err := r.pool.Query(ctx,
		voteQuery+` WHERE corporation_id = $1 AND result IS NULL ORDER BY started_at`,
		corporationID)
	if err != nil {
		return nil, fmt.Errorf("votes: list open: %w", err)
	}
	defer rows.Close()

	var out []Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const voteQuery = `
	SELECT id, corporation_id, vote_group, name, topic, participation, consensus_rate, started_at, ends_at, result
	FROM votes`

func scanVote(row pgx.Row) (Vote, error) {
	var v Vote
	var result pgtype.Bool
	err := row.Scan(&v.ID, &v.CorporationID, &v.Group, &v.Name, &v.Topic,
		&v.Participation, &v.ConsensusRate, &v.StartedAt, &v.EndsAt, &result)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vote{}, ErrVoteNotFound
	}
	if err != nil {
		return Vote{}, fmt.Errorf("votes: scan: %w", err)
	}
	if result.Valid {
		v.Result = &result.Bool
	}
	return v, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetVoteForUpdate(ctx context.Context, voteID int64) (Vote, error) {
	return scanVote(t.tx.QueryRow(ctx, voteQuery+` WHERE id = $1 FOR UPDATE`, voteID))
}

func (t *txRepository) InsertEntry(ctx context.Context, e Entry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO vote_entries (vote_id, character_id, answer, cast_at)
		VALUES ($1, $2, $3, $4)`,
		e.VoteID, e.CharacterID, e.Answer, e.CastAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("votes: insert entry: %w", err)
	}
	return nil
}

func (t *txRepository) CountEntries(ctx context.Context, voteID int64) (int, int, error) {
	var total, yes int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE answer)
		FROM vote_entries
		WHERE vote_id = $1`, voteID).Scan(&total, &yes)
	if err != nil {
		return 0, 0, fmt.Errorf("votes: count entries: %w", err)
	}
	return total, yes, nil
}

func (t *txRepository) CloseVote(ctx context.Context, voteID int64, result bool) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE votes SET result = $2 WHERE id = $1 AND result IS NULL`,
		voteID, result)
	if err != nil {
		return false, fmt.Errorf("votes: close: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
