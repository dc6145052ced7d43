package corp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/roles"
	"github.com/halcyongames/starhold/internal/shared"
)

// Repository provides PostgreSQL backed persistence for corporations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction and flushes the unit of work after a
// successful commit.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error) error {
	return db.WithUnitOfWork(ctx, r.pool, func(tx pgx.Tx, uow *db.UnitOfWork) error {
		return fn(ctx, &txRepository{tx: tx}, uow)
	})
}

// GetCorporation returns one corporation by id.
func (r *Repository) GetCorporation(ctx context.Context, id int64) (Corporation, error) {
	const query = `
		SELECT id, name, nick, tax_rate, wallet, active, color, founded_at, alliance_id, is_default
		FROM corporations
		WHERE id = $1`

	var c Corporation
	var allianceID pgtype.Int8
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Nick, &c.TaxRate, &c.Wallet, &c.Active,
		&c.Color, &c.FoundedAt, &allianceID, &c.Default,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Corporation{}, ErrNotFound
	}
	if err != nil {
		return Corporation{}, fmt.Errorf("corp: get corporation: %w", err)
	}
	if allianceID.Valid {
		c.AllianceID = allianceID.Int64
	}
	return c, nil
}

// GetMemberByCharacter returns the membership row of a character.
func (r *Repository) GetMemberByCharacter(ctx context.Context, characterID int64) (Member, error) {
	const query = `
		SELECT character_id, corporation_id, role
		FROM corporation_members
		WHERE character_id = $1`

	var m Member
	err := r.pool.QueryRow(ctx, query, characterID).Scan(&m.CharacterID, &m.CorporationID, &m.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrNotMember
	}
	if err != nil {
		return Member{}, fmt.Errorf("corp: get member: %w", err)
	}
	return m, nil
}

// ListMembers returns every member of a corporation.
func (r *Repository) ListMembers(ctx context.Context, corporationID int64) ([]Member, error) {
	const query = `
		SELECT character_id, corporation_id, role
		FROM corporation_members
		WHERE corporation_id = $1
		ORDER BY character_id`

	rows, err := r.pool.Query(ctx, query, corporationID)
	if err != nil {
		return nil, fmt.Errorf("corp: list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.CharacterID, &m.CorporationID, &m.Role); err != nil {
			return nil, fmt.Errorf("corp: scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembers returns the member count of a corporation.
func (r *Repository) CountMembers(ctx context.Context, corporationID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM corporation_members WHERE corporation_id = $1`,
		corporationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("corp: count members: %w", err)
	}
	return count, nil
}

// FindCEO returns the member holding the CEO flag. First match; the single
// CEO invariant is enforced at the service layer.
func (r *Repository) FindCEO(ctx context.Context, corporationID int64) (Member, error) {
	const query = `
		SELECT character_id, corporation_id, role
		FROM corporation_members
		WHERE corporation_id = $1 AND (role & $2) <> 0
		LIMIT 1`

	var m Member
	err := r.pool.QueryRow(ctx, query, corporationID, int64(roles.CEO)).
		Scan(&m.CharacterID, &m.CorporationID, &m.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, ErrNotMember
	}
	if err != nil {
		return Member{}, fmt.Errorf("corp: find ceo: %w", err)
	}
	return m, nil
}

// LastLeftAt returns the most recent time the character left any private
// corporation, or the zero time if no span is closed yet.
func (r *Repository) LastLeftAt(ctx context.Context, characterID int64) (time.Time, error) {
	const query = `
		SELECT MAX(h.left_at)
		FROM corporation_history h
		JOIN corporations c ON c.id = h.corporation_id
		WHERE h.character_id = $1 AND h.left_at IS NOT NULL AND NOT c.is_default`

	var left pgtype.Timestamptz
	if err := r.pool.QueryRow(ctx, query, characterID).Scan(&left); err != nil {
		return time.Time{}, fmt.Errorf("corp: last left at: %w", err)
	}
	if !left.Valid {
		return time.Time{}, nil
	}
	return left.Time, nil
}

// ListDueLeaveRequests returns leave rows whose timestamp has passed.
func (r *Repository) ListDueLeaveRequests(ctx context.Context, now time.Time, limit int) ([]LeaveRequest, error) {
	const query = `
		SELECT character_id, corporation_id, due_at
		FROM corporation_leave
		WHERE due_at <= $1
		ORDER BY due_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("corp: list due leaves: %w", err)
	}
	defer rows.Close()

	var reqs []LeaveRequest
	for rows.Next() {
		var req LeaveRequest
		if err := rows.Scan(&req.CharacterID, &req.CorporationID, &req.DueAt); err != nil {
			return nil, fmt.Errorf("corp: scan leave: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// CorporateManagementLevel reads the CEO skill level backing MaxMemberCount.
func (r *Repository) CorporateManagementLevel(ctx context.Context, characterID int64) (int, error) {
	var level int
	err := r.pool.QueryRow(ctx,
		`SELECT corporate_management_level FROM characters WHERE id = $1`,
		characterID).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("corp: corporate management level: %w", err)
	}
	return level, nil
}

// GetInfo builds the public info snapshot straight from the store.
func (r *Repository) GetInfo(ctx context.Context, corporationID int64) (Info, error) {
	const query = `
		SELECT c.id, c.name, c.nick, c.tax_rate, c.active, COALESCE(c.alliance_id, 0),
			(SELECT COUNT(*) FROM corporation_members m WHERE m.corporation_id = c.id)
		FROM corporations c
		WHERE c.id = $1`

	var info Info
	err := r.pool.QueryRow(ctx, query, corporationID).Scan(
		&info.ID, &info.Name, &info.Nick, &info.TaxRate, &info.Active,
		&info.AllianceID, &info.MemberCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("corp: get info: %w", err)
	}
	return info, nil
}

// InsertDocument stores a document and returns its id.
func (r *Repository) InsertDocument(ctx context.Context, d Document) (int64, error) {
	const query = `
		INSERT INTO corporation_documents (corporation_id, title, body, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		d.CorporationID, d.Title, d.Body, d.AuthorID, d.CreatedAt, d.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("corp: insert document: %w", err)
	}
	return id, nil
}

// GetDocument returns one document by id.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	const query = `
		SELECT id, corporation_id, title, body, author_id, created_at, updated_at
		FROM corporation_documents
		WHERE id = $1`

	var d Document
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.CorporationID, &d.Title, &d.Body, &d.AuthorID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("corp: get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns every document of a corporation, newest first.
func (r *Repository) ListDocuments(ctx context.Context, corporationID int64) ([]Document, error) {
	const query = `
		SELECT id, corporation_id, title, body, author_id, created_at, updated_at
		FROM corporation_documents
		WHERE corporation_id = $1
		ORDER BY updated_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, corporationID)
	if err != nil {
		return nil, fmt.Errorf("corp: list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.CorporationID, &d.Title, &d.Body,
			&d.AuthorID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("corp: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateDocument rewrites title and body, bumping updated_at.
func (r *Repository) UpdateDocument(ctx context.Context, id int64, title, body string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE corporation_documents SET title = $2, body = $3, updated_at = $4 WHERE id = $1`,
		id, title, body, at)
	if err != nil {
		return fmt.Errorf("corp: update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteDocument removes a document row.
func (r *Repository) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM corporation_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("corp: delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// ListLedgerDrift compares each private corporation's wallet against the sum
// of its transaction-log legs since founding. Default corporations are
// excluded; their treasuries absorb untracked NPC flows.
func (r *Repository) ListLedgerDrift(ctx context.Context) ([]LedgerDrift, error) {
	const query = `
		SELECT c.id, c.wallet, COALESCE(SUM(t.amount), 0)
		FROM corporations c
		LEFT JOIN corporation_transactions t ON t.corporation_id = c.id
		WHERE c.active AND NOT c.is_default
		GROUP BY c.id, c.wallet
		HAVING c.wallet <> COALESCE(SUM(t.amount), 0)
		ORDER BY c.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("corp: list ledger drift: %w", err)
	}
	defer rows.Close()

	var drifts []LedgerDrift
	for rows.Next() {
		var d LedgerDrift
		if err := rows.Scan(&d.CorporationID, &d.Wallet, &d.LedgerTotal); err != nil {
			return nil, fmt.Errorf("corp: scan ledger drift: %w", err)
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// txRepository implements TxRepository over an open pgx transaction.
type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) exec(ctx context.Context, label, query string, args ...any) error {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("corp: %s: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("corp: %s: %w", label, shared.ErrNoRowsAffected)
	}
	return nil
}

func (t *txRepository) UpsertMember(ctx context.Context, m Member) error {
	return t.exec(ctx, "upsert member", `
		INSERT INTO corporation_members (corporation_id, character_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (corporation_id, character_id) DO UPDATE SET role = EXCLUDED.role`,
		m.CorporationID, m.CharacterID, int64(m.Role))
}

func (t *txRepository) DeleteMember(ctx context.Context, corporationID, characterID int64) error {
	return t.exec(ctx, "delete member",
		`DELETE FROM corporation_members WHERE corporation_id = $1 AND character_id = $2`,
		corporationID, characterID)
}

func (t *txRepository) UpdateMemberRole(ctx context.Context, corporationID, characterID int64, role roles.RoleSet) error {
	return t.exec(ctx, "update member role",
		`UPDATE corporation_members SET role = $3 WHERE corporation_id = $1 AND character_id = $2`,
		corporationID, characterID, int64(role))
}

func (t *txRepository) SetCharacterCorporation(ctx context.Context, characterID, corporationID int64) error {
	return t.exec(ctx, "set character corporation",
		`UPDATE characters SET corporation_id = $2 WHERE id = $1`,
		characterID, corporationID)
}

func (t *txRepository) CloseHistory(ctx context.Context, characterID, corporationID int64, at time.Time) error {
	return t.exec(ctx, "close history", `
		UPDATE corporation_history SET left_at = $3
		WHERE character_id = $1 AND corporation_id = $2 AND left_at IS NULL`,
		characterID, corporationID, at)
}

func (t *txRepository) OpenHistory(ctx context.Context, characterID, corporationID int64, at time.Time) error {
	return t.exec(ctx, "open history", `
		INSERT INTO corporation_history (character_id, corporation_id, joined_at)
		VALUES ($1, $2, $3)`,
		characterID, corporationID, at)
}

func (t *txRepository) InsertRoleHistory(ctx context.Context, corporationID, characterID int64, oldRole, newRole roles.RoleSet, at time.Time) error {
	return t.exec(ctx, "insert role history", `
		INSERT INTO corporation_role_history (corporation_id, character_id, old_role, new_role, changed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		corporationID, characterID, int64(oldRole), int64(newRole), at)
}

func (t *txRepository) SetActive(ctx context.Context, corporationID int64, active bool) error {
	return t.exec(ctx, "set active",
		`UPDATE corporations SET active = $2 WHERE id = $1`,
		corporationID, active)
}

func (t *txRepository) ClearListing(ctx context.Context, corporationID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM yellow_pages WHERE corporation_id = $1`, corporationID)
	if err != nil {
		return fmt.Errorf("corp: clear listing: %w", err)
	}
	return nil
}

func (t *txRepository) DeleteApplications(ctx context.Context, characterID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM corporation_applications WHERE character_id = $1`, characterID)
	if err != nil {
		return fmt.Errorf("corp: delete applications: %w", err)
	}
	return nil
}

func (t *txRepository) InsertLeaveRequest(ctx context.Context, req LeaveRequest) error {
	return t.exec(ctx, "insert leave request", `
		INSERT INTO corporation_leave (character_id, corporation_id, due_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (character_id) DO UPDATE SET corporation_id = EXCLUDED.corporation_id, due_at = EXCLUDED.due_at`,
		req.CharacterID, req.CorporationID, req.DueAt)
}

func (t *txRepository) DeleteLeaveRequest(ctx context.Context, characterID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM corporation_leave WHERE character_id = $1`, characterID)
	if err != nil {
		return fmt.Errorf("corp: delete leave request: %w", err)
	}
	return nil
}

// DebitCorporation subtracts amount, failing with ErrInsufficientFunds when
// the balance cannot cover it. The balance check and the write are one
// statement, so concurrent debits cannot overdraw.
func (t *txRepository) DebitCorporation(ctx context.Context, corporationID, amount int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE corporations SET wallet = wallet - $2 WHERE id = $1 AND wallet >= $2`,
		corporationID, amount)
	if err != nil {
		return fmt.Errorf("corp: debit corporation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (t *txRepository) CreditCorporation(ctx context.Context, corporationID, amount int64) error {
	return t.exec(ctx, "credit corporation",
		`UPDATE corporations SET wallet = wallet + $2 WHERE id = $1`,
		corporationID, amount)
}

func (t *txRepository) CreditCharacter(ctx context.Context, characterID, amount int64) error {
	return t.exec(ctx, "credit character",
		`UPDATE characters SET wallet = wallet + $2 WHERE id = $1`,
		characterID, amount)
}

func (t *txRepository) LogTransaction(ctx context.Context, tr Transaction) error {
	var characterID, counterparty pgtype.Int8
	if tr.CharacterID != 0 {
		characterID = pgtype.Int8{Int64: tr.CharacterID, Valid: true}
	}
	if tr.CounterpartyCorp != 0 {
		counterparty = pgtype.Int8{Int64: tr.CounterpartyCorp, Valid: true}
	}
	return t.exec(ctx, "log transaction", `
		INSERT INTO corporation_transactions (corporation_id, character_id, counterparty_corp, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tr.CorporationID, characterID, counterparty, tr.Amount, tr.Reason, tr.CreatedAt)
}

func (t *txRepository) CountMembers(ctx context.Context, corporationID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM corporation_members WHERE corporation_id = $1`,
		corporationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("corp: count members: %w", err)
	}
	return count, nil
}
