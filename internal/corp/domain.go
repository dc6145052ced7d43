package corp

import (
	"time"

	"github.com/halcyongames/starhold/internal/roles"
)

// Corporation is a persistent player group with a shared treasury and
// role-based governance. Deactivated, never deleted, when the last member
// leaves. Default corporations are NPC-owned (freelancer pools) and never
// deactivate.
type Corporation struct {
	ID         int64
	Name       string
	Nick       string
	TaxRate    int
	Wallet     int64
	Active     bool
	Color      uint32
	FoundedAt  time.Time
	AllianceID int64
	Default    bool
}

// Member links a character to a corporation with a role bitmask. Unique per
// (corporation, character).
type Member struct {
	CharacterID   int64
	CorporationID int64
	Role          roles.RoleSet
}

// LeaveRequest is a pending leave, finalized by a periodic sweep once DueAt
// has passed. Re-initiating membership cancels it.
type LeaveRequest struct {
	CharacterID   int64
	CorporationID int64
	DueAt         time.Time
}

// HistoryEntry records one membership span in corporation_history.
type HistoryEntry struct {
	CharacterID   int64
	CorporationID int64
	JoinedAt      time.Time
	LeftAt        time.Time
	Open          bool
}

// Transaction is one treasury movement leg. Transfers always write one leg
// per party inside the same database transaction.
type Transaction struct {
	CorporationID    int64
	CharacterID      int64
	CounterpartyCorp int64
	Amount           int64
	Reason           string
	CreatedAt        time.Time
}

// LedgerDrift flags a treasury whose balance no longer matches the sum of its
// logged movement legs. Produced by the periodic income sweep for operators;
// nothing is corrected automatically.
type LedgerDrift struct {
	CorporationID int64
	Wallet        int64
	LedgerTotal   int64
}

// Info is the public corporation snapshot held in the secondary redis cache
// and served by the ops surface.
type Info struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Nick        string `json:"nick"`
	TaxRate     int    `json:"tax_rate"`
	Active      bool   `json:"active"`
	MemberCount int    `json:"member_count"`
	AllianceID  int64  `json:"alliance_id,omitempty"`
}
