package bus

import (
	"github.com/google/uuid"

	"github.com/halcyongames/starhold/internal/roles"
)

// Kind discriminates broadcast command payloads.
type Kind string

const (
	KindTransferMember Kind = "transfer_member"
	KindChangeRole     Kind = "change_role"
	KindClose          Kind = "close"
)

// TransferMember announces that a character moved between corporations.
type TransferMember struct {
	CharacterID int64 `json:"character_id"`
	FromCorp    int64 `json:"from_corp"`
	ToCorp      int64 `json:"to_corp"`
}

// ChangeRole announces a committed role change.
type ChangeRole struct {
	CharacterID   int64         `json:"character_id"`
	CorporationID int64         `json:"corporation_id"`
	NewRole       roles.RoleSet `json:"new_role"`
}

// Close announces that a corporation was deactivated and every process must
// purge its cached entry.
type Close struct {
	CorporationID int64 `json:"corporation_id"`
}

// Command is the broadcast envelope. Exactly one payload field is set,
// matching Kind. Origin identifies the publishing zone process so it can skip
// its own broadcasts.
type Command struct {
	ID     string `json:"id"`
	Origin string `json:"origin"`
	Kind   Kind   `json:"kind"`

	TransferMember *TransferMember `json:"transfer_member,omitempty"`
	ChangeRole     *ChangeRole     `json:"change_role,omitempty"`
	Close          *Close          `json:"close,omitempty"`
}

// NewTransferMember builds a transfer-member command.
func NewTransferMember(origin string, characterID, fromCorp, toCorp int64) Command {
	return Command{
		ID:     uuid.NewString(),
		Origin: origin,
		Kind:   KindTransferMember,
		TransferMember: &TransferMember{
			CharacterID: characterID,
			FromCorp:    fromCorp,
			ToCorp:      toCorp,
		},
	}
}

// NewChangeRole builds a change-role command.
func NewChangeRole(origin string, characterID, corporationID int64, newRole roles.RoleSet) Command {
	return Command{
		ID:     uuid.NewString(),
		Origin: origin,
		Kind:   KindChangeRole,
		ChangeRole: &ChangeRole{
			CharacterID:   characterID,
			CorporationID: corporationID,
			NewRole:       newRole,
		},
	}
}

// NewClose builds a close command.
func NewClose(origin string, corporationID int64) Command {
	return Command{
		ID:     uuid.NewString(),
		Origin: origin,
		Kind:   KindClose,
		Close:  &Close{CorporationID: corporationID},
	}
}
