package messaging

import (
	"context"

	"github.com/halcyongames/starhold/internal/roles"
)

// Message is an outbound (command, key→value) payload. Delivery and session
// routing live outside this core; the governance layer is purely a producer.
type Message struct {
	Command string         `json:"command"`
	Data    map[string]any `json:"data"`
}

// Messenger fans messages out to characters. Implementations are best-effort:
// an undeliverable message is dropped, not retried.
type Messenger interface {
	SendToCharacter(ctx context.Context, characterID int64, msg Message) error
	SendToCharacters(ctx context.Context, characterIDs []int64, msg Message) error
	SendToCorporation(ctx context.Context, corporationID int64, msg Message) error
	SendToRole(ctx context.Context, corporationID int64, role roles.RoleSet, msg Message) error
}
