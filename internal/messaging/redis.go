package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/halcyongames/starhold/internal/roles"
	"github.com/halcyongames/starhold/internal/shared"
)

// envelope adds addressing for the external session router.
type envelope struct {
	Target        string  `json:"target"`
	CharacterID   int64   `json:"character_id,omitempty"`
	CharacterIDs  []int64 `json:"character_ids,omitempty"`
	CorporationID int64   `json:"corporation_id,omitempty"`
	Role          uint32  `json:"role,omitempty"`
	Message       Message `json:"message"`
}

// RedisOutbox pushes messages onto a redis list drained by the session layer.
type RedisOutbox struct {
	client *redis.Client
	queue  string
}

// NewRedisOutbox constructs a RedisOutbox.
func NewRedisOutbox(client *redis.Client) *RedisOutbox {
	return &RedisOutbox{client: client, queue: shared.OutboundMessageQueueKey}
}

func (o *RedisOutbox) push(ctx context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("messaging: marshal: %w", err)
	}
	if err := o.client.RPush(ctx, o.queue, data).Err(); err != nil {
		return fmt.Errorf("messaging: push: %w", err)
	}
	return nil
}

// SendToCharacter addresses one character.
func (o *RedisOutbox) SendToCharacter(ctx context.Context, characterID int64, msg Message) error {
	return o.push(ctx, envelope{Target: "character", CharacterID: characterID, Message: msg})
}

// SendToCharacters addresses a character list.
func (o *RedisOutbox) SendToCharacters(ctx context.Context, characterIDs []int64, msg Message) error {
	return o.push(ctx, envelope{Target: "characters", CharacterIDs: characterIDs, Message: msg})
}

// SendToCorporation addresses all members of a corporation.
func (o *RedisOutbox) SendToCorporation(ctx context.Context, corporationID int64, msg Message) error {
	return o.push(ctx, envelope{Target: "corporation", CorporationID: corporationID, Message: msg})
}

// SendToRole addresses members holding any flag of the given role subset.
func (o *RedisOutbox) SendToRole(ctx context.Context, corporationID int64, role roles.RoleSet, msg Message) error {
	return o.push(ctx, envelope{Target: "role", CorporationID: corporationID, Role: uint32(role), Message: msg})
}
