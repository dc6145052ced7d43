package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/halcyongames/starhold/internal/roles"
	"github.com/halcyongames/starhold/internal/shared"
)

func newOutbox(t *testing.T) (*RedisOutbox, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisOutbox(client), mr
}

func popEnvelope(t *testing.T, mr *miniredis.Miniredis) envelope {
	t.Helper()
	raw, err := mr.Lpop(shared.OutboundMessageQueueKey)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env
}

func TestOutboxAddressing(t *testing.T) {
	outbox, mr := newOutbox(t)
	ctx := context.Background()
	msg := Message{Command: "corporationTransferMoney", Data: map[string]any{"amount": float64(500)}}

	require.NoError(t, outbox.SendToCharacter(ctx, 7, msg))
	env := popEnvelope(t, mr)
	require.Equal(t, "character", env.Target)
	require.Equal(t, int64(7), env.CharacterID)
	require.Equal(t, msg, env.Message)

	require.NoError(t, outbox.SendToCorporation(ctx, 5, msg))
	env = popEnvelope(t, mr)
	require.Equal(t, "corporation", env.Target)
	require.Equal(t, int64(5), env.CorporationID)

	require.NoError(t, outbox.SendToRole(ctx, 5, roles.Financial, msg))
	env = popEnvelope(t, mr)
	require.Equal(t, "role", env.Target)
	require.Equal(t, uint32(roles.Financial), env.Role)
}

func TestOutboxPreservesOrder(t *testing.T) {
	outbox, mr := newOutbox(t)
	ctx := context.Background()

	require.NoError(t, outbox.SendToCharacter(ctx, 1, Message{Command: "first"}))
	require.NoError(t, outbox.SendToCharacter(ctx, 1, Message{Command: "second"}))

	require.Equal(t, "first", popEnvelope(t, mr).Message.Command)
	require.Equal(t, "second", popEnvelope(t, mr).Message.Command)
}
