package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/halcyongames/starhold/internal/observability"
	"github.com/halcyongames/starhold/internal/shared"
)

// Applier consumes broadcast commands on the receiving side.
type Applier interface {
	Apply(ctx context.Context, cmd Command) error
}

// Publisher pushes commands onto the broadcast channel. It is invoked only
// from post-commit hooks, never inside an open transaction.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher constructs a Publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: shared.BroadcastChannel}
}

// Publish sends the command to every subscribed zone process.
func (p *Publisher) Publish(ctx context.Context, cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("bus: marshal command: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	return nil
}

// Subscriber applies incoming commands to a local cache, skipping commands
// this process originated. A missed broadcast is repaired by the cache's own
// lazy reload, so subscription errors are logged and the loop resumes.
type Subscriber struct {
	client  *redis.Client
	channel string
	origin  string
	applier Applier
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSubscriber constructs a Subscriber for the given process origin.
func NewSubscriber(client *redis.Client, origin string, applier Applier, metrics *observability.Metrics, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		client:  client,
		channel: shared.BroadcastChannel,
		origin:  origin,
		applier: applier,
		metrics: metrics,
		logger:  logger,
	}
}

// Run consumes broadcasts until context cancellation.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer func() {
		_ = sub.Close()
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("bus: subscription closed")
			}
			var cmd Command
			if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
				s.logger.Warn("bus: drop malformed command", slog.Any("error", err))
				continue
			}
			if cmd.Origin == s.origin {
				continue
			}
			if err := s.applier.Apply(ctx, cmd); err != nil {
				s.logger.Error("bus: apply command",
					slog.String("id", cmd.ID),
					slog.String("kind", string(cmd.Kind)),
					slog.Any("error", err))
				continue
			}
			s.metrics.BroadcastApplied(string(cmd.Kind))
		}
	}
}
