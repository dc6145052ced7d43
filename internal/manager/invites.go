package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/halcyongames/starhold/internal/messaging"
)

// Invite is a pending recruitment offer. Process-local only: an invite dies
// with the zone that issued it.
type Invite struct {
	SenderID  int64
	CreatedAt time.Time
}

// InviteRegistry tracks outstanding invites keyed by the invited character.
// Unanswered invites expire and are resolved as declined to both parties.
type InviteRegistry struct {
	mu        sync.Mutex
	invites   map[int64]Invite
	ttl       time.Duration
	messenger messaging.Messenger
	logger    *slog.Logger
	now       func() time.Time
}

// NewInviteRegistry builds a registry with the given invite lifetime.
func NewInviteRegistry(ttl time.Duration, messenger messaging.Messenger, logger *slog.Logger) *InviteRegistry {
	return &InviteRegistry{
		invites:   make(map[int64]Invite),
		ttl:       ttl,
		messenger: messenger,
		logger:    logger,
		now:       time.Now,
	}
}

// Add records an invite from sender to target, replacing any previous one.
func (r *InviteRegistry) Add(targetID, senderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invites[targetID] = Invite{SenderID: senderID, CreatedAt: r.now()}
}

// Take consumes the invite for target, if any. The second return reports
// whether one existed.
func (r *InviteRegistry) Take(targetID int64) (Invite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[targetID]
	if ok {
		delete(r.invites, targetID)
	}
	return inv, ok
}

// Sweep expires unanswered invites, notifying both parties of the implicit
// decline. Undeliverable notifications are dropped; the invite is gone either
// way. Returns the number expired.
func (r *InviteRegistry) Sweep(ctx context.Context) int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []struct{ target, sender int64 }
	for target, inv := range r.invites {
		if inv.CreatedAt.Before(cutoff) {
			expired = append(expired, struct{ target, sender int64 }{target, inv.SenderID})
			delete(r.invites, target)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		msg := messaging.Message{
			Command: "corporationInviteDeclined",
			Data:    map[string]any{"characterID": e.target},
		}
		if err := r.messenger.SendToCharacter(ctx, e.sender, msg); err != nil {
			r.logger.Debug("invite decline undeliverable", slog.Int64("character", e.sender))
		}
		if err := r.messenger.SendToCharacter(ctx, e.target, msg); err != nil {
			r.logger.Debug("invite decline undeliverable", slog.Int64("character", e.target))
		}
	}
	return len(expired)
}
