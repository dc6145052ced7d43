package corp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/halcyongames/starhold/internal/bus"
)

// CachedCorporation is one entry of the per-process read cache.
type CachedCorporation struct {
	Corporation
	Members []Member
}

// LoaderPort reads corporation state from the shared store for cache fills.
type LoaderPort interface {
	GetCorporation(ctx context.Context, id int64) (Corporation, error)
	ListMembers(ctx context.Context, corporationID int64) ([]Member, error)
}

// Handler is the per-zone-process corporation cache. Entries are populated
// lazily on access and patched incrementally by broadcast commands from other
// processes. A missed broadcast self-heals on the next lazy reload; there is
// no TTL.
type Handler struct {
	mu     sync.RWMutex
	cache  map[int64]*CachedCorporation
	loader LoaderPort
	logger *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(loader LoaderPort, logger *slog.Logger) *Handler {
	return &Handler{
		cache:  make(map[int64]*CachedCorporation),
		loader: loader,
		logger: logger,
	}
}

// Get returns the cached corporation, loading it from the store on a miss.
func (h *Handler) Get(ctx context.Context, id int64) (*CachedCorporation, error) {
	h.mu.RLock()
	entry, ok := h.cache[id]
	h.mu.RUnlock()
	if ok {
		return entry, nil
	}

	corporation, err := h.loader.GetCorporation(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := h.loader.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	entry = &CachedCorporation{Corporation: corporation, Members: members}

	h.mu.Lock()
	h.cache[id] = entry
	h.mu.Unlock()
	return entry, nil
}

// Peek returns the cached entry without loading on a miss.
func (h *Handler) Peek(id int64) (*CachedCorporation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.cache[id]
	return entry, ok
}

// Apply patches the local cache with one incremental broadcast update.
// Corporations this process never loaded are left alone; they will be read
// fresh on first access.
func (h *Handler) Apply(ctx context.Context, cmd bus.Command) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch cmd.Kind {
	case bus.KindTransferMember:
		p := cmd.TransferMember
		if p == nil {
			return fmt.Errorf("corp: transfer_member payload missing")
		}
		if entry, ok := h.cache[p.FromCorp]; ok {
			entry.Members = removeMember(entry.Members, p.CharacterID)
		}
		if entry, ok := h.cache[p.ToCorp]; ok && !hasMember(entry.Members, p.CharacterID) {
			entry.Members = append(entry.Members, Member{
				CharacterID:   p.CharacterID,
				CorporationID: p.ToCorp,
			})
		}
	case bus.KindChangeRole:
		p := cmd.ChangeRole
		if p == nil {
			return fmt.Errorf("corp: change_role payload missing")
		}
		entry, ok := h.cache[p.CorporationID]
		if !ok {
			return nil
		}
		for i := range entry.Members {
			if entry.Members[i].CharacterID == p.CharacterID {
				entry.Members[i].Role = p.NewRole
				return nil
			}
		}
		h.logger.Debug("change_role for uncached member",
			slog.Int64("corporation", p.CorporationID),
			slog.Int64("character", p.CharacterID))
	case bus.KindClose:
		p := cmd.Close
		if p == nil {
			return fmt.Errorf("corp: close payload missing")
		}
		delete(h.cache, p.CorporationID)
	default:
		return fmt.Errorf("corp: unknown broadcast kind %q", cmd.Kind)
	}
	return nil
}

// removeMember filters into a fresh slice; the old backing array may still be
// referenced by snapshots handed out before this broadcast arrived.
func removeMember(members []Member, characterID int64) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.CharacterID != characterID {
			out = append(out, m)
		}
	}
	return out
}

func hasMember(members []Member, characterID int64) bool {
	for _, m := range members {
		if m.CharacterID == characterID {
			return true
		}
	}
	return false
}
