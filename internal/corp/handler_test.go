package corp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halcyongames/starhold/internal/bus"
	"github.com/halcyongames/starhold/internal/roles"
)

type staticLoader struct {
	corps   map[int64]Corporation
	members map[int64][]Member
	loads   int
}

func (l *staticLoader) GetCorporation(ctx context.Context, id int64) (Corporation, error) {
	l.loads++
	c, ok := l.corps[id]
	if !ok {
		return Corporation{}, ErrNotFound
	}
	return c, nil
}

func (l *staticLoader) ListMembers(ctx context.Context, corporationID int64) ([]Member, error) {
	out := make([]Member, len(l.members[corporationID]))
	copy(out, l.members[corporationID])
	return out, nil
}

func newLoader() *staticLoader {
	return &staticLoader{
		corps: map[int64]Corporation{
			5: {ID: 5, Name: "Redshift Syndicate", Active: true},
			6: {ID: 6, Name: "Pale Horizon", Active: true},
		},
		members: map[int64][]Member{
			5: {{CharacterID: 100, CorporationID: 5, Role: roles.CEO}, {CharacterID: 101, CorporationID: 5}},
			6: {{CharacterID: 200, CorporationID: 6, Role: roles.CEO}},
		},
	}
}

func TestHandlerLazyLoad(t *testing.T) {
	loader := newLoader()
	h := NewHandler(loader, testLogger())
	ctx := context.Background()

	_, ok := h.Peek(5)
	require.False(t, ok)

	entry, err := h.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "Redshift Syndicate", entry.Name)
	require.Len(t, entry.Members, 2)

	_, err = h.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 1, loader.loads, "second access served from cache")
}

func TestChangeRoleUpdatesOnlyTheReceivingCache(t *testing.T) {
	loader := newLoader()
	c1 := NewHandler(loader, testLogger())
	c2 := NewHandler(loader, testLogger())
	ctx := context.Background()

	_, err := c1.Get(ctx, 5)
	require.NoError(t, err)
	_, err = c2.Get(ctx, 5)
	require.NoError(t, err)

	cmd := bus.NewChangeRole("zone-a", 101, 5, roles.Accountant)
	require.NoError(t, c1.Apply(ctx, cmd))

	e1, _ := c1.Peek(5)
	require.Equal(t, roles.Accountant, e1.Members[1].Role)

	// C2 must NOT be updated until it receives the broadcast itself.
	e2, _ := c2.Peek(5)
	require.Equal(t, roles.RoleSet(0), e2.Members[1].Role)

	require.NoError(t, c2.Apply(ctx, cmd))
	e2, _ = c2.Peek(5)
	require.Equal(t, roles.Accountant, e2.Members[1].Role)
}

func TestTransferMemberPatchesBothCachedCorps(t *testing.T) {
	loader := newLoader()
	h := NewHandler(loader, testLogger())
	ctx := context.Background()

	_, err := h.Get(ctx, 5)
	require.NoError(t, err)
	_, err = h.Get(ctx, 6)
	require.NoError(t, err)

	require.NoError(t, h.Apply(ctx, bus.NewTransferMember("zone-a", 101, 5, 6)))

	from, _ := h.Peek(5)
	require.Len(t, from.Members, 1)
	to, _ := h.Peek(6)
	require.Len(t, to.Members, 2)
}

func TestTransferMemberKeepsEarlierSnapshotIntact(t *testing.T) {
	loader := newLoader()
	h := NewHandler(loader, testLogger())
	ctx := context.Background()

	entry, err := h.Get(ctx, 5)
	require.NoError(t, err)
	before := entry.Members

	require.NoError(t, h.Apply(ctx, bus.NewTransferMember("zone-a", 100, 5, 6)))

	// The slice captured before the broadcast must not be rewritten in place.
	require.Len(t, before, 2)
	require.Equal(t, int64(100), before[0].CharacterID)
	require.Equal(t, int64(101), before[1].CharacterID)

	after, _ := h.Peek(5)
	require.Len(t, after.Members, 1)
	require.Equal(t, int64(101), after.Members[0].CharacterID)
}

func TestTransferMemberIgnoresUncachedCorps(t *testing.T) {
	loader := newLoader()
	h := NewHandler(loader, testLogger())
	ctx := context.Background()

	require.NoError(t, h.Apply(ctx, bus.NewTransferMember("zone-a", 101, 5, 6)))
	_, ok := h.Peek(5)
	require.False(t, ok, "uncached corporation must not be loaded by a broadcast")
}

func TestClosePurgesCacheEntry(t *testing.T) {
	loader := newLoader()
	h := NewHandler(loader, testLogger())
	ctx := context.Background()

	_, err := h.Get(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, h.Apply(ctx, bus.NewClose("zone-a", 5)))
	_, ok := h.Peek(5)
	require.False(t, ok)
}

func TestApplyRejectsMalformedCommand(t *testing.T) {
	h := NewHandler(newLoader(), testLogger())
	err := h.Apply(context.Background(), bus.Command{Kind: bus.KindClose})
	require.Error(t, err)

	err = h.Apply(context.Background(), bus.Command{Kind: "bogus"})
	require.Error(t, err)
}
