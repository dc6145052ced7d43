package roles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeaderMatchesCEO(t *testing.T) {
	set := SetRole(0, CEO)
	require.True(t, IsAnyRole(set, Leader))

	set = SetRole(0, DeputyCEO)
	require.True(t, IsAnyRole(set, Leader))

	require.False(t, IsAnyRole(Accountant, Leader))
}

func TestHasAllRoles(t *testing.T) {
	set := CEO | Accountant | HangarAccessLow
	require.True(t, HasAllRoles(set, CEO, Accountant))
	require.False(t, HasAllRoles(set, CEO, DeputyCEO))
	require.False(t, HasAllRoles(set, Leader))

	set |= DeputyCEO
	require.True(t, HasAllRoles(set, Leader))
}

func TestSetAndClearRole(t *testing.T) {
	set := SetRole(0, Accountant)
	set = SetRole(set, HangarOperator)
	require.True(t, IsAnyRole(set, Accountant))
	require.True(t, IsAnyRole(set, HangarOperator))

	set = ClearRole(set, Accountant)
	require.False(t, IsAnyRole(set, Accountant))
	require.True(t, IsAnyRole(set, HangarOperator))
}

func TestSanitize(t *testing.T) {
	dirty := All | RoleSet(1<<30)
	require.Equal(t, All, Sanitize(dirty))
}

func TestHighestHangarAccess(t *testing.T) {
	require.Equal(t, TierNone, HighestHangarAccess(CEO))
	require.Equal(t, TierLow, HighestHangarAccess(HangarAccessLow))
	require.Equal(t, TierSecure, HighestHangarAccess(HangarAccessLow|HangarAccessSecure))
	require.Equal(t, TierHigh, HighestHangarAccess(HangarAccessMedium|HangarAccessHigh))
}

func TestRemoveForMatchesTier(t *testing.T) {
	require.Equal(t, HangarRemoveLow, RemoveFor(TierLow))
	require.Equal(t, HangarRemoveSecure, RemoveFor(TierSecure))
	require.Equal(t, RoleSet(0), RemoveFor(TierNone))
}

func TestCleanUpHangarAccess(t *testing.T) {
	tiers := []HangarTier{TierLow, TierMedium, TierHigh, TierSecure}
	for _, tier := range tiers {
		set := CleanUpHangarAccess(RemoveFor(tier))
		require.True(t, HasAllRoles(set, AccessFor(tier)), "tier %d", tier)
	}

	// Access without remove stays untouched.
	set := CleanUpHangarAccess(HangarAccessHigh)
	require.Equal(t, HangarAccessHigh, set)
}
