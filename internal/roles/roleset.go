package roles

// RoleSet is a bitmask of corporation capability flags. A member's set is
// always a subset of All; composite constants are unions of existing bits,
// not new bits.
type RoleSet uint32

const (
	CEO RoleSet = 1 << iota
	DeputyCEO
	Accountant
	PersonnelManager
	HangarOperator

	HangarAccessLow
	HangarAccessMedium
	HangarAccessHigh
	HangarAccessSecure

	HangarRemoveLow
	HangarRemoveMedium
	HangarRemoveHigh
	HangarRemoveSecure
)

// Leader covers members allowed to act on behalf of the corporation.
const Leader = CEO | DeputyCEO

// Financial covers members notified about treasury events.
const Financial = CEO | DeputyCEO | Accountant

// All is the full defined flag space.
const All = CEO | DeputyCEO | Accountant | PersonnelManager | HangarOperator |
	HangarAccessLow | HangarAccessMedium | HangarAccessHigh | HangarAccessSecure |
	HangarRemoveLow | HangarRemoveMedium | HangarRemoveHigh | HangarRemoveSecure

// IsAnyRole reports whether set intersects any of the given roles.
func IsAnyRole(set RoleSet, roles ...RoleSet) bool {
	for _, r := range roles {
		if set&r != 0 {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether every flag of every given role is present in set.
func HasAllRoles(set RoleSet, roles ...RoleSet) bool {
	for _, r := range roles {
		if set&r != r {
			return false
		}
	}
	return true
}

// SetRole returns set with the given flags added.
func SetRole(set, role RoleSet) RoleSet {
	return set | role
}

// ClearRole returns set with the given flags removed.
func ClearRole(set, role RoleSet) RoleSet {
	return set &^ role
}

// Sanitize drops any bits outside the defined flag space.
func Sanitize(set RoleSet) RoleSet {
	return set & All
}

// HangarTier is one of the four ordered hangar access levels.
type HangarTier int

const (
	TierNone HangarTier = iota
	TierLow
	TierMedium
	TierHigh
	TierSecure
)

var accessByTier = map[HangarTier]RoleSet{
	TierLow:    HangarAccessLow,
	TierMedium: HangarAccessMedium,
	TierHigh:   HangarAccessHigh,
	TierSecure: HangarAccessSecure,
}

var removeByTier = map[HangarTier]RoleSet{
	TierLow:    HangarRemoveLow,
	TierMedium: HangarRemoveMedium,
	TierHigh:   HangarRemoveHigh,
	TierSecure: HangarRemoveSecure,
}

// AccessFor returns the access flag for a tier, or zero for TierNone.
func AccessFor(tier HangarTier) RoleSet {
	return accessByTier[tier]
}

// RemoveFor returns the remove flag derived from a tier, or zero for TierNone.
func RemoveFor(tier HangarTier) RoleSet {
	return removeByTier[tier]
}

// HighestHangarAccess resolves the highest single access tier present in set.
func HighestHangarAccess(set RoleSet) HangarTier {
	switch {
	case set&HangarAccessSecure != 0:
		return TierSecure
	case set&HangarAccessHigh != 0:
		return TierHigh
	case set&HangarAccessMedium != 0:
		return TierMedium
	case set&HangarAccessLow != 0:
		return TierLow
	}
	return TierNone
}

// CleanUpHangarAccess adds the access bit implied by any remove bit the set
// holds. After cleanup, holding remove rights without the matching access bit
// is impossible.
func CleanUpHangarAccess(set RoleSet) RoleSet {
	for tier, remove := range removeByTier {
		if set&remove != 0 {
			set |= accessByTier[tier]
		}
	}
	return set
}
