package hangar

import (
	"errors"
	"time"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/roles"
)

// ErrLeaseExpired blocks every content operation on an unpaid hangar,
// regardless of the member's roles.
var ErrLeaseExpired = errors.New("hangar: lease expired")

// Hangar is a leased storage container owned by exactly one corporation.
// Access is revoked, never deleted, on non-payment.
type Hangar struct {
	ID            int64
	CorporationID int64
	SiteID        int64
	Tier          roles.HangarTier
	LeaseStart    time.Time
	LeaseEnd      time.Time
	LeaseExpired  bool
}

// Site is the docking facility a hangar hangs off. A site owned by another
// corporation may gate billing behind a minimum standing.
type Site struct {
	ID                 int64
	OwnerCorporationID int64
	StandingLimit      int
	RentPrice          int64
	RentPeriod         time.Duration
}

// CanAccess reports whether a member with the given role set may open the
// hangar.
func (h Hangar) CanAccess(set roles.RoleSet) error {
	if h.LeaseExpired {
		return ErrLeaseExpired
	}
	if roles.HighestHangarAccess(set) < h.Tier {
		return corp.ErrInsufficientPrivileges
	}
	return nil
}

// CanRemove reports whether the member may take items out. The required
// remove right is derived from the hangar's tier via the fixed mapping.
func (h Hangar) CanRemove(set roles.RoleSet) error {
	if err := h.CanAccess(set); err != nil {
		return err
	}
	if !roles.HasAllRoles(set, roles.RemoveFor(h.Tier)) {
		return corp.ErrInsufficientPrivileges
	}
	return nil
}
