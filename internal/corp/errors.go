package corp

import "errors"

// Closed taxonomy of domain guard violations. Callers branch with errors.Is.
var (
	ErrNotFound               = errors.New("corp: corporation not found")
	ErrNotMember              = errors.New("corp: character is not a member")
	ErrAlreadyMember          = errors.New("corp: character is already a member")
	ErrCorporationInactive    = errors.New("corp: corporation is inactive")
	ErrMaxMembersReached      = errors.New("corp: member limit reached")
	ErrJoinCooldown           = errors.New("corp: character is in join cool-down")
	ErrRoleNotCleared         = errors.New("corp: character still holds corporation roles")
	ErrInsufficientFunds      = errors.New("corp: treasury balance insufficient")
	ErrInsufficientPrivileges = errors.New("corp: insufficient privileges")
	ErrCEOAlreadyAssigned     = errors.New("corp: another member already holds CEO")
	ErrInvalidAmount          = errors.New("corp: amount must be positive")
	ErrDocumentNotFound       = errors.New("corp: document not found")
)
