package succession

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/roles"
)

// Volunteer is a pending CEO candidacy. It exists only between nomination and
// sweep resolution or manual clearing.
type Volunteer struct {
	CharacterID   int64
	CorporationID int64
	ExpiresAt     time.Time
}

// TxRepository groups the swap writes sharing one transaction.
type TxRepository interface {
	UpdateMemberRole(ctx context.Context, corporationID, characterID int64, role roles.RoleSet) error
	InsertRoleHistory(ctx context.Context, corporationID, characterID int64, oldRole, newRole roles.RoleSet, at time.Time) error
	DeleteVolunteer(ctx context.Context, characterID int64) error
}

// RepositoryPort abstracts volunteer persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error) error
	Insert(ctx context.Context, v Volunteer) error
	Delete(ctx context.Context, characterID int64) error
	ListExpired(ctx context.Context, now time.Time) ([]Volunteer, error)
}

// CorpPort is the slice of corporation persistence the succession flow reads.
type CorpPort interface {
	GetMemberByCharacter(ctx context.Context, characterID int64) (corp.Member, error)
	FindCEO(ctx context.Context, corporationID int64) (corp.Member, error)
	CountMembers(ctx context.Context, corporationID int64) (int, error)
}

// Config groups succession tunables.
type Config struct {
	// Window is how long a candidacy stays open before the sweep resolves it.
	Window time.Duration
	// Capacity the volunteer could sustain as CEO: BaseMemberLimit +
	// level*MembersPerLevel, mirroring the corporation capacity rule.
	BaseMemberLimit int
	MembersPerLevel int
}

// Service implements the volunteer CEO succession protocol.
type Service struct {
	repo       RepositoryPort
	corps      CorpPort
	characters corp.CharacterPort
	chat       corp.ChatPort
	info       corp.InfoCachePort
	messenger  messaging.Messenger
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, corps CorpPort, characters corp.CharacterPort,
	chat corp.ChatPort, info corp.InfoCachePort, messenger messaging.Messenger,
	cfg Config, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		corps:      corps,
		characters: characters,
		chat:       chat,
		info:       info,
		messenger:  messenger,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Volunteer opens a candidacy for the calling character. Only a Deputy CEO
// who is not also CEO may volunteer.
func (s *Service) Volunteer(ctx context.Context, characterID int64) error {
	member, err := s.corps.GetMemberByCharacter(ctx, characterID)
	if err != nil {
		return err
	}
	if member.Role&roles.DeputyCEO == 0 || member.Role&roles.CEO != 0 {
		return corp.ErrInsufficientPrivileges
	}
	v := Volunteer{
		CharacterID:   characterID,
		CorporationID: member.CorporationID,
		ExpiresAt:     s.now().Add(s.cfg.Window),
	}
	if err := s.repo.Insert(ctx, v); err != nil {
		return err
	}
	if s.messenger != nil {
		err := s.messenger.SendToRole(ctx, member.CorporationID, roles.Leader, messaging.Message{
			Command: "corporationCEOTakeoverStarted",
			Data: map[string]any{
				"characterID": characterID,
				"expiresAt":   v.ExpiresAt.Unix(),
			},
		})
		if err != nil {
			s.logger.Warn("takeover notification", slog.Any("error", err))
		}
	}
	return nil
}

// Clear withdraws a candidacy.
func (s *Service) Clear(ctx context.Context, characterID int64) error {
	return s.repo.Delete(ctx, characterID)
}

// Sweep resolves every expired candidacy. Succession is fire-and-forget: a
// volunteer failing re-validation is dropped with no error surfaced and no
// retry. Returns the number of completed takeovers.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	swapped := 0
	for _, v := range expired {
		ok, err := s.resolve(ctx, v)
		if err != nil {
			s.logger.Error("succession resolve",
				slog.Int64("character", v.CharacterID),
				slog.Int64("corporation", v.CorporationID),
				slog.Any("error", err))
			continue
		}
		if ok {
			swapped++
		}
	}
	return swapped, nil
}

// resolve re-validates one candidacy and performs the swap. ok=false means
// the record was dropped without a takeover.
func (s *Service) resolve(ctx context.Context, v Volunteer) (bool, error) {
	member, err := s.corps.GetMemberByCharacter(ctx, v.CharacterID)
	if err != nil {
		if errors.Is(err, corp.ErrNotMember) {
			return false, s.repo.Delete(ctx, v.CharacterID)
		}
		return false, err
	}

	// Everything recorded at nomination time is re-checked: the member may
	// have moved, been demoted, or the corporation may have outgrown them.
	if member.CorporationID != v.CorporationID ||
		member.Role&roles.DeputyCEO == 0 ||
		member.Role&roles.CEO != 0 {
		return false, s.repo.Delete(ctx, v.CharacterID)
	}

	ceo, err := s.corps.FindCEO(ctx, v.CorporationID)
	if err != nil {
		if errors.Is(err, corp.ErrNotMember) {
			return false, s.repo.Delete(ctx, v.CharacterID)
		}
		return false, err
	}

	count, err := s.corps.CountMembers(ctx, v.CorporationID)
	if err != nil {
		return false, err
	}
	level, err := s.characters.CorporateManagementLevel(ctx, v.CharacterID)
	if err != nil {
		return false, err
	}
	if count > s.cfg.BaseMemberLimit+level*s.cfg.MembersPerLevel {
		return false, s.repo.Delete(ctx, v.CharacterID)
	}

	newCEORole := roles.SetRole(roles.ClearRole(member.Role, roles.DeputyCEO), roles.CEO)
	oldCEORole := roles.SetRole(roles.ClearRole(ceo.Role, roles.CEO), roles.DeputyCEO)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		now := s.now()
		if err := tx.UpdateMemberRole(ctx, v.CorporationID, ceo.CharacterID, oldCEORole); err != nil {
			return err
		}
		if err := tx.UpdateMemberRole(ctx, v.CorporationID, v.CharacterID, newCEORole); err != nil {
			return err
		}
		if err := tx.InsertRoleHistory(ctx, v.CorporationID, ceo.CharacterID, ceo.Role, oldCEORole, now); err != nil {
			return err
		}
		if err := tx.InsertRoleHistory(ctx, v.CorporationID, v.CharacterID, member.Role, newCEORole, now); err != nil {
			return err
		}
		if err := tx.DeleteVolunteer(ctx, v.CharacterID); err != nil {
			return err
		}
		uow.Defer(func() {
			s.afterSwap(ctx, v, ceo.CharacterID, oldCEORole, newCEORole)
		})
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) afterSwap(ctx context.Context, v Volunteer, oldCEO int64, oldCEORole, newCEORole roles.RoleSet) {
	if s.chat != nil {
		if err := s.chat.SetMemberRole(ctx, v.CorporationID, oldCEO, oldCEORole); err != nil {
			s.logger.Warn("chat role update", slog.Any("error", err))
		}
		if err := s.chat.SetMemberRole(ctx, v.CorporationID, v.CharacterID, newCEORole); err != nil {
			s.logger.Warn("chat role update", slog.Any("error", err))
		}
	}
	if s.info != nil {
		if err := s.info.Invalidate(ctx, v.CorporationID); err != nil {
			s.logger.Warn("info cache invalidate", slog.Any("error", err))
		}
	}
	if s.messenger != nil {
		err := s.messenger.SendToCorporation(ctx, v.CorporationID, messaging.Message{
			Command: "corporationCEOChanged",
			Data: map[string]any{
				"oldCEO": oldCEO,
				"newCEO": v.CharacterID,
			},
		})
		if err != nil {
			s.logger.Warn("ceo change notification", slog.Any("error", err))
		}
	}
}
