package corp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/halcyongames/starhold/internal/bus"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/roles"
)

// TxRepository groups writes that must share one database transaction.
type TxRepository interface {
	UpsertMember(ctx context.Context, m Member) error
	DeleteMember(ctx context.Context, corporationID, characterID int64) error
	UpdateMemberRole(ctx context.Context, corporationID, characterID int64, role roles.RoleSet) error
	SetCharacterCorporation(ctx context.Context, characterID, corporationID int64) error
	CloseHistory(ctx context.Context, characterID, corporationID int64, at time.Time) error
	OpenHistory(ctx context.Context, characterID, corporationID int64, at time.Time) error
	InsertRoleHistory(ctx context.Context, corporationID, characterID int64, oldRole, newRole roles.RoleSet, at time.Time) error
	SetActive(ctx context.Context, corporationID int64, active bool) error
	ClearListing(ctx context.Context, corporationID int64) error
	DeleteApplications(ctx context.Context, characterID int64) error
	InsertLeaveRequest(ctx context.Context, req LeaveRequest) error
	DeleteLeaveRequest(ctx context.Context, characterID int64) error
	DebitCorporation(ctx context.Context, corporationID, amount int64) error
	CreditCorporation(ctx context.Context, corporationID, amount int64) error
	CreditCharacter(ctx context.Context, characterID, amount int64) error
	LogTransaction(ctx context.Context, t Transaction) error
	CountMembers(ctx context.Context, corporationID int64) (int, error)
}

// RepositoryPort abstracts persistence for the corporation services.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error) error
	GetCorporation(ctx context.Context, id int64) (Corporation, error)
	GetMemberByCharacter(ctx context.Context, characterID int64) (Member, error)
	ListMembers(ctx context.Context, corporationID int64) ([]Member, error)
	CountMembers(ctx context.Context, corporationID int64) (int, error)
	FindCEO(ctx context.Context, corporationID int64) (Member, error)
	LastLeftAt(ctx context.Context, characterID int64) (time.Time, error)
	ListDueLeaveRequests(ctx context.Context, now time.Time, limit int) ([]LeaveRequest, error)
	InsertDocument(ctx context.Context, d Document) (int64, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, corporationID int64) ([]Document, error)
	UpdateDocument(ctx context.Context, id int64, title, body string, at time.Time) error
	DeleteDocument(ctx context.Context, id int64) error
}

// CharacterPort exposes the character data this core consumes but does not own.
type CharacterPort interface {
	CorporateManagementLevel(ctx context.Context, characterID int64) (int, error)
}

// ChatPort mirrors membership into the corporation chat channel.
type ChatPort interface {
	AddMember(ctx context.Context, corporationID, characterID int64) error
	RemoveMember(ctx context.Context, corporationID, characterID int64) error
	SetMemberRole(ctx context.Context, corporationID, characterID int64, role roles.RoleSet) error
}

// CleanupPort cascades removal side effects owned by other subsystems:
// insurance records and open market orders of the departing member.
type CleanupPort interface {
	OnMemberRemoved(ctx context.Context, corporationID, characterID int64) error
}

// BroadcastPort publishes cache invalidation commands to other zone processes.
type BroadcastPort interface {
	Publish(ctx context.Context, cmd bus.Command) error
}

// InfoCachePort invalidates the secondary public-info cache.
type InfoCachePort interface {
	Invalidate(ctx context.Context, corporationIDs ...int64) error
}

// ServiceConfig groups governance tunables.
type ServiceConfig struct {
	// Origin identifies this zone process on the broadcast channel.
	Origin string
	// FreelancerCorpID is the default corporation leavers fall back to.
	FreelancerCorpID int64
	JoinCooldown     time.Duration
	LeaveDelay       time.Duration
	// Member capacity is derived from the acting CEO's corporate-management
	// level: BaseMemberLimit + level*MembersPerLevel.
	BaseMemberLimit int
	MembersPerLevel int
}

// Service implements the corporation aggregate operations.
type Service struct {
	repo       RepositoryPort
	characters CharacterPort
	chat       ChatPort
	cleanup    CleanupPort
	messenger  messaging.Messenger
	broadcast  BroadcastPort
	info       InfoCachePort
	members    *MemberCache
	cfg        ServiceConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, characters CharacterPort, chat ChatPort, cleanup CleanupPort,
	messenger messaging.Messenger, broadcast BroadcastPort, info InfoCachePort,
	cfg ServiceConfig, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		characters: characters,
		chat:       chat,
		cleanup:    cleanup,
		messenger:  messenger,
		broadcast:  broadcast,
		info:       info,
		members:    NewMemberCache(repo.ListMembers),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

var credits = message.NewPrinter(language.English)

func formatCredits(amount int64) string {
	return credits.Sprintf("%d", amount)
}

// Corporation returns one corporation by id.
func (s *Service) Corporation(ctx context.Context, id int64) (Corporation, error) {
	return s.repo.GetCorporation(ctx, id)
}

// Members returns the lazily cached member snapshot.
func (s *Service) Members(ctx context.Context, corporationID int64) ([]Member, error) {
	return s.members.Members(ctx, corporationID)
}

// MaxMemberCount derives the capacity from the acting CEO's
// corporate-management level on every read. A degraded skill is picked up the
// next time a capacity check runs; nothing is stored.
func (s *Service) MaxMemberCount(ctx context.Context, corporationID int64) (int, error) {
	ceo, err := s.repo.FindCEO(ctx, corporationID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return s.cfg.BaseMemberLimit, nil
		}
		return 0, err
	}
	level, err := s.characters.CorporateManagementLevel(ctx, ceo.CharacterID)
	if err != nil {
		return 0, err
	}
	return s.cfg.BaseMemberLimit + level*s.cfg.MembersPerLevel, nil
}

// addMemberTx performs the membership move inside an open transaction:
// close the old history span, open the new one, repoint the character and
// persist the member row.
func (s *Service) addMemberTx(ctx context.Context, tx TxRepository, characterID int64,
	role roles.RoleSet, oldCorpID, newCorpID int64, now time.Time) error {
	if oldCorpID != 0 {
		if err := tx.CloseHistory(ctx, characterID, oldCorpID, now); err != nil {
			return err
		}
		if err := tx.DeleteMember(ctx, oldCorpID, characterID); err != nil {
			return err
		}
	}
	if err := tx.OpenHistory(ctx, characterID, newCorpID, now); err != nil {
		return err
	}
	if err := tx.SetCharacterCorporation(ctx, characterID, newCorpID); err != nil {
		return err
	}
	return tx.UpsertMember(ctx, Member{
		CharacterID:   characterID,
		CorporationID: newCorpID,
		Role:          roles.Sanitize(role),
	})
}

// AddMember moves a character into the corporation, closing the membership
// span in the old one. The members snapshot is invalidated, not recomputed.
func (s *Service) AddMember(ctx context.Context, corporationID, characterID int64,
	role roles.RoleSet, oldCorpID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		return s.addMemberTx(ctx, tx, characterID, role, oldCorpID, corporationID, s.now())
	})
	if err != nil {
		return err
	}
	s.members.Invalidate(corporationID)
	if oldCorpID != 0 {
		s.members.Invalidate(oldCorpID)
	}
	return nil
}

// RemoveMember removes the character, runs the removal cascade hook, and
// deactivates the corporation when the last member is gone.
func (s *Service) RemoveMember(ctx context.Context, corporationID, characterID int64) error {
	corporation, err := s.repo.GetCorporation(ctx, corporationID)
	if err != nil {
		return err
	}
	member, err := s.repo.GetMemberByCharacter(ctx, characterID)
	if err != nil {
		return err
	}
	if member.CorporationID != corporationID {
		return ErrNotMember
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		now := s.now()
		if err := tx.CloseHistory(ctx, characterID, corporationID, now); err != nil {
			return err
		}
		if err := tx.DeleteMember(ctx, corporationID, characterID); err != nil {
			return err
		}
		remaining, err := tx.CountMembers(ctx, corporationID)
		if err != nil {
			return err
		}
		if remaining == 0 && !corporation.Default {
			return s.closeCorporationTx(ctx, tx, uow, corporationID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.members.Invalidate(corporationID)

	if s.cleanup != nil {
		if err := s.cleanup.OnMemberRemoved(ctx, corporationID, characterID); err != nil {
			s.logger.Error("member removal cascade",
				slog.Int64("corporation", corporationID),
				slog.Int64("character", characterID),
				slog.Any("error", err))
		}
	}
	return nil
}

// closeCorporationTx deactivates a corporation whose membership reached zero:
// the row stays, the public listing is cleared, and every other process is
// told to purge its cached entry after commit.
func (s *Service) closeCorporationTx(ctx context.Context, tx TxRepository, uow *db.UnitOfWork, corporationID int64) error {
	if err := tx.SetActive(ctx, corporationID, false); err != nil {
		return err
	}
	if err := tx.ClearListing(ctx, corporationID); err != nil {
		return err
	}
	uow.Defer(func() {
		s.publish(ctx, bus.NewClose(s.cfg.Origin, corporationID))
		s.invalidateInfo(ctx, corporationID)
	})
	return nil
}

// SetMemberRole persists a role change. The member notification and the
// cross-process broadcast are deferred until the enclosing transaction
// commits, so a rolled-back change is never observable elsewhere.
func (s *Service) SetMemberRole(ctx context.Context, corporationID, characterID int64, newRole roles.RoleSet) error {
	member, err := s.repo.GetMemberByCharacter(ctx, characterID)
	if err != nil {
		return err
	}
	if member.CorporationID != corporationID {
		return ErrNotMember
	}

	newRole = roles.CleanUpHangarAccess(roles.Sanitize(newRole))

	if newRole&roles.CEO != 0 && member.Role&roles.CEO == 0 {
		ceo, err := s.repo.FindCEO(ctx, corporationID)
		if err == nil && ceo.CharacterID != characterID {
			return ErrCEOAlreadyAssigned
		}
		if err != nil && !errors.Is(err, ErrNotMember) {
			return err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		now := s.now()
		if err := tx.UpdateMemberRole(ctx, corporationID, characterID, newRole); err != nil {
			return err
		}
		if err := tx.InsertRoleHistory(ctx, corporationID, characterID, member.Role, newRole, now); err != nil {
			return err
		}
		uow.Defer(func() {
			s.notifyCharacter(ctx, characterID, messaging.Message{
				Command: "corporationRoleChange",
				Data: map[string]any{
					"corporationID": corporationID,
					"role":          uint32(newRole),
				},
			})
			s.publish(ctx, bus.NewChangeRole(s.cfg.Origin, characterID, corporationID, newRole))
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.members.Invalidate(corporationID)
	return nil
}

// PayOut debits the treasury and credits the character, both legs logged
// inside one transaction.
func (s *Service) PayOut(ctx context.Context, corporationID, characterID int64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	member, err := s.repo.GetMemberByCharacter(ctx, characterID)
	if err != nil {
		return err
	}
	if member.CorporationID != corporationID {
		return ErrNotMember
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		now := s.now()
		if err := tx.DebitCorporation(ctx, corporationID, amount); err != nil {
			return err
		}
		if err := tx.CreditCharacter(ctx, characterID, amount); err != nil {
			return err
		}
		if err := tx.LogTransaction(ctx, Transaction{
			CorporationID: corporationID,
			CharacterID:   characterID,
			Amount:        -amount,
			Reason:        "payout",
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		uow.Defer(func() {
			s.notifyCharacter(ctx, characterID, messaging.Message{
				Command: "corporationPayOut",
				Data: map[string]any{
					"corporationID": corporationID,
					"amount":        formatCredits(amount),
				},
			})
		})
		return nil
	})
}

// TransferToCorporation moves credits between two treasuries. Both legs and
// both log rows commit together; no partially-applied transfer is observable.
func (s *Service) TransferToCorporation(ctx context.Context, fromID, toID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrInvalidAmount
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		now := s.now()
		if err := tx.DebitCorporation(ctx, fromID, amount); err != nil {
			return err
		}
		if err := tx.CreditCorporation(ctx, toID, amount); err != nil {
			return err
		}
		if err := tx.LogTransaction(ctx, Transaction{
			CorporationID:    fromID,
			CounterpartyCorp: toID,
			Amount:           -amount,
			Reason:           "corporation transfer",
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		if err := tx.LogTransaction(ctx, Transaction{
			CorporationID:    toID,
			CounterpartyCorp: fromID,
			Amount:           amount,
			Reason:           "corporation transfer",
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		uow.Defer(func() {
			s.notifyRole(ctx, toID, roles.Financial, messaging.Message{
				Command: "corporationTransfer",
				Data: map[string]any{
					"from":   fromID,
					"amount": formatCredits(amount),
				},
			})
		})
		return nil
	})
}

// publish is best-effort: a failed broadcast is repaired by the next lazy
// reload on the receiving side.
func (s *Service) publish(ctx context.Context, cmd bus.Command) {
	if s.broadcast == nil {
		return
	}
	if err := s.broadcast.Publish(ctx, cmd); err != nil {
		s.logger.Error("broadcast publish", slog.String("kind", string(cmd.Kind)), slog.Any("error", err))
	}
}

func (s *Service) invalidateInfo(ctx context.Context, corporationIDs ...int64) {
	if s.info == nil {
		return
	}
	if err := s.info.Invalidate(ctx, corporationIDs...); err != nil {
		s.logger.Warn("info cache invalidate", slog.Any("error", err))
	}
}

func (s *Service) notifyCharacter(ctx context.Context, characterID int64, msg messaging.Message) {
	if s.messenger == nil {
		return
	}
	if err := s.messenger.SendToCharacter(ctx, characterID, msg); err != nil {
		s.logger.Warn("notify character", slog.Int64("character", characterID), slog.Any("error", err))
	}
}

func (s *Service) notifyRole(ctx context.Context, corporationID int64, role roles.RoleSet, msg messaging.Message) {
	if s.messenger == nil {
		return
	}
	if err := s.messenger.SendToRole(ctx, corporationID, role, msg); err != nil {
		s.logger.Warn("notify role", slog.Int64("corporation", corporationID), slog.Any("error", err))
	}
}

func (s *Service) notifyCorporation(ctx context.Context, corporationID int64, msg messaging.Message) {
	if s.messenger == nil {
		return
	}
	if err := s.messenger.SendToCorporation(ctx, corporationID, msg); err != nil {
		s.logger.Warn("notify corporation", slog.Int64("corporation", corporationID), slog.Any("error", err))
	}
}
