package corp

import (
	"context"
	"log/slog"

	"github.com/halcyongames/starhold/internal/bus"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/roles"
)

// Player-owned corporation flows: recruitment with join cool-down and the
// two-phase leave state machine. NPC default corporations only ever appear
// here as the fallback target for finalized leaves.

// AddRecruitedMember admits a character into a private corporation.
// Preconditions: the corporation is active and has free capacity, the
// candidate holds no role bits anywhere, and the candidate is past the join
// cool-down. The cool-down is checked against the persisted history table so
// it survives process restarts and holds across all zone processes.
func (s *Service) AddRecruitedMember(ctx context.Context, corporationID, characterID int64) error {
	corporation, err := s.repo.GetCorporation(ctx, corporationID)
	if err != nil {
		return err
	}
	if !corporation.Active {
		return ErrCorporationInactive
	}

	member, err := s.repo.GetMemberByCharacter(ctx, characterID)
	if err != nil {
		return err
	}
	if member.CorporationID == corporationID {
		return ErrAlreadyMember
	}
	if member.Role != 0 {
		// Orphaned role bits must never survive a transfer.
		return ErrRoleNotCleared
	}

	lastLeft, err := s.repo.LastLeftAt(ctx, characterID)
	if err != nil {
		return err
	}
	if !lastLeft.IsZero() && s.now().Sub(lastLeft) < s.cfg.JoinCooldown {
		return ErrJoinCooldown
	}

	count, err := s.repo.CountMembers(ctx, corporationID)
	if err != nil {
		return err
	}
	capacity, err := s.MaxMemberCount(ctx, corporationID)
	if err != nil {
		return err
	}
	if count >= capacity {
		return ErrMaxMembersReached
	}

	oldCorpID := member.CorporationID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		now := s.now()
		if err := s.addMemberTx(ctx, tx, characterID, 0, oldCorpID, corporationID, now); err != nil {
			return err
		}
		if err := tx.DeleteApplications(ctx, characterID); err != nil {
			return err
		}
		// Re-initiating membership cancels a pending leave.
		if err := tx.DeleteLeaveRequest(ctx, characterID); err != nil {
			return err
		}
		uow.Defer(func() {
			s.swapChatMembership(ctx, characterID, oldCorpID, corporationID)
			s.publish(ctx, bus.NewTransferMember(s.cfg.Origin, characterID, oldCorpID, corporationID))
			s.invalidateInfo(ctx, oldCorpID, corporationID)
			s.notifyCharacter(ctx, characterID, messaging.Message{
				Command: "corporationMemberAccepted",
				Data:    map[string]any{"corporationID": corporationID},
			})
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.members.Invalidate(corporationID)
	s.members.Invalidate(oldCorpID)
	return nil
}

// Leave starts the pending-leave window. A CEO may leave only as the sole
// remaining member; otherwise the request is silently ignored.
func (s *Service) Leave(ctx context.Context, characterID int64) error {
	member, err := s.repo.GetMemberByCharacter(ctx, characterID)
	if err != nil {
		return err
	}
	corporation, err := s.repo.GetCorporation(ctx, member.CorporationID)
	if err != nil {
		return err
	}
	if corporation.Default {
		return nil
	}
	if member.Role&roles.CEO != 0 {
		count, err := s.repo.CountMembers(ctx, member.CorporationID)
		if err != nil {
			return err
		}
		if count > 1 {
			s.logger.Debug("ceo leave ignored",
				slog.Int64("corporation", member.CorporationID),
				slog.Int64("character", characterID))
			return nil
		}
	}

	due := s.now().Add(s.cfg.LeaveDelay)
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		if err := tx.InsertLeaveRequest(ctx, LeaveRequest{
			CharacterID:   characterID,
			CorporationID: member.CorporationID,
			DueAt:         due,
		}); err != nil {
			return err
		}
		uow.Defer(func() {
			s.notifyCharacter(ctx, characterID, messaging.Message{
				Command: "corporationLeavePending",
				Data: map[string]any{
					"corporationID": member.CorporationID,
					"dueAt":         due.Unix(),
				},
			})
		})
		return nil
	})
}

// FinalizeDueLeaves processes leave requests whose timestamp has passed,
// moving each character into the freelancer corporation. One item's failure
// is logged and never stops the sweep. Returns the number finalized.
func (s *Service) FinalizeDueLeaves(ctx context.Context) (int, error) {
	due, err := s.repo.ListDueLeaveRequests(ctx, s.now(), 100)
	if err != nil {
		return 0, err
	}
	finalized := 0
	for _, req := range due {
		if err := s.finalizeLeave(ctx, req); err != nil {
			s.logger.Error("finalize leave",
				slog.Int64("character", req.CharacterID),
				slog.Int64("corporation", req.CorporationID),
				slog.Any("error", err))
			continue
		}
		finalized++
	}
	return finalized, nil
}

func (s *Service) finalizeLeave(ctx context.Context, req LeaveRequest) error {
	corporation, err := s.repo.GetCorporation(ctx, req.CorporationID)
	if err != nil {
		return err
	}
	characterID := req.CharacterID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		now := s.now()
		if err := tx.DeleteLeaveRequest(ctx, characterID); err != nil {
			return err
		}
		if err := s.addMemberTx(ctx, tx, characterID, 0, req.CorporationID, s.cfg.FreelancerCorpID, now); err != nil {
			return err
		}
		remaining, err := tx.CountMembers(ctx, req.CorporationID)
		if err != nil {
			return err
		}
		if remaining == 0 && !corporation.Default {
			if err := s.closeCorporationTx(ctx, tx, uow, req.CorporationID); err != nil {
				return err
			}
		}
		uow.Defer(func() {
			s.swapChatMembership(ctx, characterID, req.CorporationID, s.cfg.FreelancerCorpID)
			s.publish(ctx, bus.NewTransferMember(s.cfg.Origin, characterID, req.CorporationID, s.cfg.FreelancerCorpID))
			s.invalidateInfo(ctx, req.CorporationID, s.cfg.FreelancerCorpID)
			s.notifyCharacter(ctx, characterID, messaging.Message{
				Command: "corporationLeaveFinalized",
				Data:    map[string]any{"corporationID": req.CorporationID},
			})
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.members.Invalidate(req.CorporationID)
	s.members.Invalidate(s.cfg.FreelancerCorpID)

	if s.cleanup != nil {
		if err := s.cleanup.OnMemberRemoved(ctx, req.CorporationID, characterID); err != nil {
			s.logger.Error("member removal cascade",
				slog.Int64("corporation", req.CorporationID),
				slog.Int64("character", characterID),
				slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) swapChatMembership(ctx context.Context, characterID, fromCorp, toCorp int64) {
	if s.chat == nil {
		return
	}
	if fromCorp != 0 {
		if err := s.chat.RemoveMember(ctx, fromCorp, characterID); err != nil {
			s.logger.Warn("chat remove member", slog.Any("error", err))
		}
	}
	if err := s.chat.AddMember(ctx, toCorp, characterID); err != nil {
		s.logger.Warn("chat add member", slog.Any("error", err))
	}
}
