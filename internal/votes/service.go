package votes

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/roles"
)

// TxRepository groups the cast-and-evaluate writes sharing one transaction.
type TxRepository interface {
	// GetVoteForUpdate loads the vote with a row lock so concurrent casts
	// serialize on the same ballot.
	GetVoteForUpdate(ctx context.Context, voteID int64) (Vote, error)
	// InsertEntry appends one answer. Returns ErrAlreadyVoted when the member
	// has already cast on this vote.
	InsertEntry(ctx context.Context, e Entry) error
	CountEntries(ctx context.Context, voteID int64) (total, yes int, err error)
	// CloseVote sets the result. Reports false when the vote was already
	// closed by a concurrent evaluation.
	CloseVote(ctx context.Context, voteID int64, result bool) (bool, error)
}

// RepositoryPort abstracts vote persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error) error
	InsertVote(ctx context.Context, v Vote) (int64, error)
	GetVote(ctx context.Context, voteID int64) (Vote, error)
	ListOpenVotes(ctx context.Context, corporationID int64) ([]Vote, error)
}

// CorpPort is the slice of corporation persistence vote flows read.
type CorpPort interface {
	GetMemberByCharacter(ctx context.Context, characterID int64) (corp.Member, error)
}

// StartVoteInput carries a new ballot's parameters.
type StartVoteInput struct {
	InitiatorID   int64  `validate:"required"`
	Group         string `validate:"required,max=64"`
	Name          string `validate:"required,max=128"`
	Topic         string `validate:"max=1024"`
	Participation int    `validate:"required,min=1"`
	ConsensusRate int    `validate:"min=0,max=100"`
	Duration      time.Duration
}

// Service implements the vote tally engine.
type Service struct {
	repo      RepositoryPort
	corps     CorpPort
	messenger messaging.Messenger
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, corps CorpPort, messenger messaging.Messenger, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		corps:     corps,
		messenger: messenger,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// StartVote opens a ballot for the initiator's corporation. Only leadership
// may start one.
func (s *Service) StartVote(ctx context.Context, in StartVoteInput) (Vote, error) {
	if err := s.validate.Struct(in); err != nil {
		return Vote{}, err
	}
	member, err := s.corps.GetMemberByCharacter(ctx, in.InitiatorID)
	if err != nil {
		return Vote{}, err
	}
	if !roles.IsAnyRole(member.Role, roles.Leader) {
		return Vote{}, corp.ErrInsufficientPrivileges
	}

	now := s.now()
	v := Vote{
		CorporationID: member.CorporationID,
		Group:         in.Group,
		Name:          in.Name,
		Topic:         in.Topic,
		Participation: in.Participation,
		ConsensusRate: in.ConsensusRate,
		StartedAt:     now,
		EndsAt:        now.Add(in.Duration),
	}
	id, err := s.repo.InsertVote(ctx, v)
	if err != nil {
		return Vote{}, err
	}
	v.ID = id

	if s.messenger != nil {
		err := s.messenger.SendToCorporation(ctx, v.CorporationID, messaging.Message{
			Command: "corporationVoteStarted",
			Data: map[string]any{
				"voteID": v.ID,
				"name":   v.Name,
			},
		})
		if err != nil {
			s.logger.Warn("vote start notification", slog.Any("error", err))
		}
	}
	return v, nil
}

// CastVote appends one entry and evaluates the ballot. Evaluation closes the
// vote at most once: the closing update only lands while the result is still
// unset, so a concurrent cast racing past the participation target loses the
// close and treats it as already decided.
func (s *Service) CastVote(ctx context.Context, voteID, characterID int64, answer bool) error {
	member, err := s.corps.GetMemberByCharacter(ctx, characterID)
	if err != nil {
		return err
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository, uow *db.UnitOfWork) error {
		v, err := tx.GetVoteForUpdate(ctx, voteID)
		if err != nil {
			return err
		}
		if v.CorporationID != member.CorporationID {
			return corp.ErrNotMember
		}
		if !v.Open() {
			return ErrVoteClosed
		}

		if err := tx.InsertEntry(ctx, Entry{
			VoteID:      voteID,
			CharacterID: characterID,
			Answer:      answer,
			CastAt:      s.now(),
		}); err != nil {
			return err
		}

		total, yes, err := tx.CountEntries(ctx, voteID)
		if err != nil {
			return err
		}
		if total < v.Participation {
			return nil
		}

		result := passed(yes, v.Participation, v.ConsensusRate)
		closed, err := tx.CloseVote(ctx, voteID, result)
		if err != nil {
			return err
		}
		if !closed {
			return nil
		}
		uow.Defer(func() {
			s.announceResult(ctx, v, result)
		})
		return nil
	})
}

// Vote returns one ballot.
func (s *Service) Vote(ctx context.Context, voteID int64) (Vote, error) {
	return s.repo.GetVote(ctx, voteID)
}

// OpenVotes lists a corporation's undecided ballots.
func (s *Service) OpenVotes(ctx context.Context, corporationID int64) ([]Vote, error) {
	return s.repo.ListOpenVotes(ctx, corporationID)
}

func (s *Service) announceResult(ctx context.Context, v Vote, result bool) {
	if s.messenger == nil {
		return
	}
	err := s.messenger.SendToCorporation(ctx, v.CorporationID, messaging.Message{
		Command: "corporationVoteClosed",
		Data: map[string]any{
			"voteID": v.ID,
			"name":   v.Name,
			"passed": result,
		},
	})
	if err != nil {
		s.logger.Warn("vote result notification", slog.Int64("vote", v.ID), slog.Any("error", err))
	}
}
