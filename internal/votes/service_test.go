package votes

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/platform/db"
	"github.com/halcyongames/starhold/internal/roles"
)

type entryKey struct {
	voteID      int64
	characterID int64
}

type memoryRepo struct {
	votes   map[int64]*Vote
	entries map[entryKey]Entry
	members map[int64]corp.Member
	nextID  int64

	closeCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		votes:   make(map[int64]*Vote),
		entries: make(map[entryKey]Entry),
		members: make(map[int64]corp.Member),
		nextID:  1,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository, *db.UnitOfWork) error) error {
	uow := &db.UnitOfWork{}
	if err := fn(ctx, &memoryTx{repo: r}, uow); err != nil {
		return err
	}
	uow.Flush()
	return nil
}

func (r *memoryRepo) InsertVote(ctx context.Context, v Vote) (int64, error) {
	id := r.nextID
	r.nextID++
	v.ID = id
	r.votes[id] = &v
	return id, nil
}

func (r *memoryRepo) GetVote(ctx context.Context, voteID int64) (Vote, error) {
	v, ok := r.votes[voteID]
	if !ok {
		return Vote{}, ErrVoteNotFound
	}
	return *v, nil
}

func (r *memoryRepo) ListOpenVotes(ctx context.Context, corporationID int64) ([]Vote, error) {
	var out []Vote
	for _, v := range r.votes {
		if v.CorporationID == corporationID && v.Open() {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetMemberByCharacter(ctx context.Context, characterID int64) (corp.Member, error) {
	m, ok := r.members[characterID]
	if !ok {
		return corp.Member{}, corp.ErrNotMember
	}
	return m, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetVoteForUpdate(ctx context.Context, voteID int64) (Vote, error) {
	return t.repo.GetVote(ctx, voteID)
}

func (t *memoryTx) InsertEntry(ctx context.Context, e Entry) error {
	key := entryKey{voteID: e.VoteID, characterID: e.CharacterID}
	if _, ok := t.repo.entries[key]; ok {
		return ErrAlreadyVoted
	}
	t.repo.entries[key] = e
	return nil
}

func (t *memoryTx) CountEntries(ctx context.Context, voteID int64) (int, int, error) {
	total, yes := 0, 0
	for key, e := range t.repo.entries {
		if key.voteID != voteID {
			continue
		}
		total++
		if e.Answer {
			yes++
		}
	}
	return total, yes, nil
}

func (t *memoryTx) CloseVote(ctx context.Context, voteID int64, result bool) (bool, error) {
	t.repo.closeCalls++
	v := t.repo.votes[voteID]
	if v.Result != nil {
		return false, nil
	}
	v.Result = &result
	return true, nil
}

type recordingMessenger struct {
	corporation []messaging.Message
}

func (m *recordingMessenger) SendToCharacter(ctx context.Context, characterID int64, msg messaging.Message) error {
	return nil
}

func (m *recordingMessenger) SendToCharacters(ctx context.Context, characterIDs []int64, msg messaging.Message) error {
	return nil
}

func (m *recordingMessenger) SendToCorporation(ctx context.Context, corporationID int64, msg messaging.Message) error {
	m.corporation = append(m.corporation, msg)
	return nil
}

func (m *recordingMessenger) SendToRole(ctx context.Context, corporationID int64, role roles.RoleSet, msg messaging.Message) error {
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *recordingMessenger) {
	messenger := &recordingMessenger{}
	return NewService(repo, repo, messenger, slog.Default()), messenger
}

func seedVote(repo *memoryRepo, participation, consensusRate int) int64 {
	id := repo.nextID
	repo.nextID++
	repo.votes[id] = &Vote{
		ID:            id,
		CorporationID: 5,
		Group:         "policy",
		Name:          "raise tax",
		Participation: participation,
		ConsensusRate: consensusRate,
		StartedAt:     time.Now(),
		EndsAt:        time.Now().Add(24 * time.Hour),
	}
	for i := int64(1); i <= 10; i++ {
		repo.members[i] = corp.Member{CharacterID: i, CorporationID: 5}
	}
	return id
}

func TestStartVoteRequiresLeadership(t *testing.T) {
	repo := newMemoryRepo()
	repo.members[1] = corp.Member{CharacterID: 1, CorporationID: 5, Role: roles.Accountant}
	repo.members[2] = corp.Member{CharacterID: 2, CorporationID: 5, Role: roles.DeputyCEO}
	svc, messenger := newTestService(repo)

	in := StartVoteInput{
		InitiatorID:   1,
		Group:         "policy",
		Name:          "raise tax",
		Participation: 3,
		ConsensusRate: 50,
		Duration:      24 * time.Hour,
	}
	_, err := svc.StartVote(context.Background(), in)
	require.ErrorIs(t, err, corp.ErrInsufficientPrivileges)

	in.InitiatorID = 2
	v, err := svc.StartVote(context.Background(), in)
	require.NoError(t, err)
	require.NotZero(t, v.ID)
	require.True(t, v.Open())
	require.Len(t, messenger.corporation, 1)
	require.Equal(t, "corporationVoteStarted", messenger.corporation[0].Command)
}

func TestStartVoteValidatesInput(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.StartVote(context.Background(), StartVoteInput{InitiatorID: 1, Group: "g", Name: "n"})
	require.Error(t, err, "zero participation target rejected")

	_, err = svc.StartVote(context.Background(), StartVoteInput{
		InitiatorID: 1, Group: "g", Name: "n", Participation: 3, ConsensusRate: 120,
	})
	require.Error(t, err, "consensus rate above 100 rejected")
}

func TestVoteClosesAtParticipationTarget(t *testing.T) {
	repo := newMemoryRepo()
	id := seedVote(repo, 3, 50)
	svc, messenger := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.CastVote(ctx, id, 1, true))
	require.NoError(t, svc.CastVote(ctx, id, 2, true))
	require.True(t, repo.votes[id].Open(), "below target stays open")
	require.Empty(t, messenger.corporation)

	require.NoError(t, svc.CastVote(ctx, id, 3, false))
	v := repo.votes[id]
	require.False(t, v.Open())
	require.True(t, *v.Result, "2 of 3 yes beats 50%")
	require.Len(t, messenger.corporation, 1)
	require.Equal(t, "corporationVoteClosed", messenger.corporation[0].Command)
}

func TestVoteFailsBelowConsensus(t *testing.T) {
	repo := newMemoryRepo()
	id := seedVote(repo, 3, 67)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.CastVote(ctx, id, 1, true))
	require.NoError(t, svc.CastVote(ctx, id, 2, false))
	require.NoError(t, svc.CastVote(ctx, id, 3, false))

	v := repo.votes[id]
	require.False(t, v.Open())
	require.False(t, *v.Result)
}

func TestVoteNeverReopens(t *testing.T) {
	repo := newMemoryRepo()
	id := seedVote(repo, 2, 50)
	svc, messenger := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.CastVote(ctx, id, 1, true))
	require.NoError(t, svc.CastVote(ctx, id, 2, true))
	require.False(t, repo.votes[id].Open())
	require.Equal(t, 1, repo.closeCalls)

	require.ErrorIs(t, svc.CastVote(ctx, id, 3, false), ErrVoteClosed)
	require.False(t, repo.votes[id].Open())
	require.Equal(t, 1, repo.closeCalls, "evaluation runs at most once")
	require.Len(t, messenger.corporation, 1)
}

func TestDuplicateVoteRejected(t *testing.T) {
	repo := newMemoryRepo()
	id := seedVote(repo, 3, 50)
	svc, _ := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.CastVote(ctx, id, 1, true))
	require.ErrorIs(t, svc.CastVote(ctx, id, 1, false), ErrAlreadyVoted)
	require.True(t, repo.votes[id].Open())
}

func TestCastVoteOutsiderRejected(t *testing.T) {
	repo := newMemoryRepo()
	id := seedVote(repo, 3, 50)
	repo.members[99] = corp.Member{CharacterID: 99, CorporationID: 6}
	svc, _ := newTestService(repo)

	require.ErrorIs(t, svc.CastVote(context.Background(), id, 99, true), corp.ErrNotMember)
}

func TestConsensusClampAndBoundary(t *testing.T) {
	require.True(t, passed(0, 4, -10), "negative rate clamps to 0")
	require.False(t, passed(3, 4, 120), "rate above 100 clamps to unanimity")
	require.True(t, passed(4, 4, 120))
	require.True(t, passed(2, 4, 50), "exact ratio passes")
	require.False(t, passed(1, 4, 50))
}
