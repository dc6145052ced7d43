package gateway

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/manager"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/roles"
	"github.com/halcyongames/starhold/internal/votes"
)

type fakeCorps struct {
	recruited  []struct{ corpID, charID int64 }
	roleSet    map[int64]roles.RoleSet
	payouts    int
	transfers  int
	leaveCalls int
	docs       []corp.Document
}

func (f *fakeCorps) AddRecruitedMember(ctx context.Context, corporationID, characterID int64) error {
	f.recruited = append(f.recruited, struct{ corpID, charID int64 }{corporationID, characterID})
	return nil
}

func (f *fakeCorps) Leave(ctx context.Context, characterID int64) error {
	f.leaveCalls++
	return nil
}

func (f *fakeCorps) SetMemberRole(ctx context.Context, corporationID, characterID int64, role roles.RoleSet) error {
	if f.roleSet == nil {
		f.roleSet = make(map[int64]roles.RoleSet)
	}
	f.roleSet[characterID] = role
	return nil
}

func (f *fakeCorps) PayOut(ctx context.Context, corporationID, characterID, amount int64) error {
	f.payouts++
	return nil
}

func (f *fakeCorps) TransferToCorporation(ctx context.Context, fromID, toID, amount int64) error {
	f.transfers++
	return nil
}

func (f *fakeCorps) CreateDocument(ctx context.Context, authorID int64, in corp.DocumentInput) (corp.Document, error) {
	f.docs = append(f.docs, corp.Document{ID: int64(len(f.docs) + 1), Title: in.Title, Body: in.Body, AuthorID: authorID})
	return f.docs[len(f.docs)-1], nil
}

func (f *fakeCorps) Documents(ctx context.Context, characterID int64) ([]corp.Document, error) {
	return f.docs, nil
}

func (f *fakeCorps) UpdateDocument(ctx context.Context, documentID, editorID int64, in corp.DocumentInput) error {
	for i := range f.docs {
		if f.docs[i].ID == documentID {
			f.docs[i].Title = in.Title
			f.docs[i].Body = in.Body
			return nil
		}
	}
	return corp.ErrDocumentNotFound
}

func (f *fakeCorps) DeleteDocument(ctx context.Context, documentID, editorID int64) error {
	for i := range f.docs {
		if f.docs[i].ID == documentID {
			f.docs = append(f.docs[:i], f.docs[i+1:]...)
			return nil
		}
	}
	return corp.ErrDocumentNotFound
}

type fakeSuccession struct {
	volunteers []int64
	cleared    []int64
}

func (f *fakeSuccession) Volunteer(ctx context.Context, characterID int64) error {
	f.volunteers = append(f.volunteers, characterID)
	return nil
}

func (f *fakeSuccession) Clear(ctx context.Context, characterID int64) error {
	f.cleared = append(f.cleared, characterID)
	return nil
}

type fakeVotes struct {
	started []votes.StartVoteInput
	casts   []struct {
		voteID, characterID int64
		answer              bool
	}
}

func (f *fakeVotes) StartVote(ctx context.Context, in votes.StartVoteInput) (votes.Vote, error) {
	f.started = append(f.started, in)
	return votes.Vote{ID: 1}, nil
}

func (f *fakeVotes) CastVote(ctx context.Context, voteID, characterID int64, answer bool) error {
	f.casts = append(f.casts, struct {
		voteID, characterID int64
		answer              bool
	}{voteID, characterID, answer})
	return nil
}

type memberTable map[int64]corp.Member

func (t memberTable) GetMemberByCharacter(ctx context.Context, characterID int64) (corp.Member, error) {
	m, ok := t[characterID]
	if !ok {
		return corp.Member{}, corp.ErrNotMember
	}
	return m, nil
}

type recordingMessenger struct {
	character map[int64][]messaging.Message
}

func (m *recordingMessenger) SendToCharacter(ctx context.Context, characterID int64, msg messaging.Message) error {
	if m.character == nil {
		m.character = make(map[int64][]messaging.Message)
	}
	m.character[characterID] = append(m.character[characterID], msg)
	return nil
}

func (m *recordingMessenger) SendToCharacters(ctx context.Context, characterIDs []int64, msg messaging.Message) error {
	return nil
}

func (m *recordingMessenger) SendToCorporation(ctx context.Context, corporationID int64, msg messaging.Message) error {
	return nil
}

func (m *recordingMessenger) SendToRole(ctx context.Context, corporationID int64, role roles.RoleSet, msg messaging.Message) error {
	return nil
}

func newTestGateway(members memberTable) (*Gateway, *fakeCorps, *fakeSuccession, *fakeVotes, *recordingMessenger) {
	corps := &fakeCorps{}
	successionSvc := &fakeSuccession{}
	voteSvc := &fakeVotes{}
	messenger := &recordingMessenger{}
	invites := manager.NewInviteRegistry(time.Minute, messenger, slog.Default())
	g := New(nil, "zone-test", corps, members, successionSvc, voteSvc, invites, messenger, nil, slog.Default())
	return g, corps, successionSvc, voteSvc, messenger
}

func TestInviteThenAcceptRecruitsIntoSenderCorp(t *testing.T) {
	members := memberTable{
		3: {CharacterID: 3, CorporationID: 5, Role: roles.PersonnelManager},
	}
	g, corps, _, _, messenger := newTestGateway(members)
	ctx := context.Background()

	g.Dispatch(ctx, Request{
		Command:     "corporationInvite",
		CharacterID: 3,
		Data:        map[string]any{"targetID": float64(7)},
	})
	require.Len(t, messenger.character[7], 1)
	require.Equal(t, "corporationInvited", messenger.character[7][0].Command)

	g.Dispatch(ctx, Request{Command: "corporationAcceptInvite", CharacterID: 7})
	require.Len(t, corps.recruited, 1)
	require.Equal(t, int64(5), corps.recruited[0].corpID)
	require.Equal(t, int64(7), corps.recruited[0].charID)
}

func TestInviteRequiresPersonnelRights(t *testing.T) {
	members := memberTable{
		3: {CharacterID: 3, CorporationID: 5, Role: roles.HangarOperator},
	}
	g, _, _, _, messenger := newTestGateway(members)

	g.Dispatch(context.Background(), Request{
		Command:     "corporationInvite",
		CharacterID: 3,
		Data:        map[string]any{"targetID": float64(7)},
	})

	require.Empty(t, messenger.character[7])
	require.Len(t, messenger.character[3], 1, "rejection reported to the caller")
	require.Equal(t, "corporationCommandFailed", messenger.character[3][0].Command)
}

func TestAcceptWithoutInviteFails(t *testing.T) {
	g, corps, _, _, messenger := newTestGateway(memberTable{})

	g.Dispatch(context.Background(), Request{Command: "corporationAcceptInvite", CharacterID: 7})
	require.Empty(t, corps.recruited)
	require.Len(t, messenger.character[7], 1)
}

func TestSetRoleGuardedByLeadership(t *testing.T) {
	members := memberTable{
		1: {CharacterID: 1, CorporationID: 5, Role: roles.CEO},
		2: {CharacterID: 2, CorporationID: 5, Role: roles.Accountant},
	}
	g, corps, _, _, _ := newTestGateway(members)
	ctx := context.Background()

	g.Dispatch(ctx, Request{
		Command:     "corporationSetRole",
		CharacterID: 2,
		Data:        map[string]any{"characterID": float64(1), "role": float64(0)},
	})
	require.Empty(t, corps.roleSet)

	g.Dispatch(ctx, Request{
		Command:     "corporationSetRole",
		CharacterID: 1,
		Data:        map[string]any{"characterID": float64(2), "role": float64(roles.PersonnelManager)},
	})
	require.Equal(t, roles.PersonnelManager, corps.roleSet[2])
}

func TestTreasuryCommandsRequireFinancialRole(t *testing.T) {
	members := memberTable{
		1: {CharacterID: 1, CorporationID: 5, Role: roles.Accountant},
		2: {CharacterID: 2, CorporationID: 5, Role: roles.HangarOperator},
	}
	g, corps, _, _, _ := newTestGateway(members)
	ctx := context.Background()

	g.Dispatch(ctx, Request{
		Command:     "corporationPayOut",
		CharacterID: 2,
		Data:        map[string]any{"characterID": float64(1), "amount": float64(100)},
	})
	require.Zero(t, corps.payouts)

	g.Dispatch(ctx, Request{
		Command:     "corporationPayOut",
		CharacterID: 1,
		Data:        map[string]any{"characterID": float64(2), "amount": float64(100)},
	})
	require.Equal(t, 1, corps.payouts)

	g.Dispatch(ctx, Request{
		Command:     "corporationTransfer",
		CharacterID: 1,
		Data:        map[string]any{"toCorporationID": float64(6), "amount": float64(100)},
	})
	require.Equal(t, 1, corps.transfers)
}

func TestVoteCommandsRouted(t *testing.T) {
	g, _, _, voteSvc, _ := newTestGateway(memberTable{})
	ctx := context.Background()

	g.Dispatch(ctx, Request{
		Command:     "voteStart",
		CharacterID: 1,
		Data: map[string]any{
			"group":         "policy",
			"name":          "raise tax",
			"participation": float64(3),
			"consensusRate": float64(50),
			"durationHours": float64(24),
		},
	})
	require.Len(t, voteSvc.started, 1)
	require.Equal(t, 3, voteSvc.started[0].Participation)
	require.Equal(t, 24*time.Hour, voteSvc.started[0].Duration)

	g.Dispatch(ctx, Request{
		Command:     "voteCast",
		CharacterID: 2,
		Data:        map[string]any{"voteID": float64(9), "answer": true},
	})
	require.Len(t, voteSvc.casts, 1)
	require.Equal(t, int64(9), voteSvc.casts[0].voteID)
	require.True(t, voteSvc.casts[0].answer)
}

func TestDocumentCommandsRouted(t *testing.T) {
	g, corps, _, _, messenger := newTestGateway(memberTable{})
	ctx := context.Background()

	g.Dispatch(ctx, Request{
		Command:     "corporationDocumentCreate",
		CharacterID: 1,
		Data:        map[string]any{"title": "Charter", "body": "House rules."},
	})
	require.Len(t, corps.docs, 1)
	require.Len(t, messenger.character[1], 1)
	require.Equal(t, "corporationDocumentCreated", messenger.character[1][0].Command)

	g.Dispatch(ctx, Request{
		Command:     "corporationDocumentUpdate",
		CharacterID: 1,
		Data:        map[string]any{"documentID": float64(1), "title": "Charter v2", "body": "Revised."},
	})
	require.Equal(t, "Charter v2", corps.docs[0].Title)

	g.Dispatch(ctx, Request{Command: "corporationDocumentList", CharacterID: 2})
	require.Len(t, messenger.character[2], 1)
	require.Equal(t, "corporationDocuments", messenger.character[2][0].Command)

	g.Dispatch(ctx, Request{
		Command:     "corporationDocumentDelete",
		CharacterID: 1,
		Data:        map[string]any{"documentID": float64(1)},
	})
	require.Empty(t, corps.docs)
}

func TestSuccessionCommandsRouted(t *testing.T) {
	g, _, successionSvc, _, _ := newTestGateway(memberTable{})
	ctx := context.Background()

	g.Dispatch(ctx, Request{Command: "ceoTakeoverVolunteer", CharacterID: 2})
	g.Dispatch(ctx, Request{Command: "ceoTakeoverClear", CharacterID: 2})
	require.Equal(t, []int64{2}, successionSvc.volunteers)
	require.Equal(t, []int64{2}, successionSvc.cleared)
}

func TestUnknownCommandReported(t *testing.T) {
	g, _, _, _, messenger := newTestGateway(memberTable{})

	g.Dispatch(context.Background(), Request{Command: "corporationFrobnicate", CharacterID: 4})
	require.Len(t, messenger.character[4], 1)
	require.Equal(t, "corporationCommandFailed", messenger.character[4][0].Command)
}
