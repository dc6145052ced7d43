package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyongames/starhold/internal/corp"
	"github.com/halcyongames/starhold/internal/manager"
	"github.com/halcyongames/starhold/internal/messaging"
	"github.com/halcyongames/starhold/internal/observability"
	"github.com/halcyongames/starhold/internal/roles"
	"github.com/halcyongames/starhold/internal/shared"
	"github.com/halcyongames/starhold/internal/votes"
)

// Request is one authenticated character command. Session routing upstream
// has already verified the character identity; the gateway enforces only
// domain-level role checks.
type Request struct {
	Command     string         `json:"command"`
	CharacterID int64          `json:"characterID"`
	Data        map[string]any `json:"data"`
}

// CorporationService is the slice of corporation operations the gateway
// dispatches to.
type CorporationService interface {
	AddRecruitedMember(ctx context.Context, corporationID, characterID int64) error
	Leave(ctx context.Context, characterID int64) error
	SetMemberRole(ctx context.Context, corporationID, characterID int64, role roles.RoleSet) error
	PayOut(ctx context.Context, corporationID, characterID, amount int64) error
	TransferToCorporation(ctx context.Context, fromID, toID, amount int64) error
	CreateDocument(ctx context.Context, authorID int64, in corp.DocumentInput) (corp.Document, error)
	Documents(ctx context.Context, characterID int64) ([]corp.Document, error)
	UpdateDocument(ctx context.Context, documentID, editorID int64, in corp.DocumentInput) error
	DeleteDocument(ctx context.Context, documentID, editorID int64) error
}

// SuccessionService covers the volunteer CEO commands.
type SuccessionService interface {
	Volunteer(ctx context.Context, characterID int64) error
	Clear(ctx context.Context, characterID int64) error
}

// VoteService covers the ballot commands.
type VoteService interface {
	StartVote(ctx context.Context, in votes.StartVoteInput) (votes.Vote, error)
	CastVote(ctx context.Context, voteID, characterID int64, answer bool) error
}

// MemberLookup resolves the caller's membership for privilege checks.
type MemberLookup interface {
	GetMemberByCharacter(ctx context.Context, characterID int64) (corp.Member, error)
}

// Gateway drains the zone's inbound command queue and dispatches to the
// governance services. Command failures are reported back to the issuing
// character and never stop the loop.
type Gateway struct {
	rdb        *redis.Client
	queue      string
	corps      CorporationService
	members    MemberLookup
	succession SuccessionService
	votes      VoteService
	invites    *manager.InviteRegistry
	messenger  messaging.Messenger
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New builds a Gateway for the given zone.
func New(rdb *redis.Client, zoneID string, corps CorporationService, members MemberLookup,
	succession SuccessionService, voteService VoteService, invites *manager.InviteRegistry,
	messenger messaging.Messenger, metrics *observability.Metrics, logger *slog.Logger) *Gateway {
	return &Gateway{
		rdb:        rdb,
		queue:      shared.InboundCommandQueueKey + ":" + zoneID,
		corps:      corps,
		members:    members,
		succession: succession,
		votes:      voteService,
		invites:    invites,
		messenger:  messenger,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run consumes commands until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		res, err := g.rdb.BLPop(ctx, time.Second, g.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Error("inbound pop", slog.Any("error", err))
			continue
		}
		// BLPop returns [key, value].
		var req Request
		if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
			g.logger.Warn("inbound decode", slog.Any("error", err))
			continue
		}
		g.Dispatch(ctx, req)
	}
}

// Dispatch routes one request. Errors are sent back to the character.
func (g *Gateway) Dispatch(ctx context.Context, req Request) {
	err := g.handle(ctx, req)
	g.metrics.CommandProcessed(req.Command, err == nil)
	if err == nil {
		return
	}
	g.logger.Debug("command rejected",
		slog.String("command", req.Command),
		slog.Int64("character", req.CharacterID),
		slog.Any("error", err))
	sendErr := g.messenger.SendToCharacter(ctx, req.CharacterID, messaging.Message{
		Command: "corporationCommandFailed",
		Data: map[string]any{
			"command": req.Command,
			"error":   err.Error(),
		},
	})
	if sendErr != nil {
		g.logger.Warn("command failure notification", slog.Any("error", sendErr))
	}
}

func (g *Gateway) handle(ctx context.Context, req Request) error {
	switch req.Command {
	case "corporationInvite":
		return g.invite(ctx, req)
	case "corporationAcceptInvite":
		return g.acceptInvite(ctx, req)
	case "corporationDeclineInvite":
		return g.declineInvite(ctx, req)
	case "corporationLeave":
		return g.corps.Leave(ctx, req.CharacterID)
	case "corporationSetRole":
		return g.setRole(ctx, req)
	case "corporationPayOut":
		return g.payOut(ctx, req)
	case "corporationTransfer":
		return g.transfer(ctx, req)
	case "corporationDocumentCreate":
		return g.createDocument(ctx, req)
	case "corporationDocumentList":
		return g.listDocuments(ctx, req)
	case "corporationDocumentUpdate":
		return g.updateDocument(ctx, req)
	case "corporationDocumentDelete":
		return g.deleteDocument(ctx, req)
	case "ceoTakeoverVolunteer":
		return g.succession.Volunteer(ctx, req.CharacterID)
	case "ceoTakeoverClear":
		return g.succession.Clear(ctx, req.CharacterID)
	case "voteStart":
		return g.startVote(ctx, req)
	case "voteCast":
		return g.castVote(ctx, req)
	default:
		return fmt.Errorf("gateway: unknown command %q", req.Command)
	}
}

func (g *Gateway) invite(ctx context.Context, req Request) error {
	targetID, err := int64Field(req.Data, "targetID")
	if err != nil {
		return err
	}
	member, err := g.members.GetMemberByCharacter(ctx, req.CharacterID)
	if err != nil {
		return err
	}
	if !roles.IsAnyRole(member.Role, roles.Leader|roles.PersonnelManager) {
		return corp.ErrInsufficientPrivileges
	}
	g.invites.Add(targetID, req.CharacterID)
	return g.messenger.SendToCharacter(ctx, targetID, messaging.Message{
		Command: "corporationInvited",
		Data: map[string]any{
			"senderID":      req.CharacterID,
			"corporationID": member.CorporationID,
		},
	})
}

func (g *Gateway) acceptInvite(ctx context.Context, req Request) error {
	inv, ok := g.invites.Take(req.CharacterID)
	if !ok {
		return errors.New("gateway: no pending invite")
	}
	sender, err := g.members.GetMemberByCharacter(ctx, inv.SenderID)
	if err != nil {
		return err
	}
	return g.corps.AddRecruitedMember(ctx, sender.CorporationID, req.CharacterID)
}

func (g *Gateway) declineInvite(ctx context.Context, req Request) error {
	inv, ok := g.invites.Take(req.CharacterID)
	if !ok {
		return nil
	}
	return g.messenger.SendToCharacter(ctx, inv.SenderID, messaging.Message{
		Command: "corporationInviteDeclined",
		Data:    map[string]any{"characterID": req.CharacterID},
	})
}

func (g *Gateway) setRole(ctx context.Context, req Request) error {
	targetID, err := int64Field(req.Data, "characterID")
	if err != nil {
		return err
	}
	newRole, err := int64Field(req.Data, "role")
	if err != nil {
		return err
	}
	caller, err := g.members.GetMemberByCharacter(ctx, req.CharacterID)
	if err != nil {
		return err
	}
	if !roles.IsAnyRole(caller.Role, roles.Leader) {
		return corp.ErrInsufficientPrivileges
	}
	return g.corps.SetMemberRole(ctx, caller.CorporationID, targetID, roles.RoleSet(newRole))
}

func (g *Gateway) payOut(ctx context.Context, req Request) error {
	targetID, err := int64Field(req.Data, "characterID")
	if err != nil {
		return err
	}
	amount, err := int64Field(req.Data, "amount")
	if err != nil {
		return err
	}
	caller, err := g.members.GetMemberByCharacter(ctx, req.CharacterID)
	if err != nil {
		return err
	}
	if !roles.IsAnyRole(caller.Role, roles.Financial) {
		return corp.ErrInsufficientPrivileges
	}
	return g.corps.PayOut(ctx, caller.CorporationID, targetID, amount)
}

func (g *Gateway) transfer(ctx context.Context, req Request) error {
	toCorp, err := int64Field(req.Data, "toCorporationID")
	if err != nil {
		return err
	}
	amount, err := int64Field(req.Data, "amount")
	if err != nil {
		return err
	}
	caller, err := g.members.GetMemberByCharacter(ctx, req.CharacterID)
	if err != nil {
		return err
	}
	if !roles.IsAnyRole(caller.Role, roles.Financial) {
		return corp.ErrInsufficientPrivileges
	}
	return g.corps.TransferToCorporation(ctx, caller.CorporationID, toCorp, amount)
}

// Document commands lean on the service for the leadership guard; the
// gateway only shapes the payload.
func (g *Gateway) createDocument(ctx context.Context, req Request) error {
	doc, err := g.corps.CreateDocument(ctx, req.CharacterID, corp.DocumentInput{
		Title: stringField(req.Data, "title"),
		Body:  stringField(req.Data, "body"),
	})
	if err != nil {
		return err
	}
	return g.messenger.SendToCharacter(ctx, req.CharacterID, messaging.Message{
		Command: "corporationDocumentCreated",
		Data:    map[string]any{"documentID": doc.ID},
	})
}

func (g *Gateway) listDocuments(ctx context.Context, req Request) error {
	docs, err := g.corps.Documents(ctx, req.CharacterID)
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, map[string]any{
			"id":        d.ID,
			"title":     d.Title,
			"body":      d.Body,
			"authorID":  d.AuthorID,
			"updatedAt": d.UpdatedAt.Unix(),
		})
	}
	return g.messenger.SendToCharacter(ctx, req.CharacterID, messaging.Message{
		Command: "corporationDocuments",
		Data:    map[string]any{"documents": out},
	})
}

func (g *Gateway) updateDocument(ctx context.Context, req Request) error {
	documentID, err := int64Field(req.Data, "documentID")
	if err != nil {
		return err
	}
	return g.corps.UpdateDocument(ctx, documentID, req.CharacterID, corp.DocumentInput{
		Title: stringField(req.Data, "title"),
		Body:  stringField(req.Data, "body"),
	})
}

func (g *Gateway) deleteDocument(ctx context.Context, req Request) error {
	documentID, err := int64Field(req.Data, "documentID")
	if err != nil {
		return err
	}
	return g.corps.DeleteDocument(ctx, documentID, req.CharacterID)
}

func (g *Gateway) startVote(ctx context.Context, req Request) error {
	participation, err := int64Field(req.Data, "participation")
	if err != nil {
		return err
	}
	consensus, err := int64Field(req.Data, "consensusRate")
	if err != nil {
		return err
	}
	durationHours, err := int64Field(req.Data, "durationHours")
	if err != nil {
		return err
	}
	_, err = g.votes.StartVote(ctx, votes.StartVoteInput{
		InitiatorID:   req.CharacterID,
		Group:         stringField(req.Data, "group"),
		Name:          stringField(req.Data, "name"),
		Topic:         stringField(req.Data, "topic"),
		Participation: int(participation),
		ConsensusRate: int(consensus),
		Duration:      time.Duration(durationHours) * time.Hour,
	})
	return err
}

func (g *Gateway) castVote(ctx context.Context, req Request) error {
	voteID, err := int64Field(req.Data, "voteID")
	if err != nil {
		return err
	}
	answer, ok := req.Data["answer"].(bool)
	if !ok {
		return fmt.Errorf("gateway: missing field answer")
	}
	return g.votes.CastVote(ctx, voteID, req.CharacterID, answer)
}

// int64Field reads a numeric field. JSON numbers decode as float64.
func int64Field(data map[string]any, key string) (int64, error) {
	switch v := data[key].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("gateway: missing field %s", key)
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
