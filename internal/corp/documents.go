package corp

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/halcyongames/starhold/internal/roles"
)

// Document is a corporation-owned text record: charters, standing orders,
// recruitment notes. Any member reads; leadership writes.
type Document struct {
	ID            int64
	CorporationID int64
	Title         string
	Body          string
	AuthorID      int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DocumentInput carries the writable document fields.
type DocumentInput struct {
	Title string `validate:"required,max=128"`
	Body  string `validate:"max=16384"`
}

var documentValidate = validator.New()

// CreateDocument stores a new document in the author's corporation. Requires
// a leadership role.
func (s *Service) CreateDocument(ctx context.Context, authorID int64, in DocumentInput) (Document, error) {
	if err := documentValidate.Struct(in); err != nil {
		return Document{}, err
	}
	member, err := s.repo.GetMemberByCharacter(ctx, authorID)
	if err != nil {
		return Document{}, err
	}
	if !roles.IsAnyRole(member.Role, roles.Leader) {
		return Document{}, ErrInsufficientPrivileges
	}
	now := s.now()
	d := Document{
		CorporationID: member.CorporationID,
		Title:         in.Title,
		Body:          in.Body,
		AuthorID:      authorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	d.ID, err = s.repo.InsertDocument(ctx, d)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

// Documents lists the caller's corporation documents.
func (s *Service) Documents(ctx context.Context, characterID int64) ([]Document, error) {
	member, err := s.repo.GetMemberByCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, member.CorporationID)
}

// UpdateDocument rewrites title and body in place.
func (s *Service) UpdateDocument(ctx context.Context, documentID, editorID int64, in DocumentInput) error {
	if err := documentValidate.Struct(in); err != nil {
		return err
	}
	doc, err := s.editableDocument(ctx, documentID, editorID)
	if err != nil {
		return err
	}
	return s.repo.UpdateDocument(ctx, doc.ID, in.Title, in.Body, s.now())
}

// DeleteDocument removes a document permanently.
func (s *Service) DeleteDocument(ctx context.Context, documentID, editorID int64) error {
	doc, err := s.editableDocument(ctx, documentID, editorID)
	if err != nil {
		return err
	}
	return s.repo.DeleteDocument(ctx, doc.ID)
}

// editableDocument loads the document and checks the editor belongs to the
// owning corporation with a leadership role.
func (s *Service) editableDocument(ctx context.Context, documentID, editorID int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	member, err := s.repo.GetMemberByCharacter(ctx, editorID)
	if err != nil {
		return Document{}, err
	}
	if member.CorporationID != doc.CorporationID {
		return Document{}, ErrNotMember
	}
	if !roles.IsAnyRole(member.Role, roles.Leader) {
		return Document{}, ErrInsufficientPrivileges
	}
	return doc, nil
}
