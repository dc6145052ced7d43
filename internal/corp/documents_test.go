package corp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halcyongames/starhold/internal/roles"
)

func TestDocumentLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCorp(Corporation{ID: 2, Active: true})
	repo.addMember(2, 100, roles.CEO)
	repo.addMember(2, 101, 0)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, 100, DocumentInput{Title: "Charter", Body: "No warp scramblers in the home system."})
	require.NoError(t, err)
	require.Equal(t, int64(2), doc.CorporationID)
	require.Equal(t, int64(100), doc.AuthorID)
	require.NotZero(t, doc.ID)

	// Any member reads.
	docs, err := svc.Documents(ctx, 101)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "Charter", docs[0].Title)

	require.NoError(t, svc.UpdateDocument(ctx, doc.ID, 100, DocumentInput{Title: "Charter v2", Body: "Revised."}))
	require.Equal(t, "Charter v2", repo.documents[doc.ID].Title)

	require.NoError(t, svc.DeleteDocument(ctx, doc.ID, 100))
	require.Empty(t, repo.documents)
}

func TestDocumentWriteRequiresLeadership(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCorp(Corporation{ID: 2, Active: true})
	repo.addMember(2, 100, roles.DeputyCEO)
	repo.addMember(2, 101, roles.Accountant)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateDocument(ctx, 101, DocumentInput{Title: "Memo"})
	require.ErrorIs(t, err, ErrInsufficientPrivileges)

	doc, err := svc.CreateDocument(ctx, 100, DocumentInput{Title: "Memo"})
	require.NoError(t, err)

	err = svc.UpdateDocument(ctx, doc.ID, 101, DocumentInput{Title: "Defaced"})
	require.ErrorIs(t, err, ErrInsufficientPrivileges)
	err = svc.DeleteDocument(ctx, doc.ID, 101)
	require.ErrorIs(t, err, ErrInsufficientPrivileges)
}

func TestDocumentEditScopedToOwningCorporation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCorp(Corporation{ID: 2, Active: true})
	repo.addCorp(Corporation{ID: 3, Active: true})
	repo.addMember(2, 100, roles.CEO)
	repo.addMember(3, 200, roles.CEO)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	doc, err := svc.CreateDocument(ctx, 100, DocumentInput{Title: "Internal"})
	require.NoError(t, err)

	// A leader of another corporation cannot touch it.
	err = svc.UpdateDocument(ctx, doc.ID, 200, DocumentInput{Title: "Hijacked"})
	require.ErrorIs(t, err, ErrNotMember)
	err = svc.DeleteDocument(ctx, doc.ID, 200)
	require.ErrorIs(t, err, ErrNotMember)
}

func TestDocumentValidatesInput(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCorp(Corporation{ID: 2, Active: true})
	repo.addMember(2, 100, roles.CEO)
	svc, _, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateDocument(ctx, 100, DocumentInput{Title: ""})
	require.Error(t, err)

	_, err = svc.CreateDocument(ctx, 100, DocumentInput{Title: strings.Repeat("x", 129)})
	require.Error(t, err)
	require.Empty(t, repo.documents)
}

func TestDocumentUpdateMissingDocument(t *testing.T) {
	repo := newMemoryRepo()
	repo.addCorp(Corporation{ID: 2, Active: true})
	repo.addMember(2, 100, roles.CEO)
	svc, _, _ := newTestService(repo)

	err := svc.UpdateDocument(context.Background(), 99, 100, DocumentInput{Title: "Ghost"})
	require.ErrorIs(t, err, ErrDocumentNotFound)
}
