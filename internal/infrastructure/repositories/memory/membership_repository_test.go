package memory

import (
	"context"
	"testing"
	"time"

	"quillroom/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func membershipRow(id domain.MembershipID, doc domain.DocumentID, user domain.UserID, role domain.Role) *domain.Membership {
	return &domain.Membership{
		ID:         id,
		DocumentID: doc,
		UserID:     user,
		Email:      string(user) + "@example.com",
		Role:       role,
		GrantedAt:  time.Now(),
	}
}

func TestUpsertPreservesRowIdentity(t *testing.T) {
	repo := NewMemoryMembershipRepository()
	ctx := context.Background()

	first, err := repo.Upsert(ctx, membershipRow("mem_1", "doc_1", "user_a", domain.RoleViewer))
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipID("mem_1"), first)

	original, err := repo.GetByUserAndDocument(ctx, "user_a", "doc_1")
	require.NoError(t, err)

	// The second upsert carries a fresh id and grant time; neither replaces
	// the existing row's.
	second, err := repo.Upsert(ctx, membershipRow("mem_2", "doc_1", "user_a", domain.RoleEditor))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	row, err := repo.GetByUserAndDocument(ctx, "user_a", "doc_1")
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipID("mem_1"), row.ID)
	assert.Equal(t, domain.RoleEditor, row.Role)
	assert.Equal(t, original.GrantedAt, row.GrantedAt)

	members, err := repo.ListByDocument(ctx, "doc_1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestPatchRole(t *testing.T) {
	repo := NewMemoryMembershipRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, membershipRow("mem_1", "doc_1", "user_a", domain.RoleViewer))
	require.NoError(t, err)

	require.NoError(t, repo.PatchRole(ctx, "doc_1", "user_a", domain.RoleEditor))

	row, err := repo.GetByUserAndDocument(ctx, "user_a", "doc_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, row.Role)

	err = repo.PatchRole(ctx, "doc_1", "user_ghost", domain.RoleEditor)
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	repo := NewMemoryMembershipRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, membershipRow("mem_1", "doc_1", "user_a", domain.RoleViewer))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "doc_1", "user_a"))
	require.NoError(t, repo.Delete(ctx, "doc_1", "user_a"))
	require.NoError(t, repo.Delete(ctx, "doc_1", "user_never"))

	_, err = repo.GetByUserAndDocument(ctx, "user_a", "doc_1")
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
}

func TestListByDocumentScopesToDocument(t *testing.T) {
	repo := NewMemoryMembershipRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, membershipRow("mem_1", "doc_1", "user_a", domain.RoleViewer))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, membershipRow("mem_2", "doc_1", "user_b", domain.RoleEditor))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, membershipRow("mem_3", "doc_2", "user_a", domain.RoleViewer))
	require.NoError(t, err)

	members, err := repo.ListByDocument(ctx, "doc_1")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	members, err = repo.ListByDocument(ctx, "doc_3")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestGetReturnsACopy(t *testing.T) {
	repo := NewMemoryMembershipRepository()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, membershipRow("mem_1", "doc_1", "user_a", domain.RoleViewer))
	require.NoError(t, err)

	row, err := repo.GetByUserAndDocument(ctx, "user_a", "doc_1")
	require.NoError(t, err)
	row.Role = domain.RoleOwner

	stored, err := repo.GetByUserAndDocument(ctx, "user_a", "doc_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, stored.Role)
}
