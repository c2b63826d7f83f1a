package services

import (
	"context"
	"testing"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDirectory struct {
	idsByEmail map[string]domain.UserID
}

func (d *stubDirectory) ResolveProfiles(ctx context.Context, ids []domain.UserID) []domain.Profile {
	profiles := make([]domain.Profile, len(ids))
	for i, id := range ids {
		profiles[i] = domain.AnonymousProfile(id)
	}
	return profiles
}

func (d *stubDirectory) ResolveIDByEmail(ctx context.Context, email string) (domain.UserID, error) {
	id, ok := d.idsByEmail[email]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return id, nil
}

func newAccessFixture(t *testing.T) (ports.AccessService, ports.DocumentRepository, *stubDirectory) {
	t.Helper()

	documents := memory.NewMemoryDocumentRepository()
	memberships := memory.NewMemoryMembershipRepository()
	directory := &stubDirectory{idsByEmail: make(map[string]domain.UserID)}

	service := NewAccessService(documents, memberships, directory, zap.NewNop().Sugar())
	return service, documents, directory
}

func createDocument(t *testing.T, documents ports.DocumentRepository, id domain.DocumentID, owner domain.UserID) {
	t.Helper()
	err := documents.Create(context.Background(), &domain.Document{
		ID:        id,
		OwnerID:   owner,
		Title:     "Test Document",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestResolveRoleAnonymousIsNone(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	role, err := service.ResolveRole(context.Background(), "doc_1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, role)
}

func TestResolveRoleMissingDocumentIsNone(t *testing.T) {
	service, _, _ := newAccessFixture(t)

	role, err := service.ResolveRole(context.Background(), "doc_missing", "user_1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, role)
}

func TestResolveRoleOwnershipWins(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	// Even a conflicting membership row cannot demote the owner.
	role, err := service.ResolveRole(context.Background(), "doc_1", "user_owner")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, role)
}

func TestResolveRoleFromMembership(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_editor", "editor@example.com", domain.RoleEditor)
	require.NoError(t, err)

	role, err := service.ResolveRole(context.Background(), "doc_1", "user_editor")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, role)

	role, err = service.ResolveRole(context.Background(), "doc_1", "user_stranger")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, role)
}

func TestInviteRequiresOwner(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_editor", "", domain.RoleEditor)
	require.NoError(t, err)

	// An editor cannot grant access to others.
	_, err = service.Invite(context.Background(), "user_editor", "doc_1", "user_x", "", domain.RoleViewer)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Neither can an anonymous caller.
	_, err = service.Invite(context.Background(), "", "doc_1", "user_x", "", domain.RoleViewer)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestInviteOwnerIsInvalidTarget(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_owner", "", domain.RoleViewer)
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)
}

func TestInviteMissingDocument(t *testing.T) {
	service, _, _ := newAccessFixture(t)

	_, err := service.Invite(context.Background(), "user_owner", "doc_missing", "user_x", "", domain.RoleViewer)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestInviteRejectsNonGrantableRole(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_x", "", domain.RoleOwner)
	assert.Error(t, err)

	_, err = service.Invite(context.Background(), "user_owner", "doc_1", "user_x", "", domain.RoleNone)
	assert.Error(t, err)
}

func TestReinviteUpsertsInPlace(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	first, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_m", "m@example.com", domain.RoleViewer)
	require.NoError(t, err)

	second, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_m", "m@example.com", domain.RoleEditor)
	require.NoError(t, err)

	// Same row, no duplicate: the id survives and the role is the last write.
	assert.Equal(t, first, second)

	role, err := service.ResolveRole(context.Background(), "doc_1", "user_m")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, role)

	members, err := service.ListMembers(context.Background(), "user_owner", "doc_1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestInviteByEmailResolvesThroughDirectory(t *testing.T) {
	service, documents, directory := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")
	directory.idsByEmail["invitee@example.com"] = "user_invitee"

	_, err := service.InviteByEmail(context.Background(), "user_owner", "doc_1", "invitee@example.com", domain.RoleViewer)
	require.NoError(t, err)

	role, err := service.ResolveRole(context.Background(), "doc_1", "user_invitee")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleViewer, role)
}

func TestInviteByEmailUnknownAddress(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.InviteByEmail(context.Background(), "user_owner", "doc_1", "nobody@example.com", domain.RoleViewer)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestInviteByEmailChecksOwnerBeforeDirectory(t *testing.T) {
	service, documents, directory := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")
	directory.idsByEmail["invitee@example.com"] = "user_invitee"

	// A non-owner gets the authorization error, not a directory answer
	// that would reveal whether the address has an account.
	_, err := service.InviteByEmail(context.Background(), "user_other", "doc_1", "invitee@example.com", domain.RoleViewer)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestUpdateRole(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_m", "", domain.RoleViewer)
	require.NoError(t, err)

	err = service.UpdateRole(context.Background(), "user_owner", "doc_1", "user_m", domain.RoleEditor)
	require.NoError(t, err)

	role, err := service.ResolveRole(context.Background(), "doc_1", "user_m")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, role)
}

func TestUpdateRoleMissingMembership(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	err := service.UpdateRole(context.Background(), "user_owner", "doc_1", "user_ghost", domain.RoleEditor)
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
}

func TestRevokeIsIdempotent(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_m", "", domain.RoleEditor)
	require.NoError(t, err)

	require.NoError(t, service.Revoke(context.Background(), "user_owner", "doc_1", "user_m"))

	role, err := service.ResolveRole(context.Background(), "doc_1", "user_m")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, role)

	// Revoking again, or revoking someone who never had access, succeeds.
	assert.NoError(t, service.Revoke(context.Background(), "user_owner", "doc_1", "user_m"))
	assert.NoError(t, service.Revoke(context.Background(), "user_owner", "doc_1", "user_never"))
}

func TestListMembersIsOwnerOnly(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_e", "", domain.RoleEditor)
	require.NoError(t, err)

	members, err := service.ListMembers(context.Background(), "user_owner", "doc_1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, domain.UserID("user_e"), members[0].UserID)

	// Members themselves cannot enumerate the member list.
	_, err = service.ListMembers(context.Background(), "user_e", "doc_1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = service.ListMembers(context.Background(), "", "doc_1")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestRevokedMemberLosesAccessImmediately(t *testing.T) {
	service, documents, _ := newAccessFixture(t)
	createDocument(t, documents, "doc_1", "user_owner")

	_, err := service.Invite(context.Background(), "user_owner", "doc_1", "user_m", "", domain.RoleEditor)
	require.NoError(t, err)

	role, _ := service.ResolveRole(context.Background(), "doc_1", "user_m")
	assert.Equal(t, domain.RoleEditor, role)

	require.NoError(t, service.Revoke(context.Background(), "user_owner", "doc_1", "user_m"))

	// Roles are derived per call, so there is no stale grant to expire.
	role, _ = service.ResolveRole(context.Background(), "doc_1", "user_m")
	assert.Equal(t, domain.RoleNone, role)
}
