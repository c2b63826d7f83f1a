package ports

import (
	"context"

	"quillroom/internal/core/domain"
)

// AccessService is the authorization core: role resolution plus the
// owner-only membership mutations guarded by it.
type AccessService interface {
	// ResolveRole derives the effective role of a user on a document. It is
	// side-effect free and recomputed on every call; callers must not cache
	// the result across requests.
	ResolveRole(ctx context.Context, documentID domain.DocumentID, userID domain.UserID) (domain.Role, error)

	Invite(ctx context.Context, caller domain.UserID, documentID domain.DocumentID, invitee domain.UserID, inviteeEmail string, role domain.Role) (domain.MembershipID, error)
	InviteByEmail(ctx context.Context, caller domain.UserID, documentID domain.DocumentID, email string, role domain.Role) (domain.MembershipID, error)
	UpdateRole(ctx context.Context, caller domain.UserID, documentID domain.DocumentID, target domain.UserID, role domain.Role) error
	Revoke(ctx context.Context, caller domain.UserID, documentID domain.DocumentID, target domain.UserID) error
	ListMembers(ctx context.Context, caller domain.UserID, documentID domain.DocumentID) ([]*domain.Membership, error)
}

// DirectoryService resolves external identities to display profiles.
// Per-id failures are absorbed into placeholder profiles and never surface.
type DirectoryService interface {
	ResolveProfiles(ctx context.Context, ids []domain.UserID) []domain.Profile
	ResolveIDByEmail(ctx context.Context, email string) (domain.UserID, error)
}

// DirectoryClient is the raw transport to the external identity provider.
// Both calls may fail; the DirectoryService decides what is absorbed.
type DirectoryClient interface {
	FetchProfile(ctx context.Context, id domain.UserID) (*domain.Profile, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.Profile, error)
}

// PresenceService coordinates the ephemeral per-document rooms.
type PresenceService interface {
	// Join registers a connection in a room. The connection counts as joined
	// only after the settle delay has elapsed; the returned channel delivers
	// room snapshots (raw, unprojected) starting with the post-settle state.
	Join(ctx context.Context, documentID domain.DocumentID, connectionID domain.ConnectionID, userID domain.UserID) (<-chan []domain.PresenceRecord, error)
	// Leave tears the connection down, publishing a final not-editing,
	// no-cursor record first. Safe to call more than once.
	Leave(documentID domain.DocumentID, connectionID domain.ConnectionID)
	UpdateCursor(documentID domain.DocumentID, connectionID domain.ConnectionID, cursor *domain.Cursor)
	SetEditing(documentID domain.DocumentID, connectionID domain.ConnectionID, isEditing bool)
	Snapshot(documentID domain.DocumentID) []domain.PresenceRecord
	// Refresh re-broadcasts the current room state. Subscribers re-project
	// on every delivery, so this is how an access change reaches viewers
	// that would otherwise see nothing until the next cursor move.
	Refresh(documentID domain.DocumentID)
}
