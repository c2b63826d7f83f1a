package ports

import (
	"context"

	"quillroom/internal/core/domain"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id domain.DocumentID) (*domain.Document, error)
	Delete(ctx context.Context, id domain.DocumentID) error
}

// MembershipRepository stores explicit access grants. Implementations must
// apply each call atomically per (documentID, userID) key so concurrent
// invite/update/revoke calls for the same pair cannot interleave.
type MembershipRepository interface {
	// Upsert inserts a membership or, when a row already exists for
	// (DocumentID, UserID), overwrites its role and email in place.
	Upsert(ctx context.Context, membership *domain.Membership) (domain.MembershipID, error)
	// PatchRole mutates the role of an existing membership, leaving email
	// untouched. Returns domain.ErrMembershipNotFound when absent.
	PatchRole(ctx context.Context, documentID domain.DocumentID, userID domain.UserID, role domain.Role) error
	// Delete removes the membership if present. Deleting an absent
	// membership is not an error.
	Delete(ctx context.Context, documentID domain.DocumentID, userID domain.UserID) error
	GetByUserAndDocument(ctx context.Context, userID domain.UserID, documentID domain.DocumentID) (*domain.Membership, error)
	ListByDocument(ctx context.Context, documentID domain.DocumentID) ([]*domain.Membership, error)
}
