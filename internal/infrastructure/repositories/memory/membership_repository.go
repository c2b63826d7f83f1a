package memory

import (
	"context"
	"sync"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
)

type membershipKey struct {
	documentID domain.DocumentID
	userID     domain.UserID
}

// MemoryMembershipRepository guards all rows with one mutex, which makes
// every call atomic per (documentID, userID) key.
type MemoryMembershipRepository struct {
	memberships map[membershipKey]*domain.Membership
	mu          sync.RWMutex
}

func NewMemoryMembershipRepository() ports.MembershipRepository {
	return &MemoryMembershipRepository{
		memberships: make(map[membershipKey]*domain.Membership),
	}
}

func (r *MemoryMembershipRepository) Upsert(ctx context.Context, membership *domain.Membership) (domain.MembershipID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := membershipKey{membership.DocumentID, membership.UserID}

	// Re-inviting an existing member overwrites role and email in place;
	// the row identity and grant time stay.
	if existing, exists := r.memberships[key]; exists {
		existing.Role = membership.Role
		existing.Email = membership.Email
		return existing.ID, nil
	}

	copied := *membership
	r.memberships[key] = &copied
	return copied.ID, nil
}

func (r *MemoryMembershipRepository) PatchRole(ctx context.Context, documentID domain.DocumentID, userID domain.UserID, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.memberships[membershipKey{documentID, userID}]
	if !exists {
		return domain.ErrMembershipNotFound
	}

	existing.Role = role
	return nil
}

func (r *MemoryMembershipRepository) Delete(ctx context.Context, documentID domain.DocumentID, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.memberships, membershipKey{documentID, userID})
	return nil
}

func (r *MemoryMembershipRepository) GetByUserAndDocument(ctx context.Context, userID domain.UserID, documentID domain.DocumentID) (*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, exists := r.memberships[membershipKey{documentID, userID}]
	if !exists {
		return nil, domain.ErrMembershipNotFound
	}

	copied := *existing
	return &copied, nil
}

func (r *MemoryMembershipRepository) ListByDocument(ctx context.Context, documentID domain.DocumentID) ([]*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []*domain.Membership
	for key, membership := range r.memberships {
		if key.documentID == documentID {
			copied := *membership
			members = append(members, &copied)
		}
	}

	return members, nil
}
