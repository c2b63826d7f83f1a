package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/pkg/utils"

	"go.uber.org/zap"
)

// accessService derives roles and guards the owner-only membership
// mutations. Every operation re-resolves the caller's role against the
// durable store; nothing about the caller is trusted from the request.
type accessService struct {
	documents   ports.DocumentRepository
	memberships ports.MembershipRepository
	directory   ports.DirectoryService
	logger      *zap.SugaredLogger
}

func NewAccessService(
	documents ports.DocumentRepository,
	memberships ports.MembershipRepository,
	directory ports.DirectoryService,
	logger *zap.SugaredLogger,
) ports.AccessService {
	return &accessService{
		documents:   documents,
		memberships: memberships,
		directory:   directory,
		logger:      logger,
	}
}

func (s *accessService) ResolveRole(ctx context.Context, documentID domain.DocumentID, userID domain.UserID) (domain.Role, error) {
	if userID == "" {
		return domain.RoleNone, nil
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.RoleNone, nil
	}
	if err != nil {
		return domain.RoleNone, fmt.Errorf("failed to load document: %w", err)
	}

	// Ownership wins unconditionally, no membership lookup.
	if doc.OwnerID == userID {
		return domain.RoleOwner, nil
	}

	membership, err := s.memberships.GetByUserAndDocument(ctx, userID, documentID)
	if errors.Is(err, domain.ErrMembershipNotFound) {
		return domain.RoleNone, nil
	}
	if err != nil {
		return domain.RoleNone, fmt.Errorf("failed to load membership: %w", err)
	}

	return membership.Role, nil
}

// requireOwner loads the document and verifies the caller owns it. All
// membership administration goes through this gate.
func (s *accessService) requireOwner(ctx context.Context, caller domain.UserID, documentID domain.DocumentID) (*domain.Document, error) {
	if caller == "" {
		return nil, domain.ErrUnauthenticated
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if doc.OwnerID != caller {
		return nil, domain.ErrUnauthorized
	}

	return doc, nil
}

func (s *accessService) Invite(ctx context.Context, caller domain.UserID, documentID domain.DocumentID, invitee domain.UserID, inviteeEmail string, role domain.Role) (domain.MembershipID, error) {
	doc, err := s.requireOwner(ctx, caller, documentID)
	if err != nil {
		return "", err
	}

	if invitee == doc.OwnerID {
		return "", domain.ErrInvalidTarget
	}
	if !role.IsGrantable() {
		return "", fmt.Errorf("role %q is not grantable", role)
	}

	membership := &domain.Membership{
		ID:         domain.MembershipID(utils.GenerateMembershipID()),
		DocumentID: documentID,
		UserID:     invitee,
		Email:      utils.NormalizeEmail(inviteeEmail),
		Role:       role,
		GrantedAt:  time.Now(),
	}

	id, err := s.memberships.Upsert(ctx, membership)
	if err != nil {
		return "", fmt.Errorf("failed to upsert membership: %w", err)
	}

	s.logger.Infow("member invited",
		"document_id", documentID,
		"invitee", invitee,
		"role", role,
	)

	return id, nil
}

func (s *accessService) InviteByEmail(ctx context.Context, caller domain.UserID, documentID domain.DocumentID, email string, role domain.Role) (domain.MembershipID, error) {
	// Owner check runs before the directory round-trip so unauthorized
	// callers cannot probe which emails exist.
	if _, err := s.requireOwner(ctx, caller, documentID); err != nil {
		return "", err
	}

	inviteeID, err := s.directory.ResolveIDByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	return s.Invite(ctx, caller, documentID, inviteeID, email, role)
}

func (s *accessService) UpdateRole(ctx context.Context, caller domain.UserID, documentID domain.DocumentID, target domain.UserID, role domain.Role) error {
	if _, err := s.requireOwner(ctx, caller, documentID); err != nil {
		return err
	}

	if !role.IsGrantable() {
		return fmt.Errorf("role %q is not grantable", role)
	}

	if err := s.memberships.PatchRole(ctx, documentID, target, role); err != nil {
		return err
	}

	s.logger.Infow("member role updated",
		"document_id", documentID,
		"target", target,
		"role", role,
	)

	return nil
}

func (s *accessService) Revoke(ctx context.Context, caller domain.UserID, documentID domain.DocumentID, target domain.UserID) error {
	if _, err := s.requireOwner(ctx, caller, documentID); err != nil {
		return err
	}

	// Revocation is idempotent: deleting an absent membership is a no-op.
	if err := s.memberships.Delete(ctx, documentID, target); err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	s.logger.Infow("member revoked",
		"document_id", documentID,
		"target", target,
	)

	return nil
}

func (s *accessService) ListMembers(ctx context.Context, caller domain.UserID, documentID domain.DocumentID) ([]*domain.Membership, error) {
	// Membership visibility is owner-private: editors and viewers get
	// ErrUnauthorized, same as strangers.
	if _, err := s.requireOwner(ctx, caller, documentID); err != nil {
		return nil, err
	}

	return s.memberships.ListByDocument(ctx, documentID)
}
