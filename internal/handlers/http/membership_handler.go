package http

import (
	"net/http"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/internal/core/services"
	"quillroom/internal/infrastructure/distributed"
	"quillroom/internal/infrastructure/middleware"
	"quillroom/internal/infrastructure/monitoring"
	"quillroom/pkg/errors"
	"quillroom/pkg/validation"

	"github.com/gin-gonic/gin"
)

type MembershipHandler struct {
	accessService ports.AccessService
	authService   services.AuthService
	metrics       *monitoring.PrometheusCollector
	// events is nil when running without Redis; mutations then only reach
	// rooms hosted by this process.
	events *distributed.EventBus
}

func NewMembershipHandler(
	accessService ports.AccessService,
	authService services.AuthService,
	metrics *monitoring.PrometheusCollector,
	events *distributed.EventBus,
) *MembershipHandler {
	return &MembershipHandler{
		accessService: accessService,
		authService:   authService,
		metrics:       metrics,
		events:        events,
	}
}

func (h *MembershipHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		// Role resolution works for anonymous callers too: they get "none".
		api.GET("/documents/:id/role", middleware.OptionalAuthMiddleware(h.authService), h.GetRole)

		members := api.Group("/documents/:id/members", middleware.AuthMiddleware(h.authService))
		{
			members.GET("", h.ListMembers)
			members.POST("", h.Invite)
			members.PATCH("/:userID", h.UpdateRole)
			members.DELETE("/:userID", h.Revoke)
		}
	}
}

type InviteRequest struct {
	UserID string `json:"user_id" binding:"max=128"`
	Email  string `json:"email" binding:"omitempty,email,max=254"`
	Role   string `json:"role" binding:"required"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type memberResponse struct {
	ID         domain.MembershipID `json:"id"`
	DocumentID domain.DocumentID   `json:"document_id"`
	UserID     domain.UserID       `json:"user_id"`
	Email      string              `json:"email"`
	Role       domain.Role         `json:"role"`
	GrantedAt  int64               `json:"granted_at"`
}

func (h *MembershipHandler) GetRole(c *gin.Context) {
	documentID := domain.DocumentID(c.Param("id"))
	if err := validation.ValidateDocumentID(string(documentID)); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	caller := middleware.UserFromContext(c)

	role, err := h.accessService.ResolveRole(c.Request.Context(), documentID, caller)
	if err != nil {
		c.Error(mapDomainError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document_id": documentID,
		"role":        role,
	})
}

func (h *MembershipHandler) ListMembers(c *gin.Context) {
	documentID := domain.DocumentID(c.Param("id"))
	caller := middleware.UserFromContext(c)

	members, err := h.accessService.ListMembers(c.Request.Context(), caller, documentID)
	if err != nil {
		h.metrics.RecordAuthorizationDenied("list_members")
		c.Error(mapDomainError(err))
		return
	}

	response := make([]memberResponse, 0, len(members))
	for _, m := range members {
		response = append(response, memberResponse{
			ID:         m.ID,
			DocumentID: m.DocumentID,
			UserID:     m.UserID,
			Email:      m.Email,
			Role:       m.Role,
			GrantedAt:  m.GrantedAt.Unix(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"members": response})
}

// Invite grants or replaces a member's role. The target is named either by
// user_id or by email; with an email the directory resolves the account
// first, and an address without an account is a not-found.
func (h *MembershipHandler) Invite(c *gin.Context) {
	documentID := domain.DocumentID(c.Param("id"))
	caller := middleware.UserFromContext(c)

	var req InviteRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := validation.ValidateGrantableRole(req.Role); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}
	role := domain.Role(req.Role)

	var (
		membershipID domain.MembershipID
		err          error
	)

	switch {
	case req.UserID != "":
		if err := validation.ValidateUserID(req.UserID); err != nil {
			c.Error(errors.NewInvalidInputError(err.Error()))
			return
		}
		membershipID, err = h.accessService.Invite(c.Request.Context(), caller, documentID, domain.UserID(req.UserID), req.Email, role)
	case req.Email != "":
		membershipID, err = h.accessService.InviteByEmail(c.Request.Context(), caller, documentID, req.Email, role)
	default:
		c.Error(errors.NewInvalidInputError("either user_id or email is required"))
		return
	}

	h.metrics.RecordMembershipMutation("invite", err)
	if err != nil {
		c.Error(mapDomainError(err))
		return
	}

	if h.events != nil {
		h.events.PublishMembershipGranted(c.Request.Context(), documentID, domain.UserID(req.UserID), role)
	}

	c.JSON(http.StatusCreated, gin.H{
		"membership_id": membershipID,
		"document_id":   documentID,
		"role":          role,
	})
}

func (h *MembershipHandler) UpdateRole(c *gin.Context) {
	documentID := domain.DocumentID(c.Param("id"))
	target := domain.UserID(c.Param("userID"))
	caller := middleware.UserFromContext(c)

	var req UpdateRoleRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := validation.ValidateGrantableRole(req.Role); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	err := h.accessService.UpdateRole(c.Request.Context(), caller, documentID, target, domain.Role(req.Role))
	h.metrics.RecordMembershipMutation("update_role", err)
	if err != nil {
		c.Error(mapDomainError(err))
		return
	}

	if h.events != nil {
		h.events.PublishRoleChanged(c.Request.Context(), documentID, target, domain.Role(req.Role))
	}

	c.JSON(http.StatusOK, gin.H{
		"document_id": documentID,
		"user_id":     target,
		"role":        req.Role,
	})
}

func (h *MembershipHandler) Revoke(c *gin.Context) {
	documentID := domain.DocumentID(c.Param("id"))
	target := domain.UserID(c.Param("userID"))
	caller := middleware.UserFromContext(c)

	err := h.accessService.Revoke(c.Request.Context(), caller, documentID, target)
	h.metrics.RecordMembershipMutation("revoke", err)
	if err != nil {
		c.Error(mapDomainError(err))
		return
	}

	if h.events != nil {
		h.events.PublishMembershipRevoked(c.Request.Context(), documentID, target)
	}

	c.Status(http.StatusNoContent)
}
