package http

import (
	"net/http"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/internal/core/services"
	"quillroom/internal/infrastructure/distributed"
	"quillroom/internal/infrastructure/middleware"
	"quillroom/pkg/errors"
	"quillroom/pkg/utils"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documents     ports.DocumentRepository
	accessService ports.AccessService
	authService   services.AuthService
	// events is nil when running without Redis; deletions then only reach
	// rooms hosted by this process.
	events *distributed.EventBus
}

func NewDocumentHandler(
	documents ports.DocumentRepository,
	accessService ports.AccessService,
	authService services.AuthService,
	events *distributed.EventBus,
) *DocumentHandler {
	return &DocumentHandler{
		documents:     documents,
		accessService: accessService,
		authService:   authService,
		events:        events,
	}
}

func (h *DocumentHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/documents", middleware.AuthMiddleware(h.authService))
	{
		api.POST("", h.CreateDocument)
		api.GET("/:id", h.GetDocument)
		api.DELETE("/:id", h.DeleteDocument)
	}
}

type CreateDocumentRequest struct {
	Title    string `json:"title" binding:"max=500"`
	Icon     string `json:"icon" binding:"max=100"`
	ParentID string `json:"parent_id" binding:"max=128"`
}

func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	caller := middleware.UserFromContext(c)

	var req CreateDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	doc := &domain.Document{
		ID:        domain.DocumentID(utils.GenerateID("doc")),
		OwnerID:   caller,
		Title:     req.Title,
		Icon:      req.Icon,
		ParentID:  domain.DocumentID(req.ParentID),
		CreatedAt: time.Now(),
	}

	if err := h.documents.Create(c.Request.Context(), doc); err != nil {
		c.Error(errors.NewInternalError("failed to create document"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	documentID := domain.DocumentID(c.Param("id"))
	caller := middleware.UserFromContext(c)

	role, err := h.accessService.ResolveRole(c.Request.Context(), documentID, caller)
	if err != nil {
		c.Error(mapDomainError(err))
		return
	}
	if !role.AtLeast(domain.RoleViewer) {
		// A caller with no access cannot distinguish "hidden" from "absent".
		c.Error(errors.NewNotFoundError("document"))
		return
	}

	doc, err := h.documents.GetByID(c.Request.Context(), documentID)
	if err != nil {
		c.Error(mapDomainError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document": doc,
		"role":     role,
	})
}

func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	documentID := domain.DocumentID(c.Param("id"))
	caller := middleware.UserFromContext(c)

	role, err := h.accessService.ResolveRole(c.Request.Context(), documentID, caller)
	if err != nil {
		c.Error(mapDomainError(err))
		return
	}
	if role != domain.RoleOwner {
		c.Error(errors.NewUnauthorizedError("only the document owner can do this"))
		return
	}

	if err := h.documents.Delete(c.Request.Context(), documentID); err != nil {
		c.Error(mapDomainError(err))
		return
	}

	if h.events != nil {
		h.events.PublishDocumentDeleted(c.Request.Context(), documentID)
	}

	c.Status(http.StatusNoContent)
}
