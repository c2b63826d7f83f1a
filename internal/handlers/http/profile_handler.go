package http

import (
	"net/http"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/internal/core/services"
	"quillroom/internal/infrastructure/middleware"
	"quillroom/pkg/errors"

	"github.com/gin-gonic/gin"
)

const maxProfileLookupBatch = 100

type ProfileHandler struct {
	directory   ports.DirectoryService
	authService services.AuthService
}

func NewProfileHandler(directory ports.DirectoryService, authService services.AuthService) *ProfileHandler {
	return &ProfileHandler{
		directory:   directory,
		authService: authService,
	}
}

func (h *ProfileHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/profiles", middleware.AuthMiddleware(h.authService))
	{
		api.POST("/lookup", h.Lookup)
	}
}

type ProfileLookupRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1"`
}

type profileResponse struct {
	ID     domain.UserID `json:"id"`
	Name   string        `json:"name"`
	Email  string        `json:"email,omitempty"`
	Avatar string        `json:"avatar,omitempty"`
}

// Lookup resolves a batch of user ids to display profiles. Ids the
// directory cannot resolve come back as the anonymous placeholder, so the
// response always has one entry per requested id, in request order.
func (h *ProfileHandler) Lookup(c *gin.Context) {
	var req ProfileLookupRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	if len(req.UserIDs) > maxProfileLookupBatch {
		c.Error(errors.NewInvalidInputError("too many user ids in one lookup"))
		return
	}

	ids := make([]domain.UserID, len(req.UserIDs))
	for i, id := range req.UserIDs {
		ids[i] = domain.UserID(id)
	}

	profiles := h.directory.ResolveProfiles(c.Request.Context(), ids)

	response := make([]profileResponse, len(profiles))
	for i, p := range profiles {
		response[i] = profileResponse{
			ID:     p.ID,
			Name:   p.Name,
			Email:  p.Email,
			Avatar: p.Avatar,
		}
	}

	c.JSON(http.StatusOK, gin.H{"profiles": response})
}
