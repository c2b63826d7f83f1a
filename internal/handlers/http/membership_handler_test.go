package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/internal/core/services"
	"quillroom/internal/infrastructure/middleware"
	"quillroom/internal/infrastructure/monitoring"
	"quillroom/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Prometheus collectors register against the global registry, so the
// package shares one instance across tests.
var testMetrics = monitoring.NewPrometheusCollector()

type testDirectory struct {
	idsByEmail map[string]domain.UserID
}

func (d *testDirectory) ResolveProfiles(ctx context.Context, ids []domain.UserID) []domain.Profile {
	profiles := make([]domain.Profile, len(ids))
	for i, id := range ids {
		profiles[i] = domain.AnonymousProfile(id)
	}
	return profiles
}

func (d *testDirectory) ResolveIDByEmail(ctx context.Context, email string) (domain.UserID, error) {
	id, ok := d.idsByEmail[email]
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return id, nil
}

type apiFixture struct {
	router    *gin.Engine
	auth      services.AuthService
	documents ports.DocumentRepository
	directory *testDirectory
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	log := zap.NewNop().Sugar()
	documents := memory.NewMemoryDocumentRepository()
	memberships := memory.NewMemoryMembershipRepository()
	directory := &testDirectory{idsByEmail: make(map[string]domain.UserID)}

	accessService := services.NewAccessService(documents, memberships, directory, log)
	authService := services.NewAuthService("test-secret", time.Hour, 24*time.Hour)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(log))

	NewMembershipHandler(accessService, authService, testMetrics, nil).SetupRoutes(router)
	NewDocumentHandler(documents, accessService, authService, nil).SetupRoutes(router)

	return &apiFixture{
		router:    router,
		auth:      authService,
		documents: documents,
		directory: directory,
	}
}

func (f *apiFixture) token(t *testing.T, userID domain.UserID) string {
	t.Helper()
	token, err := f.auth.GenerateToken(userID, string(userID)+"@example.com", "Test User")
	require.NoError(t, err)
	return token
}

func (f *apiFixture) seedDocument(t *testing.T, id domain.DocumentID, owner domain.UserID) {
	t.Helper()
	err := f.documents.Create(context.Background(), &domain.Document{
		ID:        id,
		OwnerID:   owner,
		Title:     "Seeded",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func (f *apiFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestMembershipEndpointsRequireToken(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	w := f.do(http.MethodGet, "/api/v1/documents/doc_1/members", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/documents/doc_1/members", "not-a-jwt", gin.H{"user_id": "user_x", "role": "viewer"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetRoleAllowsAnonymous(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	w := f.do(http.MethodGet, "/api/v1/documents/doc_1/role", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", decodeBody(t, w)["role"])

	w = f.do(http.MethodGet, "/api/v1/documents/doc_1/role", f.token(t, "user_owner"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner", decodeBody(t, w)["role"])
}

func TestMembershipLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")
	ownerToken := f.token(t, "user_owner")

	// Invite by user id.
	w := f.do(http.MethodPost, "/api/v1/documents/doc_1/members", ownerToken, gin.H{
		"user_id": "user_editor",
		"email":   "editor@example.com",
		"role":    "editor",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["membership_id"])

	// The invitee resolves to the granted role.
	w = f.do(http.MethodGet, "/api/v1/documents/doc_1/role", f.token(t, "user_editor"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "editor", decodeBody(t, w)["role"])

	// Owner lists the single member row.
	w = f.do(http.MethodGet, "/api/v1/documents/doc_1/members", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	members := decodeBody(t, w)["members"].([]interface{})
	require.Len(t, members, 1)
	member := members[0].(map[string]interface{})
	assert.Equal(t, "user_editor", member["user_id"])
	assert.Equal(t, "editor", member["role"])

	// Demote to viewer.
	w = f.do(http.MethodPatch, "/api/v1/documents/doc_1/members/user_editor", ownerToken, gin.H{"role": "viewer"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/documents/doc_1/role", f.token(t, "user_editor"), nil)
	assert.Equal(t, "viewer", decodeBody(t, w)["role"])

	// Revoke, twice: both succeed.
	w = f.do(http.MethodDelete, "/api/v1/documents/doc_1/members/user_editor", ownerToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(http.MethodDelete, "/api/v1/documents/doc_1/members/user_editor", ownerToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/v1/documents/doc_1/role", f.token(t, "user_editor"), nil)
	assert.Equal(t, "none", decodeBody(t, w)["role"])
}

func TestInviteByNonOwnerIsForbidden(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	w := f.do(http.MethodPost, "/api/v1/documents/doc_1/members", f.token(t, "user_owner"), gin.H{
		"user_id": "user_editor",
		"role":    "editor",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPost, "/api/v1/documents/doc_1/members", f.token(t, "user_editor"), gin.H{
		"user_id": "user_x",
		"role":    "viewer",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeBody(t, w)["error"])
}

func TestInviteOwnerIsUnprocessable(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	w := f.do(http.MethodPost, "/api/v1/documents/doc_1/members", f.token(t, "user_owner"), gin.H{
		"user_id": "user_owner",
		"role":    "viewer",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_TARGET", decodeBody(t, w)["error"])
}

func TestInviteValidation(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")
	ownerToken := f.token(t, "user_owner")

	// Owner role is implicit and never grantable.
	w := f.do(http.MethodPost, "/api/v1/documents/doc_1/members", ownerToken, gin.H{
		"user_id": "user_x",
		"role":    "owner",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/documents/doc_1/members", ownerToken, gin.H{
		"user_id": "user_x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A target must be named one way or the other.
	w = f.do(http.MethodPost, "/api/v1/documents/doc_1/members", ownerToken, gin.H{
		"role": "viewer",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInviteByEmail(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")
	f.directory.idsByEmail["invitee@example.com"] = "user_invitee"
	ownerToken := f.token(t, "user_owner")

	w := f.do(http.MethodPost, "/api/v1/documents/doc_1/members", ownerToken, gin.H{
		"email": "invitee@example.com",
		"role":  "viewer",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/api/v1/documents/doc_1/role", f.token(t, "user_invitee"), nil)
	assert.Equal(t, "viewer", decodeBody(t, w)["role"])

	// An address without an account is a not-found, never a silent grant.
	w = f.do(http.MethodPost, "/api/v1/documents/doc_1/members", ownerToken, gin.H{
		"email": "ghost@example.com",
		"role":  "viewer",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMembersByMemberIsForbidden(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	w := f.do(http.MethodPost, "/api/v1/documents/doc_1/members", f.token(t, "user_owner"), gin.H{
		"user_id": "user_viewer",
		"role":    "viewer",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/api/v1/documents/doc_1/members", f.token(t, "user_viewer"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
