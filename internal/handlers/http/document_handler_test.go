package http

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFetchDocument(t *testing.T) {
	f := newAPIFixture(t)
	ownerToken := f.token(t, "user_owner")

	w := f.do(http.MethodPost, "/api/v1/documents", ownerToken, gin.H{"title": "Roadmap"})
	require.Equal(t, http.StatusCreated, w.Code)

	created := decodeBody(t, w)["document"].(map[string]interface{})
	documentID := created["ID"].(string)
	require.NotEmpty(t, documentID)
	assert.Equal(t, "user_owner", created["OwnerID"])
	assert.Equal(t, "Roadmap", created["Title"])

	w = f.do(http.MethodGet, "/api/v1/documents/"+documentID, ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner", decodeBody(t, w)["role"])
}

func TestDocumentHiddenFromStrangers(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	// No access and no document answer identically.
	w := f.do(http.MethodGet, "/api/v1/documents/doc_1", f.token(t, "user_stranger"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/documents/doc_missing", f.token(t, "user_stranger"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentVisibleToMembers(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	w := f.do(http.MethodPost, "/api/v1/documents/doc_1/members", f.token(t, "user_owner"), gin.H{
		"user_id": "user_viewer",
		"role":    "viewer",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodGet, "/api/v1/documents/doc_1", f.token(t, "user_viewer"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer", decodeBody(t, w)["role"])
}

func TestDeleteDocumentIsOwnerOnly(t *testing.T) {
	f := newAPIFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	w := f.do(http.MethodPost, "/api/v1/documents/doc_1/members", f.token(t, "user_owner"), gin.H{
		"user_id": "user_editor",
		"role":    "editor",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Editors can change content, not the document's existence.
	w = f.do(http.MethodDelete, "/api/v1/documents/doc_1", f.token(t, "user_editor"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodDelete, "/api/v1/documents/doc_1", f.token(t, "user_owner"), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/api/v1/documents/doc_1", f.token(t, "user_owner"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
