package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/internal/core/services"
	"quillroom/internal/infrastructure/middleware"
	"quillroom/internal/infrastructure/monitoring"
	"quillroom/internal/infrastructure/repositories/memory"
	"quillroom/pkg/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Prometheus collectors register against the global registry, so the
// package shares one instance across tests.
var testMetrics = monitoring.NewPrometheusCollector()

type testDirectory struct{}

func (d *testDirectory) ResolveProfiles(ctx context.Context, ids []domain.UserID) []domain.Profile {
	profiles := make([]domain.Profile, len(ids))
	for i, id := range ids {
		profiles[i] = domain.Profile{
			ID:    id,
			Name:  "Real " + string(id),
			Email: string(id) + "@example.com",
		}
	}
	return profiles
}

func (d *testDirectory) ResolveIDByEmail(ctx context.Context, email string) (domain.UserID, error) {
	return "", domain.ErrUserNotFound
}

type socketFixture struct {
	server    *httptest.Server
	auth      services.AuthService
	access    ports.AccessService
	documents ports.DocumentRepository
}

func newSocketFixture(t *testing.T) *socketFixture {
	t.Helper()

	log := zap.NewNop().Sugar()
	documents := memory.NewMemoryDocumentRepository()
	memberships := memory.NewMemoryMembershipRepository()
	directory := &testDirectory{}

	accessService := services.NewAccessService(documents, memberships, directory, log)
	authService := services.NewAuthService("test-secret", time.Hour, 24*time.Hour)
	presenceService := services.NewPresenceService(directory, 10*time.Millisecond, 32, log)

	cfg := config.DefaultConfig()
	limits := middleware.NewWebSocketLimits(cfg)

	wsServer := NewWebSocketServer(
		accessService,
		presenceService,
		documents,
		authService,
		limits,
		testMetrics,
		Options{PingInterval: time.Minute, PongTimeout: 2 * time.Minute},
		log,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.HandleWebSocket)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &socketFixture{
		server:    ts,
		auth:      authService,
		access:    accessService,
		documents: documents,
	}
}

func (f *socketFixture) seedDocument(t *testing.T, id domain.DocumentID, owner domain.UserID) {
	t.Helper()
	err := f.documents.Create(context.Background(), &domain.Document{
		ID:        id,
		OwnerID:   owner,
		Title:     "Seeded",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func (f *socketFixture) dial(t *testing.T, userID domain.UserID) *websocket.Conn {
	t.Helper()

	token, err := f.auth.GenerateToken(userID, string(userID)+"@example.com", "Test User")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type serverMessage struct {
	Type    string                  `json:"type"`
	Message string                  `json:"message"`
	Peers   []domain.PresenceRecord `json:"peers"`
}

// readUntil reads messages until match returns true, failing the test if the
// deadline passes first.
func readUntil(t *testing.T, conn *websocket.Conn, match func(serverMessage) bool) serverMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err, "connection closed before expected message")

		var msg serverMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		if match(msg) {
			return msg
		}
	}
}

func peerByUser(peers []domain.PresenceRecord, userID domain.UserID) *domain.PresenceRecord {
	for i := range peers {
		if peers[i].UserInfo.UserID == userID {
			return &peers[i]
		}
	}
	return nil
}

func TestHandshakeRequiresToken(t *testing.T) {
	f := newSocketFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinDeniedWithoutAccess(t *testing.T) {
	f := newSocketFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	conn := f.dial(t, "user_stranger")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":        "join_room",
		"document_id": "doc_1",
	}))

	msg := readUntil(t, conn, func(m serverMessage) bool { return m.Type == "error" })
	assert.Contains(t, msg.Message, "access denied")
}

func TestJoinAndCursorFlow(t *testing.T) {
	f := newSocketFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	conn := f.dial(t, "user_owner")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":        "join_room",
		"document_id": "doc_1",
	}))

	// The first snapshot arrives after the settle delay.
	msg := readUntil(t, conn, func(m serverMessage) bool {
		return m.Type == "presence" && peerByUser(m.Peers, "user_owner") != nil
	})
	self := peerByUser(msg.Peers, "user_owner")
	assert.True(t, self.IsEditing)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":   "cursor",
		"cursor": map[string]int{"x": 12, "y": 34},
	}))

	msg = readUntil(t, conn, func(m serverMessage) bool {
		self := peerByUser(m.Peers, "user_owner")
		return m.Type == "presence" && self != nil && self.Cursor != nil
	})
	self = peerByUser(msg.Peers, "user_owner")
	assert.Equal(t, &domain.Cursor{X: 12, Y: 34}, self.Cursor)
}

func TestCursorBeforeJoinIsRejected(t *testing.T) {
	f := newSocketFixture(t)

	conn := f.dial(t, "user_owner")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":   "cursor",
		"cursor": map[string]int{"x": 1, "y": 1},
	}))

	msg := readUntil(t, conn, func(m serverMessage) bool { return m.Type == "error" })
	assert.Contains(t, msg.Message, "not in a room")
}

func TestViewerSeesOwnerButAnonymizedPeers(t *testing.T) {
	f := newSocketFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	_, err := f.access.Invite(context.Background(), "user_owner", "doc_1", "user_viewer", "", domain.RoleViewer)
	require.NoError(t, err)

	ownerConn := f.dial(t, "user_owner")
	require.NoError(t, ownerConn.WriteJSON(map[string]string{
		"type":        "join_room",
		"document_id": "doc_1",
	}))
	readUntil(t, ownerConn, func(m serverMessage) bool { return m.Type == "presence" })

	viewerConn := f.dial(t, "user_viewer")
	require.NoError(t, viewerConn.WriteJSON(map[string]string{
		"type":        "join_room",
		"document_id": "doc_1",
	}))

	msg := readUntil(t, viewerConn, func(m serverMessage) bool {
		return m.Type == "presence" && len(m.Peers) == 2
	})

	// The owner stays identifiable for everyone in the room.
	owner := peerByUser(msg.Peers, "user_owner")
	require.NotNil(t, owner)
	assert.Equal(t, "Real user_owner", owner.UserInfo.Name)
	assert.NotEmpty(t, owner.UserInfo.Email)

	// Every other identity, the viewer's own included, is the placeholder.
	for i := range msg.Peers {
		if msg.Peers[i].UserInfo.UserID == "user_owner" {
			continue
		}
		assert.Equal(t, domain.AnonymousName, msg.Peers[i].UserInfo.Name)
		assert.Empty(t, msg.Peers[i].UserInfo.Email)
		assert.NotEmpty(t, msg.Peers[i].UserInfo.Color)
	}

	// The owner's view of the same room is fully identified.
	ownerMsg := readUntil(t, ownerConn, func(m serverMessage) bool {
		return m.Type == "presence" && len(m.Peers) == 2
	})
	viewer := peerByUser(ownerMsg.Peers, "user_viewer")
	require.NotNil(t, viewer)
	assert.Equal(t, "Real user_viewer", viewer.UserInfo.Name)
}

func TestLeaveRoomStopsSnapshots(t *testing.T) {
	f := newSocketFixture(t)
	f.seedDocument(t, "doc_1", "user_owner")

	conn := f.dial(t, "user_owner")
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":        "join_room",
		"document_id": "doc_1",
	}))
	readUntil(t, conn, func(m serverMessage) bool { return m.Type == "presence" })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "leave_room"}))

	// After leaving, a cursor update is rejected again.
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":   "cursor",
		"cursor": map[string]int{"x": 1, "y": 1},
	}))
	readUntil(t, conn, func(m serverMessage) bool { return m.Type == "error" })
}
