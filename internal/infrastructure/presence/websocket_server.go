package presence

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/internal/core/services"
	"quillroom/internal/infrastructure/middleware"
	"quillroom/internal/infrastructure/monitoring"
	"quillroom/pkg/utils"
	"quillroom/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WebSocketServer is the presence transport. Each socket serves exactly one
// document room: the client joins with join_room, streams cursor and editing
// updates in, and receives privacy-projected room snapshots back.
type WebSocketServer struct {
	access    ports.AccessService
	presence  ports.PresenceService
	documents ports.DocumentRepository
	auth      services.AuthService
	limits    *middleware.WebSocketLimits
	metrics   *monitoring.PrometheusCollector

	upgrader websocket.Upgrader

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

type clientMessage struct {
	Type       string            `json:"type"`
	DocumentID domain.DocumentID `json:"document_id,omitempty"`
	Cursor     *domain.Cursor    `json:"cursor,omitempty"`
	IsEditing  bool              `json:"is_editing,omitempty"`
}

type presenceMessage struct {
	Type  string                  `json:"type"`
	Peers []domain.PresenceRecord `json:"peers"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	AllowedOrigins []string
}

func NewWebSocketServer(
	access ports.AccessService,
	presenceService ports.PresenceService,
	documents ports.DocumentRepository,
	auth services.AuthService,
	limits *middleware.WebSocketLimits,
	metrics *monitoring.PrometheusCollector,
	opts Options,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	pongTimeout := opts.PongTimeout
	if pongTimeout <= 0 {
		pongTimeout = 60 * time.Second
	}

	return &WebSocketServer{
		access:    access,
		presence:  presenceService,
		documents: documents,
		auth:      auth,
		limits:    limits,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		allowedSet[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowedSet[origin]
		return ok
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)

	release, ok := s.limits.AcquireConnection(ip)
	if !ok {
		http.Error(w, "connection limit exceeded", http.StatusTooManyRequests)
		return
	}
	defer release()

	userID, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err, "remote", ip)
		return
	}
	defer conn.Close()

	connectionID := domain.ConnectionID(utils.GenerateConnectionID())
	startedAt := time.Now()

	s.logger.Infow("presence socket connected",
		"connection_id", connectionID,
		"user_id", userID,
		"remote", ip,
	)

	if maxSize := s.limits.MaxMessageSize(); maxSize > 0 {
		conn.SetReadLimit(maxSize)
	}

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan clientMessage, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			messageChan <- msg
		}
	}()

	session := &socketSession{
		server:       s,
		conn:         conn,
		connectionID: connectionID,
		userID:       userID,
		msgLimiter:   s.limits.NewMessageLimiter(),
	}
	defer session.teardown()

	for {
		select {
		case msg := <-messageChan:
			if session.msgLimiter != nil && !session.msgLimiter.Allow() {
				// Cursor storms are dropped, not disconnected.
				continue
			}
			if err := session.handleMessage(r, msg); err != nil {
				s.logger.Infow("rejected presence message",
					"connection_id", connectionID,
					"type", msg.Type,
					"error", err,
				)
				session.sendError(err.Error())
			}

		case records, open := <-session.updatesOrNil():
			if !open {
				session.updates = nil
				continue
			}
			if err := session.deliverSnapshot(r, records); err != nil {
				s.logger.Infow("failed to deliver snapshot",
					"connection_id", connectionID,
					"error", err,
				)
				goto done
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				goto done
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("presence socket read error",
					"connection_id", connectionID,
					"error", err,
				)
			}
			goto done
		}
	}

done:
	s.logger.Infow("presence socket disconnected",
		"connection_id", connectionID,
		"user_id", userID,
		"duration", time.Since(startedAt),
	)
}

// socketSession is the per-connection state of the message loop. A session
// belongs to at most one room; join_room on a joined session is an error.
type socketSession struct {
	server       *WebSocketServer
	conn         *websocket.Conn
	connectionID domain.ConnectionID
	userID       domain.UserID
	msgLimiter   *rate.Limiter

	documentID domain.DocumentID
	ownerID    domain.UserID
	joinedAt   time.Time
	updates    <-chan []domain.PresenceRecord
}

func (s *socketSession) updatesOrNil() <-chan []domain.PresenceRecord {
	return s.updates
}

func (s *socketSession) handleMessage(r *http.Request, msg clientMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	s.server.metrics.RecordPresenceUpdate(msg.Type)

	switch msg.Type {
	case "join_room":
		return s.handleJoinRoom(r, msg)
	case "cursor":
		return s.handleCursor(msg)
	case "pointer_leave":
		return s.handlePointerLeave()
	case "editing":
		return s.handleEditing(msg)
	case "leave_room":
		return s.handleLeaveRoom()
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *socketSession) handleJoinRoom(r *http.Request, msg clientMessage) error {
	if s.documentID != "" {
		return fmt.Errorf("already joined room %s", s.documentID)
	}
	if err := validation.ValidateDocumentID(string(msg.DocumentID)); err != nil {
		return err
	}

	ctx := r.Context()

	role, err := s.server.access.ResolveRole(ctx, msg.DocumentID, s.userID)
	if err != nil {
		return fmt.Errorf("failed to resolve role: %w", err)
	}
	if role == domain.RoleNone {
		s.server.metrics.RecordAuthorizationDenied("join_room")
		return fmt.Errorf("access denied")
	}

	doc, err := s.server.documents.GetByID(ctx, msg.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}

	updates, err := s.server.presence.Join(ctx, msg.DocumentID, s.connectionID, s.userID)
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	s.documentID = msg.DocumentID
	s.ownerID = doc.OwnerID
	s.joinedAt = time.Now()
	s.updates = updates

	s.server.metrics.RecordConnectionOpened(msg.DocumentID)
	s.server.logger.Infow("joined presence room",
		"connection_id", s.connectionID,
		"document_id", msg.DocumentID,
		"user_id", s.userID,
		"role", role,
	)

	return nil
}

func (s *socketSession) handleCursor(msg clientMessage) error {
	if s.documentID == "" {
		return fmt.Errorf("not in a room")
	}
	if msg.Cursor == nil {
		return fmt.Errorf("cursor is required")
	}
	s.server.presence.UpdateCursor(s.documentID, s.connectionID, msg.Cursor)
	return nil
}

func (s *socketSession) handlePointerLeave() error {
	if s.documentID == "" {
		return fmt.Errorf("not in a room")
	}
	s.server.presence.UpdateCursor(s.documentID, s.connectionID, nil)
	return nil
}

func (s *socketSession) handleEditing(msg clientMessage) error {
	if s.documentID == "" {
		return fmt.Errorf("not in a room")
	}
	s.server.presence.SetEditing(s.documentID, s.connectionID, msg.IsEditing)
	return nil
}

func (s *socketSession) handleLeaveRoom() error {
	if s.documentID == "" {
		return fmt.Errorf("not in a room")
	}
	// The updates channel closes on Leave; the select loop clears it. The
	// session state resets so the socket can join another room.
	s.closeRoom()
	return nil
}

func (s *socketSession) closeRoom() {
	s.server.presence.Leave(s.documentID, s.connectionID)
	s.server.metrics.RecordConnectionClosed(s.documentID, time.Since(s.joinedAt))
	s.documentID = ""
	s.ownerID = ""
}

// deliverSnapshot projects a raw room snapshot for this viewer and writes
// it out. The viewer's role is re-resolved on every delivery so a revoked
// member stops seeing identities as soon as the next update flows.
func (s *socketSession) deliverSnapshot(r *http.Request, records []domain.PresenceRecord) error {
	start := time.Now()

	role, err := s.server.access.ResolveRole(r.Context(), s.documentID, s.userID)
	if err != nil {
		return fmt.Errorf("failed to resolve role: %w", err)
	}

	projected := domain.ProjectPresence(role, s.ownerID, records)

	s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
	if err := s.conn.WriteJSON(presenceMessage{Type: "presence", Peers: projected}); err != nil {
		return err
	}

	s.server.metrics.RecordBroadcastLatency(time.Since(start))
	return nil
}

func (s *socketSession) sendError(message string) {
	s.conn.SetWriteDeadline(time.Now().Add(s.server.writeTimeout))
	s.conn.WriteJSON(errorMessage{Type: "error", Message: message})
}

func (s *socketSession) teardown() {
	if s.documentID != "" {
		s.closeRoom()
	}
}

func (s *WebSocketServer) authenticate(r *http.Request) (domain.UserID, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}
	}
	if token == "" {
		return "", fmt.Errorf("authentication token required")
	}

	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	return claims.UserID, nil
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := net.ParseIP(xff); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
