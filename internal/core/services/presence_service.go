package services

import (
	"context"
	"sync"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"

	"go.uber.org/zap"
)

type connectionState int

const (
	stateConnecting connectionState = iota
	stateJoined
	stateLeft
)

// fallbackDisplayName labels a connection whose profile has not resolved yet.
const fallbackDisplayName = "User"

type presenceConnection struct {
	id     domain.ConnectionID
	userID domain.UserID
	state  connectionState
	record domain.PresenceRecord
	settle *time.Timer
}

type presenceRoom struct {
	documentID  domain.DocumentID
	connections map[domain.ConnectionID]*presenceConnection
	subscribers map[domain.ConnectionID]chan []domain.PresenceRecord
}

// presenceService keeps one ephemeral room per document. Each connection
// runs a small state machine: it is registered immediately but counts as
// joined only after the settle delay, which absorbs the editor's mount
// churn right after page load. Nothing here ever touches durable storage.
type presenceService struct {
	mu             sync.Mutex
	rooms          map[domain.DocumentID]*presenceRoom
	directory      ports.DirectoryService
	settleDelay    time.Duration
	snapshotBuffer int
	logger         *zap.SugaredLogger
}

func NewPresenceService(directory ports.DirectoryService, settleDelay time.Duration, snapshotBuffer int, logger *zap.SugaredLogger) ports.PresenceService {
	if snapshotBuffer <= 0 {
		snapshotBuffer = 16
	}
	return &presenceService{
		rooms:          make(map[domain.DocumentID]*presenceRoom),
		directory:      directory,
		settleDelay:    settleDelay,
		snapshotBuffer: snapshotBuffer,
		logger:         logger,
	}
}

func (s *presenceService) Join(ctx context.Context, documentID domain.DocumentID, connectionID domain.ConnectionID, userID domain.UserID) (<-chan []domain.PresenceRecord, error) {
	s.mu.Lock()

	room, ok := s.rooms[documentID]
	if !ok {
		room = &presenceRoom{
			documentID:  documentID,
			connections: make(map[domain.ConnectionID]*presenceConnection),
			subscribers: make(map[domain.ConnectionID]chan []domain.PresenceRecord),
		}
		s.rooms[documentID] = room
	}

	// A reconnect with the same connection id replaces the old state.
	if old, exists := room.connections[connectionID]; exists && old.settle != nil {
		old.settle.Stop()
	}

	conn := &presenceConnection{
		id:     connectionID,
		userID: userID,
		state:  stateConnecting,
		record: domain.PresenceRecord{
			ConnectionID: connectionID,
			Cursor:       nil,
			IsEditing:    false,
			UserInfo: domain.UserInfo{
				UserID: userID,
				Name:   fallbackDisplayName,
				Color:  domain.ColorFor(userID),
			},
		},
	}
	room.connections[connectionID] = conn

	stream := make(chan []domain.PresenceRecord, s.snapshotBuffer)
	room.subscribers[connectionID] = stream

	// The settle timer is the only path from Connecting to Joined.
	conn.settle = time.AfterFunc(s.settleDelay, func() {
		s.completeJoin(documentID, connectionID)
	})

	s.mu.Unlock()

	// Profile resolution must not delay the join; the fallback label is
	// shown until it lands.
	go s.attachProfile(documentID, connectionID, userID)

	go func() {
		<-ctx.Done()
		s.Leave(documentID, connectionID)
	}()

	s.logger.Infow("connection entered room",
		"document_id", documentID,
		"connection_id", connectionID,
		"user_id", userID,
	)

	return stream, nil
}

func (s *presenceService) completeJoin(documentID domain.DocumentID, connectionID domain.ConnectionID) {
	s.mu.Lock()

	room, conn := s.lookup(documentID, connectionID)
	if conn == nil || conn.state != stateConnecting {
		s.mu.Unlock()
		return
	}

	conn.state = stateJoined
	conn.record.IsEditing = true
	conn.record.Cursor = nil

	s.broadcastLocked(room)
	s.mu.Unlock()

	s.logger.Debugw("connection joined",
		"document_id", documentID,
		"connection_id", connectionID,
	)
}

func (s *presenceService) attachProfile(documentID domain.DocumentID, connectionID domain.ConnectionID, userID domain.UserID) {
	if userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	profiles := s.directory.ResolveProfiles(ctx, []domain.UserID{userID})
	if len(profiles) == 0 {
		return
	}
	profile := profiles[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	room, conn := s.lookup(documentID, connectionID)
	if conn == nil || conn.state == stateLeft {
		return
	}

	conn.record.UserInfo.Name = profile.Name
	conn.record.UserInfo.Email = profile.Email
	conn.record.UserInfo.Avatar = profile.Avatar

	if conn.state == stateJoined {
		s.broadcastLocked(room)
	}
}

func (s *presenceService) UpdateCursor(documentID domain.DocumentID, connectionID domain.ConnectionID, cursor *domain.Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, conn := s.lookup(documentID, connectionID)
	// Cursor events arriving before the settle delay elapsed are editor
	// mount noise, not user activity; drop them.
	if conn == nil || conn.state != stateJoined {
		return
	}

	conn.record.Cursor = cursor
	s.broadcastLocked(room)
}

func (s *presenceService) SetEditing(documentID domain.DocumentID, connectionID domain.ConnectionID, isEditing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, conn := s.lookup(documentID, connectionID)
	if conn == nil || conn.state != stateJoined {
		return
	}

	conn.record.IsEditing = isEditing
	s.broadcastLocked(room)
}

// Leave is idempotent: the explicit leave message and the transport close
// both land here, and only the first one runs the teardown.
func (s *presenceService) Leave(documentID domain.DocumentID, connectionID domain.ConnectionID) {
	s.mu.Lock()

	room, conn := s.lookup(documentID, connectionID)
	if conn == nil || conn.state == stateLeft {
		s.mu.Unlock()
		return
	}

	if conn.settle != nil {
		conn.settle.Stop()
	}

	wasJoined := conn.state == stateJoined
	conn.state = stateLeft

	// Final update so peers do not keep a stale "still editing" marker,
	// then the record is removed for good.
	if wasJoined {
		conn.record.IsEditing = false
		conn.record.Cursor = nil
		s.broadcastLocked(room)
	}

	delete(room.connections, connectionID)
	if stream, ok := room.subscribers[connectionID]; ok {
		delete(room.subscribers, connectionID)
		close(stream)
	}

	if len(room.connections) == 0 && len(room.subscribers) == 0 {
		delete(s.rooms, documentID)
	} else if wasJoined {
		s.broadcastLocked(room)
	}

	s.mu.Unlock()

	s.logger.Infow("connection left room",
		"document_id", documentID,
		"connection_id", connectionID,
	)
}

func (s *presenceService) Snapshot(documentID domain.DocumentID) []domain.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[documentID]
	if !ok {
		return nil
	}
	return room.snapshotLocked()
}

func (s *presenceService) Refresh(documentID domain.DocumentID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[documentID]
	if !ok {
		return
	}
	s.broadcastLocked(room)
}

func (s *presenceService) lookup(documentID domain.DocumentID, connectionID domain.ConnectionID) (*presenceRoom, *presenceConnection) {
	room, ok := s.rooms[documentID]
	if !ok {
		return nil, nil
	}
	return room, room.connections[connectionID]
}

// snapshotLocked copies the records of every joined connection, including
// just-left connections whose final update is still in the map.
func (r *presenceRoom) snapshotLocked() []domain.PresenceRecord {
	records := make([]domain.PresenceRecord, 0, len(r.connections))
	for _, conn := range r.connections {
		if conn.state == stateConnecting {
			continue
		}
		record := conn.record
		if record.Cursor != nil {
			cursor := *record.Cursor
			record.Cursor = &cursor
		}
		records = append(records, record)
	}
	return records
}

// broadcastLocked fans the current snapshot out to every subscriber without
// blocking: a full channel drops the intermediate snapshot, the next one
// catches the consumer up.
func (s *presenceService) broadcastLocked(room *presenceRoom) {
	snapshot := room.snapshotLocked()
	for _, stream := range room.subscribers {
		select {
		case stream <- snapshot:
		default:
		}
	}
}
