package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quillroom/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventMembershipGranted EventType = "membership.granted"
	EventMembershipRevoked EventType = "membership.revoked"
	EventRoleChanged       EventType = "membership.role_changed"
	EventDocumentDeleted   EventType = "document.deleted"
)

// Event is a cross-instance notification. Presence servers subscribe so a
// revoked or downgraded member sees the new projection immediately instead
// of waiting for the next cursor move in the room.
type Event struct {
	Type       EventType         `json:"type"`
	InstanceID string            `json:"instance_id"`
	Timestamp  time.Time         `json:"timestamp"`
	DocumentID domain.DocumentID `json:"document_id,omitempty"`
	UserID     domain.UserID     `json:"user_id,omitempty"`
	Role       domain.Role       `json:"role,omitempty"`
}

// EventBus provides event publishing and subscription for coordination
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
	channels   []string
}

// NewEventBus creates a new event bus
func NewEventBus(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channels:   []string{"quillroom:events"},
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := eb.channels[0]
	if err := eb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"document_id", event.DocumentID,
		"user_id", event.UserID,
	)

	return nil
}

// Subscribe subscribes to events and calls handler for each event. Events
// published by this instance are delivered too: the instance that performs
// a membership mutation still needs to refresh its own rooms.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channels...)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// PublishMembershipGranted publishes a membership granted event
func (eb *EventBus) PublishMembershipGranted(ctx context.Context, documentID domain.DocumentID, userID domain.UserID, role domain.Role) error {
	return eb.Publish(ctx, &Event{
		Type:       EventMembershipGranted,
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
	})
}

// PublishMembershipRevoked publishes a membership revoked event
func (eb *EventBus) PublishMembershipRevoked(ctx context.Context, documentID domain.DocumentID, userID domain.UserID) error {
	return eb.Publish(ctx, &Event{
		Type:       EventMembershipRevoked,
		DocumentID: documentID,
		UserID:     userID,
	})
}

// PublishRoleChanged publishes a role changed event
func (eb *EventBus) PublishRoleChanged(ctx context.Context, documentID domain.DocumentID, userID domain.UserID, role domain.Role) error {
	return eb.Publish(ctx, &Event{
		Type:       EventRoleChanged,
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
	})
}

// PublishDocumentDeleted publishes a document deleted event
func (eb *EventBus) PublishDocumentDeleted(ctx context.Context, documentID domain.DocumentID) error {
	return eb.Publish(ctx, &Event{
		Type:       EventDocumentDeleted,
		DocumentID: documentID,
	})
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
