package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisDocumentRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisDocumentRepository(client *redis.Client) ports.DocumentRepository {
	return &RedisDocumentRepository{
		client: client,
		prefix: "quillroom:document:",
	}
}

func (r *RedisDocumentRepository) documentKey(id domain.DocumentID) string {
	return r.prefix + string(id)
}

func (r *RedisDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.documentKey(doc.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set document in Redis: %w", err)
	}
	if !ok {
		return fmt.Errorf("document already exists: %s", doc.ID)
	}

	return nil
}

func (r *RedisDocumentRepository) GetByID(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	data, err := r.client.Get(ctx, r.documentKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document from Redis: %w", err)
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return &doc, nil
}

func (r *RedisDocumentRepository) Delete(ctx context.Context, id domain.DocumentID) error {
	deleted, err := r.client.Del(ctx, r.documentKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete document from Redis: %w", err)
	}
	if deleted == 0 {
		return domain.ErrDocumentNotFound
	}

	return nil
}
