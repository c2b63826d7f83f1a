package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/pkg/distributed"

	"github.com/redis/go-redis/v9"
)

type RedisMembershipRepository struct {
	client *redis.Client
	locks  *distributed.LockManager
}

func NewRedisMembershipRepository(client *redis.Client) ports.MembershipRepository {
	return &RedisMembershipRepository{
		client: client,
		locks:  distributed.NewLockManager(client, "quillroom:lock:"),
	}
}

func (r *RedisMembershipRepository) membershipKey(documentID domain.DocumentID, userID domain.UserID) string {
	return fmt.Sprintf("quillroom:membership:%s:%s", documentID, userID)
}

func (r *RedisMembershipRepository) memberIndexKey(documentID domain.DocumentID) string {
	return fmt.Sprintf("quillroom:document:%s:members", documentID)
}

func (r *RedisMembershipRepository) Upsert(ctx context.Context, membership *domain.Membership) (domain.MembershipID, error) {
	key := r.membershipKey(membership.DocumentID, membership.UserID)

	// The read-then-write below must not interleave with another instance
	// upserting the same row, or the preserved id could diverge.
	lock := r.locks.AcquireLock(fmt.Sprintf("membership:%s:%s", membership.DocumentID, membership.UserID), 5*time.Second)
	if err := lock.LockWithTimeout(ctx, 2*time.Second); err != nil {
		return "", fmt.Errorf("failed to lock membership row: %w", err)
	}
	defer lock.Unlock(ctx)

	row := *membership

	// Re-inviting an existing member overwrites role and email in place;
	// the row identity and grant time stay.
	data, err := r.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("failed to get membership from Redis: %w", err)
	}
	if err == nil {
		var existing domain.Membership
		if err := json.Unmarshal([]byte(data), &existing); err != nil {
			return "", fmt.Errorf("failed to unmarshal membership: %w", err)
		}
		row.ID = existing.ID
		row.GrantedAt = existing.GrantedAt
	}

	encoded, err := json.Marshal(&row)
	if err != nil {
		return "", fmt.Errorf("failed to marshal membership: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, encoded, 0)
	pipe.SAdd(ctx, r.memberIndexKey(membership.DocumentID), string(membership.UserID))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store membership in Redis: %w", err)
	}

	return row.ID, nil
}

func (r *RedisMembershipRepository) PatchRole(ctx context.Context, documentID domain.DocumentID, userID domain.UserID, role domain.Role) error {
	key := r.membershipKey(documentID, userID)

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return domain.ErrMembershipNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get membership from Redis: %w", err)
	}

	var membership domain.Membership
	if err := json.Unmarshal([]byte(data), &membership); err != nil {
		return fmt.Errorf("failed to unmarshal membership: %w", err)
	}

	membership.Role = role

	encoded, err := json.Marshal(&membership)
	if err != nil {
		return fmt.Errorf("failed to marshal membership: %w", err)
	}

	if err := r.client.Set(ctx, key, encoded, 0).Err(); err != nil {
		return fmt.Errorf("failed to store membership in Redis: %w", err)
	}

	return nil
}

func (r *RedisMembershipRepository) Delete(ctx context.Context, documentID domain.DocumentID, userID domain.UserID) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.membershipKey(documentID, userID))
	pipe.SRem(ctx, r.memberIndexKey(documentID), string(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete membership from Redis: %w", err)
	}

	return nil
}

func (r *RedisMembershipRepository) GetByUserAndDocument(ctx context.Context, userID domain.UserID, documentID domain.DocumentID) (*domain.Membership, error) {
	data, err := r.client.Get(ctx, r.membershipKey(documentID, userID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership from Redis: %w", err)
	}

	var membership domain.Membership
	if err := json.Unmarshal([]byte(data), &membership); err != nil {
		return nil, fmt.Errorf("failed to unmarshal membership: %w", err)
	}

	return &membership, nil
}

func (r *RedisMembershipRepository) ListByDocument(ctx context.Context, documentID domain.DocumentID) ([]*domain.Membership, error) {
	userIDs, err := r.client.SMembers(ctx, r.memberIndexKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members from Redis: %w", err)
	}

	var members []*domain.Membership
	for _, userID := range userIDs {
		membership, err := r.GetByUserAndDocument(ctx, domain.UserID(userID), documentID)
		if err == domain.ErrMembershipNotFound {
			// Index entry outlived its row; heal the set.
			r.client.SRem(ctx, r.memberIndexKey(documentID), userID)
			continue
		}
		if err != nil {
			return nil, err
		}
		members = append(members, membership)
	}

	return members, nil
}
