package repositories

import (
	"context"

	"quillroom/internal/core/ports"
	"quillroom/internal/infrastructure/repositories/memory"
	redisrepo "quillroom/internal/infrastructure/repositories/redis"
	"quillroom/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateDocumentRepository creates a document repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateDocumentRepository() ports.DocumentRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisDocumentRepository(f.redisClient)
	}
	return memory.NewMemoryDocumentRepository()
}

// CreateMembershipRepository creates a membership repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateMembershipRepository() ports.MembershipRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisMembershipRepository(f.redisClient)
	}
	return memory.NewMemoryMembershipRepository()
}

// RedisClient exposes the shared client for infrastructure that needs raw
// Redis access (pub/sub, locks). Nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
