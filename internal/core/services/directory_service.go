package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/pkg/cache"

	"go.uber.org/zap"
)

// directoryService bridges to the external identity provider. Per-id
// lookup failures never escape this service: the caller always gets a
// profile per requested id, placeholder or real. Only a missing provider
// credential is fatal, and that is rejected at construction time.
type directoryService struct {
	client   ports.DirectoryClient
	profiles *cache.Cache
	logger   *zap.SugaredLogger
}

func NewDirectoryService(client ports.DirectoryClient, cacheTTL time.Duration, logger *zap.SugaredLogger) ports.DirectoryService {
	return &directoryService{
		client:   client,
		profiles: cache.New(cacheTTL),
		logger:   logger,
	}
}

func (s *directoryService) ResolveProfiles(ctx context.Context, ids []domain.UserID) []domain.Profile {
	results := make([]domain.Profile, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		if cached, ok := s.profiles.Get(string(id)); ok {
			results[i] = cached.(domain.Profile)
			continue
		}

		wg.Add(1)
		go func(i int, id domain.UserID) {
			defer wg.Done()
			results[i] = s.resolveOne(ctx, id)
		}(i, id)
	}
	wg.Wait()

	return results
}

func (s *directoryService) resolveOne(ctx context.Context, id domain.UserID) domain.Profile {
	profile, err := s.client.FetchProfile(ctx, id)
	if err != nil || profile == nil {
		// ProfileUnavailable is absorbed here, by contract. Peers render
		// the placeholder instead of the lookup error.
		s.logger.Warnw("profile lookup failed, substituting placeholder",
			"user_id", id,
			"error", err,
		)
		return domain.AnonymousProfile(id)
	}

	s.profiles.Set(string(id), *profile)
	return *profile
}

func (s *directoryService) ResolveIDByEmail(ctx context.Context, email string) (domain.UserID, error) {
	profile, err := s.client.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.ErrUserNotFound
		}
		return "", err
	}
	if profile == nil {
		return "", domain.ErrUserNotFound
	}

	// The provider enforces email uniqueness upstream; the first match is
	// deterministic.
	return profile.ID, nil
}
