package reliability

import (
	"context"
	"errors"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// DirectoryClientWrapper puts a circuit breaker in front of the identity
// directory. The inner client already retries transient failures; the
// breaker is for sustained outages, where failing fast keeps room joins
// and member listings responsive on the anonymous fallback path.
type DirectoryClientWrapper struct {
	client  ports.DirectoryClient
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

type lookupResult struct {
	profile *domain.Profile
	err     error
}

func NewDirectoryClientWrapper(
	client ports.DirectoryClient,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *DirectoryClientWrapper {
	wrapper := &DirectoryClientWrapper{
		client:  client,
		breaker: circuitbreaker.New(cbConfig),
		logger:  logger,
	}

	wrapper.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("directory circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func (w *DirectoryClientWrapper) FetchProfile(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	return w.execute(ctx, func() (*domain.Profile, error) {
		return w.client.FetchProfile(ctx, id)
	})
}

func (w *DirectoryClientWrapper) FindUserByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	return w.execute(ctx, func() (*domain.Profile, error) {
		return w.client.FindUserByEmail(ctx, email)
	})
}

func (w *DirectoryClientWrapper) execute(ctx context.Context, lookup func() (*domain.Profile, error)) (*domain.Profile, error) {
	result, err := w.breaker.ExecuteWithResult(ctx, func() (interface{}, error) {
		profile, err := lookup()
		// A definitive "no such user" is a healthy answer from the
		// directory; only transport and server failures count against it.
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrProfileUnavailable) {
			return lookupResult{err: err}, nil
		}
		if err != nil {
			return nil, err
		}
		return lookupResult{profile: profile}, nil
	})
	if err != nil {
		return nil, err
	}

	res := result.(lookupResult)
	return res.profile, res.err
}

// Stats exposes breaker counters for diagnostics endpoints.
func (w *DirectoryClientWrapper) Stats() circuitbreaker.Stats {
	return w.breaker.GetStats()
}
