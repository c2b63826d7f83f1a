package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/ports"
	"quillroom/pkg/retry"
	"quillroom/pkg/tracing"

	"go.uber.org/zap"
)

// Client talks to the external identity directory over its REST API.
// Construction fails when no secret key is configured: every operation
// that depends on the directory is considered misconfigured without one.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	retryCfg   retry.Config
	logger     *zap.SugaredLogger
}

type ClientOptions struct {
	BaseURL        string
	SecretKey      string
	RequestTimeout time.Duration
	RetryAttempts  int
}

func NewClient(opts ClientOptions, logger *zap.SugaredLogger) (ports.DirectoryClient, error) {
	if opts.SecretKey == "" {
		return nil, fmt.Errorf("directory secret key is missing: %w", domain.ErrMisconfigured)
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("directory base URL is missing: %w", domain.ErrMisconfigured)
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	retryCfg := retry.DefaultConfig()
	if opts.RetryAttempts > 0 {
		retryCfg.MaxAttempts = opts.RetryAttempts
	}
	// A definitive "no such user" answer never gets better on retry.
	retryCfg.NonRetryableErrors = []error{domain.ErrUserNotFound, domain.ErrProfileUnavailable}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		secretKey:  opts.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retryCfg,
		logger:     logger,
	}, nil
}

// directoryUser mirrors the provider's user payload. Only the fields the
// presence and membership surfaces need are decoded.
type directoryUser struct {
	ID                    string `json:"id"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	ImageURL              string `json:"image_url"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	EmailAddresses        []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

func (u *directoryUser) displayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	return name
}

func (u *directoryUser) primaryEmail() string {
	for _, addr := range u.EmailAddresses {
		if addr.ID == u.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

func (u *directoryUser) toProfile() *domain.Profile {
	return &domain.Profile{
		ID:     domain.UserID(u.ID),
		Name:   u.displayName(),
		Email:  u.primaryEmail(),
		Avatar: u.ImageURL,
	}
}

// FetchProfile resolves one user id to a display profile.
func (c *Client) FetchProfile(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	ctx, span := tracing.TraceDirectoryLookup(ctx, "fetch_profile")
	defer span.End()

	var user directoryUser

	err := retry.Retry(ctx, c.retryCfg, func() error {
		status, body, err := c.get(ctx, "/v1/users/"+url.PathEscape(string(id)))
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			return fmt.Errorf("user %s: %w", id, domain.ErrProfileUnavailable)
		}
		if status != http.StatusOK {
			return fmt.Errorf("directory returned status %d", status)
		}
		return json.Unmarshal(body, &user)
	})
	if err != nil {
		return nil, err
	}

	return user.toProfile(), nil
}

// FindUserByEmail resolves an email address to the directory user that
// owns it. Returns domain.ErrUserNotFound when no account matches.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	ctx, span := tracing.TraceDirectoryLookup(ctx, "find_by_email")
	defer span.End()

	var users []directoryUser

	err := retry.Retry(ctx, c.retryCfg, func() error {
		status, body, err := c.get(ctx, "/v1/users?email_address="+url.QueryEscape(email))
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("directory returned status %d", status)
		}
		return json.Unmarshal(body, &users)
	})
	if err != nil {
		return nil, err
	}

	if len(users) == 0 {
		return nil, domain.ErrUserNotFound
	}

	return users[0].toProfile(), nil
}

func (c *Client) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read directory response: %w", err)
	}

	return resp.StatusCode, body, nil
}
