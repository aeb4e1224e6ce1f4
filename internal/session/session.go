// Package session owns the authenticated connection state for a single live
// venue: token caching and refresh, request rate budgeting, and the retry
// policy for transient transport failures. Exactly one Manager exists per
// venue adapter; it is owned by the adapter and never shared globally.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/quantarc/quantarc/internal/logger"
	"github.com/quantarc/quantarc/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Credentials identifies the account at the venue. The secret is only ever
// handed to the TokenSource; it never appears in logs.
type Credentials struct {
	APIKey    string `yaml:"api_key" json:"api_key" validate:"required"`
	APISecret string `yaml:"api_secret" json:"api_secret" validate:"required"`
}

// Validate checks that both credential halves are present.
func (c *Credentials) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid credentials", err)
	}

	return nil
}

// Token is an issued session token with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenSource issues fresh session tokens. Live venues implement it against
// their auth endpoint; tests use fakes. Issue must classify its failures:
// ErrCodeAuthError for rejected credentials (never retried),
// ErrCodeTransientFailure for transport problems (retried).
type TokenSource interface {
	Issue(ctx context.Context) (Token, error)
}

// Config controls token refresh, rate limiting, and the retry policy.
type Config struct {
	// RefreshMargin refreshes the token this long before it expires, so
	// in-flight requests never race the expiry.
	RefreshMargin time.Duration `yaml:"refresh_margin" json:"refresh_margin" validate:"gte=0"`
	// MaxAttempts bounds the total tries per operation, first attempt included.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" validate:"required,gt=0"`
	// BaseDelay is the initial backoff delay between retries.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay" validate:"required,gt=0"`
	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay" validate:"required,gt=0"`
	// RateLimit is the sustained request budget in requests per second.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" validate:"required,gt=0"`
	// RateBurst is the burst allowance on top of the sustained rate.
	RateBurst int `yaml:"rate_burst" json:"rate_burst" validate:"required,gt=0"`
}

// DefaultConfig returns a conservative policy suitable for venue REST APIs.
func DefaultConfig() Config {
	return Config{
		RefreshMargin: 30 * time.Second,
		MaxAttempts:   5,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		RateLimit:     10,
		RateBurst:     20,
	}
}

// Validate checks the configuration, failing fast at construction time.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid session config", err)
	}

	if c.MaxDelay < c.BaseDelay {
		return errors.New(errors.ErrCodeInvalidConfiguration, "max delay must not be less than base delay")
	}

	return nil
}

// Manager is the session manager for one venue connection. All REST traffic
// of the owning adapter flows through Do, which enforces the rate budget and
// the retry policy; Token serves the cached session token and collapses
// concurrent refreshes into a single issuance.
type Manager struct {
	config  Config
	source  TokenSource
	limiter *rate.Limiter
	logger  *logger.Logger
	group   singleflight.Group
	now     func() time.Time

	mu    sync.RWMutex
	token Token
}

// NewManager creates a session manager with the given token source.
func NewManager(config Config, source TokenSource, log *logger.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if source == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "token source is required")
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Manager{
		config:  config,
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		logger:  log,
		now:     time.Now,
	}, nil
}

// Token returns the cached session token, refreshing it when it is absent,
// expired, or inside the refresh margin. Concurrent callers during a refresh
// share a single issuance. Auth failures are returned as ErrCodeAuthError
// without retrying; transport failures follow the Do retry policy.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token.Value, nil
	}

	result, err, _ := m.group.Do("refresh", func() (any, error) {
		// Another caller may have refreshed while this one waited.
		if token, ok := m.cached(); ok {
			return token, nil
		}

		var token Token

		err := m.Do(ctx, func(ctx context.Context) error {
			issued, err := m.source.Issue(ctx)
			if err != nil {
				return err
			}

			token = issued

			return nil
		})
		if err != nil {
			return Token{}, err
		}

		m.mu.Lock()
		m.token = token
		m.mu.Unlock()

		m.logger.Info("session token refreshed", zap.Time("expires_at", token.ExpiresAt))

		return token, nil
	})
	if err != nil {
		return "", err
	}

	return result.(Token).Value, nil
}

// Invalidate drops the cached token so the next Token call refreshes. Called
// by adapters when the venue rejects a request as unauthenticated.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = Token{}
	m.mu.Unlock()
}

// Do runs op under the session's rate budget and retry policy. Only errors
// with ErrCodeTransientFailure are retried, with exponential backoff and
// jitter, up to MaxAttempts; the final transient failure is wrapped in
// ErrCodeExhausted. All other errors are returned on the first occurrence.
// Context cancellation aborts immediately.
func (m *Manager) Do(ctx context.Context, op func(ctx context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(m.newBackOff(), uint64(m.config.MaxAttempts-1)),
		ctx,
	)

	attempt := 0

	err := backoff.Retry(func() error {
		if err := m.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		attempt++

		err := op(ctx)
		if err == nil {
			return nil
		}

		if !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}

		m.logger.Warn("retrying transient failure",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.config.MaxAttempts),
			zap.Error(err))

		return err
	}, policy)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.IsRetryable(err) {
		return errors.Wrapf(errors.ErrCodeExhausted, err, "gave up after %d attempts", attempt)
	}

	return err
}

func (m *Manager) newBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.config.BaseDelay
	policy.MaxInterval = m.config.MaxDelay
	policy.MaxElapsedTime = 0

	return policy
}

func (m *Manager) cached() (Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token.Value == "" {
		return Token{}, false
	}

	if !m.now().Add(m.config.RefreshMargin).Before(m.token.ExpiresAt) {
		return Token{}, false
	}

	return m.token, true
}
