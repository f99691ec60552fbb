package retry

import (
	"context"
	"math"
	"net"
	"net/http"
	"time"

	"optionsflow/pkg/errors"
)

// Strategy defines the retry strategy
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// Config contains retry configuration
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy
	Multiplier   float64              // For exponential backoff
	Retryable    func(err error) bool // Defaults to IsRetryable
}

// DefaultConfig returns 3 retries, exponential x1.5 from 500ms
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Strategy:     StrategyExponential,
		Multiplier:   1.5,
	}
}

// Connect is the policy for dialing data stores at startup: 5 linear
// attempts a second apart, retrying anything but cancellation
func Connect() *Middleware {
	return New(Config{
		MaxRetries:   4,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Strategy:     StrategyLinear,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	})
}

// Middleware retries failed calls with backoff
type Middleware struct {
	config Config
}

// New creates a new retry middleware. MaxRetries of 0 means a single attempt.
func New(config Config) *Middleware {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 1.5
	}
	if config.Strategy == "" {
		config.Strategy = StrategyExponential
	}
	if config.Retryable == nil {
		config.Retryable = IsRetryable
	}

	return &Middleware{config: config}
}

// Do executes fn with retry logic
func (m *Middleware) Do(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, m, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Do executes fn with the middleware's retry policy and returns its result
func Do[T any](ctx context.Context, m *Middleware, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !m.config.Retryable(err) {
			return zero, err
		}

		if attempt == m.config.MaxRetries {
			break
		}

		timer := time.NewTimer(m.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Wrap(lastErr, "retry abandoned: "+ctx.Err().Error())
		case <-timer.C:
		}
	}

	if m.config.MaxRetries == 0 {
		return zero, lastErr
	}
	return zero, errors.Wrapf(lastErr, "max retries (%d) exceeded", m.config.MaxRetries)
}

// delay calculates the backoff delay based on the strategy
func (m *Middleware) delay(attempt int) time.Duration {
	var d time.Duration

	switch m.config.Strategy {
	case StrategyExponential:
		d = time.Duration(float64(m.config.InitialDelay) * math.Pow(m.config.Multiplier, float64(attempt)))
	case StrategyLinear:
		d = m.config.InitialDelay * time.Duration(1+attempt)
	default:
		d = m.config.InitialDelay
	}

	if d > m.config.MaxDelay {
		d = m.config.MaxDelay
	}
	return d
}

// StatusError is implemented by errors carrying an HTTP status (0 when none)
type StatusError interface {
	StatusCode() int
}

// IsRetryable reports whether err is worth another attempt: timeouts,
// throttling, upstream 5xx and transient network failures. Auth failures,
// bad payloads and cancellations are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, errors.ErrUnauthorized) || errors.Is(err, errors.ErrInvalidResponse) {
		return false
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode() != 0 {
		code := statusErr.StatusCode()
		return code == http.StatusTooManyRequests ||
			code == http.StatusRequestTimeout ||
			code >= 500
	}

	if errors.Is(err, errors.ErrTimeout) ||
		errors.Is(err, errors.ErrRateLimitExceeded) ||
		errors.Is(err, errors.ErrUnavailable) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
