package retry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/pkg/errors"
)

type statusErr int

func (e statusErr) Error() string   { return http.StatusText(int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Strategy:     StrategyExponential,
		Multiplier:   1.5,
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	m := New(fastConfig(3))
	attempts := 0

	got, err := Do(context.Background(), m, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", statusErr(http.StatusBadGateway)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnFinalError(t *testing.T) {
	m := New(fastConfig(3))
	attempts := 0

	err := m.Do(context.Background(), func() error {
		attempts++
		return errors.Wrap(errors.ErrUnauthorized, "401")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	m := New(fastConfig(2))
	attempts := 0

	err := m.Do(context.Background(), func() error {
		attempts++
		return errors.Wrap(errors.ErrRateLimitExceeded, "429")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
	assert.True(t, errors.Is(err, errors.ErrRateLimitExceeded))
}

func TestDo_ContextEndsBackoff(t *testing.T) {
	cfg := fastConfig(5)
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second
	m := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.Do(ctx, func() error { return errors.ErrTimeout })

	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, errors.Is(err, errors.ErrTimeout))
}

func TestDelay(t *testing.T) {
	m := New(Config{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.5})

	assert.Equal(t, 100*time.Millisecond, m.delay(0))
	assert.Equal(t, 150*time.Millisecond, m.delay(1))
	assert.Equal(t, 225*time.Millisecond, m.delay(2))
	assert.Equal(t, time.Second, m.delay(10))

	linear := New(Config{InitialDelay: 10 * time.Millisecond, Strategy: StrategyLinear})
	assert.Equal(t, 30*time.Millisecond, linear.delay(2))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(statusErr(http.StatusTooManyRequests)))
	assert.True(t, IsRetryable(statusErr(http.StatusServiceUnavailable)))
	assert.False(t, IsRetryable(statusErr(http.StatusNotFound)))
	assert.True(t, IsRetryable(errors.Wrap(errors.ErrTimeout, "x")))
	assert.False(t, IsRetryable(errors.Wrap(errors.ErrInvalidResponse, "bad json")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

func TestConnect_RetriesAnyDialError(t *testing.T) {
	m := Connect()
	assert.Equal(t, 4, m.config.MaxRetries)
	assert.Equal(t, time.Second, m.delay(0))
	assert.Equal(t, 3*time.Second, m.delay(2))
	assert.True(t, m.config.Retryable(errors.New("dial tcp: connection refused")))
	assert.False(t, m.config.Retryable(context.Canceled))
}
