package errors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_PreservesSentinel(t *testing.T) {
	err := Wrapf(ErrMalformedRecord, "record %d", 3)

	assert.True(t, Is(err, ErrMalformedRecord))
	assert.Contains(t, err.Error(), "record 3")
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestJoin_MatchesBothKinds(t *testing.T) {
	err := Join(ErrFetchFailure, Wrap(ErrTimeout, "GET /api/stock/AAPL/options-flow"))

	assert.True(t, Is(err, ErrFetchFailure))
	assert.True(t, Is(err, ErrTimeout))
	assert.False(t, Is(err, ErrRateLimitExceeded))
	assert.Nil(t, Join(ErrFetchFailure, nil))
}

func TestValidationError_Unwrap(t *testing.T) {
	verr := NewValidationError("gamma_threshold", "must be positive", -1.0)
	verr.Err = ErrInvalidThreshold

	assert.True(t, Is(verr, ErrInvalidThreshold))
	assert.Contains(t, verr.Error(), "gamma_threshold")
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.NoError(t, m.ToError())

	m.Add(nil)
	m.Add(ErrInvalidThreshold)
	m.Add(context.DeadlineExceeded)

	err := m.ToError()
	assert.Error(t, err)
	assert.True(t, Is(err, ErrInvalidThreshold))
	assert.True(t, Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "multiple errors (2)")
}

func TestTickerContext(t *testing.T) {
	_, ok := TickerFromContext(context.Background())
	assert.False(t, ok)

	ticker, ok := TickerFromContext(WithTicker(context.Background(), "AAPL"))
	assert.True(t, ok)
	assert.Equal(t, "AAPL", ticker)
}
