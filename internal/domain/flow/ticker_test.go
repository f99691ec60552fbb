package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/pkg/errors"
)

func TestNormalizeTicker(t *testing.T) {
	got, err := NormalizeTicker("  brk.b ")
	require.NoError(t, err)
	assert.Equal(t, "BRK.B", got)

	for _, bad := range []string{"", "   ", "VERYLONGTICK", "AA PL", "$SPY"} {
		_, err := NormalizeTicker(bad)
		assert.True(t, errors.Is(err, errors.ErrInvalidTicker), "input %q", bad)
	}
}

func TestNormalizeTickers(t *testing.T) {
	tickers, rejected := NormalizeTickers([]string{"aapl", "TSLA", " AAPL", "", "spy"})

	assert.Equal(t, []string{"AAPL", "TSLA", "SPY"}, tickers)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected, "")
}
