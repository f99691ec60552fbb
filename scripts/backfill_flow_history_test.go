package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/pkg/errors"
)

func TestSessionCloses(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC) }
	closeAt := func(d int) time.Time { return time.Date(2024, time.March, d, 21, 0, 0, 0, time.UTC) }

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  []time.Time
	}{
		{"single weekday", day(1), day(1), []time.Time{closeAt(1)}},
		{"single saturday", day(2), day(2), nil},
		{"weekend skipped", day(1), day(5), []time.Time{closeAt(1), closeAt(4), closeAt(5)}},
		{"sunday to sunday", day(3), day(10), []time.Time{closeAt(4), closeAt(5), closeAt(6), closeAt(7), closeAt(8)}},
		{"end before start", day(5), day(4), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sessionCloses(tt.start, tt.end))
		})
	}
}

func TestParseRange(t *testing.T) {
	start, end, err := parseRange("2024-03-01", "")
	require.NoError(t, err)
	assert.Equal(t, start, end)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), start)

	start, end, err = parseRange("2024-03-01", "2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, end.Sub(start))

	tests := []struct {
		name       string
		start, end string
	}{
		{"missing start", "", ""},
		{"bad start", "03/01/2024", ""},
		{"bad end", "2024-03-01", "2024-13-01"},
		{"end before start", "2024-03-15", "2024-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseRange(tt.start, tt.end)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		})
	}
}
