package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowIsUTC(t *testing.T) {
	got := Now()

	assert.Equal(t, time.UTC, got.Location())
	assert.WithinDuration(t, time.Now().UTC(), got, 10*time.Millisecond)
}

func TestUnixToTime(t *testing.T) {
	tests := []struct {
		name      string
		timestamp int64
		expected  time.Time
	}{
		{"seconds", 1700000000, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)},
		{"zero", 0, time.Time{}},
		{"negative", -5, time.Time{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, UnixToTime(tc.timestamp))
		})
	}
}

func TestUnixToTimeWithMilliseconds(t *testing.T) {
	tests := []struct {
		name      string
		timestamp int64
		expected  time.Time
	}{
		{"whole seconds", 1700000000000, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)},
		{"sub-second part kept", 1700000000500, time.Date(2023, 11, 14, 22, 13, 20, 500000000, time.UTC)},
		{"zero", 0, time.Time{}},
		{"negative", -1, time.Time{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, UnixToTimeWithMilliseconds(tc.timestamp))
		})
	}
}

func TestFormatISO8601(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)

	assert.Equal(t, "2023-11-14T22:13:20Z",
		FormatISO8601(time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)))
	// Non-UTC input is converted, sub-second precision is dropped.
	assert.Equal(t, "2023-11-15T03:13:20Z",
		FormatISO8601(time.Date(2023, 11, 14, 22, 13, 20, 123000000, est)))
}
