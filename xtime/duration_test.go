package xtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		exp    time.Duration
		expErr string
	}{
		{in: "90s", exp: 90 * time.Second},
		{in: "1h30m", exp: 90 * time.Minute},
		{in: "2d", exp: 48 * time.Hour},
		{in: "1w1d", exp: 8 * 24 * time.Hour},
		{in: "1.5h", exp: 90 * time.Minute},
		{in: "250ms", exp: 250 * time.Millisecond},
		{in: "30", exp: 30 * time.Second},
		{in: "", expErr: "invalid duration ''"},
		{in: "5 minutes", expErr: "invalid duration '5 minutes'"},
		{in: "1x", expErr: "invalid duration '1x'"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDuration(tt.in)
			if tt.expErr != "" {
				require.EqualError(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exp, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0s", FormatDuration(0, 0))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond, 0))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second, time.Second))
	assert.Equal(t, "2d3h", FormatDuration(51*time.Hour+20*time.Minute, time.Hour))
	assert.Equal(t, "1w", FormatDuration(7*24*time.Hour, 0))
	assert.Equal(t, "-5m", FormatDuration(-5*time.Minute, 0))
	assert.Equal(t, "2s", FormatDuration(1600*time.Millisecond, time.Second))

	for _, d := range []time.Duration{10 * time.Minute, 36 * time.Hour, 45 * time.Second} {
		got, err := ParseDuration(FormatDuration(d, 0))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestFormatAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "just now", FormatAge(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", FormatAge(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", FormatAge(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", FormatAge(now.Add(-50*time.Hour), now))
	assert.Equal(t, "3w ago", FormatAge(now.Add(-22*24*time.Hour), now))
}
