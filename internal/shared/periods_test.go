package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-03")
	require.NoError(t, err)
	require.Equal(t, Period("2024-03"), p)

	for _, bad := range []string{"2024-3", "2024/03", "202403", "2024-13", ""} {
		_, err := ParsePeriod(bad)
		require.ErrorIs(t, err, ErrInvalidPeriod, "input %q", bad)
	}
}

func TestPeriodBoundsAreHalfOpen(t *testing.T) {
	from, to, err := Period("2024-02").Bounds()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), to)

	p := Period("2024-02")
	require.True(t, p.Contains(from))
	require.True(t, p.Contains(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)))
	require.False(t, p.Contains(to))
}

func TestPeriodOf(t *testing.T) {
	require.Equal(t, Period("2024-12"), PeriodOf(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)))
}
