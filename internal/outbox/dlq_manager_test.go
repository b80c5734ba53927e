package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	m := NewDLQManager(nil, 5, time.Minute)

	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 2*time.Minute, m.backoffDelay(2))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, 16*time.Minute, m.backoffDelay(5))
}

func TestBackoffDelayCapsAtOneHour(t *testing.T) {
	m := NewDLQManager(nil, 20, time.Minute)

	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(15))
}

func TestNewDLQManagerDefaults(t *testing.T) {
	m := NewDLQManager(nil, 0, 0)

	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.baseDelay)
}
