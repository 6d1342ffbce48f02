package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCooldownBlocksUntilElapsed(t *testing.T) {
	c := FromDuration(time.Minute)
	base := time.Now()

	require.True(t, c.Poll(base))
	require.False(t, c.Poll(base.Add(30*time.Second)))
	require.True(t, c.Poll(base.Add(time.Minute)))
}

func TestCooldownZeroDurationNeverBlocks(t *testing.T) {
	c := FromDuration(0)
	now := time.Now()
	require.True(t, c.Poll(now))
	require.True(t, c.Poll(now))
}

func TestCooldownRemaining(t *testing.T) {
	c := FromDuration(time.Minute)
	base := time.Now()
	require.True(t, c.Poll(base))
	require.Equal(t, 40*time.Second, c.Remaining(base.Add(20*time.Second)))
	require.Equal(t, time.Duration(0), c.Remaining(base.Add(time.Minute)))
}
