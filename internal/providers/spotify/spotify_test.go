package spotify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPlayableInMarketNoRestriction(t *testing.T) {
	require.True(t, isPlayableInMarket(nil, "US"))
	require.True(t, isPlayableInMarket([]string{"US", "CA"}, ""))
}

func TestIsPlayableInMarketRestricted(t *testing.T) {
	require.True(t, isPlayableInMarket([]string{"US", "CA"}, "US"))
	require.False(t, isPlayableInMarket([]string{"US", "CA"}, "DE"))
}

func TestServiceIsSpotify(t *testing.T) {
	c := &Client{}
	require.Equal(t, "spotify", c.Service().String())
}
