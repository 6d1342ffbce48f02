package durationx

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDurationMarshalRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	require.JSONEq(t, `"1m30s"`, string(raw))

	var decoded Duration
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, d, decoded)
}

func TestDurationUnmarshalAcceptsBareNumber(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`5000000000`), &d))
	require.Equal(t, 5*time.Second, d.Std())
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	var d Duration
	require.Error(t, json.Unmarshal([]byte(`"not-a-duration"`), &d))
}
