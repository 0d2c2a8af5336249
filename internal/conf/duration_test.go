package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var casesDuration = []struct {
	name string
	dec  Duration
	enc  string
}{
	{
		"zero",
		0,
		`"0s"`,
	},
	{
		"standard",
		Duration(13456 * time.Second),
		`"3h44m16s"`,
	},
	{
		"days",
		Duration(50 * 13456 * time.Second),
		`"7d18h53m20s"`,
	},
	{
		"days only",
		Duration(2 * 24 * time.Hour),
		`"2d"`,
	},
	{
		"negative days",
		Duration(-50 * 13456 * time.Second),
		`"-7d18h53m20s"`,
	},
}

func TestDurationUnmarshal(t *testing.T) {
	for _, ca := range casesDuration {
		t.Run(ca.name, func(t *testing.T) {
			var dec Duration
			err := json.Unmarshal([]byte(ca.enc), &dec)
			require.NoError(t, err)
			require.Equal(t, ca.dec, dec)
		})
	}
}

func TestDurationMarshal(t *testing.T) {
	for _, ca := range casesDuration {
		t.Run(ca.name, func(t *testing.T) {
			enc, err := json.Marshal(ca.dec)
			require.NoError(t, err)
			require.Equal(t, ca.enc, string(enc))
		})
	}
}

func TestDurationUnmarshalEnv(t *testing.T) {
	var d Duration
	err := d.UnmarshalEnv("", "1d12h")
	require.NoError(t, err)
	require.Equal(t, Duration(36*time.Hour), d)

	err = d.UnmarshalEnv("", "abc")
	require.Error(t, err)
}
