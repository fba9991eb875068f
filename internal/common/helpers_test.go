package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLamportsToSOL(t *testing.T) {
	cases := map[uint64]string{
		0:             "0.000000000",
		1:             "0.000000001",
		24981836:      "0.024981836",
		1_000_000_000: "1.000000000",
		1_500_000_000: "1.500000000",
	}
	for in, want := range cases {
		require.Equal(t, want, LamportsToSOL(in))
	}
}

func TestSOLToLamports(t *testing.T) {
	got, err := SOLToLamports("0.024981836")
	require.NoError(t, err)
	require.Equal(t, uint64(24981836), got)

	got, err = SOLToLamports("2")
	require.NoError(t, err)
	require.Equal(t, uint64(2_000_000_000), got)

	got, err = SOLToLamports(".5")
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000), got)

	for _, bad := range []string{"", "abc", "1.2.3", "0.0000000001", "-1", "99999999999999999999"} {
		_, err := SOLToLamports(bad)
		require.Error(t, err, bad)
	}
}
