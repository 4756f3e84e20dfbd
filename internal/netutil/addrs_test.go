package netutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveBindAddressesPassesThroughNonWildcard(t *testing.T) {
	addrs, err := ResolveBindAddresses("127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1"}, addrs)
}

func TestResolveBindAddressesExpandsWildcard(t *testing.T) {
	addrs, err := ResolveBindAddresses("0.0.0.0")
	require.NoError(t, err)
	require.NotEmpty(t, addrs)
}
