package connmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyAddressType(t *testing.T) {
	cases := []struct {
		addr string
		want AddressFamily
	}{
		{"/ip4/127.0.0.1/tcp/4001", AddressIPv4},
		{"/ip6/::1/tcp/4001", AddressIPv6},
		{"/dns4/example.com/tcp/4001", AddressUnknown},
	}
	for _, c := range cases {
		got := classifyAddressType(mustAddr(c.addr))
		require.Equal(t, c.want, got, c.addr)
	}
}

func TestClassifyAddressTypeNil(t *testing.T) {
	require.Equal(t, AddressUnknown, classifyAddressType(nil))
}
