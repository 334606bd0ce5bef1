package routing

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleywu/kroute/internal/routing/types"
)

func request(dst, mask, gw string, metric uint16) *types.RouteRequest {
	req := &types.RouteRequest{
		Action: types.RouteActionAdd,
		Metric: metric,
		Device: "lo",
	}
	if dst != "" {
		req.Destination = net.ParseIP(dst)
	}
	if mask != "" {
		req.Netmask = net.IPMask(net.ParseIP(mask).To4())
	}
	if gw != "" {
		req.Gateway = net.ParseIP(gw)
	}
	return req
}

func TestBuildRouteEntry_HostRoute(t *testing.T) {
	entry, err := BuildRouteEntry(request("1.2.3.1", "255.255.255.255", "192.168.8.100", 10))
	require.NoError(t, err)

	assert.True(t, entry.Flags.Has(types.FlagUp))
	assert.True(t, entry.Flags.Has(types.FlagHost))
	assert.True(t, entry.Flags.Has(types.FlagGateway))
	assert.Equal(t, "UGH", entry.Flags.String())
	assert.Equal(t, 11, entry.Metric)
	assert.Equal(t, "lo", entry.Device)

	for _, sa := range []types.Sockaddr{entry.Destination, entry.Netmask, entry.Gateway} {
		in4, ok := sa.(*types.SockaddrInet4)
		require.True(t, ok)
		assert.Equal(t, types.FamilyInet4, in4.Family())
		assert.Zero(t, in4.Port)
	}
	assert.Equal(t, [4]byte{1, 2, 3, 1}, entry.Destination.(*types.SockaddrInet4).Addr)
	assert.Equal(t, [4]byte{192, 168, 8, 100}, entry.Gateway.(*types.SockaddrInet4).Addr)
}

func TestBuildRouteEntry_HostFlagOnlyForAllOnes(t *testing.T) {
	for bits := 1; bits <= 32; bits++ {
		mask := net.CIDRMask(bits, 32)
		dst := net.IPv4(10, 0, 0, 0).Mask(mask)
		entry, err := BuildRouteEntry(&types.RouteRequest{Destination: dst, Netmask: mask, Device: "lo"})
		require.NoError(t, err, "prefix /%d", bits)
		assert.Equal(t, bits == 32, entry.Flags.Has(types.FlagHost), "prefix /%d", bits)
	}
}

func TestBuildRouteEntry_ZeroMaskSkipsChecks(t *testing.T) {
	// A zero mask is a default route; destination bits are not checked.
	entry, err := BuildRouteEntry(request("10.0.0.5", "", "192.168.1.1", 0))
	require.NoError(t, err)
	assert.False(t, entry.Flags.Has(types.FlagHost))
	assert.Equal(t, 1, entry.Metric)
}

func TestBuildRouteEntry_BadMask(t *testing.T) {
	masks := []string{
		"255.255.255.253",
		"255.0.255.0",
		"0.255.255.255",
		"255.255.254.255",
		"128.0.0.1",
		"0.0.0.1",
	}
	for _, m := range masks {
		t.Run(m, func(t *testing.T) {
			_, err := BuildRouteEntry(request("0.0.0.0", m, "", 0))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrBadMask)

			kind, ok := types.ErrorTypeOf(err)
			require.True(t, ok)
			assert.Equal(t, types.RouteErrValidation, kind)
		})
	}
}

func TestBuildRouteEntry_BadDest(t *testing.T) {
	tests := []struct {
		dst  string
		mask string
	}{
		{"10.0.0.5", "255.255.255.0"},
		{"192.168.1.1", "255.255.0.0"},
		{"10.64.0.0", "255.128.0.0"},
		{"172.16.0.1", "255.255.255.254"},
	}
	for _, tt := range tests {
		t.Run(tt.dst+"/"+tt.mask, func(t *testing.T) {
			_, err := BuildRouteEntry(request(tt.dst, tt.mask, "", 0))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrBadDest)
			assert.Contains(t, err.Error(), "bad dest")
		})
	}
}

func TestBuildRouteEntry_GatewayFlag(t *testing.T) {
	tests := []struct {
		gw   string
		want bool
	}{
		{"", false},
		{"0.0.0.0", false},
		{"0.0.0.1", true},
		{"192.168.8.100", true},
		{"255.255.255.255", true},
	}
	for _, tt := range tests {
		t.Run(tt.gw, func(t *testing.T) {
			entry, err := BuildRouteEntry(request("10.0.0.0", "255.0.0.0", tt.gw, 0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, entry.Flags.Has(types.FlagGateway))
		})
	}
}

func TestBuildRouteEntry_MetricPlusOne(t *testing.T) {
	for _, metric := range []uint16{0, 1, 10, 255, 32766, 32767, 65534, 65535} {
		entry, err := BuildRouteEntry(request("10.0.0.0", "255.0.0.0", "", metric))
		require.NoError(t, err)
		assert.Equal(t, int(metric)+1, entry.Metric)
	}
}

func TestBuildRouteEntry_RejectsIPv6(t *testing.T) {
	req := &types.RouteRequest{Destination: net.ParseIP("2001:db8::1"), Device: "lo"}
	_, err := BuildRouteEntry(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotIPv4))

	var roe *types.RouteOperationError
	require.ErrorAs(t, err, &roe)
	assert.True(t, roe.IsValidationError())
	assert.False(t, roe.IsPermissionError())
}

func TestIsContiguousMask(t *testing.T) {
	assert.True(t, IsContiguousMask(net.CIDRMask(0, 32)))
	assert.True(t, IsContiguousMask(net.CIDRMask(17, 32)))
	assert.True(t, IsContiguousMask(net.CIDRMask(32, 32)))
	assert.False(t, IsContiguousMask(net.IPv4Mask(255, 255, 255, 253)))
	assert.False(t, IsContiguousMask(net.CIDRMask(64, 128)))
}
