//go:build linux

package platform

import (
	"errors"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/wesleywu/kroute/internal/logger"
	"github.com/wesleywu/kroute/internal/routing/types"
)

// openKernelModifier opens a real control channel; opening the socket needs no privileges.
func openKernelModifier(t *testing.T) *KernelRouteModifier {
	t.Helper()
	if _, err := net.InterfaceByName("lo"); err != nil {
		t.Skipf("no loopback interface: %v", err)
	}
	m, err := NewKernelRouteModifier(logger.Discard())
	if err != nil {
		t.Skipf("cannot open control channel: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestKernel_LoopbackIdentity(t *testing.T) {
	m := openKernelModifier(t)
	lo, _ := net.InterfaceByName("lo")

	index, err := m.InterfaceIndex("lo")
	require.NoError(t, err)
	assert.Equal(t, lo.Index, index)

	hw, err := m.HardwareAddr("lo")
	require.NoError(t, err)
	assert.Equal(t, net.HardwareAddr{0, 0, 0, 0, 0, 0}, hw)

	var v4 []string
	addrs, err := lo.Addrs()
	require.NoError(t, err)
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.To4() != nil {
			v4 = append(v4, ipNet.IP.To4().String())
		}
	}

	addr, err := m.InterfaceAddr("lo")
	if len(v4) == 0 {
		assert.Error(t, err)
		return
	}
	require.NoError(t, err)
	assert.Contains(t, v4, addr.String())
}

func TestKernel_UnknownDevice(t *testing.T) {
	m := openKernelModifier(t)
	const missing = "kroute-nosuch"

	_, err := m.InterfaceIndex(missing)
	assert.ErrorIs(t, err, unix.ENODEV)
	_, err = m.InterfaceAddr(missing)
	assert.Error(t, err)
	_, err = m.HardwareAddr(missing)
	assert.Error(t, err)

	kind, ok := types.ErrorTypeOf(err)
	require.True(t, ok)
	assert.Equal(t, types.RouteErrLookup, kind)

	index, err := m.InterfaceIndex("lo")
	require.NoError(t, err)
	assert.Positive(t, index)
}

// TestKernel_RouteRoundTrip changes the host routing table. It runs only as root with
// KROUTE_PRIVILEGED_TESTS=1.
func TestKernel_RouteRoundTrip(t *testing.T) {
	if os.Getenv("KROUTE_PRIVILEGED_TESTS") != "1" || os.Geteuid() != 0 {
		t.Skip("set KROUTE_PRIVILEGED_TESTS=1 and run as root")
	}
	m := openKernelModifier(t)

	dst := net.IPv4(1, 2, 3, 1).To4()
	mask := net.CIDRMask(32, 32)
	t.Cleanup(func() { _ = m.DeleteRoute(10, dst, mask, nil, "lo") })

	require.NoError(t, m.AddRoute(10, dst, mask, nil, "lo"))

	found := listRoutes(t, dst, mask)
	require.Len(t, found, 1)
	lo, _ := net.InterfaceByName("lo")
	assert.Equal(t, lo.Index, found[0].LinkIndex)
	// The kernel stores rt_metric-1, so the requested metric comes back unchanged
	assert.Equal(t, 10, found[0].Priority)

	require.NoError(t, m.DeleteRoute(10, dst, mask, nil, "lo"))
	assert.Empty(t, listRoutes(t, dst, mask))

	err := m.DeleteRoute(10, dst, mask, nil, "lo")
	require.Error(t, err)
	kind, _ := types.ErrorTypeOf(err)
	assert.Equal(t, types.RouteErrKernelCall, kind)
	assert.Zero(t, m.devBuffers)
}

// TestKernel_OffLinkGatewayFailsAtKernel submits the demo route to the real kernel. The
// gateway is not on-link for lo, so Linux refuses it (or refuses the caller with EPERM);
// either way the request passes validation and only the ioctl fails.
func TestKernel_OffLinkGatewayFailsAtKernel(t *testing.T) {
	m := openKernelModifier(t)

	dst := net.IPv4(1, 2, 3, 1).To4()
	mask := net.CIDRMask(32, 32)
	gw := net.IPv4(192, 168, 8, 100).To4()

	err := m.AddRoute(10, dst, mask, gw, "lo")
	if err == nil {
		_ = m.DeleteRoute(10, dst, mask, gw, "lo")
		t.Fatal("kernel accepted a route via an off-link gateway on lo")
	}

	kind, ok := types.ErrorTypeOf(err)
	require.True(t, ok)
	assert.Equal(t, types.RouteErrKernelCall, kind)

	assert.False(t, errors.Is(err, types.ErrNotHostRoute) || errors.Is(err, types.ErrBadMask) || errors.Is(err, types.ErrBadDest))
	var errno unix.Errno
	require.ErrorAs(t, err, &errno)
	assert.NotZero(t, errno)
	assert.Zero(t, m.devBuffers)
	assert.Equal(t, int64(1), m.Stats().FailedOps)
}

func listRoutes(t *testing.T, dst net.IP, mask net.IPMask) []netlink.Route {
	t.Helper()
	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4,
		&netlink.Route{Dst: &net.IPNet{IP: dst, Mask: mask}}, netlink.RT_FILTER_DST)
	require.NoError(t, err)
	return routes
}
