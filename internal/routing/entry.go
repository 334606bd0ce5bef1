// Package routing translates route requests into kernel route entries.
package routing

import (
	"fmt"
	"net"

	"github.com/wesleywu/kroute/internal/routing/types"
)

const allOnes = ^uint32(0)

// BuildRouteEntry converts a request into the entry submitted to the kernel.
//
// The entry always carries FlagUp and Metric = req.Metric+1. FlagHost is set for an
// all-ones netmask and FlagGateway for a non-zero gateway. When the netmask is non-zero
// the entry must describe a host route consistently, use a contiguous mask and have no
// destination bits outside the mask; otherwise a Validation error is returned and the
// caller must not contact the kernel.
func BuildRouteEntry(req *types.RouteRequest) (*types.RouteEntry, error) {
	if req.Action != types.RouteActionAdd && req.Action != types.RouteActionDelete {
		return nil, validationError(req, fmt.Errorf("unknown route action %d", int(req.Action)))
	}

	dst, err := toInet4(req.Destination)
	if err != nil {
		return nil, validationError(req, err)
	}
	mask, err := toInet4(net.IP(req.Netmask))
	if err != nil {
		return nil, validationError(req, err)
	}
	gw, err := toInet4(req.Gateway)
	if err != nil {
		return nil, validationError(req, err)
	}

	entry := &types.RouteEntry{
		Flags:       types.FlagUp,
		Metric:      int(req.Metric) + 1,
		Destination: dst,
		Netmask:     mask,
		Gateway:     gw,
		Device:      req.Device,
	}

	if ^mask.Uint32() == 0 {
		entry.Flags |= types.FlagHost
	}
	if gw.Uint32() != 0 {
		entry.Flags |= types.FlagGateway
	}

	if m := mask.Uint32(); m != 0 {
		if err := checkMask(entry.Flags, dst.Uint32(), m); err != nil {
			return nil, validationError(req, err)
		}
	}

	return entry, nil
}

// checkMask runs the host-route, contiguity and destination checks on host-order values.
func checkMask(flags types.RouteFlags, dst, mask uint32) error {
	if flags.Has(types.FlagHost) && mask != allOnes {
		return types.ErrNotHostRoute
	}
	// (mask & -mask) isolates the lowest set bit; ORing everything below it
	// into the mask must fill all 32 bits for a contiguous mask.
	if ^(((mask & -mask) - 1) | mask) != 0 {
		return types.ErrBadMask
	}
	if dst&^mask != 0 {
		return types.ErrBadDest
	}
	return nil
}

// IsContiguousMask reports whether mask is a valid CIDR netmask. The zero mask is contiguous.
func IsContiguousMask(mask net.IPMask) bool {
	sa, err := toInet4(net.IP(mask))
	if err != nil {
		return false
	}
	m := sa.Uint32()
	return m == 0 || ^(((m&-m)-1)|m) == 0
}

func toInet4(ip net.IP) (*types.SockaddrInet4, error) {
	sa := &types.SockaddrInet4{}
	if ip == nil {
		return sa, nil
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, types.ErrNotIPv4
	}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

func validationError(req *types.RouteRequest, cause error) error {
	return &types.RouteOperationError{
		ErrorType: types.RouteErrValidation,
		Operation: req.Action.String(),
		Device:    req.Device,
		Request:   req,
		Cause:     cause,
	}
}
