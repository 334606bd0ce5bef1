//go:build linux

package platform

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/wesleywu/kroute/internal/routing/types"
)

// rtentry mirrors struct rtentry from <net/route.h>. unsigned long fields are uintptr
// so the layout holds on both 32- and 64-bit targets (120 bytes on 64-bit).
type rtentry struct {
	Pad1    uintptr
	Dst     unix.RawSockaddrInet4
	Gateway unix.RawSockaddrInet4
	Genmask unix.RawSockaddrInet4
	Flags   uint16
	Pad2    int16
	Pad3    uintptr
	Pad4    uintptr
	Metric  int16
	Dev     *byte
	Mtu     uintptr
	Window  uintptr
	Irtt    uint16
}

// ifreqHwaddr is struct ifreq with ifr_hwaddr selected from the union.
type ifreqHwaddr struct {
	Name   [unix.IFNAMSIZ]byte
	Hwaddr unix.RawSockaddr
	_      [8]byte
}

// newRtentry encodes entry without its device; Metric is truncated to a C short.
func newRtentry(entry *types.RouteEntry) (*rtentry, error) {
	rt := &rtentry{
		Flags:  uint16(entry.Flags),
		Metric: int16(entry.Metric),
	}

	var err error
	if rt.Dst, err = rawInet4(entry.Destination); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	if rt.Genmask, err = rawInet4(entry.Netmask); err != nil {
		return nil, fmt.Errorf("netmask: %w", err)
	}
	if rt.Gateway, err = rawInet4(entry.Gateway); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return rt, nil
}

func rawInet4(sa types.Sockaddr) (unix.RawSockaddrInet4, error) {
	switch v := sa.(type) {
	case *types.SockaddrInet4:
		return unix.RawSockaddrInet4{
			Family: unix.AF_INET,
			Port:   htons(v.Port),
			Addr:   v.Addr,
		}, nil
	case nil:
		return unix.RawSockaddrInet4{}, types.ErrNotIPv4
	default:
		return unix.RawSockaddrInet4{}, fmt.Errorf("%w: family %d", types.ErrNotIPv4, v.Family())
	}
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}

// hardwareAddr returns the first six bytes of the link-layer address.
func (r *ifreqHwaddr) hardwareAddr() []byte {
	hw := make([]byte, 6)
	for i := range hw {
		hw[i] = byte(r.Hwaddr.Data[i])
	}
	return hw
}
