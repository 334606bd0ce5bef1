package types

import (
	"encoding/binary"
	"fmt"
	"net"
)

// RouteAction represents the type of operation to be performed on a route
type RouteAction int

// Route action constants
const (
	// RouteActionAdd adds a route to the system routing table
	RouteActionAdd RouteAction = iota
	// RouteActionDelete removes a route from the system routing table
	RouteActionDelete
)

// String returns the action name used in logs and errors
func (a RouteAction) String() string {
	switch a {
	case RouteActionAdd:
		return "add"
	case RouteActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseRouteAction converts "add"/"delete" (or "del") to a RouteAction
func ParseRouteAction(s string) (RouteAction, error) {
	switch s {
	case "", "add":
		return RouteActionAdd, nil
	case "delete", "del":
		return RouteActionDelete, nil
	default:
		return 0, fmt.Errorf("unknown route action %q", s)
	}
}

// RouteRequest is the caller-facing description of a single route mutation.
// Addresses are IPv4; nil Destination, Netmask or Gateway mean 0.0.0.0.
type RouteRequest struct {
	Action      RouteAction
	Metric      uint16
	Destination net.IP
	Netmask     net.IPMask
	Gateway     net.IP
	Device      string
}

// String renders the request as "add 10.0.0.0/255.0.0.0 via 192.168.1.1 dev eth0 metric 5"
func (r *RouteRequest) String() string {
	return fmt.Sprintf("%s %s/%s via %s dev %s metric %d",
		r.Action, ipString(r.Destination), maskString(r.Netmask), ipString(r.Gateway), r.Device, r.Metric)
}

// Network returns destination and netmask as an IPv4 net.IPNet; nil values become 0.0.0.0
func (r *RouteRequest) Network() *net.IPNet {
	ip := net.IPv4zero.To4()
	if v4 := r.Destination.To4(); v4 != nil {
		ip = v4
	}
	mask := net.CIDRMask(0, 32)
	if v4 := net.IP(r.Netmask).To4(); v4 != nil {
		mask = net.IPMask(v4)
	}
	return &net.IPNet{IP: ip.Mask(mask), Mask: mask}
}

func ipString(ip net.IP) string {
	if ip == nil {
		return "0.0.0.0"
	}
	return ip.String()
}

func maskString(mask net.IPMask) string {
	if mask == nil {
		return "0.0.0.0"
	}
	if len(mask) == net.IPv4len {
		return net.IP(mask).String()
	}
	return mask.String()
}

// RouteFlags mirrors the rt_flags bits of <net/route.h>
type RouteFlags uint16

// Route flag constants
const (
	FlagUp      RouteFlags = 0x1
	FlagGateway RouteFlags = 0x2
	FlagHost    RouteFlags = 0x4
)

// Has reports whether all bits of f are set
func (fl RouteFlags) Has(f RouteFlags) bool {
	return fl&f == f
}

// String renders the flags the way route(8) does, e.g. "UGH"
func (fl RouteFlags) String() string {
	s := ""
	if fl.Has(FlagUp) {
		s += "U"
	}
	if fl.Has(FlagGateway) {
		s += "G"
	}
	if fl.Has(FlagHost) {
		s += "H"
	}
	if s == "" {
		return "-"
	}
	return s
}

// AddressFamily tags the variant held by a Sockaddr
type AddressFamily uint16

// FamilyInet4 is AF_INET.
const FamilyInet4 AddressFamily = 2

// Sockaddr is a family-tagged socket address as stored in a route entry
type Sockaddr interface {
	Family() AddressFamily
}

// SockaddrInet4 is the AF_INET variant. Addr is in network byte order.
type SockaddrInet4 struct {
	Port uint16
	Addr [4]byte
}

// Family implements Sockaddr
func (sa *SockaddrInet4) Family() AddressFamily {
	return FamilyInet4
}

// Uint32 returns the address as a host-order integer
func (sa *SockaddrInet4) Uint32() uint32 {
	return binary.BigEndian.Uint32(sa.Addr[:])
}

// IP returns the address as a net.IP
func (sa *SockaddrInet4) IP() net.IP {
	return net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3]).To4()
}

// RouteEntry is the kernel-facing form of a RouteRequest
type RouteEntry struct {
	Flags       RouteFlags
	Metric      int // request metric + 1
	Destination Sockaddr
	Netmask     Sockaddr
	Gateway     Sockaddr
	Device      string
}

// InterfaceIdentity groups the identity values of a network device
type InterfaceIdentity struct {
	Name         string
	Index        int
	Addr         net.IP
	HardwareAddr net.HardwareAddr
}
