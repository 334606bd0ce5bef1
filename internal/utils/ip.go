package utils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseIPv4 parses a dotted-quad address and returns its 4-byte form
func ParseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return ip4, nil
}

// ParseNetmask accepts a dotted netmask ("255.255.255.0") or a prefix length ("24" or "/24").
// Dotted masks are returned as given, contiguous or not.
func ParseNetmask(s string) (net.IPMask, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ".") {
		ip, err := ParseIPv4(s)
		if err != nil {
			return nil, fmt.Errorf("invalid netmask: %q", s)
		}
		return net.IPMask(ip), nil
	}

	bits, err := strconv.Atoi(strings.TrimPrefix(s, "/"))
	if err != nil || bits < 0 || bits > 32 {
		return nil, fmt.Errorf("invalid netmask: %q", s)
	}
	return net.CIDRMask(bits, 32), nil
}

// ParseDestination parses a route destination and optional netmask.
//
// dest may be "default", a CIDR ("10.1.0.0/16", or netstat's short form "10.1/16"),
// a full address, or an incomplete one ("203.26.55" -> /24). Host bits of a CIDR are
// kept so that a malformed destination is still visible to validation.
func ParseDestination(dest, netmask string) (net.IP, net.IPMask, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return nil, nil, fmt.Errorf("destination is required")
	}

	if dest == "default" {
		if netmask != "" {
			return nil, nil, fmt.Errorf("default route takes no netmask")
		}
		return net.IPv4zero.To4(), net.CIDRMask(0, 32), nil
	}

	if strings.Contains(dest, "/") {
		if netmask != "" {
			return nil, nil, fmt.Errorf("destination %q already has a prefix length", dest)
		}
		parts := strings.SplitN(dest, "/", 2)
		ip, err := ParseIPv4(completeOctets(parts[0]))
		if err != nil {
			return nil, nil, err
		}
		mask, err := ParseNetmask(parts[1])
		if err != nil {
			return nil, nil, err
		}
		return ip, mask, nil
	}

	if netmask != "" {
		ip, err := ParseIPv4(dest)
		if err != nil {
			return nil, nil, err
		}
		mask, err := ParseNetmask(netmask)
		if err != nil {
			return nil, nil, err
		}
		return ip, mask, nil
	}

	// Incomplete network addresses without explicit mask
	switch strings.Count(dest, ".") {
	case 1: // "203.26" -> "203.26.0.0/16"
		ip, err := ParseIPv4(completeOctets(dest))
		return ip, net.CIDRMask(16, 32), err
	case 2: // "203.26.55" -> "203.26.55.0/24"
		ip, err := ParseIPv4(completeOctets(dest))
		return ip, net.CIDRMask(24, 32), err
	}

	ip, err := ParseIPv4(dest)
	if err != nil {
		return nil, nil, err
	}
	return ip, net.CIDRMask(32, 32), nil
}

// completeOctets pads "1.0.1" to "1.0.1.0"
func completeOctets(ip string) string {
	switch strings.Count(ip, ".") {
	case 0:
		return ip + ".0.0.0"
	case 1:
		return ip + ".0.0"
	case 2:
		return ip + ".0"
	}
	return ip
}
