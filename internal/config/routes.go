package config

import (
	"fmt"
	"net"
	"os"

	"github.com/pelletier/go-toml"

	"github.com/wesleywu/kroute/internal/routing"
	"github.com/wesleywu/kroute/internal/routing/types"
	"github.com/wesleywu/kroute/internal/utils"
)

type routeFileToml struct {
	Device string      `toml:"device"`
	Route  []routeToml `toml:"route"`
}

type routeToml struct {
	Action      string `toml:"action"`
	Destination string `toml:"destination"`
	Netmask     string `toml:"netmask"`
	Gateway     string `toml:"gateway"`
	Metric      int    `toml:"metric"`
	Device      string `toml:"device"`
}

// LoadRouteFile reads a TOML route file into requests. Entries without a device use
// the file-level device, then defaultDevice.
func LoadRouteFile(path, defaultDevice string) ([]*types.RouteRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading route file error: %w", err)
	}
	return ParseRoutes(data, defaultDevice)
}

// ParseRoutes parses route file contents
func ParseRoutes(data []byte, defaultDevice string) ([]*types.RouteRequest, error) {
	var raw routeFileToml
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing route file error: %w", err)
	}
	if raw.Device != "" {
		defaultDevice = raw.Device
	}

	requests := make([]*types.RouteRequest, 0, len(raw.Route))
	for i, r := range raw.Route {
		req, err := r.toRequest(defaultDevice)
		if err != nil {
			return nil, fmt.Errorf("route #%d: %w", i+1, err)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func (r routeToml) toRequest(defaultDevice string) (*types.RouteRequest, error) {
	action, err := types.ParseRouteAction(r.Action)
	if err != nil {
		return nil, err
	}

	if r.Metric < 0 || r.Metric > 0xffff {
		return nil, fmt.Errorf("metric %d out of range 0-65535", r.Metric)
	}

	device := r.Device
	if device == "" {
		device = defaultDevice
	}
	if err := utils.ValidateDeviceName(device); err != nil {
		return nil, err
	}

	dst, mask, err := utils.ParseDestination(r.Destination, r.Netmask)
	if err != nil {
		return nil, err
	}
	if !routing.IsContiguousMask(mask) {
		return nil, fmt.Errorf("netmask %s is not contiguous", net.IP(mask))
	}

	var gw net.IP
	if r.Gateway != "" {
		if gw, err = utils.ParseIPv4(r.Gateway); err != nil {
			return nil, fmt.Errorf("gateway: %w", err)
		}
	}

	return &types.RouteRequest{
		Action:      action,
		Metric:      uint16(r.Metric),
		Destination: dst,
		Netmask:     mask,
		Gateway:     gw,
		Device:      device,
	}, nil
}
