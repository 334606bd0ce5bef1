package entities

import (
	"net"

	"github.com/wesleywu/kroute/internal/routing/metrics"
	"github.com/wesleywu/kroute/internal/routing/types"
)

// RouteModifier defines the operations available over one kernel control channel.
// Implementations are not safe for concurrent use.
type RouteModifier interface {
	// Interface identity queries
	InterfaceIndex(device string) (int, error)
	InterfaceAddr(device string) (net.IP, error)
	HardwareAddr(device string) (net.HardwareAddr, error)
	InterfaceIdentity(device string) (*types.InterfaceIdentity, error)

	// Route mutation
	ModifyRoute(req *types.RouteRequest) error

	// Stats returns the counters recorded by this modifier
	Stats() metrics.Stats

	// Resource management
	Close() error
}

// ModifierFactory opens a new RouteModifier with its own control channel
type ModifierFactory func() (RouteModifier, error)
