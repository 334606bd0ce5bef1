//go:build !linux

// Package platform provides the kernel route modifier for the running OS
package platform

import (
	"errors"

	"github.com/wesleywu/kroute/internal/logger"
	"github.com/wesleywu/kroute/internal/routing/entities"
	"github.com/wesleywu/kroute/internal/routing/types"
)

// NewPlatformRouteModifier reports a channel open failure: the route ioctls are Linux only
func NewPlatformRouteModifier(log *logger.Logger) (entities.RouteModifier, error) {
	log.Error("Kernel route ioctls are not available on this platform")
	return nil, &types.RouteOperationError{
		ErrorType: types.RouteErrChannelOpen,
		Operation: "open",
		Cause:     errors.ErrUnsupported,
	}
}
