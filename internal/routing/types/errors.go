package types

import (
	"errors"
	"fmt"
	"io/fs"
)

// Validation and allocation causes carried by RouteOperationError
var (
	ErrNotHostRoute = errors.New("not a host route")
	ErrBadMask      = errors.New("bad mask")
	ErrBadDest      = errors.New("bad dest")
	ErrNotIPv4      = errors.New("not an IPv4 address")
	ErrBadDevice    = errors.New("bad dev")
)

// RouteOperationError represents an error that occurred during route operations
type RouteOperationError struct {
	ErrorType RouteErrorType
	Operation string        // "open", "if-index", "if-addr", "hw-addr", "add", "delete"
	Device    string        // Device the operation targeted, if any
	Request   *RouteRequest // Set for route mutations
	Cause     error         // Underlying error
}

// RouteErrorType represents the category of routing operation error
type RouteErrorType int

// Route error type constants
const (
	// RouteErrChannelOpen indicates the control channel could not be created
	RouteErrChannelOpen RouteErrorType = iota
	// RouteErrLookup indicates an interface identity query failed
	RouteErrLookup
	// RouteErrValidation indicates the route failed an invariant check before reaching the kernel
	RouteErrValidation
	// RouteErrAllocation indicates the device name could not be prepared for the kernel call
	RouteErrAllocation
	// RouteErrKernelCall indicates the kernel rejected the add or delete request
	RouteErrKernelCall
)

// String returns a string representation of the route error type
func (e RouteErrorType) String() string {
	switch e {
	case RouteErrChannelOpen:
		return "ChannelOpen"
	case RouteErrLookup:
		return "Lookup"
	case RouteErrValidation:
		return "Validation"
	case RouteErrAllocation:
		return "Allocation"
	case RouteErrKernelCall:
		return "KernelCall"
	default:
		return "UnknownError"
	}
}

// Error implements the error interface for RouteOperationError
func (roe *RouteOperationError) Error() string {
	if roe.Request != nil {
		return fmt.Sprintf("route operation failed [%s] %s: %v",
			roe.ErrorType.String(), roe.Request.String(), roe.Cause)
	}
	if roe.Device != "" {
		return fmt.Sprintf("route operation failed [%s] %s on %s: %v",
			roe.ErrorType.String(), roe.Operation, roe.Device, roe.Cause)
	}
	return fmt.Sprintf("route operation failed [%s] %s: %v",
		roe.ErrorType.String(), roe.Operation, roe.Cause)
}

// Unwrap exposes the cause to errors.Is and errors.As
func (roe *RouteOperationError) Unwrap() error {
	return roe.Cause
}

// IsPermissionError returns true if the error is due to insufficient privileges
func (roe *RouteOperationError) IsPermissionError() bool {
	return errors.Is(roe.Cause, fs.ErrPermission)
}

// IsValidationError returns true if the route was rejected before any kernel call
func (roe *RouteOperationError) IsValidationError() bool {
	return roe.ErrorType == RouteErrValidation
}

// ErrorTypeOf returns the RouteErrorType of err and whether err carries one
func ErrorTypeOf(err error) (RouteErrorType, bool) {
	var roe *RouteOperationError
	if errors.As(err, &roe) {
		return roe.ErrorType, true
	}
	return 0, false
}
