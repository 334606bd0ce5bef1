//go:build linux

// Package platform provides the kernel route modifier for the running OS
package platform

import (
	"errors"
	"net"
	"os"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/wesleywu/kroute/internal/logger"
	"github.com/wesleywu/kroute/internal/routing"
	"github.com/wesleywu/kroute/internal/routing/entities"
	"github.com/wesleywu/kroute/internal/routing/metrics"
	"github.com/wesleywu/kroute/internal/routing/types"
)

type ioctlFunc func(req uint, arg unsafe.Pointer) error

// KernelRouteModifier adds and deletes IPv4 routes and queries interface identity
// through a single AF_INET datagram socket. It is not safe for concurrent use; open
// one per goroutine or serialize access.
type KernelRouteModifier struct {
	fd      int
	closed  bool
	log     *logger.Logger
	metrics *metrics.Metrics
	ioctl   ioctlFunc

	// device-name buffers handed to the kernel and not yet released
	devBuffers int
}

// NewPlatformRouteModifier creates a platform-specific route modifier (Linux implementation)
func NewPlatformRouteModifier(log *logger.Logger) (entities.RouteModifier, error) {
	m, err := NewKernelRouteModifier(log)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewKernelRouteModifier opens the control channel. On error no modifier is returned.
func NewKernelRouteModifier(log *logger.Logger) (*KernelRouteModifier, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		log.Error("Failed to open control channel", "error", err)
		return nil, &types.RouteOperationError{
			ErrorType: types.RouteErrChannelOpen,
			Operation: "open",
			Cause:     err,
		}
	}

	m := newModifier(fd, log, nil)
	runtime.SetFinalizer(m, (*KernelRouteModifier).Close)
	m.log.ChannelOpened(fd)
	return m, nil
}

func newModifier(fd int, log *logger.Logger, ioctl ioctlFunc) *KernelRouteModifier {
	m := &KernelRouteModifier{
		fd:      fd,
		log:     log.WithComponent("route-modifier"),
		metrics: metrics.NewMetrics(),
	}
	if ioctl == nil {
		ioctl = m.sysIoctl
	}
	m.ioctl = ioctl
	return m
}

func (m *KernelRouteModifier) sysIoctl(req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(m.fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Close releases the control channel. It is safe to call more than once.
func (m *KernelRouteModifier) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	runtime.SetFinalizer(m, nil)
	m.log.ChannelClosed(m.fd)
	if m.fd < 0 {
		return nil
	}
	return unix.Close(m.fd)
}

// Stats returns the counters recorded by this modifier
func (m *KernelRouteModifier) Stats() metrics.Stats {
	return m.metrics.GetStats()
}

// InterfaceIndex returns the kernel index of device
func (m *KernelRouteModifier) InterfaceIndex(device string) (int, error) {
	const op = "if-index"

	ifr, err := m.newIfreq(op, device)
	if err != nil {
		return 0, err
	}
	if err := m.ioctl(unix.SIOCGIFINDEX, unsafe.Pointer(ifr)); err != nil {
		return 0, m.lookupFailed(op, device, err)
	}

	m.lookupSucceeded(op, device)
	return int(int32(ifr.Uint32())), nil
}

// InterfaceAddr returns the primary IPv4 address of device
func (m *KernelRouteModifier) InterfaceAddr(device string) (net.IP, error) {
	const op = "if-addr"

	ifr, err := m.newIfreq(op, device)
	if err != nil {
		return nil, err
	}
	// The query must carry AF_INET or the kernel has no family to resolve.
	if err := ifr.SetInet4Addr(net.IPv4zero.To4()); err != nil {
		return nil, m.lookupFailed(op, device, err)
	}
	if err := m.ioctl(unix.SIOCGIFADDR, unsafe.Pointer(ifr)); err != nil {
		return nil, m.lookupFailed(op, device, err)
	}

	addr, err := ifr.Inet4Addr()
	if err != nil {
		return nil, m.lookupFailed(op, device, err)
	}

	m.lookupSucceeded(op, device)
	return net.IP(addr).To4(), nil
}

// HardwareAddr returns the 6-byte link-layer address of device
func (m *KernelRouteModifier) HardwareAddr(device string) (net.HardwareAddr, error) {
	const op = "hw-addr"

	ifr, err := m.newIfreq(op, device)
	if err != nil {
		return nil, err
	}

	req := &ifreqHwaddr{}
	copy(req.Name[:], ifr.Name())
	if err := m.ioctl(unix.SIOCGIFHWADDR, unsafe.Pointer(req)); err != nil {
		return nil, m.lookupFailed(op, device, err)
	}

	m.lookupSucceeded(op, device)
	return net.HardwareAddr(req.hardwareAddr()), nil
}

// InterfaceIdentity runs the index, address and hardware address queries for device
func (m *KernelRouteModifier) InterfaceIdentity(device string) (*types.InterfaceIdentity, error) {
	index, err := m.InterfaceIndex(device)
	if err != nil {
		return nil, err
	}
	addr, err := m.InterfaceAddr(device)
	if err != nil {
		return nil, err
	}
	hw, err := m.HardwareAddr(device)
	if err != nil {
		return nil, err
	}

	return &types.InterfaceIdentity{
		Name:         device,
		Index:        index,
		Addr:         addr,
		HardwareAddr: hw,
	}, nil
}

// AddRoute adds a route; a nil gateway or netmask means 0.0.0.0
func (m *KernelRouteModifier) AddRoute(metric uint16, dest net.IP, netmask net.IPMask, gateway net.IP, device string) error {
	return m.ModifyRoute(&types.RouteRequest{
		Action:      types.RouteActionAdd,
		Metric:      metric,
		Destination: dest,
		Netmask:     netmask,
		Gateway:     gateway,
		Device:      device,
	})
}

// DeleteRoute deletes a route; arguments must match the ones the route was added with
func (m *KernelRouteModifier) DeleteRoute(metric uint16, dest net.IP, netmask net.IPMask, gateway net.IP, device string) error {
	return m.ModifyRoute(&types.RouteRequest{
		Action:      types.RouteActionDelete,
		Metric:      metric,
		Destination: dest,
		Netmask:     netmask,
		Gateway:     gateway,
		Device:      device,
	})
}

// ModifyRoute validates req and submits it with SIOCADDRT or SIOCDELRT. Requests that
// fail validation never reach the kernel.
func (m *KernelRouteModifier) ModifyRoute(req *types.RouteRequest) error {
	entry, err := routing.BuildRouteEntry(req)
	if err != nil {
		m.metrics.RecordRejection()
		m.log.ValidationRejected(req.Action.String(), req.String(), reason(err))
		return err
	}

	rt, err := newRtentry(entry)
	if err != nil {
		m.metrics.RecordRejection()
		m.log.ValidationRejected(req.Action.String(), req.String(), err.Error())
		return m.routeError(types.RouteErrValidation, req, err)
	}

	if err := m.attachDevice(rt, entry.Device); err != nil {
		m.metrics.RecordRejection()
		m.log.Error("Failed to prepare device name", "device", entry.Device, "error", err)
		return m.routeError(types.RouteErrAllocation, req, err)
	}
	defer m.releaseDevice(rt)

	if m.closed {
		m.metrics.RecordOperation(0, false)
		return m.routeError(types.RouteErrKernelCall, req, os.ErrClosed)
	}

	code := uint(unix.SIOCADDRT)
	if req.Action == types.RouteActionDelete {
		code = unix.SIOCDELRT
	}

	start := time.Now()
	err = m.ioctl(code, unsafe.Pointer(rt))
	elapsed := time.Since(start)

	m.metrics.RecordOperation(elapsed, err == nil)
	m.log.RouteOperation(req.Action.String(), req.String(), req.Device, elapsed.Microseconds(), err == nil)

	if err != nil {
		m.log.Error("Kernel rejected route", "route", req.String(), "error", err)
		return m.routeError(types.RouteErrKernelCall, req, err)
	}
	return nil
}

// attachDevice copies name into a NUL-terminated buffer owned by rt for the kernel call.
func (m *KernelRouteModifier) attachDevice(rt *rtentry, name string) error {
	dev, err := unix.BytePtrFromString(name)
	if err != nil {
		return types.ErrBadDevice
	}
	rt.Dev = dev
	m.devBuffers++
	return nil
}

func (m *KernelRouteModifier) releaseDevice(rt *rtentry) {
	if rt.Dev == nil {
		return
	}
	runtime.KeepAlive(rt.Dev)
	rt.Dev = nil
	m.devBuffers--
}

func (m *KernelRouteModifier) newIfreq(op, device string) (*unix.Ifreq, error) {
	if m.closed {
		return nil, m.lookupFailed(op, device, os.ErrClosed)
	}
	ifr, err := unix.NewIfreq(device)
	if err != nil {
		return nil, m.lookupFailed(op, device, err)
	}
	return ifr, nil
}

func (m *KernelRouteModifier) lookupFailed(op, device string, err error) error {
	m.metrics.RecordLookup(false)
	m.log.InterfaceLookup(op, device, err)
	return &types.RouteOperationError{
		ErrorType: types.RouteErrLookup,
		Operation: op,
		Device:    device,
		Cause:     err,
	}
}

func (m *KernelRouteModifier) lookupSucceeded(op, device string) {
	m.metrics.RecordLookup(true)
	m.log.InterfaceLookup(op, device, nil)
}

func (m *KernelRouteModifier) routeError(kind types.RouteErrorType, req *types.RouteRequest, cause error) error {
	return &types.RouteOperationError{
		ErrorType: kind,
		Operation: req.Action.String(),
		Device:    req.Device,
		Request:   req,
		Cause:     cause,
	}
}

func reason(err error) string {
	var roe *types.RouteOperationError
	if errors.As(err, &roe) && roe.Cause != nil {
		return roe.Cause.Error()
	}
	return err.Error()
}
