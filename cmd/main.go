package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleywu/kroute/internal/config"
	"github.com/wesleywu/kroute/internal/logger"
	"github.com/wesleywu/kroute/internal/routing/batch"
	"github.com/wesleywu/kroute/internal/routing/entities"
	"github.com/wesleywu/kroute/internal/routing/platform"
	"github.com/wesleywu/kroute/internal/routing/types"
	"github.com/wesleywu/kroute/internal/utils"
)

var (
	version = "1.0.0"

	configFile  string
	deviceName  string
	silentMode  bool
	verboseMode bool

	routeDest    string
	routeNetmask string
	routeGateway string
	routeMetric  uint16

	demoHold    time.Duration
	routesFile  string
	applyDelete bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kroute",
		Short: "Kernel IPv4 route modifier",
		Long:  `Add and delete IPv4 kernel routes for a network device and show the device's identity.`,
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show device index, address and hardware address",
		Run:   showInfo,
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a route",
		Run:   func(cmd *cobra.Command, args []string) { modifyRoute(types.RouteActionAdd) },
	}

	delCmd := &cobra.Command{
		Use:     "del",
		Aliases: []string{"delete"},
		Short:   "Delete a route",
		Run:     func(cmd *cobra.Command, args []string) { modifyRoute(types.RouteActionDelete) },
	}

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Show identity, add a test route, hold it, then delete it",
		Long:  `Show the device identity, add 1.2.3.1/32 via 192.168.8.100 with metric 10, keep it for --hold, then delete it.`,
		Run:   runDemo,
	}

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply routes from a TOML route file",
		Run:   applyRoutes,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run:   showVersion,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name, e.g. lo")
	rootCmd.PersistentFlags().BoolVarP(&silentMode, "silent", "s", false, "Silent mode (no log output)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Verbose mode (debug level logging)")

	for _, cmd := range []*cobra.Command{addCmd, delCmd} {
		cmd.Flags().StringVar(&routeDest, "dest", "", "Destination host or network (CIDR allowed)")
		cmd.Flags().StringVar(&routeNetmask, "netmask", "", "Netmask, dotted or prefix length")
		cmd.Flags().StringVar(&routeGateway, "gateway", "", "Gateway address (omit for a direct route)")
		cmd.Flags().Uint16Var(&routeMetric, "metric", 0, "Route metric")
		_ = cmd.MarkFlagRequired("dest")
	}

	demoCmd.Flags().DurationVar(&demoHold, "hold", 0, "How long to keep the demo route (default from config)")

	applyCmd.Flags().StringVarP(&routesFile, "file", "f", "", "Route file path")
	applyCmd.Flags().BoolVar(&applyDelete, "delete", false, "Delete every route in the file instead")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logger.Logger) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if deviceName != "" {
		cfg.Device = deviceName
	}
	if silentMode {
		cfg.SilentMode = true
	}
	if verboseMode {
		cfg.LogLevel = "debug"
	}

	return cfg, logger.New(cfg)
}

func requireDevice(cfg *config.Config) {
	if err := utils.ValidateDeviceName(cfg.Device); err != nil {
		fmt.Fprintf(os.Stderr, "must specify device name, eg [-d lo]: %v\n", err)
		os.Exit(1)
	}
}

func openModifier(log *logger.Logger) entities.RouteModifier {
	rm, err := platform.NewPlatformRouteModifier(log)
	if err != nil {
		reportError("Failed to open control channel", err)
		os.Exit(1)
	}
	return rm
}

// reportError prints err with a hint for the failures a user can act on
func reportError(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)

	var roe *types.RouteOperationError
	if errors.As(err, &roe) && roe.IsPermissionError() {
		fmt.Fprintln(os.Stderr, "  hint: changing routes needs root or CAP_NET_ADMIN")
		return
	}
	if kind, ok := types.ErrorTypeOf(err); ok && kind == types.RouteErrValidation {
		fmt.Fprintln(os.Stderr, "  hint: the route was rejected before reaching the kernel; check netmask and destination")
	}
}

func printIdentity(rm entities.RouteModifier, device string) bool {
	ok := true

	if index, err := rm.InterfaceIndex(device); err != nil {
		fmt.Fprintf(os.Stderr, "failed to get if index: %v\n", err)
		ok = false
	} else {
		fmt.Printf("device %s index %d\n", device, index)
	}

	if addr, err := rm.InterfaceAddr(device); err != nil {
		fmt.Fprintf(os.Stderr, "failed to get if addr: %v\n", err)
		ok = false
	} else {
		fmt.Printf("device %s addr  %s\n", device, addr)
	}

	if hw, err := rm.HardwareAddr(device); err != nil {
		fmt.Fprintf(os.Stderr, "failed to get hw addr: %v\n", err)
		ok = false
	} else {
		fmt.Printf("device %s hwaddr  %s\n", device, hw)
	}

	return ok
}

func showInfo(_ *cobra.Command, _ []string) {
	cfg, log := loadConfig()
	requireDevice(cfg)

	rm := openModifier(log)
	defer rm.Close()

	if !printIdentity(rm, cfg.Device) {
		rm.Close()
		os.Exit(1)
	}
}

func modifyRoute(action types.RouteAction) {
	cfg, log := loadConfig()
	requireDevice(cfg)

	dst, mask, err := utils.ParseDestination(routeDest, routeNetmask)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid destination: %v\n", err)
		os.Exit(1)
	}

	var gw net.IP
	if routeGateway != "" {
		if gw, err = utils.ParseIPv4(routeGateway); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid gateway: %v\n", err)
			os.Exit(1)
		}
	}

	req := &types.RouteRequest{
		Action:      action,
		Metric:      routeMetric,
		Destination: dst,
		Netmask:     mask,
		Gateway:     gw,
		Device:      cfg.Device,
	}

	rm := openModifier(log)
	err = rm.ModifyRoute(req)
	rm.Close()

	if err != nil {
		reportError(fmt.Sprintf("error %s route", action), err)
		os.Exit(1)
	}
	fmt.Printf("%s route %s/%s dev %s\n", action, dst, net.IP(mask), cfg.Device)
}

func runDemo(_ *cobra.Command, _ []string) {
	cfg, log := loadConfig()
	requireDevice(cfg)

	hold := cfg.DemoHold
	if demoHold > 0 {
		hold = demoHold
	}

	rm := openModifier(log)
	defer rm.Close()

	printIdentity(rm, cfg.Device)

	req := &types.RouteRequest{
		Action:      types.RouteActionAdd,
		Metric:      10,
		Destination: net.IPv4(1, 2, 3, 1).To4(),
		Netmask:     net.CIDRMask(32, 32),
		Gateway:     net.IPv4(192, 168, 8, 100).To4(),
		Device:      cfg.Device,
	}

	if err := rm.ModifyRoute(req); err != nil {
		reportError("error adding route", err)
	} else {
		fmt.Printf("added route, delete in %s\n", hold)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case <-time.After(hold):
	}

	req.Action = types.RouteActionDelete
	if err := rm.ModifyRoute(req); err != nil {
		fmt.Printf("error delete route: %v\n", err)
	}

	fmt.Println("bye")
}

func applyRoutes(_ *cobra.Command, _ []string) {
	cfg, log := loadConfig()
	log = log.WithFields("route_file", routesFile)

	requests, err := config.LoadRouteFile(routesFile, cfg.Device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load routes: %v\n", err)
		os.Exit(1)
	}
	if applyDelete {
		for _, req := range requests {
			req.Action = types.RouteActionDelete
		}
	}

	factory := func() (entities.RouteModifier, error) {
		return platform.NewPlatformRouteModifier(log)
	}

	result, err := batch.Process(requests, factory, cfg.ConcurrencyLimit, log)
	log.Performance("apply", result.Stats.Fields())

	fmt.Printf("routes: %d total, %d applied, %d failed, %d duplicate\n",
		result.Total, result.Succeeded, result.Failed, result.Skipped)
	for _, e := range result.Errors {
		reportError("  route failed", e)
	}
	if err != nil {
		os.Exit(1)
	}
}

func showVersion(_ *cobra.Command, _ []string) {
	fmt.Printf("kroute v%s\n", version)
	fmt.Printf("Runtime: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
