// Command dhcp4c performs a single DHCPv4 DORA exchange on a named
// network interface and prints the acquired lease.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hhubb22/herald/internal/dhcp4/configurator"
	"github.com/hhubb22/herald/internal/dhcp4/driver"
	"github.com/hhubb22/herald/internal/dhcp4/macaddr"
	"github.com/hhubb22/herald/internal/dhcp4/metrics"
	"github.com/hhubb22/herald/internal/dhcp4/rawsock"
	"github.com/hhubb22/herald/internal/dhcp4/statemachine"
)

func main() {
	os.Exit(int(run(os.Args[1:])))
}

// run builds and executes the root cobra command, returning the process
// exit code. Separated from main so tests can drive it without an
// os.Exit call.
func run(args []string) osutil.ExitCode {
	opts := &options{}

	root := &cobra.Command{
		Use:           "dhcp4c",
		Short:         "Acquire a DHCPv4 lease via DORA",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var exitCode osutil.ExitCode

	lease := &cobra.Command{
		Use:   "lease",
		Short: "Acquire a single DHCPv4 lease and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exitCode = runLease(cmd.Context(), opts)
			if exitCode != osutil.ExitCodeSuccess {
				return fmt.Errorf("dhcp4c: exit code %d", exitCode)
			}

			return nil
		},
	}

	registerFlags(lease.Flags(), opts)
	lease.Flags().Usage = func() { usage(os.Stderr) }

	root.AddCommand(lease)
	root.SetArgs(args)

	if err := root.ExecuteContext(context.Background()); err != nil {
		if exitCode == osutil.ExitCodeSuccess {
			// cobra itself rejected the invocation (unknown flag, etc.)
			// before runLease ran.
			exitCode = osutil.ExitCodeArgumentError
		}
	}

	return exitCode
}

// runLease validates opts, builds the logger and every DHCP component,
// and drives one DORA exchange to completion.
func runLease(ctx context.Context, opts *options) osutil.ExitCode {
	if err := opts.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		return osutil.ExitCodeArgumentError
	}

	logger := newLogger(opts.verbose)

	registry := prometheus.NewRegistry()
	m := metrics.New()
	m.Register(registry)

	metricsServer := metrics.NewServer(opts.metricsAddr, registry)
	metricsServer.Start(func(err error) {
		logger.Error("metrics server failed", "error", err)
	})
	defer func() { _ = metricsServer.Stop(ctx) }()

	mac, err := macaddr.Lookup(opts.iface)
	if err != nil {
		logger.Error("resolving hardware address", "interface", opts.iface, slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	socket, err := rawsock.New(opts.iface, opts.clientPort)
	if err != nil {
		logger.Error("opening socket", "interface", opts.iface, slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}
	defer func() { _ = socket.Close() }()

	machine := statemachine.New(
		mac,
		statemachine.WithOfferWait(opts.offerTimeout),
		statemachine.WithAckWait(opts.ackTimeout),
		statemachine.WithServerPort(opts.serverPort),
	)

	d := driver.New(
		socket,
		machine,
		driver.WithConfigurator(configurator.NewLoggingConfigurator(logger)),
		driver.WithMetrics(m),
		driver.WithLogger(logger),
	)

	lease, err := d.Run(ctx)
	if err != nil {
		logger.Error("acquiring lease", "interface", opts.iface, slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	printLease(lease)

	return osutil.ExitCodeSuccess
}

// newLogger builds the base [*slog.Logger].
func newLogger(verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	if verbose {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Format:       slogutil.FormatDefault,
		Level:        lvl,
		AddTimestamp: true,
	})
}

func printLease(lease statemachine.Lease) {
	fmt.Printf("offered_ip: %s\n", lease.OfferedIP)
	fmt.Printf("server_identifier: %s\n", lease.ServerIdentifier)

	if lease.SubnetMask != nil {
		fmt.Printf("subnet_mask: %s\n", lease.SubnetMask)
	}

	for _, r := range lease.Routers {
		fmt.Printf("router: %s\n", r)
	}

	for _, d := range lease.DNSServers {
		fmt.Printf("dns_server: %s\n", d)
	}

	switch {
	case lease.Infinite:
		fmt.Println("lease_duration: infinite")
	case lease.LeaseDuration > 0:
		fmt.Printf("lease_duration: %s\n", lease.LeaseDuration)
	}
}
