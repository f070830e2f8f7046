// Package configurator defines the contract the driver uses to apply a
// granted lease to the host, and a default implementation that only
// logs. Applying the lease to the host (addresses, routes, resolv.conf)
// is out of scope for this client; the contract exists so a real
// applier can be substituted.
package configurator

import (
	"context"
	"log/slog"

	"github.com/hhubb22/herald/internal/dhcp4/statemachine"
)

// Configurator applies a granted lease to the host. Its failure is
// logged by the driver but never aborts a client run: the lease has
// already been granted by the server and belongs to the caller
// regardless of whether it could be applied locally.
type Configurator interface {
	Apply(ctx context.Context, lease statemachine.Lease) error
}

// LoggingConfigurator is the default [Configurator]: it never touches
// host state, only logs the lease it was handed. Stands in for a
// host-specific address/route applier.
type LoggingConfigurator struct {
	Logger *slog.Logger
}

// NewLoggingConfigurator returns a [LoggingConfigurator] writing through
// logger.
func NewLoggingConfigurator(logger *slog.Logger) *LoggingConfigurator {
	return &LoggingConfigurator{Logger: logger}
}

// Apply implements [Configurator].
func (c *LoggingConfigurator) Apply(_ context.Context, lease statemachine.Lease) error {
	attrs := []any{
		slog.String("offered_ip", lease.OfferedIP.String()),
		slog.String("server_identifier", lease.ServerIdentifier.String()),
	}

	if lease.SubnetMask != nil {
		attrs = append(attrs, slog.String("subnet_mask", lease.SubnetMask.String()))
	}

	if lease.Infinite {
		attrs = append(attrs, slog.String("lease_duration", "infinite"))
	} else if lease.LeaseDuration > 0 {
		attrs = append(attrs, slog.Duration("lease_duration", lease.LeaseDuration))
	}

	c.Logger.Info("lease granted; host configuration not applied by this client", attrs...)

	return nil
}
