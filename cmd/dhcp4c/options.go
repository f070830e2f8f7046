package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// options holds every command-line flag of the lease subcommand.
type options struct {
	iface        string
	serverPort   int
	clientPort   int
	offerTimeout time.Duration
	ackTimeout   time.Duration
	metricsAddr  string
	verbose      bool
}

// Indexes into [leaseFlags].
const (
	ifaceIdx = iota
	serverPortIdx
	clientPortIdx
	offerTimeoutIdx
	ackTimeoutIdx
	metricsAddrIdx
	verboseIdx
)

// flagDescriptor describes one command-line flag: its long name, short
// form (if any), default value, and help text.
type flagDescriptor struct {
	defaultValue any
	description  string
	long         string
	short        string
}

// leaseFlags are every flag the lease subcommand accepts.
var leaseFlags = []*flagDescriptor{
	ifaceIdx: {
		defaultValue: "",
		description:  "Network interface to acquire a lease on (required).",
		long:         "interface",
		short:        "i",
	},
	serverPortIdx: {
		defaultValue: 67,
		description:  "UDP port DHCP servers are expected to listen on.",
		long:         "server-port",
		short:        "",
	},
	clientPortIdx: {
		defaultValue: 68,
		description:  "UDP port to bind the client socket to.",
		long:         "client-port",
		short:        "",
	},
	offerTimeoutIdx: {
		defaultValue: 5 * time.Second,
		description:  "How long to keep waiting in Selecting after a datagram that is not a usable OFFER. The wait after each DISCOVER is a fixed 5s.",
		long:         "offer-timeout",
		short:        "",
	},
	ackTimeoutIdx: {
		defaultValue: 5 * time.Second,
		description:  "How long to keep waiting in Requesting after a datagram that is not an ACK/NAK for this transaction. The wait after each REQUEST is a fixed 5s.",
		long:         "ack-timeout",
		short:        "",
	},
	metricsAddrIdx: {
		defaultValue: "",
		description:  "If set, serve Prometheus metrics at http://<addr>/metrics.",
		long:         "metrics-addr",
		short:        "",
	},
	verboseIdx: {
		defaultValue: false,
		description:  "Enable debug-level logging.",
		long:         "verbose",
		short:        "v",
	},
}

// registerFlags attaches every [leaseFlags] entry to flags, dispatching
// by value type.
func registerFlags(flags *pflag.FlagSet, opts *options) {
	for i, fieldPtr := range []any{
		ifaceIdx:        &opts.iface,
		serverPortIdx:   &opts.serverPort,
		clientPortIdx:   &opts.clientPort,
		offerTimeoutIdx: &opts.offerTimeout,
		ackTimeoutIdx:   &opts.ackTimeout,
		metricsAddrIdx:  &opts.metricsAddr,
		verboseIdx:      &opts.verbose,
	} {
		addFlag(flags, fieldPtr, leaseFlags[i])
	}
}

// addFlag adds the flag described by d to flags using fieldPtr as the
// pointer to the value, switching on the field pointer's concrete type.
func addFlag(flags *pflag.FlagSet, fieldPtr any, d *flagDescriptor) {
	switch fieldPtr := fieldPtr.(type) {
	case *string:
		flags.StringVarP(fieldPtr, d.long, d.short, d.defaultValue.(string), d.description)
	case *int:
		flags.IntVarP(fieldPtr, d.long, d.short, d.defaultValue.(int), d.description)
	case *bool:
		flags.BoolVarP(fieldPtr, d.long, d.short, d.defaultValue.(bool), d.description)
	case *time.Duration:
		flags.DurationVarP(fieldPtr, d.long, d.short, d.defaultValue.(time.Duration), d.description)
	default:
		panic(fmt.Errorf("dhcp4c: unexpected field pointer type %T", fieldPtr))
	}
}

// validate checks the required flags and reports any missing or
// out-of-range values.
func (o *options) validate() error {
	if o.iface == "" {
		return fmt.Errorf("--%s is required", leaseFlags[ifaceIdx].long)
	}

	if o.serverPort <= 0 || o.serverPort > 65535 {
		return fmt.Errorf("--%s must be a valid port number", leaseFlags[serverPortIdx].long)
	}

	if o.clientPort <= 0 || o.clientPort > 65535 {
		return fmt.Errorf("--%s must be a valid port number", leaseFlags[clientPortIdx].long)
	}

	return nil
}

// usage writes a usage summary sorted by long flag name.
func usage(w io.Writer) {
	descriptors := slices.Clone(leaseFlags)
	slices.SortStableFunc(descriptors, func(a, b *flagDescriptor) int {
		return strings.Compare(a.long, b.long)
	})

	for _, d := range descriptors {
		if d.short == "" {
			fmt.Fprintf(w, "  --%s\n", d.long)
		} else {
			fmt.Fprintf(w, "  --%s/-%s\n", d.long, d.short)
		}
		fmt.Fprintf(w, "    \t%s\n", d.description)
	}
}
