// Package driver implements the impure shell around [statemachine.Machine]:
// it owns the socket, feeds it events, and executes the actions it
// returns. Structured after a send-then-wait-with-deadline idiom,
// restructured to drive a separate pure state machine rather than
// interleaving protocol logic with I/O.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hhubb22/herald/internal/dhcp4/configurator"
	"github.com/hhubb22/herald/internal/dhcp4/metrics"
	"github.com/hhubb22/herald/internal/dhcp4/statemachine"
	"github.com/hhubb22/herald/internal/dhcp4/wire"
)

// recvBufferSize is larger than any conformant DHCPv4 datagram.
const recvBufferSize = 1500

// defaultSendWait is the implicit wait attached to every Send action.
const defaultSendWait = 5 * time.Second

// ErrUnexpectedExit is returned when the state machine emits Exit: a fatal
// driver error rather than a normal shutdown. The machine emits Exit only
// in Bound, and a single Run stops at StoreLease before that, so this is
// returned when Run is called on a machine that is already Bound.
var ErrUnexpectedExit = errors.New("driver: state machine exited without producing a lease")

// Driver owns a socket and a [statemachine.Machine] for the duration of
// one client run.
type Driver struct {
	conn         net.PacketConn
	machine      *statemachine.Machine
	configurator configurator.Configurator
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures a [Driver] at construction.
type Option func(*Driver)

// WithConfigurator overrides the default no-op [configurator.Configurator].
func WithConfigurator(c configurator.Configurator) Option {
	return func(d *Driver) { d.configurator = c }
}

// WithMetrics attaches a [metrics.Metrics] instance; nil (the default)
// disables metrics recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New builds a Driver over conn and machine.
func New(conn net.PacketConn, machine *statemachine.Machine, opts ...Option) *Driver {
	d := &Driver{
		conn:    conn,
		machine: machine,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Run drives the state machine to completion, returning the acquired
// lease or a fatal error. It seeds the machine with a synthetic Timeout
// to leave Init, then loops executing the returned Action until
// StoreLease or a fatal error. Socket I/O errors and decoder errors are
// fatal and propagate out of Run; Timeouts never do.
func (d *Driver) Run(ctx context.Context) (statemachine.Lease, error) {
	event := statemachine.Event(statemachine.Timeout{})

	for {
		if err := ctx.Err(); err != nil {
			return statemachine.Lease{}, err
		}

		prevState := d.machine.State()

		action, err := d.machine.HandleEvent(event)
		if err != nil {
			return statemachine.Lease{}, fmt.Errorf("driver: %w", err)
		}

		newState := d.machine.State()
		if d.metrics != nil {
			d.metrics.ObserveState(newState)
			if prevState == statemachine.StateRequesting && newState == statemachine.StateSelecting {
				d.metrics.IncNAKReceived()
			}
		}

		switch a := action.(type) {
		case statemachine.Send:
			if d.metrics != nil {
				d.recordSendMetrics(a, prevState, newState)
			}

			if err = d.send(a); err != nil {
				return statemachine.Lease{}, fmt.Errorf("driver: sending %s: %w", d.machine.State(), err)
			}

			event, err = d.wait(ctx, defaultSendWait)
			if err != nil {
				return statemachine.Lease{}, err
			}

		case statemachine.Wait:
			event, err = d.wait(ctx, a.Duration)
			if err != nil {
				return statemachine.Lease{}, err
			}

		case statemachine.StoreLease:
			if d.configurator != nil {
				if applyErr := d.configurator.Apply(ctx, a.Lease); applyErr != nil {
					d.logger.Warn("configurator failed to apply lease", "error", applyErr)
				}
			}

			if d.metrics != nil {
				d.metrics.IncLeaseAcquired()
			}

			return a.Lease, nil

		case statemachine.Exit:
			return statemachine.Lease{}, ErrUnexpectedExit

		default:
			return statemachine.Lease{}, fmt.Errorf("driver: unknown action type %T", action)
		}
	}
}

// recordSendMetrics classifies a just-issued Send by decoding its own
// message type and by comparing the state before and after the event
// that produced it: a Send that leaves the machine in the same state it
// started in (Selecting->Selecting, Requesting->Requesting) is a
// retransmit of an unanswered DISCOVER or REQUEST.
func (d *Driver) recordSendMetrics(a statemachine.Send, prevState, newState statemachine.State) {
	msg, err := wire.Decode(a.Packet)
	if err != nil {
		// The machine only ever emits packets it encoded itself; a
		// decode failure here would mean the encoder and decoder have
		// diverged, not a network problem. Metrics best-effort only.
		return
	}

	mt, ok := msg.Options.MessageType()
	if !ok {
		return
	}

	switch mt {
	case wire.MessageTypeDiscover:
		d.metrics.IncDiscoverSent()
	case wire.MessageTypeRequest:
		d.metrics.IncRequestSent()
	}

	if prevState == newState {
		d.metrics.IncRetransmit()
	}
}

func (d *Driver) send(a statemachine.Send) error {
	_, err := d.conn.WriteTo(a.Packet, a.Destination)
	if err != nil {
		return err
	}

	d.logger.Info("sent datagram", "state", d.machine.State(), "bytes", len(a.Packet), "dst", a.Destination)

	return nil
}

// wait polls the socket with a receive deadline of d, translating a
// datagram arrival into PacketReceived and a deadline expiry into
// Timeout. A read error other than a timeout is fatal.
func (d *Driver) wait(ctx context.Context, dur time.Duration) (statemachine.Event, error) {
	deadline := time.Now().Add(dur)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}

	buf := make([]byte, recvBufferSize)
	n, _, err := d.conn.ReadFrom(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return statemachine.Timeout{}, nil
		}

		return nil, fmt.Errorf("reading datagram: %w", err)
	}

	d.logger.Info("received datagram", "state", d.machine.State(), "bytes", n)

	return statemachine.PacketReceived{Data: buf[:n]}, nil
}
