// Package statemachine implements the pure DHCPv4 client state machine:
// a deterministic function from (state, event) to (next state, action).
// It performs no I/O, reads no clock, and generates randomness only for
// the transaction ID, at construction and on NAK-induced restart.
package statemachine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/hhubb22/herald/internal/dhcp4/wire"
)

// ErrCritical is the sentinel cause of every state machine invariant
// violation. These indicate a bug in the driver or machine, not a
// malformed network input, and are always fatal.
const ErrCritical errors.Error = "dhcp4: state machine invariant violation"

// DefaultOfferWait and DefaultAckWait are the default durations the
// machine asks the driver to [Wait] for an OFFER or ACK/NAK,
// respectively, before the driver's next Timeout.
const (
	DefaultOfferWait = 5 * time.Second
	DefaultAckWait   = 5 * time.Second
)

// Machine is the DHCPv4 client state machine. A Machine is owned by a
// single driver for the lifetime of one client run; it holds only owned
// data and performs no locking.
type Machine struct {
	state        State
	mac          net.HardwareAddr
	xid          uint32
	pendingOffer *wire.Message

	offerWait  time.Duration
	ackWait    time.Duration
	serverPort int

	newXID func() uint32
}

// Option configures a [Machine] at construction.
type Option func(*Machine)

// WithOfferWait overrides the duration of the [Wait] the machine returns
// in Selecting after discarding a datagram (wrong xid, not an OFFER, or
// no Server-Identifier). It does not set the wait that follows a
// DISCOVER; the driver chooses that one. Default is [DefaultOfferWait].
func WithOfferWait(d time.Duration) Option {
	return func(m *Machine) { m.offerWait = d }
}

// WithAckWait overrides the duration of the [Wait] the machine returns in
// Requesting after discarding a datagram (wrong xid, or neither ACK nor
// NAK). It does not set the wait that follows a REQUEST; the driver
// chooses that one. Default is [DefaultAckWait].
func WithAckWait(d time.Duration) Option {
	return func(m *Machine) { m.ackWait = d }
}

// WithServerPort overrides the UDP port DISCOVER and REQUEST datagrams
// are broadcast to. Default is [DefaultServerPort].
func WithServerPort(port int) Option {
	return func(m *Machine) { m.serverPort = port }
}

// WithXID pins the initial transaction ID instead of generating one
// randomly. Intended for deterministic tests.
func WithXID(xid uint32) Option {
	return func(m *Machine) { m.xid = xid }
}

// WithXIDGenerator overrides the function used to pick a new transaction
// ID, both at construction and on NAK-induced restart.
func WithXIDGenerator(gen func() uint32) Option {
	return func(m *Machine) { m.newXID = gen }
}

// New returns a Machine in the Init state for the given client hardware
// address.
func New(mac net.HardwareAddr, opts ...Option) *Machine {
	m := &Machine{
		state:      StateInit,
		mac:        mac,
		offerWait:  DefaultOfferWait,
		ackWait:    DefaultAckWait,
		serverPort: DefaultServerPort,
		newXID:     randomXID,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.xid == 0 {
		m.xid = m.newXID()
	}

	return m
}

func randomXID() uint32 {
	var b [4]byte
	// crypto/rand.Read on the small, fixed-size local buffer used here
	// does not fail in practice; a zero xid on the vanishingly unlikely
	// error path just means a duplicate transaction ID may occur, which
	// the xid filter already tolerates.
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// XID returns the machine's current transaction ID.
func (m *Machine) XID() uint32 {
	return m.xid
}

// HandleEvent advances the machine by one event and returns the Action
// the driver must perform.
func (m *Machine) HandleEvent(event Event) (Action, error) {
	switch m.state {
	case StateInit:
		// Init only ever appears transiently: the driver's synthetic
		// bootstrap Timeout, or a transition re-entering Init from
		// Selecting/Requesting, both of which immediately emit the next
		// DISCOVER rather than waiting for a second event.
		return m.enterSelecting()
	case StateSelecting:
		return m.handleSelecting(event)
	case StateRequesting:
		return m.handleRequesting(event)
	case StateBound:
		return Exit{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown state %d", ErrCritical, m.state)
	}
}

// broadcastAddr is the destination of every DISCOVER and selecting-form
// REQUEST: 255.255.255.255:<serverPort>.
func (m *Machine) broadcastAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4bcast, Port: m.serverPort}
}

// enterSelecting transitions Init -> Selecting and emits a DISCOVER.
func (m *Machine) enterSelecting() (Action, error) {
	m.state = StateSelecting
	packet := wire.EncodeDiscover(m.mac, m.xid)

	return Send{Packet: packet, Destination: m.broadcastAddr()}, nil
}

func (m *Machine) handleSelecting(event Event) (Action, error) {
	switch e := event.(type) {
	case Timeout:
		m.state = StateInit
		return m.enterSelecting()

	case PacketReceived:
		msg, err := wire.Decode(e.Data)
		if err != nil {
			return nil, fmt.Errorf("dhcp4: decoding offer: %w", err)
		}

		if msg.XID != m.xid {
			// Not our transaction; silently discarded.
			return Wait{Duration: m.offerWait}, nil
		}

		mt, ok := msg.Options.MessageType()
		if !ok || mt != wire.MessageTypeOffer {
			return Wait{Duration: m.offerWait}, nil
		}

		if _, ok = msg.Options.ServerIdentifier(); !ok {
			// An OFFER lacking Server-Identifier disqualifies it.
			return Wait{Duration: m.offerWait}, nil
		}

		m.pendingOffer = msg
		m.state = StateRequesting

		return m.sendRequest()

	default:
		return nil, fmt.Errorf("%w: unexpected event type %T in Selecting", ErrCritical, event)
	}
}

// sendRequest builds and returns the Send action for the REQUEST that
// follows an accepted OFFER, or the retransmission of that REQUEST on
// ACK/NAK timeout. m.pendingOffer must be set; its absence is a critical
// invariant violation: pendingOffer is non-nil iff state == Requesting.
func (m *Machine) sendRequest() (Action, error) {
	if m.pendingOffer == nil {
		return nil, fmt.Errorf("%w: requesting without a stored offer", ErrCritical)
	}

	serverID, ok := m.pendingOffer.Options.ServerIdentifier()
	if !ok {
		return nil, fmt.Errorf("%w: stored offer lost its server identifier", ErrCritical)
	}

	packet := wire.EncodeRequest(m.mac, m.xid, m.pendingOffer.YIAddr, serverID)

	return Send{Packet: packet, Destination: m.broadcastAddr()}, nil
}

func (m *Machine) handleRequesting(event Event) (Action, error) {
	switch e := event.(type) {
	case Timeout:
		return m.sendRequest()

	case PacketReceived:
		msg, err := wire.Decode(e.Data)
		if err != nil {
			return nil, fmt.Errorf("dhcp4: decoding ack/nak: %w", err)
		}

		if msg.XID != m.xid {
			return Wait{Duration: m.ackWait}, nil
		}

		mt, ok := msg.Options.MessageType()
		if !ok {
			return Wait{Duration: m.ackWait}, nil
		}

		switch mt {
		case wire.MessageTypeAck:
			lease, err := m.extractLease(msg)
			if err != nil {
				return nil, err
			}

			m.state = StateBound
			m.pendingOffer = nil

			return StoreLease{Lease: lease}, nil

		case wire.MessageTypeNak:
			m.state = StateInit
			m.pendingOffer = nil
			m.xid = m.newXID()

			return m.enterSelecting()

		default:
			return Wait{Duration: m.ackWait}, nil
		}

	default:
		return nil, fmt.Errorf("%w: unexpected event type %T in Requesting", ErrCritical, event)
	}
}

// extractLease builds the terminal Lease from an ACK's options.
func (m *Machine) extractLease(msg *wire.Message) (Lease, error) {
	serverID, ok := msg.Options.ServerIdentifier()
	if !ok {
		return Lease{}, fmt.Errorf("%w: ack missing server identifier", wire.ErrMalformedPacket)
	}

	lease := Lease{
		OfferedIP:        msg.YIAddr,
		ServerIdentifier: serverID,
	}

	if mask, ok := msg.Options.SubnetMask(); ok {
		lease.SubnetMask = mask
	}

	if routers, ok := msg.Options.Routers(); ok {
		lease.Routers = routers
	}

	if dns, ok := msg.Options.DNSServers(); ok {
		lease.DNSServers = dns
	}

	if secs, ok := msg.Options.LeaseTime(); ok {
		if secs == 0xFFFFFFFF {
			lease.Infinite = true
		} else {
			lease.LeaseDuration = time.Duration(secs) * time.Second
		}
	}

	return lease, nil
}
