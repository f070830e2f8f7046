// Package rawsock builds the non-blocking, broadcast-enabled, interface-
// bound UDP endpoint the driver sends and receives DHCPv4 datagrams on.
package rawsock

import (
	"fmt"
	"net"

	"github.com/AdguardTeam/golibs/errors"
)

// CreateError wraps a failure to create the underlying socket.
type CreateError struct{ Err error }

func (e *CreateError) Error() string { return fmt.Sprintf("rawsock: create: %s", e.Err) }
func (e *CreateError) Unwrap() error { return e.Err }

// BroadcastError wraps a failure to enable SO_BROADCAST.
type BroadcastError struct{ Err error }

func (e *BroadcastError) Error() string { return fmt.Sprintf("rawsock: enable broadcast: %s", e.Err) }
func (e *BroadcastError) Unwrap() error { return e.Err }

// ReuseAddressError wraps a failure to enable SO_REUSEADDR.
type ReuseAddressError struct{ Err error }

func (e *ReuseAddressError) Error() string {
	return fmt.Sprintf("rawsock: enable address reuse: %s", e.Err)
}
func (e *ReuseAddressError) Unwrap() error { return e.Err }

// BindToDeviceError wraps a failure to bind the socket to a named
// interface.
type BindToDeviceError struct {
	Interface string
	Err       error
}

func (e *BindToDeviceError) Error() string {
	return fmt.Sprintf("rawsock: bind to device %q: %s", e.Interface, e.Err)
}
func (e *BindToDeviceError) Unwrap() error { return e.Err }

// BindAddressError wraps a failure to bind the local address.
type BindAddressError struct{ Err error }

func (e *BindAddressError) Error() string { return fmt.Sprintf("rawsock: bind address: %s", e.Err) }
func (e *BindAddressError) Unwrap() error { return e.Err }

// NonBlockingError wraps a failure to put the socket into non-blocking
// mode.
type NonBlockingError struct{ Err error }

func (e *NonBlockingError) Error() string {
	return fmt.Sprintf("rawsock: set non-blocking: %s", e.Err)
}
func (e *NonBlockingError) Unwrap() error { return e.Err }

// RuntimeHandoffError wraps a failure to hand the prepared descriptor to
// the Go runtime's network poller.
type RuntimeHandoffError struct{ Err error }

func (e *RuntimeHandoffError) Error() string {
	return fmt.Sprintf("rawsock: runtime handoff: %s", e.Err)
}
func (e *RuntimeHandoffError) Unwrap() error { return e.Err }

// ErrUnsupported is returned when device-binding is not available on the
// current platform.
const ErrUnsupported errors.Error = "rawsock: device binding not supported on this platform"

// Conn is the endpoint the driver reads and writes DHCPv4 datagrams on.
// Implementations are non-blocking, broadcast-enabled, and (on platforms
// that support it) bound to a single named interface.
type Conn interface {
	net.PacketConn
}
