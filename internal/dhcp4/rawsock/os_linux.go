//go:build linux

package rawsock

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Socket is the endpoint returned by [New]: a [net.PacketConn] suitable
// for the driver's Send/Wait loop, plus the [ipv4.PacketConn] wrapping
// the same descriptor for callers that need control-message-level
// access (TTL, interface index on receive, etc.), matching the way the
// teacher's newBroadcastPacketConn hands back an *ipv4.PacketConn.
type Socket struct {
	net.PacketConn
	IPv4 *ipv4.PacketConn
}

var _ Conn = (*Socket)(nil)

// New builds a non-blocking, broadcast-enabled UDP endpoint bound to
// device ifaceName and local address 0.0.0.0:port, following a strict
// six-step ordering: create, SO_BROADCAST, SO_REUSEADDR, SO_BINDTODEVICE,
// bind address, non-blocking.
func New(ifaceName string, port int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, &CreateError{Err: err}
	}

	// Ownership of fd transfers to os.NewFile below on the success path;
	// on any earlier failure this closes it directly.
	closeFD := func() { _ = unix.Close(fd) }

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		closeFD()
		return nil, &BroadcastError{Err: err}
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		closeFD()
		return nil, &ReuseAddressError{Err: err}
	}

	if err = unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifaceName); err != nil {
		closeFD()
		return nil, &BindToDeviceError{Interface: ifaceName, Err: err}
	}

	addr := unix.SockaddrInet4{Port: port}
	if err = unix.Bind(fd, &addr); err != nil {
		closeFD()
		return nil, &BindAddressError{Err: err}
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		closeFD()
		return nil, &NonBlockingError{Err: err}
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("dhcp4-%s-%d", ifaceName, port))
	conn, err := net.FilePacketConn(f)
	// net.FilePacketConn dup()s the descriptor; f must be closed either
	// way to avoid leaking the original.
	_ = f.Close()
	if err != nil {
		return nil, &RuntimeHandoffError{Err: err}
	}

	return &Socket{
		PacketConn: conn,
		IPv4:       ipv4.NewPacketConn(conn),
	}, nil
}
