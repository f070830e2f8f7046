package wire

import (
	"fmt"
	"net"

	"github.com/AdguardTeam/golibs/errors"
)

// OptionSet is a decoded DHCPv4 option area, indexed by option code.
// Repeated options are not supported beyond the last-one-wins semantics of
// a map, which matches every option this client emits or consumes (all are
// singleton per RFC 2132).
type OptionSet map[uint8][]byte

// MessageType returns the value of option 53, and false if it is absent or
// holds a value outside 1..=8.
func (o OptionSet) MessageType() (t MessageType, ok bool) {
	v, ok := o[OptMessageType]
	if !ok || len(v) != 1 {
		return 0, false
	}

	t = MessageType(v[0])
	if t < MessageTypeDiscover || t > MessageTypeInform {
		return 0, false
	}

	return t, true
}

// ServerIdentifier returns the value of option 54.
func (o OptionSet) ServerIdentifier() (ip net.IP, ok bool) {
	return o.ip4(OptServerIdentifier)
}

// SubnetMask returns the value of option 1.
func (o OptionSet) SubnetMask() (ip net.IP, ok bool) {
	return o.ip4(OptSubnetMask)
}

// RequestedIPAddress returns the value of option 50.
func (o OptionSet) RequestedIPAddress() (ip net.IP, ok bool) {
	return o.ip4(OptRequestedIPAddress)
}

func (o OptionSet) ip4(code uint8) (ip net.IP, ok bool) {
	v, ok := o[code]
	if !ok || len(v) != 4 {
		return nil, false
	}

	return net.IP(append([]byte(nil), v...)), true
}

// Routers returns the ordered list of option 3 addresses.
func (o OptionSet) Routers() (ips []net.IP, ok bool) {
	return o.ip4List(OptRouter)
}

// DNSServers returns the ordered list of option 6 addresses.
func (o OptionSet) DNSServers() (ips []net.IP, ok bool) {
	return o.ip4List(OptDNSServers)
}

func (o OptionSet) ip4List(code uint8) (ips []net.IP, ok bool) {
	v, ok := o[code]
	if !ok || len(v) == 0 || len(v)%4 != 0 {
		return nil, false
	}

	ips = make([]net.IP, 0, len(v)/4)
	for i := 0; i+4 <= len(v); i += 4 {
		ips = append(ips, net.IP(append([]byte(nil), v[i:i+4]...)))
	}

	return ips, true
}

// LeaseTime returns the value of option 51, interpreted as unsigned
// 32-bit seconds.
func (o OptionSet) LeaseTime() (secs uint32, ok bool) {
	v, ok := o[OptLeaseTime]
	if !ok || len(v) != 4 {
		return 0, false
	}

	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3]), true
}

// clientIdentifier builds the value of option 61: htype byte 1 (Ethernet)
// followed by the raw MAC address.
func clientIdentifier(mac net.HardwareAddr) []byte {
	id := make([]byte, 0, 1+len(mac))
	id = append(id, HTypeEthernet)
	return append(id, mac...)
}

// defaultParameterRequestList is the Parameter-Request-List (option 55)
// this client sends with every DISCOVER and REQUEST: subnet mask, router,
// DNS server, domain name.
func defaultParameterRequestList() []byte {
	return []byte{OptSubnetMask, OptRouter, OptDNSServers, OptDomainName}
}

// encodeOptions appends the TLV-encoded options (in the given order,
// terminated by End) to buf.
func encodeOptions(buf []byte, opts []option) []byte {
	for _, opt := range opts {
		buf = append(buf, opt.code, uint8(len(opt.value)))
		buf = append(buf, opt.value...)
	}

	return append(buf, OptEnd)
}

type option struct {
	code  uint8
	value []byte
}

// decodeOptions parses the TLV option area following the magic cookie,
// stopping at an End option or the end of buf. Unknown codes are stored
// opaquely; only recognized codes are validated against their typed
// constraint.
func decodeOptions(buf []byte) (OptionSet, error) {
	opts := make(OptionSet)

	for i := 0; i < len(buf); {
		code := buf[i]
		if code == OptEnd {
			return opts, nil
		}
		if code == optPad {
			i++
			continue
		}

		if i+1 >= len(buf) {
			return nil, fmt.Errorf("option %d: %w: truncated length byte", code, ErrMalformedPacket)
		}

		length := int(buf[i+1])
		start := i + 2
		end := start + length
		if end > len(buf) {
			return nil, fmt.Errorf("option %d: %w: length %d exceeds buffer", code, ErrMalformedPacket, length)
		}

		value := append([]byte(nil), buf[start:end]...)
		if err := validateOption(code, value); err != nil {
			return nil, errors.Annotate(err, "option %d: %w", code)
		}

		opts[code] = value
		i = end
	}

	// No End option found before the buffer ran out; RFC 2131 requires
	// one, but accepting its absence at end-of-buffer is harmless and
	// matches lenient real-world servers. Only a length overrun is fatal.
	return opts, nil
}

// validateOption enforces the typed constraints this client cares about.
// Options it does not interpret are accepted with any length.
func validateOption(code uint8, value []byte) error {
	switch code {
	case OptMessageType:
		if len(value) != 1 {
			return fmt.Errorf("%w: message type must be 1 byte", ErrMalformedPacket)
		}
		t := MessageType(value[0])
		if t < MessageTypeDiscover || t > MessageTypeInform {
			return fmt.Errorf("%w: message type %d out of range", ErrMalformedPacket, value[0])
		}
	case OptServerIdentifier, OptSubnetMask, OptRequestedIPAddress:
		if len(value) != 4 {
			return fmt.Errorf("%w: option %d must be 4 bytes, got %d", ErrMalformedPacket, code, len(value))
		}
	case OptRouter, OptDNSServers:
		if len(value) == 0 || len(value)%4 != 0 {
			return fmt.Errorf("%w: option %d must be a non-empty multiple of 4 bytes, got %d", ErrMalformedPacket, code, len(value))
		}
	case OptLeaseTime:
		if len(value) != 4 {
			return fmt.Errorf("%w: lease time must be 4 bytes, got %d", ErrMalformedPacket, len(value))
		}
	}

	return nil
}
