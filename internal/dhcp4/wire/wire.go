// Package wire implements the RFC 2131/RFC 2132 DHCPv4 message encoding
// consumed by the client state machine: the fixed header, the magic
// cookie, and the TLV option area, restricted to the options this client
// emits and understands.
package wire

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/AdguardTeam/golibs/errors"
)

// Fixed offsets and sizes of the RFC 2131 message header.
const (
	offsetOp     = 0
	offsetHType  = 1
	offsetHLen   = 2
	offsetHops   = 3
	offsetXID    = 4
	offsetSecs   = 8
	offsetFlags  = 10
	offsetCiaddr = 12
	offsetYiaddr = 16
	offsetSiaddr = 20
	offsetGiaddr = 24
	offsetChaddr = 28
	offsetSname  = 44
	offsetFile   = 108

	// HeaderLen is the size, in bytes, of the fixed RFC 2131 header, i.e.
	// the offset at which the magic cookie begins.
	HeaderLen = 236

	chaddrLen = 16
	snameLen  = 64
	fileLen   = 128
)

// MagicCookie marks the start of the options area.
var MagicCookie = [4]byte{0x63, 0x82, 0x53, 0x63}

// Op codes, see RFC 2131 Section 2.
const (
	OpBootRequest uint8 = 1
	OpBootReply   uint8 = 2
)

// HType is the hardware type this client uses: Ethernet.
const HTypeEthernet uint8 = 1

// HLenEthernet is the hardware address length for Ethernet.
const HLenEthernet uint8 = 6

// FlagBroadcast is the broadcast bit of the 16-bit flags field.
const FlagBroadcast uint16 = 1 << 15

// MessageType is the value of DHCP option 53.
type MessageType uint8

// DHCP message types, see RFC 2131 Section 3.
const (
	MessageTypeDiscover MessageType = 1
	MessageTypeOffer    MessageType = 2
	MessageTypeRequest  MessageType = 3
	MessageTypeDecline  MessageType = 4
	MessageTypeAck      MessageType = 5
	MessageTypeNak      MessageType = 6
	MessageTypeRelease  MessageType = 7
	MessageTypeInform   MessageType = 8
)

// String implements the fmt.Stringer interface for MessageType.
func (t MessageType) String() string {
	switch t {
	case MessageTypeDiscover:
		return "DISCOVER"
	case MessageTypeOffer:
		return "OFFER"
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeDecline:
		return "DECLINE"
	case MessageTypeAck:
		return "ACK"
	case MessageTypeNak:
		return "NAK"
	case MessageTypeRelease:
		return "RELEASE"
	case MessageTypeInform:
		return "INFORM"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Option codes used or understood by this client, see RFC 2132.
const (
	OptSubnetMask           uint8 = 1
	OptRouter               uint8 = 3
	OptDNSServers           uint8 = 6
	OptDomainName           uint8 = 15
	OptRequestedIPAddress   uint8 = 50
	OptLeaseTime            uint8 = 51
	OptMessageType          uint8 = 53
	OptServerIdentifier     uint8 = 54
	OptParameterRequestList uint8 = 55
	OptClientIdentifier     uint8 = 61
	OptEnd                  uint8 = 255
	optPad                  uint8 = 0
)

// ErrMalformedPacket is the sentinel cause of every decode failure; wrap
// it with [errors.Annotate] for context.
const ErrMalformedPacket errors.Error = "malformed dhcp packet"

// Header is the fixed RFC 2131 portion of a DHCPv4 message.
type Header struct {
	Op      uint8
	HType   uint8
	HLen    uint8
	Hops    uint8
	XID     uint32
	Secs    uint16
	Flags   uint16
	CIAddr  net.IP
	YIAddr  net.IP
	SIAddr  net.IP
	GIAddr  net.IP
	ChAddr  net.HardwareAddr
	SName   [snameLen]byte
	File    [fileLen]byte
}

// Broadcast reports whether the broadcast flag is set.
func (h Header) Broadcast() bool {
	return h.Flags&FlagBroadcast != 0
}

// Message is a decoded DHCPv4 datagram: the fixed header plus its option
// set. Messages this client produces are built directly with
// [EncodeDiscover] and [EncodeRequest] rather than through Message, since
// the header and option values the client emits are few and fixed.
type Message struct {
	Header
	Options OptionSet
}

func putIP4(b []byte, ip net.IP) {
	v4 := ip.To4()
	if v4 == nil {
		// Zero-value net.IP{} and unset fields both encode as all-zero.
		copy(b, make([]byte, 4))
		return
	}
	copy(b, v4)
}

// encodeHeader writes the fixed RFC 2131 header fields into buf[:HeaderLen].
// buf must be at least HeaderLen bytes.
func encodeHeader(buf []byte, h Header) {
	buf[offsetOp] = h.Op
	buf[offsetHType] = h.HType
	buf[offsetHLen] = h.HLen
	buf[offsetHops] = h.Hops
	binary.BigEndian.PutUint32(buf[offsetXID:], h.XID)
	binary.BigEndian.PutUint16(buf[offsetSecs:], h.Secs)
	binary.BigEndian.PutUint16(buf[offsetFlags:], h.Flags)
	putIP4(buf[offsetCiaddr:offsetCiaddr+4], h.CIAddr)
	putIP4(buf[offsetYiaddr:offsetYiaddr+4], h.YIAddr)
	putIP4(buf[offsetSiaddr:offsetSiaddr+4], h.SIAddr)
	putIP4(buf[offsetGiaddr:offsetGiaddr+4], h.GIAddr)
	copy(buf[offsetChaddr:offsetChaddr+chaddrLen], h.ChAddr)
}

// decodeHeader reads the fixed RFC 2131 header fields from buf[:HeaderLen].
func decodeHeader(buf []byte) (h Header) {
	h.Op = buf[offsetOp]
	h.HType = buf[offsetHType]
	h.HLen = buf[offsetHLen]
	h.Hops = buf[offsetHops]
	h.XID = binary.BigEndian.Uint32(buf[offsetXID:])
	h.Secs = binary.BigEndian.Uint16(buf[offsetSecs:])
	h.Flags = binary.BigEndian.Uint16(buf[offsetFlags:])
	h.CIAddr = net.IP(append([]byte(nil), buf[offsetCiaddr:offsetCiaddr+4]...))
	h.YIAddr = net.IP(append([]byte(nil), buf[offsetYiaddr:offsetYiaddr+4]...))
	h.SIAddr = net.IP(append([]byte(nil), buf[offsetSiaddr:offsetSiaddr+4]...))
	h.GIAddr = net.IP(append([]byte(nil), buf[offsetGiaddr:offsetGiaddr+4]...))

	hlen := int(h.HLen)
	if hlen > chaddrLen {
		hlen = chaddrLen
	}
	h.ChAddr = net.HardwareAddr(append([]byte(nil), buf[offsetChaddr:offsetChaddr+hlen]...))

	copy(h.SName[:], buf[offsetSname:offsetSname+snameLen])
	copy(h.File[:], buf[offsetFile:offsetFile+fileLen])

	return h
}
