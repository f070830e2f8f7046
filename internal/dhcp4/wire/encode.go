package wire

import "net"

// EncodeDiscover builds a DHCPDISCOVER message: op=BOOTREQUEST, the
// broadcast flag set, and options Message-Type=DISCOVER,
// Client-Identifier, Parameter-Request-List, terminated by End.
func EncodeDiscover(mac net.HardwareAddr, xid uint32) []byte {
	h := Header{
		Op:     OpBootRequest,
		HType:  HTypeEthernet,
		HLen:   HLenEthernet,
		XID:    xid,
		Flags:  FlagBroadcast,
		ChAddr: mac,
	}

	buf := make([]byte, HeaderLen, HeaderLen+4+32)
	encodeHeader(buf, h)
	buf = append(buf, MagicCookie[:]...)

	buf = encodeOptions(buf, []option{
		{OptMessageType, []byte{uint8(MessageTypeDiscover)}},
		{OptClientIdentifier, clientIdentifier(mac)},
		{OptParameterRequestList, defaultParameterRequestList()},
	})

	return buf
}

// EncodeRequest builds the "selecting" form of a DHCPREQUEST message:
// op=BOOTREQUEST, ciaddr=0.0.0.0, the broadcast flag set, and options
// Message-Type=REQUEST, Requested-IP-Address, Server-Identifier,
// Client-Identifier, Parameter-Request-List.
func EncodeRequest(mac net.HardwareAddr, xid uint32, offeredIP, serverID net.IP) []byte {
	h := Header{
		Op:     OpBootRequest,
		HType:  HTypeEthernet,
		HLen:   HLenEthernet,
		XID:    xid,
		Flags:  FlagBroadcast,
		ChAddr: mac,
	}

	buf := make([]byte, HeaderLen, HeaderLen+4+48)
	encodeHeader(buf, h)
	buf = append(buf, MagicCookie[:]...)

	buf = encodeOptions(buf, []option{
		{OptMessageType, []byte{uint8(MessageTypeRequest)}},
		{OptRequestedIPAddress, offeredIP.To4()},
		{OptServerIdentifier, serverID.To4()},
		{OptClientIdentifier, clientIdentifier(mac)},
		{OptParameterRequestList, defaultParameterRequestList()},
	})

	return buf
}
