package statemachine_test

import (
	"net"
	"testing"
	"time"

	"github.com/hhubb22/herald/internal/dhcp4/statemachine"
	"github.com/hhubb22/herald/internal/dhcp4/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMAC = net.HardwareAddr{0x00, 0x0c, 0x29, 0xa8, 0x92, 0xf4}

func sequentialXID(start uint32) func() uint32 {
	next := start
	return func() uint32 {
		x := next
		next++
		return x
	}
}

func buildOffer(xid uint32, yiaddr, serverID, mask, router, dns net.IP, leaseSecs uint32) []byte {
	buf := make([]byte, wire.HeaderLen)
	buf[0] = wire.OpBootReply
	buf[1] = wire.HTypeEthernet
	buf[2] = wire.HLenEthernet
	be := func(v uint32) []byte { return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)} }
	copy(buf[4:8], be(xid))
	copy(buf[16:20], yiaddr.To4())
	copy(buf[28:34], testMAC)
	buf = append(buf, wire.MagicCookie[:]...)
	buf = append(buf, wire.OptMessageType, 1, byte(wire.MessageTypeOffer))
	if serverID != nil {
		buf = append(buf, wire.OptServerIdentifier, 4)
		buf = append(buf, serverID.To4()...)
	}
	if mask != nil {
		buf = append(buf, wire.OptSubnetMask, 4)
		buf = append(buf, mask.To4()...)
	}
	if router != nil {
		buf = append(buf, wire.OptRouter, 4)
		buf = append(buf, router.To4()...)
	}
	if dns != nil {
		buf = append(buf, wire.OptDNSServers, 4)
		buf = append(buf, dns.To4()...)
	}
	if leaseSecs != 0 {
		buf = append(buf, wire.OptLeaseTime, 4)
		buf = append(buf, be(leaseSecs)...)
	}
	buf = append(buf, wire.OptEnd)
	return buf
}

func buildAckOrNak(xid uint32, mt wire.MessageType, yiaddr, serverID, mask, router, dns net.IP, leaseSecs uint32) []byte {
	buf := buildOffer(xid, yiaddr, serverID, mask, router, dns, leaseSecs)
	// Overwrite the message type byte: it's the 3rd byte of the first
	// option (code, length, value) right after the cookie.
	idx := wire.HeaderLen + 4 + 2
	buf[idx] = byte(mt)
	return buf
}

func TestS1_HappyDORA(t *testing.T) {
	m := statemachine.New(testMAC, statemachine.WithXID(0x1111))

	action, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)
	send, ok := action.(statemachine.Send)
	require.True(t, ok)
	assert.Equal(t, 67, send.Destination.Port)
	assert.Equal(t, statemachine.StateSelecting, m.State())

	offer := buildOffer(0x1111,
		net.IPv4(192, 168, 1, 100),
		net.IPv4(192, 168, 1, 1),
		net.IPv4(255, 255, 255, 0),
		net.IPv4(192, 168, 1, 1),
		net.IPv4(8, 8, 8, 8),
		3600,
	)

	action, err = m.HandleEvent(statemachine.PacketReceived{Data: offer})
	require.NoError(t, err)
	send, ok = action.(statemachine.Send)
	require.True(t, ok)
	assert.Equal(t, 67, send.Destination.Port)
	assert.Equal(t, statemachine.StateRequesting, m.State())

	ack := buildAckOrNak(0x1111, wire.MessageTypeAck,
		net.IPv4(192, 168, 1, 100),
		net.IPv4(192, 168, 1, 1),
		net.IPv4(255, 255, 255, 0),
		net.IPv4(192, 168, 1, 1),
		net.IPv4(8, 8, 8, 8),
		3600,
	)

	action, err = m.HandleEvent(statemachine.PacketReceived{Data: ack})
	require.NoError(t, err)
	store, ok := action.(statemachine.StoreLease)
	require.True(t, ok)
	assert.Equal(t, statemachine.StateBound, m.State())

	lease := store.Lease
	assert.True(t, lease.OfferedIP.Equal(net.IPv4(192, 168, 1, 100)))
	assert.True(t, lease.SubnetMask.Equal(net.IPv4(255, 255, 255, 0)))
	require.Len(t, lease.Routers, 1)
	assert.True(t, lease.Routers[0].Equal(net.IPv4(192, 168, 1, 1)))
	require.Len(t, lease.DNSServers, 1)
	assert.True(t, lease.DNSServers[0].Equal(net.IPv4(8, 8, 8, 8)))
	assert.Equal(t, 3600*time.Second, lease.LeaseDuration)
	assert.True(t, lease.ServerIdentifier.Equal(net.IPv4(192, 168, 1, 1)))
}

func TestS2_NAKRestart(t *testing.T) {
	xidGen := sequentialXID(0xAAAB)
	m := statemachine.New(testMAC, statemachine.WithXIDGenerator(xidGen), statemachine.WithXID(0xAAAA))

	_, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)

	offer := buildOffer(0xAAAA, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0)
	_, err = m.HandleEvent(statemachine.PacketReceived{Data: offer})
	require.NoError(t, err)
	require.Equal(t, statemachine.StateRequesting, m.State())

	x1 := m.XID()

	nak := buildAckOrNak(x1, wire.MessageTypeNak, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0)
	action, err := m.HandleEvent(statemachine.PacketReceived{Data: nak})
	require.NoError(t, err)

	assert.Equal(t, statemachine.StateSelecting, m.State())
	assert.NotEqual(t, x1, m.XID())

	send, ok := action.(statemachine.Send)
	require.True(t, ok)

	decoded, err := wire.Decode(send.Packet)
	require.NoError(t, err)
	assert.Equal(t, m.XID(), decoded.XID)
}

func TestS3_StaleXIDFilter(t *testing.T) {
	m := statemachine.New(testMAC, statemachine.WithXID(0x1))
	_, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)

	offer := buildOffer(0x2, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0)
	action, err := m.HandleEvent(statemachine.PacketReceived{Data: offer})
	require.NoError(t, err)

	wait, ok := action.(statemachine.Wait)
	require.True(t, ok)
	assert.Equal(t, statemachine.DefaultOfferWait, wait.Duration)
	assert.Equal(t, statemachine.StateSelecting, m.State())
}

func TestS4_SelectingTimeout(t *testing.T) {
	m := statemachine.New(testMAC, statemachine.WithXID(0x42))
	_, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)
	require.Equal(t, statemachine.StateSelecting, m.State())

	action, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)

	assert.Equal(t, statemachine.StateSelecting, m.State())
	assert.Equal(t, uint32(0x42), m.XID())

	send, ok := action.(statemachine.Send)
	require.True(t, ok)
	decoded, err := wire.Decode(send.Packet)
	require.NoError(t, err)
	mt, ok := decoded.Options.MessageType()
	require.True(t, ok)
	assert.Equal(t, wire.MessageTypeDiscover, mt)
}

func TestS5_UnparseablePacket(t *testing.T) {
	m := statemachine.New(testMAC, statemachine.WithXID(0x1))
	_, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)

	_, err = m.HandleEvent(statemachine.PacketReceived{Data: []byte{0x00, 0x01, 0x02}})
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrMalformedPacket)
}

func TestS6_OfferWithoutServerID(t *testing.T) {
	m := statemachine.New(testMAC, statemachine.WithXID(0x1))
	_, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)

	offer := buildOffer(0x1, net.IPv4(10, 0, 0, 5), nil, nil, nil, nil, 0)
	action, err := m.HandleEvent(statemachine.PacketReceived{Data: offer})
	require.NoError(t, err)

	wait, ok := action.(statemachine.Wait)
	require.True(t, ok)
	assert.Equal(t, statemachine.DefaultOfferWait, wait.Duration)
	assert.Equal(t, statemachine.StateSelecting, m.State())
}

func TestInfiniteLease(t *testing.T) {
	m := statemachine.New(testMAC, statemachine.WithXID(0x5))
	_, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)

	offer := buildOffer(0x5, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0)
	_, err = m.HandleEvent(statemachine.PacketReceived{Data: offer})
	require.NoError(t, err)

	ack := buildAckOrNak(0x5, wire.MessageTypeAck, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0xFFFFFFFF)
	action, err := m.HandleEvent(statemachine.PacketReceived{Data: ack})
	require.NoError(t, err)

	store := action.(statemachine.StoreLease)
	assert.True(t, store.Lease.Infinite)
}

func TestDeterminism(t *testing.T) {
	events := []statemachine.Event{
		statemachine.Timeout{},
		statemachine.PacketReceived{Data: buildOffer(0x77, net.IPv4(10, 0, 0, 9), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0)},
		statemachine.PacketReceived{Data: buildAckOrNak(0x77, wire.MessageTypeAck, net.IPv4(10, 0, 0, 9), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0)},
	}

	run := func() []string {
		m := statemachine.New(testMAC, statemachine.WithXID(0x77))
		var kinds []string
		for _, e := range events {
			a, err := m.HandleEvent(e)
			require.NoError(t, err)
			kinds = append(kinds, actionKind(a))
		}
		return kinds
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func actionKind(a statemachine.Action) string {
	switch a.(type) {
	case statemachine.Send:
		return "Send"
	case statemachine.Wait:
		return "Wait"
	case statemachine.StoreLease:
		return "StoreLease"
	case statemachine.Exit:
		return "Exit"
	default:
		return "Unknown"
	}
}

func TestWithServerPort(t *testing.T) {
	m := statemachine.New(testMAC, statemachine.WithXID(0x1), statemachine.WithServerPort(6767))

	action, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)

	send, ok := action.(statemachine.Send)
	require.True(t, ok)
	assert.Equal(t, 6767, send.Destination.Port)
}

func TestBoundExits(t *testing.T) {
	m := statemachine.New(testMAC, statemachine.WithXID(0x9))
	_, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)

	offer := buildOffer(0x9, net.IPv4(10, 0, 0, 2), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0)
	_, err = m.HandleEvent(statemachine.PacketReceived{Data: offer})
	require.NoError(t, err)

	ack := buildAckOrNak(0x9, wire.MessageTypeAck, net.IPv4(10, 0, 0, 2), net.IPv4(10, 0, 0, 1), nil, nil, nil, 0)
	_, err = m.HandleEvent(statemachine.PacketReceived{Data: ack})
	require.NoError(t, err)
	require.Equal(t, statemachine.StateBound, m.State())

	action, err := m.HandleEvent(statemachine.Timeout{})
	require.NoError(t, err)
	_, ok := action.(statemachine.Exit)
	assert.True(t, ok)
}
