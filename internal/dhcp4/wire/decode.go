package wire

import (
	"bytes"
	"fmt"
)

// Decode parses a server DHCPv4 message: the fixed header, the magic
// cookie, and the option area. It returns [ErrMalformedPacket] (wrapped
// with context) if the cookie is absent, an option length would read past
// the end of buf, or a recognized option's payload violates its typed
// constraint. Options this client does not recognize are preserved
// opaquely and never fail decoding.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < HeaderLen+len(MagicCookie) {
		return nil, fmt.Errorf("%w: buffer too short for header and cookie (%d bytes)", ErrMalformedPacket, len(buf))
	}

	cookieStart := HeaderLen
	if !bytes.Equal(buf[cookieStart:cookieStart+4], MagicCookie[:]) {
		return nil, fmt.Errorf("%w: missing magic cookie", ErrMalformedPacket)
	}

	opts, err := decodeOptions(buf[cookieStart+4:])
	if err != nil {
		return nil, err
	}

	return &Message{
		Header:  decodeHeader(buf[:HeaderLen]),
		Options: opts,
	}, nil
}
