package mpegts

import "fmt"

// ErrSync is wrapped by ParsePacket when the sync byte is wrong.
var ErrSync = fmt.Errorf("mpegts: invalid sync byte")

// ParsePacket decodes one 188-byte canonical packet body. In 192-byte
// framing the caller positions body at the sync byte, past the 4-byte
// TP_extra_header. The payload window is copied out so the source buffer
// may be reused immediately.
func ParsePacket(body []byte) (*Packet, error) {
	if len(body) != PacketSize188 {
		return nil, fmt.Errorf("mpegts: packet body %d bytes, expected %d", len(body), PacketSize188)
	}
	if body[0] != syncByte {
		return nil, fmt.Errorf("%w 0x%02X", ErrSync, body[0])
	}

	p := &Packet{
		Header: PacketHeader{
			PayloadUnitStartIndicator: body[1]&0x40 != 0,
			TransportPriority:         body[1]&0x20 != 0,
			PID:                       uint16(body[1]&0x1F)<<8 | uint16(body[2]),
			AdaptationFieldControl:    (body[3] >> 4) & 0x03,
			ContinuityCounter:         body[3] & 0x0F,
		},
	}

	var start int
	switch p.Header.AdaptationFieldControl {
	case 0x00:
		// Reserved: no payload.
		return p, nil
	case 0x01:
		start = 4
	case 0x02, 0x03:
		afLen := int(body[4])
		start = 5 + afLen
		if start >= PacketSize188 {
			// Adaptation field fills the packet.
			return p, nil
		}
	}

	p.Payload = make([]byte, PacketSize188-start)
	copy(p.Payload, body[start:])
	return p, nil
}
