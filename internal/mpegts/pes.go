package mpegts

import "fmt"

// ErrMalformedPES is wrapped by ParsePES for packets that fail structural
// validation. The caller drops the packet; later PES on the same PID still
// parse.
var ErrMalformedPES = fmt.Errorf("mpegts: malformed PES")

// payloadlessStreamID reports whether id identifies a stream whose PES
// packets carry no elementary payload for downstream parsers:
// program_stream_map (0xBC), padding_stream (0xBE), private_stream_2 (0xBF),
// ECM (0xF0), EMM (0xF1), DSMCC (0xF2), H.222.1 type E (0xF8), and
// program_stream_directory (0xFF).
func payloadlessStreamID(id uint8) bool {
	switch id {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return true
	}
	return false
}

// ParsePES decodes the header of one reassembled PES packet and computes the
// payload window. PES_packet_length of zero means the payload runs to the end
// of the buffer; that is the norm for TS-carried video, where the next
// payload_unit_start is the only reliable delimiter.
func ParsePES(buf []byte) (*PESHeader, error) {
	if len(buf) < 6 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPES, len(buf))
	}
	if prefix := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]); prefix != 0x000001 {
		return nil, fmt.Errorf("%w: start code prefix 0x%06X", ErrMalformedPES, prefix)
	}

	h := &PESHeader{
		StreamID:     buf[3],
		PacketLength: int(buf[4])<<8 | int(buf[5]),
	}

	if payloadlessStreamID(h.StreamID) {
		return h, nil
	}
	h.HasPayload = true

	if len(buf) < 9 {
		return nil, fmt.Errorf("%w: optional header truncated", ErrMalformedPES)
	}

	ptsDTSFlags := (buf[7] >> 6) & 0x03
	headerDataLength := int(buf[8])

	switch ptsDTSFlags {
	case 0x02:
		if len(buf) < 14 {
			return nil, fmt.Errorf("%w: PTS truncated", ErrMalformedPES)
		}
		h.HasPTS = true
		h.PTS = decodeTimestamp(buf[9:14])
		h.DTS = h.PTS
	case 0x03:
		if len(buf) < 19 {
			return nil, fmt.Errorf("%w: DTS truncated", ErrMalformedPES)
		}
		h.HasPTS = true
		h.PTS = decodeTimestamp(buf[9:14])
		h.DTS = decodeTimestamp(buf[14:19])
	}

	h.PayloadStart = 9 + headerDataLength
	if h.PayloadStart > len(buf) {
		return nil, fmt.Errorf("%w: header data length %d exceeds packet", ErrMalformedPES, headerDataLength)
	}

	if h.PacketLength != 0 {
		if h.PacketLength < 3+headerDataLength {
			return nil, fmt.Errorf("%w: packet length %d < header length %d",
				ErrMalformedPES, h.PacketLength, 3+headerDataLength)
		}
		h.PayloadLength = h.PacketLength - 3 - headerDataLength
		if h.PayloadStart+h.PayloadLength > len(buf) {
			h.PayloadLength = len(buf) - h.PayloadStart
		}
	} else {
		h.PayloadLength = len(buf) - h.PayloadStart
	}

	return h, nil
}

// decodeTimestamp extracts a 33-bit PTS or DTS from its 5-byte packing.
func decodeTimestamp(bs []byte) int64 {
	return int64(bs[0]&0x0E)<<29 |
		int64(bs[1])<<22 |
		int64(bs[2]&0xFE)<<14 |
		int64(bs[3])<<7 |
		int64(bs[4]&0xFE)>>1
}
