package mpegts

import (
	"errors"
	"testing"
)

// encodePTS encodes a 33-bit PTS/DTS value into 5 bytes with marker bits.
func encodePTS(marker byte, value int64) []byte {
	bs := make([]byte, 5)
	bs[0] = marker<<4 | byte((value>>29)&0x0E) | 0x01
	bs[1] = byte(value >> 22)
	bs[2] = byte((value>>14)&0xFE) | 0x01
	bs[3] = byte(value >> 7)
	bs[4] = byte((value<<1)&0xFE) | 0x01
	return bs
}

func buildPESPacket(streamID byte, pts, dts int64, hasPTS, hasDTS bool, data []byte) []byte {
	var optHeader []byte
	ptsDTSFlags := byte(0)
	if hasPTS && hasDTS {
		ptsDTSFlags = 3
		optHeader = append(optHeader, encodePTS(0x03, pts)...)
		optHeader = append(optHeader, encodePTS(0x01, dts)...)
	} else if hasPTS {
		ptsDTSFlags = 2
		optHeader = append(optHeader, encodePTS(0x02, pts)...)
	}

	headerDataLen := len(optHeader)
	packetLength := 3 + headerDataLen + len(data)
	if streamID == 0xE0 {
		packetLength = 0 // video: unbounded
	}

	buf := make([]byte, 0, 9+headerDataLen+len(data))
	buf = append(buf, 0x00, 0x00, 0x01) // start code
	buf = append(buf, streamID)
	buf = append(buf, byte(packetLength>>8), byte(packetLength))
	buf = append(buf, 0x80)                // marker bits
	buf = append(buf, ptsDTSFlags<<6)      // PTS_DTS_flags
	buf = append(buf, byte(headerDataLen)) // PES_header_data_length
	buf = append(buf, optHeader...)
	buf = append(buf, data...)
	return buf
}

func TestParsePES_PTSOnly(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xC0, 90000, 0, true, false, []byte{0xAA, 0xBB, 0xCC})

	h, err := ParsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.StreamID != 0xC0 {
		t.Errorf("stream ID = 0x%02X, want 0xC0", h.StreamID)
	}
	if !h.HasPTS {
		t.Fatal("expected PTS")
	}
	if h.PTS != 90000 {
		t.Errorf("PTS = %d, want 90000", h.PTS)
	}
	if h.DTS != 90000 {
		t.Errorf("DTS = %d, want 90000 (PTS-only packets inherit PTS)", h.DTS)
	}
	if h.PayloadLength != 3 {
		t.Errorf("payload length = %d, want 3", h.PayloadLength)
	}
	if got := buf[h.PayloadStart : h.PayloadStart+h.PayloadLength]; got[0] != 0xAA || got[2] != 0xCC {
		t.Errorf("payload window = %X", got)
	}
}

func TestParsePES_PTSAndDTS(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xE0, 2790000, 2782492, true, true, []byte{0x01, 0x02})

	h, err := ParsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.PTS != 2790000 {
		t.Errorf("PTS = %d, want 2790000", h.PTS)
	}
	if h.DTS != 2782492 {
		t.Errorf("DTS = %d, want 2782492", h.DTS)
	}
}

func TestParsePES_NoTimestamps(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xC0, 0, 0, false, false, []byte{0x01})

	h, err := ParsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.HasPTS {
		t.Error("HasPTS should be false")
	}
	if h.PayloadLength != 1 {
		t.Errorf("payload length = %d, want 1", h.PayloadLength)
	}
}

func TestParsePES_VideoUnboundedLength(t *testing.T) {
	t.Parallel()
	data := make([]byte, 500)
	for i := range data {
		data[i] = byte(i)
	}
	buf := buildPESPacket(0xE0, 90000, 0, true, false, data)

	h, err := ParsePES(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.PacketLength != 0 {
		t.Errorf("packet length = %d, want 0", h.PacketLength)
	}
	if h.PayloadLength != 500 {
		t.Errorf("payload length = %d, want 500", h.PayloadLength)
	}
}

func TestParsePES_PayloadlessStreamIDs(t *testing.T) {
	t.Parallel()
	for _, id := range []byte{0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF} {
		buf := []byte{0x00, 0x00, 0x01, id, 0x00, 0x04, 0xFF, 0xFF, 0xFF, 0xFF}
		h, err := ParsePES(buf)
		if err != nil {
			t.Fatalf("stream ID 0x%02X: %v", id, err)
		}
		if h.HasPayload {
			t.Errorf("stream ID 0x%02X should be payloadless", id)
		}
	}
}

func TestParsePES_InvalidStartCode(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xE0, 0, 0, false, false, []byte{0x01})
	buf[2] = 0x02

	_, err := ParsePES(buf)
	if !errors.Is(err, ErrMalformedPES) {
		t.Errorf("expected ErrMalformedPES, got %v", err)
	}
}

func TestParsePES_LengthShorterThanHeader(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xC0, 90000, 0, true, false, []byte{0x01})
	// PES_packet_length = 2 < 3 + PES_header_data_length.
	buf[4] = 0x00
	buf[5] = 0x02

	_, err := ParsePES(buf)
	if !errors.Is(err, ErrMalformedPES) {
		t.Errorf("expected ErrMalformedPES, got %v", err)
	}
}

func TestParsePES_TooShort(t *testing.T) {
	t.Parallel()
	if _, err := ParsePES([]byte{0x00, 0x00, 0x01}); err == nil {
		t.Error("expected error for short packet")
	}
}

func TestParsePES_KnownPTSValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pts  int64
	}{
		{"zero", 0},
		{"one_second", 90000},
		{"one_minute", 5400000},
		{"large", 8589934591}, // max 33-bit value
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := buildPESPacket(0xC0, tc.pts, 0, true, false, []byte{0x00})
			h, err := ParsePES(buf)
			if err != nil {
				t.Fatal(err)
			}
			if h.PTS != tc.pts {
				t.Errorf("PTS = %d, want %d", h.PTS, tc.pts)
			}
		})
	}
}

func TestDecodeTimestamp_Roundtrip(t *testing.T) {
	t.Parallel()
	for _, v := range []int64{0, 1, 90000, 2790000, 8589934591} {
		if got := decodeTimestamp(encodePTS(0x02, v)); got != v {
			t.Errorf("round-trip: got %d, want %d", got, v)
		}
	}
}

func FuzzParsePES(f *testing.F) {
	f.Add(buildPESPacket(0xE0, 90000, 89000, true, true, []byte{0xAA}))
	f.Add(buildPESPacket(0xC0, 90000, 0, true, false, []byte{0xBB}))

	f.Fuzz(func(t *testing.T, data []byte) {
		h, err := ParsePES(data)
		if err != nil {
			return
		}
		if !h.HasPayload {
			return
		}
		if h.PayloadStart+h.PayloadLength > len(data) {
			t.Fatalf("payload window [%d:%d] exceeds buffer %d",
				h.PayloadStart, h.PayloadStart+h.PayloadLength, len(data))
		}
		if h.HasPTS && (h.PTS < 0 || h.PTS > 8589934591) {
			t.Fatalf("PTS %d outside 33-bit range", h.PTS)
		}
	})
}
