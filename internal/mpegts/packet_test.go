package mpegts

import "testing"

func makePacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, PacketSize188)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F) // payload only
	if pusi {
		buf[1] |= 0x40
	}
	copy(buf[4:], payload)
	return buf
}

func makePacketWithAF(pid uint16, cc uint8, afLen int, payload []byte) []byte {
	buf := make([]byte, PacketSize188)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	if len(payload) > 0 {
		buf[3] = 0x30 | (cc & 0x0F) // adaptation + payload
	} else {
		buf[3] = 0x20 | (cc & 0x0F) // adaptation only
	}
	buf[4] = byte(afLen)
	offset := 5 + afLen
	if offset < PacketSize188 {
		copy(buf[offset:], payload)
	}
	return buf
}

func TestParsePacket_Normal(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 5, false, []byte{0x01, 0x02, 0x03})

	p, err := ParsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if p.Header.PID != 0x100 {
		t.Errorf("PID = 0x%X, want 0x100", p.Header.PID)
	}
	if p.Header.ContinuityCounter != 5 {
		t.Errorf("CC = %d, want 5", p.Header.ContinuityCounter)
	}
	if p.Header.PayloadUnitStartIndicator {
		t.Error("PUSI should be false")
	}
	if p.Header.AdaptationFieldControl != 0x01 {
		t.Errorf("AFC = %d, want 1", p.Header.AdaptationFieldControl)
	}
	if len(p.Payload) != 184 {
		t.Errorf("payload length = %d, want 184", len(p.Payload))
	}
	if p.Payload[0] != 0x01 || p.Payload[1] != 0x02 || p.Payload[2] != 0x03 {
		t.Error("payload content mismatch")
	}
}

func TestParsePacket_PUSIAndPriority(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x1E1, 0, true, nil)
	buf[1] |= 0x20 // transport_priority

	p, err := ParsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Header.PayloadUnitStartIndicator {
		t.Error("PUSI should be true")
	}
	if !p.Header.TransportPriority {
		t.Error("transport priority should be true")
	}
	if p.Header.PID != 0x1E1 {
		t.Errorf("PID = 0x%X, want 0x1E1", p.Header.PID)
	}
}

func TestParsePacket_PayloadCopied(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 0, false, []byte{0xAA})

	p, err := ParsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	buf[4] = 0xBB
	if p.Payload[0] != 0xAA {
		t.Error("payload must not alias the source buffer")
	}
}

func TestParsePacket_AdaptationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		afLen      int
		payload    []byte
		wantPayLen int
	}{
		{"af_1_byte", 1, []byte{0xAA}, 188 - 6},
		{"af_10_bytes", 10, []byte{0xBB}, 188 - 15},
		{"af_183_bytes_no_payload", 183, nil, 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := makePacketWithAF(0x100, 0, tc.afLen, tc.payload)
			p, err := ParsePacket(buf)
			if err != nil {
				t.Fatal(err)
			}
			if len(p.Payload) != tc.wantPayLen {
				t.Errorf("payload length = %d, want %d", len(p.Payload), tc.wantPayLen)
			}
			if tc.wantPayLen > 0 && p.Payload[0] != tc.payload[0] {
				t.Error("payload content mismatch")
			}
		})
	}
}

func TestParsePacket_ReservedAFC(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 0, false, []byte{0x01})
	buf[3] = 0x00 // adaptation_field_control reserved

	p, err := ParsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if p.Payload != nil {
		t.Error("reserved AFC must carry no payload")
	}
}

func TestParsePacket_BadSyncByte(t *testing.T) {
	t.Parallel()
	buf := make([]byte, PacketSize188)
	buf[0] = 0x00

	_, err := ParsePacket(buf)
	if err == nil {
		t.Fatal("expected error for bad sync byte")
	}
}

func TestParsePacket_WrongSize(t *testing.T) {
	t.Parallel()
	if _, err := ParsePacket([]byte{0x47, 0x00, 0x00}); err == nil {
		t.Error("expected error for wrong packet size")
	}
}

func TestParsePacket_MaxPID(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x1FFF, 0, false, nil)
	p, err := ParsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if p.Header.PID != 0x1FFF {
		t.Errorf("PID = 0x%X, want 0x1FFF", p.Header.PID)
	}
}

func FuzzParsePacket(f *testing.F) {
	f.Add(makePacket(0x100, 0, true, []byte{0x00, 0x00, 0x01}))
	f.Add(makePacketWithAF(0x1000, 3, 20, []byte{0xFF}))

	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := ParsePacket(data)
		if err != nil {
			return
		}
		if len(p.Payload) > PacketSize188-4 {
			t.Fatalf("payload %d bytes exceeds packet body", len(p.Payload))
		}
		if p.Header.PID > 0x1FFF {
			t.Fatalf("PID %d out of 13-bit range", p.Header.PID)
		}
	})
}
