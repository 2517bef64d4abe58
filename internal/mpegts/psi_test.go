package mpegts

import (
	"encoding/binary"
	"errors"
	"testing"
)

type patEntry struct{ num, pid uint16 }

// buildPAT constructs a valid PAT section with CRC32.
func buildPAT(tsID uint16, version uint8, current bool, programs []patEntry) []byte {
	sectionLength := 5 + len(programs)*4 + 4

	data := make([]byte, 3+sectionLength)
	data[0] = tableIDPAT
	data[1] = 0xB0 | byte(sectionLength>>8)&0x0F // section_syntax_indicator=1
	data[2] = byte(sectionLength)
	data[3] = byte(tsID >> 8)
	data[4] = byte(tsID)
	data[5] = 0xC0 | (version&0x1F)<<1
	if current {
		data[5] |= 0x01
	}
	data[6] = 0x00 // section_number
	data[7] = 0x00 // last_section_number

	offset := 8
	for _, p := range programs {
		data[offset] = byte(p.num >> 8)
		data[offset+1] = byte(p.num)
		data[offset+2] = 0xE0 | byte(p.pid>>8)&0x1F
		data[offset+3] = byte(p.pid)
		offset += 4
	}

	binary.BigEndian.PutUint32(data[offset:], CRC32(data[:offset]))
	return data
}

type pmtEntry struct {
	streamType uint8
	pid        uint16
	esInfo     []byte
}

// buildPMT constructs a valid PMT section with CRC32.
func buildPMT(programNum uint16, version uint8, current bool, pcrPID uint16, streams []pmtEntry) []byte {
	esLen := 0
	for _, s := range streams {
		esLen += 5 + len(s.esInfo)
	}
	sectionLength := 9 + esLen + 4

	data := make([]byte, 3+sectionLength)
	data[0] = tableIDPMT
	data[1] = 0xB0 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	data[3] = byte(programNum >> 8)
	data[4] = byte(programNum)
	data[5] = 0xC0 | (version&0x1F)<<1
	if current {
		data[5] |= 0x01
	}
	data[6] = 0x00
	data[7] = 0x00
	data[8] = 0xE0 | byte(pcrPID>>8)&0x1F
	data[9] = byte(pcrPID)
	data[10] = 0xF0 // program_info_length = 0
	data[11] = 0x00

	offset := 12
	for _, s := range streams {
		data[offset] = s.streamType
		data[offset+1] = 0xE0 | byte(s.pid>>8)&0x1F
		data[offset+2] = byte(s.pid)
		data[offset+3] = 0xF0 | byte(len(s.esInfo)>>8)&0x0F
		data[offset+4] = byte(len(s.esInfo))
		copy(data[offset+5:], s.esInfo)
		offset += 5 + len(s.esInfo)
	}

	binary.BigEndian.PutUint32(data[offset:], CRC32(data[:offset]))
	return data
}

func TestParsePATSection_OneProgram(t *testing.T) {
	t.Parallel()
	data := buildPAT(1, 3, true, []patEntry{{1, 0x1000}})

	sec, err := ParsePATSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if sec.TransportStreamID != 1 {
		t.Errorf("transport stream ID = %d, want 1", sec.TransportStreamID)
	}
	if sec.VersionNumber != 3 {
		t.Errorf("version = %d, want 3", sec.VersionNumber)
	}
	if !sec.CurrentNext {
		t.Error("current_next should be set")
	}
	if len(sec.Programs) != 1 {
		t.Fatalf("expected 1 program, got %d", len(sec.Programs))
	}
	if sec.Programs[0].ProgramNumber != 1 || sec.Programs[0].PMTPID != 0x1000 {
		t.Errorf("program = %+v, want {1 0x1000}", sec.Programs[0])
	}
}

func TestParsePATSection_NetworkPID(t *testing.T) {
	t.Parallel()
	data := buildPAT(1, 0, true, []patEntry{{0, 0x10}, {1, 0x100}, {2, 0x200}})

	sec, err := ParsePATSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if !sec.HasNetworkPID || sec.NetworkPID != 0x10 {
		t.Errorf("network PID = %d (%v), want 0x10", sec.NetworkPID, sec.HasNetworkPID)
	}
	if len(sec.Programs) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(sec.Programs))
	}
	if sec.Programs[0].ProgramNumber != 1 {
		t.Error("program order not preserved")
	}
}

func TestParsePATSection_NotCurrent(t *testing.T) {
	t.Parallel()
	data := buildPAT(1, 0, false, []patEntry{{1, 0x100}})

	sec, err := ParsePATSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if sec.CurrentNext {
		t.Error("current_next should be clear")
	}
}

func TestParsePATSection_WrongTableID(t *testing.T) {
	t.Parallel()
	data := buildPAT(1, 0, true, []patEntry{{1, 0x100}})
	data[0] = tableIDPMT

	_, err := ParsePATSection(data)
	if !errors.Is(err, ErrTableID) {
		t.Errorf("expected ErrTableID, got %v", err)
	}
}

func TestParsePATSection_BadCRC(t *testing.T) {
	t.Parallel()
	data := buildPAT(1, 0, true, []patEntry{{1, 0x100}})
	data[len(data)-1] ^= 0xFF

	_, err := ParsePATSection(data)
	if !errors.Is(err, ErrCRC32) {
		t.Errorf("expected ErrCRC32, got %v", err)
	}
}

func TestParsePATSection_Truncated(t *testing.T) {
	t.Parallel()
	data := buildPAT(1, 0, true, []patEntry{{1, 0x100}})

	if _, err := ParsePATSection(data[:8]); err == nil {
		t.Error("expected error for truncated section")
	}
	data[2] = 0xFF // section_length far beyond payload
	if _, err := ParsePATSection(data); err == nil {
		t.Error("expected error for oversized section_length")
	}
}

func TestParsePMTSection_H264AAC(t *testing.T) {
	t.Parallel()
	data := buildPMT(1, 5, true, 0x100, []pmtEntry{
		{StreamTypeH264, 0x100, nil},
		{StreamTypeADTSAAC, 0x101, nil},
	})

	sec, err := ParsePMTSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if sec.ProgramNumber != 1 {
		t.Errorf("program number = %d, want 1", sec.ProgramNumber)
	}
	if sec.VersionNumber != 5 {
		t.Errorf("version = %d, want 5", sec.VersionNumber)
	}
	if sec.PCRPID != 0x100 {
		t.Errorf("PCR PID = 0x%X, want 0x100", sec.PCRPID)
	}
	if len(sec.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(sec.Streams))
	}
	if sec.Streams[0].StreamType != StreamTypeH264 || sec.Streams[0].ElementaryPID != 0x100 {
		t.Errorf("stream 0 = %+v", sec.Streams[0])
	}
	if sec.Streams[1].StreamType != StreamTypeADTSAAC || sec.Streams[1].ElementaryPID != 0x101 {
		t.Errorf("stream 1 = %+v", sec.Streams[1])
	}
}

func TestParsePMTSection_ESInfo(t *testing.T) {
	t.Parallel()
	desc := []byte{0x05, 0x04, 'I', 'D', '3', ' '} // registration descriptor
	data := buildPMT(1, 0, true, 0x100, []pmtEntry{
		{StreamTypePESPrivateData, 0x102, desc},
		{StreamTypeH264, 0x100, nil},
	})

	sec, err := ParsePMTSection(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(sec.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(sec.Streams))
	}
	if string(sec.Streams[0].ESInfo) != string(desc) {
		t.Errorf("ES info = %X, want %X", sec.Streams[0].ESInfo, desc)
	}
	if sec.Streams[1].ESInfo != nil {
		t.Error("stream without descriptors should have nil ES info")
	}
}

func TestParsePMTSection_WrongTableID(t *testing.T) {
	t.Parallel()
	data := buildPMT(1, 0, true, 0x100, []pmtEntry{{StreamTypeH264, 0x100, nil}})
	data[0] = tableIDPAT
	// CRC no longer matches either, but table_id is checked first.
	_, err := ParsePMTSection(data)
	if !errors.Is(err, ErrTableID) {
		t.Errorf("expected ErrTableID, got %v", err)
	}
}

func TestParsePMTSection_BadCRC(t *testing.T) {
	t.Parallel()
	data := buildPMT(1, 0, true, 0x100, []pmtEntry{{StreamTypeH264, 0x100, nil}})
	data[len(data)-1] ^= 0xFF

	_, err := ParsePMTSection(data)
	if !errors.Is(err, ErrCRC32) {
		t.Errorf("expected ErrCRC32, got %v", err)
	}
}
