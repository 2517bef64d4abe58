// Command gen-stream writes a synthetic MPEG transport stream for exercising
// the demuxer without real media: one program with an H.264 PID, an AAC PID,
// a timed ID3 PID, and a SCTE-35 PID carrying periodic splice inserts. The
// elementary payloads are filler bytes; the TS/PES/PSI framing is real.
//
//	gen-stream --out stream.ts --seconds 10
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/zsiec/tsdemux/internal/mpegts"
	"github.com/zsiec/tsdemux/internal/scte35"
)

const (
	pmtPID    = 0x1000
	videoPID  = 0x100
	audioPID  = 0x101
	id3PID    = 0x102
	scte35PID = 0x1F4

	videoFPS     = 25
	audioPerSec  = 43 // ~1024 samples at 44.1kHz
	scte35Every  = 5  // seconds
	videoPayload = 600
	audioPayload = 200
	ticksPerSec  = 90000
)

func main() {
	outFlag := flag.String("out", "stream.ts", "Output file")
	secondsFlag := flag.Int("seconds", 10, "Stream duration in seconds")
	m2tsFlag := flag.Bool("m2ts", false, "Write 192-byte BDAV framing")
	flag.Parse()

	w := &tsWriter{m2ts: *m2tsFlag}

	for sec := 0; sec < *secondsFlag; sec++ {
		w.writeSection(mpegts.PIDPAT, buildPAT())
		w.writeSection(pmtPID, buildPMT())

		for f := 0; f < videoFPS; f++ {
			pts := int64(sec*ticksPerSec + f*ticksPerSec/videoFPS)
			w.writePES(videoPID, 0xE0, pts, fill(videoPayload, byte(f)))
		}
		for f := 0; f < audioPerSec; f++ {
			pts := int64(sec*ticksPerSec + f*ticksPerSec/audioPerSec)
			w.writePES(audioPID, 0xC0, pts, fill(audioPayload, byte(f)))
		}
		w.writePES(id3PID, 0xBD, int64(sec*ticksPerSec), id3Tag(sec))

		if sec%scte35Every == 0 {
			w.writeSection(scte35PID, spliceInsert(uint32(sec/scte35Every+1), sec%2 == 0))
		}
	}

	if err := os.WriteFile(*outFlag, w.buf, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *outFlag, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s: %d bytes, %d packets\n", *outFlag, len(w.buf), w.packets)
}

func fill(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func id3Tag(sec int) []byte {
	// An ID3v2.4 tag header declaring a 10-byte body of filler bytes; enough
	// for framing tests.
	tag := []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0A}
	return append(tag, fill(10, byte(sec))...)
}

func spliceInsert(eventID uint32, out bool) []byte {
	sis := &scte35.SpliceInfoSection{
		Tier: 0xFFF,
		SpliceCommand: &scte35.SpliceInsert{
			SpliceEventID:         eventID,
			OutOfNetworkIndicator: out,
			SpliceImmediateFlag:   true,
			BreakDuration:         &scte35.BreakDuration{AutoReturn: true, Duration: 30 * ticksPerSec},
		},
	}
	return sis.Encode()
}

// tsWriter packetizes sections and PES into transport packets, maintaining
// per-PID continuity counters.
type tsWriter struct {
	buf     []byte
	cc      map[uint16]byte
	packets int
	m2ts    bool
}

func (w *tsWriter) nextCC(pid uint16) byte {
	if w.cc == nil {
		w.cc = make(map[uint16]byte)
	}
	cc := w.cc[pid]
	w.cc[pid] = (cc + 1) & 0x0F
	return cc
}

func (w *tsWriter) emit(pkt []byte) {
	if w.m2ts {
		w.buf = append(w.buf, 0x00, 0x00, 0x00, 0x00) // TP_extra_header
	}
	w.buf = append(w.buf, pkt...)
	w.packets++
}

// writeSection emits one PSI section with its pointer field, padded with
// 0xFF stuffing. Sections are kept under one packet.
func (w *tsWriter) writeSection(pid uint16, section []byte) {
	pkt := make([]byte, 188)
	pkt[0] = 0x47
	pkt[1] = 0x40 | byte(pid>>8)&0x1F
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | w.nextCC(pid)
	pkt[4] = 0x00 // pointer_field
	n := copy(pkt[5:], section)
	for i := 5 + n; i < 188; i++ {
		pkt[i] = 0xFF
	}
	w.emit(pkt)
}

// writePES wraps data in a PES packet with a PTS and splits it across as
// many transport packets as needed, stuffing the last one with an
// adaptation field so the payload window stays exact.
func (w *tsWriter) writePES(pid uint16, streamID byte, pts int64, data []byte) {
	pes := buildPES(streamID, pts, data)

	first := true
	for len(pes) > 0 {
		pkt := make([]byte, 188)
		pkt[0] = 0x47
		pkt[1] = byte(pid>>8) & 0x1F
		if first {
			pkt[1] |= 0x40
		}
		pkt[2] = byte(pid)

		if len(pes) >= 184 {
			pkt[3] = 0x10 | w.nextCC(pid)
			copy(pkt[4:], pes[:184])
			pes = pes[184:]
		} else {
			afLen := 183 - len(pes)
			pkt[3] = 0x30 | w.nextCC(pid)
			pkt[4] = byte(afLen)
			for i := 6; i < 5+afLen; i++ {
				pkt[i] = 0xFF
			}
			copy(pkt[5+afLen:], pes)
			pes = nil
		}

		w.emit(pkt)
		first = false
	}
}

func buildPES(streamID byte, pts int64, data []byte) []byte {
	packetLength := 3 + 5 + len(data)
	if streamID == 0xE0 {
		packetLength = 0 // video: unbounded
	}

	buf := make([]byte, 0, 14+len(data))
	buf = append(buf, 0x00, 0x00, 0x01, streamID)
	buf = append(buf, byte(packetLength>>8), byte(packetLength))
	buf = append(buf, 0x80, 0x80, 0x05) // flags: PTS only
	buf = append(buf,
		0x20|byte((pts>>29)&0x0E)|0x01,
		byte(pts>>22),
		byte((pts>>14)&0xFE)|0x01,
		byte(pts>>7),
		byte((pts<<1)&0xFE)|0x01,
	)
	return append(buf, data...)
}

func buildPAT() []byte {
	data := make([]byte, 16)
	data[0] = 0x00
	data[1] = 0xB0
	data[2] = 13 // section_length
	data[4] = 0x01
	data[5] = 0xC1
	data[8] = 0x00
	data[9] = 0x01 // program_number 1
	data[10] = 0xE0 | byte(pmtPID>>8)&0x1F
	data[11] = byte(pmtPID & 0xFF)
	binary.BigEndian.PutUint32(data[12:], mpegts.CRC32(data[:12]))
	return data
}

func buildPMT() []byte {
	streams := []struct {
		streamType uint8
		pid        uint16
	}{
		{mpegts.StreamTypeH264, videoPID},
		{mpegts.StreamTypeADTSAAC, audioPID},
		{mpegts.StreamTypeID3, id3PID},
		{mpegts.StreamTypeSCTE35, scte35PID},
	}

	sectionLength := 9 + len(streams)*5 + 4
	data := make([]byte, 3+sectionLength)
	data[0] = 0x02
	data[1] = 0xB0 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	data[4] = 0x01 // program_number 1
	data[5] = 0xC1
	data[8] = 0xE0 | byte(videoPID>>8)&0x1F
	data[9] = byte(videoPID & 0xFF)
	data[10] = 0xF0

	offset := 12
	for _, s := range streams {
		data[offset] = s.streamType
		data[offset+1] = 0xE0 | byte(s.pid>>8)&0x1F
		data[offset+2] = byte(s.pid)
		data[offset+3] = 0xF0
		offset += 5
	}
	binary.BigEndian.PutUint32(data[offset:], mpegts.CRC32(data[:offset]))
	return data
}
