package mpegts

import "fmt"

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// ErrTableID is wrapped by the section parsers when a section carries an
// unexpected table_id.
var ErrTableID = fmt.Errorf("mpegts: unexpected table_id")

// sectionBounds validates the generic section header shared by PAT and PMT
// and returns the exclusive end of the section (including CRC).
func sectionBounds(data []byte, minLen int) (int, error) {
	if len(data) < minLen {
		return 0, fmt.Errorf("mpegts: section too short (%d bytes)", len(data))
	}
	sectionLength := int(data[1]&0x0F)<<8 | int(data[2])
	end := 3 + sectionLength
	if end > len(data) {
		return 0, fmt.Errorf("mpegts: section_length %d exceeds payload", sectionLength)
	}
	return end, nil
}

// ParsePATSection decodes one PAT section, CRC included. The section layout:
//
//	[0]     table_id
//	[1-2]   section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
//	[3-4]   transport_stream_id
//	[5]     reserved(2) + version_number(5) + current_next_indicator(1)
//	[6]     section_number
//	[7]     last_section_number
//	[8..]   program records, 4 bytes each
//	[end-4] CRC32
func ParsePATSection(data []byte) (*PATSection, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("mpegts: empty PAT section")
	}
	if data[0] != tableIDPAT {
		return nil, fmt.Errorf("%w 0x%02X for PAT", ErrTableID, data[0])
	}

	end, err := sectionBounds(data, 12)
	if err != nil {
		return nil, fmt.Errorf("PAT: %w", err)
	}
	if err := verifyCRC32(data[:end]); err != nil {
		return nil, fmt.Errorf("PAT: %w", err)
	}

	sec := &PATSection{
		TransportStreamID: uint16(data[3])<<8 | uint16(data[4]),
		VersionNumber:     (data[5] >> 1) & 0x1F,
		CurrentNext:       data[5]&0x01 != 0,
		SectionNumber:     data[6],
		LastSectionNumber: data[7],
	}

	for i := 8; i+4 <= end-4; i += 4 {
		programNumber := uint16(data[i])<<8 | uint16(data[i+1])
		pid := uint16(data[i+2]&0x1F)<<8 | uint16(data[i+3])

		if programNumber == 0 {
			sec.NetworkPID = pid
			sec.HasNetworkPID = true
			continue
		}
		sec.Programs = append(sec.Programs, PATProgram{
			ProgramNumber: programNumber,
			PMTPID:        pid,
		})
	}

	return sec, nil
}

// ParsePMTSection decodes one PMT section, CRC included. The section layout:
//
//	[0]      table_id
//	[1-2]    section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
//	[3-4]    program_number
//	[5]      reserved(2) + version_number(5) + current_next_indicator(1)
//	[6]      section_number
//	[7]      last_section_number
//	[8-9]    reserved(3) + PCR_PID(13)
//	[10-11]  reserved(4) + program_info_length(12)
//	[...]    program descriptors
//	[...]    elementary stream records: stream_type(8) + PID(13) + ES_info_length(12) + descriptors
//	[end-4]  CRC32
func ParsePMTSection(data []byte) (*PMTSection, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("mpegts: empty PMT section")
	}
	if data[0] != tableIDPMT {
		return nil, fmt.Errorf("%w 0x%02X for PMT", ErrTableID, data[0])
	}

	end, err := sectionBounds(data, 16)
	if err != nil {
		return nil, fmt.Errorf("PMT: %w", err)
	}
	if err := verifyCRC32(data[:end]); err != nil {
		return nil, fmt.Errorf("PMT: %w", err)
	}

	sec := &PMTSection{
		ProgramNumber:     uint16(data[3])<<8 | uint16(data[4]),
		VersionNumber:     (data[5] >> 1) & 0x1F,
		CurrentNext:       data[5]&0x01 != 0,
		SectionNumber:     data[6],
		LastSectionNumber: data[7],
		PCRPID:            uint16(data[8]&0x1F)<<8 | uint16(data[9]),
	}

	programInfoLength := int(data[10]&0x0F)<<8 | int(data[11])
	offset := 12 + programInfoLength

	for offset+5 <= end-4 {
		streamType := data[offset]
		elementaryPID := uint16(data[offset+1]&0x1F)<<8 | uint16(data[offset+2])
		esInfoLength := int(data[offset+3]&0x0F)<<8 | int(data[offset+4])

		stream := PMTStream{
			StreamType:    streamType,
			ElementaryPID: elementaryPID,
		}
		if esInfoLength > 0 && offset+5+esInfoLength <= end-4 {
			stream.ESInfo = make([]byte, esInfoLength)
			copy(stream.ESInfo, data[offset+5:offset+5+esInfoLength])
		}
		sec.Streams = append(sec.Streams, stream)

		offset += 5 + esInfoLength
	}

	return sec, nil
}
