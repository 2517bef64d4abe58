// Package scte35 implements decoding and encoding of SCTE-35 splice
// information sections per ANSI/SCTE 35. Only the command and descriptor
// types surfaced by the demuxer are supported: SpliceNull, SpliceInsert,
// TimeSignal, and the segmentation descriptor.
package scte35

import "fmt"

const (
	tableID = 0xFC

	// Splice command type codes.
	SpliceNullType   uint32 = 0x00
	SpliceInsertType uint32 = 0x05
	TimeSignalType   uint32 = 0x06
)

// SpliceCommand is implemented by the supported splice command types.
type SpliceCommand interface {
	Type() uint32
	decode([]byte) error
	encode() []byte
	length() int
}

// SpliceTime carries an optional 33-bit PTS.
type SpliceTime struct {
	PTSTime *uint64
}

// BreakDuration specifies the length of a commercial break.
type BreakDuration struct {
	AutoReturn bool
	Duration   uint64
}

// SpliceInfoSection is the top-level SCTE-35 structure.
type SpliceInfoSection struct {
	SAPType           uint32
	PTSAdjustment     uint64
	Tier              uint32
	SpliceCommand     SpliceCommand
	SpliceDescriptors []*SegmentationDescriptor
}

// DecodeSection decodes a binary splice_info_section, verifying its CRC.
func DecodeSection(data []byte) (*SpliceInfoSection, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("scte35: section too short (%d bytes)", len(data))
	}
	if data[0] != tableID {
		return nil, fmt.Errorf("scte35: unexpected table_id 0x%02X", data[0])
	}
	if err := verifyCRC32(data); err != nil {
		return nil, err
	}

	sis := &SpliceInfoSection{}

	r := newBitReader(data)
	r.skip(8) // table_id
	r.skip(1) // section_syntax_indicator
	r.skip(1) // private_indicator
	sis.SAPType = uint32(r.readUint(2))
	sectionLength := int(r.readUint(12))

	r.skip(8) // protocol_version
	r.skip(1) // encrypted_packet
	r.skip(6) // encryption_algorithm
	sis.PTSAdjustment = r.readUint(33)
	r.skip(8) // cw_index
	sis.Tier = uint32(r.readUint(12))

	commandLength := int(r.readUint(12))
	commandType := uint32(r.readUint(8))

	var descData []byte
	if commandLength == 0xFFF {
		// Legacy encoders set splice_command_length to all ones. Decode the
		// command from everything up to the CRC, then locate the descriptor
		// loop from the command's own length.
		remaining := r.readBytes(sectionLength - 11 - 4)
		cmd, err := decodeCommand(commandType, remaining)
		if err != nil {
			return nil, err
		}
		sis.SpliceCommand = cmd
		cmdLen := cmd.length()
		if cmdLen+2 <= len(remaining) {
			loopLen := int(remaining[cmdLen])<<8 | int(remaining[cmdLen+1])
			rest := remaining[cmdLen+2:]
			if loopLen > len(rest) {
				loopLen = len(rest)
			}
			descData = rest[:loopLen]
		}
	} else {
		cmd, err := decodeCommand(commandType, r.readBytes(commandLength))
		if err != nil {
			return nil, err
		}
		sis.SpliceCommand = cmd

		loopLen := int(r.readUint(16))
		if loopLen > 0 {
			descData = r.readBytes(loopLen)
		}
	}
	if r.overflow {
		return nil, fmt.Errorf("scte35: section truncated")
	}

	sis.SpliceDescriptors = decodeDescriptors(descData)
	return sis, nil
}

// Encode serializes the section with a freshly computed CRC.
func (sis *SpliceInfoSection) Encode() []byte {
	cmd := sis.SpliceCommand
	if cmd == nil {
		cmd = &SpliceNull{}
	}

	descLoopLen := 0
	for _, d := range sis.SpliceDescriptors {
		descLoopLen += 2 + d.bodyLength()
	}

	// Fixed fields after section_length through CRC: 11 + command + loop.
	sectionLength := 11 + cmd.length() + 2 + descLoopLen + 4
	total := 3 + sectionLength

	w := newBitWriter(total)
	w.putUint(8, tableID)
	w.putBit(false) // section_syntax_indicator
	w.putBit(false) // private_indicator
	w.putUint(2, uint64(sis.SAPType))
	w.putUint(12, uint64(sectionLength))

	w.putUint(8, 0) // protocol_version
	w.putBit(false) // encrypted_packet
	w.putUint(6, 0) // encryption_algorithm
	w.putUint(33, sis.PTSAdjustment)
	w.putUint(8, 0) // cw_index
	w.putUint(12, uint64(sis.Tier))

	w.putUint(12, uint64(cmd.length()))
	w.putUint(8, uint64(cmd.Type()))
	w.putBytes(cmd.encode())

	w.putUint(16, uint64(descLoopLen))
	for _, d := range sis.SpliceDescriptors {
		w.putBytes(d.encode())
	}

	crc := crc32MPEG2(w.bytes()[:total-4])
	w.putUint(32, uint64(crc))
	return w.bytes()
}

func decodeCommand(commandType uint32, data []byte) (SpliceCommand, error) {
	var cmd SpliceCommand
	switch commandType {
	case SpliceInsertType:
		cmd = &SpliceInsert{}
	case TimeSignalType:
		cmd = &TimeSignal{}
	default:
		// Unknown commands decode as null rather than failing the section.
		cmd = &SpliceNull{}
	}
	if err := cmd.decode(data); err != nil {
		return nil, fmt.Errorf("scte35: command type 0x%02X: %w", commandType, err)
	}
	return cmd, nil
}
