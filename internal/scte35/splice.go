package scte35

import "fmt"

// SpliceNull is the heartbeat command.
type SpliceNull struct{}

// Type returns the splice_command_type.
func (cmd *SpliceNull) Type() uint32 { return SpliceNullType }

func (cmd *SpliceNull) decode(_ []byte) error { return nil }
func (cmd *SpliceNull) encode() []byte        { return nil }
func (cmd *SpliceNull) length() int           { return 0 }

// TimeSignal carries a time-synchronized signaling point.
type TimeSignal struct {
	SpliceTime SpliceTime
}

// Type returns the splice_command_type.
func (cmd *TimeSignal) Type() uint32 { return TimeSignalType }

func (cmd *TimeSignal) decode(data []byte) error {
	r := newBitReader(data)
	if r.readBit() { // time_specified_flag
		r.skip(6) // reserved
		pts := r.readUint(33)
		cmd.SpliceTime.PTSTime = &pts
	} else {
		r.skip(7) // reserved
	}
	if r.overflow {
		return fmt.Errorf("time_signal truncated")
	}
	return nil
}

func (cmd *TimeSignal) encode() []byte {
	w := newBitWriter(cmd.length())
	if cmd.SpliceTime.PTSTime != nil {
		w.putBit(true)
		w.putUint(6, 0x3F) // reserved
		w.putUint(33, *cmd.SpliceTime.PTSTime)
	} else {
		w.putBit(false)
		w.putUint(7, 0x7F) // reserved
	}
	return w.bytes()
}

func (cmd *TimeSignal) length() int {
	if cmd.SpliceTime.PTSTime != nil {
		return 5
	}
	return 1
}

// SpliceInsert signals a splice point, typically an ad break boundary.
type SpliceInsert struct {
	SpliceEventID              uint32
	SpliceEventCancelIndicator bool
	OutOfNetworkIndicator      bool
	SpliceImmediateFlag        bool
	SpliceTime                 SpliceTime
	BreakDuration              *BreakDuration
	UniqueProgramID            uint32
	AvailNum                   uint32
	AvailsExpected             uint32
}

// Type returns the splice_command_type.
func (cmd *SpliceInsert) Type() uint32 { return SpliceInsertType }

func (cmd *SpliceInsert) decode(data []byte) error {
	r := newBitReader(data)
	cmd.SpliceEventID = uint32(r.readUint(32))
	cmd.SpliceEventCancelIndicator = r.readBit()
	r.skip(7) // reserved

	if !cmd.SpliceEventCancelIndicator {
		cmd.OutOfNetworkIndicator = r.readBit()
		programSpliceFlag := r.readBit()
		durationFlag := r.readBit()
		cmd.SpliceImmediateFlag = r.readBit()
		r.skip(4) // reserved

		if programSpliceFlag {
			if !cmd.SpliceImmediateFlag {
				readSpliceTime(r, &cmd.SpliceTime)
			}
		} else {
			componentCount := int(r.readUint(8))
			for i := 0; i < componentCount; i++ {
				r.skip(8) // component_tag
				if !cmd.SpliceImmediateFlag {
					readSpliceTime(r, nil)
				}
			}
		}

		if durationFlag {
			cmd.BreakDuration = &BreakDuration{}
			cmd.BreakDuration.AutoReturn = r.readBit()
			r.skip(6) // reserved
			cmd.BreakDuration.Duration = r.readUint(33)
		}
		cmd.UniqueProgramID = uint32(r.readUint(16))
		cmd.AvailNum = uint32(r.readUint(8))
		cmd.AvailsExpected = uint32(r.readUint(8))
	}

	if r.overflow {
		return fmt.Errorf("splice_insert truncated")
	}
	return nil
}

// readSpliceTime decodes one splice_time(), storing the PTS into st when
// st is non-nil (component-mode times are skipped).
func readSpliceTime(r *bitReader, st *SpliceTime) {
	if r.readBit() { // time_specified_flag
		r.skip(6) // reserved
		pts := r.readUint(33)
		if st != nil {
			st.PTSTime = &pts
		}
	} else {
		r.skip(7) // reserved
	}
}

func (cmd *SpliceInsert) encode() []byte {
	w := newBitWriter(cmd.length())
	w.putUint(32, uint64(cmd.SpliceEventID))
	w.putBit(cmd.SpliceEventCancelIndicator)
	w.putUint(7, 0x7F) // reserved

	if !cmd.SpliceEventCancelIndicator {
		w.putBit(cmd.OutOfNetworkIndicator)
		w.putBit(true) // program_splice_flag
		w.putBit(cmd.BreakDuration != nil)
		w.putBit(cmd.SpliceImmediateFlag)
		w.putUint(4, 0x0F) // reserved

		if !cmd.SpliceImmediateFlag {
			if cmd.SpliceTime.PTSTime != nil {
				w.putBit(true)
				w.putUint(6, 0x3F) // reserved
				w.putUint(33, *cmd.SpliceTime.PTSTime)
			} else {
				w.putBit(false)
				w.putUint(7, 0x7F) // reserved
			}
		}

		if cmd.BreakDuration != nil {
			w.putBit(cmd.BreakDuration.AutoReturn)
			w.putUint(6, 0x3F) // reserved
			w.putUint(33, cmd.BreakDuration.Duration)
		}
		w.putUint(16, uint64(cmd.UniqueProgramID))
		w.putUint(8, uint64(cmd.AvailNum))
		w.putUint(8, uint64(cmd.AvailsExpected))
	}
	return w.bytes()
}

func (cmd *SpliceInsert) length() int {
	bits := 32 + 1 + 7 // event_id + cancel + reserved
	if !cmd.SpliceEventCancelIndicator {
		bits += 1 + 1 + 1 + 1 + 4 // flags + reserved
		if !cmd.SpliceImmediateFlag {
			if cmd.SpliceTime.PTSTime != nil {
				bits += 1 + 6 + 33
			} else {
				bits += 1 + 7
			}
		}
		if cmd.BreakDuration != nil {
			bits += 1 + 6 + 33
		}
		bits += 16 + 8 + 8 // unique_program_id + avail_num + avails_expected
	}
	return bits / 8
}
