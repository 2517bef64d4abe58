package scte35

import "fmt"

const (
	// segmentationDescriptorTag is the splice_descriptor_tag for
	// segmentation_descriptor.
	segmentationDescriptorTag = 0x02

	// cueIdentifier is the "CUEI" ASCII identifier required in every
	// SCTE-35 descriptor.
	cueIdentifier uint32 = 0x43554549
)

// segmentationTypeNames covers SCTE-35 Table 22 for the type IDs seen in
// live ad-insertion workflows; Name falls back to the numeric ID for the rest.
var segmentationTypeNames = map[uint32]string{
	0x00: "Not Indicated",
	0x01: "Content Identification",
	0x10: "Program Start",
	0x11: "Program End",
	0x20: "Chapter Start",
	0x21: "Chapter End",
	0x22: "Break Start",
	0x23: "Break End",
	0x30: "Provider Advertisement Start",
	0x31: "Provider Advertisement End",
	0x32: "Distributor Advertisement Start",
	0x33: "Distributor Advertisement End",
	0x34: "Provider Placement Opportunity Start",
	0x35: "Provider Placement Opportunity End",
	0x36: "Distributor Placement Opportunity Start",
	0x37: "Distributor Placement Opportunity End",
	0x40: "Unscheduled Event Start",
	0x41: "Unscheduled Event End",
	0x50: "Network Start",
	0x51: "Network End",
}

// SegmentationDescriptor carries segmentation signaling per SCTE-35 10.3.3.
type SegmentationDescriptor struct {
	SegmentationEventID  uint32
	SegmentationTypeID   uint32
	SegmentationDuration *uint64
	SegmentNum           uint32
	SegmentsExpected     uint32
}

// Name returns a human-readable name for the segmentation type.
func (sd *SegmentationDescriptor) Name() string {
	if name, ok := segmentationTypeNames[sd.SegmentationTypeID]; ok {
		return name
	}
	return fmt.Sprintf("Segmentation Type 0x%02X", sd.SegmentationTypeID)
}

// decodeDescriptors walks a descriptor loop, returning the segmentation
// descriptors it recognizes. Unknown tags and identifiers are skipped.
func decodeDescriptors(data []byte) []*SegmentationDescriptor {
	var descs []*SegmentationDescriptor
	for offset := 0; offset+2 <= len(data); {
		tag := data[offset]
		length := int(data[offset+1])
		end := offset + 2 + length
		if end > len(data) {
			break
		}

		if tag == segmentationDescriptorTag && length >= 4 {
			body := data[offset+2 : end]
			identifier := uint32(body[0])<<24 | uint32(body[1])<<16 |
				uint32(body[2])<<8 | uint32(body[3])
			if identifier == cueIdentifier {
				if sd := decodeSegmentation(body[4:]); sd != nil {
					descs = append(descs, sd)
				}
			}
		}
		offset = end
	}
	return descs
}

// decodeSegmentation decodes the segmentation_descriptor body after the
// CUEI identifier. Returns nil when the body is truncated.
func decodeSegmentation(body []byte) *SegmentationDescriptor {
	r := newBitReader(body)
	sd := &SegmentationDescriptor{}

	sd.SegmentationEventID = uint32(r.readUint(32))
	cancel := r.readBit()
	r.skip(7) // reserved
	if cancel {
		if r.overflow {
			return nil
		}
		return sd
	}

	programSegmentation := r.readBit()
	durationFlag := r.readBit()
	deliveryNotRestricted := r.readBit()
	if deliveryNotRestricted {
		r.skip(5) // reserved
	} else {
		r.skip(5) // restriction flags + device_restrictions
	}

	if !programSegmentation {
		componentCount := int(r.readUint(8))
		r.skip(componentCount * 48) // component_tag(8) + reserved(7) + pts_offset(33)
	}

	if durationFlag {
		dur := r.readUint(40)
		sd.SegmentationDuration = &dur
	}

	r.skip(8) // segmentation_upid_type
	upidLength := int(r.readUint(8))
	r.skip(upidLength * 8)

	sd.SegmentationTypeID = uint32(r.readUint(8))
	sd.SegmentNum = uint32(r.readUint(8))
	sd.SegmentsExpected = uint32(r.readUint(8))

	if r.overflow {
		return nil
	}
	return sd
}

// encode serializes the descriptor in program-segmentation,
// delivery-not-restricted form with an empty UPID.
func (sd *SegmentationDescriptor) encode() []byte {
	w := newBitWriter(2 + sd.bodyLength())
	w.putUint(8, segmentationDescriptorTag)
	w.putUint(8, uint64(sd.bodyLength()))
	w.putUint(32, uint64(cueIdentifier))

	w.putUint(32, uint64(sd.SegmentationEventID))
	w.putBit(false)    // segmentation_event_cancel_indicator
	w.putUint(7, 0x7F) // reserved

	w.putBit(true) // program_segmentation_flag
	w.putBit(sd.SegmentationDuration != nil)
	w.putBit(true)     // delivery_not_restricted_flag
	w.putUint(5, 0x1F) // reserved

	if sd.SegmentationDuration != nil {
		w.putUint(40, *sd.SegmentationDuration)
	}

	w.putUint(8, 0) // segmentation_upid_type
	w.putUint(8, 0) // segmentation_upid_length
	w.putUint(8, uint64(sd.SegmentationTypeID))
	w.putUint(8, uint64(sd.SegmentNum))
	w.putUint(8, uint64(sd.SegmentsExpected))
	return w.bytes()
}

// bodyLength is the descriptor_length value: identifier plus the
// segmentation fields as encoded by encode.
func (sd *SegmentationDescriptor) bodyLength() int {
	n := 4 + 4 + 1 + 1 // identifier + event_id + cancel/reserved + flags
	if sd.SegmentationDuration != nil {
		n += 5
	}
	n += 2 + 3 // upid type/length + type_id/segment_num/segments_expected
	return n
}
