// Package mpegts implements the MPEG-2 transport stream primitives used by
// the demux facade: sync probing over 188/192-byte framing, packet header
// decoding, PAT/PMT section decoding, and PES header decoding with PTS/DTS
// extraction.
package mpegts

const (
	// PacketSize188 is the canonical transport packet size.
	PacketSize188 = 188
	// PacketSize192 is the BDAV/M2TS packet size: a 4-byte TP_extra_header
	// prefix followed by the 188-byte canonical body.
	PacketSize192 = 192

	syncByte = 0x47

	// PIDPAT is the well-known PID carrying the Program Association Table.
	PIDPAT uint16 = 0x0000
)

// Elementary stream type codes from the PMT stream loop.
const (
	StreamTypeMPEG1Audio     uint8 = 0x03
	StreamTypeMPEG2Audio     uint8 = 0x04
	StreamTypePESPrivateData uint8 = 0x06
	StreamTypeADTSAAC        uint8 = 0x0F
	StreamTypeID3            uint8 = 0x15
	StreamTypeH264           uint8 = 0x1B
	StreamTypeH265           uint8 = 0x24
	StreamTypeSCTE35         uint8 = 0x86
)

// ProbeResult reports whether a byte buffer looks like an MPEG transport
// stream, and if so which framing it uses and where the first sync byte sits.
type ProbeResult struct {
	Match      bool
	PacketSize int
	SyncOffset int
	Consumed   int
}

// PacketHeader contains the decoded 4-byte transport packet header.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	AdaptationFieldControl    uint8
	PayloadUnitStartIndicator bool
	TransportPriority         bool
}

// Packet is one decoded 188-byte transport packet body. Payload is an owned
// copy, so the source chunk does not need to outlive the packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// PATSection is a fully decoded Program Association Table section.
// Programs preserves the order of the section's program loop and excludes
// the network record (program_number 0), which is reported separately.
type PATSection struct {
	TransportStreamID uint16
	VersionNumber     uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
	NetworkPID        uint16
	HasNetworkPID     bool
	Programs          []PATProgram
}

// PATProgram maps a program number to the PID carrying its PMT.
type PATProgram struct {
	ProgramNumber uint16
	PMTPID        uint16
}

// PMTSection is a fully decoded Program Map Table section. Streams preserves
// the order of the elementary stream loop.
type PMTSection struct {
	ProgramNumber     uint16
	VersionNumber     uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
	PCRPID            uint16
	Streams           []PMTStream
}

// PMTStream is one record of the PMT elementary stream loop. ESInfo holds
// the raw descriptor bytes of the record, if any.
type PMTStream struct {
	StreamType    uint8
	ElementaryPID uint16
	ESInfo        []byte
}

// PESHeader is a decoded PES packet header with the payload window it
// describes. When HasPayload is false the stream_id identifies a
// section/padding/DSMCC style stream and the packet carries nothing for
// elementary parsers. When HasPTS is true and the packet carried no DTS,
// DTS equals PTS.
type PESHeader struct {
	StreamID      uint8
	PacketLength  int
	HasPayload    bool
	HasPTS        bool
	PTS           int64
	DTS           int64
	PayloadStart  int
	PayloadLength int
}
