// Package media defines the data types the demuxer hands to its host:
// container-level media info, per-track sample batches, and the structured
// payloads of the metadata callbacks.
package media

// TrackKind identifies a track's media class.
type TrackKind string

// Track kinds reported through OnTrackMetadata and carried by Track.
const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

// MediaInfo describes the container-level shape of the stream as learned
// from the active PMT. Codec-level detail (profiles, sample rates, frame
// sizes) belongs to the elementary stream parsers downstream.
type MediaInfo struct {
	MimeType        string
	HasVideo        bool
	HasAudio        bool
	VideoPID        uint16
	AudioPID        uint16
	VideoStreamType uint8
	AudioStreamType uint8
}

// TrackMetadata identifies a discovered elementary track.
type TrackMetadata struct {
	PID        uint16
	StreamType uint8
}

// Sample is one complete PES payload with its timestamps. When the PES
// carried no PTS, HasTimestamps is false and PTS/DTS are zero.
type Sample struct {
	Data          []byte
	PTS           int64
	DTS           int64
	HasTimestamps bool
}

// Track accumulates samples for one elementary stream between
// OnDataAvailable dispatches. Length is the total payload byte count.
type Track struct {
	Kind           TrackKind
	ID             int
	SequenceNumber int
	Samples        []Sample
	Length         int
}

// NewTrack creates an empty track.
func NewTrack(kind TrackKind, id, sequenceNumber int) *Track {
	return &Track{Kind: kind, ID: id, SequenceNumber: sequenceNumber}
}

// AddSample appends one sample and grows Length.
func (t *Track) AddSample(s Sample) {
	t.Samples = append(t.Samples, s)
	t.Length += len(s.Data)
}

// PESPrivateData is one reassembled private_data PES (stream_type 0x06).
type PESPrivateData struct {
	PID           uint16
	StreamID      uint8
	PTS           int64
	DTS           int64
	HasTimestamps bool
	Data          []byte
}

// PESPrivateDataDescriptor carries the raw ES_info descriptor bytes the PMT
// declared for a private-data PID.
type PESPrivateDataDescriptor struct {
	PID        uint16
	StreamType uint8
	Descriptor []byte
}

// TimedID3Metadata is one reassembled timed ID3 PES (stream_type 0x15),
// delivered undecoded.
type TimedID3Metadata struct {
	PID           uint16
	PTS           int64
	DTS           int64
	HasTimestamps bool
	Data          []byte
}
