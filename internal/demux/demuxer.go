// Package demux implements the chunk-driven MPEG-TS demultiplexer facade.
// A Demuxer consumes byte chunks of a transport stream, recovers the
// PAT→PMT table hierarchy, reassembles PES packets per PID, and delivers
// elementary payloads with timestamps to host callbacks.
package demux

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/zsiec/tsdemux/internal/media"
	"github.com/zsiec/tsdemux/internal/mpegts"
	"github.com/zsiec/tsdemux/internal/scte35"
)

// Error kinds reported through OnError. Parse failures are local: the
// offending section or PES is dropped and demuxing continues on the next
// packet.
const (
	ErrorKindFormatDesync  = "FormatDesync"
	ErrorKindTableMismatch = "TableMismatch"
	ErrorKindCRCMismatch   = "CRCMismatch"
	ErrorKindMalformedPES  = "MalformedPES"
)

// Interface-contract errors. These are fatal to the call, not to the stream.
var (
	ErrDestroyed        = errors.New("demux: demuxer destroyed")
	ErrMissingCallbacks = errors.New("demux: mandatory callbacks not bound")
)

// Config carries host options through to elementary-stream collaborators.
// The TS-layer decode path never consults it.
type Config map[string]any

// Callbacks is the host-facing event surface. OnError, OnMediaInfo,
// OnTrackMetadata, and OnDataAvailable are mandatory; ParseChunk fails with
// ErrMissingCallbacks while any of them is nil. The rest are optional and
// their events are skipped when unbound. All callbacks fire synchronously
// from inside ParseChunk, in input-stream order.
type Callbacks struct {
	OnError                    func(kind, detail string)
	OnMediaInfo                func(info media.MediaInfo)
	OnTrackMetadata            func(kind media.TrackKind, meta media.TrackMetadata)
	OnDataAvailable            func(video, audio *media.Track)
	OnTimedID3Metadata         func(m media.TimedID3Metadata)
	OnSCTE35Metadata           func(ev SCTE35Event)
	OnPESPrivateData           func(d media.PESPrivateData)
	OnPESPrivateDataDescriptor func(d media.PESPrivateDataDescriptor)
}

// DataSource is anything that can deliver byte chunks with absolute stream
// offsets to a bound sink. The ingest package provides implementations.
type DataSource interface {
	Bind(sink func(chunk []byte, byteStart int64) (int, error))
}

// SCTE35Event summarizes one splice information section for the host.
type SCTE35Event struct {
	PID                uint16  `json:"pid"`
	PTS                int64   `json:"pts"`
	CommandType        string  `json:"commandType"`
	CommandTypeID      uint32  `json:"commandTypeId"`
	EventID            uint32  `json:"eventId,omitempty"`
	SegmentationType   string  `json:"segmentationType,omitempty"`
	SegmentationTypeID uint32  `json:"segmentationTypeId,omitempty"`
	Duration           float64 `json:"duration,omitempty"`
	OutOfNetwork       bool    `json:"outOfNetwork,omitempty"`
	Immediate          bool    `json:"immediate,omitempty"`
	Description        string  `json:"description"`
	ReceivedAt         int64   `json:"receivedAt"`
}

// pat is the accepted Program Association Table state.
type pat struct {
	versionNumber uint8
	networkPID    uint16
	hasNetworkPID bool
	programPMTPID map[uint16]uint16
}

// pmt is the decoded Program Map Table state for one program.
type pmt struct {
	programNumber      uint16
	versionNumber      uint8
	pidStreamType      map[uint16]uint8
	h264PID            uint16
	hasH264            bool
	adtsAACPID         uint16
	hasADTSAAC         bool
	pesPrivateDataPIDs map[uint16]bool
	timedID3PIDs       map[uint16]bool
	scte35PIDs         map[uint16]bool
}

func newPMT(programNumber uint16, version uint8) *pmt {
	return &pmt{
		programNumber:      programNumber,
		versionNumber:      version,
		pidStreamType:      make(map[uint16]uint8),
		pesPrivateDataPIDs: make(map[uint16]bool),
		timedID3PIDs:       make(map[uint16]bool),
		scte35PIDs:         make(map[uint16]bool),
	}
}

// pesQueue buffers payload slices for one PID between payload-unit-start
// markers. Slices are owned copies; assemble concatenates them in arrival
// order.
type pesQueue struct {
	streamType  uint8
	slices      [][]byte
	totalLength int
}

func (q *pesQueue) append(slice []byte) {
	q.slices = append(q.slices, slice)
	q.totalLength += len(slice)
}

func (q *pesQueue) assemble() []byte {
	buf := make([]byte, 0, q.totalLength)
	for _, s := range q.slices {
		buf = append(buf, s...)
	}
	return buf
}

// Demuxer is a single-threaded state machine driven by ParseChunk calls.
// One instance owns its state exclusively; concurrent use is undefined.
type Demuxer struct {
	log *slog.Logger
	cfg Config
	cb  Callbacks

	packetSize int
	syncOffset int
	firstParse bool
	destroyed  bool

	pat            *pat
	currentProgram uint16
	currentPMTPID  uint16
	programPMT     map[uint16]*pmt
	activePMT      *pmt

	pesQueues map[uint16]*pesQueue

	videoTrack       *media.Track
	audioTrack       *media.Track
	mediaInfo        media.MediaInfo
	mediaInfoEmitted bool
	mediaInfoVersion uint8
}

// New creates a Demuxer for a stream whose framing was established by
// mpegts.Probe. A zero-valued probe result falls back to canonical 188-byte
// framing at offset 0. If log is nil, slog.Default() is used.
func New(probe mpegts.ProbeResult, cfg Config, log *slog.Logger) *Demuxer {
	if log == nil {
		log = slog.Default()
	}
	packetSize := probe.PacketSize
	if packetSize == 0 {
		packetSize = mpegts.PacketSize188
	}
	return &Demuxer{
		log:        log.With("component", "demux"),
		cfg:        cfg,
		packetSize: packetSize,
		syncOffset: probe.SyncOffset,
		firstParse: true,
		programPMT: make(map[uint16]*pmt),
		pesQueues:  make(map[uint16]*pesQueue),
		videoTrack: media.NewTrack(media.TrackKindVideo, 1, 0),
		audioTrack: media.NewTrack(media.TrackKindAudio, 2, 0),
	}
}

// SetCallbacks binds the host callback set.
func (d *Demuxer) SetCallbacks(cb Callbacks) {
	d.cb = cb
}

// Config returns the configuration record given at construction.
func (d *Demuxer) Config() Config {
	return d.cfg
}

// BindDataSource registers ParseChunk as the source's data-arrival sink.
func (d *Demuxer) BindDataSource(src DataSource) {
	src.Bind(d.ParseChunk)
}

// ParseChunk demultiplexes one chunk starting at absolute stream position
// byteStart and returns the exclusive end offset consumed. The caller may
// requeue the unconsumed remainder in front of the next chunk. A sync loss
// halts the chunk at the current offset; the host can re-probe from there.
func (d *Demuxer) ParseChunk(chunk []byte, byteStart int64) (int, error) {
	if d.destroyed {
		return 0, ErrDestroyed
	}
	if err := d.checkCallbacks(); err != nil {
		return 0, err
	}

	offset := 0
	if d.firstParse {
		offset = d.syncOffset
		d.firstParse = false
	}

	for offset+d.packetSize <= len(chunk) {
		pkt, err := mpegts.ParsePacket(chunk[offset : offset+mpegts.PacketSize188])
		if err != nil {
			d.cb.OnError(ErrorKindFormatDesync, fmt.Sprintf("at stream offset %d: %v", byteStart+int64(offset), err))
			break
		}
		d.handlePacket(pkt)
		offset += d.packetSize
	}

	d.dispatchTracks()
	return offset, nil
}

// Flush emits any pending PES packets without waiting for their next
// payload-unit-start, then dispatches accumulated samples. Call at end of
// stream.
func (d *Demuxer) Flush() error {
	if d.destroyed {
		return ErrDestroyed
	}
	if err := d.checkCallbacks(); err != nil {
		return err
	}

	for _, pid := range sortedQueuePIDs(d.pesQueues) {
		q := d.pesQueues[pid]
		if q.totalLength > 0 {
			d.emitPES(pid, q.streamType, q.assemble())
		}
		delete(d.pesQueues, pid)
	}
	d.dispatchTracks()
	return nil
}

// ResetMediaInfo discards accumulated media metadata; the next accepted PMT
// re-emits OnMediaInfo and OnTrackMetadata.
func (d *Demuxer) ResetMediaInfo() {
	d.mediaInfo = media.MediaInfo{}
	d.mediaInfoEmitted = false
}

// Destroy releases all state. Subsequent ParseChunk calls fail with
// ErrDestroyed.
func (d *Demuxer) Destroy() {
	d.pat = nil
	d.programPMT = nil
	d.activePMT = nil
	d.pesQueues = nil
	d.videoTrack = nil
	d.audioTrack = nil
	d.cb = Callbacks{}
	d.destroyed = true
}

func (d *Demuxer) checkCallbacks() error {
	switch {
	case d.cb.OnError == nil:
		return fmt.Errorf("%w: OnError", ErrMissingCallbacks)
	case d.cb.OnMediaInfo == nil:
		return fmt.Errorf("%w: OnMediaInfo", ErrMissingCallbacks)
	case d.cb.OnTrackMetadata == nil:
		return fmt.Errorf("%w: OnTrackMetadata", ErrMissingCallbacks)
	case d.cb.OnDataAvailable == nil:
		return fmt.Errorf("%w: OnDataAvailable", ErrMissingCallbacks)
	}
	return nil
}

func (d *Demuxer) handlePacket(p *mpegts.Packet) {
	if len(p.Payload) == 0 {
		return
	}

	pid := p.Header.PID
	switch {
	case pid == mpegts.PIDPAT:
		d.handlePAT(p)
	case d.pat != nil && pid == d.currentPMTPID:
		d.handlePMT(p)
	default:
		t := d.activePMT
		if t == nil {
			return
		}
		streamType, ok := t.pidStreamType[pid]
		if !ok {
			return
		}
		switch {
		case t.scte35PIDs[pid]:
			d.handleSCTE35Section(p)
		case (t.hasH264 && pid == t.h264PID) ||
			(t.hasADTSAAC && pid == t.adtsAACPID) ||
			t.pesPrivateDataPIDs[pid] ||
			t.timedID3PIDs[pid]:
			d.handlePESSlice(p, streamType)
		}
	}
}

// sectionBody strips the pointer_field in front of a PSI section. Sections
// are expected to start in a payload-unit-start packet and fit in one packet.
func sectionBody(p *mpegts.Packet) ([]byte, bool) {
	if !p.Header.PayloadUnitStartIndicator {
		return nil, false
	}
	payload := p.Payload
	pointer := int(payload[0])
	if 1+pointer >= len(payload) {
		return nil, false
	}
	return payload[1+pointer:], true
}

func (d *Demuxer) handlePAT(p *mpegts.Packet) {
	body, ok := sectionBody(p)
	if !ok {
		return
	}

	sec, err := mpegts.ParsePATSection(body)
	if err != nil {
		d.reportSectionError(err)
		return
	}

	accepted := sec.CurrentNext && sec.SectionNumber == 0
	if accepted {
		d.pat = &pat{
			versionNumber: sec.VersionNumber,
			programPMTPID: make(map[uint16]uint16),
		}
	} else if d.pat == nil {
		return
	}

	if sec.HasNetworkPID {
		d.pat.networkPID = sec.NetworkPID
		d.pat.hasNetworkPID = true
	}
	for _, pr := range sec.Programs {
		d.pat.programPMTPID[pr.ProgramNumber] = pr.PMTPID
	}

	if accepted && len(sec.Programs) > 0 {
		first := sec.Programs[0]
		d.currentProgram = first.ProgramNumber
		d.currentPMTPID = first.PMTPID
		d.log.Debug("PAT accepted",
			"version", sec.VersionNumber,
			"program", first.ProgramNumber,
			"pmt_pid", first.PMTPID)
	}
}

func (d *Demuxer) handlePMT(p *mpegts.Packet) {
	body, ok := sectionBody(p)
	if !ok {
		return
	}

	sec, err := mpegts.ParsePMTSection(body)
	if err != nil {
		d.reportSectionError(err)
		return
	}

	var t *pmt
	if sec.CurrentNext && sec.SectionNumber == 0 {
		t = newPMT(sec.ProgramNumber, sec.VersionNumber)
		d.programPMT[sec.ProgramNumber] = t
	} else {
		t = d.programPMT[sec.ProgramNumber]
		if t == nil {
			return
		}
	}

	for _, es := range sec.Streams {
		t.pidStreamType[es.ElementaryPID] = es.StreamType

		switch es.StreamType {
		case mpegts.StreamTypeH264:
			if !t.hasH264 {
				t.h264PID = es.ElementaryPID
				t.hasH264 = true
			}
		case mpegts.StreamTypeADTSAAC:
			if !t.hasADTSAAC {
				t.adtsAACPID = es.ElementaryPID
				t.hasADTSAAC = true
			}
		case mpegts.StreamTypePESPrivateData:
			t.pesPrivateDataPIDs[es.ElementaryPID] = true
			if len(es.ESInfo) > 0 && d.cb.OnPESPrivateDataDescriptor != nil {
				d.cb.OnPESPrivateDataDescriptor(media.PESPrivateDataDescriptor{
					PID:        es.ElementaryPID,
					StreamType: es.StreamType,
					Descriptor: es.ESInfo,
				})
			}
		case mpegts.StreamTypeID3:
			t.timedID3PIDs[es.ElementaryPID] = true
		case mpegts.StreamTypeSCTE35:
			t.scte35PIDs[es.ElementaryPID] = true
		}
	}

	if sec.ProgramNumber == d.currentProgram {
		d.activePMT = t
		d.emitMediaInfo(t)
	}
}

func (d *Demuxer) emitMediaInfo(t *pmt) {
	if d.mediaInfoEmitted && t.versionNumber == d.mediaInfoVersion {
		return
	}
	d.mediaInfoEmitted = true
	d.mediaInfoVersion = t.versionNumber

	info := media.MediaInfo{MimeType: "video/mp2t"}
	if t.hasH264 {
		info.HasVideo = true
		info.VideoPID = t.h264PID
		info.VideoStreamType = mpegts.StreamTypeH264
	}
	if t.hasADTSAAC {
		info.HasAudio = true
		info.AudioPID = t.adtsAACPID
		info.AudioStreamType = mpegts.StreamTypeADTSAAC
	}
	d.mediaInfo = info

	d.log.Info("media info",
		"program", t.programNumber,
		"has_video", info.HasVideo,
		"has_audio", info.HasAudio)

	d.cb.OnMediaInfo(info)
	if info.HasVideo {
		d.cb.OnTrackMetadata(media.TrackKindVideo, media.TrackMetadata{
			PID:        info.VideoPID,
			StreamType: info.VideoStreamType,
		})
	}
	if info.HasAudio {
		d.cb.OnTrackMetadata(media.TrackKindAudio, media.TrackMetadata{
			PID:        info.AudioPID,
			StreamType: info.AudioStreamType,
		})
	}
}

// handlePESSlice implements PES reassembly for one PID: slices accumulate
// until the next payload-unit-start, which is the only reliable delimiter
// for TS-carried PES (the length field may be zero).
func (d *Demuxer) handlePESSlice(p *mpegts.Packet, streamType uint8) {
	pid := p.Header.PID
	q := d.pesQueues[pid]

	if p.Header.PayloadUnitStartIndicator {
		if q != nil && q.totalLength > 0 {
			d.emitPES(pid, q.streamType, q.assemble())
		}
		q = &pesQueue{streamType: streamType}
		d.pesQueues[pid] = q
	} else if q == nil {
		// No start marker seen yet on this PID.
		return
	}

	q.append(p.Payload)
}

func (d *Demuxer) emitPES(pid uint16, streamType uint8, buf []byte) {
	hdr, err := mpegts.ParsePES(buf)
	if err != nil {
		d.cb.OnError(ErrorKindMalformedPES, fmt.Sprintf("PID 0x%X: %v", pid, err))
		return
	}
	if !hdr.HasPayload {
		return
	}

	payload := buf[hdr.PayloadStart : hdr.PayloadStart+hdr.PayloadLength]

	switch streamType {
	case mpegts.StreamTypeH264:
		d.videoTrack.AddSample(media.Sample{
			Data:          payload,
			PTS:           hdr.PTS,
			DTS:           hdr.DTS,
			HasTimestamps: hdr.HasPTS,
		})
	case mpegts.StreamTypeADTSAAC:
		d.audioTrack.AddSample(media.Sample{
			Data:          payload,
			PTS:           hdr.PTS,
			DTS:           hdr.DTS,
			HasTimestamps: hdr.HasPTS,
		})
	case mpegts.StreamTypePESPrivateData:
		if d.cb.OnPESPrivateData != nil {
			d.cb.OnPESPrivateData(media.PESPrivateData{
				PID:           pid,
				StreamID:      hdr.StreamID,
				PTS:           hdr.PTS,
				DTS:           hdr.DTS,
				HasTimestamps: hdr.HasPTS,
				Data:          payload,
			})
		}
	case mpegts.StreamTypeID3:
		if d.cb.OnTimedID3Metadata != nil {
			d.cb.OnTimedID3Metadata(media.TimedID3Metadata{
				PID:           pid,
				PTS:           hdr.PTS,
				DTS:           hdr.DTS,
				HasTimestamps: hdr.HasPTS,
				Data:          payload,
			})
		}
	default:
		// MPEG audio, H.265 and other stream types are reserved hooks for
		// downstream parsers.
	}
}

func (d *Demuxer) handleSCTE35Section(p *mpegts.Packet) {
	if d.cb.OnSCTE35Metadata == nil {
		return
	}
	body, ok := sectionBody(p)
	if !ok {
		return
	}
	if len(body) < 3 {
		return
	}

	sectionLength := int(body[1]&0x0F)<<8 | int(body[2])
	total := 3 + sectionLength
	if total > len(body) {
		total = len(body)
	}

	sis, err := scte35.DecodeSection(body[:total])
	if err != nil {
		d.log.Warn("failed to parse SCTE-35", "pid", p.Header.PID, "error", err)
		return
	}

	ev := SCTE35Event{
		PID:        p.Header.PID,
		ReceivedAt: time.Now().UnixMilli(),
	}

	switch cmd := sis.SpliceCommand.(type) {
	case *scte35.SpliceInsert:
		ev.CommandType = "splice_insert"
		ev.CommandTypeID = scte35.SpliceInsertType
		ev.EventID = cmd.SpliceEventID
		ev.OutOfNetwork = cmd.OutOfNetworkIndicator
		ev.Immediate = cmd.SpliceImmediateFlag
		if cmd.SpliceTime.PTSTime != nil {
			ev.PTS = int64(*cmd.SpliceTime.PTSTime)
		}
		if cmd.BreakDuration != nil {
			ev.Duration = float64(cmd.BreakDuration.Duration) / 90000.0
		}
		if ev.OutOfNetwork {
			ev.Description = "Splice Out (Ad Insertion)"
		} else {
			ev.Description = "Splice In (Return to Program)"
		}
	case *scte35.TimeSignal:
		ev.CommandType = "time_signal"
		ev.CommandTypeID = scte35.TimeSignalType
		if cmd.SpliceTime.PTSTime != nil {
			ev.PTS = int64(*cmd.SpliceTime.PTSTime)
		}
		ev.Description = "Time Signal"
	case *scte35.SpliceNull:
		ev.CommandType = "splice_null"
		ev.CommandTypeID = scte35.SpliceNullType
		ev.Description = "Heartbeat"
	default:
		ev.CommandType = "unknown"
		ev.Description = "Unknown Command"
	}

	for _, sd := range sis.SpliceDescriptors {
		ev.EventID = sd.SegmentationEventID
		ev.SegmentationTypeID = sd.SegmentationTypeID
		ev.SegmentationType = sd.Name()
		if sd.SegmentationDuration != nil {
			ev.Duration = float64(*sd.SegmentationDuration) / 90000.0
		}
		ev.Description = sd.Name()
		break
	}

	d.log.Debug("SCTE-35", "command", ev.CommandType, "desc", ev.Description, "event_id", ev.EventID)
	d.cb.OnSCTE35Metadata(ev)
}

// dispatchTracks hands accumulated samples to the host and resets the
// affected tracks with bumped sequence numbers.
func (d *Demuxer) dispatchTracks() {
	v, a := d.videoTrack, d.audioTrack
	if len(v.Samples) == 0 && len(a.Samples) == 0 {
		return
	}

	d.cb.OnDataAvailable(v, a)

	if len(v.Samples) > 0 {
		d.videoTrack = media.NewTrack(media.TrackKindVideo, v.ID, v.SequenceNumber+1)
	}
	if len(a.Samples) > 0 {
		d.audioTrack = media.NewTrack(media.TrackKindAudio, a.ID, a.SequenceNumber+1)
	}
}

func (d *Demuxer) reportSectionError(err error) {
	kind := ErrorKindTableMismatch
	if errors.Is(err, mpegts.ErrCRC32) {
		kind = ErrorKindCRCMismatch
	}
	d.cb.OnError(kind, err.Error())
}

// sortedQueuePIDs orders the pending queues so Flush emits deterministically.
func sortedQueuePIDs(queues map[uint16]*pesQueue) []uint16 {
	pids := make([]uint16, 0, len(queues))
	for pid := range queues {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}
