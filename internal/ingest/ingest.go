// Package ingest provides chunk-oriented data sources that feed the demux
// facade. A source reads bytes from its transport, delivers them to the
// bound sink with absolute stream offsets, and requeues whatever the sink
// does not consume in front of the next delivery.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
)

// ChunkSize is the read size used by the sources: 7 TS packets per SRT
// payload (1316 bytes), ten payloads per read.
const ChunkSize = 1316 * 10

// ChunkSink consumes a chunk starting at absolute stream position byteStart
// and returns how many bytes it consumed. The demuxer's ParseChunk satisfies
// this signature. An alias so sources bind directly to the demuxer's
// DataSource interface.
type ChunkSink = func(chunk []byte, byteStart int64) (int, error)

// ErrNoSink is returned by Run when the source was never bound.
var ErrNoSink = errors.New("ingest: no sink bound")

// Stats captures connection-level counters for a source.
type Stats struct {
	BytesReceived int64 `json:"bytesReceived"`
	ReadCount     int64 `json:"readCount"`
}

// ReaderSource adapts an io.Reader (file, stdin, pipe) into a chunk source.
type ReaderSource struct {
	log  *slog.Logger
	r    io.Reader
	sink ChunkSink

	byteStart int64
	remainder []byte

	bytesReceived atomic.Int64
	readCount     atomic.Int64
}

// NewReaderSource creates a source reading from r. If log is nil,
// slog.Default() is used.
func NewReaderSource(r io.Reader, log *slog.Logger) *ReaderSource {
	if log == nil {
		log = slog.Default()
	}
	return &ReaderSource{
		log: log.With("component", "reader-source"),
		r:   r,
	}
}

// Bind registers the sink that receives chunks.
func (s *ReaderSource) Bind(sink ChunkSink) {
	s.sink = sink
}

// Stats returns a snapshot of the source counters.
func (s *ReaderSource) Stats() Stats {
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
	}
}

// Run reads until EOF or context cancellation, delivering chunks to the
// bound sink. Returns nil on EOF.
func (s *ReaderSource) Run(ctx context.Context) error {
	if s.sink == nil {
		return ErrNoSink
	}

	buf := make([]byte, ChunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := s.r.Read(buf)
		if n > 0 {
			s.bytesReceived.Add(int64(n))
			s.readCount.Add(1)
			if derr := s.deliver(buf[:n]); derr != nil {
				return derr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// deliver prepends the held remainder, hands the chunk to the sink, and
// retains whatever it left unconsumed.
func (s *ReaderSource) deliver(data []byte) error {
	chunk := data
	if len(s.remainder) > 0 {
		chunk = append(s.remainder, data...)
	}

	consumed, err := s.sink(chunk, s.byteStart)
	if err != nil {
		return err
	}
	if consumed < 0 || consumed > len(chunk) {
		consumed = len(chunk)
	}

	s.remainder = append([]byte(nil), chunk[consumed:]...)
	s.byteStart += int64(consumed)
	return nil
}
