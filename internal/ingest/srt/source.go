// Package srt accepts an SRT publish connection and feeds its transport
// stream bytes to a bound chunk sink.
package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/tsdemux/internal/ingest"
)

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// Source listens on an SRT address, accepts a single publish connection,
// and delivers received chunks to the bound sink until the publisher
// disconnects.
type Source struct {
	log  *slog.Logger
	addr string
	sink ingest.ChunkSink
}

// NewSource creates an SRT source listening on addr. If log is nil,
// slog.Default() is used.
func NewSource(addr string, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		log:  log.With("component", "srt-source"),
		addr: addr,
	}
}

// Bind registers the sink that receives chunks once a publisher connects.
func (s *Source) Bind(sink ingest.ChunkSink) {
	s.sink = sink
}

// Run listens, accepts one publisher, and pumps its bytes to the sink.
// It returns when the publisher disconnects or the context is cancelled.
func (s *Source) Run(ctx context.Context) error {
	if s.sink == nil {
		return ingest.ErrNoSink
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(s.addr, cfg)
	if err != nil {
		return fmt.Errorf("SRT listen on %s: %w", s.addr, err)
	}
	defer l.Close()
	s.log.Info("listening", "addr", s.addr)

	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		return 0
	})

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	conn, err := l.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("SRT accept: %w", err)
	}
	defer conn.Close()

	streamKey := extractStreamKey(conn.StreamID())
	s.log.Info("publish", "stream_key", streamKey, "remote", conn.RemoteAddr())

	rs := ingest.NewReaderSource(connReader{ctx: ctx, conn: conn}, s.log)
	rs.Bind(s.sink)
	err = rs.Run(ctx)

	stats := rs.Stats()
	s.log.Info("connection closed", "stream_key", streamKey,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount)
	return err
}

// connReader wraps an SRT connection as an io.Reader that honors context
// cancellation between reads.
type connReader struct {
	ctx  context.Context
	conn *srtgo.Conn
}

func (r connReader) Read(p []byte) (int, error) {
	if r.ctx.Err() != nil {
		return 0, io.EOF
	}
	n, err := r.conn.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, err
}

func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
