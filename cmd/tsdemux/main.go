// Command tsdemux reads an MPEG transport stream from a file, stdin, or an
// SRT publisher, demultiplexes it, and logs every event the demuxer emits.
//
//	tsdemux stream.ts
//	cat stream.ts | tsdemux -
//	SRT_ADDR=:6000 tsdemux
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsdemux/internal/demux"
	"github.com/zsiec/tsdemux/internal/ingest"
	srtingest "github.com/zsiec/tsdemux/internal/ingest/srt"
	"github.com/zsiec/tsdemux/internal/media"
	"github.com/zsiec/tsdemux/internal/mpegts"
)

var version = "dev"

// maxProbeBytes bounds how much input is buffered while searching for sync.
const maxProbeBytes = 2 << 20

// source is satisfied by every ingest implementation.
type source interface {
	Bind(sink ingest.ChunkSink)
	Run(ctx context.Context) error
}

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	src, closer, err := selectSource()
	if err != nil {
		slog.Error("failed to open input", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	slog.Info("tsdemux starting", "version", version)

	h := &host{log: slog.Default()}
	src.Bind(h.sink)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return src.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("ingest error", "error", err)
		os.Exit(1)
	}

	if h.dmx != nil {
		if err := h.dmx.Flush(); err != nil {
			slog.Error("flush error", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("done",
		"video_samples", h.videoSamples,
		"audio_samples", h.audioSamples,
		"errors", h.errorCount)
}

// selectSource picks the ingest front end: an SRT listener when SRT_ADDR is
// set, otherwise the file named on the command line ("-" for stdin).
func selectSource() (source, io.Closer, error) {
	if addr := os.Getenv("SRT_ADDR"); addr != "" {
		return srtingest.NewSource(addr, nil), nil, nil
	}

	path := "-"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "-" {
		return ingest.NewReaderSource(os.Stdin, nil), nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return ingest.NewReaderSource(f, nil), f, nil
}

// host buffers input until the stream probes, then drives the demuxer and
// requeues whatever ParseChunk leaves unconsumed.
type host struct {
	log *slog.Logger
	dmx *demux.Demuxer

	buf []byte
	pos int64

	videoSamples int64
	audioSamples int64
	errorCount   int64
}

func (h *host) sink(chunk []byte, _ int64) (int, error) {
	h.buf = append(h.buf, chunk...)

	if h.dmx == nil {
		res := mpegts.Probe(h.buf)
		if !res.Match {
			if len(h.buf) > maxProbeBytes {
				return 0, fmt.Errorf("no MPEG-TS sync in first %d bytes", len(h.buf))
			}
			return len(chunk), nil
		}
		h.log.Info("stream probed", "packet_size", res.PacketSize, "sync_offset", res.SyncOffset)
		h.dmx = demux.New(res, nil, h.log)
		h.dmx.SetCallbacks(h.callbacks())
	}

	consumed, err := h.dmx.ParseChunk(h.buf, h.pos)
	if err != nil {
		return 0, err
	}
	h.pos += int64(consumed)
	h.buf = append([]byte(nil), h.buf[consumed:]...)
	return len(chunk), nil
}

func (h *host) callbacks() demux.Callbacks {
	return demux.Callbacks{
		OnError: func(kind, detail string) {
			h.errorCount++
			h.log.Warn("demux error", "kind", kind, "detail", detail)
		},
		OnMediaInfo: func(info media.MediaInfo) {
			h.log.Info("media info",
				"mime_type", info.MimeType,
				"has_video", info.HasVideo,
				"has_audio", info.HasAudio,
				"video_pid", info.VideoPID,
				"audio_pid", info.AudioPID)
		},
		OnTrackMetadata: func(kind media.TrackKind, meta media.TrackMetadata) {
			h.log.Info("track", "kind", kind, "pid", meta.PID,
				"stream_type", fmt.Sprintf("0x%02X", meta.StreamType))
		},
		OnDataAvailable: func(video, audio *media.Track) {
			h.videoSamples += int64(len(video.Samples))
			h.audioSamples += int64(len(audio.Samples))
			h.log.Debug("data available",
				"video_samples", len(video.Samples), "video_bytes", video.Length,
				"audio_samples", len(audio.Samples), "audio_bytes", audio.Length)
		},
		OnTimedID3Metadata: func(m media.TimedID3Metadata) {
			h.log.Info("timed ID3", "pid", m.PID, "pts", m.PTS, "bytes", len(m.Data))
		},
		OnSCTE35Metadata: func(ev demux.SCTE35Event) {
			h.log.Info("SCTE-35", "command", ev.CommandType, "desc", ev.Description,
				"event_id", ev.EventID, "pts", ev.PTS)
		},
		OnPESPrivateData: func(d media.PESPrivateData) {
			h.log.Info("PES private data", "pid", d.PID, "pts", d.PTS, "bytes", len(d.Data))
		},
		OnPESPrivateDataDescriptor: func(d media.PESPrivateDataDescriptor) {
			h.log.Info("PES private data descriptor", "pid", d.PID, "bytes", len(d.Descriptor))
		},
	}
}
