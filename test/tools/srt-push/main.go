// Command srt-push streams a transport stream file to an SRT listener at a
// realtime-ish rate, for feeding tsdemux's SRT ingest during development.
//
//	srt-push --file stream.ts --key demo --addr 127.0.0.1:6000
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	srt "github.com/zsiec/srtgo"
)

const chunkSize = 188 * 7

func main() {
	fileFlag := flag.String("file", "", "TS file to push")
	keyFlag := flag.String("key", "", "Stream key (default: filename without extension)")
	addrFlag := flag.String("addr", "127.0.0.1:6000", "SRT server address")
	rateFlag := flag.Float64("rate", 1_000_000, "Send rate in bytes/sec")
	flag.Parse()

	filePath := *fileFlag
	if filePath == "" && flag.NArg() > 0 {
		filePath = flag.Arg(0)
	}
	if filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: srt-push --file stream.ts [--key mykey] [--addr host:port]")
		os.Exit(1)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", filePath, err)
		os.Exit(1)
	}

	streamID := *keyFlag
	if streamID == "" {
		base := filepath.Base(filePath)
		streamID = "live/" + base[:len(base)-len(filepath.Ext(base))]
	}

	cfg := srt.DefaultConfig()
	cfg.StreamID = streamID

	conn, err := srt.Dial(*addrFlag, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "SRT connect to %s: %v\n", *addrFlag, err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("[%s] connected to %s, pushing %d bytes\n", streamID, *addrFlag, len(data))

	start := time.Now()
	var sent int64
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := conn.Write(data[i:end]); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		sent += int64(end - i)

		// Pace against the wall clock so the receiver sees a steady stream.
		expected := float64(sent) / *rateFlag
		if elapsed := time.Since(start).Seconds(); expected > elapsed {
			time.Sleep(time.Duration((expected - elapsed) * float64(time.Second)))
		}
	}

	fmt.Printf("[%s] done: %d bytes in %s\n", streamID, sent, time.Since(start).Truncate(time.Millisecond))
}
