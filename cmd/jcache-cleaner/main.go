// Command jcache-cleaner runs the watermark-driven cache eviction loop
// standalone, outside the JCache plugin process, the way the original
// XRootD deployment runs its cleaner as a separate cron-launched binary.
//
// Usage: jcache-cleaner <directory> <high-watermark-bytes> <low-watermark-bytes> <interval-seconds>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cern-eos/xrdgojs3/internal/jcache/cleaner"
	"github.com/cern-eos/xrdgojs3/internal/logger"
)

func main() {
	if len(os.Args) != 5 {
		fmt.Fprintf(os.Stderr, "usage: %s <directory> <high-watermark-bytes> <low-watermark-bytes> <interval-seconds>\n", os.Args[0])
		os.Exit(1)
	}

	dir := os.Args[1]
	high, err := strconv.ParseUint(os.Args[2], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid high watermark %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}
	low, err := strconv.ParseUint(os.Args[3], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid low watermark %q: %v\n", os.Args[3], err)
		os.Exit(1)
	}
	intervalSec, err := strconv.ParseUint(os.Args[4], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid interval %q: %v\n", os.Args[4], err)
		os.Exit(1)
	}
	if low >= high {
		fmt.Fprintf(os.Stderr, "low watermark (%s) must be below high watermark (%s)\n",
			humanize.Bytes(low), humanize.Bytes(high))
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: "INFO", Format: "text", Output: "stdout"}); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	log := logger.With("component", "jcache-cleaner")
	log.Info("starting cleaner",
		"dir", dir,
		"high", humanize.Bytes(high),
		"low", humanize.Bytes(low),
		"interval", time.Duration(intervalSec)*time.Second,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cleaner.New(cleaner.Config{
		Root:          dir,
		Size:          high,
		HighWatermark: high,
		LowWatermark:  low,
		Interval:      time.Duration(intervalSec) * time.Second,
		Mode:          cleaner.ModeScan,
		Logger:        log,
	})
	c.Run(ctx)
	log.Info("cleaner stopped")
}
