package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/downfa11-org/spillq/pkg/bench"
)

func main() {
	dir := flag.String("dir", "", "spill directory (default: a temporary directory)")
	producers := flag.Int("producers", 4, "number of producers")
	messages := flag.Int("messages", 10000, "messages per producer")
	rate := flag.Int("rate", 20000, "consumer throughput in msg/sec (0=unlimited)")
	segmentItems := flag.Int("segment-items", 1000, "items per segment")
	codecName := flag.String("codec", "json", "record codec (json, proto)")
	compression := flag.String("compression", "none", "frame compression (none, gzip, snappy, lz4, zstd)")
	flag.Parse()

	spillDir := *dir
	if spillDir == "" {
		tmp, err := os.MkdirTemp("", "spillq-bench-")
		if err != nil {
			log.Fatalf("❌ create spill directory: %v", err)
		}
		defer os.RemoveAll(tmp)
		spillDir = tmp
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := bench.NewBenchmarkRunner(spillDir, *producers, *messages, *rate, *segmentItems, *codecName)
	runner.Compression = *compression
	if _, err := runner.Run(ctx); err != nil {
		log.Printf("❌ benchmark failed: %v", err)
	}
}
