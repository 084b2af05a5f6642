package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/config"
	"github.com/downfa11-org/spillq/pkg/disk"
	"github.com/downfa11-org/spillq/pkg/metrics"
	"github.com/downfa11-org/spillq/pkg/spillover"
	"github.com/downfa11-org/spillq/pkg/stream"
	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/downfa11-org/spillq/util"
	"github.com/google/uuid"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
	}

	dm := disk.NewDiskManager(cfg.SpillDir, disk.Options{
		MaxItems:   cfg.SegmentMaxItems,
		BufferSize: cfg.BufferSize,
		NoSync:     cfg.NoSync,
	})
	c, err := codec.Compressed(codec.JSON[types.Message](), cfg.Compression)
	if err != nil {
		log.Fatalf("❌ Invalid codec: %v", err)
	}
	w, r, lease, err := disk.OpenQueue(dm, cfg.QueueName, c)
	if err != nil {
		log.Fatalf("❌ Failed to open queue %s: %v", cfg.QueueName, err)
	}
	defer lease.Release()

	fmt.Fprintf(os.Stderr, "🚀 Spilling to %s (segment %d) | rate %d/s | 📊 Exporter: %v\n",
		dm.Dir(cfg.QueueName), w.CurrentIndex(), cfg.ConsumerRatePerSec, cfg.EnableExporter)

	sink := stream.NewSink(os.Stdout, func(m types.Message) ([]byte, error) {
		return json.Marshal(m)
	}, stream.SinkOptions{RatePerSec: cfg.ConsumerRatePerSec})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream := make(chan types.Message)
	go readLines(ctx, os.Stdin, upstream)

	s := spillover.New[types.Message](sink, upstream, w, r, spillover.Options{Linger: cfg.Linger()})
	if _, _, err := s.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			util.Info("interrupted in phase %s, spilled items stay in %s", s.Phase(), dm.Dir(cfg.QueueName))
			if err := s.Close(); err != nil {
				util.Error("release spill queue: %v", err)
			}
			return
		}
		log.Fatalf("❌ Spillover failed: %v", err)
	}
	fmt.Fprintf(os.Stderr, "✅ Delivered %d records\n", sink.Delivered())
}

func readLines(ctx context.Context, f *os.File, out chan<- types.Message) {
	defer close(out)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		msg := types.Message{
			ID:        uuid.NewString(),
			Payload:   scanner.Text(),
			CreatedAt: time.Now().UTC(),
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		util.Error("read stdin: %v", err)
	}
}
