package bench

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/disk"
	"github.com/downfa11-org/spillq/pkg/spillover"
	"github.com/downfa11-org/spillq/pkg/stream"
	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// BenchmarkRunner pushes generated records from several producers through a
// spillover into a rate limited sink and reports throughput.
type BenchmarkRunner struct {
	Dir                 string
	NumProducers        int
	MessagesPerProducer int
	RatePerSec          int
	SegmentMaxItems     int
	Codec               string
	Compression         string
	Out                 io.Writer
}

type Result struct {
	Messages  int
	Delivered int
	Duration  time.Duration
}

func (r Result) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Delivered) / r.Duration.Seconds()
}

func NewBenchmarkRunner(dir string, producers, messages, rate, segmentMaxItems int, codecName string) *BenchmarkRunner {
	return &BenchmarkRunner{
		Dir:                 dir,
		NumProducers:        producers,
		MessagesPerProducer: messages,
		RatePerSec:          rate,
		SegmentMaxItems:     segmentMaxItems,
		Codec:               codecName,
		Out:                 os.Stdout,
	}
}

func (b *BenchmarkRunner) Run(ctx context.Context) (Result, error) {
	var (
		res Result
		err error
	)
	switch b.Codec {
	case "proto":
		res, err = run(ctx, b, codec.Proto(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }),
			func(pid, i int) *wrapperspb.StringValue {
				return wrapperspb.String(fmt.Sprintf("bench-msg-P%d-Msg%d", pid, i))
			},
			func(m *wrapperspb.StringValue) ([]byte, error) { return proto.Marshal(m) })
	case "json", "":
		res, err = run(ctx, b, codec.JSON[types.Message](),
			func(pid, i int) types.Message {
				return types.Message{
					ID:        uuid.NewString(),
					Payload:   fmt.Sprintf("bench-msg-P%d-Msg%d", pid, i),
					Key:       fmt.Sprintf("P%d", pid),
					CreatedAt: time.Now(),
				}
			},
			func(m types.Message) ([]byte, error) { return []byte(m.ID), nil })
	default:
		return Result{}, fmt.Errorf("bench: unknown codec %q", b.Codec)
	}
	if err != nil {
		return res, err
	}
	b.report(res)
	return res, nil
}

func run[T any](ctx context.Context, b *BenchmarkRunner, c codec.Codec[T], gen func(pid, i int) T, encode func(T) ([]byte, error)) (Result, error) {
	c, err := codec.Compressed(c, b.Compression)
	if err != nil {
		return Result{}, err
	}
	sink := stream.NewSink(io.Discard, encode, stream.SinkOptions{RatePerSec: b.RatePerSec, BatchSize: 64})
	upstream := make(chan T, 64)

	s, err := spillover.Backpressure[T](sink, upstream, b.Dir, c,
		disk.Options{MaxItems: b.SegmentMaxItems, NoSync: true}, spillover.Options{})
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	producers, pctx := errgroup.WithContext(ctx)
	for i := 0; i < b.NumProducers; i++ {
		pid := i
		producers.Go(func() error {
			for n := 0; n < b.MessagesPerProducer; n++ {
				select {
				case upstream <- gen(pid, n):
				case <-pctx.Done():
					return pctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		_ = producers.Wait()
		close(upstream)
	}()

	if _, _, err := s.Run(ctx); err != nil {
		_ = s.Close()
		return Result{}, err
	}
	return Result{
		Messages:  b.NumProducers * b.MessagesPerProducer,
		Delivered: sink.Delivered(),
		Duration:  time.Since(start),
	}, nil
}

func (b *BenchmarkRunner) report(res Result) {
	fmt.Fprintf(b.Out, "\n🧪 BENCHMARK RESULT [spillover/%s+%s] 🧪\n", b.codecName(), b.compressionName())
	fmt.Fprintf(b.Out, "-------------------------------------\n")
	fmt.Fprintf(b.Out, " Producers     : %d\n", b.NumProducers)
	fmt.Fprintf(b.Out, " Consumer rate : %d msg/sec\n", b.RatePerSec)
	fmt.Fprintf(b.Out, " Segment cap   : %d\n", b.SegmentMaxItems)
	fmt.Fprintf(b.Out, " Total Messages: %d\n", res.Messages)
	fmt.Fprintf(b.Out, " Delivered     : %d\n", res.Delivered)
	fmt.Fprintf(b.Out, " Duration      : %v\n", res.Duration)
	fmt.Fprintf(b.Out, " Throughput    : %.2f msg/sec\n", res.Throughput())
	fmt.Fprintf(b.Out, "-------------------------------------\n")
}

func (b *BenchmarkRunner) codecName() string {
	if b.Codec == "" {
		return "json"
	}
	return b.Codec
}

func (b *BenchmarkRunner) compressionName() string {
	if b.Compression == "" {
		return "none"
	}
	return b.Compression
}
