package bench_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/downfa11-org/spillq/pkg/bench"
)

func TestBenchmarkRunnerDeliversEverything(t *testing.T) {
	for _, codecName := range []string{"json", "proto"} {
		t.Run(codecName, func(t *testing.T) {
			var out bytes.Buffer
			runner := bench.NewBenchmarkRunner(t.TempDir(), 3, 40, 2000, 16, codecName)
			runner.Out = &out

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			res, err := runner.Run(ctx)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Delivered != 120 || res.Messages != 120 {
				t.Fatalf("expected 120 delivered of 120, got %d of %d", res.Delivered, res.Messages)
			}
			if !strings.Contains(out.String(), "Delivered     : 120") {
				t.Fatalf("report missing delivered count:\n%s", out.String())
			}
		})
	}
}

func TestBenchmarkRunnerCompressed(t *testing.T) {
	var out bytes.Buffer
	runner := bench.NewBenchmarkRunner(t.TempDir(), 2, 50, 0, 8, "json")
	runner.Compression = "lz4"
	runner.Out = &out

	res, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Delivered != 100 {
		t.Fatalf("expected 100 delivered, got %d", res.Delivered)
	}
	if !strings.Contains(out.String(), "json+lz4") {
		t.Fatalf("report should name the codec and compression:\n%s", out.String())
	}
}

func TestBenchmarkRunnerUnknownCodec(t *testing.T) {
	runner := bench.NewBenchmarkRunner(t.TempDir(), 1, 1, 0, 0, "xml")
	if _, err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected an error for an unknown codec")
	}
}
