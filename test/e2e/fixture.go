package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/downfa11-org/spillq/pkg/disk"
	"github.com/downfa11-org/spillq/pkg/metrics"
	"github.com/downfa11-org/spillq/pkg/spillover"
	"github.com/downfa11-org/spillq/pkg/stream"
	"github.com/downfa11-org/spillq/pkg/types"
	dto "github.com/prometheus/client_model/go"
)

// TestContext holds the state shared by the Given, When and Then phases.
type TestContext struct {
	t *testing.T

	dm              *disk.DiskManager
	root            string
	queue           string
	numMessages     int
	ratePerSec      int
	segmentMaxItems int

	gate  *gateConsumer
	out   *bytes.Buffer
	lease *disk.Lease
	s     *spillover.Spillover[types.Message]

	published    []string
	lastErr      error
	spilledStart float64
}

func Given(t *testing.T) *TestContext {
	root := t.TempDir()
	return &TestContext{
		t:               t,
		root:            root,
		queue:           "e2e",
		numMessages:     100,
		ratePerSec:      1000,
		segmentMaxItems: 16,
		spilledStart:    counterValue(t, metrics.ItemsSpilled),
	}
}

func (c *TestContext) WithQueue(name string) *TestContext {
	c.queue = name
	return c
}

func (c *TestContext) WithNumMessages(n int) *TestContext {
	c.numMessages = n
	return c
}

func (c *TestContext) WithConsumerRate(perSec int) *TestContext {
	c.ratePerSec = perSec
	return c
}

func (c *TestContext) WithSegmentMaxItems(n int) *TestContext {
	c.segmentMaxItems = n
	return c
}

func (c *TestContext) When() *Actions {
	c.dm = disk.NewDiskManager(c.root, disk.Options{MaxItems: c.segmentMaxItems, NoSync: true})
	return &Actions{ctx: c}
}

// Cleanup releases whatever a failed scenario left open.
func (c *TestContext) Cleanup() {
	if c.s != nil && c.s.Phase() != spillover.PhaseDone {
		_ = c.s.Close()
	}
	if c.lease != nil {
		c.lease.Release()
	}
}

// delivered counts the message IDs the sink wrote out.
func (c *TestContext) delivered() map[string]int {
	counts := make(map[string]int)
	scanner := bufio.NewScanner(bytes.NewReader(c.out.Bytes()))
	for scanner.Scan() {
		var m types.Message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			c.t.Fatalf("bad sink line %q: %v", scanner.Text(), err)
		}
		counts[m.ID]++
	}
	return counts
}

// gateConsumer refuses everything while closed and otherwise passes items to
// the sink.
type gateConsumer struct {
	open atomic.Bool
	*stream.Sink[types.Message]
}

func (g *gateConsumer) TrySend(ctx context.Context, m types.Message) (bool, error) {
	if !g.open.Load() {
		return false, nil
	}
	return g.Sink.TrySend(ctx, m)
}

type counter interface {
	Write(*dto.Metric) error
}

func counterValue(t *testing.T, c counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
