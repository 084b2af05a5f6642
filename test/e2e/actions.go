package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/downfa11-org/spillq/pkg/codec"
	"github.com/downfa11-org/spillq/pkg/disk"
	"github.com/downfa11-org/spillq/pkg/spillover"
	"github.com/downfa11-org/spillq/pkg/stream"
	"github.com/downfa11-org/spillq/pkg/types"
	"github.com/google/uuid"
)

// Actions represents test actions (When phase)
type Actions struct {
	ctx *TestContext
}

// StartSpillover opens the queue and wires a fresh spillover with an open
// consumer gate.
func (a *Actions) StartSpillover() *Actions {
	return a.start(true)
}

// StartWithBlockedConsumer is StartSpillover with a consumer that takes
// nothing until OpenConsumer.
func (a *Actions) StartWithBlockedConsumer() *Actions {
	return a.start(false)
}

func (a *Actions) start(open bool) *Actions {
	c := a.ctx
	w, r, lease, err := disk.OpenQueue(c.dm, c.queue, codec.JSON[types.Message]())
	if err != nil {
		c.t.Fatalf("Failed to open queue %s: %v", c.queue, err)
	}
	c.lease = lease
	c.t.Logf("Queue '%s' opened at segment %d", c.queue, w.CurrentIndex())

	if c.out == nil {
		c.out = &bytes.Buffer{}
	}
	sink := stream.NewSink(c.out, func(m types.Message) ([]byte, error) {
		return json.Marshal(m)
	}, stream.SinkOptions{RatePerSec: c.ratePerSec, BatchSize: 8})
	c.gate = &gateConsumer{Sink: sink}
	c.gate.open.Store(open)

	upstream := make(chan types.Message, c.numMessages)
	c.s = spillover.New[types.Message](c.gate, upstream, w, r, spillover.Options{Linger: 5 * time.Millisecond})
	a.publishTo(upstream)
	return a
}

func (a *Actions) publishTo(upstream chan<- types.Message) {
	c := a.ctx
	for i := 0; i < c.numMessages; i++ {
		m := types.Message{
			ID:        uuid.NewString(),
			Payload:   fmt.Sprintf("test-message-%d", i),
			CreatedAt: time.Now(),
		}
		upstream <- m
		c.published = append(c.published, m.ID)
	}
	close(upstream)
	c.t.Logf("Published %d messages", c.numMessages)
}

func (a *Actions) OpenConsumer() *Actions {
	a.ctx.gate.open.Store(true)
	return a
}

// RunToCompletion drives the spillover through its whole shutdown.
func (a *Actions) RunToCompletion() *Actions {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	start := time.Now()
	_, _, err := a.ctx.s.Run(ctx)
	a.ctx.lastErr = err
	if err != nil {
		a.ctx.t.Fatalf("Spillover failed in phase %s: %v", a.ctx.s.Phase(), err)
	}
	a.ctx.lease.Release()
	a.ctx.t.Logf("Spillover finished in %v", time.Since(start))
	return a
}

// RunFor drives the spillover until d elapses.
func (a *Actions) RunFor(d time.Duration) *Actions {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	_, _, err := a.ctx.s.Run(ctx)
	a.ctx.lastErr = err
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.ctx.t.Fatalf("Spillover failed in phase %s: %v", a.ctx.s.Phase(), err)
	}
	a.ctx.t.Logf("Spillover stopped in phase %s", a.ctx.s.Phase())
	return a
}

// Crash abandons the running spillover the way a killed process would,
// leaving only what reached the disk.
func (a *Actions) Crash() *Actions {
	if err := a.ctx.s.Close(); err != nil {
		a.ctx.t.Fatalf("Failed to release spillover: %v", err)
	}
	a.ctx.lease.Release()
	a.ctx.s = nil
	return a
}

// Restart reopens the queue with an open consumer and no new messages.
func (a *Actions) Restart() *Actions {
	a.ctx.numMessages = 0
	return a.start(true)
}

func (a *Actions) Then() *Consequences {
	return &Consequences{ctx: a.ctx}
}
