package e2e

import (
	"fmt"

	"github.com/downfa11-org/spillq/pkg/disk"
	"github.com/downfa11-org/spillq/pkg/metrics"
	"github.com/downfa11-org/spillq/pkg/spillover"
)

// Consequences represents test assertions (Then phase)
type Consequences struct {
	ctx *TestContext
}

// Expectation is a function that validates test outcomes
type Expectation func(*TestContext) error

func (c *Consequences) Expect(expectations ...Expectation) *Consequences {
	for _, expectation := range expectations {
		if err := expectation(c.ctx); err != nil {
			c.ctx.t.Error(err)
		}
	}
	return c
}

func (c *Consequences) And(expectations ...Expectation) *Consequences {
	return c.Expect(expectations...)
}

// AllMessagesDelivered verifies every published message reached the sink at
// least once.
func AllMessagesDelivered() Expectation {
	return func(ctx *TestContext) error {
		got := ctx.delivered()
		missing := 0
		for _, id := range ctx.published {
			if got[id] == 0 {
				missing++
			}
		}
		if missing > 0 {
			return fmt.Errorf("%d of %d messages never delivered", missing, len(ctx.published))
		}
		return nil
	}
}

// NoDuplicates verifies no message was delivered twice.
func NoDuplicates() Expectation {
	return func(ctx *TestContext) error {
		for id, n := range ctx.delivered() {
			if n > 1 {
				return fmt.Errorf("message %s delivered %d times", id, n)
			}
		}
		return nil
	}
}

// QueueDrained verifies no segment is left in the queue directory.
func QueueDrained() Expectation {
	return func(ctx *TestContext) error {
		indices, err := disk.ListSegments(ctx.dm.Dir(ctx.queue))
		if err != nil {
			return err
		}
		if len(indices) != 0 {
			return fmt.Errorf("expected drained queue, found segments %v", indices)
		}
		return nil
	}
}

// BacklogOnDisk verifies the queue directory still holds n distinct messages.
func BacklogOnDisk(n int) Expectation {
	return func(ctx *TestContext) error {
		seen := make(map[string]bool)
		_, err := disk.InspectDir(ctx.dm.Dir(ctx.queue), codecForQueue(), func(_ uint64, id string) {
			seen[id] = true
		})
		if err != nil {
			return err
		}
		if len(seen) != n {
			return fmt.Errorf("expected %d messages on disk, found %d", n, len(seen))
		}
		return nil
	}
}

// SomethingSpilled verifies the run took the disk detour at least once.
func SomethingSpilled() Expectation {
	return func(ctx *TestContext) error {
		if counterValue(ctx.t, metrics.ItemsSpilled) <= ctx.spilledStart {
			return fmt.Errorf("expected items to be spilled, counter did not move")
		}
		return nil
	}
}

func PhaseIs(p spillover.Phase) Expectation {
	return func(ctx *TestContext) error {
		if ctx.s == nil {
			return fmt.Errorf("no spillover running")
		}
		if got := ctx.s.Phase(); got != p {
			return fmt.Errorf("expected phase %s, got %s", p, got)
		}
		return nil
	}
}
