package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ItemsDirect = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spillq_items_direct_total",
		Help: "Items handed straight to the consumer",
	})

	ItemsSpilled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spillq_items_spilled_total",
		Help: "Items written to the spill directory because the consumer was not ready",
	})

	ItemsReplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spillq_items_replayed_total",
		Help: "Items read back from the spill directory and delivered to the consumer",
	})

	PendingItems = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spillq_pending_items",
		Help: "Items parked because neither the consumer nor the spill directory took them (0 or 1)",
	})

	SegmentsRotated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spillq_segments_rotated_total",
		Help: "Segment rotations after reaching the per-segment item cap",
	})

	SegmentsSealed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spillq_segments_sealed_total",
		Help: "Segments marked read-only by their writer",
	})

	SegmentsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spillq_segments_deleted_total",
		Help: "Segments removed after being fully drained",
	})
)
