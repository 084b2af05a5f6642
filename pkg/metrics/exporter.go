package metrics

import (
	"fmt"
	"net/http"

	"github.com/downfa11-org/spillq/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(ItemsDirect, ItemsSpilled, ItemsReplayed, PendingItems)
	prometheus.MustRegister(SegmentsRotated, SegmentsSealed, SegmentsDeleted)
}

func StartMetricsServer(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		util.Info("metrics: prometheus exporter listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			util.Error("metrics: failed to start metrics server: %v", err)
		}
	}()
}

// SetPending records whether the single pending slot is occupied.
func SetPending(occupied bool) {
	if occupied {
		PendingItems.Set(1)
		return
	}
	PendingItems.Set(0)
}
