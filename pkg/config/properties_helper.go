package config

import (
	"strings"
	"time"

	"github.com/downfa11-org/spillq/util"
)

func (cfg *Config) Normalize() {
	if strings.TrimSpace(cfg.SpillDir) == "" {
		cfg.SpillDir = "spill"
	}
	if strings.TrimSpace(cfg.QueueName) == "" {
		cfg.QueueName = "default"
	}
	if cfg.SegmentMaxItems < 0 {
		util.Warn("Invalid segment_max_items (%d), defaulting to unlimited", cfg.SegmentMaxItems)
		cfg.SegmentMaxItems = 0
	}
	cfg.Compression = strings.ToLower(strings.TrimSpace(cfg.Compression))
	switch cfg.Compression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	case "":
		cfg.Compression = "none"
	default:
		util.Warn("Invalid compression_type '%s', defaulting to 'none'", cfg.Compression)
		cfg.Compression = "none"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64 << 10
	}
	if cfg.LingerMS <= 0 {
		cfg.LingerMS = 50
	}
	if cfg.ConsumerRatePerSec <= 0 {
		cfg.ConsumerRatePerSec = 100
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}
}

func (cfg *Config) Linger() time.Duration {
	return time.Duration(cfg.LingerMS) * time.Millisecond
}
