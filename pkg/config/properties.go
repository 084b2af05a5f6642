package config

import (
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/downfa11-org/spillq/util"
	"gopkg.in/yaml.v3"
)

// Config represents the spill queue configuration
type Config struct {
	// Spill directory
	SpillDir        string `yaml:"spill_dir" json:"spill.dir"`
	QueueName       string `yaml:"queue_name" json:"queue.name"`
	SegmentMaxItems int    `yaml:"segment_max_items" json:"segment.max.items"`
	BufferSize      int    `yaml:"buffer_size" json:"buffer.size"`
	NoSync          bool   `yaml:"no_sync" json:"no.sync"`
	Compression     string `yaml:"compression_type" json:"compression.type"`

	// Spillover loop
	LingerMS int `yaml:"linger_ms" json:"linger.ms"`

	// Demo consumer
	ConsumerRatePerSec int `yaml:"consumer_rate_per_sec" json:"consumer.rate.per.sec"`

	// Observability
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`
}

// LoadConfig reads the process flags, an optional config file and SPILLQ_*
// environment overrides.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds a Config from args. Precedence, lowest first: flag defaults,
// the config file (-config or CONFIG_PATH), environment, explicitly set flags.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("spillq", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to YAML/JSON config file")
	spillDirStr := fs.String("spill-dir", "spill", "Root directory holding spill queues")
	queueStr := fs.String("queue", "default", "Queue name under the spill root")
	maxItemsStr := fs.String("segment-max-items", "1000", "Items per segment before rotation (0=unlimited)")
	bufferSizeStr := fs.String("buffer-size", "65536", "Segment write buffer size in bytes")
	noSyncStr := fs.String("no-sync", "false", "Skip fsync after flushing a segment")
	compressionStr := fs.String("compression", "none", "Frame compression (none, gzip, snappy, lz4, zstd)")
	lingerStr := fs.String("linger-ms", "50", "Retry interval for a refusing consumer (ms)")
	rateStr := fs.String("rate", "100", "Demo consumer throughput (items/sec)")
	exporterStr := fs.String("exporter", "false", "Enable Prometheus exporter")
	exporterPortStr := fs.String("exporter-port", "9100", "Exporter port")
	logLevelStr := fs.String("log-level", "info", "Log Level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" && *configPath == "" {
		*configPath = envPath
	}

	cfg.SpillDir = *spillDirStr
	cfg.QueueName = *queueStr
	cfg.SegmentMaxItems = util.ParseInt(*maxItemsStr, 1000)
	cfg.BufferSize = util.ParseInt(*bufferSizeStr, 64<<10)
	cfg.NoSync = util.ParseBool(*noSyncStr, false)
	cfg.Compression = *compressionStr
	cfg.LingerMS = util.ParseInt(*lingerStr, 50)
	cfg.ConsumerRatePerSec = util.ParseInt(*rateStr, 100)
	cfg.EnableExporter = util.ParseBool(*exporterStr, false)
	cfg.ExporterPort = util.ParseInt(*exporterPortStr, 9100)
	cfg.LogLevel = util.ParseLogLevel(*logLevelStr)

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, err
		}

		if strings.HasSuffix(*configPath, ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg)

	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "spill-dir":
			cfg.SpillDir = v
		case "queue":
			cfg.QueueName = v
		case "segment-max-items":
			cfg.SegmentMaxItems = util.ParseInt(v, cfg.SegmentMaxItems)
		case "buffer-size":
			cfg.BufferSize = util.ParseInt(v, cfg.BufferSize)
		case "no-sync":
			cfg.NoSync = util.ParseBool(v, cfg.NoSync)
		case "compression":
			cfg.Compression = v
		case "linger-ms":
			cfg.LingerMS = util.ParseInt(v, cfg.LingerMS)
		case "rate":
			cfg.ConsumerRatePerSec = util.ParseInt(v, cfg.ConsumerRatePerSec)
		case "exporter":
			cfg.EnableExporter = util.ParseBool(v, cfg.EnableExporter)
		case "exporter-port":
			cfg.ExporterPort = util.ParseInt(v, cfg.ExporterPort)
		case "log-level":
			cfg.LogLevel = util.ParseLogLevel(v)
		}
	})

	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideEnvString(&cfg.SpillDir, "SPILLQ_SPILL_DIR")
	overrideEnvString(&cfg.QueueName, "SPILLQ_QUEUE")
	overrideEnvInt(&cfg.SegmentMaxItems, "SPILLQ_SEGMENT_MAX_ITEMS")
	overrideEnvInt(&cfg.BufferSize, "SPILLQ_BUFFER_SIZE")
	overrideEnvBool(&cfg.NoSync, "SPILLQ_NO_SYNC")
	overrideEnvString(&cfg.Compression, "SPILLQ_COMPRESSION")
	overrideEnvInt(&cfg.LingerMS, "SPILLQ_LINGER_MS")
	overrideEnvInt(&cfg.ConsumerRatePerSec, "SPILLQ_CONSUMER_RATE")
	overrideEnvBool(&cfg.EnableExporter, "SPILLQ_ENABLE_EXPORTER")
	overrideEnvInt(&cfg.ExporterPort, "SPILLQ_EXPORTER_PORT")
	if v := os.Getenv("SPILLQ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = util.ParseLogLevel(v)
	}
}

func overrideEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt(v, *target)
	}
}

func overrideEnvBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseBool(v, *target)
	}
}

func overrideEnvString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
