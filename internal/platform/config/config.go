package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every variable, e.g. IDEAJAR_HTTP_PORT.
const EnvPrefix = "IDEAJAR"

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string   `envconfig:"SERVICE_NAME" default:"ideajar"`
	HTTPPort     string   `envconfig:"HTTP_PORT" default:"8080"`
	DBDriver     string   `envconfig:"DB_DRIVER" default:"postgres"`
	DatabaseDSN  string   `envconfig:"DATABASE_DSN"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`

	IdempotencyTTL      time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"168h"`
	DedupTTL            time.Duration `envconfig:"DEDUP_TTL" default:"168h"`
	WorkerPollInterval  time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"2s"`
	OutboxBatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	SweepBatchSize      int           `envconfig:"SWEEP_BATCH_SIZE" default:"50"`
	ExtendMinutes       int           `envconfig:"EXTEND_MINUTES" default:"60"`
	CandidateCount      int           `envconfig:"CANDIDATE_COUNT" default:"0"`
	EnableWinnerHandoff bool          `envconfig:"ENABLE_WINNER_HANDOFF" default:"true"`
	EnableDeadlineSweep bool          `envconfig:"ENABLE_DEADLINE_SWEEP" default:"true"`
}

// Load reads an optional .env file from the working directory and then the
// process environment. Real environment variables win over the file.
func Load() (Config, error) {
	return LoadFrom(".env")
}

func LoadFrom(envFiles ...string) (Config, error) {
	for _, path := range envFiles {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported %s_DB_DRIVER %q", EnvPrefix, cfg.DBDriver)
	}
	brokers := make([]string, 0, len(cfg.KafkaBrokers))
	for _, broker := range cfg.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	cfg.KafkaBrokers = brokers
	return cfg, nil
}
