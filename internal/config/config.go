// Package config loads process configuration from the environment
// (with an optional .env file for local development), mirroring the
// env-var-driven configuration style common across the retrieval
// pack's services rather than a bespoke flags-only setup.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable the realtime core and its diagnostics
// surface read at startup. Struct tags are caarlos0/env directives.
type Config struct {
	SampleRate      float64       `env:"RTCORE_SAMPLE_RATE" envDefault:"48000"`
	BlockSize       int           `env:"RTCORE_BLOCK_SIZE" envDefault:"512"`
	NumChannels     int           `env:"RTCORE_NUM_CHANNELS" envDefault:"2"`
	WorkerCount     int           `env:"RTCORE_WORKER_COUNT" envDefault:"0"` // 0 => PhysicalCoreCount()
	PinWorkers      bool          `env:"RTCORE_PIN_WORKERS" envDefault:"true"`
	SpinMode        string        `env:"RTCORE_SPIN_MODE" envDefault:"fixed"` // "fixed" | "benchmarked"
	DeferredClose   time.Duration `env:"RTCORE_DEFERRED_CLOSE" envDefault:"2s"`
	DiagListenAddr  string        `env:"RTCORE_DIAG_ADDR" envDefault:":9090"`
	DiagJWTSecret   string        `env:"RTCORE_DIAG_JWT_SECRET" envDefault:""`
	MetricsEnabled  bool          `env:"RTCORE_METRICS_ENABLED" envDefault:"true"`
	EventsNATSURL   string        `env:"RTCORE_EVENTS_NATS_URL" envDefault:""`
	LogJSON         bool          `env:"RTCORE_LOG_JSON" envDefault:"false"`
}

// Load reads .env (if present; a missing file is not an error) and
// then the process environment, environment variables taking
// precedence over .env's contents per godotenv.Load's semantics.
func Load() (Config, error) {
	_ = godotenv.Load() // optional; ignored if absent

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
