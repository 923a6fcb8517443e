package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all static configuration for the ChartPort pipeline. Values
// here require a restart; tunable pipeline parameters live in Pipeline and
// are hot-reloadable through the operator API.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"CHARTPORT_HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Task store backend selection
	Store StoreConfig

	// Redis configuration (redis task store backend and event bus)
	Redis RedisConfig

	// Wiki endpoints and credentials
	Wiki WikiConfig

	// Conversion service
	Converter ConverterConfig

	// Timeouts
	Timeouts TimeoutConfig

	// Initial pipeline parameters (hot-reloadable after boot)
	Pipeline Pipeline
}

// StoreConfig selects and configures the task store backend
type StoreConfig struct {
	Backend    string `env:"TASKSTORE_BACKEND" envDefault:"sqlite"`
	SQLitePath string `env:"TASKSTORE_SQLITE_PATH" envDefault:"chartport.db"`
	EventBus   string `env:"EVENTBUS_BACKEND" envDefault:"memory"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// WikiConfig holds wiki API endpoints and bot credentials
type WikiConfig struct {
	// APIBaseURL is the action API endpoint of the source-of-truth wiki.
	APIBaseURL string `env:"WIKI_API_URL" envDefault:"https://en.wikipedia.org/w/api.php"`
	// RegistryAPIBaseURL is the action API endpoint of the wiki hosting the
	// artifact namespace checked for name collisions.
	RegistryAPIBaseURL string `env:"REGISTRY_API_URL" envDefault:"https://commons.wikimedia.org/w/api.php"`

	Username    string `env:"WIKI_USERNAME"`
	AccessToken string `env:"WIKI_ACCESS_TOKEN"`
	UserAgent   string `env:"WIKI_USER_AGENT" envDefault:"ChartPort/1"`

	RequestTimeout time.Duration `env:"WIKI_REQUEST_TIMEOUT" envDefault:"30s"`
}

// ConverterConfig holds the conversion service endpoint
type ConverterConfig struct {
	BaseURL        string        `env:"CONVERTER_URL" envDefault:"http://localhost:8000"`
	RequestTimeout time.Duration `env:"CONVERTER_REQUEST_TIMEOUT" envDefault:"60s"`
}

// TimeoutConfig holds process-level timeouts
type TimeoutConfig struct {
	ShutdownTimeout  time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
	ShutdownPagePoll time.Duration `env:"SHUTDOWN_PAGE_POLL" envDefault:"60s"`
}

// Pipeline holds the tunable pipeline parameters. A copy is kept behind a
// Runtime and may be updated through the operator API; the scheduler reads a
// snapshot at the start of every cycle.
type Pipeline struct {
	Concurrency      int           `env:"PIPELINE_CONCURRENCY" envDefault:"5" json:"concurrency"`
	MaxAttempts      int           `env:"PIPELINE_MAX_ATTEMPTS" envDefault:"5" json:"max_attempts"`
	BackoffBase      time.Duration `env:"PIPELINE_BACKOFF_BASE" envDefault:"30s" json:"backoff_base"`
	BackoffCap       time.Duration `env:"PIPELINE_BACKOFF_CAP" envDefault:"1h" json:"backoff_cap"`
	LeaseTimeout     time.Duration `env:"PIPELINE_LEASE_TIMEOUT" envDefault:"10m" json:"lease_timeout"`
	ScanInterval     time.Duration `env:"PIPELINE_SCAN_INTERVAL" envDefault:"5m" json:"scan_interval"`
	ScanPageLimit    int           `env:"PIPELINE_SCAN_PAGE_LIMIT" envDefault:"200" json:"scan_page_limit"`
	TrackingCategory string        `env:"PIPELINE_TRACKING_CATEGORY" envDefault:"Category:Graphs to port" json:"tracking_category"`
	EditSummary      string        `env:"PIPELINE_EDIT_SUMMARY" envDefault:"Port legacy graph to chart" json:"edit_summary"`
	Paused           bool          `env:"PIPELINE_PAUSED" envDefault:"false" json:"paused"`
}

// Validate checks pipeline parameters
func (p Pipeline) Validate() error {
	if p.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if p.BackoffBase <= 0 {
		return fmt.Errorf("backoff base must be positive")
	}
	if p.BackoffCap < p.BackoffBase {
		return fmt.Errorf("backoff cap must be at least the base")
	}
	if p.LeaseTimeout <= 0 {
		return fmt.Errorf("lease timeout must be positive")
	}
	if p.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive")
	}
	if p.ScanPageLimit < 1 {
		return fmt.Errorf("scan page limit must be at least 1")
	}
	if p.TrackingCategory == "" {
		return fmt.Errorf("tracking category is required")
	}
	return nil
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.Store.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unsupported task store backend: %s", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("sqlite path is required for the sqlite backend")
	}

	switch c.Store.EventBus {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported event bus backend: %s", c.Store.EventBus)
	}

	if (c.Store.Backend == "redis" || c.Store.EventBus == "redis") && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Wiki.APIBaseURL == "" {
		return fmt.Errorf("wiki API URL is required")
	}
	if c.Wiki.RegistryAPIBaseURL == "" {
		return fmt.Errorf("registry API URL is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return c.Pipeline.Validate()
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Runtime holds the live pipeline parameters behind a read lock. The
// scheduler takes one snapshot per cycle, so an Apply never tears a cycle's
// view of the settings.
type Runtime struct {
	mu sync.RWMutex
	p  Pipeline
}

// NewRuntime seeds the runtime from the boot-time pipeline config
func NewRuntime(p Pipeline) *Runtime {
	return &Runtime{p: p}
}

// Snapshot returns a consistent copy of the current parameters
func (r *Runtime) Snapshot() Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.p
}

// Apply validates and installs new parameters
func (r *Runtime) Apply(p Pipeline) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
	return nil
}
