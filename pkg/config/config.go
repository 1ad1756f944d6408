package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"confline/pkg/validation"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Control struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RequireToken    bool          `yaml:"require_token"`

		RateLimit struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"control"`

	Identity struct {
		UserID      int64         `yaml:"user_id"`
		DisplayName string        `yaml:"display_name"`
		TokenSecret string        `yaml:"token_secret"`
		TokenTTL    time.Duration `yaml:"token_ttl"`
	} `yaml:"identity"`

	Directory struct {
		Mode              string        `yaml:"mode"` // "http" or "memory"
		BaseURL           string        `yaml:"base_url"`
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`

		CircuitBreaker struct {
			FailureThreshold int           `yaml:"failure_threshold"`
			SuccessThreshold int           `yaml:"success_threshold"`
			OpenTimeout      time.Duration `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"directory"`

	Surface struct {
		URL          string        `yaml:"url"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		DialAttempts int           `yaml:"dial_attempts"`
	} `yaml:"surface"`

	Network struct {
		SampleInterval time.Duration `yaml:"sample_interval"`
		ProbeURL       string        `yaml:"probe_url"` // empty = telemetry unavailable
		ProbeBytes     int64         `yaml:"probe_bytes"`
		ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	} `yaml:"network"`

	Calibration struct {
		FrameInterval time.Duration `yaml:"frame_interval"`
		FFTSize       int           `yaml:"fft_size"`
	} `yaml:"calibration"`

	History struct {
		Limit int `yaml:"limit"`

		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
			Key      string `yaml:"key"`
		} `yaml:"redis"`
	} `yaml:"history"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Control API
	if c.Control.Address == "" {
		return fmt.Errorf("control.address must not be empty")
	}
	if c.Control.ReadTimeout <= 0 {
		return fmt.Errorf("control.read_timeout must be > 0")
	}
	if c.Control.WriteTimeout <= 0 {
		return fmt.Errorf("control.write_timeout must be > 0")
	}
	if c.Control.ShutdownTimeout <= 0 {
		return fmt.Errorf("control.shutdown_timeout must be > 0")
	}
	if c.Control.RateLimit.Enabled && (c.Control.RateLimit.RequestsPerSecond <= 0 || c.Control.RateLimit.Burst <= 0) {
		return fmt.Errorf("control.rate_limit needs requests_per_second and burst > 0 when enabled")
	}

	// Identity
	if c.Identity.UserID <= 0 {
		return fmt.Errorf("identity.user_id must be > 0")
	}
	if c.Identity.TokenSecret == "" {
		return fmt.Errorf("identity.token_secret must not be empty")
	}
	if c.Identity.TokenTTL <= 0 {
		return fmt.Errorf("identity.token_ttl must be > 0")
	}

	// Directory
	switch c.Directory.Mode {
	case "memory":
	case "http":
		if c.Directory.BaseURL == "" {
			return fmt.Errorf("directory.base_url must not be empty when directory.mode=http")
		}
		if err := validation.ValidateURL(c.Directory.BaseURL); err != nil {
			return fmt.Errorf("directory.base_url: %w", err)
		}
	default:
		return fmt.Errorf("directory.mode must be http or memory, got %q", c.Directory.Mode)
	}
	if c.Directory.Timeout <= 0 {
		return fmt.Errorf("directory.timeout must be > 0")
	}
	if c.Directory.RequestsPerSecond <= 0 {
		return fmt.Errorf("directory.requests_per_second must be > 0")
	}
	if c.Directory.Burst <= 0 {
		return fmt.Errorf("directory.burst must be > 0")
	}
	if c.Directory.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("directory.circuit_breaker.failure_threshold must be > 0")
	}
	if c.Directory.CircuitBreaker.OpenTimeout <= 0 {
		return fmt.Errorf("directory.circuit_breaker.open_timeout must be > 0")
	}

	// Surface
	if c.Surface.URL != "" {
		if err := validation.ValidateURL(c.Surface.URL); err != nil {
			return fmt.Errorf("surface.url: %w", err)
		}
	}
	if c.Surface.PingInterval <= 0 {
		return fmt.Errorf("surface.ping_interval must be > 0")
	}
	if c.Surface.PongTimeout <= c.Surface.PingInterval {
		return fmt.Errorf("surface.pong_timeout must be > surface.ping_interval")
	}
	if c.Surface.DialAttempts < 0 {
		return fmt.Errorf("surface.dial_attempts must be >= 0")
	}

	// Network
	if c.Network.SampleInterval <= 0 {
		return fmt.Errorf("network.sample_interval must be > 0")
	}
	if c.Network.ProbeURL != "" {
		if err := validation.ValidateURL(c.Network.ProbeURL); err != nil {
			return fmt.Errorf("network.probe_url: %w", err)
		}
		if c.Network.ProbeBytes <= 0 {
			return fmt.Errorf("network.probe_bytes must be > 0 when network.probe_url is set")
		}
		if c.Network.ProbeTimeout <= 0 || c.Network.ProbeTimeout >= c.Network.SampleInterval {
			return fmt.Errorf("network.probe_timeout must be > 0 and < network.sample_interval")
		}
	}

	// Calibration
	if c.Calibration.FrameInterval <= 0 {
		return fmt.Errorf("calibration.frame_interval must be > 0")
	}
	if n := c.Calibration.FFTSize; n < 32 || n > 32768 || n&(n-1) != 0 {
		return fmt.Errorf("calibration.fft_size must be a power of 2 between 32 and 32768")
	}

	// History
	if c.History.Limit <= 0 {
		return fmt.Errorf("history.limit must be > 0")
	}
	if c.History.Redis.Enabled {
		if c.History.Redis.Address == "" {
			return fmt.Errorf("history.redis.address must not be empty when history.redis.enabled=true")
		}
		if c.History.Redis.PoolSize <= 0 {
			return fmt.Errorf("history.redis.pool_size must be > 0 when history.redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A .env file in the working directory, if present, is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Control.Address = "127.0.0.1:7480"
	cfg.Control.ReadTimeout = 15 * time.Second
	cfg.Control.WriteTimeout = 15 * time.Second
	cfg.Control.ShutdownTimeout = 10 * time.Second
	cfg.Control.RateLimit.Enabled = true
	cfg.Control.RateLimit.RequestsPerSecond = 50
	cfg.Control.RateLimit.Burst = 100

	cfg.Identity.UserID = 1
	cfg.Identity.DisplayName = "Guest"
	cfg.Identity.TokenSecret = "change-me-in-production"
	cfg.Identity.TokenTTL = 15 * time.Minute

	cfg.Directory.Mode = "memory"
	cfg.Directory.Timeout = 10 * time.Second
	cfg.Directory.RequestsPerSecond = 10
	cfg.Directory.Burst = 20
	cfg.Directory.CircuitBreaker.FailureThreshold = 5
	cfg.Directory.CircuitBreaker.SuccessThreshold = 2
	cfg.Directory.CircuitBreaker.OpenTimeout = 30 * time.Second

	cfg.Surface.PingInterval = 30 * time.Second
	cfg.Surface.PongTimeout = 60 * time.Second
	cfg.Surface.DialAttempts = 3

	cfg.Network.SampleInterval = 5 * time.Second
	cfg.Network.ProbeBytes = 256 * 1024
	cfg.Network.ProbeTimeout = 3 * time.Second

	// one analysis per 60 Hz display frame
	cfg.Calibration.FrameInterval = 16 * time.Millisecond
	cfg.Calibration.FFTSize = 256

	cfg.History.Limit = 20
	cfg.History.Redis.Enabled = false
	cfg.History.Redis.Address = "localhost:6379"
	cfg.History.Redis.PoolSize = 10
	cfg.History.Redis.Key = "confline:history"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("CONFLINE_CONTROL_ADDRESS"); addr != "" {
		c.Control.Address = addr
	}
	if id := os.Getenv("CONFLINE_USER_ID"); id != "" {
		if v, err := strconv.ParseInt(id, 10, 64); err == nil {
			c.Identity.UserID = v
		}
	}
	if name := os.Getenv("CONFLINE_DISPLAY_NAME"); name != "" {
		c.Identity.DisplayName = name
	}
	if secret := os.Getenv("CONFLINE_TOKEN_SECRET"); secret != "" {
		c.Identity.TokenSecret = secret
	}
	if url := os.Getenv("CONFLINE_DIRECTORY_URL"); url != "" {
		c.Directory.BaseURL = url
		c.Directory.Mode = "http"
	}
	if url := os.Getenv("CONFLINE_SURFACE_URL"); url != "" {
		c.Surface.URL = url
	}
	if level := os.Getenv("CONFLINE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
