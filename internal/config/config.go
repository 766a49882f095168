// Package config loads the service configuration from environment variables.
//
// Variables are bound with struct tags through envconfig: nested sections
// take their field's tag as a prefix, so WSConfig.PongWait is read from
// WS_PONG_WAIT. Defaults live in the tags; Load then normalizes a few
// values and validates the whole result, reporting every problem at once.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Supported offline queue backends.
const (
	QueueBackendBadger = "badger"
	QueueBackendRedis  = "redis"
)

// CORSConfig is read from CORS_*.
type CORSConfig struct {
	AllowedOrigins []string `split_words:"true"`
}

// SecurityConfig is read from HSTS_*.
type SecurityConfig struct {
	Enabled bool          `split_words:"true" default:"false"`
	MaxAge  time.Duration `split_words:"true" default:"4320h"`
}

// OTELConfig is read from OTEL_*.
type OTELConfig struct {
	Enabled     bool    `split_words:"true" default:"false"`
	Endpoint    string  `envconfig:"EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	Insecure    bool    `envconfig:"EXPORTER_OTLP_INSECURE" default:"true"`
	ServiceName string  `split_words:"true" default:"go-dm-backend"`
	SampleRatio float64 `envconfig:"TRACES_SAMPLER_ARG" default:"1.0"`
}

// AuthConfig is read from JWT_*. The secret signs and verifies HS256
// tokens; the issuer is enforced only when set.
type AuthConfig struct {
	Secret string `split_words:"true" required:"true"`
	Issuer string `split_words:"true"`
}

// QueueConfig is read from QUEUE_*.
type QueueConfig struct {
	Backend         string        `split_words:"true" default:"badger"`
	KeyPrefix       string        `split_words:"true" default:"offline_messages:"`
	BadgerPath      string        `split_words:"true" default:"data/queue"` // "" = in-memory
	ConnectAttempts int           `split_words:"true" default:"10"`
	HealthInterval  time.Duration `split_words:"true" default:"15s"`
}

// RedisConfig is read from REDIS_* and used when QUEUE_BACKEND=redis.
type RedisConfig struct {
	Addr     string `split_words:"true" default:"localhost:6379"`
	Password string `split_words:"true"`
	DB       int    `split_words:"true" default:"0"`
}

// WSConfig is read from WS_*.
//
// Nested fields are named through split_words rather than envconfig tags:
// a tag such as "PATH" would also be looked up unprefixed.
type WSConfig struct {
	Path           string        `split_words:"true" default:"/ws"`
	WriteTimeout   time.Duration `split_words:"true" default:"10s"`
	PongWait       time.Duration `split_words:"true" default:"60s"`
	PingPeriod     time.Duration `split_words:"true" default:"50s"` // < PongWait
	MaxFrameBytes  int64         `split_words:"true" default:"65536"`
	AllowedOrigins []string      `split_words:"true"` // empty = any origin
}

// Config holds all configuration values for the application.
type Config struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"20s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	GinMode           string        `envconfig:"GIN_MODE" default:"release"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	SwaggerEnabled bool   `envconfig:"SWAGGER_ENABLED" default:"false"`
	APIBasePath    string `envconfig:"API_BASE_PATH" default:"/api/v1"`

	DBPath          string `envconfig:"DB_PATH" default:"app.db"`
	MaxContentRunes int    `envconfig:"MAX_CONTENT_RUNES" default:"4000"`

	RateRPS   float64 `envconfig:"RATE_RPS" default:"5"`
	RateBurst int     `envconfig:"RATE_BURST" default:"10"`

	// IdempotencyTTL is how long an Idempotency-Key answers replays.
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	CORS     CORSConfig     `envconfig:"CORS"`
	Security SecurityConfig `envconfig:"HSTS"`
	Auth     AuthConfig     `envconfig:"JWT"`
	Queue    QueueConfig    `envconfig:"QUEUE"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	WS       WSConfig       `envconfig:"WS"`
	OTEL     OTELConfig     `envconfig:"OTEL"`
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load binds the environment, normalizes and validates the result.
// Malformed values (a bad duration, a non-numeric port count) are errors,
// not silent fallbacks to the default.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	c.GinMode = strings.ToLower(strings.TrimSpace(c.GinMode))
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	c.APIBasePath = normalizeBasePath(c.APIBasePath)
	c.WS.Path = normalizeBasePath(c.WS.Path)
	c.CORS.AllowedOrigins = compact(c.CORS.AllowedOrigins)
	c.WS.AllowedOrigins = compact(c.WS.AllowedOrigins)
}

func (c *Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not a known level", c.LogLevel))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"server timeouts must be positive")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	check(c.MaxContentRunes > 0, "MAX_CONTENT_RUNES must be > 0")
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.MaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(strings.TrimSpace(c.Auth.Secret) != "", "JWT_SECRET must not be blank")

	switch c.Queue.Backend {
	case QueueBackendBadger:
	case QueueBackendRedis:
		check(strings.TrimSpace(c.Redis.Addr) != "", "REDIS_ADDR is required for the redis backend")
	default:
		errs = append(errs, fmt.Errorf("QUEUE_BACKEND %q: want %s or %s", c.Queue.Backend, QueueBackendBadger, QueueBackendRedis))
	}
	check(c.Queue.KeyPrefix != "", "QUEUE_KEY_PREFIX must not be empty")
	check(c.Queue.ConnectAttempts >= 1, "QUEUE_CONNECT_ATTEMPTS must be >= 1")
	check(c.Queue.HealthInterval > 0, "QUEUE_HEALTH_INTERVAL must be > 0")

	check(c.WS.WriteTimeout > 0 && c.WS.PongWait > 0 && c.WS.PingPeriod > 0, "WS timeouts must be positive")
	check(c.WS.PingPeriod < c.WS.PongWait, "WS_PING_PERIOD must be shorter than WS_PONG_WAIT")
	check(c.WS.MaxFrameBytes > 0, "WS_MAX_FRAME_BYTES must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// compact trims list entries and drops empty ones.
func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeBasePath forces a leading slash and drops trailing ones; blank
// means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
