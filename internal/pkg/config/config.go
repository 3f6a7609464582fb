package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is loaded once at startup
// and never mutated at runtime.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Conversions API credentials and endpoint.
	PixelID         string `env:"PIXEL_ID,required"`
	AccessToken     string `env:"ACCESS_TOKEN,required"`
	GraphAPIBase    string `env:"GRAPH_API_BASE" envDefault:"https://graph.facebook.com"`
	GraphAPIVersion string `env:"GRAPH_API_VERSION" envDefault:"v22.0"`
	TestEventCode   string `env:"TEST_EVENT_CODE"`

	// Normalization defaults.
	DefaultCurrency    string `env:"DEFAULT_CURRENCY" envDefault:"SEK"`
	DefaultPhoneRegion string `env:"DEFAULT_PHONE_REGION" envDefault:"SE"`
	SynthesizeEventID  bool   `env:"SYNTHESIZE_EVENT_ID" envDefault:"false"`

	// Pending event-id cache. Setting REDIS_ADDR switches the backing store
	// from the in-memory cache to redis.
	RedisAddr            string        `env:"REDIS_ADDR"`
	PendingEventTTL      time.Duration `env:"PENDING_EVENT_TTL" envDefault:"1h"`
	PendingEventCapacity int           `env:"PENDING_EVENT_CAPACITY" envDefault:"10000"`

	// HTTP surface.
	ServerAddr      string        `env:"SERVER_ADDR" envDefault:":8080"`
	AdminAddr       string        `env:"ADMIN_ADDR" envDefault:":9091"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxBodySize     int64         `env:"MAX_BODY_SIZE_BYTES" envDefault:"1048576"` // 1MB
	RateLimitRPS    float64       `env:"RATE_LIMIT_RPS" envDefault:"0"`            // 0 disables
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"50"`
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
