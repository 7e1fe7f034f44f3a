// Package config loads storefront settings from the environment, with an
// optional file named by STOREFRONT_CONFIG underneath.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const (
	ConfigFileEnv    = "STOREFRONT_CONFIG"
	DefaultSessionID = "default"
)

type Config struct {
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	APIBaseURL      string        `mapstructure:"API_BASE_URL"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	StorageBackend string        `mapstructure:"STORAGE_BACKEND"`
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`
	RedisTTL       time.Duration `mapstructure:"REDIS_TTL"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	PostgresDSN    string        `mapstructure:"POSTGRES_DSN"`
	MongoURI       string        `mapstructure:"MONGO_URI"`
	MongoDBName    string        `mapstructure:"MONGO_DB_NAME"`

	// SessionID namespaces stored keys and keys Kafka events. It must stay the
	// same across restarts or a durable backend will not find the saved cart.
	SessionID string `mapstructure:"SESSION_ID"`
	// InstanceID is always generated; it marks events this process produced.
	InstanceID string `mapstructure:"-"`

	KafkaBrokers       []string `mapstructure:"KAFKA_BROKERS"`
	KafkaCartTopic     string   `mapstructure:"KAFKA_CART_TOPIC"`
	KafkaCheckoutTopic string   `mapstructure:"KAFKA_CHECKOUT_TOPIC"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	BreakerMaxRequests  uint32        `mapstructure:"BREAKER_MAX_REQUESTS"`
	BreakerInterval     time.Duration `mapstructure:"BREAKER_INTERVAL"`
	BreakerTimeout      time.Duration `mapstructure:"BREAKER_TIMEOUT"`
	BreakerMinRequests  uint32        `mapstructure:"BREAKER_MIN_REQUESTS"`
	BreakerFailureRatio float64       `mapstructure:"BREAKER_FAILURE_RATIO"`
}

var defaults = map[string]any{
	"HTTP_PORT":        "8081",
	"API_BASE_URL":     "http://localhost:8080/api",
	"REQUEST_TIMEOUT":  "10s",
	"SHUTDOWN_TIMEOUT": "15s",

	"STORAGE_BACKEND": storage.BackendMemory,
	"REDIS_ADDR":      "localhost:6379",
	"REDIS_PASSWORD":  "",
	"REDIS_DB":        0,
	"REDIS_TTL":       "720h",
	"SQLITE_PATH":     "storefront.db",
	"POSTGRES_DSN":    "",
	"MONGO_URI":       "mongodb://localhost:27017",
	"MONGO_DB_NAME":   "storefront",

	"SESSION_ID": DefaultSessionID,

	"KAFKA_BROKERS":        "",
	"KAFKA_CART_TOPIC":     "storefront-cart",
	"KAFKA_CHECKOUT_TOPIC": "storefront-checkout",

	"LOG_LEVEL":  "info",
	"LOG_FORMAT": "json",

	"BREAKER_MAX_REQUESTS":  5,
	"BREAKER_INTERVAL":      "10s",
	"BREAKER_TIMEOUT":       "30s",
	"BREAKER_MIN_REQUESTS":  5,
	"BREAKER_FAILURE_RATIO": 0.5,
}

// Load reads the environment, falling back to the file named by
// STOREFRONT_CONFIG and then to defaults.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	v.SetDefault(ConfigFileEnv, "")
	if path := v.GetString(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	cfg.InstanceID = uuid.NewString()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case storage.BackendMemory, storage.BackendRedis, storage.BackendSQLite, storage.BackendMongo:
	case storage.BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if strings.TrimSpace(c.SessionID) == "" {
		errs = append(errs, errors.New("SESSION_ID must not be empty"))
	}
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"REQUEST_TIMEOUT":  c.RequestTimeout,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
		"BREAKER_INTERVAL": c.BreakerInterval,
		"BREAKER_TIMEOUT":  c.BreakerTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		errs = append(errs, errors.New("BREAKER_FAILURE_RATIO must be in (0, 1]"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether events should be wired at all.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// StorageOptions namespaces every key by session.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       c.StorageBackend,
		Namespace:     "storefront:" + c.SessionID,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisTTL:      c.RedisTTL,
		SQLitePath:    c.SQLitePath,
		PostgresDSN:   c.PostgresDSN,
		MongoURI:      c.MongoURI,
		MongoDBName:   c.MongoDBName,
	}
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
