package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Domenick1991/tripbooking/internal/policy"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultReleaseRetries = 1

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Inventory InventoryConfig `yaml:"inventory"`
	Booking   BookingConfig   `yaml:"booking"`
	Policy    PolicyConfig    `yaml:"policy"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Address       string `yaml:"address"`
	// InternalToken guards the /internal routes used by the payment processor.
	InternalToken string `yaml:"internal_token"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	EventsTopic        string   `yaml:"events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type InventoryConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// ReleaseRetries is a pointer so that an explicit 0 disables retries.
	ReleaseRetries *int   `yaml:"release_retries"`
}

func (i InventoryConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// Retries returns the configured number of extra release attempts.
func (i InventoryConfig) Retries() int {
	if i.ReleaseRetries == nil {
		return defaultReleaseRetries
	}
	return *i.ReleaseRetries
}

type BookingConfig struct {
	HoldTTLMinutes        int    `yaml:"hold_ttl_minutes"`
	Currency              string `yaml:"currency"`
	ReferenceAttempts     int    `yaml:"reference_attempts"`
	ReferenceBackoffMinMS int    `yaml:"reference_backoff_min_ms"`
	ReferenceBackoffMaxMS int    `yaml:"reference_backoff_max_ms"`
	NotifyTimeoutSeconds  int    `yaml:"notify_timeout_seconds"`
	TripsCacheTTLSeconds  int    `yaml:"trips_cache_ttl_seconds"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

type PolicyConfig struct {
	ServiceFeePercent int64                     `yaml:"service_fee_percent"`
	Cancellation      []policy.CancellationTier `yaml:"cancellation"`
	Modification      []policy.ModificationTier `yaml:"modification"`
}

// Engine returns the configured policy, falling back to the default tables.
func (p PolicyConfig) Engine() policy.Engine {
	engine := policy.Default()
	if p.ServiceFeePercent > 0 {
		engine.ServiceFeePercent = p.ServiceFeePercent
	}
	if len(p.Cancellation) > 0 {
		engine.Cancellation = p.Cancellation
	}
	if len(p.Modification) > 0 {
		engine.Modification = p.Modification
	}
	return engine
}

type WorkerConfig struct {
	ReaperSchedule  string `yaml:"reaper_schedule"`
	ReaperBatchSize int    `yaml:"reaper_batch_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("INVENTORY_BASE_URL"); v != "" {
		c.Inventory.BaseURL = v
	}
	if v := os.Getenv("INTERNAL_API_TOKEN"); v != "" {
		c.HTTP.InternalToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) ApplyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Inventory.TimeoutSeconds <= 0 {
		c.Inventory.TimeoutSeconds = 5
	}
	if c.Inventory.ReleaseRetries == nil {
		retries := defaultReleaseRetries
		c.Inventory.ReleaseRetries = &retries
	}
	if c.Booking.HoldTTLMinutes <= 0 {
		c.Booking.HoldTTLMinutes = 15
	}
	if c.Booking.Currency == "" {
		c.Booking.Currency = "IDR"
	}
	if c.Booking.ReferenceAttempts <= 0 {
		c.Booking.ReferenceAttempts = 5
	}
	if c.Booking.ReferenceBackoffMinMS <= 0 {
		c.Booking.ReferenceBackoffMinMS = 10
	}
	if c.Booking.ReferenceBackoffMaxMS < c.Booking.ReferenceBackoffMinMS {
		c.Booking.ReferenceBackoffMaxMS = c.Booking.ReferenceBackoffMinMS + 40
	}
	if c.Booking.NotifyTimeoutSeconds <= 0 {
		c.Booking.NotifyTimeoutSeconds = 3
	}
	if c.Booking.TripsCacheTTLSeconds <= 0 {
		c.Booking.TripsCacheTTLSeconds = 60
	}
	if c.Worker.ReaperSchedule == "" {
		c.Worker.ReaperSchedule = "@every 1m"
	}
	if c.Worker.ReaperBatchSize <= 0 {
		c.Worker.ReaperBatchSize = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
