// Package config loads process configuration from the environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Log       Log
	Storage   Storage
	Redis     RedisConfig
	Kafka     KafkaConfig
	Warehouse Warehouse
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Storage selects the reconciliation store. The catalog DSN defaults to the
// store DSN since both tables usually live in the same database.
type Storage struct {
	Driver      string
	DatabaseURL string
	CatalogURL  string
	// CatalogSeedFile is a JSON array of invoice facts served by the
	// in-memory catalog when no catalog database is configured.
	CatalogSeedFile string
}

// RedisConfig enables the invoice facts cache when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CatalogTTL   time.Duration
}

// KafkaConfig enables the audit sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers     []string
	AuditTopic  string
	Partitions  int32
	Replication int16
}

// Warehouse tunes the reconciliation coordinator.
type Warehouse struct {
	LockTimeout time.Duration
	MaxAttempts int
	AuditBuffer int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ADDR", ":8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORAGE_DRIVER", DriverMemory)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")
	v.SetDefault("CATALOG_CACHE_TTL", "5m")
	v.SetDefault("KAFKA_AUDIT_TOPIC", "warehouse.audit")
	v.SetDefault("KAFKA_PARTITIONS", 3)
	v.SetDefault("KAFKA_REPLICATION", 1)
	v.SetDefault("LOCK_TIMEOUT", "5s")
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("AUDIT_BUFFER", 256)
}

// Load reads configuration. Variables are prefixed FREIGHTDESK_ (for
// example FREIGHTDESK_DATABASE_URL). configFile may be empty.
func Load(configFile string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FREIGHTDESK")
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Addr:            v.GetString("ADDR"),
			AdminToken:      v.GetString("ADMIN_TOKEN"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
			RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		},
		Log: Log{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Storage: Storage{
			Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
			DatabaseURL:     v.GetString("DATABASE_URL"),
			CatalogURL:      v.GetString("CATALOG_DATABASE_URL"),
			CatalogSeedFile: v.GetString("CATALOG_SEED_FILE"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			CatalogTTL:   v.GetDuration("CATALOG_CACHE_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			AuditTopic:  v.GetString("KAFKA_AUDIT_TOPIC"),
			Partitions:  v.GetInt32("KAFKA_PARTITIONS"),
			Replication: int16(v.GetInt("KAFKA_REPLICATION")),
		},
		Warehouse: Warehouse{
			LockTimeout: v.GetDuration("LOCK_TIMEOUT"),
			MaxAttempts: v.GetInt("MAX_ATTEMPTS"),
			AuditBuffer: v.GetInt("AUDIT_BUFFER"),
		},
	}
	if cfg.Storage.CatalogURL == "" {
		cfg.Storage.CatalogURL = cfg.Storage.DatabaseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Warehouse.MaxAttempts < 1 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be at least 1"))
	}
	if c.Warehouse.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when brokers are set"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
