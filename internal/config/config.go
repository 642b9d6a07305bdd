// Package config собирает настройки сервиса из флагов, переменных окружения и .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StorageInMemory = "in-memory"
	StorageSQL      = "sql"

	EnvPrefix = "WATCHEDIT"
)

type DBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MovieAPIConfig struct {
	BaseURL string
	Key     string
	Timeout time.Duration
}

type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	SecureCookie bool
}

type KafkaConfig struct {
	Brokers string
	Topic   string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Config - все настройки сервиса.
type Config struct {
	Port         string
	Storage      string
	DatabaseURL  string
	DB           DBConfig
	QueryTimeout time.Duration
	MovieAPI     MovieAPIConfig
	Session      SessionConfig
	BcryptCost   int
	RedisAddr    string
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	Log          LogConfig
	StaticDir    string
	Seed         bool
}

// legacyEnv - старые имена переменных, которые продолжают работать.
var legacyEnv = map[string]string{
	"port":           "PORT",
	"database_url":   "DATABASE_URL",
	"movie_api.key":  "MOVIE_API_KEY",
	"session.secret": "SESSION_SECRET",
	"redis_addr":     "REDIS_ADDR",
	"kafka.brokers":  "KAFKA_BROKERS",
}

// SetDefaults заполняет значения по умолчанию.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("storage", StorageInMemory)
	v.SetDefault("database_url", "")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("query_timeout", 5*time.Second)
	v.SetDefault("movie_api.base_url", "https://api.movieposterdb.com/v1")
	v.SetDefault("movie_api.key", "")
	v.SetDefault("movie_api.timeout", 10*time.Second)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("bcrypt_cost", 12)
	v.SetDefault("redis_addr", "")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "watchedit-events")
	v.SetDefault("rate_limit.rps", 1.0)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("static_dir", "./public")
	v.SetDefault("seed", false)
}

// RegisterFlags объявляет флаги командной строки и привязывает их к viper.
func RegisterFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("port", "3000", "HTTP port")
	flags.String("storage", StorageInMemory, "Storage type (in-memory or sql)")
	flags.String("database-url", "", "Database URL: postgres://, sqlite:// or mysql://")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-pretty", false, "Human-readable console logs")
	flags.Bool("seed", false, "Fill the store with demo data on start")

	bindings := map[string]string{
		"port":         "port",
		"storage":      "storage",
		"database_url": "database-url",
		"log.level":    "log-level",
		"log.pretty":   "log-pretty",
		"seed":         "seed",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// LoadDotEnv читает .env, если он есть. Уже заданные переменные не перезаписываются.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// BindEnv подключает переменные WATCHEDIT_* и старые имена.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Load читает итоговые настройки и проверяет их.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("port"),
		Storage:     strings.ToLower(v.GetString("storage")),
		DatabaseURL: v.GetString("database_url"),
		DB: DBConfig{
			MaxOpenConns:    v.GetInt("db.max_open_conns"),
			MaxIdleConns:    v.GetInt("db.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db.conn_max_lifetime"),
		},
		QueryTimeout: v.GetDuration("query_timeout"),
		MovieAPI: MovieAPIConfig{
			BaseURL: v.GetString("movie_api.base_url"),
			Key:     v.GetString("movie_api.key"),
			Timeout: v.GetDuration("movie_api.timeout"),
		},
		Session: SessionConfig{
			Secret:       v.GetString("session.secret"),
			TTL:          v.GetDuration("session.ttl"),
			SecureCookie: v.GetBool("session.secure_cookie"),
		},
		BcryptCost: v.GetInt("bcrypt_cost"),
		RedisAddr:  v.GetString("redis_addr"),
		Kafka: KafkaConfig{
			Brokers: v.GetString("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("rate_limit.rps"),
			Burst: v.GetInt("rate_limit.burst"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
		StaticDir: v.GetString("static_dir"),
		Seed:      v.GetBool("seed"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
// Для in-memory без секрета сессии генерируется случайный.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage {
	case StorageInMemory:
		if c.Session.Secret == "" {
			c.Session.Secret = uuid.NewString()
		}
	case StorageSQL:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url must be set for sql storage"))
		}
		if c.Session.Secret == "" {
			errs = append(errs, errors.New("session.secret must be set for sql storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage))
	}

	if c.Port == "" {
		errs = append(errs, errors.New("port must be set"))
	}
	if c.DB.MaxOpenConns <= 0 || c.DB.MaxIdleConns < 0 {
		errs = append(errs, errors.New("db pool sizes must be positive"))
	}
	if c.QueryTimeout <= 0 || c.MovieAPI.Timeout <= 0 || c.Session.TTL <= 0 {
		errs = append(errs, errors.New("timeouts and session ttl must be positive"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}
	return errors.Join(errs...)
}
