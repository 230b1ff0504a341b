package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/alert-engine/internal/model"
	"github.com/jwalitptl/alert-engine/pkg/messaging/redis"
	"github.com/jwalitptl/alert-engine/pkg/worker"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Health    HealthConfig    `mapstructure:"health"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type ScanConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	Workers         int           `mapstructure:"workers"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	PatientTimeout  time.Duration `mapstructure:"patient_timeout"`
	LockKey         string        `mapstructure:"lock_key"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	// Breaker settings for clinical provider calls.
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type AlertingConfig struct {
	RulesFile               string        `mapstructure:"rules_file"`
	DoctorSeverityThreshold string        `mapstructure:"doctor_severity_threshold"`
	AlertTypeCacheTTL       time.Duration `mapstructure:"alert_type_cache_ttl"`
}

// DoctorThreshold parses the configured cut-off for doctor notification.
func (c AlertingConfig) DoctorThreshold() (model.Severity, error) {
	return model.ParseSeverity(c.DoctorSeverityThreshold)
}

type OutboxConfig struct {
	Channel         string        `mapstructure:"channel"`
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// envOverrides are read from ALERTS_* variables after the file.
type envOverrides struct {
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`
	RedisURL   string `envconfig:"REDIS_URL"`
	JWTSecret  string `envconfig:"JWT_SECRET"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
	RulesFile  string `envconfig:"RULES_FILE"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "alerts")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.issuer", "alert-engine")

	v.SetDefault("scan.enabled", true)
	v.SetDefault("scan.interval", "15m")
	v.SetDefault("scan.workers", 8)
	v.SetDefault("scan.provider_timeout", "5s")
	v.SetDefault("scan.patient_timeout", "30s")
	v.SetDefault("scan.lock_key", "alert-engine:scan-lock")
	v.SetDefault("scan.lock_ttl", "10m")
	v.SetDefault("scan.breaker_failures", 5)
	v.SetDefault("scan.breaker_timeout", "30s")

	v.SetDefault("alerting.rules_file", "")
	v.SetDefault("alerting.doctor_severity_threshold", "high")
	v.SetDefault("alerting.alert_type_cache_ttl", "10m")

	v.SetDefault("outbox.channel", "alert-events")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "1s")
	v.SetDefault("outbox.retention", "168h")
	v.SetDefault("outbox.cleanup_interval", "24h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("health.port", 8081)
}

// LoadConfig reads config.yml from the usual locations. A missing file is
// fine; every key has a default.
func LoadConfig() (*Config, error) {
	return Load("")
}

// Load reads the given file, or searches the default paths when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("ALERTS", &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if env.DBHost != "" {
		cfg.Database.Host = env.DBHost
	}
	if env.DBPort != 0 {
		cfg.Database.Port = env.DBPort
	}
	if env.DBUser != "" {
		cfg.Database.User = env.DBUser
	}
	if env.DBPassword != "" {
		cfg.Database.Password = env.DBPassword
	}
	if env.DBName != "" {
		cfg.Database.Name = env.DBName
	}
	if env.RedisURL != "" {
		cfg.Redis.URL = env.RedisURL
	}
	if env.JWTSecret != "" {
		cfg.JWT.Secret = env.JWTSecret
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.RulesFile != "" {
		cfg.Alerting.RulesFile = env.RulesFile
	}
	return nil
}

// Validate rejects settings the workers cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Scan.Interval <= 0 {
		problems = append(problems, "scan.interval must be positive")
	}
	if c.Scan.Workers <= 0 {
		problems = append(problems, "scan.workers must be positive")
	}
	if c.Scan.ProviderTimeout <= 0 {
		problems = append(problems, "scan.provider_timeout must be positive")
	}
	if c.Scan.PatientTimeout <= 0 {
		problems = append(problems, "scan.patient_timeout must be positive")
	}
	if c.Outbox.BatchSize <= 0 {
		problems = append(problems, "outbox.batch_size must be positive")
	}
	if c.Outbox.PollInterval <= 0 || c.Outbox.RetryDelay <= 0 {
		problems = append(problems, "outbox.poll_interval and outbox.retry_delay must be positive")
	}
	if c.Outbox.RetryAttempts <= 0 {
		problems = append(problems, "outbox.retry_attempts must be positive")
	}
	if _, err := c.Alerting.DoctorThreshold(); err != nil {
		problems = append(problems, "alerting.doctor_severity_threshold: "+err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		Channel:       c.Channel,
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
