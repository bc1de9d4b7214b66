package config

import (
	"fmt"
	"time"
)

// Config represents the global configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Node      NodeConfig      `mapstructure:"node"`
	Engine    EngineConfig    `mapstructure:"engine"`
}

// ServerConfig represents the operator HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// RedisConfig represents redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RateLimitConfig represents operator API rate limiting configuration
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Rate    float64       `mapstructure:"rate"`  // requests per second per client
	Burst   int           `mapstructure:"burst"`
	Window  time.Duration `mapstructure:"window"` // sliding window when redis-backed
}

// AuthConfig represents operator API auth configuration
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	AccessExpire     time.Duration `mapstructure:"access_expire"`
	OperatorUser     string        `mapstructure:"operator_user"`
	OperatorPassHash string        `mapstructure:"operator_pass_hash"` // bcrypt hash
}

// NodeConfig identifies this marketplace node
type NodeConfig struct {
	ID      int64  `mapstructure:"id"`      // snowflake node id
	Address string `mapstructure:"address"` // own transport address
	Market  string `mapstructure:"market"`  // default market identifier
}

// RetryConfig represents the waiting-message retry policy
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
}

// EngineConfig represents the reconciliation engine configuration
type EngineConfig struct {
	Workers         int           `mapstructure:"workers"`
	QueueBuffer     int           `mapstructure:"queue_buffer"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	SweepBatch      int           `mapstructure:"sweep_batch"`
	ConflictRetries int           `mapstructure:"conflict_retries"`
	Retry           RetryConfig   `mapstructure:"retry"`
	Cleanup         bool          `mapstructure:"cleanup"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Node.Address == "" {
		return fmt.Errorf("node address is required")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine workers must be positive")
	}
	if c.Engine.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be >= 1")
	}
	if c.Engine.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	return nil
}

// SetDefaults fills unset fields with sensible defaults
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 50
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "peermarket"
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 8
	}
	if c.Engine.QueueBuffer == 0 {
		c.Engine.QueueBuffer = 1024
	}
	if c.Engine.SweepInterval == 0 {
		c.Engine.SweepInterval = 30 * time.Second
	}
	if c.Engine.SweepBatch == 0 {
		c.Engine.SweepBatch = 200
	}
	if c.Engine.ConflictRetries == 0 {
		c.Engine.ConflictRetries = 3
	}
	if c.Engine.Retry.InitialInterval == 0 {
		c.Engine.Retry.InitialInterval = 30 * time.Second
	}
	if c.Engine.Retry.MaxInterval == 0 {
		c.Engine.Retry.MaxInterval = time.Hour
	}
	if c.Engine.Retry.Multiplier == 0 {
		c.Engine.Retry.Multiplier = 2.0
	}
	if c.Engine.Retry.MaxAttempts == 0 {
		c.Engine.Retry.MaxAttempts = 10
	}
	if c.Engine.CleanupInterval == 0 {
		c.Engine.CleanupInterval = time.Hour
	}
	if c.Auth.AccessExpire == 0 {
		c.Auth.AccessExpire = 2 * time.Hour
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
}
