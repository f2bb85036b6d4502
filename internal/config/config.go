// Package config loads execpool's configuration via viper, layering
// defaults, environment variables, and an optional config file.
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Pool     PoolConfig
	Server   ServerConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	LogLevel string
}

// PoolConfig configures the worker-pool executor itself.
type PoolConfig struct {
	Workers           int           // number of worker processes; 0 = host CPU count
	DefaultTimeout    time.Duration // 0 = the pool's own 30s default; every task runs under some timeout
	ShutdownTimeout   time.Duration
	RespawnBaseDelay  time.Duration
	RespawnMaxDelay   time.Duration
	RespawnWindow     time.Duration // loaded but not passed to the pool; a slot's crash count resets after a fixed 30s
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// RedisConfig backs the optional event bus and result archive. The pool
// itself never requires Redis; when Addr is empty both are disabled.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RetentionDays int
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/execpool")

	setDefaults()

	viper.SetEnvPrefix("EXECPOOL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("pool.workers", 0)
	viper.SetDefault("pool.defaulttimeout", 0)
	viper.SetDefault("pool.shutdowntimeout", 10*time.Second)
	viper.SetDefault("pool.respawnbasedelay", 200*time.Millisecond)
	viper.SetDefault("pool.respawnmaxdelay", 30*time.Second)
	viper.SetDefault("pool.respawnwindow", 5*time.Second)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 0)

	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 20)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)
	viper.SetDefault("redis.retentiondays", 7)

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("loglevel", "info")
}
