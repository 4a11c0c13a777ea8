package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
}

// RedisConfig holds cache settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// SchedulerConfig holds pass loop tuning.
type SchedulerConfig struct {
	TickSeconds    int     `mapstructure:"tick_seconds"`
	HorizonDays    int     `mapstructure:"horizon_days"`
	Workers        int     `mapstructure:"workers"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	DispatchPerSec float64 `mapstructure:"dispatch_per_sec"`
	RecoveryCron   string  `mapstructure:"recovery_cron"`
}

// FeatureConfig gates optional branches.
type FeatureConfig struct {
	ForwardingEnabled  bool `mapstructure:"forwarding_enabled"`
	RoomBookingEnabled bool `mapstructure:"room_booking_enabled"`
	TeamsEnabled       bool `mapstructure:"teams_enabled"`
	ForwardMonthLimit  int  `mapstructure:"forward_month_limit"`
}

// ObservabilityConfig groups ports for ambient endpoints.
type ObservabilityConfig struct {
	HealthPort  int `mapstructure:"health_port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

// Config is the full engine configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Features      FeatureConfig       `mapstructure:"features"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// Load reads engine.yaml from CONFIG_PATH or config/engine.yaml, then
// applies environment overrides.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/engine.yaml"
	}
	if info, err := os.Stat(cfgPath); err == nil && info.IsDir() {
		cfgPath = filepath.Join(cfgPath, "engine.yaml")
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "booking")
	v.SetDefault("database.database", "booking")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("scheduler.tick_seconds", 45)
	v.SetDefault("scheduler.horizon_days", 90)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.dispatch_per_sec", 5.0)
	v.SetDefault("scheduler.recovery_cron", "*/10 * * * *")
	v.SetDefault("features.forwarding_enabled", true)
	v.SetDefault("features.forward_month_limit", 1)
	v.SetDefault("observability.health_port", 8081)
	v.SetDefault("observability.metrics_port", 9090)

	if err := v.ReadInConfig(); err != nil {
		// Missing file falls back to defaults plus env; a malformed file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvOverrides(&c)
	return &c, nil
}

func applyEnvOverrides(c *Config) {
	if h := os.Getenv("POSTGRES_HOST"); h != "" {
		c.Database.Host = h
	}
	if p := envInt("POSTGRES_PORT"); p > 0 {
		c.Database.Port = p
	}
	if u := os.Getenv("POSTGRES_USER"); u != "" {
		c.Database.User = u
	}
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		c.Database.Password = pw
	}
	if d := os.Getenv("POSTGRES_DB"); d != "" {
		c.Database.Database = d
	}
	if a := os.Getenv("REDIS_ADDR"); a != "" {
		c.Redis.Addr = a
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if v := os.Getenv("SCHEDULER_TICK_SECONDS"); v != "" {
		if n := envInt("SCHEDULER_TICK_SECONDS"); n > 0 {
			c.Scheduler.TickSeconds = n
		}
	}
	if v := os.Getenv("FORWARD_MONTH_LIMIT"); v != "" {
		if n := envInt("FORWARD_MONTH_LIMIT"); n > 0 {
			c.Features.ForwardMonthLimit = n
		}
	}
	if v := os.Getenv("ENABLE_FORWARDING"); v != "" {
		c.Features.ForwardingEnabled = ParseBool(v)
	}
	if v := os.Getenv("ENABLE_ROOM_BOOKING"); v != "" {
		c.Features.RoomBookingEnabled = ParseBool(v)
	}
	if v := os.Getenv("ENABLE_TEAMS"); v != "" {
		c.Features.TeamsEnabled = ParseBool(v)
	}
	if p := envInt("HEALTH_PORT"); p > 0 {
		c.Observability.HealthPort = p
	}
	if p := envInt("METRICS_PORT"); p > 0 {
		c.Observability.MetricsPort = p
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

// ParseBool converts common string representations to bool.
func ParseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n != 0
		}
	}
	return false
}
