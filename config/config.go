package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Gamification GamificationConfig `mapstructure:"gamification"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	AMQP         AMQPConfig         `mapstructure:"amqp"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	ProfileSync  ProfileSyncConfig  `mapstructure:"profile_sync"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogMode  string `mapstructure:"log_mode"`
	Port     int    `mapstructure:"port"`
	Timezone string `mapstructure:"timezone"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres | sqlite
	DSN    string `mapstructure:"dsn"`
}

type GatewayConfig struct {
	ServiceToken   string   `mapstructure:"service_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GamificationConfig struct {
	DailyMissionCount int    `mapstructure:"daily_mission_count"`
	RepairWindowDays  int    `mapstructure:"repair_window_days"`
	CatalogSeedPath   string `mapstructure:"catalog_seed_path"`
}

type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	StreakSweepCron string        `mapstructure:"streak_sweep_cron"`
	ExpiryInterval  time.Duration `mapstructure:"expiry_interval"`
	ArchiveCron     string        `mapstructure:"archive_cron"`
}

type AMQPConfig struct {
	URL       string `mapstructure:"url"`
	Queue     string `mapstructure:"queue"`
	Consumers int    `mapstructure:"consumers"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
}

// ArchiveConfig points at the R2/S3 bucket receiving daily ledger exports.
type ArchiveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
}

type ProfileSyncConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	EndpointPath string        `mapstructure:"endpoint_path"`
	ServiceToken string        `mapstructure:"service_token"`
	Interval     time.Duration `mapstructure:"interval"`
}

// Load reads .env, then an optional config file, then LEDGER_* env vars over the defaults.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Gateway.AllowedOrigins = splitOrigins(cfg.Gateway.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gamification-ledger")
	v.SetDefault("app.log_mode", "development")
	v.SetDefault("app.port", 5300)
	v.SetDefault("app.timezone", "UTC")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")

	v.SetDefault("gateway.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("gamification.daily_mission_count", 5)
	v.SetDefault("gamification.repair_window_days", 2)
	v.SetDefault("gamification.catalog_seed_path", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.streak_sweep_cron", "5 0 * * *")
	v.SetDefault("scheduler.expiry_interval", 10*time.Minute)
	v.SetDefault("scheduler.archive_cron", "30 0 * * *")

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.queue", "gamification.activity")
	v.SetDefault("amqp.consumers", 2)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.dedupe_ttl", 24*time.Hour)
	v.SetDefault("redis.lock_ttl", 10*time.Second)

	v.SetDefault("archive.enabled", false)

	v.SetDefault("profile_sync.enabled", false)
	v.SetDefault("profile_sync.endpoint_path", "/api/v1/public/profiles")
	v.SetDefault("profile_sync.interval", 10*time.Minute)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Gamification.DailyMissionCount < 1 {
		return fmt.Errorf("gamification.daily_mission_count must be positive")
	}
	if c.Gamification.RepairWindowDays < 1 {
		return fmt.Errorf("gamification.repair_window_days must be positive")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive is enabled")
	}
	return nil
}

// Location returns the timezone that defines a "day" for streaks and missions.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// env vars arrive as one comma-separated string
func splitOrigins(in []string) []string {
	var out []string
	for _, o := range in {
		for _, part := range strings.Split(o, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
