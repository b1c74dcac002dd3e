package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port        string `mapstructure:"port"`
		MetricsPort string `mapstructure:"metrics_port"`
		LogLevel    string `mapstructure:"log_level"`
	} `mapstructure:"server"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`
	Database struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Broadcast struct {
		SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
		WarningAfterMinutes  int `mapstructure:"warning_after_minutes"`
		AutoEndAfterMinutes  int `mapstructure:"auto_end_after_minutes"`
		PollIntervalSeconds  int `mapstructure:"poll_interval_seconds"`
		TrackTTLSeconds      int `mapstructure:"track_ttl_seconds"`
		ChatCooldownSeconds  int `mapstructure:"chat_cooldown_seconds"`
	} `mapstructure:"broadcast"`
	Platform struct {
		BaseURL        string `mapstructure:"base_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"platform"`
}

func Load() *Config {
	viper.SetEnvPrefix("MIXTAPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Register keys
	viper.BindEnv("server.port")
	viper.BindEnv("server.metrics_port")
	viper.BindEnv("server.log_level")
	viper.BindEnv("auth.jwt_secret")
	viper.BindEnv("database.host")
	viper.BindEnv("database.port")
	viper.BindEnv("database.user")
	viper.BindEnv("database.password")
	viper.BindEnv("database.name")
	viper.BindEnv("redis.addr")
	viper.BindEnv("redis.password")
	viper.BindEnv("redis.db")
	viper.BindEnv("broadcast.sweep_interval_seconds")
	viper.BindEnv("broadcast.warning_after_minutes")
	viper.BindEnv("broadcast.auto_end_after_minutes")
	viper.BindEnv("broadcast.poll_interval_seconds")
	viper.BindEnv("broadcast.track_ttl_seconds")
	viper.BindEnv("broadcast.chat_cooldown_seconds")
	viper.BindEnv("platform.base_url")
	viper.BindEnv("platform.timeout_seconds")

	// Defaults
	viper.SetDefault("server.port", ":8081")
	viper.SetDefault("server.metrics_port", ":9091")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Broadcast lifecycle defaults. The warning window sits one minute
	// before the auto-end cutoff so clients get at least one nudge.
	viper.SetDefault("broadcast.sweep_interval_seconds", 60)
	viper.SetDefault("broadcast.warning_after_minutes", 14)
	viper.SetDefault("broadcast.auto_end_after_minutes", 15)
	viper.SetDefault("broadcast.poll_interval_seconds", 10)
	viper.SetDefault("broadcast.track_ttl_seconds", 60)
	viper.SetDefault("broadcast.chat_cooldown_seconds", 3)

	viper.SetDefault("platform.base_url", "https://api.spotify.com/v1")
	viper.SetDefault("platform.timeout_seconds", 5)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Config error: %s", err)
		} else {
			log.Println("Info: config.yaml not found, using Environment Variables only.")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("Critical: JWT secret is missing (MIXTAPE_AUTH_JWT_SECRET)")
	}

	return &cfg
}

// Convenience accessors so callers don't re-derive durations everywhere.

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Broadcast.SweepIntervalSeconds) * time.Second
}

func (c *Config) WarningAfter() time.Duration {
	return time.Duration(c.Broadcast.WarningAfterMinutes) * time.Minute
}

func (c *Config) AutoEndAfter() time.Duration {
	return time.Duration(c.Broadcast.AutoEndAfterMinutes) * time.Minute
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Broadcast.PollIntervalSeconds) * time.Second
}

func (c *Config) TrackTTL() time.Duration {
	return time.Duration(c.Broadcast.TrackTTLSeconds) * time.Second
}

func (c *Config) ChatCooldown() time.Duration {
	return time.Duration(c.Broadcast.ChatCooldownSeconds) * time.Second
}

func (c *Config) PlatformTimeout() time.Duration {
	return time.Duration(c.Platform.TimeoutSeconds) * time.Second
}
