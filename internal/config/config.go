package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the judging service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	SandboxURL   string
	SandboxToken string
	ContestURL   string
	ContestToken string

	WorkerConcurrency int
	WorkerRateLimit   int
	WorkerRateWindow  time.Duration
	WorkerMaxAttempts int
	RetryBaseDelay    time.Duration

	PollMaxAttempts int
	PollInterval    time.Duration

	ShutdownTimeout time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}
	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA_JUDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Judge")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8081")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.rate_limit", 10)
	v.SetDefault("worker.rate_window", "1s")
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.retry_base_delay", "2s")
	v.SetDefault("poll.max_attempts", 30)
	v.SetDefault("poll.interval", "1s")
	v.SetDefault("shutdown.timeout", "30s")

	rateWindow, err := parseDuration(v, "worker.rate_window")
	if err != nil {
		return Config{}, err
	}
	retryBase, err := parseDuration(v, "worker.retry_base_delay")
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := parseDuration(v, "poll.interval")
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := parseDuration(v, "shutdown.timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		SandboxURL:        v.GetString("sandbox.url"),
		SandboxToken:      v.GetString("sandbox.token"),
		ContestURL:        v.GetString("contest.url"),
		ContestToken:      v.GetString("contest.token"),
		WorkerConcurrency: v.GetInt("worker.concurrency"),
		WorkerRateLimit:   v.GetInt("worker.rate_limit"),
		WorkerRateWindow:  rateWindow,
		WorkerMaxAttempts: v.GetInt("worker.max_attempts"),
		RetryBaseDelay:    retryBase,
		PollMaxAttempts:   v.GetInt("poll.max_attempts"),
		PollInterval:      pollInterval,
		ShutdownTimeout:   shutdownTimeout,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}
	if cfg.SandboxURL == "" {
		return Config{}, fmt.Errorf("sandbox judge url must be provided")
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 4
	}
	if cfg.WorkerRateLimit <= 0 {
		cfg.WorkerRateLimit = 10
	}
	if cfg.WorkerMaxAttempts <= 0 {
		cfg.WorkerMaxAttempts = 3
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}
