package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	VerifyAPIURL string `env:"VERIFY_API_URL,required=true"`
	VerifyAPIKey string `env:"VERIFY_API_KEY"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=10"`
	MaxVerifyAttempts int `env:"MAX_VERIFY_ATTEMPTS,default=3"`
	InterCallDelayMS  int `env:"INTER_CALL_DELAY_MS,default=150"`
	CacheTTLHours     int `env:"CACHE_TTL_HOURS,default=24"`
	ResumeConcurrency int `env:"RESUME_CONCURRENCY,default=4"`

	ShutdownGraceSeconds int `env:"SHUTDOWN_GRACE_SECONDS,default=30"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) InterCallDelay() time.Duration {
	return time.Duration(c.InterCallDelayMS) * time.Millisecond
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}
