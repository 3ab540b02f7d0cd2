package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	WorkerPort  int    `env:"WORKER_PORT,default=8081"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	APIKey      string `env:"API_KEY"`

	PushGatewayURL  string `env:"PUSH_GATEWAY_URL"`
	PushAccessToken string `env:"PUSH_ACCESS_TOKEN"`
	PushBatchSize   int    `env:"PUSH_BATCH_SIZE,default=100"`
	PushConcurrency int    `env:"PUSH_CONCURRENCY,default=4"`

	EmailGatewayURL        string `env:"EMAIL_GATEWAY_URL"`
	EmailAPIKey            string `env:"EMAIL_API_KEY,required=true"`
	EmailDefaultTemplateID int    `env:"EMAIL_DEFAULT_TEMPLATE_ID,default=1"`
	EmailSenderName        string `env:"EMAIL_SENDER_NAME"`
	EmailSenderAddress     string `env:"EMAIL_SENDER_ADDRESS"`
	EmailBatchSize         int    `env:"EMAIL_BATCH_SIZE,default=50"`

	CallTimeoutSeconds       int `env:"CALL_TIMEOUT_SECONDS,default=10"`
	RateLimitPerSec          int `env:"RATE_LIMIT_PER_SEC,default=100"`
	PushRateLimitPerSec      int `env:"PUSH_RATE_LIMIT_PER_SEC"`
	EmailRateLimitPerSec     int `env:"EMAIL_RATE_LIMIT_PER_SEC"`
	WorkerConcurrency        int `env:"WORKER_CONCURRENCY,default=4"`
	SchedulerIntervalSeconds int `env:"SCHEDULER_INTERVAL_SECONDS,default=5"`
	SchedulerScanLimit       int `env:"SCHEDULER_SCAN_LIMIT,default=100"`
	ExecutionTimeoutSeconds  int `env:"EXECUTION_TIMEOUT_SECONDS,default=900"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"DATABASE_DSN":  c.DatabaseDSN,
		"RABBITMQ_URL":  c.RabbitMQURL,
		"REDIS_URL":     c.RedisURL,
		"EMAIL_API_KEY": c.EmailAPIKey,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}

	positive := map[string]int{
		"PUSH_BATCH_SIZE":            c.PushBatchSize,
		"PUSH_CONCURRENCY":           c.PushConcurrency,
		"EMAIL_BATCH_SIZE":           c.EmailBatchSize,
		"EMAIL_DEFAULT_TEMPLATE_ID":  c.EmailDefaultTemplateID,
		"CALL_TIMEOUT_SECONDS":       c.CallTimeoutSeconds,
		"RATE_LIMIT_PER_SEC":         c.RateLimitPerSec,
		"WORKER_CONCURRENCY":         c.WorkerConcurrency,
		"WORKER_PORT":                c.WorkerPort,
		"SCHEDULER_INTERVAL_SECONDS": c.SchedulerIntervalSeconds,
		"SCHEDULER_SCAN_LIMIT":       c.SchedulerScanLimit,
		"EXECUTION_TIMEOUT_SECONDS":  c.ExecutionTimeoutSeconds,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, value)
		}
	}

	// Zero means the channel shares RATE_LIMIT_PER_SEC.
	if c.PushRateLimitPerSec < 0 || c.EmailRateLimitPerSec < 0 {
		return fmt.Errorf("channel rate limits must not be negative")
	}
	return nil
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.SchedulerIntervalSeconds) * time.Second
}

// ExecutionTimeout is how long a workflow may stay executing before the
// scheduler treats its claim as abandoned.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSeconds) * time.Second
}
