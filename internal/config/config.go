package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	Channels   ChannelsConfig
	Dispatch   DispatchConfig
	WorkerPool WorkerPoolConfig
	Server     ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// KafkaConfig holds Kafka/event streaming configuration
type KafkaConfig struct {
	Brokers         string
	DispatchTopic   string
	EngagementTopic string
	ConsumerGroup   string
}

// RedisConfig holds Redis connection settings for the campaign dispatch lock
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ChannelsConfig holds channel-provider credentials
type ChannelsConfig struct {
	ResendAPIKey       string
	DefaultEmailSender string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFromNumber   string
	FirebaseCredsFile  string
}

// DispatchConfig holds campaign dispatch tuning knobs
type DispatchConfig struct {
	BatchSize         int
	RetryAttempts     int
	RetryBackoff      time.Duration
	SendTimeout       time.Duration
	SchedulerInterval time.Duration
}

// WorkerPoolConfig holds worker pool configuration for event processing
type WorkerPoolConfig struct {
	DispatchWorkers   int // Number of workers for campaign dispatch events
	EngagementWorkers int // Number of workers for open/click engagement events
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      int
	WebAppURI string
}

// Load reads and validates all required environment variables. Entrypoints
// are responsible for loading env.local first in non-production environments.
func Load() (*Config, error) {
	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Kafka configuration
	if cfg.Kafka.Brokers, err = requireEnv("KAFKA_BROKERS"); err != nil {
		return nil, err
	}
	cfg.Kafka.DispatchTopic = getEnvWithDefault("KAFKA_DISPATCH_TOPIC", "campaign-dispatch")
	cfg.Kafka.EngagementTopic = getEnvWithDefault("KAFKA_ENGAGEMENT_TOPIC", "engagement-events")
	cfg.Kafka.ConsumerGroup = getEnvWithDefault("KAFKA_CONSUMER_GROUP", "notification-workers")

	// Redis configuration
	cfg.Redis.Host = getEnvWithDefault("REDIS_HOST", "localhost")
	if cfg.Redis.Port, err = intEnvWithDefault("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = intEnvWithDefault("REDIS_DB", 0); err != nil {
		return nil, err
	}

	// Channel provider configuration
	if cfg.Channels.ResendAPIKey, err = requireEnv("RESEND_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Channels.DefaultEmailSender, err = requireEnv("DEFAULT_EMAIL_SENDER_ADDRESS"); err != nil {
		return nil, err
	}
	cfg.Channels.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Channels.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Channels.TwilioFromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.Channels.FirebaseCredsFile = os.Getenv("FIREBASE_CREDENTIALS_FILE")

	// Dispatch configuration
	if cfg.Dispatch.BatchSize, err = intEnvWithDefault("DISPATCH_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.Dispatch.RetryAttempts, err = intEnvWithDefault("DISPATCH_RETRY_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.Dispatch.RetryBackoff, err = durationEnvWithDefault("DISPATCH_RETRY_BACKOFF", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Dispatch.SendTimeout, err = durationEnvWithDefault("DISPATCH_SEND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Dispatch.SchedulerInterval, err = durationEnvWithDefault("DISPATCH_SCHEDULER_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	// Worker pool configuration
	if cfg.WorkerPool.DispatchWorkers, err = intEnvWithDefault("DISPATCH_WORKERS", 5); err != nil {
		return nil, err
	}
	if cfg.WorkerPool.EngagementWorkers, err = intEnvWithDefault("ENGAGEMENT_WORKERS", 3); err != nil {
		return nil, err
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	cfg.Server.WebAppURI = getEnvWithDefault("WEBAPP_URI", "http://localhost:3000")

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func intEnvWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return parsed, nil
}

func durationEnvWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return parsed, nil
}
