package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// MaxCascadeBatchSize is the largest number of rows committed in one cascade batch.
const MaxCascadeBatchSize = 500

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	CORSAllowedOrigins []string

	// Webhook ingestion
	SchedulingWebhookSecret string
	WebhookLockTTL          time.Duration
	WebhookRatePerSecond    float64
	WebhookBurst            int
	WebhookLedgerRetention  time.Duration

	// Admin / API auth
	AdminJWTSecret string

	// Appointment rules
	ClinicTimezone     string
	CancellationNotice time.Duration
	CascadeBatchSize   int

	// Email
	EmailProvider       string
	SendGridAPIKey      string
	EmailFrom           string
	EmailFromName       string
	SESConfigurationSet string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	MediaBucket         string
	CognitoUserPoolID   string
	CognitoAppClientID  string
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		SchedulingWebhookSecret: strings.TrimSpace(getEnv("SCHEDULING_WEBHOOK_SECRET", "")),
		WebhookLockTTL:          getEnvAsDuration("WEBHOOK_LOCK_TTL", 30*time.Second),
		WebhookRatePerSecond:    getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookBurst:            getEnvAsInt("WEBHOOK_BURST", 40),
		WebhookLedgerRetention:  getEnvAsDuration("WEBHOOK_LEDGER_RETENTION", 30*24*time.Hour),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo"),
		CancellationNotice: getEnvAsDuration("CANCELLATION_NOTICE", 24*time.Hour),
		CascadeBatchSize:   getEnvAsInt("CASCADE_BATCH_SIZE", MaxCascadeBatchSize),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:           getEnv("EMAIL_FROM", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Clinic Booking"),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		MediaBucket:         getEnv("MEDIA_BUCKET", ""),
		CognitoUserPoolID:   getEnv("COGNITO_USER_POOL_ID", ""),
		CognitoAppClientID:  getEnv("COGNITO_APP_CLIENT_ID", ""),
	}
	if cfg.CascadeBatchSize <= 0 || cfg.CascadeBatchSize > MaxCascadeBatchSize {
		cfg.CascadeBatchSize = MaxCascadeBatchSize
	}
	return cfg
}

// Location resolves the clinic timezone, falling back to UTC when unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
