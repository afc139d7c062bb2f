package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	AuthJWTSecret      string
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Conversation behaviour
	DOBPermissive      bool
	TypingDelay        time.Duration
	StoreTimeout       time.Duration
	DoctorLimit        int
	DiagnosticLimit    int
	SessionBackend     string
	CapacityBackend    string
	MaxAttachmentBytes int64

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	CapacityTable       string
	AttachmentsBucket   string
	EventsQueueURL      string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Email Configuration
	EmailProvider       string
	EmailFromAddress    string
	EmailFromName       string
	SendGridAPIKey      string
	SESConfigurationSet string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		DOBPermissive:      getEnvAsBool("DOB_PERMISSIVE", false),
		TypingDelay:        getEnvAsDuration("TYPING_DELAY", 0),
		StoreTimeout:       getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		DoctorLimit:        getEnvAsInt("CAPACITY_DOCTOR_LIMIT", 50),
		DiagnosticLimit:    getEnvAsInt("CAPACITY_DIAGNOSTIC_LIMIT", 100),
		SessionBackend:     strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		CapacityBackend:    strings.ToLower(strings.TrimSpace(getEnv("CAPACITY_BACKEND", "memory"))),
		MaxAttachmentBytes: int64(getEnvAsInt("MAX_ATTACHMENT_BYTES", 10<<20)),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		CapacityTable:       getEnv("CAPACITY_TABLE", "appointment_capacity"),
		AttachmentsBucket:   getEnv("ATTACHMENTS_BUCKET", ""),
		EventsQueueURL:      getEnv("APPOINTMENT_EVENTS_QUEUE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", "no-reply@medicare.example"),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "MediCare Assistant"),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
