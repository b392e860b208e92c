package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the proof verification service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Evidence store configuration
	PineconeAPIKey        string
	PineconeComplaintHost string
	PineconeProofHost     string
	PineconeMetadataHost  string

	// OpenAI configuration
	OpenAIAPIKey string
	OpenAIModel  string

	// Assessor selection: "openai" or "stub"
	AssessorProvider string

	// Duplicate detection
	DuplicateThreshold float64

	// RabbitMQ configuration
	AMQPURL         string
	AMQPExchange    string
	AMQPRoutingKey  string
	AssessorTimeout time.Duration
	ShutdownTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "cleanproof"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Evidence store defaults; empty hosts select the in-memory store
		PineconeAPIKey:        getEnv("PINECONE_API_KEY", ""),
		PineconeComplaintHost: getEnv("PINECONE_COMPLAINT_HOST", ""),
		PineconeProofHost:     getEnv("PINECONE_PROOF_HOST", ""),
		PineconeMetadataHost:  getEnv("PINECONE_METADATA_HOST", ""),

		// OpenAI defaults
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),

		// Assessor defaults; stub keeps the pipeline usable without a key
		AssessorProvider: getEnv("ASSESSOR_PROVIDER", "openai"),

		DuplicateThreshold: getFloatEnv("DUPLICATE_THRESHOLD", 0.90),

		// RabbitMQ defaults; empty URL disables publishing
		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "verification"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "verification.report"),

		AssessorTimeout: getDurationEnv("ASSESSOR_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
