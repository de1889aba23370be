package config

import (
	"fmt"
	"os"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL      string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string

	// Redis
	RedisURL      string
	RedisPassword string

	// Server
	Port string

	// Authentication
	JWTSecret string
}

func Load() *Config {
	return &Config{
		// Environment
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),

		// Database
		DatabaseURL:      getEnvOrDefault("DATABASE_URL", ""),
		PostgresDB:       getEnvOrDefault("POSTGRES_DB", "potledger"),
		PostgresUser:     getEnvOrDefault("POSTGRES_USER", "potledger_user"),
		PostgresPassword: getEnvOrDefault("POSTGRES_PASSWORD", "potledger_password"),
		PostgresHost:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvOrDefault("POSTGRES_PORT", "5432"),

		// Redis
		RedisURL:      getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// Server
		Port: getEnvOrDefault("PORT", "8080"),

		// Authentication
		JWTSecret: getEnvOrDefault("JWT_SECRET", "potledger-secret-key-change-in-production"),
	}
}

func (c *Config) GetDatabaseURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
