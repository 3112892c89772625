// ==============================================================================
// CONFIG PACKAGE - pkg/config/config.go
// ==============================================================================
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Verification VerificationConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// VerificationConfig controls which pipeline stages run and how retries behave.
type VerificationConfig struct {
	EnableOCR                  bool
	EnableDocumentVerification bool
	EnableFaceMatch            bool
	EnableLiveness             bool
	EnableAddressProof         bool
	EnableComplianceChecks     bool
	MaxRetries                 int
	AutoRetryOnLowQuality      bool
	CheckTimeout               time.Duration
	ResultCacheTTL             time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-this-secret"),
			Expiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),
		},
		Verification: VerificationConfig{
			EnableOCR:                  getBoolEnv("KYC_ENABLE_OCR", true),
			EnableDocumentVerification: getBoolEnv("KYC_ENABLE_DOCUMENT_VERIFICATION", true),
			EnableFaceMatch:            getBoolEnv("KYC_ENABLE_FACE_MATCH", true),
			EnableLiveness:             getBoolEnv("KYC_ENABLE_LIVENESS", true),
			EnableAddressProof:         getBoolEnv("KYC_ENABLE_ADDRESS_PROOF", true),
			EnableComplianceChecks:     getBoolEnv("KYC_ENABLE_COMPLIANCE_CHECKS", true),
			MaxRetries:                 getIntEnv("KYC_MAX_RETRIES", 3),
			AutoRetryOnLowQuality:      getBoolEnv("KYC_AUTO_RETRY_ON_LOW_QUALITY", true),
			CheckTimeout:               getDurationEnv("KYC_CHECK_TIMEOUT", 30*time.Second),
			ResultCacheTTL:             getDurationEnv("KYC_RESULT_CACHE_TTL", 24*time.Hour),
		},
	}
}

// ValidateCore checks settings every service binary depends on.
func (c *Config) ValidateCore() error {
	if c.Verification.MaxRetries < 0 {
		return errors.New("KYC_MAX_RETRIES must not be negative")
	}
	if c.Verification.CheckTimeout <= 0 {
		return errors.New("KYC_CHECK_TIMEOUT must be positive")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}
