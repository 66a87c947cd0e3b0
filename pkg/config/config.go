package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret signs sessions when JWT_SECRET is unset. It is public and
// only accepted in development.
const DevJWTSecret = "local_dev_secret"

// ErrMissingJWTSecret means JWT_SECRET must be set for this environment.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort  string
	LogLevel string
	MediaDir string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SchemaPath string

	// Catalog
	CategorySeedPath string

	// Sessions
	JWTSecret  string
	SessionTTL time.Duration

	// Redis (password reset codes)
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ResetCodeTTL     time.Duration
	ResetMaxAttempts int

	// Rate limiting for login and password reset
	RateLimitRPS   int
	RateLimitBurst int
	TrustedProxies []string // peers whose X-Forwarded-For is believed

	// Mail
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	DefaultFromEmail string

	// OpenTelemetry
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPProtocol  string
	OTELExporterOTLPHeaders   string // For SigNoz Cloud: signoz-ingestion-key=<key>
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
	OTELResourceAttributes    string
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	// .env is optional; only a malformed file is worth a warning
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	return &Config{
		AppPort:  getEnv("APP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		MediaDir: getEnv("MEDIA_DIR", "media"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "rentify"),
		SchemaPath: getEnv("SCHEMA_PATH", "schema.sql"),

		CategorySeedPath: getEnv("CATEGORY_SEED_PATH", "categories.yaml"),

		JWTSecret:  getEnv("JWT_SECRET", DevJWTSecret),
		SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),

		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		ResetCodeTTL:     getEnvDuration("RESET_CODE_TTL", 10*time.Minute),
		ResetMaxAttempts: getEnvInt("RESET_MAX_ATTEMPTS", 5),

		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 1),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 5),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		SMTPHost:         getEnv("SMTP_HOST", "localhost"),
		SMTPPort:         getEnvInt("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		DefaultFromEmail: getEnv("DEFAULT_FROM_EMAIL", "noreply@rentify.com"),

		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPProtocol:  getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "rentify"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
		OTELResourceAttributes:    getEnv("OTEL_RESOURCE_ATTRIBUTES", ""),
	}
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4"
}

// IsDevelopment reports whether the deployment environment is a local one.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.OTELDeploymentEnvironment) {
	case "", "development", "dev", "local", "test":
		return true
	}
	return false
}

// CheckSecrets refuses the built-in session secret outside development.
func (c *Config) CheckSecrets() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.JWTSecret == DevJWTSecret && !c.IsDevelopment() {
		return fmt.Errorf("%w in %q", ErrMissingJWTSecret, c.OTELDeploymentEnvironment)
	}
	return nil
}

// GetAppPortInt returns the application port as an integer
func (c *Config) GetAppPortInt() int {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil {
		return 8080
	}
	return port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if value == "true" || value == "1" || value == "yes" {
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("Warning: %s=%q is not an integer, using %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15m") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Warning: %s=%q is not a duration, using %s", key, value, defaultValue)
	return defaultValue
}
