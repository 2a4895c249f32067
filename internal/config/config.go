package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fpconsole/internal/logger"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	// Backend and simulation
	APIBaseURL       string
	APITimeout       time.Duration
	Simulation       bool
	SimPort          string
	SimCompleteAfter time.Duration
	SimStepDelay     time.Duration

	// Identity provider. An empty IdentityURL selects the local provider.
	IdentityURL    string
	SecureTokenURL string
	IdentityAPIKey string
	JWTIssuer      string
	JWTSigningKey  string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	SessionTTL     time.Duration
	AdminEmail     string
	AdminPassword  string

	// Workflows
	EnrollTimeout        time.Duration
	EnrollPollInterval   time.Duration
	SensorStatusInterval time.Duration

	// Event bus and audit trail
	QueueBackend string
	RedisAddr    string
	AuditDriver  string
	AuditDSN     string

	RateLimitPerMin      int
	SignInAttemptsPerMin int
	CORSOrigins          []string
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() App {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.LogWarn("could not read .env file", "error", err)
	}
	return App{
		Env:                  getEnv("APP_ENV", "dev"),
		HTTPPort:             getEnv("HTTP_PORT", "8081"),
		APIBaseURL:           strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000"), "/"),
		APITimeout:           durationEnv("API_TIMEOUT", 15*time.Second),
		Simulation:           boolEnv("SIMULATION", false),
		SimPort:              getEnv("SIM_PORT", "0"),
		SimCompleteAfter:     durationEnv("SIM_COMPLETE_AFTER", 3*time.Second),
		SimStepDelay:         durationEnv("SIM_STEP_DELAY", 1500*time.Millisecond),
		IdentityURL:          strings.TrimRight(getEnv("IDENTITY_URL", ""), "/"),
		SecureTokenURL:       strings.TrimRight(getEnv("SECURE_TOKEN_URL", ""), "/"),
		IdentityAPIKey:       getEnv("IDENTITY_API_KEY", ""),
		JWTIssuer:            getEnv("JWT_ISSUER", "fpconsole"),
		JWTSigningKey:        getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:            durationEnv("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:           durationEnv("REFRESH_TTL", 24*time.Hour),
		SessionTTL:           durationEnv("SESSION_TTL", 8*time.Hour),
		AdminEmail:           getEnv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword:        getEnv("ADMIN_PASSWORD", "admin"),
		EnrollTimeout:        durationEnv("ENROLL_TIMEOUT", 2*time.Minute),
		EnrollPollInterval:   durationEnv("ENROLL_POLL_INTERVAL", 2*time.Second),
		SensorStatusInterval: durationEnv("SENSOR_STATUS_INTERVAL", 0),
		QueueBackend:         getEnv("QUEUE_BACKEND", "memory"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		AuditDriver:          getEnv("AUDIT_DRIVER", "sqlite3"),
		AuditDSN:             getEnv("AUDIT_DSN", ""),
		RateLimitPerMin:      intEnv("RATE_LIMIT_PER_MIN", 120),
		SignInAttemptsPerMin: intEnv("SIGNIN_ATTEMPTS_PER_MIN", 5),
		CORSOrigins:          listEnv("CORS_ORIGINS", []string{"*"}),
	}
}

// Production reports whether the console runs with production settings.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			logger.LogWarn("invalid duration, using fallback", "key", key, "error", err, "fallback", fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		logger.LogWarn("invalid bool, using fallback", "key", key, "fallback", fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		logger.LogWarn("invalid int, using fallback", "key", key, "fallback", fallback)
	}
	return fallback
}

func listEnv(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
