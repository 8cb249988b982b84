package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Optional integrations (JWT, RabbitMQ, tracing,
// webhook signatures) are disabled when their variable is empty.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	Port   string // HTTP port to listen on
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret     string // secret used to verify bearer tokens (optional)
	WebhookSecret string // HMAC key for payment webhooks (optional)
	RabbitURL     string // broker for payment events (optional)
	OTLPEndpoint  string // OTLP/HTTP trace collector (optional)
	AuditLogPath  string // rotating finalization audit log

	SeatLock SeatLockConfig
}

// SeatLockConfig carries the lifetimes and timers of the seat locking
// subsystem.  The defaults match every other deployment sharing the
// same lock store and should only be changed together with them.
type SeatLockConfig struct {
	LockTTL           time.Duration
	BookingSessionTTL time.Duration
	UserSessionTTL    time.Duration
	InactivityTimeout time.Duration
	TabHiddenTimeout  time.Duration
	DispatchTimeout   time.Duration
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	rabbit := os.Getenv("RABBITMQ_URL")
	if rabbit == "" {
		rabbit = os.Getenv("AMQP_URL")
	}
	return Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		RabbitURL:     rabbit,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AuditLogPath:  envStr("AUDIT_LOG_PATH", "logs/finalized.log"),

		SeatLock: LoadSeatLockConfig(),
	}
}

// LoadSeatLockConfig reads the seat lock durations, falling back to the
// standard values.
func LoadSeatLockConfig() SeatLockConfig {
	c := SeatLockConfig{
		LockTTL:           envDur("SEAT_LOCK_TTL", 900*time.Second),
		BookingSessionTTL: envDur("BOOKING_SESSION_TTL", 1800*time.Second),
		UserSessionTTL:    envDur("USER_SESSION_TTL", 3600*time.Second),
		InactivityTimeout: envDur("INACTIVITY_TIMEOUT", 15*time.Minute),
		TabHiddenTimeout:  envDur("TAB_HIDDEN_TIMEOUT", 30*time.Second),
		DispatchTimeout:   envDur("CLEANUP_DISPATCH_TIMEOUT", 10*time.Second),
	}
	if c.BookingSessionTTL < c.LockTTL {
		log.Printf("config: BOOKING_SESSION_TTL %s below SEAT_LOCK_TTL %s; raising", c.BookingSessionTTL, c.LockTTL)
		c.BookingSessionTTL = c.LockTTL
	}
	return c
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
