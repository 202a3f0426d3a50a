package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; only JWT_SECRET is required.
type Config struct {
	Env  string // application environment (dev, test, prod)
	Port string // HTTP port to listen on

	DBDriver      string // mysql, postgres or memory
	DBUser        string
	DBPass        string
	DBHost        string
	DBPort        string
	DBName        string
	DatabaseURL   string // postgres connection string
	DBAutoMigrate bool   // apply the embedded schema at startup

	JWTSecret    string // secret used to sign JWTs
	AccessTTLMin int    // access token time-to-live in minutes
	BcryptCost   int    // bcrypt cost for password hashing

	NumberingBackend string // local or redis

	AMQPURL        string // RabbitMQ URL; empty disables events
	EventsEnabled  bool
	TicketAuditLog string // file the audit consumer appends to

	EstimatePerTicket time.Duration // assumed service time per ticket ahead
	ExpireAfter       time.Duration // waiting longer than this counts as expired
	Timezone          *time.Location

	PurgeCron      string // cron spec for the maintenance purge; empty disables it
	RequestTimeout time.Duration

	OTLPEndpoint string // collector endpoint; empty disables tracing
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env", "err", err)
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return Config{}, fmt.Errorf("missing required env var: JWT_SECRET")
	}

	loc := time.UTC
	if tz := os.Getenv("APP_TIMEZONE"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("invalid APP_TIMEZONE %q: %w", tz, err)
		}
		loc = l
	}

	cfg := Config{
		Env:  envStr("APP_ENV", "dev"),
		Port: envStr("APP_PORT", "8080"),

		DBDriver:      strings.ToLower(envStr("DB_DRIVER", "mysql")),
		DBUser:        envStr("DB_USER", "root"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        envStr("DB_HOST", "127.0.0.1"),
		DBPort:        envStr("DB_PORT", "3306"),
		DBName:        envStr("DB_NAME", "senhas"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBAutoMigrate: envBool("DB_AUTO_MIGRATE", true),

		JWTSecret:    secret,
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 1440),
		BcryptCost:   envInt("BCRYPT_COST", 10),

		NumberingBackend: strings.ToLower(envStr("NUMBERING_BACKEND", "local")),

		AMQPURL:        firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
		EventsEnabled:  envBool("EVENTS_ENABLED", true),
		TicketAuditLog: envStr("TICKET_AUDIT_LOG", "logs/tickets.log"),

		EstimatePerTicket: envDur("ESTIMATE_PER_TICKET", 3*time.Minute),
		ExpireAfter:       envDur("EXPIRE_AFTER", 30*time.Minute),
		Timezone:          loc,

		PurgeCron:      os.Getenv("PURGE_CRON"),
		RequestTimeout: envDur("REQUEST_TIMEOUT", 5*time.Second),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	switch cfg.DBDriver {
	case "mysql", "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DB_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	switch cfg.NumberingBackend {
	case "local", "redis":
	default:
		return Config{}, fmt.Errorf("unknown NUMBERING_BACKEND %q", cfg.NumberingBackend)
	}
	if cfg.AccessTTLMin <= 0 {
		return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_TTL_MIN: %d", cfg.AccessTTLMin)
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
