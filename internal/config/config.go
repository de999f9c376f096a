// Package config loads runtime configuration from environment variables.
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds the process-level settings.  Component tunables live in
// BookingConfig, RedisConfig, RateLimitConfig and CacheConfig.
type Config struct {
	Env      string // application environment (dev, prod)
	Port     string // HTTP port to listen on
	LogLevel string // overrides the environment's default zap level

	StoreDriver string // mysql or memory
	AutoMigrate bool   // create booking tables at startup
	DBUser      string
	DBPass      string // may be empty
	DBHost      string
	DBPort      string
	DBName      string

	JWTSecret   string // HS256 secret shared with the identity provider
	RabbitURL   string // audit broker
	AuditLogDir string // where cmd/audit-consumer appends booking.log

	Booking BookingConfig
}

// Load reads .env (if any) and the environment.  Missing required
// variables are reported together.
func Load() (Config, error) {
	_ = godotenv.Load()

	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:         envStr("APP_ENV", "dev"),
		Port:        envStr("APP_PORT", "8080"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		AutoMigrate: envBool("DB_AUTO_MIGRATE", false),
		DBPass:      os.Getenv("DB_PASS"),
		JWTSecret:   must("JWT_SECRET"),
		RabbitURL:   envStr("RABBITMQ_URL", envStr("AMQP_URL", defaultAMQPURL)),
		AuditLogDir: envStr("AUDIT_LOG_DIR", "logs"),
		Booking:     LoadBookingConfig(),
	}

	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("invalid APP_PORT %q", cfg.Port)
	}
	if err := cfg.Booking.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ErrInvalidBooking is returned for booking tunables that cannot work.
var ErrInvalidBooking = errors.New("invalid booking configuration")
