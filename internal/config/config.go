package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	AppURL        string
	AuthJWTSecret string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	OTPStore  string
	OTPSecret string

	Redis     RedisConfig
	RateLimit RateLimitConfig

	AuthzPermissionMode string

	SMTP SMTPConfig
	SMS  SMSConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled  bool
	OTPRate  float64
	OTPBurst int
	LockTTL  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type SMSConfig struct {
	APIKey  string
	BaseURL string
	Sender  string
}

const (
	OTPStoreDatabase = "database"
	OTPStoreRedis    = "redis"

	PermissionModeSnapshot = "snapshot"
	PermissionModeLive     = "live"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "membership"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   environment,
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AppURL:        strings.TrimRight(getenv("APP_URL", "http://localhost:3000"), "/"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "membership"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", environment != "production"),

		OTPStore:  normalizeOTPStore(getenv("OTP_STORE", OTPStoreDatabase)),
		OTPSecret: strings.TrimSpace(getenv("OTP_SECRET", "")),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getenvBool("RATE_LIMIT_ENABLED", false),
			OTPRate:  getenvFloat("OTP_RATE", 0.2),
			OTPBurst: int(getenvInt64("OTP_BURST", 5)),
			LockTTL:  time.Duration(getenvInt64("OWNER_LOCK_TTL_SECONDS", 10)) * time.Second,
		},

		AuthzPermissionMode: normalizePermissionMode(getenv("AUTHZ_PERMISSION_MODE", PermissionModeSnapshot)),

		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     int(getenvInt64("SMTP_PORT", 587)),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@localhost"),
			FromName: getenv("SMTP_FROM_NAME", "Membership"),
		},
		SMS: SMSConfig{
			APIKey:  strings.TrimSpace(getenv("SMS_API_KEY", "")),
			BaseURL: strings.TrimRight(getenv("SMS_BASE_URL", ""), "/"),
			Sender:  getenv("SMS_SENDER", ""),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func normalizeOTPStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case OTPStoreRedis:
		return OTPStoreRedis
	default:
		return OTPStoreDatabase
	}
}

func normalizePermissionMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case PermissionModeLive:
		return PermissionModeLive
	default:
		return PermissionModeSnapshot
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
