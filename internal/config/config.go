package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Token     TokenConfig
	Keys      KeyConfig
	Lockout   LockoutConfig
	Biometric BiometricConfig
	Device    DeviceConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
}

type ServerConfig struct {
	ListenAddr string

	// AllowedOrigins is empty by default: no cross-origin access until
	// an operator names the origins.
	AllowedOrigins []string
}

type AuthConfig struct {
	AllowSignup bool
}

type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RevocationCheckTimeout bounds the revocation-store read on every
	// verification. FailOpenOnRevocationTimeout decides what a timeout
	// means: false rejects the request as transient, true lets it pass.
	// Failing open must be switched on explicitly.
	RevocationCheckTimeout      time.Duration
	FailOpenOnRevocationTimeout bool
}

type KeyConfig struct {
	RotationInterval time.Duration
	GracePeriod      time.Duration
}

type LockoutConfig struct {
	Threshold int
	BaseDelay time.Duration
	CapDelay  time.Duration
}

type BiometricConfig struct {
	MinQuality         float64
	MatchThreshold     float64
	MaxAttemptsPerHour int
	VaultKeyHex        string
}

type DeviceConfig struct {
	TrustThreshold float64
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() Config {
	minQuality := getfloat("BIOMETRIC_MIN_QUALITY", 0.8)
	return Config{
		Server: ServerConfig{
			ListenAddr:     getenv("LISTEN_ADDR", ":8080"),
			AllowedOrigins: getlist("CORS_ALLOWED_ORIGINS"),
		},
		Auth: AuthConfig{
			AllowSignup: getbool("ALLOW_SIGNUP", false),
		},
		Token: TokenConfig{
			AccessTTL:                   getdur("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL:                  getdur("REFRESH_TOKEN_TTL", 168*time.Hour),
			RevocationCheckTimeout:      getdur("REVOCATION_CHECK_TIMEOUT", 2*time.Second),
			FailOpenOnRevocationTimeout: getbool("FAIL_OPEN_ON_REVOCATION_TIMEOUT", false),
		},
		Keys: KeyConfig{
			RotationInterval: getdur("KEY_ROTATION_INTERVAL", 24*time.Hour),
			GracePeriod:      getdur("KEY_GRACE_PERIOD", time.Hour),
		},
		Lockout: LockoutConfig{
			Threshold: getint("LOCKOUT_THRESHOLD", 5),
			BaseDelay: getdur("LOCKOUT_BASE_DELAY", 5*time.Minute),
			CapDelay:  getdur("LOCKOUT_CAP_DELAY", 24*time.Hour),
		},
		Biometric: BiometricConfig{
			MinQuality:         minQuality,
			MatchThreshold:     getfloat("BIOMETRIC_MATCH_THRESHOLD", minQuality),
			MaxAttemptsPerHour: getint("BIOMETRIC_MAX_ATTEMPTS_PER_HOUR", 5),
			VaultKeyHex:        os.Getenv("BIOMETRIC_VAULT_KEY"),
		},
		Device: DeviceConfig{
			TrustThreshold: getfloat("DEVICE_TRUST_THRESHOLD", 0.7),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getint("REDIS_DB", 0),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getdur(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getint(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getlist(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getbool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
