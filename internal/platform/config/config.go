package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-wide configuration read once at startup.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	JWTSigningKey string
	TokenTTL      time.Duration

	// OnboardingSessionTTL bounds how long an unfinished onboarding session
	// is kept before the cleanup worker removes it.
	OnboardingSessionTTL time.Duration
	CleanupInterval      time.Duration

	Provider  Provider
	RateLimit RateLimit
	Redis     RedisConfig
	Database  DatabaseConfig
}

// RateLimit bounds non-read requests per client IP.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Provider holds identity-provider credentials and transport settings.
// PartnerID and APIKey may be empty; the verification service reports a
// configuration error per request instead of refusing to start.
type Provider struct {
	PartnerID string
	APIKey    string
	// Env is "0" for the provider sandbox, anything else for production.
	Env     string
	BaseURL string
	Timeout time.Duration
	// MaxRPS caps outbound verification calls per second; zero means no cap.
	MaxRPS  float64
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:                 getString("BOND_GATEWAY_ADDR", ":8080"),
		Environment:          getString("APP_ENV", "development"),
		LogLevel:             getString("LOG_LEVEL", "info"),
		JWTSigningKey:        getString("JWT_SIGNING_KEY", devSigningKey),
		TokenTTL:             getDuration("TOKEN_TTL", 24*time.Hour),
		OnboardingSessionTTL: getDuration("ONBOARDING_SESSION_TTL", 30*time.Minute),
		CleanupInterval:      getDuration("ONBOARDING_CLEANUP_INTERVAL", 5*time.Minute),
		Provider: Provider{
			PartnerID: os.Getenv("SMILE_PARTNER_ID"),
			APIKey:    os.Getenv("SMILE_API_KEY"),
			Env:       os.Getenv("SMILE_ENV"),
			BaseURL:   os.Getenv("SMILE_BASE_URL"),
			Timeout:   getDuration("PROVIDER_TIMEOUT", 15*time.Second),
			MaxRPS:    getFloat("PROVIDER_MAX_RPS", 0),
		},
		RateLimit: RateLimit{
			Requests: getInt("RATE_LIMIT_REQUESTS", 20),
			Window:   getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
	}
}

// IsProduction reports whether dev-only defaults must be refused.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// UsesDevSigningKey reports whether JWT_SIGNING_KEY was left unset.
func (s Server) UsesDevSigningKey() bool {
	return s.JWTSigningKey == devSigningKey
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
