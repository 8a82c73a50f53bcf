// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvProduction disables diagnostic detail in error responses and enforces a strong JWT secret.
	EnvProduction = "production"
	// EnvDevelopment enables diagnostic detail in 500 responses and permissive CORS.
	EnvDevelopment = "development"

	// FailClosed treats a token as revoked when the denylist cannot be reached.
	FailClosed = "closed"
	// FailOpen treats a token as not revoked when the denylist cannot be reached.
	FailOpen = "open"

	defaultJWTSecret = "change-me-in-production"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment ("development" or "production").
	Env string `mapstructure:"APP_ENV"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the denylist store address (redis://host:port/db). Empty uses an in-process store.
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTAlgorithm is HS256 (shared secret), RS256 or ES256 (PEM key pair).
	JWTAlgorithm string `mapstructure:"JWT_ALGORITHM"`
	// JWTSecret is the HMAC secret used when JWTAlgorithm is HS256.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// DenylistFailMode is "closed" or "open"; decides IsRevoked when Redis is unreachable.
	DenylistFailMode string `mapstructure:"DENYLIST_FAIL_MODE"`
	// DenylistTimeout bounds a single denylist call (e.g. "200ms").
	DenylistTimeout string `mapstructure:"DENYLIST_TIMEOUT"`
	// StoreTimeout bounds a single Postgres call made on the request path (e.g. "3s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`
	// RevokeOnPasswordChange revokes the caller's access token and older refresh tokens after a password change.
	RevokeOnPasswordChange bool `mapstructure:"AUTH_REVOKE_ON_PASSWORD_CHANGE"`

	// LoginRatePerSecond and LoginRateBurst configure the per-IP token bucket on login and register.
	LoginRatePerSecond float64 `mapstructure:"LOGIN_RATE_PER_SECOND"`
	LoginRateBurst     int     `mapstructure:"LOGIN_RATE_BURST"`
	// CORSAllowedOrigins is a comma-separated allow-list used outside development.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// TrustedProxyList is a comma-separated list of proxy IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty trusts no proxy and uses the peer address.
	TrustedProxyList string `mapstructure:"TRUSTED_PROXIES"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// SlowRequestThreshold marks requests slower than this as slow in the request log.
	SlowRequestThreshold string `mapstructure:"SLOW_REQUEST_THRESHOLD"`

	// OTelEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// SeedAdminPassword is the password given to the default admin account by cmd/seed.
	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "apiflask-auth")
	v.SetDefault("JWT_AUDIENCE", "apiflask-api")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("DENYLIST_FAIL_MODE", FailClosed)
	v.SetDefault("DENYLIST_TIMEOUT", "200ms")
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("AUTH_REVOKE_ON_PASSWORD_CHANGE", true)
	v.SetDefault("LOGIN_RATE_PER_SECOND", 5)
	v.SetDefault("LOGIN_RATE_BURST", 10)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("SLOW_REQUEST_THRESHOLD", "1s")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "apiflask")
	v.SetDefault("SEED_ADMIN_PASSWORD", "admin123")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field rules. Load calls it; tests may call it directly.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	c.JWTAlgorithm = strings.ToUpper(strings.TrimSpace(c.JWTAlgorithm))
	switch c.JWTAlgorithm {
	case "HS256":
		if c.JWTSecret == "" {
			return errors.New("config: JWT_SECRET must be set when JWT_ALGORITHM=HS256")
		}
		if c.IsProduction() && (c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 32) {
			return errors.New("config: JWT_SECRET must be at least 32 bytes and not the default when APP_ENV=production")
		}
	case "RS256", "ES256":
		if c.JWTPrivateKey == "" || c.JWTPublicKey == "" {
			return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set for " + c.JWTAlgorithm)
		}
	default:
		return errors.New("config: JWT_ALGORITHM must be one of HS256, RS256, ES256")
	}

	c.DenylistFailMode = strings.ToLower(strings.TrimSpace(c.DenylistFailMode))
	if c.DenylistFailMode != FailClosed && c.DenylistFailMode != FailOpen {
		return errors.New("config: DENYLIST_FAIL_MODE must be closed or open")
	}
	if c.LoginRatePerSecond < 0 || c.LoginRateBurst < 0 {
		return errors.New("config: LOGIN_RATE_PER_SECOND and LOGIN_RATE_BURST must not be negative")
	}
	for _, p := range c.TrustedProxies() {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return errors.New("config: TRUSTED_PROXIES entry " + p + " is not an IP or CIDR")
			}
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, time.Hour)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 30*24*time.Hour)
}

// DenylistTimeoutDuration returns the per-call denylist bound. Returns 200ms if unset or invalid.
func (c *Config) DenylistTimeoutDuration() time.Duration {
	return parseDuration(c.DenylistTimeout, 200*time.Millisecond)
}

// StoreTimeoutDuration returns the per-call Postgres bound. Returns 3s if unset or invalid.
func (c *Config) StoreTimeoutDuration() time.Duration {
	return parseDuration(c.StoreTimeout, 3*time.Second)
}

// SlowRequestDuration returns the slow request threshold. Returns 1s if unset or invalid.
func (c *Config) SlowRequestDuration() time.Duration {
	return parseDuration(c.SlowRequestThreshold, time.Second)
}

// CORSOrigins returns the allowed origins from the comma-separated config.
func (c *Config) CORSOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxies returns the trusted proxy IPs and CIDRs from the comma-separated config.
func (c *Config) TrustedProxies() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxyList)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if item := strings.TrimSpace(p); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
