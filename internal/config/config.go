// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development; the cipher
// secret and the JWT keypair have no usable default.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 5010).
	Port int

	// BaseURL is the public-facing URL of the API.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// TrustedProxies lists the CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string

	// Database holds MySQL/MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings for the notification relay.
	Redis RedisConfig

	// Auth holds token, cipher and cookie settings.
	Auth AuthConfig

	// CORS lists the browser origins allowed to call the API.
	CORS CORSConfig

	// Storage holds the static asset directories.
	Storage StorageConfig

	// Admin holds settings used by the admin store operations.
	Admin AdminConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the database address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the database username (default: "syphax").
	User string

	// Password is the database password (default: "syphax").
	Password string

	// Name is the database name (default: "syphax").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns bounds concurrent connections. Requests beyond it queue
	// on the pool rather than fail.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration

	// RunMigrations applies db/migrations on startup when true.
	RunMigrations bool

	// MigrationsPath is the directory holding the migration files.
	MigrationsPath string
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	// RowsAffected counts matched rows, not changed rows.
	cfg.ClientFoundRows = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	// Empty disables the cross-instance notification relay.
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// CipherSecret is the secret the payload cipher key is derived from.
	CipherSecret string

	// CipherKeyLength is the derived key length in bytes. Read from
	// AES_ENC_SALT for compatibility with existing deployments.
	CipherKeyLength int

	// CipherSalt is the fixed KDF salt.
	CipherSalt string

	// PrivateKeyPath and PublicKeyPath locate the RS256 keypair (PEM).
	PrivateKeyPath string
	PublicKeyPath  string

	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshDays and StaySignedInDays pick the refresh token lifetime:
	// the token lasts until the end of the day that many days from now.
	RefreshDays      int
	StaySignedInDays int

	// RefreshCookieName names the HttpOnly cookie carrying the refresh token.
	RefreshCookieName string

	// CookieSecure sets the Secure attribute on the refresh cookie.
	CookieSecure bool

	// Location is the time zone used for end-of-day expiry computation.
	Location *time.Location

	// LoginRateLimit is the number of login attempts allowed per IP per minute.
	LoginRateLimit int
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// StorageConfig holds the directories served under /storage.
type StorageConfig struct {
	// PublicPath is served to anyone under /storage/assets.
	PublicPath string

	// PrivatePath is served under /storage/private/assets to authenticated clients.
	PrivatePath string
}

// AdminConfig holds settings for admin store operations.
type AdminConfig struct {
	// PhoneRegion is the default region used to parse mobile numbers
	// entered without an international prefix.
	PhoneRegion string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	env := getEnv("ENV", getEnv("APP_MODE", "development"))
	cfg := &Config{
		Env:      env,
		Port:     getEnvInt("PORT", 5010),
		BaseURL:  getEnv("BASE_URL", "http://localhost:5010"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", getEnv("DB_IP", "localhost:3306")),
			User:            getEnv("DB_USER", "syphax"),
			Password:        getEnv("DB_PASSWORD", "syphax"),
			Name:            getEnv("DB_NAME", "syphax"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", getEnvInt("CONNECT_LIMIT", 10)),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			RunMigrations:   getEnvBool("RUN_MIGRATIONS", true),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "db/migrations"),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			CipherSecret:      getEnv("AES_ENC_KEY", ""),
			CipherKeyLength:   getEnvInt("AES_ENC_SALT", 32),
			CipherSalt:        getEnv("AES_KDF_SALT", "salt"),
			PrivateKeyPath:    getEnv("JWT_PRIVATE_KEY_PATH", "certs/jwtRS256.key"),
			PublicKeyPath:     getEnv("JWT_PUBLIC_KEY_PATH", "certs/jwtRS256.key.pub"),
			AccessTokenTTL:    getEnvDuration("ACCESS_TOKEN_TTL", 120*time.Second),
			RefreshDays:       getEnvInt("REFRESH_DAYS", 1),
			StaySignedInDays:  getEnvInt("STAY_SIGNED_IN_DAYS", 15),
			RefreshCookieName: getEnv("REFRESH_COOKIE_NAME", "yttmrtck"),
			LoginRateLimit:    getEnvInt("LOGIN_RATE_LIMIT", 10),
		},

		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS",
				[]string{"http://localhost:4173", "http://localhost:5173"}),
		},

		Storage: StorageConfig{
			PublicPath:  getEnv("STORAGE_PUBLIC_PATH", "storage/assets"),
			PrivatePath: getEnv("STORAGE_PRIVATE_PATH", "storage/private/assets"),
		},

		Admin: AdminConfig{
			PhoneRegion: getEnv("PHONE_DEFAULT_REGION", "FR"),
		},
	}
	cfg.Auth.CookieSecure = getEnvBool("COOKIE_SECURE", cfg.IsProduction())
	cfg.TrustedProxies = getEnvList("TRUSTED_PROXIES",
		[]string{"127.0.0.1/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"})

	if cfg.Auth.CipherSecret == "" {
		return nil, fmt.Errorf("AES_ENC_KEY is required")
	}
	if cfg.Auth.CipherKeyLength != 32 {
		return nil, fmt.Errorf("AES_ENC_SALT must be 32 (AES-256 key length), got %d", cfg.Auth.CipherKeyLength)
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.Auth.RefreshDays < 0 || cfg.Auth.StaySignedInDays < 0 {
		return nil, fmt.Errorf("REFRESH_DAYS and STAY_SIGNED_IN_DAYS must not be negative")
	}

	loc, err := time.LoadLocation(getEnv("SESSION_TIMEZONE", "CET"))
	if err != nil {
		return nil, fmt.Errorf("loading SESSION_TIMEZONE: %w", err)
	}
	cfg.Auth.Location = loc

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode. Case-insensitive
// so "Production" and "prod" both count.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "120s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var or returns the default.
// Blank entries are dropped.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
