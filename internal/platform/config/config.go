package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration, read once at startup.
type Config struct {
	Server   Server
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Lookup   LookupConfig
	Logging  LoggingConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// CleanupInterval paces eviction of expired in-memory lockout and
	// lookup cache entries.
	CleanupInterval time.Duration
	// TrustProxyHeaders takes client IPs from forwarding headers. Leave
	// false unless a proxy in front overwrites them.
	TrustProxyHeaders bool
}

// AuthConfig holds token signing and login settings.
type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
	// DefaultPIN is the PIN every personnel record starts with until changed.
	DefaultPIN string
	// BootstrapAdmin is created at startup when no administrator exists.
	// An empty BootstrapPassword makes the server generate and log one.
	BootstrapAdmin    string
	BootstrapPassword string

	// Failed logins beyond LockoutAttempts from one client, or beyond
	// LockoutIdentifierAttempts from any client, within LockoutWindow lock
	// the identifier for LockoutDuration.
	LockoutAttempts           int
	LockoutIdentifierAttempts int
	LockoutWindow             time.Duration
	LockoutDuration           time.Duration
}

// DatabaseConfig selects the persistence backend. An empty DSN selects the
// in-memory backend.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig configures the lookup cache. An empty URL disables Redis and
// the in-memory cache is used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit stream. No brokers means audit events are
// kept in memory and logged.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// LookupConfig configures the external routing-code directory client.
type LookupConfig struct {
	BaseURL          string
	Timeout          time.Duration
	CacheTTL         time.Duration
	NegativeCacheTTL time.Duration
	// CacheMaxEntries bounds the in-memory cache used without Redis.
	CacheMaxEntries  int
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("POLLBANK_ADDR", ":8080"),
			ReadTimeout:     envDuration("POLLBANK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    envDuration("POLLBANK_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: envDuration("POLLBANK_SHUTDOWN_TIMEOUT", 10*time.Second),

			CleanupInterval:   envDuration("POLLBANK_CLEANUP_INTERVAL", 5*time.Minute),
			TrustProxyHeaders: envBool("POLLBANK_TRUST_PROXY_HEADERS", false),
		},
		Auth: AuthConfig{
			// Development default; must be overridden in production.
			JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envString("JWT_ISSUER", "pollbank"),
			JWTAudience:   envString("JWT_AUDIENCE", "pollbank-api"),
			TokenTTL:      envDuration("JWT_TTL", 8*time.Hour),
			DefaultPIN:    envString("PERSONNEL_DEFAULT_PIN", "123456"),

			BootstrapAdmin:    envString("POLLBANK_BOOTSTRAP_ADMIN", "admin"),
			BootstrapPassword: os.Getenv("POLLBANK_BOOTSTRAP_PASSWORD"),

			LockoutAttempts:           envInt("LOGIN_LOCKOUT_ATTEMPTS", 5),
			LockoutIdentifierAttempts: envInt("LOGIN_LOCKOUT_IDENTIFIER_ATTEMPTS", 20),
			LockoutWindow:             envDuration("LOGIN_LOCKOUT_WINDOW", 15*time.Minute),
			LockoutDuration:           envDuration("LOGIN_LOCKOUT_DURATION", 15*time.Minute),
		},
		Database: DatabaseConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     envBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    envList("KAFKA_BROKERS"),
			AuditTopic: envString("KAFKA_AUDIT_TOPIC", "pollbank.audit"),
		},
		Lookup: LookupConfig{
			BaseURL:          envString("ROUTING_LOOKUP_URL", "https://ifsc.razorpay.com"),
			Timeout:          envDuration("ROUTING_LOOKUP_TIMEOUT", 5*time.Second),
			CacheTTL:         envDuration("ROUTING_LOOKUP_CACHE_TTL", 24*time.Hour),
			NegativeCacheTTL: envDuration("ROUTING_LOOKUP_NEGATIVE_TTL", 10*time.Minute),
			CacheMaxEntries:  envInt("ROUTING_LOOKUP_CACHE_ENTRIES", 10000),
			FailureThreshold: envInt("ROUTING_LOOKUP_FAILURE_THRESHOLD", 5),
			SuccessThreshold: envInt("ROUTING_LOOKUP_SUCCESS_THRESHOLD", 2),
			Cooldown:         envDuration("ROUTING_LOOKUP_COOLDOWN", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
