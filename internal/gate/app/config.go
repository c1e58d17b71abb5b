package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gate/pkg/httpx"
	"github.com/joho/godotenv"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 15s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 10m)

	DBDriver     string // sqlite or postgres (default: sqlite)
	DatabaseFile string // SQLite database file (default: ./gate.db)
	DatabaseURL  string // Postgres DSN, required when DBDriver is postgres
	PepperFile   string // Password hashing pepper (default: ./pepper.key)

	SessionSecret     string        // Signs the session cookie; random per process when empty
	SessionMaxAge     time.Duration // Session and XSRF cookie lifetime (default: 1h)
	CookieSecure      bool          // Secure attribute on cookies (default: true)
	AllowedOrigins    []string      // Appended to the local development origins
	TrustProxyHeaders bool          // Derive client IPs from X-Forwarded-For / X-Real-IP

	RedisAddr     string // Shared attempt counters; in-memory when empty
	RedisPassword string
	RedisDB       int

	LoginMaxAttempts    int
	LoginLockout        time.Duration
	RegisterMaxAttempts int
	RegisterLockout     time.Duration

	PasswordRequireSymbol bool
	HIBPEnabled           bool
	HIBPEndpoint          string
	HIBPTimeout           time.Duration

	APITokenTTL   time.Duration // Zero means tokens never expire (default: 30 days)
	ResetTokenTTL time.Duration
	ResetURL      string

	SMTPHost     string // Reset mail is only logged when empty
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	InviteKeyPrefix string
	APIPassword     string // Shared secret for relay and invite minting; both are refused when empty

	CookiesJSON      string // Inline upstream cookie pool, takes precedence over CookiesFile
	CookiesFile      string
	CookiesKeyFile   string // When set, CookiesFile is sealed with this key (see cmd/gate-seal)
	RelayTimeout     time.Duration
	RelayConcurrency int
}

func LoadConfig() Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	reloadRateLimits()

	return Config{
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 15*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 10*time.Minute),

		DBDriver:     strings.ToLower(getEnvOrDefault("DB_DRIVER", "sqlite")),
		DatabaseFile: getEnvOrDefault("GATE_DATABASE_FILE", "gate.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		PepperFile:   getEnvOrDefault("GATE_PEPPER_FILE", "pepper.key"),

		SessionSecret:     os.Getenv("SESSION_SECRET"),
		SessionMaxAge:     getEnvDurationOrDefault("SESSION_MAX_AGE", time.Hour),
		CookieSecure:      getEnvBoolOrDefault("COOKIE_SECURE", true),
		AllowedOrigins:    splitList(os.Getenv("ALLOWED_ORIGINS")),
		TrustProxyHeaders: getEnvBoolOrDefault("TRUST_PROXY_HEADERS", false),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		LoginMaxAttempts:    getEnvIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockout:        getEnvDurationOrDefault("LOGIN_LOCKOUT", 15*time.Minute),
		RegisterMaxAttempts: getEnvIntOrDefault("REGISTER_MAX_ATTEMPTS", 3),
		RegisterLockout:     getEnvDurationOrDefault("REGISTER_LOCKOUT", 30*time.Minute),

		PasswordRequireSymbol: getEnvBoolOrDefault("PASSWORD_REQUIRE_SYMBOL", false),
		HIBPEnabled:           getEnvBoolOrDefault("HIBP_ENABLED", true),
		HIBPEndpoint:          getEnvOrDefault("HIBP_ENDPOINT", "https://api.pwnedpasswords.com/range/"),
		HIBPTimeout:           getEnvDurationOrDefault("HIBP_TIMEOUT", 5*time.Second),

		APITokenTTL:   time.Duration(getEnvIntOrDefault("API_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
		ResetTokenTTL: getEnvDurationOrDefault("RESET_TOKEN_TTL", time.Hour),
		ResetURL:      getEnvOrDefault("RESET_URL", "http://localhost:8080/login/reset_password.html"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvIntOrDefault("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnvOrDefault("SMTP_FROM", "no-reply@localhost"),

		InviteKeyPrefix: getEnvOrDefault("INVITE_KEY_PREFIX", "BLUE16_"),
		APIPassword:     os.Getenv("API_PASSWORD"),

		CookiesJSON:      os.Getenv("ROBLOX_COOKIES_JSON"),
		CookiesFile:      os.Getenv("ROBLOX_COOKIES_FILE"),
		CookiesKeyFile:   os.Getenv("ROBLOX_COOKIES_KEY_FILE"),
		RelayTimeout:     getEnvDurationOrDefault("RELAY_TIMEOUT", 10*time.Second),
		RelayConcurrency: getEnvIntOrDefault("RELAY_CONCURRENCY", 4),
	}
}

// reloadRateLimits re-reads the RATELIMIT_* overrides, which httpx parses
// at init before .env has been loaded.
func reloadRateLimits() {
	httpx.StrictLimit = httpx.ParseRateLimitFromEnv("STRICT", httpx.StrictLimit)
	httpx.ModerateLimit = httpx.ParseRateLimitFromEnv("MODERATE", httpx.ModerateLimit)
	httpx.LenientLimit = httpx.ParseRateLimitFromEnv("LENIENT", httpx.LenientLimit)
	httpx.PublicLimit = httpx.ParseRateLimitFromEnv("PUBLIC", httpx.PublicLimit)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// "1h", "30m", "90s"
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
