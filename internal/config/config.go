package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ModeDevelopment = "development"
	ModeTest        = "test"
	ModeProduction  = "production"
)

type Config struct {
	Addr      string // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	Mode      string // development | test | production
	LogDir    string // logs directory
	LogLevel  string // debug | info | warn | error
	LogStdout bool   // tee logs to stdout as well as the rotated file

	// Storage: DATABASE_URL wins, then SQLITE_PATH, else in-memory.
	DatabaseURL string
	SQLitePath  string
	SeedFile    string // optional YAML file of services created at startup

	// Prober
	ProbeTimeout  time.Duration // per attempt
	RetryAttempts int           // total attempts on transport failures
	RetryBackoff  time.Duration // backoff between attempts

	// HTTP surface
	AllowedOrigins     []string
	HealthAllowedHosts []string
	PublicAPIKeys      []string
	AdminAPIKeys       []string
	PublicRPM          int
	PublicBurst        int
	AdminRPM           int
	AdminBurst         int

	// Alerts
	SlackWebhookURL string
	AlertCooldown   time.Duration
	AlertOnRecovery bool
}

func (c Config) Production() bool { return c.Mode == ModeProduction }

func FromEnv() Config {
	mode := strings.ToLower(os.Getenv("APP_MODE"))
	switch mode {
	case ModeDevelopment, ModeTest, ModeProduction:
	default:
		mode = ModeDevelopment
	}

	return Config{
		// Bind address (Windows-friendly default)
		Addr:      str("API_ADDR", "127.0.0.1:8080"),
		Mode:      mode,
		LogDir:    str("LOG_DIR", "logs"),
		LogLevel:  str("LOG_LEVEL", "info"),
		LogStdout: boolean("LOG_STDOUT", mode == ModeDevelopment),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		SeedFile:    os.Getenv("SEED_FILE"),

		ProbeTimeout:  millis("PROBE_TIMEOUT_MS", 8000, 1),
		RetryAttempts: integer("RETRY_ATTEMPTS", 5, 1),
		RetryBackoff:  millis("RETRY_BACKOFF_MS", 300, 0),

		AllowedOrigins:     list("ALLOWED_ORIGINS"),
		HealthAllowedHosts: list("HEALTH_ALLOWED_HOSTS"),
		PublicAPIKeys:      list("PUBLIC_API_KEYS"),
		AdminAPIKeys:       list("ADMIN_API_KEYS"),
		PublicRPM:          integer("PUBLIC_RPM", 120, 1),
		PublicBurst:        integer("PUBLIC_BURST", 20, 1),
		AdminRPM:           integer("ADMIN_RPM", 60, 1),
		AdminBurst:         integer("ADMIN_BURST", 10, 1),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		AlertCooldown:   millis("ALERT_COOLDOWN_MS", 5*60*1000, 0),
		AlertOnRecovery: boolean("ALERT_ON_RECOVERY", true),
	}
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// integer falls back to def when the value is missing, malformed or below min.
func integer(key string, def, min int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
	}
	return def
}

func millis(key string, def, min int) time.Duration {
	return time.Duration(integer(key, def, min)) * time.Millisecond
}

func boolean(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func list(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
