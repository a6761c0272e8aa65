package config // package config loads application configuration from environment variables

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Required values are enforced by Load; the rest
// fall back to defaults that match a local development setup.
type Config struct {
	Env            string        // application environment (e.g. "dev", "production")
	Port           string        // HTTP port to listen on
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	DBMaxOpenConns int           // size of the connection pool
	DBTimeout      time.Duration // upper bound for a single storage call
	JWTSecret      string        // secret used to sign session tokens
	TokenTTL       time.Duration // session token lifetime (7 days by default)
	BcryptCost     int           // bcrypt cost for password hashing
	LogLevel       string        // zap level: debug, info, warn, error
	AMQPURL        string        // RabbitMQ url for the audit queue (empty disables it)
	AuditQueue     string        // queue name carrying audit events
	SeedEmail      string        // bootstrap admin email, used only when the users table is empty
	SeedPassword   string        // bootstrap admin password
	SeedDemo       bool          // load the demo dataset into an empty database
	CORSOrigins    []string      // browser origins allowed to call the API with credentials
	PurgeSchedule  string        // cron schedule for dropping expired token revocations
}

// Production reports whether the app runs with production semantics
// (secure cookies, no error details in responses).
func (c Config) Production() bool {
	e := strings.ToLower(c.Env)
	return e == "production" || e == "prod"
}

// Load reads configuration values from environment variables and returns a
// Config.  Every missing required variable is reported in one error so the
// operator can fix them all at once.
func Load() (Config, error) {
	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 20),
		DBTimeout:      envDur("DB_TIMEOUT", 5*time.Second),
		JWTSecret:      must("JWT_SECRET"),
		TokenTTL:       time.Duration(envInt("TOKEN_TTL_HOURS", 168)) * time.Hour,
		BcryptCost:     envInt("BCRYPT_COST", 10),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		AMQPURL:        envStr("AMQP_URL", os.Getenv("RABBITMQ_URL")),
		AuditQueue:     envStr("AUDIT_QUEUE", "audit.recorded"),
		SeedEmail:      os.Getenv("SEED_ADMIN_EMAIL"),
		SeedPassword:   os.Getenv("SEED_ADMIN_PASSWORD"),
		SeedDemo:       envBool("SEED_DEMO", false),
		CORSOrigins:    envList("CORS_ALLOWED_ORIGINS"),
		PurgeSchedule:  envStr("REVOCATION_PURGE_SCHEDULE", "@every 1h"),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL_HOURS: must be positive")
	}
	if cfg.SeedDemo && cfg.Production() {
		return Config{}, fmt.Errorf("SEED_DEMO cannot be enabled in production")
	}
	if cfg.DBMaxOpenConns < 1 {
		cfg.DBMaxOpenConns = 1
	}
	return cfg, nil
}

// DSN builds the go-sql-driver/mysql data source name.
// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
func (c Config) DSN() string {
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, c.DBHost, c.DBPort, c.DBName)
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

// envList splits a comma separated variable, dropping empty items.
func envList(k string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(k), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
