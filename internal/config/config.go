package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads the .env file specified by HAVI_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("HAVI_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process env still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// StoreDriver returns the persistence backend: postgres or sqlite.
// Defaults to postgres when DATABASE_URL is set, sqlite otherwise.
func StoreDriver() string {
	d := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if d != "" {
		return d
	}
	if DatabaseURL() != "" {
		return DriverPostgres
	}
	return DriverSQLite
}

func SQLitePath() string {
	p := os.Getenv("SQLITE_PATH")
	if p == "" {
		return "data/havi.db"
	}
	return p
}

// MigrationsPath returns a directory of Postgres migrations that overrides
// the embedded set. Empty means use the embedded files.
func MigrationsPath() string {
	return os.Getenv("MIGRATIONS_PATH")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// PromptCooldown is how long a prompted fact stays quiet. Defaults to 12h.
func PromptCooldown() time.Duration {
	hours, err := strconv.ParseFloat(os.Getenv("PROMPT_COOLDOWN_HOURS"), 64)
	if err != nil || hours < 0 {
		return 12 * time.Hour
	}
	return time.Duration(hours * float64(time.Hour))
}

// PromptMaxPerTurn caps prompts shown per turn. Zero means unlimited.
// Defaults to 1.
func PromptMaxPerTurn() int {
	n, err := strconv.Atoi(os.Getenv("PROMPT_MAX_PER_TURN"))
	if err != nil || n < 0 {
		return 1
	}
	return n
}

func PolicyFile() string {
	return os.Getenv("POLICY_FILE")
}

func OTELEndpoint() string {
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

func OTELInsecure() bool {
	v, err := strconv.ParseBool(os.Getenv("OTEL_INSECURE"))
	return err == nil && v
}

// LoadPolicyFile reads a YAML override of the age-bracket policy. Zero
// fields are left for the policy service to fill from its defaults.
func LoadPolicyFile(path string) (domain.PolicyConfig, error) {
	var cfg domain.PolicyConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse policy file: %w", err)
	}
	return cfg, nil
}
