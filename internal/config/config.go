package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode   `yaml:"mode"`
	HTTPAddr string `yaml:"http_addr"`

	DBDriver string `yaml:"db_driver"` // sqlite|postgres|memory
	DBDSN    string `yaml:"db_dsn"`

	AuthHMACSecret  string        `yaml:"auth_hmac_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	EnableLocalAuth bool          `yaml:"enable_local_auth"`

	SeedDevUsers bool   `yaml:"seed_dev_users"`
	DevPassword  string `yaml:"dev_password"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	CORSOrigins []string `yaml:"cors_origins"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// StrictTrueFalse parses the correct TrueFalse option text as a boolean
	// instead of looking for the substring "true".
	StrictTrueFalse bool `yaml:"strict_true_false"`
}

// devHMACSecret signs tokens in offline mode when no secret is configured.
const devHMACSecret = "offline-dev-secret-change-me-0123456789"

func defaults() Config {
	return Config{
		Mode:            ModeOffline,
		HTTPAddr:        ":8080",
		DBDriver:        "sqlite",
		TokenTTL:        8 * time.Hour,
		EnableLocalAuth: true,
		SeedDevUsers:    true,
		DevPassword:     "password",
		LogLevel:        "info",
		CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load layers defaults, then the YAML file at path (skipped when empty or
// missing), then environment variables, and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.AuthHMACSecret == "" && cfg.Mode == ModeOffline {
		cfg.AuthHMACSecret = devHMACSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(c *Config) error {
	c.Mode = Mode(envOr("MODE", string(c.Mode)))
	c.HTTPAddr = envOr("HTTP_ADDR", c.HTTPAddr)
	c.DBDriver = envOr("DB_DRIVER", c.DBDriver)
	c.DBDSN = envOr("DB_DSN", c.DBDSN)
	c.AuthHMACSecret = envOr("AUTH_HMAC_SECRET", c.AuthHMACSecret)
	c.EnableLocalAuth = envBool("ENABLE_LOCAL_AUTH", c.EnableLocalAuth)
	c.SeedDevUsers = envBool("SEED_DEV_USERS", c.SeedDevUsers)
	c.DevPassword = envOr("DEV_PASSWORD", c.DevPassword)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogPretty = envBool("LOG_PRETTY", c.LogPretty)
	c.StrictTrueFalse = envBool("STRICT_TRUE_FALSE", c.StrictTrueFalse)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = csvOr("CORS_ORIGINS", v)
	}
	var err error
	if c.TokenTTL, err = envDuration("TOKEN_TTL", c.TokenTTL); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("mode must be offline or online, got %q", c.Mode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("db_driver must be sqlite, postgres or memory, got %q", c.DBDriver)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	if c.Mode == ModeOnline && len(c.AuthHMACSecret) < 32 {
		return fmt.Errorf("auth_hmac_secret must be at least 32 bytes in online mode")
	}
	return nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
