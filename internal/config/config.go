package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	AuthMode        string   `mapstructure:"AUTH_MODE"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer      string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string   `mapstructure:"AUTH_AUDIENCE"`
	JWTSecret       string   `mapstructure:"JWT_SECRET"`
	DefaultPractice string   `mapstructure:"DEFAULT_PRACTICE"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int      `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout  int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	BodyLimit       string   `mapstructure:"BODY_LIMIT"`
	ScheduleLimit   string   `mapstructure:"SCHEDULE_BODY_LIMIT"`
	TLSEnabled      bool     `mapstructure:"TLS_ENABLED"`
	TLSCertFile     string   `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile      string   `mapstructure:"TLS_KEY_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_PRACTICE", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("SCHEDULE_BODY_LIMIT", "5M")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("DEFAULT_PRACTICE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("SCHEDULE_BODY_LIMIT")
	v.BindEnv("TLS_ENABLED")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RequestTimeoutDuration returns the per-request deadline as a duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (no auth, all requests get admin)
//   - Otherwise       → "jwt" (HMAC-signed bearer tokens)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the configuration is safe to run. In non-development
// modes JWT_SECRET must be set so that real token authentication is enforced.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.JWTSecret == "" {
		return fmt.Errorf(
			"JWT_SECRET must be set when AUTH_MODE is \"jwt\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if mode == "jwt" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
