package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string   `mapstructure:"PORT"`
	Env          string   `mapstructure:"ENV"`
	DatabaseURL  string   `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer   string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins  []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Review SLA windows. An intake gets the priority window when the
	// classifier flags it priority, the standard window otherwise.
	SLAStandardHours int `mapstructure:"SLA_STANDARD_HOURS"`
	SLAPriorityHours int `mapstructure:"SLA_PRIORITY_HOURS"`

	// How long the sending clinician can undo a mark-script-sent action.
	// Admins are not bound by this window.
	UndoWindowMinutes int `mapstructure:"UNDO_WINDOW_MINUTES"`

	NotifyFromAddress string `mapstructure:"NOTIFY_FROM_ADDRESS"`
	NotifyQueueSize   int    `mapstructure:"NOTIFY_QUEUE_SIZE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SLA_STANDARD_HOURS", 24)
	v.SetDefault("SLA_PRIORITY_HOURS", 4)
	v.SetDefault("UNDO_WINDOW_MINUTES", 5)
	v.SetDefault("NOTIFY_FROM_ADDRESS", "no-reply@telecare.local")
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("SLA_STANDARD_HOURS")
	v.BindEnv("SLA_PRIORITY_HOURS")
	v.BindEnv("UNDO_WINDOW_MINUTES")
	v.BindEnv("NOTIFY_FROM_ADDRESS")
	v.BindEnv("NOTIFY_QUEUE_SIZE")

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
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
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

// StandardSLAWindow returns the review window applied to standard intakes.
func (c *Config) StandardSLAWindow() time.Duration {
	return time.Duration(c.SLAStandardHours) * time.Hour
}

// PrioritySLAWindow returns the shortened review window applied to priority intakes.
func (c *Config) PrioritySLAWindow() time.Duration {
	return time.Duration(c.SLAPriorityHours) * time.Hour
}

// UndoWindow returns how long the original sender may undo a mark-sent action.
func (c *Config) UndoWindow() time.Duration {
	return time.Duration(c.UndoWindowMinutes) * time.Minute
}

// Validate checks that the configuration is safe to run. In production,
// AUTH_ISSUER must be set so that real JWT authentication is enforced, and the
// SLA windows must be sane (priority strictly shorter than standard).
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_ISSUER must be set in production (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.SLAStandardHours <= 0 || c.SLAPriorityHours <= 0 {
		return fmt.Errorf("SLA windows must be positive, got standard=%dh priority=%dh",
			c.SLAStandardHours, c.SLAPriorityHours)
	}
	if c.SLAPriorityHours >= c.SLAStandardHours {
		return fmt.Errorf("SLA_PRIORITY_HOURS (%d) must be shorter than SLA_STANDARD_HOURS (%d)",
			c.SLAPriorityHours, c.SLAStandardHours)
	}
	if c.UndoWindowMinutes <= 0 {
		return fmt.Errorf("UNDO_WINDOW_MINUTES must be positive, got %d", c.UndoWindowMinutes)
	}
	return nil
}
