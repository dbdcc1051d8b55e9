/*
Package configs is responsible for loading and parsing the application's configuration settings.

Settings are resolved through viper in three layers: built-in defaults, an optional
config.yaml in the working directory, and operating system environment variables
(PORT, ENVIRONMENT, REGISTRATION_POLICY, ...), with the environment taking precedence.
*/
package configs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// PolicyStrict rejects any registration of a name that is already held.
	PolicyStrict = "strict"

	// PolicyReplace rebinds a held name when the holder is stale or the caller presents a resume token.
	PolicyReplace = "replace"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// Presence Settings
	RegistrationPolicy string
	StaleAfter         time.Duration
	SweepInterval      time.Duration
	RingTimeout        time.Duration

	// Connection Limits
	WSConnectRate  float64
	WSConnectBurst int

	// Database Settings (optional; empty keeps call records in memory)
	DatabaseDSN string
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and parses the application configuration.
// It returns a pointer to the AppConfig struct and any error encountered.
func LoadConfig() (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

// setDefaults registers the built-in value of every configuration key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("allowed_origins", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("registration_policy", PolicyStrict)
	v.SetDefault("stale_after", "5m")
	v.SetDefault("sweep_interval", "30s")
	v.SetDefault("ring_timeout", "45s")
	v.SetDefault("ws_connect_rate", 1.0)
	v.SetDefault("ws_connect_burst", 10)
	v.SetDefault("database_url", "")
}

// fromViper converts resolved viper settings into an AppConfig and validates them.
func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		Environment:        v.GetString("environment"),
		Port:               v.GetInt("port"),
		JWTSecret:          v.GetString("jwt_secret"),
		RegistrationPolicy: strings.ToLower(strings.TrimSpace(v.GetString("registration_policy"))),
		StaleAfter:         v.GetDuration("stale_after"),
		SweepInterval:      v.GetDuration("sweep_interval"),
		RingTimeout:        v.GetDuration("ring_timeout"),
		WSConnectRate:      v.GetFloat64("ws_connect_rate"),
		WSConnectBurst:     v.GetInt("ws_connect_burst"),
		DatabaseDSN:        v.GetString("database_url"),
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	cfg.AllowedOrigins = []string{}
	for _, origin := range strings.Split(v.GetString("allowed_origins"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	switch cfg.RegistrationPolicy {
	case PolicyStrict, PolicyReplace:
	default:
		return nil, fmt.Errorf("invalid REGISTRATION_POLICY %q: expected %q or %q", cfg.RegistrationPolicy, PolicyStrict, PolicyReplace)
	}

	if cfg.StaleAfter <= 0 {
		return nil, fmt.Errorf("STALE_AFTER must be positive, got %s", cfg.StaleAfter)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.RingTimeout < 0 {
		return nil, fmt.Errorf("RING_TIMEOUT must not be negative, got %s", cfg.RingTimeout)
	}

	if cfg.WSConnectRate <= 0 || cfg.WSConnectBurst <= 0 {
		return nil, fmt.Errorf("WS_CONNECT_RATE and WS_CONNECT_BURST must be positive")
	}

	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = "your_default_insecure_secret_key_change_me"
	}

	return cfg, nil
}
