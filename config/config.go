// Package config loads ledger-engine settings from defaults, an optional
// config file, a .env file and LEDGER_-prefixed environment variables, in
// increasing order of precedence. Command-line flags are bound on top by
// cmd/server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_LEDGER_PATH.
const EnvPrefix = "LEDGER"

// Config holds application configuration.
type Config struct {
	Ledger LedgerConfig `mapstructure:"ledger"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// LedgerConfig selects the ledger file.
type LedgerConfig struct {
	Path     string `mapstructure:"path"`
	ReadOnly bool   `mapstructure:"read_only"`
}

// ServerConfig holds HTTP settings. A zero ReminderInterval disables the
// schedule reminder scanner.
type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	ReminderInterval time.Duration `mapstructure:"reminder_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// New returns a viper instance with defaults and environment binding set
// up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("ledger.path", "./ledger.db")
	v.SetDefault("ledger.read_only", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.reminder_interval", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into a Config. A .env file in the working
// directory is loaded if present; configFile, when non-empty, must exist.
func Load(v *viper.Viper, configFile string) (Config, error) {
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.Ledger.Path == "" {
		return errors.New("ledger.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.ReminderInterval < 0 {
		return fmt.Errorf("server.reminder_interval %s is negative", c.Server.ReminderInterval)
	}
	return nil
}
