/*
config.go - Server configuration

PURPOSE:
  Collects every runtime knob of the server in one struct. Values come
  from, in increasing precedence:
    1. Defaults below
    2. Optional YAML file (-config flag)
    3. .env file in the working directory (if present)
    4. STOREOPS_* environment variables (STOREOPS_HTTP_ADDR, ...)

KEYS:
  http.addr                 Listen address (":8080")
  db.path                   SQLite file, ":memory:" for throwaway runs
  log.level                 debug | info | warn | error
  metrics.enabled           Expose /metrics
  cors.allowed_origins      Browser origins allowed to call the API
  sessions.ttl              Idle time before a wizard session is dropped
  sessions.sweep_interval   How often abandoned sessions are checked
  shift.denominations       Note/coin values counted at close
  incentive.program_file    JSON incentive program; empty uses defaults

SEE ALSO:
  - cmd/server/main.go: Loads and applies the config
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "STOREOPS"

type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`

	Sessions struct {
		TTL           time.Duration `mapstructure:"ttl"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"sessions"`

	Shift struct {
		Denominations []string `mapstructure:"denominations"`
	} `mapstructure:"shift"`

	Incentive struct {
		ProgramFile string `mapstructure:"program_file"`
	} `mapstructure:"incentive"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.path", "storeops.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("sessions.ttl", 30*time.Minute)
	v.SetDefault("sessions.sweep_interval", time.Minute)
	v.SetDefault("shift.denominations", []string{"200", "100", "50", "10", "5", "1"})
	v.SetDefault("incentive.program_file", "")
}

// Load reads path (may be empty) and the environment into a Config.
func Load(path string) (Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, errors.New("sessions.ttl must be positive"))
	}
	if c.Sessions.SweepInterval <= 0 {
		errs = append(errs, errors.New("sessions.sweep_interval must be positive"))
	}
	if _, err := c.Denominations(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Denominations parses shift.denominations. An empty list means the
// built-in defaults.
func (c Config) Denominations() ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(c.Shift.Denominations))
	for _, s := range c.Shift.Denominations {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("shift.denominations: %q is not a number", s)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("shift.denominations: %s must be positive", s)
		}
		out = append(out, d)
	}
	return out, nil
}
