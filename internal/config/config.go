// Package config loads run configuration with env > file > default
// precedence and hands the orchestrator a plain struct. Nothing in the core
// reads process state directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	DefaultConcurrency   = 5
	DefaultStageAttempts = 3
)

type Config struct {
	// Locations.
	SpecDir   string `mapstructure:"spec_dir"`
	OutputDir string `mapstructure:"output_dir"`
	RunsDir   string `mapstructure:"runs_dir"`

	// Remote service.
	BaseURL      string  `mapstructure:"base_url"`
	AuthURL      string  `mapstructure:"auth_url"`
	RequestRate  float64 `mapstructure:"request_rate"`
	RequestBurst int     `mapstructure:"request_burst"`

	// TLS. SkipTLSVerify is a debug escape hatch only.
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
	CABundle      string `mapstructure:"ca_bundle"`

	// Orchestration.
	Concurrency    int           `mapstructure:"concurrency"`
	StageAttempts  int           `mapstructure:"stage_attempts"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
}

// Load reads truckbuild.toml (or the explicit path) when present and applies
// TRUCKBUILD_* environment overrides on top. A missing config file is fine;
// an unreadable one is not.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("spec_dir", "xml_bucket")
	v.SetDefault("output_dir", "out_bucket")
	v.SetDefault("runs_dir", "runs")
	v.SetDefault("base_url", "")
	v.SetDefault("auth_url", "")
	v.SetDefault("request_rate", 10.0)
	v.SetDefault("request_burst", 5)
	v.SetDefault("skip_tls_verify", false)
	v.SetDefault("ca_bundle", "")
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("stage_attempts", DefaultStageAttempts)
	v.SetDefault("backoff_initial", "1s")
	v.SetDefault("backoff_max", "30s")
	v.SetDefault("poll_interval", "3s")
	v.SetDefault("poll_timeout", "15m")
	v.SetDefault("http_timeout", "30s")

	v.SetEnvPrefix("TRUCKBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	} else {
		v.SetConfigName("truckbuild")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, errors.Wrap(err, "read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.Concurrency < 1 {
		c.Concurrency = DefaultConcurrency
	}
	if c.StageAttempts < 1 {
		c.StageAttempts = DefaultStageAttempts
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 15 * time.Minute
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.RequestRate <= 0 {
		c.RequestRate = 10.0
	}
	if c.RequestBurst < 1 {
		c.RequestBurst = 5
	}
	return c
}

// TLSMode describes the verification policy for the startup log line.
func (c Config) TLSMode() string {
	if c.SkipTLSVerify {
		return "DISABLED (debug)"
	}
	if strings.TrimSpace(c.CABundle) != "" {
		return fmt.Sprintf("custom bundle at %s", c.CABundle)
	}
	return "system default"
}

// Validate checks the fields a run cannot proceed without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base_url is required (set TRUCKBUILD_BASE_URL or base_url in truckbuild.toml)")
	}
	if strings.TrimSpace(c.AuthURL) == "" {
		return errors.New("auth_url is required (set TRUCKBUILD_AUTH_URL or auth_url in truckbuild.toml)")
	}
	return nil
}
