package config

import (
	"os"

	"codeberg.org/mutker/metricsd/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval  = 1
	defaultWindow    = 60
	defaultRetention = 60
	defaultListen    = ":9090"
	defaultDBPath    = "/var/lib/metricsd/metrics.db"
)

type Config struct {
	Interval         int    `mapstructure:"interval"`
	WindowSeconds    int    `mapstructure:"window_seconds"`
	RetentionSeconds int    `mapstructure:"retention_seconds"`
	Listen           string `mapstructure:"listen"`
	Persistence      bool   `mapstructure:"persistence"`
	Database         string `mapstructure:"database"`
	LogLevel         string `mapstructure:"log_level"`
	Debug            bool   `mapstructure:"debug"`
	Verbose          bool   `mapstructure:"verbose"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("window_seconds", defaultWindow)
	v.SetDefault("retention_seconds", defaultRetention)
	v.SetDefault("listen", defaultListen)
	v.SetDefault("persistence", false)
	v.SetDefault("database", defaultDBPath)
	v.SetDefault("log_level", DefaultLogLevel)

	// Fresh flag set per call so tests can load repeatedly
	flags := pflag.NewFlagSet("metricsd", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.Int("interval", defaultInterval, "Seconds between snapshot ticks")
	flags.String("listen", defaultListen, "HTTP listen address")
	flags.Bool("persistence", false, "Persist snapshots to the database")
	flags.String("database", defaultDBPath, "Path to the snapshot database")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	// Config file: explicit path via env, otherwise search /etc and cwd
	if path := os.Getenv("METRICSD_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("metricsd")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Command line flags override file values
	flags.Visit(func(f *pflag.Flag) {
		key := f.Name
		if key == "log-level" {
			key = "log_level"
		}
		v.Set(key, f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.WindowSeconds <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{"window_seconds", c.WindowSeconds})
	}
	if c.RetentionSeconds <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{"retention_seconds", c.RetentionSeconds})
	}
	if c.Persistence && c.Database == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "database")
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}
