// Package config loads typed settings from viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/atikulmunna/loglens/internal/enricher"
	"github.com/atikulmunna/loglens/internal/geo"
	"github.com/atikulmunna/loglens/internal/parser"
)

// Config is the resolved application configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Geo struct {
		Database string      `mapstructure:"database"`
		Ranges   []geo.Range `mapstructure:"ranges"`
	} `mapstructure:"geo"`

	Enrich struct {
		ConversionMarkers []string `mapstructure:"conversion_markers"`
	} `mapstructure:"enrich"`

	Input struct {
		Format   string `mapstructure:"format"`
		Encoding string `mapstructure:"encoding"`
	} `mapstructure:"input"`

	Watch struct {
		StateFile string `mapstructure:"state_file"`
	} `mapstructure:"watch"`

	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`

	Report struct {
		Top int `mapstructure:"top"`
	} `mapstructure:"report"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("geo.database", geo.DefaultDatabasePath)
	v.SetDefault("enrich.conversion_markers", enricher.DefaultMarkers)
	v.SetDefault("input.format", string(parser.FormatAuto))
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("watch.state_file", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("report.top", 15)
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if _, err := parser.ParseFormat(c.Input.Format); err != nil {
		return fmt.Errorf("input.format: %w", err)
	}
	if _, err := parser.Charset(c.Input.Encoding); err != nil {
		return fmt.Errorf("input.encoding: %w", err)
	}
	if len(c.Geo.Ranges) > 0 {
		if err := geo.ValidateRanges(c.Geo.Ranges); err != nil {
			return fmt.Errorf("geo.ranges: %w", err)
		}
	}
	if c.Report.Top < 0 {
		return fmt.Errorf("report.top: must not be negative, got %d", c.Report.Top)
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("server.port: must not be empty")
	}
	return nil
}

// InputFormat returns the validated input format.
func (c *Config) InputFormat() parser.Format {
	f, _ := parser.ParseFormat(c.Input.Format)
	return f
}
