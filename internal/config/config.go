// Package config loads autopsy settings from a YAML file, then applies
// AUTOPSY_* environment overrides, then checks the result against an
// embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/autopsy/internal/report"
)

//go:embed schema.cue
var schemaCUE string

// DefaultHTMLPath is where the exit hook writes the report.
const DefaultHTMLPath = "autopsy_report.html"

// Config holds every setting in one tree.
type Config struct {
	Report  ReportConfig  `yaml:"report" json:"report"`
	Live    LiveConfig    `yaml:"live" json:"live"`
	Export  ExportConfig  `yaml:"export" json:"export"`
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
}

type ReportConfig struct {
	AutoStackTrace bool `yaml:"auto_stack_trace" json:"auto_stack_trace" env:"AUTOPSY_AUTO_STACK_TRACE"`
}

type LiveConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"AUTOPSY_LIVE"`
	Host    string `yaml:"host" json:"host" env:"AUTOPSY_LIVE_HOST"`
	Port    int    `yaml:"port" json:"port" env:"AUTOPSY_LIVE_PORT"`
}

type ExportConfig struct {
	HTMLPath string `yaml:"html_path" json:"html_path" env:"AUTOPSY_HTML_PATH"`
	JSONPath string `yaml:"json_path" json:"json_path" env:"AUTOPSY_JSON_PATH"`
	// Template is a path to an HTML template; empty selects the built-in one.
	Template string `yaml:"template" json:"template" env:"AUTOPSY_TEMPLATE"`
	AtExit   bool   `yaml:"at_exit" json:"at_exit" env:"AUTOPSY_AT_EXIT"`
}

type ArchiveConfig struct {
	Path  string `yaml:"path" json:"path" env:"AUTOPSY_ARCHIVE"`
	Label string `yaml:"label" json:"label" env:"AUTOPSY_ARCHIVE_LABEL"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	def := report.DefaultConfiguration()
	return Config{
		Report: ReportConfig{AutoStackTrace: def.AutoStackTrace},
		Live:   LiveConfig{Enabled: def.LiveMode, Host: def.LiveHost, Port: def.LivePort},
		Export: ExportConfig{HTMLPath: DefaultHTMLPath, AtExit: true},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result. A missing path is an error; an empty path means
// defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without reading the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeYAML(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ParseEnv applies AUTOPSY_* environment variables to target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := schema.Unify(ctx.CompileBytes(data))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ReportConfiguration returns the store settings of cfg.
func (c Config) ReportConfiguration() report.Configuration {
	return report.Configuration{
		AutoStackTrace: c.Report.AutoStackTrace,
		LiveMode:       c.Live.Enabled,
		LiveHost:       c.Live.Host,
		LivePort:       c.Live.Port,
	}
}
