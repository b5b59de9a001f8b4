// Package config loads the recon configuration file.
//
// Priority is flags > environment > file > defaults. The file is strict
// YAML: unknown keys are errors.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/recon/internal/compiler"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/txn"
)

// Environment variables read by Load.
const (
	EnvDatabase = "RECON_DATABASE"
	EnvLogLevel = "RECON_LOG_LEVEL"
)

// Config is the recon configuration.
type Config struct {
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	Database string `yaml:"database" validate:"required"`

	// Strategy applies to components that declare none.
	Strategy string `yaml:"strategy" validate:"strategy"`

	MaxCommitAttempts int `yaml:"max_commit_attempts" validate:"gte=1,lte=32"`
	MaxRuns           int `yaml:"max_runs" validate:"gte=1"`

	// CopyAttributes are added to every component's copy list.
	CopyAttributes []string `yaml:"copy_attributes" validate:"dive,required"`

	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig controls the Prometheus recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseStrategy(fl.Field().String())
		return err == nil
	})
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:          "info",
		Database:          "recon.db",
		Strategy:          string(engine.PerComponent),
		MaxCommitAttempts: txn.DefaultMaxAttempts,
		MaxRuns:           engine.DefaultMaxRuns,
	}
}

// Load reads path over the defaults, applies the environment and
// validates. An empty path, or a path that does not exist, leaves the
// defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(bytes.NewReader(data), &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if db := os.Getenv(EnvDatabase); db != "" {
		cfg.Database = db
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field and reports all failures together.
func (c Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: %q fails %s", fe.Namespace(), fmt.Sprint(fe.Value()), describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EngineOptions returns the engine settings the configuration carries.
func (c Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithMaxCommitAttempts(c.MaxCommitAttempts),
		engine.WithMaxRuns(c.MaxRuns),
	}
}

// Apply fills the configured defaults into d: the strategy when d has
// none, and the shared copy attributes after d's own.
func (c Config) Apply(d compiler.Definition) compiler.Definition {
	if d.Strategy == "" {
		d.Strategy = c.Strategy
	}
	attrs := slices.Clone(d.CopyAttributes)
	for _, a := range c.CopyAttributes {
		if !slices.Contains(attrs, a) {
			attrs = append(attrs, a)
		}
	}
	d.CopyAttributes = attrs
	return d
}
