// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/maauso/ipusegment/internal/ipus"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

var validate = validator.New()

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Storage settings
	TempDir    string `env:"TEMP_DIR, default=/tmp/ipusegment" json:"temp_dir" validate:"required"`
	ResultsDir string `env:"RESULTS_DIR" json:"results_dir,omitempty"`

	// Processing settings
	MaxConcurrentJobs int    `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs" validate:"min=1,max=64"`
	FFmpegPath        string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	ConvertInput      bool   `env:"CONVERT_INPUT, default=false" json:"convert_input"`

	// Default segmentation parameters, in seconds
	WinLen       float64 `env:"WIN_LEN, default=0.02" json:"win_len" validate:"gte=0.002,lte=0.04"`
	Vagueness    float64 `env:"VAGUENESS, default=0.005" json:"vagueness" validate:"gt=0,ltefield=WinLen"`
	VolThreshold int     `env:"VOL_THRESHOLD, default=0" json:"vol_threshold" validate:"gte=0"`
	MinSilDur    float64 `env:"MIN_SIL_DUR, default=0.25" json:"min_sil_dur" validate:"gte=0.06"`
	MinIPUDur    float64 `env:"MIN_IPU_DUR, default=0.30" json:"min_ipu_dur" validate:"gte=0.06"`
	ShiftStart   float64 `env:"SHIFT_START, default=0.02" json:"shift_start"`
	ShiftEnd     float64 `env:"SHIFT_END, default=0.02" json:"shift_end"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty" validate:"required_with=S3Bucket"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text JSON TEXT"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against its validation tags. The
// returned error wraps ErrInvalidConfig and names every offending field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
}

// Params returns the default segmentation parameters configured for the
// service, normalised into their accepted ranges.
func (c *Config) Params() ipus.Params {
	return ipus.Params{
		WinLen:       c.WinLen,
		Vagueness:    c.Vagueness,
		VolThreshold: c.VolThreshold,
		MinSilDur:    c.MinSilDur,
		MinIPUDur:    c.MinIPUDur,
		ShiftStart:   c.ShiftStart,
		ShiftEnd:     c.ShiftEnd,
	}.Normalize()
}

// LoadParamsFile reads segmentation parameters from a YAML file. Keys
// missing from the file keep their default value.
func LoadParamsFile(path string) (ipus.Params, error) {
	f, err := os.Open(path) // #nosec G304 - path is chosen by the operator
	if err != nil {
		return ipus.Params{}, fmt.Errorf("open params file: %w", err)
	}
	defer func() { _ = f.Close() }()

	p := ipus.DefaultParams()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return ipus.Params{}, fmt.Errorf("decode params file %s: %w", path, err)
	}
	return p.Normalize(), nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, ResultsDir: %s, MaxConcurrentJobs: %d, ConvertInput: %t, WinLen: %g, MinSilDur: %g, MinIPUDur: %g, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.ResultsDir,
		c.MaxConcurrentJobs,
		c.ConvertInput,
		c.WinLen,
		c.MinSilDur,
		c.MinIPUDur,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
