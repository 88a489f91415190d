// Package config loads the tunable parameters of the conversion pipeline.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds conversion tunables. Parse, Load and WithDefaults replace
// unset fields with defaults.
type Config struct {
	// CurveSegmentLength is the target arc length per circle segment, in
	// meters.
	CurveSegmentLength float64 `yaml:"curve_segment_length"`
	// EllipseDensity is samples per unit of 2*pi*r1 for ellipses.
	EllipseDensity float64 `yaml:"ellipse_density"`
	// ArcSamples is the number of points sampled along an arc.
	ArcSamples int `yaml:"arc_samples"`
	// MinCurveSegments and MaxCurveSegments clamp circle/ellipse sampling.
	MinCurveSegments int `yaml:"min_curve_segments"`
	MaxCurveSegments int `yaml:"max_curve_segments"`
	// MaxInFlight bounds concurrent node conversions during traversal.
	MaxInFlight int `yaml:"max_in_flight"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		CurveSegmentLength: 0.1,
		EllipseDensity:     10,
		ArcSamples:         50,
		MinCurveSegments:   8,
		MaxCurveSegments:   4096,
		MaxInFlight:        200,
		LogLevel:           "info",
	}
}

// WithDefaults returns c with every zero or negative tunable replaced by
// its default, and the segment bounds kept in order.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.CurveSegmentLength <= 0 {
		c.CurveSegmentLength = d.CurveSegmentLength
	}
	if c.EllipseDensity <= 0 {
		c.EllipseDensity = d.EllipseDensity
	}
	if c.ArcSamples < 2 {
		c.ArcSamples = d.ArcSamples
	}
	if c.MinCurveSegments < 3 {
		c.MinCurveSegments = d.MinCurveSegments
	}
	if c.MaxCurveSegments <= 0 {
		c.MaxCurveSegments = d.MaxCurveSegments
	}
	if c.MaxCurveSegments < c.MinCurveSegments {
		c.MaxCurveSegments = c.MinCurveSegments
	}
	if c.MaxInFlight < 1 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that every tunable is usable.
func (c Config) Validate() error {
	var errs []error
	if c.CurveSegmentLength <= 0 {
		errs = append(errs, fmt.Errorf("curve_segment_length must be positive, got %g", c.CurveSegmentLength))
	}
	if c.EllipseDensity <= 0 {
		errs = append(errs, fmt.Errorf("ellipse_density must be positive, got %g", c.EllipseDensity))
	}
	if c.ArcSamples < 2 {
		errs = append(errs, fmt.Errorf("arc_samples must be at least 2, got %d", c.ArcSamples))
	}
	if c.MinCurveSegments < 3 {
		errs = append(errs, fmt.Errorf("min_curve_segments must be at least 3, got %d", c.MinCurveSegments))
	}
	if c.MaxCurveSegments < c.MinCurveSegments {
		errs = append(errs, fmt.Errorf("max_curve_segments %d is below min_curve_segments %d", c.MaxCurveSegments, c.MinCurveSegments))
	}
	if c.MaxInFlight < 1 {
		errs = append(errs, fmt.Errorf("max_in_flight must be at least 1, got %d", c.MaxInFlight))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
}

// Logger builds a text logger writing to stderr at the configured level.
func (c Config) Logger() *slog.Logger {
	lvl, _ := ParseLevel(c.LogLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
