// Package config loads reader settings from a JSON file and the
// environment.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/omr-reader/internal/detection"
	"github.com/ironsheep/omr-reader/internal/ocr"
	"github.com/ironsheep/omr-reader/internal/omr"
)

// Environment variables read by FromEnv.
const (
	EnvConfigPath = "OMR_CONFIG"
	EnvLogLevel   = "OMR_LOG_LEVEL"
)

// Log levels.
const (
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config holds optional overrides. A nil field keeps the built-in default,
// so partial files are safe.
type Config struct {
	// Read params
	PxPerMM           *float64 `json:"px_per_mm,omitempty"`
	MarkedThreshold   *float64 `json:"marked_threshold,omitempty"`
	UnmarkedThreshold *float64 `json:"unmarked_threshold,omitempty"`
	InnerRadiusFactor *float64 `json:"inner_radius_factor,omitempty"`
	RobustMode        *bool    `json:"robust_mode,omitempty"`
	ContrastAlpha     *float64 `json:"contrast_alpha,omitempty"`
	ContrastBeta      *float64 `json:"contrast_beta,omitempty"`

	// Marker detection params
	DetectorMaxDimension *int `json:"detector_max_dimension,omitempty"`
	DetectorMaxBitErrors *int `json:"detector_max_bit_errors,omitempty"`

	// Handwrite OCR params
	OCRLanguage    *string `json:"ocr_language,omitempty"`
	TessdataPrefix *string `json:"tessdata_prefix,omitempty"`

	LogLevel *string `json:"log_level,omitempty"`
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be at most 1 MB. Unknown keys are rejected so a typo does
// not silently keep a default.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv loads the file named by OMR_CONFIG, if set, then applies
// OMR_LOG_LEVEL on top.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if path := os.Getenv(EnvConfigPath); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		level = strings.ToLower(strings.TrimSpace(level))
		cfg.LogLevel = &level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every set field. Read params are checked together after
// merging with the defaults, since the thresholds constrain each other.
func (c *Config) Validate() error {
	if err := c.Apply(omr.DefaultReadConfig()).Validate(); err != nil {
		return err
	}
	if c.DetectorMaxDimension != nil && *c.DetectorMaxDimension < 0 {
		return fmt.Errorf("detector_max_dimension must be >= 0, got %d", *c.DetectorMaxDimension)
	}
	if c.DetectorMaxBitErrors != nil && (*c.DetectorMaxBitErrors < 1 || *c.DetectorMaxBitErrors > 3) {
		return fmt.Errorf("detector_max_bit_errors must be between 1 and 3, got %d", *c.DetectorMaxBitErrors)
	}
	if c.LogLevel != nil {
		switch *c.LogLevel {
		case LogLevelInfo, LogLevelDebug:
		default:
			return fmt.Errorf("log_level must be %q or %q, got %q", LogLevelInfo, LogLevelDebug, *c.LogLevel)
		}
	}
	return nil
}

// Apply returns base with every set read param replaced.
func (c *Config) Apply(base omr.ReadConfig) omr.ReadConfig {
	if c.PxPerMM != nil {
		base.PxPerMM = *c.PxPerMM
	}
	if c.MarkedThreshold != nil {
		base.MarkedThreshold = *c.MarkedThreshold
	}
	if c.UnmarkedThreshold != nil {
		base.UnmarkedThreshold = *c.UnmarkedThreshold
	}
	if c.InnerRadiusFactor != nil {
		base.InnerRadiusFactor = *c.InnerRadiusFactor
	}
	if c.RobustMode != nil {
		base.RobustMode = *c.RobustMode
	}
	if c.ContrastAlpha != nil {
		base.ContrastAlpha = *c.ContrastAlpha
	}
	if c.ContrastBeta != nil {
		base.ContrastBeta = *c.ContrastBeta
	}
	return base
}

// DetectionOptions returns the marker detector options.
func (c *Config) DetectionOptions() detection.Options {
	opts := detection.DefaultOptions()
	if c.DetectorMaxDimension != nil {
		opts.MaxDimension = *c.DetectorMaxDimension
	}
	if c.DetectorMaxBitErrors != nil {
		opts.MaxBitErrors = *c.DetectorMaxBitErrors
	}
	return opts
}

// Recognizer returns the handwrite recognizer configured by the OCR params.
func (c *Config) Recognizer() *ocr.Recognizer {
	r := ocr.NewRecognizer(ocr.DefaultLanguage)
	if c.OCRLanguage != nil && *c.OCRLanguage != "" {
		r.Language = *c.OCRLanguage
	}
	if c.TessdataPrefix != nil {
		r.TessdataPrefix = *c.TessdataPrefix
	}
	return r
}

// Debug reports whether debug logging is enabled.
func (c *Config) Debug() bool {
	return c.LogLevel != nil && *c.LogLevel == LogLevelDebug
}
