// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates refactorbench thresholds.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"
	"unicode"

	"github.com/AleutianAI/refactorbench/services/refactor/ast"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultConfigYAML []byte

// MaxYAMLFileSize bounds configuration files read from disk (1 MiB).
const MaxYAMLFileSize = 1 << 20

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

var configTracer = otel.Tracer("refactorbench.config")

// =============================================================================
// Configuration Types
// =============================================================================

// Config holds the thresholds and discovery rules shared by the selector,
// the verifier and the batch runners.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	// MinMethodSize is the smallest method size, in counted nodes, that
	// qualifies as a candidate.
	MinMethodSize int `yaml:"min_method_size" validate:"gte=1"`

	// MaxMethodSize is the largest qualifying method size.
	MaxMethodSize int `yaml:"max_method_size" validate:"gte=1,gtefield=MinMethodSize"`

	// ClassRatio is the minimum class-size to method-size ratio.
	ClassRatio float64 `yaml:"class_ratio" validate:"gte=0"`

	// Tolerance is the relative size drift the verifier accepts, as a
	// fraction of the expected size. Zero requires an exact match.
	Tolerance float64 `yaml:"tolerance" validate:"gte=0,lte=1"`

	// CountStrategy names the ast.Counter used for every size.
	CountStrategy string `yaml:"count_strategy" validate:"oneof=named syntax pyast"`

	// Workers is the worker pool size. Zero means GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`

	// MaxFileSize is the per-file parse limit in bytes.
	MaxFileSize int64 `yaml:"max_file_size" validate:"gte=1"`

	// SkipTestFiles skips files whose base name contains "test" during
	// directory discovery.
	SkipTestFiles bool `yaml:"skip_test_files"`

	// Extensions lists the file suffixes considered during discovery.
	Extensions []string `yaml:"extensions" validate:"min=1,dive,startswith=."`

	// ExcludeDirs lists directory base names never descended into.
	ExcludeDirs []string `yaml:"exclude_dirs" validate:"dive,required"`
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	// Field is the YAML key at fault.
	Field string

	// Reason describes the violated rule.
	Reason string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

// Unwrap returns ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded default configuration.
//
// Outputs:
//   - *Config: A fresh copy. Never nil.
func Default() *Config {
	cfg, err := Load(context.Background(), defaultConfigYAML)
	if err != nil {
		// The embedded file is part of the build; failing here is a bug.
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load parses YAML over the embedded defaults and validates the result.
//
// Description:
//
//	Keys missing from data keep their default values, so a file containing
//	only "tolerance: 0.1" is a complete configuration.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes. Empty data yields the defaults.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - A *ConfigError for invalid values, or a parse error.
func Load(ctx context.Context, data []byte) (*Config, error) {
	_, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and loads a YAML configuration file.
//
// Inputs:
//
//	ctx - Context for tracing.
//	path - File path. An empty path yields the defaults.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Load(ctx, nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Load(ctx, data)
}

// =============================================================================
// Validation
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks every field and cross-field rule.
//
// Outputs:
//
//	error - The first violation as a *ConfigError, nil when valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ConfigError{Field: fieldPath(verrs[0].Namespace()), Reason: describe(verrs[0])}
		}
		return &ConfigError{Field: "config", Reason: err.Error()}
	}
	return nil
}

// WorkerCount resolves Workers against GOMAXPROCS.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Counter returns the ast.Counter named by CountStrategy.
func (c *Config) Counter() ast.Counter {
	counter, err := ast.CounterByName(c.CountStrategy)
	if err != nil {
		// Validate restricts CountStrategy to known names.
		return ast.DefaultCounter
	}
	return counter
}

// NewParser builds a parser bound to this configuration's Counter and
// file size limit. Every component measuring sizes should parse through it.
func (c *Config) NewParser() *ast.PythonParser {
	return ast.NewPythonParser(
		ast.WithCounter(c.Counter()),
		ast.WithMaxFileSize(c.MaxFileSize),
	)
}

// fieldPath strips the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// describe renders a validator failure without Go type names.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gtefield":
		return fmt.Sprintf("must be >= %s (got %v)", snakeCase(fe.Param()), fe.Value())
	case "gte":
		return fmt.Sprintf("must be >= %s (got %v)", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be <= %s (got %v)", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s] (got %q)", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q (got %q)", fe.Param(), fe.Value())
	case "required":
		return "must not be empty"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// snakeCase converts a Go field name to its YAML key.
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
