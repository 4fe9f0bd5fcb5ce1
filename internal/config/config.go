// Package config loads the settings of the rewind tools.
//
// Settings come from, in increasing priority: built-in defaults, a TOML or
// YAML file, and REWIND_* environment variables. Validate reports every
// problem at once.
package config

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultEnvPrefix is the prefix of environment overrides.
const DefaultEnvPrefix = "REWIND_"

// Config holds the settings of a demo session.
type Config struct {
	// Capacity is the number of snapshots kept per history key.
	Capacity int `toml:"capacity" yaml:"capacity" validate:"gt=0"`

	// Keys are the history keys. The first one is the default key.
	Keys []string `toml:"keys" yaml:"keys" validate:"min=1,unique,dive,required"`

	// Debug logs rejected snapshot selectors.
	Debug bool `toml:"debug" yaml:"debug"`

	// LogLevel is one of debug, info, warn and error.
	LogLevel string `toml:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`

	// Paths maps a history key to the JSON path of the state it records.
	// Keys without an entry use the demo's default path for that key.
	Paths map[string]string `toml:"paths" yaml:"paths"`

	// Script is an optional Lua file defining filter and resolve.
	Script string `toml:"script" yaml:"script"`

	// MetricsAddr, when set, serves Prometheus metrics on host:port.
	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Capacity: 50,
		Keys:     []string{"counter", "en-US", "de-DE", "entities"},
		LogLevel: "info",
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Keys = slices.Clone(c.Keys)
	if c.Paths != nil {
		out.Paths = make(map[string]string, len(c.Paths))
		for k, v := range c.Paths {
			out.Paths[k] = v
		}
	}
	return &out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks c and returns a *ValidationErrors listing every
// problem, or nil.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if err := validate.Struct(c); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fe := range fieldErrs {
			errs.AddWithValue(fe.Field(), describe(fe), fe.Value())
		}
	}

	for key := range c.Paths {
		if !slices.Contains(c.Keys, key) {
			errs.AddWithValue("paths."+key, "is not a configured key", key)
		}
	}

	return errs.AsError()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "cannot be empty"
	case "unique":
		return "cannot contain duplicates"
	case "required":
		return "cannot be blank"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "hostname_port":
		return "must be host:port"
	default:
		return fmt.Sprintf("failed the %q check", fe.Tag())
	}
}
