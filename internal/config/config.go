// Package config reads the settings of the ssadce command from the environment.
//
// VARIABLES:
//
//	SSADCE_LOG_LEVEL      debug, info, warn or error (default warn)
//	SSADCE_VERBOSE        log per function statistics at info level
//	SSADCE_DUMP_ANALYSIS  log the postdominator and frontier analysis at debug level
//
// Booleans accept the spellings of strconv.ParseBool. An unset or empty
// variable keeps its default; any other unparsable value is an error.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Environment variable names.
const (
	EnvLogLevel     = "SSADCE_LOG_LEVEL"
	EnvVerbose      = "SSADCE_VERBOSE"
	EnvDumpAnalysis = "SSADCE_DUMP_ANALYSIS"
)

// Config holds the settings of one run.
type Config struct {
	// LogLevel is the minimum level written to stderr
	LogLevel slog.Level

	// Verbose enables the optimizer's per function statistics
	Verbose bool

	// DumpAnalysis logs the dead code pass analysis
	DumpAnalysis bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{LogLevel: slog.LevelWarn}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup, which has the signature
// of os.LookupEnv.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("%s=%q: %w", EnvLogLevel, v, err)
		}
	}

	var err error
	if cfg.Verbose, err = boolVar(lookup, EnvVerbose); err != nil {
		return cfg, err
	}
	if cfg.DumpAnalysis, err = boolVar(lookup, EnvDumpAnalysis); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func boolVar(lookup func(string) (string, bool), name string) (bool, error) {
	v, ok := lookup(name)
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q: %w", name, v, err)
	}
	return b, nil
}
