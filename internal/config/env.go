package config

import (
	"os"
	"strconv"
	"strings"
)

// LookupFunc reads one environment variable.
type LookupFunc func(name string) (string, bool)

// ApplyEnv overrides c from environment variables named prefix followed
// by CAPACITY, KEYS, DEBUG, LOG_LEVEL, SCRIPT and METRICS_ADDR. KEYS is a
// comma separated list. Empty values are treated as set.
func (c *Config) ApplyEnv(prefix string) error {
	return c.ApplyEnvFrom(prefix, os.LookupEnv)
}

// ApplyEnvFrom is ApplyEnv with a custom lookup.
func (c *Config) ApplyEnvFrom(prefix string, lookup LookupFunc) error {
	errs := &ValidationErrors{}

	if val, ok := lookup(prefix + "CAPACITY"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			errs.AddWithValue(prefix+"CAPACITY", "must be an integer", val)
		} else {
			c.Capacity = n
		}
	}

	if val, ok := lookup(prefix + "KEYS"); ok {
		var keys []string
		for _, k := range strings.Split(val, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		c.Keys = keys
	}

	if val, ok := lookup(prefix + "DEBUG"); ok {
		b, err := parseBool(val)
		if err != nil {
			errs.AddWithValue(prefix+"DEBUG", "must be a boolean", val)
		} else {
			c.Debug = b
		}
	}

	if val, ok := lookup(prefix + "LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}

	if val, ok := lookup(prefix + "SCRIPT"); ok {
		c.Script = val
	}

	if val, ok := lookup(prefix + "METRICS_ADDR"); ok {
		c.MetricsAddr = val
	}

	return errs.AsError()
}

// parseBool accepts the spellings strconv.ParseBool does plus yes/no and
// on/off.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}
