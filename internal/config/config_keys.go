package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ValidKeys returns all configuration keys in display order.
func ValidKeys() []string {
	return []string{
		"pool.max_workers", "pool.idle_timeout", "pool.init_timeout",
		"pool.stuck_grace_period", "pool.inline",
		"search.hidden", "search.max_columns", "search.context", "search.engine",
	}
}

// IsValidKey returns true if key is a configuration key.
func IsValidKey(key string) bool {
	return slices.Contains(ValidKeys(), key)
}

// Get returns the effective value of key as a string.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "pool.max_workers":
		return strconv.Itoa(c.MaxWorkers()), nil
	case "pool.idle_timeout":
		return c.IdleTimeout().String(), nil
	case "pool.init_timeout":
		return c.InitTimeout().String(), nil
	case "pool.stuck_grace_period":
		return c.StuckGracePeriod().String(), nil
	case "pool.inline":
		return strconv.FormatBool(c.Inline()), nil
	case "search.hidden":
		return strconv.FormatBool(c.Hidden()), nil
	case "search.max_columns":
		return strconv.Itoa(c.MaxColumns()), nil
	case "search.context":
		return strconv.Itoa(c.Context()), nil
	case "search.engine":
		return c.Engine(), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// Set parses value and assigns it to key, then validates the result.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "pool.max_workers":
		n, err := parseInt(key, value)
		if err != nil {
			return err
		}
		c.Pool.MaxWorkers = &n
	case "pool.idle_timeout":
		d, err := parseDuration(key, value)
		if err != nil {
			return err
		}
		c.Pool.IdleTimeout = d
	case "pool.init_timeout":
		d, err := parseDuration(key, value)
		if err != nil {
			return err
		}
		c.Pool.InitTimeout = d
	case "pool.stuck_grace_period":
		d, err := parseDuration(key, value)
		if err != nil {
			return err
		}
		c.Pool.StuckGracePeriod = d
	case "pool.inline":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Pool.Inline = &b
	case "search.hidden":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Search.Hidden = &b
	case "search.max_columns":
		n, err := parseInt(key, value)
		if err != nil {
			return err
		}
		c.Search.MaxColumns = &n
	case "search.context":
		n, err := parseInt(key, value)
		if err != nil {
			return err
		}
		c.Search.Context = &n
	case "search.engine":
		v := strings.ToLower(value)
		c.Search.Engine = &v
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return c.Validate()
}

// All returns every effective configuration value.
func (c *Config) All() map[string]string {
	out := make(map[string]string, len(ValidKeys()))
	for _, key := range ValidKeys() {
		out[key], _ = c.Get(key)
	}
	return out
}

// IsSet returns true if key has an explicit value.
func (c *Config) IsSet(key string) bool {
	switch key {
	case "pool.max_workers":
		return c.Pool.MaxWorkers != nil
	case "pool.idle_timeout":
		return c.Pool.IdleTimeout != nil
	case "pool.init_timeout":
		return c.Pool.InitTimeout != nil
	case "pool.stuck_grace_period":
		return c.Pool.StuckGracePeriod != nil
	case "pool.inline":
		return c.Pool.Inline != nil
	case "search.hidden":
		return c.Search.Hidden != nil
	case "search.max_columns":
		return c.Search.MaxColumns != nil
	case "search.context":
		return c.Search.Context != nil
	case "search.engine":
		return c.Search.Engine != nil
	default:
		return false
	}
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidValue, key)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.ToLower(value))
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", ErrInvalidValue, key)
	}
	return b, nil
}

func parseDuration(key, value string) (*Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a duration such as 30s", ErrInvalidValue, key)
	}
	out := Duration(d)
	return &out, nil
}
