// Package config loads and serves the service settings.
//
// Resolution order per setting (highest to lowest):
//  1. Runtime Set (config API)
//  2. Environment variables (BRAG_*)
//  3. Config file (config.yaml in the app dir)
//  4. Declared default
//
// Values that fail to coerce to their declared kind fall back to the
// default. Settings marked frozen refuse runtime edits.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mvp-joe/mcp-brag/internal/apperr"
)

// Entry is the wire representation of one setting.
type Entry struct {
	Value  any    `json:"value"`
	Type   string `json:"type"`
	Frozen bool   `json:"frozen"`
}

// Config resolves settings. Safe for concurrent use; editable settings are
// read at call time so runtime edits take effect immediately.
type Config struct {
	mu       sync.RWMutex
	v        *viper.Viper
	registry map[string]Setting // keyed by lowercase key
	order    []string           // registration order, lowercase keys
	log      zerolog.Logger
}

// DefaultAppDir returns ~/.mcp-brag, falling back to the working directory
// when the home directory cannot be resolved.
func DefaultAppDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcp-brag"
	}
	return filepath.Join(home, ".mcp-brag")
}

// Load builds a Config rooted at appDir. cfgFile overrides the default
// config file location when non-empty. A missing config file is fine.
func Load(appDir, cfgFile string, log zerolog.Logger) (*Config, error) {
	if appDir == "" {
		appDir = DefaultAppDir()
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(appDir)
	}

	v.SetEnvPrefix("BRAG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	c := &Config{
		v:        v,
		registry: make(map[string]Setting),
		log:      log.With().Str("component", "config").Logger(),
	}

	for _, s := range settings(appDir) {
		key := strings.ToLower(s.Key)
		c.registry[key] = s
		c.order = append(c.order, key)
		v.SetDefault(key, s.Default)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", s.Key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable; defaults and env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return c, nil
}

// lookup returns the raw value coerced to the setting's kind, falling back
// to the declared default on malformed values.
func (c *Config) lookup(key string) (Setting, any) {
	lk := strings.ToLower(key)
	c.mu.RLock()
	s, ok := c.registry[lk]
	c.mu.RUnlock()
	if !ok {
		return Setting{}, nil
	}
	raw := c.v.Get(lk)
	coerced, err := coerce(s.Kind, raw)
	if err != nil {
		c.log.Warn().Str("key", s.Key).Interface("value", raw).Msg("malformed config value, using default")
		return s, s.Default
	}
	return s, coerced
}

// Str returns the string value for key; unknown keys return "".
func (c *Config) Str(key string) string {
	_, v := c.lookup(key)
	s, _ := v.(string)
	return s
}

// Int returns the int value for key; unknown keys return 0.
func (c *Config) Int(key string) int {
	_, v := c.lookup(key)
	n, _ := v.(int)
	return n
}

// Float returns the float value for key; unknown keys return 0.
func (c *Config) Float(key string) float64 {
	_, v := c.lookup(key)
	f, _ := v.(float64)
	return f
}

// Bool returns the bool value for key; unknown keys return false.
func (c *Config) Bool(key string) bool {
	_, v := c.lookup(key)
	b, _ := v.(bool)
	return b
}

// Duration returns the duration value for key; unknown keys return 0.
func (c *Config) Duration(key string) time.Duration {
	_, v := c.lookup(key)
	d, _ := v.(time.Duration)
	return d
}

// Strings returns the string-slice value for key; unknown keys return nil.
func (c *Config) Strings(key string) []string {
	_, v := c.lookup(key)
	ss, _ := v.([]string)
	return ss
}

// Set coerces value to the setting's kind and applies it with highest
// precedence. Frozen and unknown keys are refused.
func (c *Config) Set(key string, value any) (Entry, error) {
	lk := strings.ToLower(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.registry[lk]
	if !ok {
		return Entry{}, apperr.BadRequest("unknown config name: %s", key)
	}
	if s.Frozen {
		return Entry{}, apperr.BadRequest("config %s is frozen", s.Key)
	}
	coerced, err := coerce(s.Kind, value)
	if err != nil {
		return Entry{}, apperr.BadRequest("invalid value for %s (%s): %v", s.Key, s.Kind, value)
	}
	c.v.Set(lk, coerced)
	return Entry{Value: entryValue(s.Kind, coerced), Type: s.Kind.String(), Frozen: false}, nil
}

// All returns every setting keyed by its public name.
func (c *Config) All() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Entry, len(c.order))
	for _, lk := range c.order {
		s := c.registry[lk]
		raw := c.v.Get(lk)
		coerced, err := coerce(s.Kind, raw)
		if err != nil {
			coerced = s.Default
		}
		out[s.Key] = Entry{Value: entryValue(s.Kind, coerced), Type: s.Kind.String(), Frozen: s.Frozen}
	}
	return out
}

// AppDir returns the application directory.
func (c *Config) AppDir() string { return c.Str(KeyAppDir) }

// entryValue renders durations as seconds for JSON, matching the
// duration-in-seconds env convention.
func entryValue(kind Kind, v any) any {
	if kind == KindDuration {
		if d, ok := v.(time.Duration); ok {
			return d.Seconds()
		}
	}
	return v
}
