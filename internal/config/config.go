// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package config loads process configuration. Sources are layered: built-in
// defaults, an optional YAML file, DECKHAND_* environment variables and
// explicitly set command-line flags, each overriding the one before.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/gateway"
	"github.com/deckhand/deckhand/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// DECKHAND_SESSION_SECRET for session.secret.
const EnvPrefix = "DECKHAND_"

// Session store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Users service modes.
const (
	UsersLocal  = "local"
	UsersRemote = "remote"
)

// Config is the full process configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	GRPC     GRPCConfig     `koanf:"grpc"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Users    UsersConfig    `koanf:"users"`
	Broker   BrokerConfig   `koanf:"broker"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// HTTPConfig configures the gateway listener.
type HTTPConfig struct {
	Addr           string   `koanf:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	SecureCookies  bool     `koanf:"secure_cookies"`
}

// GRPCConfig configures the users transport. The server side listens on
// Addr; the TLS files enable mutual TLS on both sides.
type GRPCConfig struct {
	Addr       string `koanf:"addr"`
	CertFile   string `koanf:"cert_file"`
	KeyFile    string `koanf:"key_file"`
	CAFile     string `koanf:"ca_file"`
	ServerName string `koanf:"server_name"`
}

// DatabaseConfig configures Postgres.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig configures cookies and the session store.
type SessionConfig struct {
	Secret        string        `koanf:"secret"`
	TTL           time.Duration `koanf:"ttl"`
	Store         string        `koanf:"store"`
	RedisURL      string        `koanf:"redis_url"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// UsersConfig selects where users.* runs. Store applies in local mode and in
// the users process.
type UsersConfig struct {
	Mode  string `koanf:"mode"`
	Addr  string `koanf:"addr"`
	Store string `koanf:"store"`
}

// BrokerConfig configures dispatch.
type BrokerConfig struct {
	CallTimeout time.Duration `koanf:"call_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":              "127.0.0.1:8080",
		"http.allowed_origins":   []string{"http://localhost:3000"},
		"http.secure_cookies":    false,
		"grpc.addr":              "127.0.0.1:9000",
		"grpc.server_name":       "localhost",
		"session.ttl":            auth.DefaultSessionTTL.String(),
		"session.store":          StoreMemory,
		"session.sweep_interval": auth.DefaultSweepInterval.String(),
		"users.mode":             UsersLocal,
		"users.store":            StoreMemory,
		"broker.call_timeout":    (10 * time.Second).String(),
		"log.format":             "json",
		"log.level":              "info",
		"metrics.addr":           "127.0.0.1:9100",
	}
}

// flagKeys maps command-line flag names onto config keys. Flags not listed
// are not configuration.
var flagKeys = map[string]string{
	"http-addr":            "http.addr",
	"http-allowed-origins": "http.allowed_origins",
	"grpc-addr":            "grpc.addr",
	"database-url":         "database.url",
	"session-store":        "session.store",
	"users-mode":           "users.mode",
	"users-addr":           "users.addr",
	"users-store":          "users.store",
	"log-format":           "log.format",
	"log-level":            "log.level",
	"metrics-addr":         "metrics.addr",
}

// listKeys hold comma-separated lists when given as strings.
var listKeys = map[string]struct{}{
	"http.allowed_origins": {},
}

// BindFlags registers the configuration flags on fs. Their defaults are
// informational; only flags set explicitly override other sources.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("http-addr", d["http.addr"].(string), "gateway listen address")
	fs.String("http-allowed-origins", strings.Join(d["http.allowed_origins"].([]string), ","), "comma-separated CORS origins")
	fs.String("grpc-addr", d["grpc.addr"].(string), "users transport address")
	fs.String("database-url", "", "Postgres URL")
	fs.String("session-store", d["session.store"].(string), "session store (memory, redis or postgres)")
	fs.String("users-mode", d["users.mode"].(string), "users service mode (local or remote)")
	fs.String("users-addr", "", "users service address in remote mode")
	fs.String("users-store", d["users.store"].(string), "users repository (memory or postgres)")
	fs.String("log-format", d["log.format"].(string), "log format (json or text)")
	fs.String("log-level", d["log.level"].(string), "log level (debug, info, warn or error)")
	fs.String("metrics-addr", d["metrics.addr"].(string), "metrics/health HTTP address (empty = disabled)")
}

// Load layers defaults, the YAML file at path (if any), the environment and
// the explicitly set flags in fs (if any).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagValue), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps DECKHAND_SECTION_NAME onto section.name. Only the first
// underscore separates the section.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)
	if _, ok := listKeys[key]; ok {
		return key, splitList(value)
	}
	return key, value
}

func flagValue(f *pflag.Flag) (string, any) {
	key, ok := flagKeys[f.Name]
	if !ok {
		return "", nil
	}
	if _, ok := listKeys[key]; ok {
		return key, splitList(f.Value.String())
	}
	return key, f.Value.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Users.Store != StoreMemory && c.Users.Store != StorePostgres {
		return invalid("users.store", "must be 'memory' or 'postgres', got %q", c.Users.Store)
	}
	if c.Users.Store == StorePostgres && c.Database.URL == "" {
		return invalid("database.url", "is required when users.store is postgres")
	}
	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Session.RedisURL == "" {
			return invalid("session.redis_url", "is required when session.store is redis")
		}
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "is required when session.store is postgres")
		}
	default:
		return invalid("session.store", "must be 'memory', 'redis' or 'postgres', got %q", c.Session.Store)
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", "must be positive, got %s", c.Session.TTL)
	}
	if c.Session.SweepInterval <= 0 {
		return invalid("session.sweep_interval", "must be positive, got %s", c.Session.SweepInterval)
	}
	if c.Broker.CallTimeout < 0 {
		return invalid("broker.call_timeout", "must not be negative, got %s", c.Broker.CallTimeout)
	}
	files := []string{c.GRPC.CertFile, c.GRPC.KeyFile, c.GRPC.CAFile}
	set := 0
	for _, f := range files {
		if f != "" {
			set++
		}
	}
	if set != 0 && set != len(files) {
		return invalid("grpc", "cert_file, key_file and ca_file must be set together")
	}
	return nil
}

// ValidateServe adds the checks of the gateway process. A weak cookie secret
// refuses start.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Session.Secret) < gateway.MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("key", "session.secret").
			With("env", EnvPrefix+"SESSION_SECRET").
			Wrap(gateway.ErrWeakSecret)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	switch c.Users.Mode {
	case UsersLocal:
	case UsersRemote:
		if c.Users.Addr == "" {
			return invalid("users.addr", "is required when users.mode is remote")
		}
		if c.Session.Store == StoreMemory {
			return invalid("session.store", "must be shared with the users process when users.mode is remote")
		}
	default:
		return invalid("users.mode", "must be 'local' or 'remote', got %q", c.Users.Mode)
	}
	return nil
}

// ValidateUsers adds the checks of the users process.
func (c *Config) ValidateUsers() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GRPC.Addr == "" {
		return invalid("grpc.addr", "is required")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(key+" "+format, args...)
}
