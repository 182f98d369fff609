// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package config loads server configuration. Sources are layered in order:
// built-in defaults, an optional YAML file, CODESNIP_* environment variables,
// and finally explicitly set command-line flags.
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/logging"
	"github.com/codesnip/codesnip/internal/mail"
	"github.com/codesnip/codesnip/internal/store"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore separates nesting levels: CODESNIP_HTTP__ADDR sets http.addr.
const EnvPrefix = "CODESNIP_"

const redacted = "[REDACTED]"

// Config is the full server configuration.
type Config struct {
	Log      LogConfig      `koanf:"log" yaml:"log"`
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Tokens   TokenConfig    `koanf:"tokens" yaml:"tokens"`
	Mail     MailConfig     `koanf:"mail" yaml:"mail"`
	Sessions SessionConfig  `koanf:"sessions" yaml:"sessions"`
	Password PasswordConfig `koanf:"password" yaml:"password"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RateLimit is the sustained per-client request rate on the auth routes,
	// in requests per second. Zero disables limiting.
	RateLimit      float64  `koanf:"rate_limit" yaml:"rate_limit"`
	RateBurst      int      `koanf:"rate_burst" yaml:"rate_burst"`
	TrustedProxies []string `koanf:"trusted_proxies" yaml:"trusted_proxies"`
}

// MetricsConfig configures the observability listener. An empty address disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string        `koanf:"url" yaml:"url"`
	MaxConns       int32         `koanf:"max_conns" yaml:"max_conns"`
	MinConns       int32         `koanf:"min_conns" yaml:"min_conns"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" yaml:"connect_timeout"`
}

// TokenConfig configures token signing.
type TokenConfig struct {
	AccessSecret    string        `koanf:"access_secret" yaml:"access_secret"`
	RefreshSecret   string        `koanf:"refresh_secret" yaml:"refresh_secret"`
	ActionSecret    string        `koanf:"action_secret" yaml:"action_secret"`
	Issuer          string        `koanf:"issuer" yaml:"issuer"`
	AccessTTL       time.Duration `koanf:"access_ttl" yaml:"access_ttl"`
	RefreshTTL      time.Duration `koanf:"refresh_ttl" yaml:"refresh_ttl"`
	VerificationTTL time.Duration `koanf:"verification_ttl" yaml:"verification_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl" yaml:"reset_ttl"`
}

// MailConfig configures email delivery. An empty host logs emails instead of sending them.
type MailConfig struct {
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"password"`
	From     string `koanf:"from" yaml:"from"`
	TLS      string `koanf:"tls" yaml:"tls"`
	// BaseURL is the public web origin that email links point at.
	BaseURL string        `koanf:"base_url" yaml:"base_url"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// SessionConfig configures session housekeeping.
type SessionConfig struct {
	PurgeInterval time.Duration `koanf:"purge_interval" yaml:"purge_interval"`
	NotifyTimeout time.Duration `koanf:"notify_timeout" yaml:"notify_timeout"`
}

// PasswordConfig configures password hashing.
type PasswordConfig struct {
	Argon2 Argon2Config `koanf:"argon2" yaml:"argon2"`
}

// Argon2Config is the argon2id work factor. Stored hashes made with other
// parameters are rehashed on the next successful login.
type Argon2Config struct {
	Time    uint32 `koanf:"time" yaml:"time"`
	Memory  uint32 `koanf:"memory" yaml:"memory"` // KiB
	Threads uint8  `koanf:"threads" yaml:"threads"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       5,
			RateBurst:       20,
		},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{MaxConns: 10, ConnectTimeout: 5 * time.Second},
		Tokens: TokenConfig{
			Issuer:          "codesnip",
			AccessTTL:       auth.DefaultAccessTTL,
			RefreshTTL:      auth.DefaultRefreshTTL,
			VerificationTTL: auth.DefaultVerificationTokenTTL,
			ResetTTL:        auth.DefaultResetTokenTTL,
		},
		Mail: MailConfig{
			Port:    mail.DefaultPort,
			TLS:     mail.TLSMandatory,
			BaseURL: "http://localhost:8080",
			Timeout: mail.DefaultTimeout,
		},
		Sessions: SessionConfig{
			PurgeInterval: time.Hour,
			NotifyTimeout: auth.DefaultNotifyTimeout,
		},
		Password: PasswordConfig{Argon2: Argon2Config{
			Time:    auth.DefaultArgon2Time,
			Memory:  auth.DefaultArgon2Memory,
			Threads: auth.DefaultArgon2Threads,
		}},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
}

// RegisterFlags adds the overridable settings to fs. Only flags the user sets
// take part in Load.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health listen address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL connection URL")
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// the environment, and flags (if non-nil).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CODESNIP_HTTP__RATE_LIMIT to http.rate_limit.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

// Validate checks the settings that have no usable default. Every problem is
// reported, joined into one CONFIG_INVALID error.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, msg string) {
		errs = append(errs, oops.With("field", field).Errorf("%s: %s", field, msg))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		fail("log.level", "must be debug, info, warn, or error")
	}
	if !logging.ValidFormat(c.Log.Format) {
		fail("log.format", "must be json or text")
	}
	if c.HTTP.Addr == "" {
		fail("http.addr", "is required")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		fail("http.rate_limit", "must not be negative")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst == 0 {
		fail("http.rate_burst", "must be positive when rate limiting is enabled")
	}
	if c.Database.URL == "" {
		fail("database.url", "is required")
	}
	for field, secret := range map[string]string{
		"tokens.access_secret":  c.Tokens.AccessSecret,
		"tokens.refresh_secret": c.Tokens.RefreshSecret,
		"tokens.action_secret":  c.Tokens.ActionSecret,
	} {
		if len(secret) < auth.MinSecretLength {
			fail(field, "must be at least 32 bytes")
		}
	}
	if c.Tokens.AccessSecret != "" &&
		(c.Tokens.AccessSecret == c.Tokens.RefreshSecret ||
			c.Tokens.AccessSecret == c.Tokens.ActionSecret ||
			c.Tokens.RefreshSecret == c.Tokens.ActionSecret) {
		fail("tokens", "access, refresh, and action secrets must differ")
	}
	if c.Mail.Host != "" && c.Mail.From == "" {
		fail("mail.from", "is required when mail.host is set")
	}
	if u, err := url.Parse(c.Mail.BaseURL); err != nil || u.Host == "" {
		fail("mail.base_url", "must be an absolute url")
	}
	if c.Sessions.PurgeInterval < 0 {
		fail("sessions.purge_interval", "must not be negative")
	}
	if _, err := auth.NewArgon2idHasherWithParams(c.HasherParams()); err != nil {
		fail("password.argon2", "time and threads must be positive and memory at least 8 KiB per thread")
	}

	if len(errs) == 0 {
		return nil
	}
	return oops.Code("CONFIG_INVALID").With("problems", len(errs)).Wrap(errors.Join(errs...))
}

// Redacted returns a copy with secrets and the database password masked.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.Tokens.AccessSecret)
	mask(&c.Tokens.RefreshSecret)
	mask(&c.Tokens.ActionSecret)
	mask(&c.Mail.Password)
	if u, err := url.Parse(c.Database.URL); err == nil && u.User != nil {
		c.Database.URL = u.Redacted()
	} else if err != nil {
		c.Database.URL = redacted
	}
	c.HTTP.TrustedProxies = append([]string(nil), c.HTTP.TrustedProxies...)
	return c
}

// AuthTokenConfig converts the token settings for auth.NewTokenCodec.
func (c *Config) AuthTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  []byte(c.Tokens.AccessSecret),
		RefreshSecret: []byte(c.Tokens.RefreshSecret),
		ActionSecret:  []byte(c.Tokens.ActionSecret),
		AccessTTL:     c.Tokens.AccessTTL,
		RefreshTTL:    c.Tokens.RefreshTTL,
		Issuer:        c.Tokens.Issuer,
	}
}

// HasherParams converts the argon2 settings for auth.NewArgon2idHasherWithParams.
func (c *Config) HasherParams() auth.Argon2Params {
	return auth.Argon2Params{
		Time:    c.Password.Argon2.Time,
		Memory:  c.Password.Argon2.Memory,
		Threads: c.Password.Argon2.Threads,
	}
}

// MailerConfig converts the mail settings for mail.NewSMTPNotifier.
func (c *Config) MailerConfig() mail.Config {
	return mail.Config{
		Host:            c.Mail.Host,
		Port:            c.Mail.Port,
		Username:        c.Mail.Username,
		Password:        c.Mail.Password,
		From:            c.Mail.From,
		BaseURL:         c.Mail.BaseURL,
		TLS:             c.Mail.TLS,
		Timeout:         c.Mail.Timeout,
		VerificationTTL: c.Tokens.VerificationTTL,
		ResetTTL:        c.Tokens.ResetTTL,
	}
}

// PoolConfig converts the database settings for store.Open.
func (c *Config) PoolConfig() store.PoolConfig {
	return store.PoolConfig{
		MaxConns:       c.Database.MaxConns,
		MinConns:       c.Database.MinConns,
		ConnectTimeout: c.Database.ConnectTimeout,
	}
}
