// Package config loads server configuration from defaults, an optional
// YAML file, a .env file and SCHEMARPC_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mnehpets/schemarpc/tracing"
)

// EnvPrefix prefixes every environment variable; nested keys use "_" in
// place of ".", so tracing.enabled is SCHEMARPC_TRACING_ENABLED.
const EnvPrefix = "SCHEMARPC"

// Config holds every setting of a served API.
type Config struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Development bool   `mapstructure:"development"`
	CORS        bool   `mapstructure:"cors"`
	// CORSOrigin is the allowed origin when CORS is on.
	CORSOrigin  string `mapstructure:"cors_origin"`

	LogPath       string `mapstructure:"log_path"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// MetricsAddr serves Prometheus metrics on a separate listener. Empty
	// disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`

	// DocsDir receives the generated Markdown docs at startup. Empty
	// disables generation.
	DocsDir string `mapstructure:"docs_dir"`

	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
	BatchConcurrency int           `mapstructure:"batch_concurrency"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`

	Tracing tracing.Config `mapstructure:"tracing"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigin:      "*",
		LogPath:         "tmp/app.log",
		LogMaxSizeMB:    1,
		LogMaxBackups:   3,
		MaxBodyBytes:    10 << 20,
		ShutdownTimeout: 10 * time.Second,
		Tracing:         tracing.DefaultConfig(),
	}
}

// SetDefaults registers Defaults with v. Every key must have a default for
// environment variables to be picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("development", d.Development)
	v.SetDefault("cors", d.CORS)
	v.SetDefault("cors_origin", d.CORSOrigin)
	v.SetDefault("log_path", d.LogPath)
	v.SetDefault("log_max_size_mb", d.LogMaxSizeMB)
	v.SetDefault("log_max_backups", d.LogMaxBackups)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("docs_dir", d.DocsDir)
	v.SetDefault("max_body_bytes", d.MaxBodyBytes)
	v.SetDefault("max_batch_size", d.MaxBatchSize)
	v.SetDefault("batch_concurrency", d.BatchConcurrency)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Load reads the configuration into v and decodes it. path names an
// optional YAML config file. A .env file in the working directory is
// loaded into the environment first if it exists; variables already set
// take precedence over it.
//
// Flags bound to v before Load override everything else.
func Load(v *viper.Viper, path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that can never work.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("max_body_bytes must be >= 0"))
	}
	if c.MaxBatchSize < 0 {
		errs = append(errs, errors.New("max_batch_size must be >= 0"))
	}
	if c.BatchConcurrency < 0 {
		errs = append(errs, errors.New("batch_concurrency must be >= 0"))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must be >= 0"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate %v outside [0, 1]", c.Tracing.SampleRate))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr is the listen address of the RPC server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
