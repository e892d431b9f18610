// Package config provides configuration management for the Oscar service.
// It loads configuration from an optional YAML file, environment variables and
// command-line flags using Viper, and validates it before the server starts.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides (e.g. OSCAR_SERVER_GIN_MODE).
	EnvPrefix = "OSCAR"

	// TracesPath is appended to a general OTLP endpoint to reach the traces receiver.
	TracesPath = "/v1/traces"
)

// DefaultProbeFilters are the access-log substrings dropped by default so that
// infrastructure probes do not flood the access sink.
var DefaultProbeFilters = []string{"GET /healthz", "GET /livez", "GET /readyz"}

// Config represents the complete configuration for the Oscar service.
//
// Configuration can be loaded from:
//   - YAML file (passed with --config)
//   - Environment variables (OSCAR_ prefix, plus the unprefixed LOG_LEVEL,
//     SERVICE_NAME, HOSTNAME and OTEL_EXPORTER_OTLP_* variables)
//   - Command-line flags bound by the serve command
//
// Example:
//
//	cfg, err := config.Load("", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Service       ServiceConfig       `mapstructure:"service"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Docling       DoclingConfig       `mapstructure:"docling"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the network interface to bind to ($OSCAR_HOST, default "0.0.0.0")
	Host string `mapstructure:"host"`

	// Port is the HTTP server port ($OSCAR_PORT, default 8000)
	Port int `mapstructure:"port"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`

	// MaxUploadBytes limits the size of documents posted for conversion
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// GinMode sets the Gin framework mode ("debug", "release", "test")
	GinMode string `mapstructure:"gin_mode"`
}

// ServiceConfig identifies this service instance in logs, traces and the status endpoint.
type ServiceConfig struct {
	// Name is the service name ($SERVICE_NAME, default "oscar")
	Name string `mapstructure:"name"`

	// InstanceID identifies the process, normally the pod hostname ($HOSTNAME, default "unknown")
	InstanceID string `mapstructure:"instance_id"`
}

// ObservabilityConfig contains logging, metrics, and tracing configuration.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level sets the log level ($LOG_LEVEL: debug, info, warning, error, critical, fatal)
	Level string `mapstructure:"level"`

	// Format sets the log format ("json", "console")
	Format string `mapstructure:"format"`

	// OutputPaths are the destinations of application logs
	OutputPaths []string `mapstructure:"output_paths"`

	// AccessOutputPaths are the destinations of per-request access logs
	AccessOutputPaths []string `mapstructure:"access_output_paths"`

	// ProbeFilters are message substrings dropped from the access sink
	ProbeFilters []string `mapstructure:"probe_filters"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig contains OpenTelemetry tracing configuration. When neither
// endpoint is set, spans are recorded in-process only.
type TracingConfig struct {
	// TracesEndpoint is the full OTLP/HTTP traces URL ($OTEL_EXPORTER_OTLP_TRACES_ENDPOINT)
	TracesEndpoint string `mapstructure:"traces_endpoint"`

	// Endpoint is the base OTLP collector URL ($OTEL_EXPORTER_OTLP_ENDPOINT)
	Endpoint string `mapstructure:"endpoint"`

	// SamplingRatio is the fraction of root spans sampled (0.0 to 1.0)
	SamplingRatio float64 `mapstructure:"sampling_ratio"`

	// Insecure disables TLS for the exporter connection
	Insecure bool `mapstructure:"insecure"`

	// ExportTimeout bounds each batch export
	ExportTimeout time.Duration `mapstructure:"export_timeout"`
}

// DoclingConfig points at an optional remote document-conversion backend.
type DoclingConfig struct {
	// URL of a docling-serve instance; empty disables document conversion
	URL string `mapstructure:"url"`

	// APIKey is sent as X-Api-Key when set
	APIKey string `mapstructure:"api_key"`

	Timeout time.Duration `mapstructure:"timeout"`

	// StartupAttempts is the number of availability checks made at startup
	StartupAttempts int `mapstructure:"startup_attempts"`
}

// ExporterEndpoint returns the OTLP traces URL to export to, or an empty
// string when spans should not be exported. The traces-specific endpoint is
// used verbatim; the general endpoint gets TracesPath appended if missing.
func (t TracingConfig) ExporterEndpoint() string {
	if t.TracesEndpoint != "" {
		return t.TracesEndpoint
	}

	if t.Endpoint == "" {
		return ""
	}

	endpoint := strings.TrimRight(t.Endpoint, "/")
	if strings.HasSuffix(endpoint, TracesPath) {
		return endpoint
	}
	return endpoint + TracesPath
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Load loads configuration from the specified file path, environment
// variables and flags. Flags override environment variables, which override
// file values. Both configPath and flags may be empty.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	setDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindEnv binds the well-known unprefixed environment variables. Explicit
// names are checked before the OSCAR_ prefixed key.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.host":                           {"OSCAR_HOST"},
		"server.port":                           {"OSCAR_PORT"},
		"service.name":                          {"SERVICE_NAME", "OSCAR_SERVICE_NAME"},
		"service.instance_id":                   {"HOSTNAME", "OSCAR_SERVICE_INSTANCE_ID"},
		"observability.logging.level":           {"LOG_LEVEL", "OSCAR_OBSERVABILITY_LOGGING_LEVEL"},
		"observability.tracing.traces_endpoint": {"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"},
		"observability.tracing.endpoint":        {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	}

	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}
	return nil
}

// bindFlags binds the serve command's flags to their configuration keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"server.host": "host",
		"server.port": "port",
	}

	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_header_bytes", 1048576) // 1MB
	v.SetDefault("server.max_upload_bytes", 64<<20)  // 64MB
	v.SetDefault("server.gin_mode", "release")

	// Service defaults
	v.SetDefault("service.name", "oscar")
	v.SetDefault("service.instance_id", "unknown")

	// Logging defaults
	v.SetDefault("observability.logging.level", "INFO")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output_paths", []string{"stderr"})
	v.SetDefault("observability.logging.access_output_paths", []string{"stdout"})
	v.SetDefault("observability.logging.probe_filters", DefaultProbeFilters)

	// Metrics defaults
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.metrics.namespace", "oscar")

	// Tracing defaults
	v.SetDefault("observability.tracing.traces_endpoint", "")
	v.SetDefault("observability.tracing.endpoint", "")
	v.SetDefault("observability.tracing.sampling_ratio", 1.0)
	v.SetDefault("observability.tracing.insecure", false)
	v.SetDefault("observability.tracing.export_timeout", "10s")

	// Docling defaults
	v.SetDefault("docling.url", "")
	v.SetDefault("docling.timeout", "5m")
	v.SetDefault("docling.startup_attempts", 3)
}

// Validate validates the configuration and returns an error if any values are invalid.
// This should be called after Load() so that bad settings fail at startup
// rather than at the first request or log emission.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateService(); err != nil {
		return err
	}

	if err := c.validateObservability(); err != nil {
		return err
	}

	if err := c.validateDocling(); err != nil {
		return err
	}

	return nil
}

// validateServer validates the server configuration.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.GinMode != "debug" && c.Server.GinMode != "release" && c.Server.GinMode != "test" {
		return fmt.Errorf("invalid gin_mode: %s (must be debug, release, or test)", c.Server.GinMode)
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("invalid max_upload_bytes: %d (must be > 0)", c.Server.MaxUploadBytes)
	}

	return nil
}

// validateService validates the service identity.
func (c *Config) validateService() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	return nil
}

// validateObservability validates the observability configuration.
func (c *Config) validateObservability() error {
	if err := c.validateLogging(); err != nil {
		return err
	}

	if err := c.validateMetrics(); err != nil {
		return err
	}

	if err := c.validateTracing(); err != nil {
		return err
	}

	return nil
}

// validateLogging validates the logging configuration.
func (c *Config) validateLogging() error {
	logging := c.Observability.Logging
	if !ValidLogLevel(logging.Level) {
		return fmt.Errorf("invalid logging level: %s", logging.Level)
	}

	if logging.Format != "json" && logging.Format != "console" {
		return fmt.Errorf("invalid logging format: %s (must be json or console)", logging.Format)
	}

	if len(logging.OutputPaths) == 0 {
		return fmt.Errorf("logging output_paths cannot be empty")
	}

	if len(logging.AccessOutputPaths) == 0 {
		return fmt.Errorf("logging access_output_paths cannot be empty")
	}

	for _, filter := range logging.ProbeFilters {
		if strings.TrimSpace(filter) == "" {
			return fmt.Errorf("logging probe_filters cannot contain empty entries")
		}
	}

	return nil
}

// validateMetrics validates the metrics configuration.
func (c *Config) validateMetrics() error {
	if !c.Observability.Metrics.Enabled {
		return nil
	}

	if !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics path: %q (must start with /)", c.Observability.Metrics.Path)
	}

	return nil
}

// validateTracing validates the tracing configuration.
func (c *Config) validateTracing() error {
	tracing := c.Observability.Tracing
	if tracing.SamplingRatio < 0.0 || tracing.SamplingRatio > 1.0 {
		return fmt.Errorf("invalid tracing sampling_ratio: %f (must be 0.0-1.0)", tracing.SamplingRatio)
	}

	if tracing.ExporterEndpoint() != "" && tracing.ExportTimeout <= 0 {
		return fmt.Errorf("tracing export_timeout must be positive when an exporter endpoint is set")
	}

	return nil
}

// validateDocling validates the document conversion backend configuration.
func (c *Config) validateDocling() error {
	if c.Docling.URL == "" {
		return nil
	}

	if !strings.HasPrefix(c.Docling.URL, "http://") && !strings.HasPrefix(c.Docling.URL, "https://") {
		return fmt.Errorf("invalid docling url: %s (must be http or https)", c.Docling.URL)
	}

	if c.Docling.Timeout <= 0 {
		return fmt.Errorf("docling timeout must be positive when a url is set")
	}

	if c.Docling.StartupAttempts < 1 {
		return fmt.Errorf("invalid docling startup_attempts: %d (must be > 0)", c.Docling.StartupAttempts)
	}

	return nil
}

// ValidLogLevel reports whether level names a supported log level. Level
// names are case-insensitive and include "warning" and "critical".
func ValidLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error", "critical", "fatal":
		return true
	default:
		return false
	}
}
