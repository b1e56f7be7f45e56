package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/fhasched/internal/bytesize"
	"github.com/marmos91/fhasched/pkg/api"
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/svcpool"
	"github.com/marmos91/fhasched/pkg/workload"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides
// (e.g. FHASCHED_SCHEDULER_MAX_THREADS_PER_FILE=4).
const EnvPrefix = "FHASCHED"

// Config represents the fhasched configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FHASCHED_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// The scheduler section can be changed while the process runs; see Watcher.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains admin HTTP server configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Scheduler holds the file-handle affinity tunables
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`

	// Pool sizes the service pool
	Pool PoolConfig `mapstructure:"pool" yaml:"pool"`

	// Workload describes the synthetic request stream used by "fhasched simulate"
	Workload workload.Config `mapstructure:"workload" yaml:"workload"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_space", "inuse_space", "goroutines", "mutex_duration"]
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,profile_type" yaml:"profile_types"`
}

// MetricsConfig controls Prometheus metrics. When enabled, metrics are served
// at /metrics on the admin API.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SchedulerConfig holds the file-handle affinity tunables.
//
// For the two per-file limits, 0 selects the default and -1 removes the limit.
type SchedulerConfig struct {
	// Enabled switches affinity scheduling on or off. Default: true
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// BinShift is log2 of the offset bin size used for read locality.
	// Default: 18 (256KiB bins)
	BinShift uint `mapstructure:"bin_shift" validate:"lte=63" yaml:"bin_shift"`

	// BinSize is an alternative to BinShift given as a byte size ("256KiB").
	// It must be a power of two and takes precedence over BinShift.
	BinSize bytesize.ByteSize `mapstructure:"bin_size" yaml:"bin_size,omitempty"`

	// MaxThreadsPerFile bounds how many workers serve one file. Default: 8
	MaxThreadsPerFile int `mapstructure:"max_threads_per_file" validate:"gte=-1" yaml:"max_threads_per_file"`

	// MaxReqsPerThread is the load above which a worker stops attracting
	// same-bin reads. Default: 4
	MaxReqsPerThread int `mapstructure:"max_reqs_per_thread" validate:"gte=-1" yaml:"max_reqs_per_thread"`

	// MaxEntries bounds the number of tracked files; 0 means unbounded.
	MaxEntries int `mapstructure:"max_entries" validate:"gte=0" yaml:"max_entries"`

	// IdleScanLimit bounds the idle-worker search; 0 scans the whole pool.
	IdleScanLimit int `mapstructure:"idle_scan_limit" validate:"gte=0" yaml:"idle_scan_limit"`
}

// PoolConfig sizes the service pool.
type PoolConfig struct {
	// Workers is the number of worker goroutines. Default: 8
	Workers int `mapstructure:"workers" validate:"gte=1,lte=4096" yaml:"workers"`

	// QueueSize is the shared ingress queue capacity. Default: 1024
	QueueSize int `mapstructure:"queue_size" validate:"gte=1" yaml:"queue_size"`

	// WorkerQueueSize is each worker's private queue capacity. Default: 64
	WorkerQueueSize int `mapstructure:"worker_queue_size" validate:"gte=1" yaml:"worker_queue_size"`
}

// Tunables converts the scheduler section into fha.Tunables.
func (c SchedulerConfig) Tunables() (fha.Tunables, error) {
	t := fha.DefaultTunables()
	if c.Enabled != nil {
		t.Enabled = *c.Enabled
	}

	switch {
	case c.BinSize != 0:
		shift, err := c.BinSize.Log2()
		if err != nil {
			return fha.Tunables{}, fmt.Errorf("scheduler.bin_size: %w", err)
		}
		t.BinShift = shift
	case c.BinShift != 0:
		t.BinShift = c.BinShift
	}

	t.MaxThreadsPerFile = limit(c.MaxThreadsPerFile, fha.DefaultMaxThreadsPerFile)
	t.MaxReqsPerThread = limit(c.MaxReqsPerThread, fha.DefaultMaxReqsPerThread)
	t.MaxEntries = c.MaxEntries
	t.IdleScanLimit = c.IdleScanLimit

	if err := t.Validate(); err != nil {
		return fha.Tunables{}, err
	}
	return t, nil
}

// limit maps the config convention (0 default, -1 unlimited) onto fha's
// (0 unlimited).
func limit(v, def int) int {
	switch {
	case v < 0:
		return 0
	case v == 0:
		return def
	default:
		return v
	}
}

// PoolConfig builds the service pool configuration.
func (c *Config) PoolConfig() (svcpool.Config, error) {
	tun, err := c.Scheduler.Tunables()
	if err != nil {
		return svcpool.Config{}, err
	}
	return svcpool.Config{
		Workers:         c.Pool.Workers,
		QueueSize:       c.Pool.QueueSize,
		WorkerQueueSize: c.Pool.WorkerQueueSize,
		Scheduler:       tun,
	}, nil
}

// Load loads configuration from file, environment, and defaults.
//
// A missing file is not an error: defaults plus environment overrides are
// returned.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, requiring the file to exist. The error
// explains how to create one.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  fhasched config init\n\n"+
				"Or specify a custom config file:\n"+
				"  fhasched <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  fhasched config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return SaveRaw(path, data)
}

// SaveRaw writes already encoded configuration bytes to path.
func SaveRaw(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// FHASCHED_LOGGING_LEVEL=DEBUG overrides logging.level
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every mapstructure key with viper. AutomaticEnv only
// consults the environment for keys viper already knows about, so without
// this an override for a key absent from the file would be ignored.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			bindEnvKeys(v, ft, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// config files can say "256KiB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/fhasched, ~/.config/fhasched, or "."
// when no home directory is available.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fhasched")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "fhasched")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
