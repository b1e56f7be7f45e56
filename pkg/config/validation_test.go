package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/marmos91/fhasched/internal/bytesize"
	"github.com/marmos91/fhasched/pkg/fha"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_NegativePort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative port")
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "telemetry") && !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 1.5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_UnknownProfileType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heap_everything"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown profile type")
	}
	if !strings.Contains(err.Error(), "profile_type") {
		t.Errorf("Expected 'profile_type' validation error, got: %v", err)
	}
}

func TestValidate_Scheduler(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threads below minus one", func(c *Config) { c.Scheduler.MaxThreadsPerFile = -2 }},
		{"reqs below minus one", func(c *Config) { c.Scheduler.MaxReqsPerThread = -5 }},
		{"bin shift too large", func(c *Config) { c.Scheduler.BinShift = 64 }},
		{"negative max entries", func(c *Config) { c.Scheduler.MaxEntries = -1 }},
		{"scan limit above pool size", func(c *Config) { c.Scheduler.IdleScanLimit = c.Pool.Workers + 1 }},
		{"zero workers", func(c *Config) { c.Pool.Workers = 0 }},
		{"read ratio above one", func(c *Config) { c.Workload.ReadRatio = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidate_BinSizeNotPowerOfTwo(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Scheduler.BinSize = 100 * bytesize.KB

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for bin_size 100KB")
	}
	if !errors.Is(err, bytesize.ErrNotPowerOfTwo) {
		t.Errorf("Expected ErrNotPowerOfTwo, got: %v", err)
	}
}

func TestValidate_UnlimitedSentinels(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Scheduler.MaxThreadsPerFile = -1
	cfg.Scheduler.MaxReqsPerThread = -1

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected -1 to be accepted as unlimited, got: %v", err)
	}
}

func TestValidate_TunablesErrorIsTyped(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Scheduler.BinShift = 64

	// The struct tag catches this first; Tunables reports the typed error.
	if _, err := cfg.Scheduler.Tunables(); !errors.Is(err, fha.ErrInvalidTunables) {
		t.Errorf("Expected ErrInvalidTunables, got: %v", err)
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		err := Validate(cfg)
		if err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}

		// Validation should NOT normalize - level should remain as-is
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
