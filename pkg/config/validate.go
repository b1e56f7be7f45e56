package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/fhasched/internal/telemetry"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("profile_type", func(fl validator.FieldLevel) bool {
			return telemetry.ValidProfileType(fl.Field().String())
		})
	})
	return validate
}

// Validate checks struct tags and the cross-field rules tags cannot express.
// It does not modify cfg.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("telemetry.profiling.endpoint is required when profiling is enabled")
	}

	if _, err := cfg.Scheduler.Tunables(); err != nil {
		return err
	}

	if cfg.Pool.Workers > 0 && cfg.Scheduler.IdleScanLimit > cfg.Pool.Workers {
		return fmt.Errorf("scheduler.idle_scan_limit (%d) exceeds pool.workers (%d)",
			cfg.Scheduler.IdleScanLimit, cfg.Pool.Workers)
	}

	return nil
}

// formatValidationError flattens validator errors into one message naming the
// field and the failed tag, e.g. "Config.Logging.Level failed 'oneof'".
func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed '%s=%s' (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
