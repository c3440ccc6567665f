package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/MythicApp/Mythic-sub001/internal/legendary"
	"github.com/MythicApp/Mythic-sub001/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.LegendaryPath) == "" {
		errs = append(errs, ValidationError{
			Field:   "legendary_path",
			Message: "legendary binary path is required",
		})
	}

	if !legendary.Platform(cfg.Platform).Valid() {
		errs = append(errs, ValidationError{
			Field:   "platform",
			Message: fmt.Sprintf("must be 'Windows' or 'Mac' (got %q)", cfg.Platform),
		})
	}

	// Grace periods must be positive
	if cfg.InterruptGrace <= 0 {
		errs = append(errs, ValidationError{
			Field:   "interrupt_grace",
			Message: "must be positive",
		})
	}
	if cfg.TerminateGrace <= 0 {
		errs = append(errs, ValidationError{
			Field:   "terminate_grace",
			Message: "must be positive",
		})
	}

	if cfg.LockTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "lock_timeout",
			Message: "must not be negative",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if !logging.ValidLevel(cfg.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validateAddr checks for a host:port listen address.
func validateAddr(addr string) error {
	if strings.Contains(addr, "://") {
		return errors.New("must be host:port, not a URL")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	return nil
}
