package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "proactive.random_chance")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}
}

// Validate checks the Config for invalid values. It returns a
// ValidationErrors error listing every problem found, or nil when the
// config is valid.
func Validate(c *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateAgent(&c.Agent)...)
	errs = append(errs, validateCapture(&c.Capture)...)
	errs = append(errs, validateProactive(&c.Proactive)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateAgent(a *AgentConfig) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(a.Command) == "" {
		errs = append(errs, ValidationError{
			Field:   "agent.command",
			Value:   a.Command,
			Message: "must not be empty",
		})
	}
	if a.RequestTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "agent.request_timeout_seconds",
			Value:   a.RequestTimeoutSeconds,
			Message: "must be positive",
		})
	}
	if a.RestartBackoffMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "agent.restart_backoff_ms",
			Value:   a.RestartBackoffMs,
			Message: "must be positive",
		})
	}
	return errs
}

func validateCapture(c *CaptureConfig) []ValidationError {
	var errs []ValidationError

	if c.IntervalSeconds < 2 || c.IntervalSeconds > 60 {
		errs = append(errs, ValidationError{
			Field:   "capture.interval_seconds",
			Value:   c.IntervalSeconds,
			Message: "must be between 2 and 60",
		})
	}
	return errs
}

func validateProactive(p *ProactiveConfig) []ValidationError {
	var errs []ValidationError

	if p.TickSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "proactive.tick_seconds",
			Value:   p.TickSeconds,
			Message: "must be positive",
		})
	}
	if p.MinIdleMinutes < 0 {
		errs = append(errs, ValidationError{
			Field:   "proactive.min_idle_minutes",
			Value:   p.MinIdleMinutes,
			Message: "must not be negative",
		})
	}
	if p.CooldownMinutes < 0 {
		errs = append(errs, ValidationError{
			Field:   "proactive.cooldown_minutes",
			Value:   p.CooldownMinutes,
			Message: "must not be negative",
		})
	}
	if p.MaxPerDay < 1 {
		errs = append(errs, ValidationError{
			Field:   "proactive.max_per_day",
			Value:   p.MaxPerDay,
			Message: "must be at least 1",
		})
	}
	if p.RandomChance < 0 || p.RandomChance > 1 {
		errs = append(errs, ValidationError{
			Field:   "proactive.random_chance",
			Value:   p.RandomChance,
			Message: "must be between 0 and 1",
		})
	}
	if p.QuietStartHour < 0 || p.QuietStartHour > 23 {
		errs = append(errs, ValidationError{
			Field:   "proactive.quiet_start_hour",
			Value:   p.QuietStartHour,
			Message: "must be an hour of day (0-23)",
		})
	}
	if p.QuietEndHour < 0 || p.QuietEndHour > 23 {
		errs = append(errs, ValidationError{
			Field:   "proactive.quiet_end_hour",
			Value:   p.QuietEndHour,
			Message: "must be an hour of day (0-23)",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToUpper(l.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   l.Level,
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	return errs
}
