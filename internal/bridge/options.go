package bridge

import (
	"time"

	"github.com/deskmate-app/deskmate/internal/logging"
)

// defaultRequestTimeout is how long a request waits for its response.
const defaultRequestTimeout = 120 * time.Second

// defaultRestartBackoff is the fixed delay before relaunching the agent
// after an unexpected exit.
const defaultRestartBackoff = 1500 * time.Millisecond

// Option configures a Bridge.
type Option func(*config)

type config struct {
	timeout time.Duration
	backoff time.Duration
	logger  *logging.Logger
}

// WithRequestTimeout sets the per-request timeout.
// A zero or negative value is replaced with the default (120s).
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRestartBackoff sets the fixed restart delay.
// A zero or negative value is replaced with the default (1.5s).
func WithRestartBackoff(d time.Duration) Option {
	return func(c *config) {
		c.backoff = d
	}
}

// WithLogger sets the logger for the bridge.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
