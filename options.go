package ctxbudget

import (
	"log"
	"time"

	"github.com/stackline/ctxbudget/compaction"
	"github.com/stackline/ctxbudget/hooks"
	"github.com/stackline/ctxbudget/tokens"
)

// Option is a functional option for configuring an Engine
type Option func(*internalConfig) error

// WithSessionID sets the session identifier instead of generating one
func WithSessionID(id string) Option {
	return func(c *internalConfig) error {
		if id == "" {
			return NewEngineError("WithSessionID", ErrInvalidConfig).
				WithContext("reason", "session id must not be empty")
		}
		c.sessionID = id
		return nil
	}
}

// WithPolicy replaces the compaction policy wholesale
func WithPolicy(policy compaction.Policy) Option {
	return func(c *internalConfig) error {
		policy.ApplyDefaults()
		if err := policy.Validate(); err != nil {
			return NewEngineError("WithPolicy", err)
		}
		c.policy = policy
		return nil
	}
}

// WithThresholds sets the monitor, recommend and require fractions
func WithThresholds(monitor, recommend, require float64) Option {
	return func(c *internalConfig) error {
		p := c.policy
		p.MonitorAt = monitor
		p.RecommendAt = recommend
		p.RequireAt = require
		if err := p.Validate(); err != nil {
			return NewEngineError("WithThresholds", err)
		}
		c.policy = p
		return nil
	}
}

// WithPreservePairs sets how many recent exchange pairs stay in the
// working tier (default 8)
func WithPreservePairs(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return NewEngineError("WithPreservePairs", ErrInvalidConfig).
				WithContext("n", n).
				WithContext("reason", "must be positive")
		}
		c.preservePairs = n
		return nil
	}
}

// WithAutoCompaction enables or disables compaction at the required
// threshold after appends (default enabled)
func WithAutoCompaction(enabled bool) Option {
	return func(c *internalConfig) error {
		c.autoCompaction = enabled
		return nil
	}
}

// WithEstimator replaces the token estimator
func WithEstimator(est *tokens.Estimator) Option {
	return func(c *internalConfig) error {
		if est == nil {
			return NewEngineError("WithEstimator", ErrInvalidConfig).
				WithContext("reason", "estimator must not be nil")
		}
		c.estimator = est
		return nil
	}
}

// WithEncoding sets the tokenizer encoding used for estimation
func WithEncoding(encoding string) Option {
	return func(c *internalConfig) error {
		c.estimator = tokens.NewEstimator(encoding)
		return nil
	}
}

// WithLogger sets the logger for engine diagnostics
func WithLogger(logger *log.Logger) Option {
	return func(c *internalConfig) error {
		if logger == nil {
			return NewEngineError("WithLogger", ErrInvalidConfig).
				WithContext("reason", "logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithHooks replaces the hook registry, e.g. one pre-populated with
// logging or metrics hooks
func WithHooks(registry *hooks.Registry) Option {
	return func(c *internalConfig) error {
		if registry == nil {
			return NewEngineError("WithHooks", ErrInvalidConfig).
				WithContext("reason", "registry must not be nil")
		}
		c.hooks = registry
		return nil
	}
}

// WithCheckpointRetry sets the retry count and initial backoff for
// checkpoint writes (default 3 retries, 500ms backoff)
func WithCheckpointRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *internalConfig) error {
		if maxRetries < 0 || backoff <= 0 {
			return NewEngineError("WithCheckpointRetry", ErrInvalidConfig).
				WithContext("maxRetries", maxRetries).
				WithContext("backoff", backoff)
		}
		c.checkpointRetries = maxRetries
		c.checkpointBackoff = backoff
		return nil
	}
}
