package compaction

import (
	"fmt"
	"time"
)

// Default policy values.
const (
	DefaultMonitorAt        = 0.60 // start reporting Monitor
	DefaultRecommendAt      = 0.80 // recommend compaction
	DefaultRequireAt        = 0.90 // compaction required
	DefaultTargetRatio      = 0.50 // reduce to 50% of the triggering threshold
	DefaultMinAchievedRatio = 0.50 // warn below 50% of projected savings
	DefaultSummarizerWait   = 30 * time.Second
	DefaultDigestMaxTokens  = 2048
)

// Policy holds the threshold table and tuning knobs for compaction
// decisions. Thresholds are fractions of the session's maximum budget.
type Policy struct {
	// MonitorAt is the usage fraction at which status leaves Healthy.
	MonitorAt float64

	// RecommendAt is the usage fraction at which compaction is recommended.
	RecommendAt float64

	// RequireAt is the usage fraction at which compaction is required.
	RequireAt float64

	// TargetRatio controls how much a compaction tries to free: post-usage
	// should be at most TargetRatio times the threshold that triggered it.
	TargetRatio float64

	// MinAchievedRatio is the fraction of projected savings below which
	// verification reports a warning. Under-achieving is legitimate (a
	// digest may run long), so this is a Warn, never a Fail.
	MinAchievedRatio float64

	// SummarizerWait bounds the external summarizer call. On timeout the
	// degraded fallback is used rather than blocking the session.
	SummarizerWait time.Duration

	// DigestMaxTokens is the target maximum cost of a produced digest,
	// passed to the summarizer.
	DigestMaxTokens int
}

// DefaultPolicy returns a Policy with production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MonitorAt:        DefaultMonitorAt,
		RecommendAt:      DefaultRecommendAt,
		RequireAt:        DefaultRequireAt,
		TargetRatio:      DefaultTargetRatio,
		MinAchievedRatio: DefaultMinAchievedRatio,
		SummarizerWait:   DefaultSummarizerWait,
		DigestMaxTokens:  DefaultDigestMaxTokens,
	}
}

// ApplyDefaults fills zero values with defaults.
func (p *Policy) ApplyDefaults() {
	if p.MonitorAt == 0 {
		p.MonitorAt = DefaultMonitorAt
	}
	if p.RecommendAt == 0 {
		p.RecommendAt = DefaultRecommendAt
	}
	if p.RequireAt == 0 {
		p.RequireAt = DefaultRequireAt
	}
	if p.TargetRatio == 0 {
		p.TargetRatio = DefaultTargetRatio
	}
	if p.MinAchievedRatio == 0 {
		p.MinAchievedRatio = DefaultMinAchievedRatio
	}
	if p.SummarizerWait == 0 {
		p.SummarizerWait = DefaultSummarizerWait
	}
	if p.DigestMaxTokens == 0 {
		p.DigestMaxTokens = DefaultDigestMaxTokens
	}
}

// Validate checks the policy for internal consistency.
func (p *Policy) Validate() error {
	for name, v := range map[string]float64{
		"monitor_at":   p.MonitorAt,
		"recommend_at": p.RecommendAt,
		"require_at":   p.RequireAt,
		"target_ratio": p.TargetRatio,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1], got %g", ErrInvalidPolicy, name, v)
		}
	}

	if !(p.MonitorAt < p.RecommendAt && p.RecommendAt < p.RequireAt) {
		return fmt.Errorf("%w: thresholds must be ordered monitor < recommend < require (got %g, %g, %g)",
			ErrInvalidPolicy, p.MonitorAt, p.RecommendAt, p.RequireAt)
	}

	if p.MinAchievedRatio < 0 || p.MinAchievedRatio > 1 {
		return fmt.Errorf("%w: min_achieved_ratio must be in [0, 1], got %g", ErrInvalidPolicy, p.MinAchievedRatio)
	}

	if p.SummarizerWait <= 0 {
		return fmt.Errorf("%w: summarizer_wait must be positive, got %s", ErrInvalidPolicy, p.SummarizerWait)
	}

	if p.DigestMaxTokens <= 0 {
		return fmt.Errorf("%w: digest_max_tokens must be positive, got %d", ErrInvalidPolicy, p.DigestMaxTokens)
	}

	return nil
}
