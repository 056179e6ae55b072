package ctxbudget

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stackline/ctxbudget/checkpoint"
	"github.com/stackline/ctxbudget/compaction"
	"github.com/stackline/ctxbudget/hooks"
	"github.com/stackline/ctxbudget/session"
	"github.com/stackline/ctxbudget/tokens"
)

// Config holds the required configuration for an Engine.
//
// Example:
//
//	client := anthropic.NewClient()
//	engine, _ := ctxbudget.New(ctxbudget.Config{
//	    MaxBudget:  200000,
//	    Summarizer: compaction.NewAnthropicSummarizer(&client, "claude-3-5-haiku-20241022"),
//	})
type Config struct {
	// MaxBudget is the session's token capacity (required)
	MaxBudget int

	// Summarizer produces compaction digests. Optional; when nil every
	// compaction takes the degraded placeholder path.
	Summarizer compaction.Summarizer

	// CheckpointStore persists checkpoints across sessions. Optional;
	// checkpoint operations fail with ErrNoCheckpointStore when unset.
	CheckpointStore checkpoint.Store
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxBudget <= 0 {
		return fmt.Errorf("%w: MaxBudget must be positive", ErrInvalidConfig)
	}
	return nil
}

// internalConfig holds the full engine configuration including optional parameters
type internalConfig struct {
	// Required from Config
	maxBudget       int
	summarizer      compaction.Summarizer
	checkpointStore checkpoint.Store

	// Optional parameters
	sessionID      string
	policy         compaction.Policy
	preservePairs  int
	autoCompaction bool
	estimator      *tokens.Estimator
	logger         *log.Logger

	// Checkpoint write retry configuration
	checkpointRetries int
	checkpointBackoff time.Duration

	hooks *hooks.Registry
}

// newInternalConfig creates a new internal config from the public Config
func newInternalConfig(cfg Config) *internalConfig {
	return &internalConfig{
		maxBudget:       cfg.MaxBudget,
		summarizer:      cfg.Summarizer,
		checkpointStore: cfg.CheckpointStore,

		// Defaults
		policy:         compaction.DefaultPolicy(),
		preservePairs:  session.DefaultPreservePairs,
		autoCompaction: true,
		estimator:      tokens.Default(),
		logger:         log.New(os.Stderr, "[ctxbudget] ", log.LstdFlags),

		checkpointRetries: 3,
		checkpointBackoff: 500 * time.Millisecond,

		hooks: hooks.NewRegistry(),
	}
}

// FileConfig is the YAML shape for engine settings loaded from disk.
// Zero values mean "keep the default"; thresholds use pointers so an
// explicit 0 can be told apart from an omitted field.
type FileConfig struct {
	MaxBudget      int    `yaml:"max_budget"`
	PreservePairs  int    `yaml:"preserve_pairs"`
	Encoding       string `yaml:"encoding"`
	AutoCompaction *bool  `yaml:"auto_compaction"`

	Policy struct {
		MonitorAt        *float64      `yaml:"monitor_at"`
		RecommendAt      *float64      `yaml:"recommend_at"`
		RequireAt        *float64      `yaml:"require_at"`
		TargetRatio      *float64      `yaml:"target_ratio"`
		MinAchievedRatio *float64      `yaml:"min_achieved_ratio"`
		SummarizerWait   time.Duration `yaml:"summarizer_wait"`
		DigestMaxTokens  int           `yaml:"digest_max_tokens"`
	} `yaml:"policy"`
}

// LoadFileConfig reads a FileConfig from a YAML file.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadFileConfig", err).WithContext("path", path)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, NewEngineError("LoadFileConfig", fmt.Errorf("%w: %v", ErrInvalidConfig, err)).
			WithContext("path", path)
	}
	return &fc, nil
}

// Config returns the required engine configuration carried by the file.
// Collaborators that cannot live in a file (summarizer, checkpoint store)
// are left for the caller to fill in:
//
//	fc, _ := ctxbudget.LoadFileConfig(path)
//	cfg := fc.Config()
//	cfg.Summarizer = summarizer
//	engine, _ := ctxbudget.New(cfg, fc.Options()...)
func (fc *FileConfig) Config() Config {
	return Config{MaxBudget: fc.MaxBudget}
}

// Options converts the file settings into engine options, skipping fields
// that were not set.
func (fc *FileConfig) Options() []Option {
	var opts []Option

	if fc.PreservePairs > 0 {
		opts = append(opts, WithPreservePairs(fc.PreservePairs))
	}
	if fc.Encoding != "" {
		opts = append(opts, WithEncoding(fc.Encoding))
	}
	if fc.AutoCompaction != nil {
		opts = append(opts, WithAutoCompaction(*fc.AutoCompaction))
	}

	policy := compaction.DefaultPolicy()
	touched := false
	if fc.Policy.MonitorAt != nil {
		policy.MonitorAt = *fc.Policy.MonitorAt
		touched = true
	}
	if fc.Policy.RecommendAt != nil {
		policy.RecommendAt = *fc.Policy.RecommendAt
		touched = true
	}
	if fc.Policy.RequireAt != nil {
		policy.RequireAt = *fc.Policy.RequireAt
		touched = true
	}
	if fc.Policy.TargetRatio != nil {
		policy.TargetRatio = *fc.Policy.TargetRatio
		touched = true
	}
	if fc.Policy.MinAchievedRatio != nil {
		policy.MinAchievedRatio = *fc.Policy.MinAchievedRatio
		touched = true
	}
	if fc.Policy.SummarizerWait > 0 {
		policy.SummarizerWait = fc.Policy.SummarizerWait
		touched = true
	}
	if fc.Policy.DigestMaxTokens > 0 {
		policy.DigestMaxTokens = fc.Policy.DigestMaxTokens
		touched = true
	}
	if touched {
		opts = append(opts, WithPolicy(policy))
	}

	return opts
}
