package tokens

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go"
)

// Calibrator counts tokens through the Anthropic count-tokens API, falling
// back to the local estimator when the API is unavailable. Once the API has
// failed it is not retried for the lifetime of the calibrator; the session
// keeps running on local estimates.
//
// The calibrator is advisory. All append-time accounting uses the local
// Estimator so that appends stay synchronous and deterministic; the API
// count is only consulted for explicit recomputation (e.g. pricing a
// freshly produced digest).
type Calibrator struct {
	client    *anthropic.Client
	model     string
	estimator *Estimator
	failed    atomic.Bool
}

// NewCalibrator creates a calibrator. client may be nil, in which case every
// count comes from the local estimator.
func NewCalibrator(client *anthropic.Client, model string, estimator *Estimator) *Calibrator {
	if estimator == nil {
		estimator = Default()
	}
	return &Calibrator{
		client:    client,
		model:     model,
		estimator: estimator,
	}
}

// Count returns the token count for the given text. It never returns an
// error: API failures latch the fallback and the local estimate is used.
func (c *Calibrator) Count(ctx context.Context, text string) int {
	if text == "" {
		return 0
	}
	if c.client == nil || c.failed.Load() {
		return c.estimator.Estimate(text)
	}

	n, err := c.countWithAPI(ctx, text)
	if err != nil {
		c.failed.Store(true)
		return c.estimator.Estimate(text)
	}
	return clamp(n)
}

// UsingAPI reports whether API counting is still active.
func (c *Calibrator) UsingAPI() bool {
	return c.client != nil && !c.failed.Load()
}

func (c *Calibrator) countWithAPI(ctx context.Context, text string) (int, error) {
	result, err := c.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(text),
				},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return int(result.InputTokens), nil
}
