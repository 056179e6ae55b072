// Package tokens estimates the budget cost of conversation content.
//
// Estimation is deterministic and never fails: when the BPE encoder is
// unavailable (offline environments without the tiktoken cache) it degrades
// to a byte-length heuristic. The heuristic deliberately over-estimates,
// because under-counting could mask an over-budget session while
// over-counting merely triggers compaction slightly early.
package tokens

import (
	"math"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is specified.
const DefaultEncoding = "cl100k_base"

// maxCost is the ceiling for a single estimate. Larger results are clamped
// rather than overflowing.
const maxCost = math.MaxInt32

// Estimator converts text into an estimated cost in budget units. All
// fields are set at construction and never mutated, so an Estimator is safe
// for concurrent use without locking.
type Estimator struct {
	encoder  *tiktoken.Tiktoken
	encoding string
	fallback bool
}

var (
	defaultEstimator     *Estimator
	defaultEstimatorOnce sync.Once
)

// Default returns the shared estimator for DefaultEncoding.
func Default() *Estimator {
	defaultEstimatorOnce.Do(func() {
		defaultEstimator = NewEstimator(DefaultEncoding)
	})
	return defaultEstimator
}

// NewEstimator creates an estimator for the given encoding. Construction
// never fails; if the encoder cannot be initialized the estimator runs on
// the heuristic alone.
func NewEstimator(encoding string) *Estimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	e := &Estimator{encoding: encoding}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		e.fallback = true
		return e
	}
	e.encoder = enc
	return e
}

// Estimate returns the cost of the given text. Empty text costs 0. The
// result is always >= 0 and never exceeds maxCost.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e.fallback {
		return clamp(Approximate(text))
	}

	toks := e.encoder.Encode(text, nil, nil)
	return clamp(len(toks))
}

// Precise reports whether BPE counting is active (false means the
// byte-length heuristic is in use).
func (e *Estimator) Precise() bool { return !e.fallback }

// Encoding returns the configured encoding name.
func (e *Estimator) Encoding() string { return e.encoding }

// Approximate estimates tokens from byte length at ~4 bytes per token,
// with a minimum of 1 for non-empty text.
func Approximate(text string) int {
	if len(text) == 0 {
		return 0
	}
	toks := (len(text) + 3) / 4
	if toks < 1 {
		toks = 1
	}
	return toks
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxCost {
		return maxCost
	}
	return n
}
