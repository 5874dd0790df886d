// Package delay computes the randomized pacing between outreach sends.
// Intervals are deliberately jittered so bulk delivery does not look
// automated to the receiving provider.
package delay

import (
	"fmt"
	"math/rand"
	"time"
)

const (
	// FloorSeconds is the lowest permitted minimum delay.
	FloorSeconds = 3
	// MinGapSeconds is the smallest allowed max-min spread; anything
	// tighter leaves no room for meaningful randomness.
	MinGapSeconds = 2

	minBatch = 1
	maxBatch = 100
)

// Policy is a [min,max] second range for inter-send delays.
type Policy struct {
	MinSeconds int
	MaxSeconds int
}

// Presets map the named pacing profiles to fixed ranges. "custom" is
// handled by the caller supplying its own values.
var Presets = map[string]Policy{
	"fast":         {MinSeconds: 3, MaxSeconds: 8},
	"moderate":     {MinSeconds: 8, MaxSeconds: 20},
	"conservative": {MinSeconds: 20, MaxSeconds: 45},
}

// FromPreset returns the policy for a named preset, or false if unknown.
func FromPreset(name string) (Policy, bool) {
	p, ok := Presets[name]
	return p, ok
}

// Validate checks the range against the configured floor and spread.
func (p Policy) Validate() error {
	if p.MinSeconds < FloorSeconds {
		return fmt.Errorf("min delay %ds is below the %ds floor", p.MinSeconds, FloorSeconds)
	}
	if p.MaxSeconds-p.MinSeconds < MinGapSeconds {
		return fmt.Errorf("delay range [%d,%d] must span at least %ds", p.MinSeconds, p.MaxSeconds, MinGapSeconds)
	}
	return nil
}

// Next returns a uniformly random delay in [min, max]. Not used for any
// security purpose, so a plain PRNG is fine.
func (p Policy) Next(rng *rand.Rand) time.Duration {
	minMs := p.MinSeconds * 1000
	maxMs := p.MaxSeconds * 1000
	ms := minMs + rng.Intn(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}

// Average returns the expected per-send cost of this policy.
func (p Policy) Average() time.Duration {
	return time.Duration(p.MinSeconds+p.MaxSeconds) * time.Second / 2
}

// BatchSize computes how many sends fit into a bounded invocation given
// the average delay as the per-send cost, clamped to [1,100] to bound
// worst-case work per trigger.
func (p Policy) BatchSize(timeBudgetSeconds int) int {
	avg := float64(p.MinSeconds+p.MaxSeconds) / 2
	if avg <= 0 {
		return minBatch
	}
	n := int(float64(timeBudgetSeconds) / avg)
	if n < minBatch {
		return minBatch
	}
	if n > maxBatch {
		return maxBatch
	}
	return n
}
