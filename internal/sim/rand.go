package sim

import "math/rand"

// Source supplies uniform draws in [0,1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// NewSource returns a seeded generator for deterministic replay.
func NewSource(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
