// Package seeded holds the deterministic random sequence both peers of a room
// use to build identical towers from the room's platform seed.
package seeded

import "math"

// Linear congruential constants. Both peers must use exactly these values.
const (
	multiplier = 9301
	increment  = 49297
	modulus    = 233280
)

// Sequence is a seeded pseudo-random generator. Two sequences built from the
// same seed and advanced the same number of times return identical values.
// It is not safe for concurrent use.
type Sequence struct {
	seed int64
}

func New(seed int64) *Sequence {
	seed %= modulus
	if seed < 0 {
		seed += modulus
	}
	return &Sequence{seed: seed}
}

// Next returns a float in [0,1).
func (s *Sequence) Next() float64 {
	s.seed = (s.seed*multiplier + increment) % modulus
	return float64(s.seed) / modulus
}

// NextInt returns an integer in [min,max], both inclusive. With max below min
// the result falls in [max+1,min]; bounds are never swapped, so both peers
// agree even on an inverted range.
func (s *Sequence) NextInt(min, max int) int {
	return int(math.Floor(s.Next()*float64(max-min+1))) + min
}
