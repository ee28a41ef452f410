package dice

import "math/rand"

// SeededSource is a deterministic entropy source for tests. Given the same
// seed it replays the same roll sequence; it must never back a production
// roller.
type SeededSource struct {
	rng *rand.Rand
}

// NewSeededSource creates a deterministic source from a seed.
func NewSeededSource(seed int64) *SeededSource {
	return &SeededSource{rng: rand.New(rand.NewSource(seed))}
}

// Uint64 returns the next deterministic entropy word.
func (s *SeededSource) Uint64() (uint64, error) {
	return s.rng.Uint64(), nil
}
