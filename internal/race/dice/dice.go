// Package dice implements the bias-corrected die roller for race movement.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSides indicates a roller was asked for a die without faces.
var ErrInvalidSides = errors.New("dice must have positive sides")

// Source yields raw entropy words. Production rolls draw from the crypto
// source at execution time, so no caller can predict or choose an outcome
// before submitting an action.
type Source interface {
	Uint64() (uint64, error)
}

// CryptoSource draws entropy from crypto/rand.
type CryptoSource struct{}

// Uint64 reads one entropy word.
func (CryptoSource) Uint64() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random bytes: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Roller produces uniform die values from a Source.
type Roller struct {
	source Source
	sides  uint64
}

// NewRoller creates a Roller for a die with the given number of sides.
func NewRoller(source Source, sides int) (*Roller, error) {
	if sides <= 0 {
		return nil, ErrInvalidSides
	}
	if source == nil {
		source = CryptoSource{}
	}
	return &Roller{source: source, sides: uint64(sides)}, nil
}

// Roll returns a value uniformly distributed over [1, sides].
//
// The raw 64-bit entropy range is not an exact multiple of the side count,
// so a plain modulo would skew toward low faces. Roll rejects the trailing
// partial bucket and resamples instead.
func (r *Roller) Roll() (int, error) {
	// Largest count of entropy values that is an exact multiple of sides.
	// Values at or above it fall into the partial bucket and are rejected.
	cutoff := math.MaxUint64 - (math.MaxUint64%r.sides+1)%r.sides
	for {
		value, err := r.source.Uint64()
		if err != nil {
			return 0, err
		}
		if value > cutoff {
			continue
		}
		return int(value%r.sides) + 1, nil
	}
}
