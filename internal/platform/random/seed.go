// Package random provides the production random source for assignment
// policies.
package random

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
)

// NewSource returns a ChaCha8 stream keyed from crypto/rand.
func NewSource() (rand.Source, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return rand.NewChaCha8(seed), nil
}
