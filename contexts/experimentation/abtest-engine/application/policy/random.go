package policy

import (
	"math/rand/v2"
	"sync"
)

// Random is a mutex-guarded random source shared by concurrent requests.
// It satisfies rand.Source so it can be handed to distribution samplers.
type Random struct {
	mu  sync.Mutex
	src rand.Source
	rng *rand.Rand
}

func NewRandom(src rand.Source) *Random {
	return &Random{src: src, rng: rand.New(src)}
}

// NewSeededRandom returns a reproducible source for tests and simulations.
func NewSeededRandom(seed uint64) *Random {
	return NewRandom(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (r *Random) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Uint64()
}

func (r *Random) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *Random) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

var fallbackRandom = NewRandom(rand.NewPCG(rand.Uint64(), rand.Uint64()))

func resolveRandom(r *Random) *Random {
	if r == nil {
		return fallbackRandom
	}
	return r
}
