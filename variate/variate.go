// Package variate draws the uniform variates used to sample alias tables.
package variate

import (
	"math/rand/v2"
	"sync"

	"golang.org/x/exp/constraints"
)

// Draw returns x uniformly distributed over [0, n) and y uniformly
// distributed over [0, total). Panics if n or total is zero.
func Draw[P constraints.Unsigned](r *rand.Rand, n int, total P) (int, P) {
	x := r.IntN(n)
	y := P(r.Uint64N(uint64(total)))
	return x, y
}

// New returns a PCG generator. Generators with equal seed and stream produce
// equal sequences.
func New(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// Pool is a pool of independently seeded generators.
// The zero value is ready to use.
// To obtain one, declare a variable or convert an existing sync.Pool to it.
// In the latter case, if the pool's New field is non-nil,
// it must return values which assert to *rand.Rand.
type Pool sync.Pool

// Get pulls a generator from the pool, creating one if none are available.
func (p *Pool) Get() *rand.Rand {
	r, _ := (*sync.Pool)(p).Get().(*rand.Rand)
	if r == nil {
		r = New(rand.Uint64(), rand.Uint64())
	}
	return r
}

// Put returns a generator to the pool.
func (p *Pool) Put(r *rand.Rand) {
	(*sync.Pool)(p).Put(r)
}
