// Package dist implements labeled categorical distributions with constant
// time selection.
package dist

import (
	"cmp"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/zephyrtronium/vose/alias"
	"github.com/zephyrtronium/vose/variate"
)

// Dist is a categorical distribution backed by an alias table.
// It is immutable and safe for concurrent use.
type Dist[E any] struct {
	tab *alias.Table[uint64]
	// elems is the categories in table order.
	elems []E
	// weights is the weights in table order.
	weights []uint64
}

// Case is a category for a distribution.
type Case[E any] struct {
	// E is the category.
	E E
	// W is its relative weight.
	W uint64
}

// New creates a distribution from a list of cases. Cases with zero weight
// are discarded. The remaining cases are ordered by weight, keeping the
// given order among equal weights. Listing the same category in multiple
// cases is equivalent to listing it once with the sum of the weights.
//
// The error is non-nil if no case has positive weight or the weights
// overflow.
func New[E any](cases []Case[E]) (*Dist[E], error) {
	c := make([]Case[E], 0, len(cases))
	for _, v := range cases {
		if v.W != 0 {
			c = append(c, v)
		}
	}
	slices.SortStableFunc(c, func(a, b Case[E]) int { return cmp.Compare(a.W, b.W) })
	d := Dist[E]{
		elems:   make([]E, len(c)),
		weights: make([]uint64, len(c)),
	}
	for i, v := range c {
		d.elems[i] = v.E
		d.weights[i] = v.W
	}
	tab, err := alias.New(d.weights)
	if err != nil {
		return nil, fmt.Errorf("couldn't build distribution: %w", err)
	}
	d.tab = tab
	return &d, nil
}

// Pick selects the category corresponding to the variates x and y, which
// must be uniform over [0, d.Len()) and [0, d.Total()) respectively.
func (d *Dist[E]) Pick(x int, y uint64) (E, error) {
	i, err := d.tab.Sample(x, y)
	if err != nil {
		var zero E
		return zero, err
	}
	return d.elems[i], nil
}

// Draw selects a category using variates from r.
func (d *Dist[E]) Draw(r *rand.Rand) E {
	x, y := variate.Draw(r, d.tab.Len(), d.tab.Total())
	e, err := d.Pick(x, y)
	if err != nil {
		// Draw always produces in-range variates.
		panic(err)
	}
	return e
}

// Len returns the number of categories.
func (d *Dist[E]) Len() int {
	return d.tab.Len()
}

// Total returns the total weight.
func (d *Dist[E]) Total() uint64 {
	return d.tab.Total()
}

// Table returns the alias table backing the distribution. Outcome i of the
// table corresponds to d.Cases()[i].
func (d *Dist[E]) Table() *alias.Table[uint64] {
	return d.tab
}

// Cases returns the cases of the distribution in table order.
func (d *Dist[E]) Cases() []Case[E] {
	r := make([]Case[E], len(d.elems))
	for i, e := range d.elems {
		r[i] = Case[E]{E: e, W: d.weights[i]}
	}
	return r
}

// Weights returns the weights of the distribution in table order.
func (d *Dist[E]) Weights() []uint64 {
	return slices.Clone(d.weights)
}

// FromMap converts a map of categories to their weights to a slice of cases
// ordered by category. Categories with zero weight are discarded.
func FromMap[E cmp.Ordered](m map[E]uint64) []Case[E] {
	r := make([]Case[E], 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if v := m[k]; v > 0 {
			r = append(r, Case[E]{k, v})
		}
	}
	return r
}
