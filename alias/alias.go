// Package alias implements Vose's alias method over integer weights.
//
// A Table is built once from a non-decreasing sequence of weights in linear
// time. Afterward, each query maps a pair of uniform variates to an outcome
// in constant time. The package does not generate randomness itself; callers
// draw x uniformly from [0, Len()) and y uniformly from [0, Total()).
//
// Weights are integers, so the total weight T plays the role of probability
// 1.0. Over the n*T cells of the variate grid, outcome i is selected by
// exactly n*weight[i] cells.
//
// A Table is immutable after construction and safe for concurrent use.
package alias

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/exp/constraints"
)

var (
	// ErrEmpty is an error returned when constructing a table without weights.
	ErrEmpty = errors.New("no weights")
	// ErrDecreasing is an error returned when a weight is less than the one
	// before it.
	ErrDecreasing = errors.New("weights are not non-decreasing")
	// ErrTotal is an error returned when a declared total weight does not
	// equal the sum of the weights.
	ErrTotal = errors.New("total does not match sum of weights")
	// ErrOverflow is an error returned when the number of weights, their sum,
	// or any weight scaled by the number of weights is not representable in
	// the weight type.
	ErrOverflow = errors.New("weights overflow")
	// ErrZeroTotal is an error returned when every weight is zero.
	ErrZeroTotal = errors.New("total weight is zero")
	// ErrRange is an error returned when sampling with a variate outside its
	// domain.
	ErrRange = errors.New("variate out of range")
)

// noAlias marks a slot that was settled without receiving an alias.
const noAlias = -1

// Table is an alias table for sampling outcomes in proportion to integer
// weights.
type Table[P constraints.Unsigned] struct {
	// total is the sum of the weights.
	total P
	// u is the portion of each slot's mass that selects the slot itself.
	u []P
	// k is the outcome each slot selects otherwise, or noAlias.
	k []int
}

// New creates a table from a sequence of weights. The total weight is the
// sum of the weights. Weights must be non-decreasing; equal weights are
// allowed, as are zero weights provided the total is positive.
func New[P constraints.Unsigned](weights []P) (*Table[P], error) {
	total, err := sum(weights)
	if err != nil {
		return nil, err
	}
	return build(weights, total), nil
}

// NewTotal creates a table from a sequence of weights with a declared total.
// It is equivalent to [New] except that it additionally fails with
// [ErrTotal] if total is not the sum of the weights.
func NewTotal[P constraints.Unsigned](weights []P, total P) (*Table[P], error) {
	t, err := sum(weights)
	if err != nil {
		return nil, err
	}
	if t != total {
		return nil, fmt.Errorf("%w: declared %d, weights sum to %d", ErrTotal, total, t)
	}
	return build(weights, t), nil
}

// sum validates weights and returns their total.
func sum[P constraints.Unsigned](weights []P) (P, error) {
	n := len(weights)
	if n == 0 {
		return 0, ErrEmpty
	}
	pn := P(n)
	if uint64(pn) != uint64(n) {
		return 0, fmt.Errorf("%w: %d weights is not representable as %T", ErrOverflow, n, pn)
	}
	var s, last P
	for i, w := range weights {
		if w < last {
			return 0, fmt.Errorf("%w: weight %d at index %d follows %d", ErrDecreasing, w, i, last)
		}
		last = w
		if s+w < s {
			return 0, fmt.Errorf("%w: sum exceeds %T at index %d", ErrOverflow, s, i)
		}
		s += w
		if w*pn/pn != w {
			return 0, fmt.Errorf("%w: weight %d at index %d scaled by %d exceeds %T", ErrOverflow, w, i, n, w)
		}
	}
	if s == 0 {
		return 0, ErrZeroTotal
	}
	return s, nil
}

// build generates the table. The weights must already be validated.
func build[P constraints.Unsigned](weights []P, total P) *Table[P] {
	n := len(weights)
	pn := P(n)
	u := make([]P, n)
	k := make([]int, n)
	under := make([]int, 0, n)
	over := make([]int, 0, n)
	for i, w := range weights {
		u[i] = w * pn
		k[i] = noAlias
		switch {
		case u[i] < total:
			under = append(under, i)
		case u[i] > total:
			over = append(over, i)
		}
	}
	// Take underfull slots from the lowest index first and overfull slots
	// from the highest.
	slices.Reverse(under)
	for len(under) > 0 && len(over) > 0 {
		iu := under[len(under)-1]
		under = under[:len(under)-1]
		io := over[len(over)-1]
		over = over[:len(over)-1]
		k[iu] = io
		// io donates total-u[iu] to fill iu. Since u[io] > total, this can
		// neither underflow nor overflow.
		u[io] = u[io] - total + u[iu]
		switch {
		case u[io] < total:
			under = append(under, io)
		case u[io] > total:
			over = append(over, io)
		}
	}
	if len(under) != 0 || len(over) != 0 {
		// The unsettled slots always hold exactly their count times the total,
		// so one list can't empty before the other unless sum is wrong.
		panic(fmt.Errorf("alias: %d underfull and %d overfull slots left after construction", len(under), len(over)))
	}
	return &Table[P]{total: total, u: u, k: k}
}

// Len returns the number of outcomes in the table.
func (t *Table[P]) Len() int {
	return len(t.u)
}

// Total returns the total weight of the table.
func (t *Table[P]) Total() P {
	return t.total
}

// Sample selects the outcome corresponding to the variates x and y.
// For outcomes to follow the weights, x must be uniformly distributed over
// [0, t.Len()) and y over [0, t.Total()).
// If either is outside its range, the result is an error wrapping [ErrRange].
func (t *Table[P]) Sample(x int, y P) (int, error) {
	if x < 0 || x >= len(t.u) {
		return 0, fmt.Errorf("%w: x = %d not in [0, %d)", ErrRange, x, len(t.u))
	}
	if y >= t.total {
		return 0, fmt.Errorf("%w: y = %d not in [0, %d)", ErrRange, y, t.total)
	}
	if y < t.u[x] {
		return x, nil
	}
	a := t.k[x]
	if a == noAlias {
		// Slots without aliases hold the full total, so y < t.u[x] always.
		panic(fmt.Errorf("alias: slot %d has threshold %d of %d but no alias", x, t.u[x], t.total))
	}
	return a, nil
}

// Slot returns the contents of slot i: the threshold below which the slot
// selects itself and the alias it selects otherwise. If the slot has no
// alias, ok is false and the threshold equals the total weight.
// Panics if i is out of range.
func (t *Table[P]) Slot(i int) (threshold P, alias int, ok bool) {
	return t.u[i], t.k[i], t.k[i] != noAlias
}

// Mass returns the number of cells of the variate grid that select outcome
// i, which is the outcome's weight times the number of outcomes.
// Panics if i is out of range.
func (t *Table[P]) Mass(i int) P {
	m := t.u[i]
	for x, a := range t.k {
		if a == i {
			m += t.total - t.u[x]
		}
	}
	return m
}

// Weight recovers the weight of outcome i from the table.
// Panics if i is out of range.
func (t *Table[P]) Weight(i int) P {
	return t.Mass(i) / P(len(t.u))
}
