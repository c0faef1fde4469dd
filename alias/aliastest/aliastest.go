// Package aliastest provides exhaustive checks for alias tables.
package aliastest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/exp/constraints"

	"github.com/zephyrtronium/vose/alias"
	"github.com/zephyrtronium/vose/histogram"
)

// Exhaust samples tab at every cell of its variate grid and checks that each
// outcome i is selected exactly n*weights[i] times, where n is the number of
// outcomes.
//
// The grid has tab.Len()*tab.Total() cells, so weights should be small.
func Exhaust[P constraints.Unsigned](t testing.TB, tab *alias.Table[P], weights []P) {
	t.Helper()
	if tab.Len() != len(weights) {
		t.Fatalf("table has %d outcomes for %d weights", tab.Len(), len(weights))
	}
	h, err := histogram.Grid(tab)
	if err != nil {
		t.Fatalf("couldn't sample grid: %v", err)
	}
	want := make([]uint64, len(weights))
	for i, w := range weights {
		want[i] = uint64(w) * uint64(len(weights))
	}
	if diff := cmp.Diff(want, h.Counts); diff != "" {
		t.Errorf("wrong outcome counts over grid (-want/+got):\n%s", diff)
	}
	for i, w := range weights {
		if got := tab.Weight(i); got != w {
			t.Errorf("wrong weight recovered for outcome %d: want %d, got %d", i, w, got)
		}
	}
}

// Slots returns the contents of every slot of tab for comparison.
func Slots[P constraints.Unsigned](tab *alias.Table[P]) []Slot[P] {
	r := make([]Slot[P], tab.Len())
	for i := range r {
		r[i].Threshold, r[i].Alias, r[i].OK = tab.Slot(i)
	}
	return r
}

// Slot is the contents of one slot of an alias table.
type Slot[P constraints.Unsigned] struct {
	Threshold P
	Alias     int
	OK        bool
}
