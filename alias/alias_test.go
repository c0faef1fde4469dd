package alias_test

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/zephyrtronium/vose/alias"
	"github.com/zephyrtronium/vose/alias/aliastest"
)

func TestNewErrors(t *testing.T) {
	cases := []struct {
		name    string
		weights []uint8
		want    error
	}{
		{
			name:    "empty",
			weights: nil,
			want:    alias.ErrEmpty,
		},
		{
			name:    "decreasing",
			weights: []uint8{1, 3, 2},
			want:    alias.ErrDecreasing,
		},
		{
			name:    "decreasing-first",
			weights: []uint8{2, 1, 3},
			want:    alias.ErrDecreasing,
		},
		{
			name:    "sum",
			weights: []uint8{100, 100, 100},
			want:    alias.ErrOverflow,
		},
		{
			name:    "scale",
			weights: []uint8{1, 130},
			want:    alias.ErrOverflow,
		},
		{
			name:    "count",
			weights: make([]uint8, 256),
			want:    alias.ErrOverflow,
		},
		{
			name:    "zero",
			weights: []uint8{0, 0, 0},
			want:    alias.ErrZeroTotal,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tab, err := alias.New(c.weights)
			if !errors.Is(err, c.want) {
				t.Errorf("wrong error: want %v, got %v", c.want, err)
			}
			if tab != nil {
				t.Errorf("got a table with an error")
			}
		})
	}
}

func TestNewTotal(t *testing.T) {
	w := []uint64{1, 2, 3, 4}
	if _, err := alias.NewTotal(w, 11); !errors.Is(err, alias.ErrTotal) {
		t.Errorf("wrong error for total above sum: want %v, got %v", alias.ErrTotal, err)
	}
	if _, err := alias.NewTotal(w, 9); !errors.Is(err, alias.ErrTotal) {
		t.Errorf("wrong error for total below sum: want %v, got %v", alias.ErrTotal, err)
	}
	if _, err := alias.NewTotal([]uint64{4, 3}, 7); !errors.Is(err, alias.ErrDecreasing) {
		t.Errorf("wrong error for decreasing weights: want %v, got %v", alias.ErrDecreasing, err)
	}
	tab, err := alias.NewTotal(w, 10)
	if err != nil {
		t.Fatalf("couldn't build with correct total: %v", err)
	}
	u, err := alias.New(w)
	if err != nil {
		t.Fatalf("couldn't build with computed total: %v", err)
	}
	if diff := cmp.Diff(aliastest.Slots(u), aliastest.Slots(tab)); diff != "" {
		t.Errorf("declared and computed totals differ (-computed/+declared):\n%s", diff)
	}
}

func TestExhaustive(t *testing.T) {
	cases := []struct {
		name    string
		weights []uint16
	}{
		{"single", []uint16{5}},
		{"ascending", []uint16{1, 2, 3, 4}},
		{"ties", []uint16{2, 2, 2, 2}},
		{"some-ties", []uint16{1, 1, 3, 3, 3, 7}},
		{"zeros", []uint16{0, 0, 1, 9}},
		{"one-heavy", []uint16{1, 1, 1, 1, 1, 1, 1, 50}},
		{"triangle", []uint16{0, 10, 20, 30, 40, 50, 60, 70}},
		{"powers", []uint16{1, 2, 4, 8, 16, 32, 64, 128}},
		{"squares", []uint16{1, 4, 9, 16, 25, 36, 49, 64, 81, 100}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tab, err := alias.New(c.weights)
			if err != nil {
				t.Fatalf("couldn't build table: %v", err)
			}
			aliastest.Exhaust(t, tab, c.weights)
		})
	}
}

func TestExhaustiveUint8(t *testing.T) {
	// The heaviest weight scales to 249, near the top of the type.
	w := []uint8{1, 1, 83}
	tab, err := alias.New(w)
	if err != nil {
		t.Fatalf("couldn't build table: %v", err)
	}
	if tab.Total() != 85 {
		t.Errorf("wrong total: want 85, got %d", tab.Total())
	}
	aliastest.Exhaust(t, tab, w)
}

func TestScenario(t *testing.T) {
	w := []uint{1, 2, 3, 4}
	tab, err := alias.New(w)
	if err != nil {
		t.Fatalf("couldn't build table: %v", err)
	}
	if tab.Len() != 4 {
		t.Errorf("wrong length: want 4, got %d", tab.Len())
	}
	if tab.Total() != 10 {
		t.Errorf("wrong total: want 10, got %d", tab.Total())
	}
	want := []aliastest.Slot[uint]{
		{Threshold: 4, Alias: 3, OK: true},
		{Threshold: 8, Alias: 2, OK: true},
		{Threshold: 10, Alias: -1, OK: false},
		{Threshold: 10, Alias: -1, OK: false},
	}
	if diff := cmp.Diff(want, aliastest.Slots(tab)); diff != "" {
		t.Errorf("wrong slots (-want/+got):\n%s", diff)
	}
	// Slot 0 selects itself for the first four values of y and its alias
	// for the other six.
	var own int
	for y := range uint(10) {
		i, err := tab.Sample(0, y)
		if err != nil {
			t.Fatalf("couldn't sample (0, %d): %v", y, err)
		}
		switch i {
		case 0:
			own++
		case 3: // do nothing
		default:
			t.Errorf("slot 0 selected %d with y=%d", i, y)
		}
	}
	if own != 4 {
		t.Errorf("wrong number of self-selections in slot 0: want 4, got %d", own)
	}
	// Slot 3 is settled, so it always selects itself.
	for y := range uint(10) {
		i, err := tab.Sample(3, y)
		if err != nil {
			t.Fatalf("couldn't sample (3, %d): %v", y, err)
		}
		if i != 3 {
			t.Errorf("slot 3 selected %d with y=%d", i, y)
		}
	}
	for i, m := range []uint{4, 8, 12, 16} {
		if got := tab.Mass(i); got != m {
			t.Errorf("wrong mass for outcome %d: want %d, got %d", i, m, got)
		}
	}
}

func TestSingle(t *testing.T) {
	tab, err := alias.New([]uint32{5})
	if err != nil {
		t.Fatalf("couldn't build table: %v", err)
	}
	for y := range uint32(5) {
		i, err := tab.Sample(0, y)
		if err != nil {
			t.Errorf("couldn't sample (0, %d): %v", y, err)
		}
		if i != 0 {
			t.Errorf("wrong outcome for y=%d: want 0, got %d", y, i)
		}
	}
	if _, a, ok := tab.Slot(0); ok {
		t.Errorf("single slot has alias %d", a)
	}
}

func TestSampleRange(t *testing.T) {
	tab, err := alias.New([]uint64{1, 2, 3})
	if err != nil {
		t.Fatalf("couldn't build table: %v", err)
	}
	cases := []struct {
		name string
		x    int
		y    uint64
	}{
		{"negative-x", -1, 0},
		{"large-x", 3, 0},
		{"total-y", 0, 6},
		{"large-y", 1, 1 << 60},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := tab.Sample(c.x, c.y)
			if !errors.Is(err, alias.ErrRange) {
				t.Errorf("wrong error: want %v, got %v", alias.ErrRange, err)
			}
		})
	}
}

func TestDeterministic(t *testing.T) {
	w := make([]uint64, 100)
	for i := range w {
		w[i] = uint64(i * i)
	}
	a, err := alias.New(w)
	if err != nil {
		t.Fatalf("couldn't build first table: %v", err)
	}
	b, err := alias.New(slices.Clone(w))
	if err != nil {
		t.Fatalf("couldn't build second table: %v", err)
	}
	if diff := cmp.Diff(aliastest.Slots(a), aliastest.Slots(b)); diff != "" {
		t.Errorf("tables differ (-first/+second):\n%s", diff)
	}
}

func TestMassQuick(t *testing.T) {
	f := func(w []uint16) bool {
		if len(w) == 0 {
			return true
		}
		slices.Sort(w)
		w64 := make([]uint64, len(w))
		var sum uint64
		for i, v := range w {
			w64[i] = uint64(v)
			sum += uint64(v)
		}
		tab, err := alias.New(w64)
		if sum == 0 {
			return errors.Is(err, alias.ErrZeroTotal)
		}
		if err != nil {
			return false
		}
		for i, v := range w64 {
			if tab.Mass(i) != v*uint64(len(w64)) {
				return false
			}
			th, _, ok := tab.Slot(i)
			if th > tab.Total() || (!ok && th != tab.Total()) {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestConcurrentSample(t *testing.T) {
	w := []uint32{1, 3, 5, 7, 9, 11}
	tab, err := alias.New(w)
	if err != nil {
		t.Fatalf("couldn't build table: %v", err)
	}
	want := make([]int, tab.Len()*int(tab.Total()))
	for x := range tab.Len() {
		for y := range tab.Total() {
			want[x*int(tab.Total())+int(y)], _ = tab.Sample(x, y)
		}
	}
	done := make(chan []int)
	for range 8 {
		go func() {
			got := make([]int, len(want))
			for x := range tab.Len() {
				for y := range tab.Total() {
					got[x*int(tab.Total())+int(y)], _ = tab.Sample(x, y)
				}
			}
			done <- got
		}()
	}
	for range 8 {
		if diff := cmp.Diff(want, <-done); diff != "" {
			t.Errorf("concurrent samples differ (-want/+got):\n%s", diff)
		}
	}
}

func BenchmarkNew(b *testing.B) {
	w := make([]uint64, 1024)
	for i := range w {
		w[i] = uint64(i) * 1000
	}
	b.ResetTimer()
	for range b.N {
		alias.New(w)
	}
}

func BenchmarkSample(b *testing.B) {
	w := make([]uint64, 1024)
	for i := range w {
		w[i] = uint64(i) * 1000
	}
	tab, err := alias.New(w)
	if err != nil {
		b.Fatal(err)
	}
	n, total := tab.Len(), tab.Total()
	b.ResetTimer()
	for range b.N {
		tab.Sample(rand.IntN(n), rand.Uint64N(total))
	}
}
