package dist_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gitlab.com/zephyrtronium/pick"

	"github.com/zephyrtronium/vose/alias"
	"github.com/zephyrtronium/vose/alias/aliastest"
	"github.com/zephyrtronium/vose/dist"
)

func TestDistString(t *testing.T) {
	type sel struct {
		x int
		y uint64
		w string
	}
	cases := []struct {
		name  string
		elems []dist.Case[string]
		cases []dist.Case[string]
		picks []sel
	}{
		{
			name: "single",
			elems: []dist.Case[string]{
				{E: "madoka", W: 1},
			},
			cases: []dist.Case[string]{
				{E: "madoka", W: 1},
			},
			picks: []sel{
				{0, 0, "madoka"},
			},
		},
		{
			name: "single-weighted",
			elems: []dist.Case[string]{
				{E: "madoka", W: 100},
			},
			cases: []dist.Case[string]{
				{E: "madoka", W: 100},
			},
			picks: []sel{
				{0, 0, "madoka"},
				{0, 50, "madoka"},
				{0, 99, "madoka"},
			},
		},
		{
			name: "double",
			elems: []dist.Case[string]{
				{E: "madoka", W: 1},
				{E: "homura", W: 1},
			},
			cases: []dist.Case[string]{
				{E: "madoka", W: 1},
				{E: "homura", W: 1},
			},
			picks: []sel{
				{0, 0, "madoka"},
				{0, 1, "madoka"},
				{1, 0, "homura"},
				{1, 1, "homura"},
			},
		},
		{
			name: "unordered",
			elems: []dist.Case[string]{
				{E: "kyoko", W: 3},
				{E: "sayaka", W: 1},
			},
			cases: []dist.Case[string]{
				{E: "sayaka", W: 1},
				{E: "kyoko", W: 3},
			},
			picks: []sel{
				// Slot 0 holds sayaka with threshold 2 of 4 and aliases kyoko.
				{0, 0, "sayaka"},
				{0, 1, "sayaka"},
				{0, 2, "kyoko"},
				{0, 3, "kyoko"},
				{1, 0, "kyoko"},
				{1, 3, "kyoko"},
			},
		},
		{
			name: "zero",
			elems: []dist.Case[string]{
				{E: "mami", W: 0},
				{E: "madoka", W: 2},
			},
			cases: []dist.Case[string]{
				{E: "madoka", W: 2},
			},
			picks: []sel{
				{0, 0, "madoka"},
				{0, 1, "madoka"},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := dist.New(c.elems)
			if err != nil {
				t.Fatalf("couldn't create distribution: %v", err)
			}
			if diff := cmp.Diff(c.cases, d.Cases()); diff != "" {
				t.Errorf("wrong cases (-want/+got):\n%s", diff)
			}
			for _, p := range c.picks {
				r, err := d.Pick(p.x, p.y)
				if err != nil {
					t.Errorf("couldn't pick with variates (%d, %d): %v", p.x, p.y, err)
				}
				if r != p.w {
					t.Errorf("wrong pick with variates (%d, %d): want %v, got %v", p.x, p.y, p.w, r)
				}
			}
			aliastest.Exhaust(t, d.Table(), d.Weights())
		})
	}
}

func TestNewEmpty(t *testing.T) {
	cases := []struct {
		name  string
		elems []dist.Case[string]
	}{
		{"nil", nil},
		{"zeros", []dist.Case[string]{{E: "mami", W: 0}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d, err := dist.New(c.elems)
			if !errors.Is(err, alias.ErrEmpty) {
				t.Errorf("wrong error: want %v, got %v", alias.ErrEmpty, err)
			}
			if d != nil {
				t.Errorf("got a distribution with an error")
			}
		})
	}
}

func TestPickRange(t *testing.T) {
	d, err := dist.New([]dist.Case[int]{{E: 1, W: 1}, {E: 2, W: 2}})
	if err != nil {
		t.Fatalf("couldn't create distribution: %v", err)
	}
	r, err := d.Pick(2, 0)
	if !errors.Is(err, alias.ErrRange) {
		t.Errorf("wrong error: want %v, got %v", alias.ErrRange, err)
	}
	if r != 0 {
		t.Errorf("got non-zero category %d with an error", r)
	}
}

func TestDraw(t *testing.T) {
	d, err := dist.New(dist.FromMap(map[string]uint64{"bocchi": 1, "kita": 3}))
	if err != nil {
		t.Fatalf("couldn't create distribution: %v", err)
	}
	r := rand.New(rand.NewPCG(1, 1))
	counts := map[string]int{}
	const N = 40000
	for range N {
		counts[d.Draw(r)]++
	}
	if len(counts) != 2 {
		t.Errorf("wrong categories drawn: %v", counts)
	}
	// Expect 10000 bocchi with standard deviation about 87.
	if k := counts["bocchi"]; k < 9500 || k > 10500 {
		t.Errorf("bocchi drawn %d times of %d", k, N)
	}
}

func TestFromMap(t *testing.T) {
	cases := []struct {
		name  string
		elems map[string]uint64
		want  []dist.Case[string]
	}{
		{
			name:  "empty",
			elems: nil,
			want:  nil,
		},
		{
			name: "single",
			elems: map[string]uint64{
				"madoka": 1,
			},
			want: []dist.Case[string]{
				{E: "madoka", W: 1},
			},
		},
		{
			name: "double",
			elems: map[string]uint64{
				"madoka": 1,
				"homura": 2,
			},
			want: []dist.Case[string]{
				{E: "homura", W: 2},
				{E: "madoka", W: 1},
			},
		},
		{
			name: "zero",
			elems: map[string]uint64{
				"madoka": 1,
				"homura": 0,
			},
			want: []dist.Case[string]{
				{E: "madoka", W: 1},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := dist.FromMap(c.elems)
			if diff := cmp.Diff(c.want, r, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("wrong cases (-want/+got):\n%s", diff)
			}
		})
	}
}

var benchWeights = map[string]int{
	"bocchi": 10,
	"nijika": 6,
	"ryou":   8,
	"kita":   8,
	"seika":  2,
	"kikuri": 1,
	"pa-san": 1,
	"futari": 3,
}

func BenchmarkDraw(b *testing.B) {
	m := make(map[string]uint64, len(benchWeights))
	for k, v := range benchWeights {
		m[k] = uint64(v)
	}
	d, err := dist.New(dist.FromMap(m))
	if err != nil {
		b.Fatal(err)
	}
	r := rand.New(rand.NewPCG(1, 2))
	b.ResetTimer()
	for range b.N {
		d.Draw(r)
	}
}

// BenchmarkPickBaseline measures the linear CDF scan for comparison.
func BenchmarkPickBaseline(b *testing.B) {
	d := pick.New(pick.FromMap(benchWeights))
	r := rand.New(rand.NewPCG(1, 2))
	b.ResetTimer()
	for range b.N {
		d.Pick(r.Uint32())
	}
}
