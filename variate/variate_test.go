package variate_test

import (
	"sync"
	"testing"

	"github.com/zephyrtronium/vose/variate"
)

func TestDrawRange(t *testing.T) {
	r := variate.New(1, 1)
	for range 10000 {
		x, y := variate.Draw(r, 7, uint16(13))
		if x < 0 || x >= 7 {
			t.Fatalf("x out of range: %d", x)
		}
		if y >= 13 {
			t.Fatalf("y out of range: %d", y)
		}
	}
}

func TestDrawCovers(t *testing.T) {
	r := variate.New(2, 3)
	var seen [3][5]bool
	for range 1000 {
		x, y := variate.Draw(r, 3, uint8(5))
		seen[x][y] = true
	}
	for x, row := range seen {
		for y, ok := range row {
			if !ok {
				t.Errorf("never drew (%d, %d)", x, y)
			}
		}
	}
}

func TestNewReproducible(t *testing.T) {
	a, b := variate.New(5, 6), variate.New(5, 6)
	for i := range 100 {
		if u, v := a.Uint64(), b.Uint64(); u != v {
			t.Fatalf("generators diverged at %d: %#x vs %#x", i, u, v)
		}
	}
}

func TestPool(t *testing.T) {
	var p variate.Pool
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				r := p.Get()
				if r == nil {
					t.Error("nil generator from pool")
					return
				}
				variate.Draw(r, 4, uint64(100))
				p.Put(r)
			}
		}()
	}
	wg.Wait()
}
