// Package histogram tallies outcomes sampled from alias tables.
package histogram

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"runtime"
	"sync"

	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/zephyrtronium/vose/variate"
)

// Sampler is a source of outcomes selected by a pair of uniform variates.
// [*alias.Table] implements Sampler.
type Sampler[P constraints.Unsigned] interface {
	// Len returns the number of outcomes.
	Len() int
	// Total returns the exclusive upper bound of the second variate.
	Total() P
	// Sample selects an outcome given x in [0, Len()) and y in [0, Total()).
	Sample(x int, y P) (int, error)
}

// Histogram counts occurrences of outcomes.
type Histogram struct {
	// Counts is the number of times each outcome occurred.
	Counts []uint64
}

// New creates an empty histogram over n outcomes.
func New(n int) *Histogram {
	return &Histogram{Counts: make([]uint64, n)}
}

// Add counts an occurrence of outcome i.
func (h *Histogram) Add(i int) {
	h.Counts[i]++
}

// Merge adds the counts of o into h. Panics if the histograms have different
// numbers of outcomes.
func (h *Histogram) Merge(o *Histogram) {
	if len(h.Counts) != len(o.Counts) {
		panic(fmt.Errorf("histogram: merge %d outcomes into %d", len(o.Counts), len(h.Counts)))
	}
	for i, c := range o.Counts {
		h.Counts[i] += c
	}
}

// N returns the total number of occurrences counted.
func (h *Histogram) N() uint64 {
	var n uint64
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Freq returns the fraction of occurrences which were outcome i.
func (h *Histogram) Freq(i int) float64 {
	n := h.N()
	if n == 0 {
		return 0
	}
	return float64(h.Counts[i]) / float64(n)
}

// Grid samples s at every cell of its variate grid.
// The result has s.Len()*s.Total() occurrences.
func Grid[P constraints.Unsigned](s Sampler[P]) (*Histogram, error) {
	h := New(s.Len())
	total := s.Total()
	for x := range s.Len() {
		for y := P(0); y < total; y++ {
			i, err := s.Sample(x, y)
			if err != nil {
				return nil, fmt.Errorf("couldn't sample cell (%d, %d): %w", x, y, err)
			}
			h.Add(i)
		}
	}
	return h, nil
}

// checkEvery is the number of samples a worker draws between checks for
// cancellation.
const checkEvery = 1 << 14

// Run draws samples from s split across workers and returns the histogram of
// outcomes. Each worker uses its own generator; given a nonzero seed and the
// same number of workers, the result is reproducible. A zero seed selects a
// random one. If workers is not positive, Run uses one per GOMAXPROCS.
//
// If ctx is canceled before all samples are drawn, the result is the
// context's error.
func Run[P constraints.Unsigned](ctx context.Context, s Sampler[P], samples, workers int, seed uint64) (*Histogram, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	n, total := s.Len(), s.Total()
	h := New(n)
	var mu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)
	per, extra := samples/workers, samples%workers
	for w := range workers {
		m := per
		if w < extra {
			m++
		}
		if m == 0 {
			continue
		}
		r := variate.New(seed, uint64(w))
		group.Go(func() error {
			local := New(n)
			for j := range m {
				if j%checkEvery == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				x, y := variate.Draw(r, n, total)
				i, err := s.Sample(x, y)
				if err != nil {
					return err
				}
				local.Add(i)
			}
			mu.Lock()
			defer mu.Unlock()
			h.Merge(local)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return h, nil
}

// ChiSquare computes Pearson's chi-squared statistic for h against the
// distribution given by weights, along with its degrees of freedom.
// Outcomes with zero weight do not contribute degrees of freedom; if any of
// them occurred, the statistic is +Inf.
// The weights must sum without overflowing P, as for an alias table.
func ChiSquare[P constraints.Unsigned](h *Histogram, weights []P) (x2 float64, df int) {
	if len(weights) != len(h.Counts) {
		panic(fmt.Errorf("histogram: %d weights for %d outcomes", len(weights), len(h.Counts)))
	}
	var sum P
	for _, w := range weights {
		sum += w
	}
	total := float64(sum)
	n := float64(h.N())
	obs := make([]float64, len(weights))
	exp := make([]float64, len(weights))
	for i, w := range weights {
		obs[i] = float64(h.Counts[i])
		if w != 0 {
			df++
			exp[i] = n * float64(w) / total
		}
	}
	// An observed outcome with zero expectation divides by zero, giving +Inf.
	return stat.ChiSquare(obs, exp), df - 1
}

// Alpha001 is the significance level for a test at p = 0.001.
const Alpha001 = 0.001

// Critical returns the critical value of the chi-squared distribution with
// df degrees of freedom at significance level alpha.
func Critical(df int, alpha float64) float64 {
	if df <= 0 {
		return 0
	}
	return distuv.ChiSquared{K: float64(df)}.Quantile(1 - alpha)
}

// Write writes one line per outcome with its label, count, and percentage of
// all occurrences. If labels is shorter than the histogram, the outcome
// index is used instead.
func Write(w io.Writer, h *Histogram, labels []string) error {
	p := message.NewPrinter(language.English)
	n := h.N()
	for i, c := range h.Counts {
		label := fmt.Sprint(i)
		if i < len(labels) {
			label = labels[i]
		}
		var pct float64
		if n != 0 {
			pct = 100 * float64(c) / float64(n)
		}
		if _, err := p.Fprintf(w, "  %s: %d - %.2f %%\n", label, c, pct); err != nil {
			return err
		}
	}
	return nil
}
