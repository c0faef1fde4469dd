package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zephyrtronium/vose/histogram"
	"github.com/zephyrtronium/vose/metrics"
	"github.com/zephyrtronium/vose/runs"
	"github.com/zephyrtronium/vose/variate"
)

// Lab holds the distributions available for sampling.
type Lab struct {
	// dists is the distributions by name. It is not modified after
	// construction.
	dists map[string]*distribution
	// runs records sampling runs. It may be nil.
	runs runs.Store
	// sampling is the default sampling parameters.
	sampling SamplingCfg
	// rng is a pool of generators for serving individual samples.
	rng variate.Pool
	// metrics is a collection of Prometheus metrics.
	metrics *metrics.Metrics
}

// NewLab creates a lab over the distributions.
func NewLab(dists map[string]*distribution, store runs.Store, sampling SamplingCfg, m *metrics.Metrics) *Lab {
	if sampling.Samples <= 0 {
		sampling.Samples = 1e6
	}
	return &Lab{
		dists:    dists,
		runs:     store,
		sampling: sampling,
		metrics:  m,
	}
}

// newLab loads a lab from configuration. If record is true and the
// configuration names a run store, the lab records runs in it.
// The returned function closes the run store.
func newLab(ctx context.Context, cfg *Config, record bool) (*Lab, func() error, error) {
	m := newMetrics()
	dists, err := loadDists(ctx, cfg.Dist, m)
	if err != nil {
		return nil, nil, err
	}
	if len(dists) == 0 {
		return nil, nil, errors.New("no distributions configured")
	}
	var store runs.Store
	close := func() error { return nil }
	if record {
		s, c, err := loadDBs(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		if s != nil {
			store, close = s, c
		}
	}
	return NewLab(dists, store, cfg.Sampling, m), close, nil
}

// dist gets a distribution by name.
func (lab *Lab) dist(name string) (*distribution, error) {
	d := lab.dists[name]
	if d == nil {
		return nil, fmt.Errorf("no distribution named %q", name)
	}
	return d, nil
}

// gridLimit is the largest grid that check tests exhaustively.
const gridLimit = 1 << 24

// check verifies that d's table produces its weights. Small tables are
// checked cell by cell; larger ones are sampled and tested with chi-square.
// The result describes the check.
func (lab *Lab) check(ctx context.Context, d *distribution, workers int, seed uint64) (string, error) {
	tab := d.d.Table()
	n, total := uint64(tab.Len()), tab.Total()
	weights := d.d.Weights()
	if total <= gridLimit/n {
		h, err := histogram.Grid(tab)
		if err != nil {
			return "", err
		}
		for i, c := range h.Counts {
			if want := n * weights[i]; c != want {
				return "", fmt.Errorf("outcome %d occupies %d cells, want %d", i, c, want)
			}
		}
		return fmt.Sprintf("exact over %d cells", n*total), nil
	}
	run, err := lab.run(ctx, d, 0, workers, seed)
	if err != nil {
		return "", err
	}
	stat, df := histogram.ChiSquare(&histogram.Histogram{Counts: run.Counts}, weights)
	crit := histogram.Critical(df, histogram.Alpha001)
	if stat > crit {
		return "", fmt.Errorf("chi-square %.3f exceeds critical value %.3f with %d degrees of freedom", stat, crit, df)
	}
	return fmt.Sprintf("chi-square %.3f <= %.3f with %d degrees of freedom over %d samples", stat, crit, df, run.Samples), nil
}

// draw draws n labeled samples from d.
func (lab *Lab) draw(d *distribution, n int) []string {
	r := lab.rng.Get()
	defer lab.rng.Put(r)
	s := make([]string, n)
	for i := range s {
		s[i] = d.d.Draw(r)
	}
	lab.metrics.SamplesDrawn.Observe(float64(n), d.name)
	return s
}

// run performs a sampling run on d and records it if the lab has a run store.
// If samples or workers are not positive, the lab defaults are used.
func (lab *Lab) run(ctx context.Context, d *distribution, samples, workers int, seed uint64) (*runs.Run, error) {
	if samples <= 0 {
		samples = lab.sampling.Samples
	}
	if workers <= 0 {
		workers = lab.sampling.Workers
	}
	if seed == 0 {
		seed = lab.sampling.Seed
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	run := runs.Run{
		ID:          uuid.New(),
		Dist:        d.name,
		Fingerprint: d.fp,
		Samples:     int64(samples),
		Time:        time.Now(),
	}
	log := slog.With(slog.String("dist", d.name), slog.Any("run", run.ID))
	log.InfoContext(ctx, "start run", slog.Int("samples", samples), slog.Int("workers", workers), slog.Uint64("seed", seed))
	h, err := histogram.Run(ctx, d.d.Table(), samples, workers, seed)
	if err != nil {
		lab.metrics.SampleErrors.Observe(1, d.name)
		return nil, fmt.Errorf("couldn't sample %s: %w", d.name, err)
	}
	run.Cost = time.Since(run.Time)
	run.Counts = h.Counts
	lab.metrics.SamplesDrawn.Observe(float64(samples), d.name)
	lab.metrics.RunLatency.Observe(run.Cost.Seconds(), d.name)
	log.InfoContext(ctx, "finished run", slog.Duration("cost", run.Cost))
	if lab.runs != nil {
		if err := lab.runs.Record(ctx, &run); err != nil {
			return &run, fmt.Errorf("couldn't record run of %s: %w", d.name, err)
		}
	}
	return &run, nil
}

// newMetrics creates the lab's metrics.
func newMetrics() *metrics.Metrics {
	return &metrics.Metrics{
		SamplesDrawn: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "vose",
					Subsystem: "sample",
					Name:      "drawn",
					Help:      "Number of samples drawn.",
				},
				[]string{"dist"},
			),
		),
		SampleErrors: metrics.NewPromCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "vose",
					Subsystem: "sample",
					Name:      "errors",
					Help:      "Number of sampling runs that failed.",
				},
				[]string{"dist"},
			),
		),
		BuildLatency: metrics.NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   []float64{1e-6, 1e-5, 1e-4, 1e-3, 0.01, 0.1, 1},
					Namespace: "vose",
					Subsystem: "table",
					Name:      "build_latency",
					Help:      "How long it takes to build an alias table in seconds",
				},
				[]string{"dist"},
			),
		),
		RunLatency: metrics.NewPromObserverVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 5, 10},
					Namespace: "vose",
					Subsystem: "sample",
					Name:      "run_latency",
					Help:      "How long a sampling run takes in seconds",
				},
				[]string{"dist"},
			),
		),
		StreamClients: metrics.NewPromGauge(
			prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "vose",
					Subsystem: "api",
					Name:      "stream_clients",
					Help:      "Number of connected websocket sample streams.",
				},
			),
		),
	}
}
