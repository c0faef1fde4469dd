package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/vose/dist"
	"github.com/zephyrtronium/vose/fingerprint"
	"github.com/zephyrtronium/vose/metrics"
	"github.com/zephyrtronium/vose/runs"
	"github.com/zephyrtronium/vose/runs/kvruns"
	"github.com/zephyrtronium/vose/runs/sqlruns"
)

// Load loads a configuration from TOML.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	return &cfg, &md, nil
}

// loadConfig opens and loads the config file named by path.
func loadConfig(ctx context.Context, path string) (*Config, *toml.MetaData, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	cfg, md, err := Load(ctx, r)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't load config: %w", err)
	}
	return cfg, md, nil
}

// distribution is a named distribution loaded from configuration.
type distribution struct {
	name string
	d    *dist.Dist[string]
	fp   fingerprint.Hash
	// stream is the pacing of websocket sample streams.
	stream Rate
}

// loadDists builds the distributions named in the configuration.
// Distributions listing weights are labeled by index.
func loadDists(ctx context.Context, cfg map[string]*DistCfg, m *metrics.Metrics) (map[string]*distribution, error) {
	r := make(map[string]*distribution, len(cfg))
	for nm, c := range cfg {
		if strings.ContainsRune(nm, 0) {
			return nil, fmt.Errorf("distribution name %q contains NUL", nm)
		}
		var cases []dist.Case[string]
		switch {
		case len(c.Weights) != 0 && len(c.Cases) != 0:
			return nil, fmt.Errorf("dist.%s has both weights and cases; use exactly one", nm)
		case len(c.Weights) != 0:
			cases = make([]dist.Case[string], len(c.Weights))
			for i, w := range c.Weights {
				cases[i] = dist.Case[string]{E: strconv.Itoa(i), W: w}
			}
		case len(c.Cases) != 0:
			cases = dist.FromMap(c.Cases)
		default:
			return nil, fmt.Errorf("dist.%s has neither weights nor cases", nm)
		}
		start := time.Now()
		d, err := dist.New(cases)
		if err != nil {
			return nil, fmt.Errorf("bad distribution dist.%s: %w", nm, err)
		}
		if m != nil {
			m.BuildLatency.Observe(time.Since(start).Seconds(), nm)
		}
		stream := c.Stream
		if stream.Every <= 0 {
			stream.Every = 1
		}
		if stream.Num <= 0 {
			stream.Num = 1
		}
		r[nm] = &distribution{
			name:   nm,
			d:      d,
			fp:     fingerprint.Of(d.Weights()),
			stream: stream,
		}
		slog.DebugContext(ctx, "loaded distribution",
			slog.String("name", nm),
			slog.Int("outcomes", d.Len()),
			slog.Uint64("total", d.Total()),
			slog.String("fingerprint", r[nm].fp.String()),
		)
	}
	return r, nil
}

// labels returns the labels of the distribution's outcomes in table order.
func (d *distribution) labels() []string {
	c := d.d.Cases()
	r := make([]string, len(c))
	for i, v := range c {
		r[i] = v.E
	}
	return r
}

// limiter creates a rate limiter for a stream of the distribution.
func (d *distribution) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(fseconds(d.stream.Every)), d.stream.Num)
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// loadDBs opens the run store named by the configuration.
// If no store is configured, the results are all nil.
// Otherwise, close releases the underlying database.
func loadDBs(ctx context.Context, cfg DBCfg) (store runs.Store, close func() error, err error) {
	if cfg.KV != "" && cfg.SQL != "" {
		return nil, nil, errors.New("multiple run stores requested; use at most one")
	}
	switch {
	case cfg.KV != "":
		slog.DebugContext(ctx, "using kvruns", slog.String("path", cfg.KV), slog.String("flags", cfg.KVFlag))
		opts := badger.DefaultOptions(cfg.KV)
		opts = opts.WithLogger(nil)
		opts = opts.WithCompression(options.None)
		kv, err := badger.Open(opts.FromSuperFlag(cfg.KVFlag))
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open kvruns db: %w", err)
		}
		return kvruns.New(kv), kv.Close, nil
	case cfg.SQL != "":
		slog.DebugContext(ctx, "using sqlruns", slog.String("path", cfg.SQL))
		sql, err := sqlitex.NewPool(cfg.SQL, sqlitex.PoolOptions{})
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open sqlruns db: %w", err)
		}
		s, err := sqlruns.Open(ctx, sql)
		if err != nil {
			sql.Close()
			return nil, nil, fmt.Errorf("couldn't open run store: %w", err)
		}
		return s, sql.Close, nil
	default:
		slog.DebugContext(ctx, "no run store")
		return nil, nil, nil
	}
}

// Config is the top-level configuration.
type Config struct {
	// DB is the table of database connection strings.
	DB DBCfg `toml:"db"`
	// HTTP is the table of API server configuration.
	HTTP HTTPCfg `toml:"http"`
	// Sampling is the table of default sampling parameters.
	Sampling SamplingCfg `toml:"sampling"`
	// Dist is the set of distributions. Each key names one distribution.
	Dist map[string]*DistCfg `toml:"dist"`
}

// DBCfg is the configuration of the run store. At most one of SQL and KV
// may be set.
type DBCfg struct {
	SQL    string `toml:"sql"`
	KV     string `toml:"kv"`
	KVFlag string `toml:"kvflag"`
}

// HTTPCfg is the configuration of the API server.
type HTTPCfg struct {
	Listen string `toml:"listen"`
}

// SamplingCfg is the configuration of sampling runs.
type SamplingCfg struct {
	// Samples is the default number of samples per run.
	Samples int `toml:"samples"`
	// Workers is the number of goroutines sampling concurrently.
	// Zero means one per GOMAXPROCS.
	Workers int `toml:"workers"`
	// Seed is the seed for sampling runs. Zero means a random seed.
	Seed uint64 `toml:"seed"`
}

// DistCfg is the configuration for a distribution.
// Exactly one of Weights and Cases must be given.
type DistCfg struct {
	// Weights is a list of weights for outcomes labeled by index.
	Weights []uint64 `toml:"weights"`
	// Cases is the outcomes and their weights.
	Cases map[string]uint64 `toml:"cases"`
	// Stream is the rate limit for websocket sample streams.
	Stream Rate `toml:"stream"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.DB.SQL,
		&cfg.DB.KV,
		&cfg.DB.KVFlag,
		&cfg.HTTP.Listen,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
}

// sortedNames returns the names of distributions in sorted order.
func sortedNames(m map[string]*distribution) []string {
	r := make([]string, 0, len(m))
	for k := range m {
		r = append(r, k)
	}
	slices.Sort(r)
	return r
}
