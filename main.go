package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zephyrtronium/vose/alias"
	"github.com/zephyrtronium/vose/histogram"
)

var app = cli.Command{
	Name:  "vose",
	Usage: "Integer alias method sampling",

	Flags: []cli.Flag{
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:  "demo",
			Usage: "Sample triangular weights and print the histogram",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "n",
					Usage: "Number of samples to draw",
					Value: 1e6,
				},
				&flagWorkers,
				&flagSeed,
			},
			Action: cliDemo,
		},
		{
			Name:  "sample",
			Usage: "Sample a configured distribution and print the histogram",
			Flags: []cli.Flag{
				&flagConfig,
				&flagDist,
				&cli.IntFlag{
					Name:  "n",
					Usage: "Number of samples to draw; defaults to sampling.samples",
				},
				&flagWorkers,
				&flagSeed,
				&cli.BoolFlag{
					Name:  "record",
					Usage: "Record the run in the configured run store",
				},
			},
			Action: cliSample,
		},
		{
			Name:  "table",
			Usage: "Print the alias table of a configured distribution",
			Flags: []cli.Flag{
				&flagConfig,
				&flagDist,
			},
			Action: cliTable,
		},
		{
			Name:  "check",
			Usage: "Verify that every configured distribution samples its weights",
			Flags: []cli.Flag{
				&flagConfig,
				&flagWorkers,
				&flagSeed,
			},
			Action: cliCheck,
		},
		{
			Name:    "serve",
			Aliases: []string{"run"},
			Usage:   "Serve samples over HTTP",
			Flags: []cli.Flag{
				&flagConfig,
			},
			Action: cliServe,
		},
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func cliDemo(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	return demo(ctx, os.Stdout, int(cmd.Int("n")), int(cmd.Int("workers")), cmd.Uint("seed"))
}

// demo samples 32 triangular weights and writes the weights, their total,
// and the histogram of results to w.
func demo(ctx context.Context, w io.Writer, samples, workers int, seed uint64) error {
	weights := make([]uint64, 32)
	p := message.NewPrinter(language.English)
	p.Fprintln(w, "Probabilities:")
	for i := range weights {
		weights[i] = uint64(i) * 1000
		p.Fprintf(w, "  %d: %d\n", i, weights[i])
	}
	tab, err := alias.New(weights)
	if err != nil {
		return fmt.Errorf("couldn't build table: %w", err)
	}
	p.Fprintf(w, "Total: %d\n\n", tab.Total())
	h, err := histogram.Run(ctx, tab, samples, workers, seed)
	if err != nil {
		return fmt.Errorf("couldn't sample: %w", err)
	}
	p.Fprintf(w, "Sampling results (%d samples):\n", samples)
	return histogram.Write(w, h, nil)
}

func cliSample(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	lab, close, err := newLab(ctx, cfg, cmd.Bool("record"))
	if err != nil {
		return err
	}
	defer close()
	d, err := lab.dist(cmd.String("dist"))
	if err != nil {
		return err
	}
	run, err := lab.run(ctx, d, int(cmd.Int("n")), int(cmd.Int("workers")), cmd.Uint("seed"))
	if err != nil {
		if run == nil {
			return err
		}
		// Sampling succeeded, but recording failed. Still show the results.
		slog.ErrorContext(ctx, "couldn't record run", slog.Any("err", err))
	}
	h := &histogram.Histogram{Counts: run.Counts}
	p := message.NewPrinter(language.English)
	p.Printf("Sampling results for %s (%d samples, %v):\n", d.name, run.Samples, run.Cost)
	if err := histogram.Write(os.Stdout, h, d.labels()); err != nil {
		return err
	}
	stat, df := histogram.ChiSquare(h, d.d.Weights())
	p.Printf("Chi-square: %.3f with %d degrees of freedom (critical %.3f)\n", stat, df, histogram.Critical(df, histogram.Alpha001))
	return nil
}

func cliTable(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	lab, close, err := newLab(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer close()
	d, err := lab.dist(cmd.String("dist"))
	if err != nil {
		return err
	}
	return writeTable(os.Stdout, d)
}

// writeTable writes one line per slot of d's alias table.
func writeTable(w io.Writer, d *distribution) error {
	tab := d.d.Table()
	labels := d.labels()
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "%s: %d outcomes, total %d, fingerprint %v\n", d.name, tab.Len(), tab.Total(), d.fp)
	for i := range tab.Len() {
		u, k, ok := tab.Slot(i)
		var err error
		if ok {
			_, err = p.Fprintf(w, "  %d %s: keep below %d, else %d %s\n", i, labels[i], u, k, labels[k])
		} else {
			_, err = p.Fprintf(w, "  %d %s: always\n", i, labels[i])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func cliCheck(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	lab, close, err := newLab(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer close()
	var bad []string
	for _, nm := range sortedNames(lab.dists) {
		d := lab.dists[nm]
		msg, err := lab.check(ctx, d, int(cmd.Int("workers")), cmd.Uint("seed"))
		if err != nil {
			slog.ErrorContext(ctx, "check failed", slog.String("dist", nm), slog.Any("err", err))
			fmt.Printf("FAIL %s: %v\n", nm, err)
			bad = append(bad, nm)
			continue
		}
		fmt.Printf("ok   %s: %s\n", nm, msg)
	}
	if len(bad) != 0 {
		return fmt.Errorf("%d distributions failed: %s", len(bad), strings.Join(bad, ", "))
	}
	return nil
}

func cliServe(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadConfig(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	lab, close, err := newLab(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer close()
	if cfg.HTTP.Listen == "" {
		return errors.New("no http.listen address configured")
	}
	return lab.api(ctx, cfg.HTTP.Listen, new(http.ServeMux), lab.metrics.Collectors())
}

var (
	flagConfig = cli.StringFlag{
		Name:     "config",
		Required: true,
		Usage:    "TOML config file",
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagDist = cli.StringFlag{
		Name:     "dist",
		Required: true,
		Usage:    "Name of the configured distribution",
	}

	flagWorkers = cli.IntFlag{
		Name:  "workers",
		Usage: "Number of sampling goroutines; 0 means GOMAXPROCS",
	}

	flagSeed = cli.UintFlag{
		Name:  "seed",
		Usage: "Seed for sampling; 0 means random",
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}
