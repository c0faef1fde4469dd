package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zephyrtronium/vose/runs"
)

// maxSamples is the largest number of samples served in one request.
const maxSamples = 4096

func (lab *Lab) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	return lab.serve(ctx, l, mux, metrics)
}

// serve serves the API on l until ctx is canceled.
func (lab *Lab) serve(ctx context.Context, l net.Listener, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/allocs:objects|/gc/heap/goal:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	lab.routes(mux)
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// routes registers the lab's API handlers.
func (lab *Lab) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/dist", lab.apiDists)
	mux.HandleFunc("GET /api/dist/{name}", lab.apiTable)
	mux.HandleFunc("GET /api/sample/{name}", lab.apiSample)
	mux.HandleFunc("GET /api/stream/{name}", lab.apiStream)
	mux.HandleFunc("GET /api/runs/{name}", lab.apiRun)
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.WriteHeader(status)
	w.Write(b)
}

func respond(ctx context.Context, log *slog.Logger, w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

type apiDist struct {
	Name        string `json:"name"`
	Outcomes    int    `json:"outcomes"`
	Total       uint64 `json:"total"`
	Fingerprint string `json:"fingerprint"`
}

type apiSlot struct {
	Outcome   string `json:"outcome"`
	Weight    uint64 `json:"weight"`
	Threshold uint64 `json:"threshold"`
	Alias     string `json:"alias,omitzero"`
}

type apiRun struct {
	ID          string   `json:"id"`
	Dist        string   `json:"dist"`
	Fingerprint string   `json:"fingerprint"`
	Samples     int64    `json:"samples"`
	Counts      []uint64 `json:"counts"`
	Labels      []string `json:"labels,omitzero"`
	Time        string   `json:"time"`
	Cost        float64  `json:"cost"`
	Current     bool     `json:"current"`
}

func (lab *Lab) apiDists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "dists"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	u := struct {
		Data   []apiDist `json:"data"`
		Status int       `json:"status"`
	}{
		Data:   make([]apiDist, 0, len(lab.dists)),
		Status: http.StatusOK,
	}
	for _, nm := range sortedNames(lab.dists) {
		d := lab.dists[nm]
		u.Data = append(u.Data, apiDist{
			Name:        nm,
			Outcomes:    d.d.Len(),
			Total:       d.d.Total(),
			Fingerprint: d.fp.String(),
		})
	}
	respond(ctx, log, w, &u)
}

func (lab *Lab) apiTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "table"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	d, err := lab.dist(r.PathValue("name"))
	if err != nil {
		log.WarnContext(ctx, "no such dist", slog.Any("err", err))
		jsonerror(w, http.StatusNotFound, err.Error())
		return
	}
	tab := d.d.Table()
	labels := d.labels()
	weights := d.d.Weights()
	u := struct {
		Data   apiDist   `json:"data"`
		Slots  []apiSlot `json:"slots"`
		Status int       `json:"status"`
	}{
		Data: apiDist{
			Name:        d.name,
			Outcomes:    tab.Len(),
			Total:       tab.Total(),
			Fingerprint: d.fp.String(),
		},
		Slots:  make([]apiSlot, tab.Len()),
		Status: http.StatusOK,
	}
	for i := range u.Slots {
		t, k, ok := tab.Slot(i)
		u.Slots[i] = apiSlot{Outcome: labels[i], Weight: weights[i], Threshold: t}
		if ok {
			u.Slots[i].Alias = labels[k]
		}
	}
	respond(ctx, log, w, &u)
}

func (lab *Lab) apiSample(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "sample"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	d, err := lab.dist(r.PathValue("name"))
	if err != nil {
		log.WarnContext(ctx, "no such dist", slog.Any("err", err))
		jsonerror(w, http.StatusNotFound, err.Error())
		return
	}
	n := 1
	if s := r.FormValue("n"); s != "" {
		n, err = strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxSamples {
			log.WarnContext(ctx, "bad request", slog.String("n", s), slog.Any("err", err))
			jsonerror(w, http.StatusBadRequest, "invalid sample count")
			return
		}
	}
	u := struct {
		Data   []string `json:"data"`
		Status int      `json:"status"`
	}{
		Data:   lab.draw(d, n),
		Status: http.StatusOK,
	}
	respond(ctx, log, w, &u)
}

func (lab *Lab) apiStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "stream"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	d, err := lab.dist(r.PathValue("name"))
	if err != nil {
		log.WarnContext(ctx, "no such dist", slog.Any("err", err))
		w.Header().Set("Content-Type", "application/json")
		jsonerror(w, http.StatusNotFound, err.Error())
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the response.
		log.WarnContext(ctx, "websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.CloseNow()
	lab.metrics.StreamClients.Observe(1)
	defer lab.metrics.StreamClients.Observe(-1)
	// We never expect messages from the client. CloseRead handles control
	// frames and cancels the context when the client goes away.
	ctx = conn.CloseRead(ctx)
	lim := d.limiter()
	var seq int64
	for {
		if err := lim.Wait(ctx); err != nil {
			log.InfoContext(ctx, "stream closed", slog.Int64("sent", seq), slog.Any("err", err))
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		seq++
		v := struct {
			Seq     int64  `json:"seq"`
			Outcome string `json:"outcome"`
		}{
			Seq:     seq,
			Outcome: lab.draw(d, 1)[0],
		}
		b, err := json.Marshal(&v)
		if err != nil {
			panic(err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			log.InfoContext(ctx, "stream write failed", slog.Int64("sent", seq-1), slog.Any("err", err))
			return
		}
	}
}

func (lab *Lab) apiRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With(slog.String("api", "runs"), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	defer log.InfoContext(ctx, "done")
	w.Header().Set("Content-Type", "application/json")
	name := r.PathValue("name")
	if lab.runs == nil {
		log.WarnContext(ctx, "no run store")
		jsonerror(w, http.StatusNotFound, "no run store configured")
		return
	}
	run, err := lab.runs.Latest(ctx, name)
	switch {
	case err == nil: // do nothing
	case errors.Is(err, runs.ErrNoRuns):
		log.WarnContext(ctx, "no runs", slog.String("dist", name))
		jsonerror(w, http.StatusNotFound, err.Error())
		return
	default:
		log.ErrorContext(ctx, "couldn't get latest run", slog.String("dist", name), slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	u := struct {
		Data   apiRun `json:"data"`
		Status int    `json:"status"`
	}{
		Data: apiRun{
			ID:          run.ID.String(),
			Dist:        run.Dist,
			Fingerprint: run.Fingerprint.String(),
			Samples:     run.Samples,
			Counts:      run.Counts,
			Time:        run.Time.Format(time.RFC3339Nano),
			Cost:        run.Cost.Seconds(),
		},
		Status: http.StatusOK,
	}
	// Labels only apply if the distribution is the one that was sampled.
	if d := lab.dists[name]; d != nil && d.fp == run.Fingerprint {
		u.Data.Labels = d.labels()
		u.Data.Current = true
	}
	respond(ctx, log, w, &u)
}
