// Package runstest provides integration testing facilities for run stores.
package runstest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/zephyrtronium/vose/fingerprint"
	"github.com/zephyrtronium/vose/runs"
)

// Test runs the integration test suite against stores produced by new.
//
// If a store cannot be created without error, new should call t.Fatal.
func Test(ctx context.Context, t *testing.T, new func(context.Context) runs.Store) {
	t.Run("latest", testLatest(ctx, new(ctx)))
	t.Run("empty", testEmpty(ctx, new(ctx)))
	t.Run("separate", testSeparate(ctx, new(ctx)))
}

var records = [...]runs.Run{
	{
		ID:          uuid.UUID{1},
		Dist:        "kessoku",
		Fingerprint: fingerprint.Of([]uint64{1, 2, 3, 4}),
		Samples:     10,
		Counts:      []uint64{1, 2, 3, 4},
		Time:        time.Unix(1, 0),
		Cost:        time.Millisecond,
	},
	{
		ID:          uuid.UUID{2},
		Dist:        "kessoku",
		Fingerprint: fingerprint.Of([]uint64{1, 2, 3, 4}),
		Samples:     20,
		Counts:      []uint64{2, 4, 6, 8},
		Time:        time.Unix(3, 0),
		Cost:        2 * time.Millisecond,
	},
	{
		ID:          uuid.UUID{3},
		Dist:        "kessoku",
		Fingerprint: fingerprint.Of([]uint64{1, 1}),
		Samples:     2,
		Counts:      []uint64{1, 1},
		Time:        time.Unix(2, 0),
		Cost:        time.Second,
	},
	{
		ID:          uuid.UUID{4},
		Dist:        "sickhack",
		Fingerprint: fingerprint.Of([]uint64{5}),
		Samples:     7,
		Counts:      []uint64{7},
		Time:        time.Unix(4, 0),
		Cost:        time.Microsecond,
	},
	{
		ID:          uuid.UUID{5},
		Dist:        "kessoku band",
		Fingerprint: fingerprint.Of([]uint64{0, 9}),
		Samples:     9,
		Counts:      []uint64{0, 9},
		Time:        time.Unix(5, 0),
		Cost:        time.Minute,
	},
}

func record(ctx context.Context, t *testing.T, s runs.Store) {
	t.Helper()
	for i := range records {
		if err := s.Record(ctx, &records[i]); err != nil {
			t.Fatalf("couldn't record run %v: %v", records[i].ID, err)
		}
	}
}

func eqTime() cmp.Option {
	return cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
}

func testLatest(ctx context.Context, s runs.Store) func(t *testing.T) {
	return func(t *testing.T) {
		record(ctx, t, s)
		got, err := s.Latest(ctx, "kessoku")
		if err != nil {
			t.Fatalf("couldn't get latest run: %v", err)
		}
		// Record order differs from time order.
		want := &records[1]
		if diff := cmp.Diff(want, got, eqTime(), cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("wrong latest run (-want/+got):\n%s", diff)
		}
	}
}

func testEmpty(ctx context.Context, s runs.Store) func(t *testing.T) {
	return func(t *testing.T) {
		got, err := s.Latest(ctx, "kessoku")
		if !errors.Is(err, runs.ErrNoRuns) {
			t.Errorf("wrong error from empty store: want %v, got %v", runs.ErrNoRuns, err)
		}
		if got != nil {
			t.Errorf("got a run from empty store: %+v", got)
		}
	}
}

func testSeparate(ctx context.Context, s runs.Store) func(t *testing.T) {
	return func(t *testing.T) {
		record(ctx, t, s)
		cases := []struct {
			dist string
			want *runs.Run
		}{
			{"sickhack", &records[3]},
			{"kessoku band", &records[4]},
		}
		for _, c := range cases {
			got, err := s.Latest(ctx, c.dist)
			if err != nil {
				t.Errorf("couldn't get latest run of %q: %v", c.dist, err)
				continue
			}
			if diff := cmp.Diff(c.want, got, eqTime(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("wrong latest run of %q (-want/+got):\n%s", c.dist, diff)
			}
		}
		if _, err := s.Latest(ctx, "kess"); !errors.Is(err, runs.ErrNoRuns) {
			t.Errorf("wrong error for prefix of a distribution name: want %v, got %v", runs.ErrNoRuns, err)
		}
	}
}
