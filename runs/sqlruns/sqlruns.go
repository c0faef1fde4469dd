// Package sqlruns records sampling runs in an SQLite database.
package sqlruns

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/vose/runs"
)

// Store is a run store backed by an SQL database.
type Store struct {
	db *sqlitex.Pool
}

var _ runs.Store = (*Store)(nil)

//go:embed schema.sql
var schemaSQL string

// Init initializes the runs schema in an SQLite DB.
// For convenience, it accepts either a single connection or a pool.
func Init[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get conn to initialize runs: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize runs schema: %w", err)
	}
	return nil
}

// Open returns a store within the given database, initializing the schema
// if needed. The db must remain open for the lifetime of the store.
func Open(ctx context.Context, db *sqlitex.Pool) (*Store, error) {
	if err := Init(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Record saves a run.
func (s *Store) Record(ctx context.Context, run *runs.Run) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to record run: %w", err)
	}
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		// Should be impossible. Explode loudly.
		go panic(fmt.Errorf("sqlruns: couldn't marshal counts %v: %w", run.Counts, err))
	}
	const insert = `INSERT INTO runs (id, dist, fingerprint, samples, counts, time, cost) VALUES (:id, :dist, :fp, :samples, :counts, :time, :cost)`
	st, err := conn.Prepare(insert)
	if err != nil {
		return fmt.Errorf("couldn't prepare statement to record run: %w", err)
	}
	st.SetBytes(":id", run.ID[:])
	st.SetText(":dist", run.Dist)
	st.SetBytes(":fp", run.Fingerprint[:])
	st.SetInt64(":samples", run.Samples)
	st.SetText(":counts", string(counts))
	st.SetInt64(":time", run.Time.UnixNano())
	st.SetInt64(":cost", run.Cost.Nanoseconds())
	if _, err := st.Step(); err != nil {
		return fmt.Errorf("couldn't insert run: %w", err)
	}
	return nil
}

// Latest returns the most recent run of a distribution.
func (s *Store) Latest(ctx context.Context, dist string) (*runs.Run, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get conn to find run: %w", err)
	}
	const sel = `SELECT id, fingerprint, samples, counts, time, cost FROM runs WHERE dist = :dist ORDER BY time DESC LIMIT 1`
	st, err := conn.Prepare(sel)
	if err != nil {
		return nil, fmt.Errorf("couldn't prepare statement to find run: %w", err)
	}
	defer st.Reset()
	st.SetText(":dist", dist)
	ok, err := st.Step()
	if err != nil {
		return nil, fmt.Errorf("couldn't find run: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w for %q", runs.ErrNoRuns, dist)
	}
	r := runs.Run{
		Dist:    dist,
		Samples: st.ColumnInt64(2),
		Time:    time.Unix(0, st.ColumnInt64(4)),
		Cost:    time.Duration(st.ColumnInt64(5)),
	}
	r.ID, err = uuid.FromBytes(bytecol(nil, st, 0))
	if err != nil {
		return nil, fmt.Errorf("couldn't decode run ID: %w", err)
	}
	if err := r.Fingerprint.Scan(bytecol(nil, st, 1)); err != nil {
		return nil, fmt.Errorf("couldn't decode fingerprint: %w", err)
	}
	if err := json.Unmarshal([]byte(st.ColumnText(3)), &r.Counts); err != nil {
		return nil, fmt.Errorf("couldn't decode counts: %w", err)
	}
	return &r, nil
}

func bytecol(d []byte, s *sqlite.Stmt, col int) []byte {
	n := s.ColumnLen(col)
	if cap(d) < n {
		d = make([]byte, n)
	}
	return d[:s.ColumnBytes(col, d[:n])]
}
