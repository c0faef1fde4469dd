package kvruns

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json"

	"github.com/zephyrtronium/vose/runs"
)

/*
Run key structure:
Dist × Time × UUID
- Dist is the distribution name followed by \x00. Names containing \x00
	are rejected.
- Time is the bitwise complement of the start time in nanoseconds since the
	Unix epoch, big endian, so that newer runs sort first.
- UUID is the raw uuid.

The value is the JSON encoding of the rest of the run.

Operations:
- Record: Construct the key and write the value.
- Latest: Iterate forward over the prefix dist × \x00; the first key is the
	newest run.
*/

// Store is a run store backed by a key-value database.
type Store struct {
	db *badger.DB
}

var _ runs.Store = (*Store)(nil)

// New returns a store within the given database.
// The db must remain open for the lifetime of the store.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

type value struct {
	Fingerprint []byte   `json:"fp"`
	Samples     int64    `json:"samples"`
	Counts      []uint64 `json:"counts"`
	Time        int64    `json:"time"`
	Cost        int64    `json:"cost"`
}

// checkName rejects distribution names that would share another's prefix.
func checkName(dist string) error {
	if strings.IndexByte(dist, 0) >= 0 {
		return fmt.Errorf("distribution name %q contains NUL", dist)
	}
	return nil
}

func prefix(b []byte, dist string) []byte {
	b = append(b, dist...)
	return append(b, 0)
}

func key(b []byte, run *runs.Run) []byte {
	b = prefix(b, run.Dist)
	b = binary.BigEndian.AppendUint64(b, ^uint64(run.Time.UnixNano()))
	return append(b, run.ID[:]...)
}

// Record saves a run.
func (s *Store) Record(ctx context.Context, run *runs.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(run.Dist); err != nil {
		return err
	}
	v := value{
		Fingerprint: run.Fingerprint[:],
		Samples:     run.Samples,
		Counts:      run.Counts,
		Time:        run.Time.UnixNano(),
		Cost:        run.Cost.Nanoseconds(),
	}
	b, err := json.Marshal(&v)
	if err != nil {
		// Should be impossible. Explode loudly.
		go panic(fmt.Errorf("kvruns: couldn't marshal run %#v: %w", v, err))
	}
	k := key(make([]byte, 0, len(run.Dist)+1+8+16), run)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, b)
	})
	if err != nil {
		return fmt.Errorf("couldn't record run: %w", err)
	}
	return nil
}

// Latest returns the most recent run of a distribution.
func (s *Store) Latest(ctx context.Context, dist string) (*runs.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(dist); err != nil {
		return nil, err
	}
	p := prefix(nil, dist)
	var k []byte
	var v value
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(p)
		if !it.ValidForPrefix(p) {
			return fmt.Errorf("%w for %q", runs.ErrNoRuns, dist)
		}
		item := it.Item()
		k = item.KeyCopy(nil)
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
	})
	if err != nil {
		return nil, err
	}
	id, ok := bytes.CutPrefix(k, p)
	if !ok || len(id) != 8+16 {
		return nil, fmt.Errorf("malformed run key %q", k)
	}
	r := runs.Run{
		Dist:    dist,
		Samples: v.Samples,
		Counts:  v.Counts,
		Time:    time.Unix(0, v.Time),
		Cost:    time.Duration(v.Cost),
	}
	copy(r.ID[:], id[8:])
	if err := r.Fingerprint.Scan(v.Fingerprint); err != nil {
		return nil, fmt.Errorf("couldn't decode fingerprint: %w", err)
	}
	return &r, nil
}
