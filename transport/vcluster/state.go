package vcluster

import (
	"fmt"
	"strings"

	"github.com/tidwall/buntdb"
)

// NodeStats is the per-node counter snapshot the harness tracks (§4.7):
// called, sniffed, pinged, successes, failures.
type NodeStats struct {
	Called    int
	Sniffed   int
	Pinged    int
	Successes int
	Failures  int
}

// statsStore keeps per-node counters in an in-memory buntdb database, keyed
// "<node>:<counter>" so a node's full counter set can be recovered with one
// ascending prefix scan (buntdb.Tx.AscendKeys), rather than hand-rolling a
// map guarded by its own mutex.
type statsStore struct {
	db *buntdb.DB
}

func newStatsStore() *statsStore {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		// buntdb's in-memory provider only fails on invalid paths; ":memory:"
		// is always valid, so this is unreachable in practice.
		panic(fmt.Sprintf("vcluster: opening in-memory buntdb: %v", err))
	}
	return &statsStore{db: db}
}

func (s *statsStore) increment(node, counter string) {
	key := node + ":" + counter
	_ = s.db.Update(func(tx *buntdb.Tx) error {
		n := 0
		if val, err := tx.Get(key); err == nil {
			fmt.Sscanf(val, "%d", &n)
		}
		n++
		_, _, err := tx.Set(key, fmt.Sprintf("%d", n), nil)
		return err
	})
}

func (s *statsStore) get(node string) NodeStats {
	var st NodeStats
	_ = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(node+":*", func(key, value string) bool {
			var n int
			fmt.Sscanf(value, "%d", &n)
			switch {
			case strings.HasSuffix(key, ":called"):
				st.Called = n
			case strings.HasSuffix(key, ":sniffed"):
				st.Sniffed = n
			case strings.HasSuffix(key, ":pinged"):
				st.Pinged = n
			case strings.HasSuffix(key, ":successes"):
				st.Successes = n
			case strings.HasSuffix(key, ":failures"):
				st.Failures = n
			}
			return true
		})
	})
	return st
}

func (s *statsStore) close() error { return s.db.Close() }
