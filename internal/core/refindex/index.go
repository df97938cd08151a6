// Package refindex builds in-memory lookup indices over reference-entity
// snapshots and resolves multi-hop natural-key chains to warehouse surrogate
// keys.
//
// Indices are built once per run and are read-only afterwards; every fact
// candidate resolves against the same precomputed index rather than
// rescanning raw batches.
package refindex

import (
	"log/slog"
	"time"

	"github.com/edulake/edulake-dwh/internal/core/convert"
	"github.com/edulake/edulake-dwh/internal/snapshot"
)

// Unresolved is the sentinel surrogate key for a chain that could not be
// resolved. It is a degraded value, never an error.
const Unresolved int64 = 0

// Index maps a reference entity's natural key to its most-recently-observed
// record, by updated_at. Ties break last-seen-wins under the stable batch
// order, which keeps resolution deterministic for a given snapshot set.
type Index struct {
	entity    string
	byKey     map[int64]snapshot.Record
	updatedAt map[int64]time.Time
}

// Build indexes records by keyField, keeping the latest observation per key.
// Records whose key converts to zero are skipped: zero is the unresolved
// marker and must never match.
func Build(entity, keyField string, records []snapshot.Record) *Index {
	ix := &Index{
		entity:    entity,
		byKey:     make(map[int64]snapshot.Record, len(records)),
		updatedAt: make(map[int64]time.Time, len(records)),
	}
	for _, rec := range records {
		key := convert.Int(rec, keyField)
		if key == Unresolved {
			continue
		}
		seen := convert.Time(rec, "updated_at")
		if prev, ok := ix.updatedAt[key]; ok && seen.Before(prev) {
			continue
		}
		ix.byKey[key] = rec
		ix.updatedAt[key] = seen
	}
	return ix
}

// Lookup returns the latest observation for a natural key.
func (ix *Index) Lookup(key int64) (snapshot.Record, bool) {
	rec, ok := ix.byKey[key]
	return rec, ok
}

// Len reports how many distinct natural keys are indexed.
func (ix *Index) Len() int {
	return len(ix.byKey)
}

// Entity names the indexed reference entity, for log context.
func (ix *Index) Entity() string {
	return ix.entity
}

// Hop is one step of a resolution chain: query the index with the current
// key, then continue with the value of Next from the matched record.
type Hop struct {
	Index *Index
	Next  string
}

// Resolve walks a foreign-key chain from a starting natural key through the
// given hops and returns the final surrogate key. Any miss along the chain
// degrades to Unresolved with a local warning; misses are not retried and
// never block materialization of the rest of the row.
func Resolve(start int64, hops ...Hop) int64 {
	key := start
	for _, hop := range hops {
		if key == Unresolved {
			return Unresolved
		}
		rec, ok := hop.Index.Lookup(key)
		if !ok {
			slog.Warn("[RefIndex] Unresolved reference",
				"entity", hop.Index.Entity(),
				"key", key,
			)
			return Unresolved
		}
		key = convert.Int(rec, hop.Next)
	}
	return key
}
