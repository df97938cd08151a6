package scd2

import (
	"sort"
	"time"

	"github.com/edulake/edulake-dwh/internal/core/convert"
)

// BuildVersions turns a merged change history into reconciled dimension
// versions, per natural key:
//
//  1. ValidFrom is truncated to date granularity; a zero ValidFrom falls back
//     to now's date — a degraded default, not an error.
//  2. Records sharing an identical ValidFrom collapse to a single version,
//     the last one in merged order winning. This keeps the single-current
//     invariant even when two snapshots carry the same timestamp.
//  3. Versions are sorted ascending; valid_to of each version is the next
//     version's valid_from minus one day. The last version gets the
//     open-ended sentinel valid_to and is_current = true.
//
// Consecutive versions with identical attributes are not compacted: every
// change event becomes a row.
func BuildVersions(records []ChangeRecord, now time.Time) []DimensionVersion {
	fallback := convert.DateOnly(now)

	// Group by key, preserving first-seen key order for deterministic output.
	grouped := make(map[int64][]ChangeRecord)
	var keys []int64
	for _, rec := range records {
		if _, seen := grouped[rec.Key]; !seen {
			keys = append(keys, rec.Key)
		}
		r := rec
		r.ValidFrom = convert.DateOnly(r.ValidFrom)
		if r.ValidFrom.IsZero() {
			r.ValidFrom = fallback
		}
		grouped[rec.Key] = append(grouped[rec.Key], r)
	}

	var versions []DimensionVersion
	for _, key := range keys {
		versions = append(versions, buildKeyVersions(key, grouped[key])...)
	}
	return versions
}

func buildKeyVersions(key int64, records []ChangeRecord) []DimensionVersion {
	// Stable sort keeps merged batch order among equal ValidFrom values, so
	// the collapse below deterministically keeps the last-observed record.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ValidFrom.Before(records[j].ValidFrom)
	})

	collapsed := records[:0:0]
	for _, rec := range records {
		if n := len(collapsed); n > 0 && collapsed[n-1].ValidFrom.Equal(rec.ValidFrom) {
			collapsed[n-1] = rec
			continue
		}
		collapsed = append(collapsed, rec)
	}

	versions := make([]DimensionVersion, 0, len(collapsed))
	for i, rec := range collapsed {
		v := DimensionVersion{
			Key:          key,
			SurrogateKey: key,
			Attributes:   rec.Attributes,
			ValidFrom:    rec.ValidFrom,
			UpdatedAt:    rec.ValidFrom,
		}
		if i == len(collapsed)-1 {
			v.ValidTo = OpenEndedValidTo
			v.IsCurrent = true
		} else {
			v.ValidTo = collapsed[i+1].ValidFrom.AddDate(0, 0, -1)
		}
		versions = append(versions, v)
	}
	return versions
}
