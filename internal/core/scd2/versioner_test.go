package scd2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var processingDate = time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)

func rec(key int64, validFrom time.Time, attrs map[string]any) ChangeRecord {
	return ChangeRecord{Key: key, Attributes: attrs, UpdatedAt: validFrom, ValidFrom: validFrom}
}

// Teacher T1 has two snapshots: 2024-01-01 (rate 20) and 2024-03-01 (rate 25).
// Version A closes the day before version B opens; version B is current with
// the open-ended sentinel.
func TestBuildVersions_TwoSnapshots(t *testing.T) {
	versions := BuildVersions([]ChangeRecord{
		rec(1, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), map[string]any{"hourly_rate": "20"}),
		rec(1, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), map[string]any{"hourly_rate": "25"}),
	}, processingDate)

	require.Len(t, versions, 2)

	a, b := versions[0], versions[1]
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), a.ValidFrom)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), a.ValidTo)
	require.False(t, a.IsCurrent)
	require.Equal(t, "20", a.Attributes["hourly_rate"])

	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), b.ValidFrom)
	require.Equal(t, OpenEndedValidTo, b.ValidTo)
	require.True(t, b.IsCurrent)
	require.Equal(t, "25", b.Attributes["hourly_rate"])

	require.Equal(t, int64(1), b.SurrogateKey)
	require.Equal(t, b.ValidFrom, b.UpdatedAt)
}

// For every key the version set must cover a contiguous, non-overlapping
// range with exactly one current version, regardless of input order.
func TestBuildVersions_ContiguousHistory(t *testing.T) {
	days := []time.Time{
		time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	var history []ChangeRecord
	for i, d := range days {
		history = append(history, rec(7, d, map[string]any{"n": i}))
	}

	versions := BuildVersions(history, processingDate)
	require.Len(t, versions, len(days))

	current := 0
	for i, v := range versions {
		if v.IsCurrent {
			current++
			require.Equal(t, OpenEndedValidTo, v.ValidTo)
		}
		if i > 0 {
			prev := versions[i-1]
			require.True(t, prev.ValidFrom.Before(v.ValidFrom), "versions sorted ascending")
			require.Equal(t, v.ValidFrom.AddDate(0, 0, -1), prev.ValidTo, "no gaps or overlaps")
		}
	}
	require.Equal(t, 1, current)
}

// Two snapshots with an identical change timestamp collapse to one version;
// the last record in merged order wins. The source system occasionally emits
// such pairs and they must not produce two current versions.
func TestBuildVersions_TiedValidFromCollapses(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	versions := BuildVersions([]ChangeRecord{
		rec(3, day, map[string]any{"status": "active"}),
		rec(3, day, map[string]any{"status": "paused"}),
	}, processingDate)

	require.Len(t, versions, 1)
	require.True(t, versions[0].IsCurrent)
	require.Equal(t, "paused", versions[0].Attributes["status"])
}

// Same-day re-observations also collapse: boundaries are date-granular, and a
// version cannot close the day before it opens.
func TestBuildVersions_SameDayCollapses(t *testing.T) {
	versions := BuildVersions([]ChangeRecord{
		rec(4, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), map[string]any{"grade": "7"}),
		rec(4, time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC), map[string]any{"grade": "8"}),
	}, processingDate)

	require.Len(t, versions, 1)
	require.Equal(t, "8", versions[0].Attributes["grade"])
}

func TestBuildVersions_MissingValidFromFallsBackToProcessingDate(t *testing.T) {
	versions := BuildVersions([]ChangeRecord{
		rec(9, time.Time{}, map[string]any{"status": "active"}),
	}, processingDate)

	require.Len(t, versions, 1)
	require.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), versions[0].ValidFrom)
	require.True(t, versions[0].IsCurrent)
}

// Identical consecutive attribute snapshots are not compacted: every change
// event becomes a row.
func TestBuildVersions_NoCompaction(t *testing.T) {
	versions := BuildVersions([]ChangeRecord{
		rec(5, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), map[string]any{"status": "active"}),
		rec(5, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), map[string]any{"status": "active"}),
	}, processingDate)

	require.Len(t, versions, 2)
}

func TestBuildVersions_KeysAreIndependent(t *testing.T) {
	versions := BuildVersions([]ChangeRecord{
		rec(1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil),
		rec(2, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), nil),
		rec(1, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nil),
	}, processingDate)

	require.Len(t, versions, 3)

	byKey := map[int64]int{}
	for _, v := range versions {
		if v.IsCurrent {
			byKey[v.Key]++
		}
	}
	require.Equal(t, map[int64]int{1: 1, 2: 1}, byKey)
}
