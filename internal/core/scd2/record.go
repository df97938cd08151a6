// Package scd2 reconstructs type-2 slowly-changing-dimension history from
// unordered, possibly-duplicated change-capture snapshots.
//
// A run feeds every snapshot batch for one entity through Merge, which
// produces a unified change history, then through BuildVersions, which turns
// that history into date-bounded dimension versions.
package scd2

import "time"

// ChangeRecord is one snapshot observation of an entity: its natural key,
// the attribute values seen at that point, and when the source row changed.
type ChangeRecord struct {
	// Key is the entity's natural key in the operational system.
	Key int64

	// Attributes is the raw attribute map from the snapshot, plus any
	// parent attributes merged in by Merge.
	Attributes map[string]any

	// UpdatedAt is the entity's own change timestamp. Zero when the source
	// value was missing or unparseable; such records sort first.
	UpdatedAt time.Time

	// ValidFrom is the version opening point: the entity's UpdatedAt, or the
	// linked parent's UpdatedAt when the parent changed later. Zero means
	// unknown; BuildVersions substitutes the processing date.
	ValidFrom time.Time
}

// DimensionVersion is one reconciled SCD2 row. For a fixed natural key the
// versions partition time with no gaps or overlaps: valid_to of a version is
// the next version's valid_from minus one day, and exactly one version is
// current with the open-ended sentinel valid_to.
type DimensionVersion struct {
	Key          int64
	SurrogateKey int64 // equal to the natural key; no key-generation sequence
	Attributes   map[string]any
	ValidFrom    time.Time
	ValidTo      time.Time
	IsCurrent    bool
	UpdatedAt    time.Time // mirrors ValidFrom
}

// OpenEndedValidTo is the sentinel valid_to of the current version.
var OpenEndedValidTo = time.Date(2099, time.December, 31, 0, 0, 0, 0, time.UTC)
