package scd2

import (
	"sort"
	"time"

	"github.com/edulake/edulake-dwh/internal/core/convert"
	"github.com/edulake/edulake-dwh/internal/snapshot"
)

// MergeOptions control how raw snapshot batches become a change history.
type MergeOptions struct {
	// KeyField names the entity's natural-key field, e.g. "student_id".
	KeyField string

	// TimeField names the change timestamp field. Defaults to "updated_at".
	TimeField string

	// ParentKeyField, when non-empty, enables a left join against Parents on
	// that field (e.g. a student row enriched with its linked "user_id" row).
	ParentKeyField string

	// Parents holds every observation of the parent entity across all
	// batches, in batch order.
	Parents []snapshot.Record

	// ParentFields are the attribute names copied from the joined parent
	// observation into the merged record.
	ParentFields []string
}

func (o MergeOptions) timeField() string {
	if o.TimeField == "" {
		return "updated_at"
	}
	return o.TimeField
}

// Merge concatenates per-batch snapshot collections for one entity into one
// unified change history. Timestamps are normalized; records whose timestamp
// is missing or unparseable are retained with a zero UpdatedAt and therefore
// sort first when versions are built.
//
// With a parent join configured, each entity observation is expanded against
// every observation of its linked parent, and ValidFrom becomes the maximum
// of the two change timestamps: a later change in either the entity or its
// parent opens a new version. Observations sharing the resulting ValidFrom
// collapse later in BuildVersions, last one in merged order winning.
func Merge(batches [][]snapshot.Record, opts MergeOptions) []ChangeRecord {
	parents := indexParents(opts)

	var merged []ChangeRecord
	for _, batch := range batches {
		for _, rec := range batch {
			key := convert.Int(rec, opts.KeyField)
			updatedAt := convert.Time(rec, opts.timeField())

			if opts.ParentKeyField == "" {
				merged = append(merged, ChangeRecord{
					Key:        key,
					Attributes: rec,
					UpdatedAt:  updatedAt,
					ValidFrom:  updatedAt,
				})
				continue
			}

			parentKey := convert.Int(rec, opts.ParentKeyField)
			obs := parents[parentKey]
			if len(obs) == 0 {
				// Left join: no parent observed, keep the record as-is.
				merged = append(merged, ChangeRecord{
					Key:        key,
					Attributes: rec,
					UpdatedAt:  updatedAt,
					ValidFrom:  updatedAt,
				})
				continue
			}

			for _, p := range obs {
				merged = append(merged, ChangeRecord{
					Key:        key,
					Attributes: joinAttributes(rec, p.record, opts.ParentFields),
					UpdatedAt:  updatedAt,
					ValidFrom:  maxTime(updatedAt, p.updatedAt),
				})
			}
		}
	}
	return merged
}

type parentObservation struct {
	record    snapshot.Record
	updatedAt time.Time
}

// indexParents groups parent observations by natural key, ordered by change
// timestamp ascending so that the latest parent attributes win when tied
// versions collapse.
func indexParents(opts MergeOptions) map[int64][]parentObservation {
	if opts.ParentKeyField == "" || len(opts.Parents) == 0 {
		return nil
	}
	byKey := make(map[int64][]parentObservation)
	for _, p := range opts.Parents {
		key := convert.Int(p, opts.ParentKeyField)
		byKey[key] = append(byKey[key], parentObservation{
			record:    p,
			updatedAt: convert.Time(p, opts.timeField()),
		})
	}
	for key := range byKey {
		obs := byKey[key]
		sort.SliceStable(obs, func(i, j int) bool {
			return obs[i].updatedAt.Before(obs[j].updatedAt)
		})
	}
	return byKey
}

func joinAttributes(rec, parent snapshot.Record, fields []string) snapshot.Record {
	joined := make(snapshot.Record, len(rec)+len(fields))
	for k, v := range rec {
		joined[k] = v
	}
	for _, f := range fields {
		if v, ok := parent[f]; ok {
			joined[f] = v
		}
	}
	return joined
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
