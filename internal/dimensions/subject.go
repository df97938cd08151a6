// Package dimensions builds warehouse dimension rows from snapshot batches:
// the plain full-refresh subject dimension and the SCD2 student and teacher
// dimensions.
package dimensions

import (
	"github.com/edulake/edulake-dwh/internal/core/convert"
	"github.com/edulake/edulake-dwh/internal/snapshot"
)

// SubjectRow is one Dim_Subject row. Subjects are a full snapshot: the whole
// dimension is rebuilt from the latest export, no history kept.
type SubjectRow struct {
	SK   int64
	NK   int64
	Name string
}

// SubjectColumns is the Dim_Subject insert column list.
var SubjectColumns = []string{"subject_sk", "subject_id_nk", "subject_name"}

func (r SubjectRow) Values() []any {
	return []any{r.SK, r.NK, r.Name}
}

// BuildSubjectRows maps the latest subjects snapshot to dimension rows.
// The surrogate key equals the natural key.
func BuildSubjectRows(records []snapshot.Record) []SubjectRow {
	rows := make([]SubjectRow, 0, len(records))
	for _, rec := range records {
		id := convert.Int(rec, "subject_id")
		rows = append(rows, SubjectRow{
			SK:   id,
			NK:   id,
			Name: convert.String(rec, "name"),
		})
	}
	return rows
}
