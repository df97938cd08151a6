package dimensions

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edulake/edulake-dwh/internal/core/convert"
	"github.com/edulake/edulake-dwh/internal/core/scd2"
	"github.com/edulake/edulake-dwh/internal/snapshot"
)

// userFields are the attributes pulled from the linked user row into student
// and teacher versions. The entity keeps its own status.
var userFields = []string{"first_name", "last_name", "phone_number"}

// StudentRow is one Dim_Student SCD2 row.
type StudentRow struct {
	SK           int64
	NK           int64
	UserNK       int64
	FullName     string
	PhoneNumber  string
	CurrentGrade string
	Status       string
	ValidFrom    time.Time
	ValidTo      time.Time
	IsCurrent    bool
	UpdatedAt    time.Time
}

// StudentColumns returns the Dim_Student insert column list. Older warehouse
// schemas lack the user_id_nk column; withUserNK selects the wider shape.
func StudentColumns(withUserNK bool) []string {
	if withUserNK {
		return []string{
			"student_sk", "student_id_nk", "user_id_nk", "full_name",
			"phone_number", "current_grade", "status",
			"valid_from", "valid_to", "is_current", "updated_at",
		}
	}
	return []string{
		"student_sk", "student_id_nk", "full_name",
		"phone_number", "current_grade", "status",
		"valid_from", "valid_to", "is_current", "updated_at",
	}
}

func (r StudentRow) Values(withUserNK bool) []any {
	if withUserNK {
		return []any{
			r.SK, r.NK, r.UserNK, r.FullName,
			r.PhoneNumber, r.CurrentGrade, r.Status,
			r.ValidFrom, r.ValidTo, r.IsCurrent, r.UpdatedAt,
		}
	}
	return []any{
		r.SK, r.NK, r.FullName,
		r.PhoneNumber, r.CurrentGrade, r.Status,
		r.ValidFrom, r.ValidTo, r.IsCurrent, r.UpdatedAt,
	}
}

// TeacherRow is one Dim_Teacher SCD2 row.
type TeacherRow struct {
	SK          int64
	NK          int64
	UserNK      int64
	FullName    string
	PhoneNumber string
	HourlyRate  decimal.Decimal
	Status      string
	ValidFrom   time.Time
	ValidTo     time.Time
	IsCurrent   bool
	UpdatedAt   time.Time
}

func TeacherColumns(withUserNK bool) []string {
	if withUserNK {
		return []string{
			"teacher_sk", "teacher_id_nk", "user_id_nk", "full_name",
			"phone_number", "hourly_rate", "status",
			"valid_from", "valid_to", "is_current", "updated_at",
		}
	}
	return []string{
		"teacher_sk", "teacher_id_nk", "full_name",
		"phone_number", "hourly_rate", "status",
		"valid_from", "valid_to", "is_current", "updated_at",
	}
}

func (r TeacherRow) Values(withUserNK bool) []any {
	if withUserNK {
		return []any{
			r.SK, r.NK, r.UserNK, r.FullName,
			r.PhoneNumber, r.HourlyRate, r.Status,
			r.ValidFrom, r.ValidTo, r.IsCurrent, r.UpdatedAt,
		}
	}
	return []any{
		r.SK, r.NK, r.FullName,
		r.PhoneNumber, r.HourlyRate, r.Status,
		r.ValidFrom, r.ValidTo, r.IsCurrent, r.UpdatedAt,
	}
}

// BuildStudentVersions reconciles every student snapshot batch, enriched with
// linked user rows, into SCD2 dimension rows.
func BuildStudentVersions(students, users [][]snapshot.Record, now time.Time) []StudentRow {
	merged := scd2.Merge(students, scd2.MergeOptions{
		KeyField:       "student_id",
		ParentKeyField: "user_id",
		Parents:        snapshot.Flatten(users),
		ParentFields:   userFields,
	})

	versions := scd2.BuildVersions(merged, now)
	rows := make([]StudentRow, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, StudentRow{
			SK:           v.SurrogateKey,
			NK:           v.Key,
			UserNK:       convert.Int(v.Attributes, "user_id"),
			FullName:     fullName(v.Attributes),
			PhoneNumber:  convert.String(v.Attributes, "phone_number"),
			CurrentGrade: convert.String(v.Attributes, "current_grade"),
			Status:       convert.StringOr(v.Attributes, "status", "active"),
			ValidFrom:    v.ValidFrom,
			ValidTo:      v.ValidTo,
			IsCurrent:    v.IsCurrent,
			UpdatedAt:    v.UpdatedAt,
		})
	}
	return rows
}

// BuildTeacherVersions is the teacher counterpart of BuildStudentVersions.
func BuildTeacherVersions(teachers, users [][]snapshot.Record, now time.Time) []TeacherRow {
	merged := scd2.Merge(teachers, scd2.MergeOptions{
		KeyField:       "teacher_id",
		ParentKeyField: "user_id",
		Parents:        snapshot.Flatten(users),
		ParentFields:   userFields,
	})

	versions := scd2.BuildVersions(merged, now)
	rows := make([]TeacherRow, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, TeacherRow{
			SK:          v.SurrogateKey,
			NK:          v.Key,
			UserNK:      convert.Int(v.Attributes, "user_id"),
			FullName:    fullName(v.Attributes),
			PhoneNumber: convert.String(v.Attributes, "phone_number"),
			HourlyRate:  convert.Decimal(v.Attributes, "hourly_rate"),
			Status:      convert.StringOr(v.Attributes, "status", "active"),
			ValidFrom:   v.ValidFrom,
			ValidTo:     v.ValidTo,
			IsCurrent:   v.IsCurrent,
			UpdatedAt:   v.UpdatedAt,
		})
	}
	return rows
}

func fullName(attrs map[string]any) string {
	first := convert.String(attrs, "first_name")
	last := convert.String(attrs, "last_name")
	return strings.TrimSpace(first + " " + last)
}
