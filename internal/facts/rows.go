// Package facts materializes warehouse fact rows from raw fact candidates,
// resolving natural foreign keys through the shared reference indices and
// deriving date keys, durations and monetary amounts.
package facts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Per-fact-type status defaults applied when the candidate carries none.
const (
	defaultHomeworkStatus = "assigned"
	defaultLessonStatus   = "scheduled"
	defaultPurchaseStatus = "active"
)

// defaultDurationMinutes is used when a lesson's scheduled timestamps are
// missing or unparseable.
const defaultDurationMinutes = 60

// HomeworkRow is one Fact_Homeworks row. DateSubmittedKey and Score stay
// NULL, not zero, when the source fields are absent.
type HomeworkRow struct {
	FactID           int64
	DateAssignedKey  int
	DateDeadlineKey  int
	DateSubmittedKey *int
	StudentSK        int64
	SubjectSK        int64
	NK               int64
	Score            *int64
	Status           string
	UpdatedAt        *time.Time
}

var HomeworkColumns = []string{
	"homework_fact_id", "date_assigned_key", "date_deadline_key",
	"date_submitted_key", "student_sk", "subject_sk", "homework_id_nk",
	"score", "homework_status", "updated_at",
}

func (r HomeworkRow) Values() []any {
	return []any{
		r.FactID, r.DateAssignedKey, r.DateDeadlineKey,
		r.DateSubmittedKey, r.StudentSK, r.SubjectSK, r.NK,
		r.Score, r.Status, r.UpdatedAt,
	}
}

// LessonRow is one Fact_Lessons row.
type LessonRow struct {
	FactID            int64
	DateKey           int
	TimeStart         *time.Time
	StudentSK         int64
	TeacherSK         int64
	SubjectSK         int64
	NK                int64
	DurationMinutes   int
	TeacherCostAmount decimal.Decimal
	Status            string
	UpdatedAt         *time.Time
}

var LessonColumns = []string{
	"lesson_fact_id", "date_key", "time_start", "student_sk",
	"teacher_sk", "subject_sk", "lesson_id_nk", "duration_minutes",
	"teacher_cost_amount", "lesson_status", "updated_at",
}

func (r LessonRow) Values() []any {
	return []any{
		r.FactID, r.DateKey, r.TimeStart, r.StudentSK,
		r.TeacherSK, r.SubjectSK, r.NK, r.DurationMinutes,
		r.TeacherCostAmount, r.Status, r.UpdatedAt,
	}
}

// SalesRow is one Fact_Sales row.
type SalesRow struct {
	SalesID        int64
	DateKey        int
	StudentSK      int64
	NK             int64
	PurchaseAmount decimal.Decimal
	LessonsTotal   int64
	Status         string
	UpdatedAt      *time.Time
}

var SalesColumns = []string{
	"sales_id", "date_key", "student_sk", "purchase_id_nk",
	"purchase_amount", "lessons_total", "purchase_status", "updated_at",
}

func (r SalesRow) Values() []any {
	return []any{
		r.SalesID, r.DateKey, r.StudentSK, r.NK,
		r.PurchaseAmount, r.LessonsTotal, r.Status, r.UpdatedAt,
	}
}
