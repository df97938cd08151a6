package facts

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edulake/edulake-dwh/internal/core/convert"
	"github.com/edulake/edulake-dwh/internal/core/refindex"
	"github.com/edulake/edulake-dwh/internal/snapshot"
)

// Materializer turns raw fact candidates into warehouse rows. The reference
// indices are built once per run and shared read-only across every candidate
// and every fact table.
type Materializer struct {
	Lessons         *refindex.Index
	TeacherSubjects *refindex.Index
	Teachers        *refindex.Index

	// Dedup, when set, drops candidates whose natural key was already seen
	// in an earlier batch of the same load (first occurrence wins). Off by
	// default: overlapping exports then produce duplicate rows, matching
	// the source system's behavior.
	Dedup bool
}

// HomeworkRows materializes Fact_Homeworks candidates. student_sk comes from
// the homework's lesson; subject_sk is the longer chain through the lesson's
// teacher_subject assignment.
func (m *Materializer) HomeworkRows(batches [][]snapshot.Record) []HomeworkRow {
	var rows []HomeworkRow
	seen := m.seenSet()
	for _, batch := range batches {
		for _, rec := range batch {
			id := convert.Int(rec, "homework_id")
			if m.skipDuplicate(seen, "homework", id) {
				continue
			}
			lessonID := convert.Int(rec, "lesson_id")

			row := HomeworkRow{
				FactID:          id,
				NK:              id,
				DateAssignedKey: convert.DateKey(convert.Time(rec, "created_at")),
				DateDeadlineKey: convert.DateKey(convert.Time(rec, "deadline")),
				StudentSK:       refindex.Resolve(lessonID, refindex.Hop{Index: m.Lessons, Next: "student_id"}),
				SubjectSK: refindex.Resolve(lessonID,
					refindex.Hop{Index: m.Lessons, Next: "teacher_subject_id"},
					refindex.Hop{Index: m.TeacherSubjects, Next: "subject_id"},
				),
				Status:    convert.StringOr(rec, "status", defaultHomeworkStatus),
				UpdatedAt: timePtr(convert.Time(rec, "updated_at")),
			}

			if t := convert.Time(rec, "submitted_at"); !t.IsZero() {
				key := convert.DateKey(t)
				row.DateSubmittedKey = &key
			}
			if convert.Has(rec, "score") {
				score := convert.Int(rec, "score")
				row.Score = &score
			}

			rows = append(rows, row)
		}
	}
	return rows
}

// LessonRows materializes Fact_Lessons candidates. teacher_sk and subject_sk
// resolve through the teacher_subject assignment; when that chain misses, a
// teacher_id carried directly on the lesson is used as a fallback.
// teacher_cost_amount is the teacher's latest observed hourly rate.
func (m *Materializer) LessonRows(batches [][]snapshot.Record) []LessonRow {
	var rows []LessonRow
	seen := m.seenSet()
	for _, batch := range batches {
		for _, rec := range batch {
			id := convert.Int(rec, "lesson_id")
			if m.skipDuplicate(seen, "lesson", id) {
				continue
			}

			teacherSK := refindex.Unresolved
			subjectSK := refindex.Unresolved
			tsID := convert.Int(rec, "teacher_subject_id")
			if ts, ok := m.TeacherSubjects.Lookup(tsID); ok {
				teacherSK = convert.Int(ts, "teacher_id")
				subjectSK = convert.Int(ts, "subject_id")
			} else {
				slog.Warn("[Facts] Lesson has no teacher_subject assignment",
					"lesson_id", id,
					"teacher_subject_id", tsID,
				)
				teacherSK = convert.Int(rec, "teacher_id")
			}

			start := convert.Time(rec, "scheduled_start_time")

			rows = append(rows, LessonRow{
				FactID:            id,
				NK:                id,
				DateKey:           convert.DateKey(start),
				TimeStart:         timePtr(start),
				StudentSK:         convert.Int(rec, "student_id"),
				TeacherSK:         teacherSK,
				SubjectSK:         subjectSK,
				DurationMinutes:   durationMinutes(start, convert.Time(rec, "scheduled_end_time")),
				TeacherCostAmount: m.teacherRate(teacherSK),
				Status:            convert.StringOr(rec, "status", defaultLessonStatus),
				UpdatedAt:         timePtr(convert.Time(rec, "updated_at")),
			})
		}
	}
	return rows
}

// SalesRows materializes Fact_Sales candidates. Purchases reference the
// student directly, so no chain resolution is needed.
func (m *Materializer) SalesRows(batches [][]snapshot.Record) []SalesRow {
	var rows []SalesRow
	seen := m.seenSet()
	for _, batch := range batches {
		for _, rec := range batch {
			id := convert.Int(rec, "purchase_id")
			if m.skipDuplicate(seen, "purchase", id) {
				continue
			}
			rows = append(rows, SalesRow{
				SalesID:        id,
				NK:             id,
				DateKey:        convert.DateKey(convert.Time(rec, "purchase_date")),
				StudentSK:      convert.Int(rec, "student_id"),
				PurchaseAmount: convert.Decimal(rec, "purchase_price"),
				LessonsTotal:   convert.Int(rec, "lessons_total"),
				Status:         convert.StringOr(rec, "status", defaultPurchaseStatus),
				UpdatedAt:      timePtr(convert.Time(rec, "updated_at")),
			})
		}
	}
	return rows
}

// teacherRate pulls the latest observed hourly rate for a resolved teacher.
// Unresolved teachers and teachers absent from the snapshots cost zero.
func (m *Materializer) teacherRate(teacherSK int64) decimal.Decimal {
	if teacherSK == refindex.Unresolved {
		return decimal.Zero
	}
	rec, ok := m.Teachers.Lookup(teacherSK)
	if !ok {
		slog.Warn("[Facts] Teacher not found in snapshot data", "teacher_sk", teacherSK)
		return decimal.Zero
	}
	return convert.Decimal(rec, "hourly_rate")
}

func (m *Materializer) seenSet() map[int64]bool {
	if !m.Dedup {
		return nil
	}
	return make(map[int64]bool)
}

func (m *Materializer) skipDuplicate(seen map[int64]bool, entity string, key int64) bool {
	if seen == nil {
		return false
	}
	if seen[key] {
		slog.Debug("[Facts] Dropping duplicate candidate", "entity", entity, "key", key)
		return true
	}
	seen[key] = true
	return false
}

func durationMinutes(start, end time.Time) int {
	if start.IsZero() || end.IsZero() {
		return defaultDurationMinutes
	}
	return int(end.Sub(start).Minutes())
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
