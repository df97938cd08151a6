package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edulake/edulake-dwh/internal/snapshot"
)

// fakeReader serves in-memory batches keyed by prefix. Prefixes listed in
// fail return an error from List.
type fakeReader struct {
	batches map[string][][]snapshot.Record
	fail    map[string]bool
}

func (f *fakeReader) List(_ context.Context, prefix string) ([]string, error) {
	if f.fail[prefix] {
		return nil, errors.New("bucket unavailable")
	}
	keys := make([]string, len(f.batches[prefix]))
	for i := range keys {
		keys[i] = fmt.Sprintf("%s%06d.jsonl", prefix, i)
	}
	return keys, nil
}

func (f *fakeReader) Read(_ context.Context, key string) ([]snapshot.Record, error) {
	for prefix, batches := range f.batches {
		for i, batch := range batches {
			if key == fmt.Sprintf("%s%06d.jsonl", prefix, i) {
				return batch, nil
			}
		}
	}
	return nil, fmt.Errorf("no such key %q", key)
}

type replaceCall struct {
	columns []string
	rows    [][]any
}

// fakeStore records Replace calls and answers HasColumn from a flag.
type fakeStore struct {
	mu         sync.Mutex
	tables     map[string]replaceCall
	failTables map[string]error
	hasUserNK  bool
	inspectErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]replaceCall)}
}

func (s *fakeStore) Replace(_ context.Context, table string, columns []string, rows [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTables[table]; err != nil {
		return err
	}
	s.tables[table] = replaceCall{columns: columns, rows: rows}
	return nil
}

func (s *fakeStore) HasColumn(_ context.Context, _, _ string) (bool, error) {
	if s.inspectErr != nil {
		return false, s.inspectErr
	}
	return s.hasUserNK, nil
}

func testReader() *fakeReader {
	return &fakeReader{batches: map[string][][]snapshot.Record{
		// Full snapshot: an older export that must be ignored, then the
		// current one.
		"full/subjects/": {
			{{"subject_id": float64(9), "name": "Stale"}},
			{
				{"subject_id": float64(1), "name": "Mathematics"},
				{"subject_id": float64(2), "name": "Physics"},
			},
		},
		"incremental/students/": {{
			{"student_id": float64(10), "user_id": float64(100), "current_grade": "7", "updated_at": "2024-03-01T10:00:00Z"},
		}},
		"incremental/teachers/": {{
			{"teacher_id": float64(20), "user_id": float64(200), "hourly_rate": 25.5, "updated_at": "2024-03-01T10:00:00Z"},
		}},
		"incremental/users/": {{
			{"user_id": float64(100), "first_name": "Ann", "last_name": "Lee", "phone_number": "555", "updated_at": "2024-02-01T00:00:00Z"},
			{"user_id": float64(200), "first_name": "Bob", "last_name": "Ray", "phone_number": "556", "updated_at": "2024-02-01T00:00:00Z"},
		}},
		"incremental/teacher_subjects/": {{
			{"teacher_subject_id": float64(30), "teacher_id": float64(20), "subject_id": float64(1), "updated_at": "2024-01-01T00:00:00Z"},
		}},
		"incremental/lessons/": {{
			{
				"lesson_id": float64(40), "student_id": float64(10),
				"teacher_subject_id":   float64(30),
				"scheduled_start_time": "2024-03-05T09:00:00Z",
				"scheduled_end_time":   "2024-03-05T09:45:00Z",
				"status":               "completed",
				"updated_at":           "2024-03-05T10:00:00Z",
			},
		}},
		"incremental/homeworks/": {{
			{
				"homework_id": float64(50), "lesson_id": float64(40),
				"created_at": "2024-03-05T12:00:00Z",
				"deadline":   "2024-03-12T00:00:00Z",
				"updated_at": "2024-03-05T12:00:00Z",
			},
		}},
		"incremental/students_purchases/": {{
			{
				"purchase_id": float64(60), "student_id": float64(10),
				"purchase_date": "2024-03-01T00:00:00Z",
				"purchase_price": 199.99, "lessons_total": float64(8),
				"updated_at": "2024-03-01T00:00:00Z",
			},
		}},
	}}
}

func allTables() []string {
	return []string{
		TableDimSubject, TableDimStudent, TableDimTeacher,
		TableFactHomeworks, TableFactLessons, TableFactSales,
	}
}

func TestRun_LoadsAllTables(t *testing.T) {
	store := newFakeStore()
	store.hasUserNK = true
	runner := NewRunner(testReader(), store, Options{})
	runner.now = func() time.Time { return time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC) }

	result := runner.Run(context.Background())

	require.True(t, result.OK(), "failed tables: %v", result.Failed())
	for _, table := range allTables() {
		require.Contains(t, store.tables, table)
	}

	// Only the latest full subject export counts.
	subjects := store.tables[TableDimSubject]
	require.Len(t, subjects.rows, 2)
	require.Equal(t, []any{int64(1), int64(1), "Mathematics"}, subjects.rows[0])

	// Wide schema detected, so user_id_nk is part of the insert shape.
	students := store.tables[TableDimStudent]
	require.Contains(t, students.columns, "user_id_nk")
	require.Len(t, students.rows, 1)
	require.Equal(t, int64(100), students.rows[0][2])

	// The lesson resolves its teacher and subject through the assignment.
	lessons := store.tables[TableFactLessons]
	require.Len(t, lessons.rows, 1)
	require.Equal(t, []string{
		"lesson_fact_id", "date_key", "time_start", "student_sk",
		"teacher_sk", "subject_sk", "lesson_id_nk", "duration_minutes",
		"teacher_cost_amount", "lesson_status", "updated_at",
	}, lessons.columns)
	require.Equal(t, int64(20), lessons.rows[0][4])
	require.Equal(t, int64(1), lessons.rows[0][5])
	require.Equal(t, 45, lessons.rows[0][7])

	// The homework chains through its lesson to student and subject.
	homeworks := store.tables[TableFactHomeworks]
	require.Len(t, homeworks.rows, 1)
	require.Equal(t, int64(10), homeworks.rows[0][4])
	require.Equal(t, int64(1), homeworks.rows[0][5])
}

func TestRun_NarrowSchemaOmitsUserNK(t *testing.T) {
	store := newFakeStore()
	store.hasUserNK = false
	runner := NewRunner(testReader(), store, Options{})

	result := runner.Run(context.Background())

	require.True(t, result.OK())
	require.NotContains(t, store.tables[TableDimStudent].columns, "user_id_nk")
	require.NotContains(t, store.tables[TableDimTeacher].columns, "user_id_nk")
	require.Len(t, store.tables[TableDimStudent].rows[0], len(store.tables[TableDimStudent].columns))
}

func TestRun_IntrospectionFailureFallsBackToNarrowSchema(t *testing.T) {
	store := newFakeStore()
	store.hasUserNK = true
	store.inspectErr = errors.New("permission denied")
	runner := NewRunner(testReader(), store, Options{})

	result := runner.Run(context.Background())

	require.True(t, result.OK())
	require.NotContains(t, store.tables[TableDimStudent].columns, "user_id_nk")
}

func TestRun_TableFailureIsIsolated(t *testing.T) {
	store := newFakeStore()
	store.failTables = map[string]error{TableFactLessons: errors.New("disk full")}
	runner := NewRunner(testReader(), store, Options{})

	result := runner.Run(context.Background())

	require.False(t, result.OK())
	require.Equal(t, []string{TableFactLessons}, result.Failed())
	require.Error(t, result[TableFactLessons])
	for _, table := range allTables() {
		if table == TableFactLessons {
			continue
		}
		require.NoError(t, result[table])
		require.Contains(t, store.tables, table)
	}
}

func TestRun_RetrievalFailureDegradesToNoData(t *testing.T) {
	reader := testReader()
	reader.fail = map[string]bool{"incremental/lessons/": true}
	store := newFakeStore()
	runner := NewRunner(reader, store, Options{})

	result := runner.Run(context.Background())

	// Every table still loads: Fact_Lessons is simply empty and the
	// homework's lesson references do not resolve.
	require.True(t, result.OK(), "failed tables: %v", result.Failed())
	require.Empty(t, store.tables[TableFactLessons].rows)

	homeworks := store.tables[TableFactHomeworks]
	require.Len(t, homeworks.rows, 1)
	require.Equal(t, int64(0), homeworks.rows[0][4])
	require.Equal(t, int64(0), homeworks.rows[0][5])
}

func TestRun_ParallelLoadsEveryTable(t *testing.T) {
	store := newFakeStore()
	store.failTables = map[string]error{TableDimTeacher: errors.New("timeout")}
	runner := NewRunner(testReader(), store, Options{Parallel: true})

	result := runner.Run(context.Background())

	require.Len(t, result, len(allTables()))
	require.Equal(t, []string{TableDimTeacher}, result.Failed())
}

func TestRun_CustomSourcesOverrideDefaults(t *testing.T) {
	reader := &fakeReader{batches: map[string][][]snapshot.Record{
		"alt/subjects/": {{{"subject_id": float64(7), "name": "Chemistry"}}},
	}}
	sources := snapshot.DefaultSources()
	sources[snapshot.EntitySubject] = snapshot.Source{
		Entity: snapshot.EntitySubject,
		Prefix: "alt/subjects/",
		Mode:   snapshot.ModeFull,
	}
	store := newFakeStore()
	runner := NewRunner(reader, store, Options{Sources: sources})

	result := runner.Run(context.Background())

	require.True(t, result.OK())
	require.Equal(t, [][]any{{int64(7), int64(7), "Chemistry"}}, store.tables[TableDimSubject].rows)
}

func TestResult_FailedSortsTableNames(t *testing.T) {
	result := Result{
		TableFactSales:  errors.New("x"),
		TableDimSubject: errors.New("y"),
		TableDimTeacher: nil,
	}
	failed := result.Failed()
	require.Equal(t, []string{TableDimSubject, TableFactSales}, failed)
	require.True(t, sort.StringsAreSorted(failed))
	require.False(t, result.OK())
}
