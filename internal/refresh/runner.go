// Package refresh orchestrates one full warehouse rebuild: read every
// snapshot batch, reconcile dimension history, resolve fact keys, and replace
// each warehouse table.
//
// Tables are failure-isolated: a failed load marks its own table and never
// aborts the others. There is no cross-table atomicity.
package refresh

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edulake/edulake-dwh/internal/core/refindex"
	"github.com/edulake/edulake-dwh/internal/dimensions"
	"github.com/edulake/edulake-dwh/internal/facts"
	"github.com/edulake/edulake-dwh/internal/snapshot"
	"github.com/edulake/edulake-dwh/internal/warehouse"
)

// Warehouse table names.
const (
	TableDimSubject    = "Dim_Subject"
	TableDimStudent    = "Dim_Student"
	TableDimTeacher    = "Dim_Teacher"
	TableFactHomeworks = "Fact_Homeworks"
	TableFactLessons   = "Fact_Lessons"
	TableFactSales     = "Fact_Sales"
)

// userNKColumn is the optional dimension column whose presence is resolved
// once per run by schema introspection.
const userNKColumn = "user_id_nk"

// Options tune one refresh run.
type Options struct {
	// Parallel loads independent tables concurrently. Reference indices are
	// built before any load starts and are read-only afterwards, so no
	// locking is needed.
	Parallel bool

	// DedupFacts drops fact candidates repeated across overlapping batches,
	// first occurrence winning.
	DedupFacts bool

	// Sources overrides the snapshot source mapping. Nil means defaults.
	Sources map[string]snapshot.Source
}

// Result is the per-table outcome of a run: nil for success.
type Result map[string]error

// Failed returns the names of failed tables, sorted.
func (r Result) Failed() []string {
	var failed []string
	for table, err := range r {
		if err != nil {
			failed = append(failed, table)
		}
	}
	sort.Strings(failed)
	return failed
}

// OK reports whether every table loaded.
func (r Result) OK() bool {
	return len(r.Failed()) == 0
}

// Runner executes warehouse refresh runs. It owns no persistent state:
// every run recomputes dimensions and facts from scratch from the full
// snapshot history.
type Runner struct {
	reader  snapshot.Reader
	store   warehouse.Store
	sources map[string]snapshot.Source
	opts    Options
	now     func() time.Time
}

func NewRunner(reader snapshot.Reader, store warehouse.Store, opts Options) *Runner {
	sources := opts.Sources
	if sources == nil {
		sources = snapshot.DefaultSources()
	}
	return &Runner{
		reader:  reader,
		store:   store,
		sources: sources,
		opts:    opts,
		now:     time.Now,
	}
}

// Run performs one full refresh and returns the per-table result map.
func (r *Runner) Run(ctx context.Context) Result {
	runID := uuid.NewString()
	log := slog.With("run_id", runID)
	started := r.now()
	log.Info("[Refresh] Starting warehouse refresh")

	batches := r.fetchAll(ctx, log)

	// Reference indices are built once and shared read-only by every load.
	lessonIdx := refindex.Build(snapshot.EntityLesson, "lesson_id", snapshot.Flatten(batches[snapshot.EntityLesson]))
	tsIdx := refindex.Build(snapshot.EntityTeacherSubject, "teacher_subject_id", snapshot.Flatten(batches[snapshot.EntityTeacherSubject]))
	teacherIdx := refindex.Build(snapshot.EntityTeacher, "teacher_id", snapshot.Flatten(batches[snapshot.EntityTeacher]))
	log.Info("[Refresh] Reference indices built",
		"lessons", lessonIdx.Len(),
		"teacher_subjects", tsIdx.Len(),
		"teachers", teacherIdx.Len(),
	)

	mat := &facts.Materializer{
		Lessons:         lessonIdx,
		TeacherSubjects: tsIdx,
		Teachers:        teacherIdx,
		Dedup:           r.opts.DedupFacts,
	}

	studentUserNK := r.hasUserNK(ctx, log, TableDimStudent)
	teacherUserNK := r.hasUserNK(ctx, log, TableDimTeacher)
	now := r.now()

	loads := []tableLoad{
		{TableDimSubject, func(ctx context.Context) error {
			rows := dimensions.BuildSubjectRows(snapshot.Flatten(batches[snapshot.EntitySubject]))
			values := make([][]any, len(rows))
			for i, row := range rows {
				values[i] = row.Values()
			}
			return r.store.Replace(ctx, TableDimSubject, dimensions.SubjectColumns, values)
		}},
		{TableDimStudent, func(ctx context.Context) error {
			rows := dimensions.BuildStudentVersions(batches[snapshot.EntityStudent], batches[snapshot.EntityUser], now)
			values := make([][]any, len(rows))
			for i, row := range rows {
				values[i] = row.Values(studentUserNK)
			}
			return r.store.Replace(ctx, TableDimStudent, dimensions.StudentColumns(studentUserNK), values)
		}},
		{TableDimTeacher, func(ctx context.Context) error {
			rows := dimensions.BuildTeacherVersions(batches[snapshot.EntityTeacher], batches[snapshot.EntityUser], now)
			values := make([][]any, len(rows))
			for i, row := range rows {
				values[i] = row.Values(teacherUserNK)
			}
			return r.store.Replace(ctx, TableDimTeacher, dimensions.TeacherColumns(teacherUserNK), values)
		}},
		{TableFactHomeworks, func(ctx context.Context) error {
			rows := mat.HomeworkRows(batches[snapshot.EntityHomework])
			values := make([][]any, len(rows))
			for i, row := range rows {
				values[i] = row.Values()
			}
			return r.store.Replace(ctx, TableFactHomeworks, facts.HomeworkColumns, values)
		}},
		{TableFactLessons, func(ctx context.Context) error {
			rows := mat.LessonRows(batches[snapshot.EntityLesson])
			values := make([][]any, len(rows))
			for i, row := range rows {
				values[i] = row.Values()
			}
			return r.store.Replace(ctx, TableFactLessons, facts.LessonColumns, values)
		}},
		{TableFactSales, func(ctx context.Context) error {
			rows := mat.SalesRows(batches[snapshot.EntityPurchase])
			values := make([][]any, len(rows))
			for i, row := range rows {
				values[i] = row.Values()
			}
			return r.store.Replace(ctx, TableFactSales, facts.SalesColumns, values)
		}},
	}

	result := r.execute(ctx, loads)

	for _, load := range loads {
		if err := result[load.table]; err != nil {
			log.Error("[Refresh] Table load failed", "table", load.table, "error", err)
		} else {
			log.Info("[Refresh] Table load succeeded", "table", load.table)
		}
	}
	log.Info("[Refresh] Run finished",
		"duration", r.now().Sub(started),
		"tables", len(result),
		"failed", len(result.Failed()),
	)
	return result
}

type tableLoad struct {
	table string
	run   func(ctx context.Context) error
}

// execute runs every load, concurrently when configured. A load's error is
// recorded against its table only; other loads keep going.
func (r *Runner) execute(ctx context.Context, loads []tableLoad) Result {
	result := make(Result, len(loads))

	if !r.opts.Parallel {
		for _, load := range loads {
			result[load.table] = load.run(ctx)
		}
		return result
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, load := range loads {
		g.Go(func() error {
			err := load.run(gctx)
			mu.Lock()
			result[load.table] = err
			mu.Unlock()
			return nil // failures stay table-local
		})
	}
	g.Wait()
	return result
}

// fetchAll reads every entity's batches up front. A retrieval failure
// degrades to "no data" for that entity: dependent loads proceed with
// whatever reference data exists.
func (r *Runner) fetchAll(ctx context.Context, log *slog.Logger) map[string][][]snapshot.Record {
	batches := make(map[string][][]snapshot.Record, len(r.sources))
	for entity, src := range r.sources {
		b, err := snapshot.FetchBatches(ctx, r.reader, src)
		if err != nil {
			log.Warn("[Refresh] Snapshot retrieval failed, treating as no data",
				"entity", entity,
				"prefix", src.Prefix,
				"error", err,
			)
			continue
		}
		if len(b) == 0 {
			log.Warn("[Refresh] No snapshot batches found", "entity", entity, "prefix", src.Prefix)
		}
		batches[entity] = b
	}
	return batches
}

// hasUserNK resolves the optional user_id_nk column once per run. An
// introspection failure degrades to the narrow insert shape.
func (r *Runner) hasUserNK(ctx context.Context, log *slog.Logger, table string) bool {
	has, err := r.store.HasColumn(ctx, table, userNKColumn)
	if err != nil {
		log.Warn("[Refresh] Schema introspection failed, assuming narrow schema",
			"table", table,
			"column", userNKColumn,
			"error", err,
		)
		return false
	}
	return has
}
