package snapshot

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Entity names used throughout the refresh run.
const (
	EntitySubject        = "subject"
	EntityStudent        = "student"
	EntityTeacher        = "teacher"
	EntityUser           = "user"
	EntityTeacherSubject = "teacher_subject"
	EntityLesson         = "lesson"
	EntityHomework       = "homework"
	EntityPurchase       = "purchase"
)

// Source modes. Full-snapshot entities re-export the whole table each time,
// so only the latest batch is read; incremental entities accumulate change
// batches and every batch is read.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Source maps one entity to its location in the snapshot store.
type Source struct {
	Entity string `yaml:"entity"`
	Prefix string `yaml:"prefix"`
	Mode   string `yaml:"mode"`
}

// DefaultSources mirrors the exporter's standard layout.
func DefaultSources() map[string]Source {
	return map[string]Source{
		EntitySubject:        {Entity: EntitySubject, Prefix: "full/subjects/", Mode: ModeFull},
		EntityStudent:        {Entity: EntityStudent, Prefix: "incremental/students/", Mode: ModeIncremental},
		EntityTeacher:        {Entity: EntityTeacher, Prefix: "incremental/teachers/", Mode: ModeIncremental},
		EntityUser:           {Entity: EntityUser, Prefix: "incremental/users/", Mode: ModeIncremental},
		EntityTeacherSubject: {Entity: EntityTeacherSubject, Prefix: "incremental/teacher_subjects/", Mode: ModeIncremental},
		EntityLesson:         {Entity: EntityLesson, Prefix: "incremental/lessons/", Mode: ModeIncremental},
		EntityHomework:       {Entity: EntityHomework, Prefix: "incremental/homeworks/", Mode: ModeIncremental},
		EntityPurchase:       {Entity: EntityPurchase, Prefix: "incremental/students_purchases/", Mode: ModeIncremental},
	}
}

// sourcesFile is the on-disk YAML shape of a source-mapping override file.
type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources returns the source mapping, starting from DefaultSources and
// applying overrides from the YAML file at path. An empty path, or a missing
// file, yields the defaults unchanged. Unknown entities or modes are
// configuration errors.
func LoadSources(path string) (map[string]Source, error) {
	sources := DefaultSources()
	if path == "" {
		return sources, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return sources, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sources file %q: %w", path, err)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parsing sources file %q: %w", path, err)
	}

	for _, src := range parsed.Sources {
		if _, known := sources[src.Entity]; !known {
			return nil, fmt.Errorf("sources file %q: unknown entity %q", path, src.Entity)
		}
		if src.Mode != ModeFull && src.Mode != ModeIncremental {
			return nil, fmt.Errorf("sources file %q: entity %q has unsupported mode %q", path, src.Entity, src.Mode)
		}
		if src.Prefix == "" {
			return nil, fmt.Errorf("sources file %q: entity %q has an empty prefix", path, src.Entity)
		}
		sources[src.Entity] = src
	}
	return sources, nil
}

// FetchBatches reads an entity's batches according to its source mode.
func FetchBatches(ctx context.Context, r Reader, src Source) ([][]Record, error) {
	if src.Mode == ModeFull {
		return ReadLatest(ctx, r, src.Prefix)
	}
	return ReadAll(ctx, r, src.Prefix)
}
