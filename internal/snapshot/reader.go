// Package snapshot reads change-capture batches exported by the operational
// database into an object store. Batches are JSON-Lines files, optionally
// gzip-compressed, one attribute map per line, grouped under per-entity key
// prefixes.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Record is one raw snapshot observation: attribute name → value.
type Record = map[string]any

// Reader lists and reads snapshot batches. Implementations are expected to
// return List results in lexicographic key order, which matches the
// exporter's timestamped naming and therefore batch creation order.
type Reader interface {
	// List returns batch keys under a prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// Read decodes one batch into records.
	Read(ctx context.Context, key string) ([]Record, error)
}

// ReadAll reads every batch under a prefix, in listed order, one slice of
// records per batch.
func ReadAll(ctx context.Context, r Reader, prefix string) ([][]Record, error) {
	keys, err := r.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	batches := make([][]Record, 0, len(keys))
	for _, key := range keys {
		records, err := r.Read(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", key, err)
		}
		batches = append(batches, records)
	}
	return batches, nil
}

// ReadLatest reads only the lexicographically last batch under a prefix.
// Full-snapshot entities (subjects) are re-exported whole each time, so only
// the newest file matters. Returns no batches when the prefix is empty.
func ReadLatest(ctx context.Context, r Reader, prefix string) ([][]Record, error) {
	keys, err := r.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	records, err := r.Read(ctx, keys[len(keys)-1])
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", keys[len(keys)-1], err)
	}
	return [][]Record{records}, nil
}

// Flatten concatenates batches into a single record slice, preserving order.
func Flatten(batches [][]Record) []Record {
	var total int
	for _, b := range batches {
		total += len(b)
	}
	flat := make([]Record, 0, total)
	for _, b := range batches {
		flat = append(flat, b...)
	}
	return flat
}

// isBatchKey reports whether a key looks like a snapshot batch file.
func isBatchKey(key string) bool {
	return strings.HasSuffix(key, ".jsonl") || strings.HasSuffix(key, ".jsonl.gz")
}

// decodeBatch decodes a JSONL stream, transparently unwrapping gzip when the
// key carries a .gz suffix.
func decodeBatch(r io.Reader, key string) ([]Record, error) {
	if strings.HasSuffix(key, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip %q: %w", key, err)
		}
		defer gz.Close()
		r = gz
	}

	var records []Record
	dec := json.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("decode %q record %d: %w", key, len(records)+1, err)
		}
		records = append(records, rec)
	}
}
