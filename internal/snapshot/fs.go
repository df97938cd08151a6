package snapshot

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// FSReader reads snapshot batches from a local directory tree laid out the
// same way as the object store (prefix/entity/batch.jsonl). Used for local
// runs and tests.
type FSReader struct {
	root string
}

func NewFSReader(root string) *FSReader {
	return &FSReader{root: root}
}

func (r *FSReader) List(_ context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(r.root, filepath.FromSlash(prefix))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil // no batches exported yet for this entity
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir %q: %w", dir, err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() || !isBatchKey(e.Name()) {
			continue
		}
		keys = append(keys, path.Join(prefix, e.Name()))
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *FSReader) Read(_ context.Context, key string) ([]Record, error) {
	f, err := os.Open(filepath.Join(r.root, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("open batch %q: %w", key, err)
	}
	defer f.Close()
	return decodeBatch(f, key)
}
