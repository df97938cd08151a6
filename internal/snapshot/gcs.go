package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSReader reads snapshot batches from a Google Cloud Storage bucket.
type GCSReader struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSReader opens a read-only client against the named bucket.
// Credentials come from the ambient environment unless overridden via opts.
func NewGCSReader(ctx context.Context, bucketName string, opts ...option.ClientOption) (*GCSReader, error) {
	if bucketName == "" {
		return nil, errors.New("snapshot bucket name is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSReader{
		client: client,
		bucket: client.Bucket(bucketName),
	}, nil
}

func (r *GCSReader) List(ctx context.Context, prefix string) ([]string, error) {
	it := r.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects with prefix %q: %w", prefix, err)
		}
		if isBatchKey(attrs.Name) {
			keys = append(keys, attrs.Name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *GCSReader) Read(ctx context.Context, key string) ([]Record, error) {
	rc, err := r.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	defer rc.Close()
	return decodeBatch(rc, key)
}

func (r *GCSReader) Close() error {
	return r.client.Close()
}
