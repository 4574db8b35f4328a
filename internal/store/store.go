// Package store provides the durable lookup cache backing every expensive
// external resolution. Entries are keyed by (pipeline, normalized key) and
// carry a success flag driving resume-on-failure: failed or blank entries can
// be retried on a later run while successful entries short-circuit upstream
// calls entirely.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Entry is one cached resolution. Value is an opaque JSON document owned by
// the store; callers must not mutate it in place.
type Entry struct {
	Pipeline  string
	Key       string
	Value     json.RawMessage
	Success   bool
	UpdatedAt time.Time
}

// Stats summarizes one pipeline's cache population.
type Stats struct {
	Pipeline  string
	Total     int
	Succeeded int
}

// Store is the persistence interface for the lookup cache.
type Store interface {
	// Get returns the entry for (pipeline, key), or nil when absent.
	Get(ctx context.Context, pipeline, key string) (*Entry, error)

	// Put upserts the entry for (pipeline, key).
	Put(ctx context.Context, pipeline, key string, value json.RawMessage, success bool) error

	// Stats returns entry counts for one pipeline, or for all pipelines
	// when pipeline is empty.
	Stats(ctx context.Context, pipeline string) ([]Stats, error)

	// Flush forces buffered state to durable storage.
	Flush(ctx context.Context) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// GetJSON fetches and decodes a cached value into T. The second return is
// false when the entry is absent.
func GetJSON[T any](ctx context.Context, s Store, pipeline, key string) (*T, bool, error) {
	e, err := s.Get(ctx, pipeline, key)
	if err != nil {
		return nil, false, err
	}
	if e == nil {
		return nil, false, nil
	}

	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return nil, true, eris.Wrapf(err, "store: decode %s/%s", pipeline, key)
	}
	return &v, true, nil
}

// PutJSON encodes v and upserts it under (pipeline, key).
func PutJSON(ctx context.Context, s Store, pipeline, key string, v any, success bool) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "store: encode %s/%s", pipeline, key)
	}
	return s.Put(ctx, pipeline, key, raw, success)
}
