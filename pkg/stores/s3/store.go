/*
Package s3 keeps memory snapshots as JSON objects in an S3 compatible bucket,
one object per snapshot under the owning user's prefix.
*/
package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

// keyLayout sorts lexically in time order.
const keyLayout = "20060102T150405.000000000Z"

// Store saves and loads memory snapshots.
type Store struct {
	bucket Bucket
}

func NewStore(bucket Bucket) *Store {
	return &Store{bucket: bucket}
}

// Key is the object key a snapshot is stored under.
func Key(userID string, at time.Time) string {
	return prefix(userID) + at.UTC().Format(keyLayout) + ".json"
}

// prefix escapes the user id so that no id can be a path prefix of another.
func prefix(userID string) string {
	return url.PathEscape(userID) + "/"
}

// Save writes the snapshot and returns the key it was stored under.
func (store *Store) Save(ctx context.Context, snapshot *memory.Snapshot) (string, error) {
	if snapshot == nil || snapshot.UserID == "" {
		return "", fmt.Errorf("snapshot without user: %w", errors.ErrInvalidConfig)
	}

	createdAt := snapshot.CreatedAt

	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	buf, err := json.Marshal(snapshot)

	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := Key(snapshot.UserID, createdAt)

	if err := store.bucket.Put(ctx, key, buf); err != nil {
		log.Error("failed to save snapshot", "key", key, "error", err)
		return "", err
	}

	log.Info("snapshot saved",
		"key", key,
		"chunks", len(snapshot.Chunks),
		"semantic", len(snapshot.Semantic.Nodes),
		"procedural", len(snapshot.Procedural.Nodes),
	)

	return key, nil
}

// Load reads one snapshot by key.
func (store *Store) Load(ctx context.Context, key string) (*memory.Snapshot, error) {
	buf, err := store.bucket.Get(ctx, key)

	if err != nil {
		return nil, err
	}

	snapshot := &memory.Snapshot{}

	if err := json.Unmarshal(buf, snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}

	return snapshot, nil
}

// List returns the user's snapshot keys, oldest first.
func (store *Store) List(ctx context.Context, userID string) ([]string, error) {
	keys, err := store.bucket.List(ctx, prefix(userID))

	if err != nil {
		return nil, err
	}

	keys = slices.DeleteFunc(keys, func(key string) bool {
		return !strings.HasSuffix(key, ".json")
	})

	slices.Sort(keys)

	return keys, nil
}

// Latest loads the user's most recent snapshot.
func (store *Store) Latest(ctx context.Context, userID string) (*memory.Snapshot, error) {
	keys, err := store.List(ctx, userID)

	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("snapshot for %q: %w", userID, errors.ErrNotFound)
	}

	return store.Load(ctx, keys[len(keys)-1])
}
