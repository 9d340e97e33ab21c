package s3

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (bucket *fakeBucket) Put(_ context.Context, key string, body []byte) error {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.objects[key] = append([]byte(nil), body...)
	return nil
}

func (bucket *fakeBucket) Get(_ context.Context, key string) ([]byte, error) {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	buf, ok := bucket.objects[key]

	if !ok {
		return nil, errors.ErrNotFound
	}

	return buf, nil
}

func (bucket *fakeBucket) List(_ context.Context, prefix string) ([]string, error) {
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	var keys []string

	for key := range bucket.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func TestKey(t *testing.T) {
	Convey("Given two instants a nanosecond apart", t, func() {
		first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		second := first.Add(time.Nanosecond)

		Convey("Then their keys should sort in time order under the user prefix", func() {
			So(Key("alice", first), ShouldEqual, "alice/20250601T120000.000000000Z.json")
			So(Key("alice", first) < Key("alice", second), ShouldBeTrue)
		})

		Convey("Then a slash in the user id should not nest under another user", func() {
			So(Key("a/b", first), ShouldEqual, "a%2Fb/20250601T120000.000000000Z.json")
			So(strings.HasPrefix(Key("a/b", first), prefix("a")), ShouldBeFalse)
			So(prefix("a%2Fb"), ShouldNotEqual, prefix("a/b"))
		})
	})
}

func TestStoreUserPrefixes(t *testing.T) {
	Convey("Given snapshots for users whose ids share a path prefix", t, func() {
		ctx := context.Background()
		store := NewStore(newFakeBucket())
		at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		_, err := store.Save(ctx, &memory.Snapshot{UserID: "a", CreatedAt: at})
		So(err, ShouldBeNil)
		_, err = store.Save(ctx, &memory.Snapshot{UserID: "a/b", CreatedAt: at.Add(time.Hour)})
		So(err, ShouldBeNil)

		Convey("When listing and loading the shorter id", func() {
			keys, err := store.List(ctx, "a")
			So(err, ShouldBeNil)

			latest, err := store.Latest(ctx, "a")

			Convey("Then only its own snapshot should be visible", func() {
				So(keys, ShouldResemble, []string{Key("a", at)})
				So(err, ShouldBeNil)
				So(latest.UserID, ShouldEqual, "a")
			})
		})

		Convey("When listing the nested id", func() {
			keys, err := store.List(ctx, "a/b")

			Convey("Then only the nested user's snapshot should be visible", func() {
				So(err, ShouldBeNil)
				So(keys, ShouldResemble, []string{Key("a/b", at.Add(time.Hour))})
			})
		})
	})
}

func TestStore(t *testing.T) {
	Convey("Given a store over an empty bucket", t, func() {
		ctx := context.Background()
		bucket := newFakeBucket()
		store := NewStore(bucket)

		Convey("When the user has no snapshots", func() {
			_, err := store.Latest(ctx, "alice")

			Convey("Then Latest should report not found", func() {
				So(errors.Is(err, errors.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a snapshot has no user", func() {
			_, err := store.Save(ctx, &memory.Snapshot{})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, errors.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When a manager's memory is saved twice", func() {
			cfg := config.Default()
			cfg.Database.VectorDim = 16

			manager, err := memory.NewManager(ctx, cfg, "alice")
			So(err, ShouldBeNil)

			_, err = manager.AddEpisodic(ctx, memory.NewMemoryChunk("first note", "alice", memory.TaskGeneralQA, nil))
			So(err, ShouldBeNil)
			So(manager.AddProceduralNode(ctx, memory.NewNode("Python", "Language", nil)), ShouldBeNil)

			older, err := manager.Snapshot(ctx)
			So(err, ShouldBeNil)
			older.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

			_, err = manager.AddEpisodic(ctx, memory.NewMemoryChunk("second note", "alice", memory.TaskGeneralQA, nil))
			So(err, ShouldBeNil)

			newer, err := manager.Snapshot(ctx)
			So(err, ShouldBeNil)
			newer.CreatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

			newerKey, err := store.Save(ctx, newer)
			So(err, ShouldBeNil)
			olderKey, err := store.Save(ctx, older)
			So(err, ShouldBeNil)

			So(bucket.Put(ctx, "alice/notes.txt", []byte("ignored")), ShouldBeNil)
			So(bucket.Put(ctx, "bob/20250301T000000.000000000Z.json", []byte("{}")), ShouldBeNil)

			Convey("Then List should return only the user's snapshots, oldest first", func() {
				keys, err := store.List(ctx, "alice")
				So(err, ShouldBeNil)
				So(keys, ShouldResemble, []string{olderKey, newerKey})
			})

			Convey("Then Latest should load the newest snapshot", func() {
				snapshot, err := store.Latest(ctx, "alice")
				So(err, ShouldBeNil)
				So(snapshot.UserID, ShouldEqual, "alice")
				So(len(snapshot.Chunks), ShouldEqual, 2)
				So(len(snapshot.Procedural.Nodes), ShouldEqual, 1)
				So(snapshot.Procedural.Nodes[0].ID, ShouldEqual, "Python")
			})

			Convey("Then a loaded snapshot should restore into a fresh manager", func() {
				snapshot, err := store.Load(ctx, olderKey)
				So(err, ShouldBeNil)

				fresh, err := memory.NewManager(ctx, cfg, "alice")
				So(err, ShouldBeNil)
				So(fresh.Restore(ctx, snapshot), ShouldBeNil)

				_, err = fresh.ProceduralNode(ctx, "Python")
				So(err, ShouldBeNil)
				So(fresh.Stats(ctx).EpisodicChunks, ShouldEqual, 1)
			})
		})

		Convey("When a stored object is not JSON", func() {
			So(bucket.Put(ctx, "alice/broken.json", []byte("{")), ShouldBeNil)
			_, err := store.Load(ctx, "alice/broken.json")

			Convey("Then Load should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestNewConn(t *testing.T) {
	Convey("Given a snapshot config without an endpoint", t, func() {
		_, err := NewConn(config.Snapshot{Bucket: "recall"})

		Convey("Then NewConn should reject it", func() {
			So(errors.Is(err, errors.ErrInvalidConfig), ShouldBeTrue)
		})
	})

	Convey("Given a complete snapshot config", t, func() {
		conn, err := NewConn(config.Snapshot{
			Endpoint:  "localhost:9000",
			Bucket:    "recall",
			AccessKey: "minio",
			SecretKey: "minio123",
		})

		Convey("Then a client should be built without dialing", func() {
			So(err, ShouldBeNil)
			So(conn.Client, ShouldNotBeNil)
		})
	})
}
