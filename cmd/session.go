package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/provider"
	"github.com/theapemachine/recall/pkg/retrieval"
	"github.com/theapemachine/recall/pkg/stores/s3"
)

var (
	restoreFlag bool
	saveFlag    bool
)

/*
session is one command's view of a user's memory. With --restore it starts
from the user's latest snapshot, with --save it writes a new snapshot when
the command finishes.
*/
type session struct {
	hub      *retrieval.Hub
	pipeline *retrieval.Pipeline
	store    *s3.Store
}

// addSessionFlags registers --restore and --save on commands that use a session.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&restoreFlag, "restore", false, "start from the user's latest snapshot")
	cmd.Flags().BoolVar(&saveFlag, "save", false, "save a snapshot when done")
}

func newHub(ctx context.Context) (*retrieval.Hub, error) {
	embedder, err := provider.NewEmbedder(ctx, cfg.Provider, cfg.Database.VectorDim)

	if err != nil {
		return nil, err
	}

	var opts []retrieval.Option

	if generator := provider.NewGenerator(cfg.Provider); generator != nil {
		opts = append(opts,
			retrieval.WithGenerator(generator),
			retrieval.WithClassifier(retrieval.NewGeneratorClassifier(generator)),
		)
	}

	registry := memory.NewRegistry(cfg, memory.WithEmbedder(embedder))

	return retrieval.NewHub(cfg, registry, nil, opts...), nil
}

func newSnapshotStore(ctx context.Context) (*s3.Store, error) {
	conn, err := s3.NewConn(cfg.Snapshot)

	if err != nil {
		return nil, err
	}

	if err := conn.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	return s3.NewStore(conn), nil
}

func openSession(ctx context.Context) (*session, error) {
	hub, err := newHub(ctx)

	if err != nil {
		return nil, err
	}

	sess := &session{hub: hub}

	if sess.pipeline, err = hub.Pipeline(ctx, userFlag); err != nil {
		return nil, err
	}

	if !restoreFlag && !saveFlag {
		return sess, nil
	}

	if sess.store, err = newSnapshotStore(ctx); err != nil {
		return nil, err
	}

	if !restoreFlag {
		return sess, nil
	}

	snapshot, err := sess.store.Latest(ctx, userFlag)

	switch {
	case errors.Is(err, errors.ErrNotFound):
		log.Info("no snapshot to restore", "user", userFlag)
	case err != nil:
		return nil, err
	default:
		if err := sess.pipeline.Manager().Restore(ctx, snapshot); err != nil {
			return nil, err
		}

		log.Info("snapshot restored", "user", userFlag, "chunks", len(snapshot.Chunks))
	}

	return sess, nil
}

// close saves a snapshot when asked to and releases the hub.
func (sess *session) close(ctx context.Context) error {
	var errs []any

	if saveFlag && sess.store != nil {
		snapshot, err := sess.pipeline.Manager().Snapshot(ctx)

		if err == nil {
			_, err = sess.store.Save(ctx, snapshot)
		}

		errs = append(errs, err)
	}

	errs = append(errs, sess.hub.Close(ctx))

	return errors.NewError(errs...)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return nil
}
