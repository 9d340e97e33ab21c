package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/stores/s3"
)

var (
	keyFlag string

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Manage memory snapshots in object storage",
		Long:  longSnapshot,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the user's snapshots, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newSnapshotStore(cmd.Context())

			if err != nil {
				return err
			}

			keys, err := store.List(cmd.Context(), userFlag)

			if err != nil {
				return err
			}

			return printJSON(keys)
		},
	}

	snapshotExportCmd = &cobra.Command{
		Use:   "export [file]",
		Short: "Write a snapshot to a file, or stdout when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newSnapshotStore(cmd.Context())

			if err != nil {
				return err
			}

			snapshot, err := loadSnapshot(cmd, store)

			if err != nil {
				return err
			}

			if len(args) == 0 {
				return printJSON(snapshot)
			}

			buf, err := json.MarshalIndent(snapshot, "", "  ")

			if err != nil {
				return err
			}

			return os.WriteFile(args[0], buf, 0644)
		},
	}

	snapshotImportCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Upload a snapshot file for the user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])

			if err != nil {
				return err
			}

			snapshot := &memory.Snapshot{}

			if err := json.Unmarshal(buf, snapshot); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			if snapshot.UserID == "" {
				snapshot.UserID = userFlag
			}

			store, err := newSnapshotStore(cmd.Context())

			if err != nil {
				return err
			}

			key, err := store.Save(cmd.Context(), snapshot)

			if err != nil {
				return err
			}

			return printJSON(map[string]string{"key": key})
		},
	}

	snapshotRestoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Write a snapshot into the configured vector and graph backends",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			store, err := newSnapshotStore(ctx)

			if err != nil {
				return err
			}

			snapshot, err := loadSnapshot(cmd, store)

			if err != nil {
				return err
			}

			hub, err := newHub(ctx)

			if err != nil {
				return err
			}

			defer func() {
				if closeErr := hub.Close(ctx); err == nil {
					err = closeErr
				}
			}()

			pipeline, err := hub.Pipeline(ctx, snapshot.UserID)

			if err != nil {
				return err
			}

			if err := pipeline.Manager().Restore(ctx, snapshot); err != nil {
				return err
			}

			log.Info("snapshot restored", "user", snapshot.UserID, "chunks", len(snapshot.Chunks))

			return printJSON(pipeline.Manager().Stats(ctx))
		},
	}
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotListCmd, snapshotExportCmd, snapshotImportCmd, snapshotRestoreCmd)

	for _, cmd := range []*cobra.Command{snapshotExportCmd, snapshotRestoreCmd} {
		cmd.Flags().StringVarP(&keyFlag, "key", "k", "", "snapshot key, the latest when empty")
	}
}

func loadSnapshot(cmd *cobra.Command, store *s3.Store) (*memory.Snapshot, error) {
	if keyFlag != "" {
		return store.Load(cmd.Context(), keyFlag)
	}

	return store.Latest(cmd.Context(), userFlag)
}

var longSnapshot = `
Snapshots hold a user's complete memory as JSON in an S3 compatible bucket,
configured under the snapshot section of the config file.

Examples:
  # List snapshots
  recall snapshot list -u alice

  # Copy the latest snapshot into Qdrant and Neo4j
  recall snapshot restore -u alice
`
