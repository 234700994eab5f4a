package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-deconflict/pkg/backup"
	"github.com/dd0wney/cluso-deconflict/pkg/constraints"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
)

// checkedRestore only accepts snapshots that pass the deconfliction rules.
type checkedRestore struct {
	graph *storage.GraphStorage
}

func (r checkedRestore) Restore(data []byte) error {
	return r.graph.RestoreChecked(data, constraints.Guard(constraints.Deconfliction()))
}

func (a *app) newBackup(cmd *cobra.Command, bucket string) (*backup.Backup, error) {
	cfg := a.cfg.Backup
	if bucket != "" {
		cfg.Bucket = bucket
	}
	if cfg.Bucket == "" {
		return nil, backup.ErrNoBucket
	}
	objects, err := a.newObjectStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	return backup.New(objects, backup.Options{Bucket: cfg.Bucket, Prefix: cfg.Prefix, Logger: a.log})
}

func (a *app) backupCmd() *cobra.Command {
	var bucket, key string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload a snapshot of the embedded graph to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.newBackup(cmd, bucket)
			if err != nil {
				return err
			}
			be, err := a.embeddedGraph(ctx, "backup")
			if err != nil {
				return err
			}
			defer a.closeStore(ctx, be)

			res, err := b.Upload(ctx, be.graph, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Uploaded %d bytes to s3://%s/%s\n", res.Size, res.Bucket, res.Key)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "destination bucket (default backup.bucket)")
	cmd.Flags().StringVar(&key, "key", "", "object key (default a timestamped name under backup.prefix)")
	return cmd
}

func (a *app) restoreCmd() *cobra.Command {
	var bucket, key string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the embedded graph with a snapshot from S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return errors.New("--key is required")
			}
			ctx := cmd.Context()
			b, err := a.newBackup(cmd, bucket)
			if err != nil {
				return err
			}
			be, err := a.embeddedGraph(ctx, "restore")
			if err != nil {
				return err
			}

			if err := b.Restore(ctx, key, checkedRestore{graph: be.graph}); err != nil {
				// keep the snapshot on disk as it was
				be.graph.Discard()
				a.closeStore(ctx, be)
				if errors.Is(err, constraints.ErrIntegrity) {
					return &exitError{code: exitIntegrity, msg: err.Error()}
				}
				return err
			}
			// closing writes the restored graph to the snapshot path
			if err := be.Close(ctx); err != nil {
				return fmt.Errorf("failed to persist restored graph: %w", err)
			}
			stats := be.graph.GetStatistics()
			fmt.Fprintf(a.stdout, "Restored %d nodes and %d edges from s3://%s/%s\n",
				stats.NodeCount, stats.EdgeCount, b.Bucket(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "source bucket (default backup.bucket)")
	cmd.Flags().StringVar(&key, "key", "", "object key to restore")
	return cmd
}
