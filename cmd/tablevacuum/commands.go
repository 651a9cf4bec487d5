// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablelake/cleanup/pkg/checkpointio"
	"github.com/tablelake/cleanup/pkg/cleanup"
	"github.com/tablelake/cleanup/pkg/expiry"
	"github.com/tablelake/cleanup/pkg/logging"
	"github.com/tablelake/cleanup/pkg/loglist"
	"github.com/tablelake/cleanup/pkg/objectstore"
	"github.com/tablelake/cleanup/pkg/protection"
	"github.com/tablelake/cleanup/pkg/snapshot"
	"github.com/tablelake/cleanup/pkg/timeutil"
	"github.com/tablelake/cleanup/pkg/tmetrics"
)

// --- Global command variables ---
var (
	backend              string
	gcsBucket            string
	gcsServiceAccountKey string
	minioEndpoint        string
	minioBucket          string
	minioAccessKey       string
	minioSecretKey       string
	minioUseTLS          bool

	tableLogRoot   string
	tableStagedDir string
	tableSidecars  string

	retention             time.Duration
	protectionVersion     int64
	enableCleanup         bool
	enableV2              bool
	enablePrometheus      bool
	dryRun                bool
	allowWhenAllProtocols bool
	skipExistenceCheck    bool

	rootCmd = &cobra.Command{
		Use:   "tablevacuum",
		Short: "Reclaim expired table log history (VACUUM-style metadata cleanup)",
		Long: `tablevacuum runs the metadata retention and cleanup core against a
single table: it expires old commits, checkpoints, and checksums past the
configured retention horizon, while honoring checkpoint protection and
keeping sidecar part-files reachable.`,
	}

	vacuumCmd = &cobra.Command{
		Use:   "vacuum",
		Short: "Run one cleanup pass against a table",
		RunE:  runVacuum,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "gcs", "Object store backend: gcs, minio, or memory (smoke testing only)")
	rootCmd.PersistentFlags().StringVar(&gcsBucket, "gcs-bucket", "", "GCS bucket name (backend=gcs)")
	rootCmd.PersistentFlags().StringVar(&gcsServiceAccountKey, "gcs-key-file", "", "Path to a GCS service account key (backend=gcs, default: application-default credentials)")
	rootCmd.PersistentFlags().StringVar(&minioEndpoint, "minio-endpoint", "", "S3-compatible endpoint host:port (backend=minio)")
	rootCmd.PersistentFlags().StringVar(&minioBucket, "minio-bucket", "", "Bucket name (backend=minio)")
	rootCmd.PersistentFlags().StringVar(&minioAccessKey, "minio-access-key", "", "Access key (backend=minio)")
	rootCmd.PersistentFlags().StringVar(&minioSecretKey, "minio-secret-key", "", "Secret key (backend=minio)")
	rootCmd.PersistentFlags().BoolVar(&minioUseTLS, "minio-tls", true, "Use TLS against the MinIO endpoint")

	rootCmd.AddCommand(vacuumCmd)
	vacuumCmd.Flags().StringVar(&tableLogRoot, "table", "", "Log root prefix for the table (required)")
	vacuumCmd.Flags().StringVar(&tableStagedDir, "staged-root", "", "Staged (unbackfilled) commits prefix (default: <table>/_staged_commits)")
	vacuumCmd.Flags().StringVar(&tableSidecars, "sidecars-root", "", "Sidecar part-files prefix (default: <table>/_sidecars)")
	vacuumCmd.Flags().DurationVar(&retention, "retention", 7*24*time.Hour, "Log retention horizon")
	vacuumCmd.Flags().Int64Var(&protectionVersion, "protection-version", 0, "Checkpoint protection version (0 disables protection)")
	vacuumCmd.Flags().BoolVar(&enableCleanup, "enable", false, "Master switch; must be set or the run is a no-op (mirrors enableExpiredLogCleanup)")
	vacuumCmd.Flags().BoolVar(&enableV2, "v2-checkpoints", false, "Enable v2-checkpoint paths: CompatCheckpointer and SidecarGC")
	vacuumCmd.Flags().BoolVar(&enablePrometheus, "metrics", false, "Export counters to the Prometheus default registry")
	vacuumCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be deleted without deleting anything")
	vacuumCmd.Flags().BoolVar(&allowWhenAllProtocols, "allow-protocol-shortcut", true, "Runtime knob: allowMetadataCleanupWhenAllProtocolsSupported")
	vacuumCmd.Flags().BoolVar(&skipExistenceCheck, "disable-checkpoint-existence-check", false, "Runtime knob: allowMetadataCleanupCheckpointExistenceCheckDisabled")
	_ = vacuumCmd.MarkFlagRequired("table")
}

func runVacuum(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logging.Default()

	store, err := buildStore(ctx, backend)
	if err != nil {
		return fmt.Errorf("build object store: %w", err)
	}

	stagedRoot := tableStagedDir
	if stagedRoot == "" {
		stagedRoot = tableLogRoot + "/_staged_commits"
	}
	sidecarsRoot := tableSidecars
	if sidecarsRoot == "" {
		sidecarsRoot = tableLogRoot + "/_sidecars"
	}

	provider, err := probeLatestCheckpoint(ctx, store, tableLogRoot)
	if err != nil {
		return fmt.Errorf("probe latest checkpoint: %w", err)
	}

	snap := &probeSnapshot{
		meta: snapshot.Metadata{
			EnableExpiredLogCleanup:    enableCleanup,
			LogRetentionMillis:         retention.Milliseconds(),
			CheckpointProtectionVersion: protectionVersion,
			V2CheckpointsEnabled:       enableV2,
		},
		provider: provider,
		root:     tableLogRoot,
		staged:   stagedRoot,
		sidecars: sidecarsRoot,
	}

	metrics, err := tmetrics.NewDefaultRecorder(enablePrometheus)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	clock := systemClock{}
	caps := localClientCapabilities()
	actions := checkpointio.NewActionReader(store, sidecarsRoot)

	driver := cleanup.New(store, clock, caps, actions, metrics, log)

	ctx = protection.WithAllowMetadataCleanupWhenAllProtocolsSupported(ctx, allowWhenAllProtocols)
	ctx = protection.WithAllowMetadataCleanupCheckpointExistenceCheckDisabled(ctx, skipExistenceCheck)

	if dryRun {
		return previewVacuum(ctx, store, snap, clock, log)
	}

	result, err := driver.Cleanup(ctx, snap)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	log.Info("vacuum complete",
		"state", result.FinalState.String(),
		"files_processed", result.FilesProcessed,
		"files_deleted", result.FilesDeleted,
		"bytes_freed", result.BytesFreed,
		"compat_checkpoint_version", result.CompatCheckpointVersion,
		"sidecars_deleted", result.SidecarsDeleted,
		"sidecars_errored", result.SidecarsErrored,
	)
	return nil
}

// previewVacuum reports the artifacts CleanupDriver's expiry stream would
// propose for deletion (spec §4.8 steps 1-3), without consulting
// ProtectionGate and without deleting anything. It is an approximation,
// not a guarantee: the live run may still deny the whole batch if the
// ProtectionGate's invariant isn't satisfied.
func previewVacuum(ctx context.Context, store objectstore.ObjectStore, snap snapshot.Snapshot, clock snapshot.Clock, log *logging.Logger) error {
	meta := snap.Metadata()
	if !meta.EnableExpiredLogCleanup {
		log.Info("dry run: enableExpiredLogCleanup is false, a live run would no-op")
		return nil
	}

	cutoff := timeutil.TruncateMillis(clock.NowMillis()-meta.LogRetentionMillis, timeutil.Day)
	provider := snap.CheckpointProvider()
	h := int64(-1)
	if provider.Present {
		h = provider.Version - 1
	}

	rawIt, err := loglist.New(store, snap.LogRoot()).List(ctx, 0)
	if err != nil {
		return fmt.Errorf("list log root: %w", err)
	}
	proposed, err := expiry.Drain(ctx, expiry.New(expiry.NewSource(rawIt), h, cutoff))
	if err != nil {
		return fmt.Errorf("build expiry stream: %w", err)
	}

	log.Info("dry run: expiry stream computed (protection gate not evaluated)",
		"cutoff_millis", cutoff, "safety_threshold_version", h, "proposed_count", len(proposed))
	for _, e := range proposed {
		log.Info("dry run: would propose for deletion", "path", e.Path, "kind", e.Classified.Kind.String(), "version", e.Classified.Version)
	}
	return nil
}

// systemClock is the production snapshot.Clock: real wall-clock time.
type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// localClientCapabilities is the protocol surface tablevacuum itself
// claims to support when ProtectionGate rule 6 evaluates checksums. A
// real deployment would derive this from the table engine's own
// supported-features table; tablevacuum advertises reader version 3 and
// writer version 7 with no named table features, so any checksum that
// lists a reader or writer feature fails rule 6.
func localClientCapabilities() snapshot.Capabilities {
	return snapshot.Capabilities{
		MaxReaderVersion: 3,
		MaxWriterVersion: 7,
		ReaderFeatures:   map[string]bool{},
		WriterFeatures:   map[string]bool{},
	}
}
