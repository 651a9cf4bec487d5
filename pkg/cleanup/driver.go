// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cleanup implements CleanupDriver (spec §4.8-§4.9): the
// top-level cleanup(snapshot) operation that orchestrates TimeTruncator,
// ExpiryIterator, ProtectionGate, CompatCheckpointer, and SidecarGC.
package cleanup

import (
	"context"

	"github.com/tablelake/cleanup/pkg/checkpointio"
	"github.com/tablelake/cleanup/pkg/compat"
	"github.com/tablelake/cleanup/pkg/expiry"
	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/logging"
	"github.com/tablelake/cleanup/pkg/loglist"
	"github.com/tablelake/cleanup/pkg/objectstore"
	"github.com/tablelake/cleanup/pkg/protection"
	"github.com/tablelake/cleanup/pkg/sidecar"
	"github.com/tablelake/cleanup/pkg/snapshot"
	"github.com/tablelake/cleanup/pkg/tableerrors"
	"github.com/tablelake/cleanup/pkg/timeutil"
	"github.com/tablelake/cleanup/pkg/tmetrics"
)

// State names the CleanupDriver state machine's positions (spec §4.9):
// Idle -> Planning -> (GateDenied -> Idle) | Executing -> (SidecarGC -> Idle) | Idle.
type State int

const (
	Idle State = iota
	Planning
	GateDenied
	Executing
	RunningSidecarGC
)

func (s State) String() string {
	switch s {
	case Planning:
		return "Planning"
	case GateDenied:
		return "GateDenied"
	case Executing:
		return "Executing"
	case RunningSidecarGC:
		return "RunningSidecarGC"
	default:
		return "Idle"
	}
}

// Result summarizes a single Cleanup invocation, for callers that want
// more than the state machine's final Idle.
type Result struct {
	FinalState              State
	FilesProcessed          int
	FilesDeleted            int
	BytesFreed              int64
	MaxDeletedCommitVersion int64
	CompatCheckpointVersion int64 // -1 if none written
	SidecarsDeleted         int
	SidecarsErrored         int
}

// Driver is the CleanupDriver (spec §4.8).
//
// # Description
//
// Driver owns the top-level cleanup(snapshot) operation: it truncates
// the retention cutoff, drains the ExpiryIterator, consults the
// ProtectionGate, runs the CompatCheckpointer when a v2 checkpoint needs
// legacy coverage, deletes the expired artifacts in log order, sweeps
// shadowed unbackfilled commits, and runs SidecarGC when a checkpoint was
// deleted. Every step after the ProtectionGate check tolerates per-file
// deletion failure; only listing failures and other fatal object-store
// errors propagate (spec §7).
//
// # Thread Safety
//
// A Driver is stateless between invocations except for its injected
// collaborators (store, clock, metrics, log), all of which are safe to
// share across many Cleanup calls against different snapshots. A single
// Cleanup call is not safe to run concurrently with another Cleanup call
// against the *same* snapshot's table; the surrounding transaction engine
// is responsible for serializing cleanup runs per table (spec §5).
type Driver struct {
	store   objectstore.ObjectStore
	clock   snapshot.Clock
	caps    snapshot.Capabilities
	metrics tmetrics.Recorder
	log     *logging.Logger

	actions snapshot.ActionSource
}

// New returns a Driver. metrics and log may be nil (a NoopRecorder and
// logging.Default() are used respectively).
func New(store objectstore.ObjectStore, clock snapshot.Clock, caps snapshot.Capabilities, actions snapshot.ActionSource, metrics tmetrics.Recorder, log *logging.Logger) *Driver {
	if metrics == nil {
		metrics = tmetrics.NewNoopRecorder()
	}
	if log == nil {
		log = logging.Default()
	}
	return &Driver{store: store, clock: clock, caps: caps, metrics: metrics, log: log, actions: actions}
}

// Cleanup runs one cleanup pass against snap.
//
// # Description
//
// Implements the nine-step CleanupDriver contract of spec §4.8: checks
// the table's enableExpiredLogCleanup switch, computes the DAY-truncated
// cutoff, builds and drains the expiry stream, consults the
// ProtectionGate, synthesizes a compat checkpoint if needed, deletes
// expired artifacts in ascending version order, sweeps shadowed staged
// commits, and runs SidecarGC if any checkpoint was deleted. A denied
// ProtectionGate ends the run at GateDenied, and an empty expiry stream
// ends it at Idle, with no artifacts touched; both are normal, non-error
// outcomes (spec §7).
//
// # Inputs
//
//   - ctx: checked for cancellation between object-store operations
//     (spec §5); also carries the two ProtectionGate runtime knobs via
//     protection.With*.
//   - snap: the read-only table handle; borrowed, never mutated.
//
// # Outputs
//
//   - Result: counts and the final State reached (Idle or GateDenied).
//   - error: nil on every normal outcome, including a gate denial;
//     non-nil for fatal object-store failures (tableerrors.StorageUnavailable),
//     and ctx's own error when ctx is cancelled during the deletion loop.
//
// # Examples
//
//	driver := cleanup.New(store, clock, caps, actions, metrics, log)
//	result, err := driver.Cleanup(ctx, snap)
//	if err != nil {
//	    return fmt.Errorf("vacuum: %w", err)
//	}
//	log.Info("vacuum done", "deleted", result.FilesDeleted)
func (d *Driver) Cleanup(ctx context.Context, snap snapshot.Snapshot) (Result, error) {
	meta := snap.Metadata()

	// Step 1.
	if !meta.EnableExpiredLogCleanup {
		return Result{FinalState: Idle, CompatCheckpointVersion: -1}, nil
	}

	// Step 2: grace-windowed cutoff.
	cutoff := timeutil.TruncateMillis(d.clock.NowMillis()-meta.LogRetentionMillis, timeutil.Day)

	provider := snap.CheckpointProvider()
	h := int64(-1)
	if provider.Present {
		h = provider.Version - 1
	}

	// Step 3: build and drain the expiry stream. The expired subset is
	// bounded by definition (it is strictly older than the retention
	// window), so materializing it here is fine even though the
	// underlying log walk stays lazy.
	rawIt, err := loglist.New(d.store, snap.LogRoot()).List(ctx, 0)
	if err != nil {
		return Result{}, tableerrors.StorageUnavailable("list log root", err)
	}
	expIter := expiry.New(expiry.NewSource(rawIt), h, cutoff)
	proposed, err := expiry.Drain(ctx, expIter)
	if err != nil {
		return Result{}, tableerrors.StorageUnavailable("build expiry stream", err)
	}
	if len(proposed) == 0 {
		return Result{FinalState: Idle, CompatCheckpointVersion: -1}, nil
	}

	// Step 4: ProtectionGate.
	logChk := newLogCheckpoints(d.store, snap.LogRoot())
	gate := protection.New(logChk, newChecksumReader(d.store, snap.LogRoot()), d.caps)
	decision, err := gate.Evaluate(ctx, meta, proposed)
	if err != nil {
		return Result{}, tableerrors.StorageUnavailable("evaluate protection gate", err)
	}
	if !decision.Allowed {
		d.log.Info("cleanup skipped: protection gate denied", "reason", decision.Reason)
		d.metrics.RecordGateDenied()
		return Result{FinalState: GateDenied, CompatCheckpointVersion: -1}, nil
	}

	// Step 5: CompatCheckpointer, only for v2-enabled tables with a
	// current checkpoint to cover.
	compatVersion := int64(-1)
	if meta.V2CheckpointsEnabled && provider.Present {
		checkpointer := compat.New(logChk, d.actions, checkpointio.NewWriter(d.store), d.metrics, d.clock)
		compatResult, err := checkpointer.Run(ctx, snap)
		if err != nil {
			return Result{}, tableerrors.StorageUnavailable("run compat checkpointer", err)
		}
		compatVersion = compatResult.VersionWritten
	}

	// Step 6: delete in order, tolerating per-file failures.
	numDeleted := 0
	bytesFreed := int64(0)
	anyCheckpointDeleted := false
	maxDeletedCommitVersion := int64(-1)
	for _, e := range proposed {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		ok, err := d.store.Delete(ctx, e.Path)
		if err != nil || !ok {
			continue
		}
		numDeleted++
		bytesFreed += e.Size
		if e.Classified.Kind == logfmt.Checkpoint {
			anyCheckpointDeleted = true
		}
		if e.Classified.Kind == logfmt.Commit && e.Classified.Version > maxDeletedCommitVersion {
			maxDeletedCommitVersion = e.Classified.Version
		}
	}

	// Step 7: sweep shadowed unbackfilled commits.
	if maxDeletedCommitVersion >= 0 {
		if err := d.sweepStagedCommits(ctx, snap, maxDeletedCommitVersion); err != nil {
			return Result{}, tableerrors.StorageUnavailable("sweep staged commits", err)
		}
	}

	// Step 8: SidecarGC, only on a v2-enabled table and only once some
	// checkpoint has actually been deleted.
	sidecarsDeleted, sidecarsErrored := 0, 0
	if anyCheckpointDeleted && meta.V2CheckpointsEnabled {
		gc := sidecar.New(logChk, checkpointio.NewReader(d.store), d.store, nil, d.metrics)
		lister := loglist.New(d.store, snap.SidecarsRoot())
		sidecarsDeleted, sidecarsErrored, err = gc.Run(ctx, lister, cutoff)
		if err != nil {
			return Result{}, tableerrors.StorageUnavailable("run sidecar gc", err)
		}
	}

	// Step 9: counters.
	d.metrics.RecordFilesProcessed(len(proposed))
	d.metrics.RecordFilesDeleted(numDeleted)
	d.metrics.RecordBytesFreed(bytesFreed)

	return Result{
		FinalState:              Idle,
		FilesProcessed:          len(proposed),
		FilesDeleted:            numDeleted,
		BytesFreed:              bytesFreed,
		MaxDeletedCommitVersion: maxDeletedCommitVersion,
		CompatCheckpointVersion: compatVersion,
		SidecarsDeleted:         sidecarsDeleted,
		SidecarsErrored:         sidecarsErrored,
	}, nil
}

// sweepStagedCommits deletes unbackfilled commits whose version is <=
// maxDeletedCommitVersion (spec §4.8 step 7, invariant 5): an
// unbackfilled commit can never outlive the backfilled commit history
// that shadows it.
func (d *Driver) sweepStagedCommits(ctx context.Context, snap snapshot.Snapshot, maxDeletedCommitVersion int64) error {
	lister := loglist.New(d.store, snap.StagedCommitsRoot())
	it, err := lister.All(ctx)
	if err != nil {
		return err
	}
	entries, err := loglist.Drain(ctx, it)
	if err != nil {
		return err
	}
	for _, e := range entries {
		c := logfmt.Classify(e.Path)
		if c.Kind != logfmt.Commit || c.Version > maxDeletedCommitVersion {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _ = d.store.Delete(ctx, e.Path) // best-effort, per-file failures tolerated
	}
	return nil
}
