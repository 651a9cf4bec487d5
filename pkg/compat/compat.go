// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compat implements CompatCheckpointer (spec §4.6): before any
// destructive work, it ensures a classic-format checkpoint exists at the
// table's current checkpoint version so pre-v2 readers fail cleanly
// instead of confusingly.
package compat

import (
	"context"
	"fmt"
	"time"

	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/snapshot"
)

// LogScanner finds an existing non-v2 complete checkpoint at or below a
// version ceiling, used by step 2 of the algorithm.
type LogScanner interface {
	// ClassicCheckpointAtOrBelow returns the highest-version non-v2
	// complete checkpoint with version <= ceiling, if any.
	ClassicCheckpointAtOrBelow(ctx context.Context, ceiling int64) (version int64, found bool, err error)
}

// Result records what Run did, for metrics (spec §4.6 step 4).
type Result struct {
	// VersionWritten is the version a checkpoint was synthesized at, or
	// -1 if the run found existing coverage and skipped.
	VersionWritten int64
	Elapsed        time.Duration
}

// MetricsRecorder receives the outcome of a compat run.
type MetricsRecorder interface {
	RecordCompatCheckpoint(versionWritten int64, elapsed time.Duration)
}

// Checkpointer synthesizes the legacy single-file checkpoint.
//
// # Description
//
// Runs before any deletion in a run that will delete at least one
// artifact: if the table's current checkpoint is already classic, or a
// non-v2 complete checkpoint already covers it, Run is a no-op. Otherwise
// it materializes the v2 checkpoint's actions and writes them as a
// single-file classic checkpoint at the same version, so pre-v2 readers
// fail with a clean protocol error instead of a confusing missing-file
// one. Idempotent: a second Run re-detects existing coverage.
//
// # Thread Safety
//
// Safe to reuse across Run calls for different tables; Run itself should
// not be called concurrently against the same table's checkpoint version,
// since two concurrent writers could race on the same target path.
type Checkpointer struct {
	scanner LogScanner
	actions snapshot.ActionSource
	writer  snapshot.CheckpointWriter
	metrics MetricsRecorder
	clock   snapshot.Clock
}

// New returns a Checkpointer. metrics may be nil, in which case outcomes
// are not recorded (tests commonly pass nil).
func New(scanner LogScanner, actions snapshot.ActionSource, writer snapshot.CheckpointWriter, metrics MetricsRecorder, clock snapshot.Clock) *Checkpointer {
	return &Checkpointer{scanner: scanner, actions: actions, writer: writer, metrics: metrics, clock: clock}
}

// Run executes the algorithm of spec §4.6 against snap's current
// checkpoint provider. It is idempotent: a second run re-detects step 2
// and returns without writing again.
func (c *Checkpointer) Run(ctx context.Context, snap snapshot.Snapshot) (Result, error) {
	start := c.clock.NowMillis()

	provider := snap.CheckpointProvider()
	if !provider.Present {
		return c.skip(start), nil
	}

	// Step 1: already classic, nothing to do.
	if provider.Format != snapshot.FormatV2TopLevel {
		return c.skip(start), nil
	}

	// Step 2: a non-v2 complete checkpoint at or below this version
	// already exists.
	_, found, err := c.scanner.ClassicCheckpointAtOrBelow(ctx, provider.Version)
	if err != nil {
		return Result{}, fmt.Errorf("scan for existing classic checkpoint: %w", err)
	}
	if found {
		return c.skip(start), nil
	}

	// Step 3: materialize the v2 checkpoint's actions and write them as
	// a single-file classic checkpoint, directly (no rename needed: the
	// target filename is unique per version).
	actions, err := c.actions.ReadActionsFromV2Checkpoint(ctx, provider.TopLevelPaths)
	if err != nil {
		return Result{}, fmt.Errorf("read v2 checkpoint actions: %w", err)
	}
	path := logfmt.CompatClassicCheckpointPath(snap.LogRoot(), provider.Version)
	if err := c.writer.WriteClassicSingleFile(ctx, actions, path); err != nil {
		return Result{}, fmt.Errorf("write compat checkpoint: %w", err)
	}

	result := Result{VersionWritten: provider.Version, Elapsed: c.elapsedSince(start)}
	c.record(result)
	return result, nil
}

func (c *Checkpointer) skip(start int64) Result {
	result := Result{VersionWritten: -1, Elapsed: c.elapsedSince(start)}
	c.record(result)
	return result
}

func (c *Checkpointer) elapsedSince(startMillis int64) time.Duration {
	return time.Duration(c.clock.NowMillis()-startMillis) * time.Millisecond
}

func (c *Checkpointer) record(r Result) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordCompatCheckpoint(r.VersionWritten, r.Elapsed)
}
