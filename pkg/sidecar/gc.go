// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sidecar implements SidecarGC (spec §4.7): after a checkpoint
// deletion, remove sidecar part-files no longer referenced by any
// surviving v2 checkpoint. Active-set computation and deletion are two
// distinct phases (spec §9, Open Question (b)) rather than one
// deletion-order-sensitive streaming pass.
package sidecar

import (
	"context"
	"path"

	"github.com/tablelake/cleanup/pkg/loglist"
	"github.com/tablelake/cleanup/pkg/objectstore"
	"github.com/tablelake/cleanup/pkg/snapshot"
)

// CheckpointLister enumerates the surviving v2 top-level checkpoint files
// under the log root.
type CheckpointLister interface {
	SurvivingV2Checkpoints(ctx context.Context) ([]string, error)
}

// MetricsRecorder receives SidecarGC outcomes.
type MetricsRecorder interface {
	RecordSidecarGC(deleted, errored int)
}

// ActiveSetCache optionally caches a checkpoint path's resolved active set
// across runs, grounded on the pack's use of an embedded KV store for
// hot-path lookups. A nil cache disables caching; GC always falls back to
// the CheckpointReader on a miss.
type ActiveSetCache interface {
	Get(topLevelPath string) ([]string, bool)
	Put(topLevelPath string, sidecars []string)
}

// GC runs the two-phase sidecar garbage collector.
//
// # Description
//
// Phase one resolves the active set: the union of bare sidecar filenames
// referenced by every surviving v2 checkpoint. Phase two enumerates the
// sidecars directory and deletes any file older than the cutoff whose
// bare name is not in the active set. The two phases run strictly in
// sequence (spec §9, Open Question (b)) rather than interleaved with
// deletion. A checkpoint written after phase one is not in the active
// set; its sidecars are kept only because files at or after the cutoff
// are never deleted.
//
// # Thread Safety
//
// Safe to reuse across Run calls; Run itself is not safe to call
// concurrently for the same table, since CleanupDriver only ever invokes
// it after a serialized cleanup run's log deletions have completed.
type GC struct {
	checkpoints CheckpointLister
	reader      snapshot.CheckpointReader
	store       objectstore.ObjectStore
	cache       ActiveSetCache
	metrics     MetricsRecorder
}

// New returns a GC. cache and metrics may be nil.
func New(checkpoints CheckpointLister, reader snapshot.CheckpointReader, store objectstore.ObjectStore, cache ActiveSetCache, metrics MetricsRecorder) *GC {
	return &GC{checkpoints: checkpoints, reader: reader, store: store, cache: cache, metrics: metrics}
}

// Run executes the algorithm of spec §4.7 against the sidecars directory
// (if absent, lister yields an empty stream and Run is a no-op), deleting
// any sidecar older than cutoffMillis whose bare filename is not
// referenced by a surviving v2 checkpoint.
func (g *GC) Run(ctx context.Context, lister *loglist.Lister, cutoffMillis int64) (int, int, error) {
	active, err := g.activeSet(ctx)
	if err != nil {
		return 0, 0, err
	}

	it, err := lister.All(ctx)
	if err != nil {
		return 0, 0, err
	}
	list, err := loglist.Drain(ctx, it)
	if err != nil {
		return 0, 0, err
	}

	deleted, errored := 0, 0
	for _, e := range list {
		if err := ctx.Err(); err != nil {
			return deleted, errored, err
		}
		if e.ModificationTime.UnixMilli() >= cutoffMillis {
			continue
		}
		name := path.Base(e.Path)
		if active[name] {
			continue
		}
		ok, err := g.store.Delete(ctx, e.Path)
		if err != nil || !ok {
			errored++
			continue
		}
		deleted++
	}

	if g.metrics != nil {
		g.metrics.RecordSidecarGC(deleted, errored)
	}
	return deleted, errored, nil
}

// activeSet computes the union of bare sidecar filenames referenced by
// every surviving v2 checkpoint (phase 1).
func (g *GC) activeSet(ctx context.Context) (map[string]bool, error) {
	paths, err := g.checkpoints.SurvivingV2Checkpoints(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool)
	for _, p := range paths {
		refs, ok := g.fromCache(p)
		if !ok {
			refs, err = g.reader.SidecarReferences(ctx, p)
			if err != nil {
				return nil, err
			}
			g.toCache(p, refs)
		}
		for _, r := range refs {
			active[path.Base(r)] = true
		}
	}
	return active, nil
}

func (g *GC) fromCache(p string) ([]string, bool) {
	if g.cache == nil {
		return nil, false
	}
	return g.cache.Get(p)
}

func (g *GC) toCache(p string, refs []string) {
	if g.cache == nil {
		return
	}
	g.cache.Put(p, refs)
}

