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

	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/loglist"
	"github.com/tablelake/cleanup/pkg/objectstore"
	"github.com/tablelake/cleanup/pkg/snapshot"
)

// probeSnapshot is the thin adapter between a table's persisted state and
// the in-memory snapshot.Snapshot handle the cleanup core expects. The
// core treats the handle as externally supplied (spec §6 "Snapshot
// (input)"); this is the surrounding system's job, not the core's, but
// tablevacuum needs something concrete to pass in.
type probeSnapshot struct {
	meta     snapshot.Metadata
	provider snapshot.CheckpointProvider
	root     string
	staged   string
	sidecars string
}

func (s *probeSnapshot) Metadata() snapshot.Metadata                     { return s.meta }
func (s *probeSnapshot) CheckpointProvider() snapshot.CheckpointProvider { return s.provider }
func (s *probeSnapshot) LogRoot() string                                { return s.root }
func (s *probeSnapshot) StagedCommitsRoot() string                      { return s.staged }
func (s *probeSnapshot) SidecarsRoot() string                           { return s.sidecars }

var _ snapshot.Snapshot = (*probeSnapshot)(nil)

// probeLatestCheckpoint scans logRoot for the highest-version complete
// checkpoint, returning a CheckpointProvider describing it. Multipart
// classic checkpoints collect every part sharing the winning version.
func probeLatestCheckpoint(ctx context.Context, store objectstore.ObjectStore, logRoot string) (snapshot.CheckpointProvider, error) {
	it, err := loglist.New(store, logRoot).List(ctx, 0)
	if err != nil {
		return snapshot.CheckpointProvider{}, fmt.Errorf("list log root %s: %w", logRoot, err)
	}
	entries, err := loglist.Drain(ctx, it)
	if err != nil {
		return snapshot.CheckpointProvider{}, fmt.Errorf("drain log root %s: %w", logRoot, err)
	}

	var best snapshot.CheckpointProvider
	for _, e := range entries {
		c := logfmt.Classify(e.Path)
		if c.Kind != logfmt.Checkpoint {
			continue
		}
		switch {
		case !best.Present || c.Version > best.Version:
			best = snapshot.CheckpointProvider{
				Present:       true,
				Version:       c.Version,
				Format:        toSnapshotFormat(c.Format),
				TopLevelPaths: []string{e.Path},
			}
		case c.Version == best.Version && c.Format == logfmt.FormatClassicMultipart:
			best.TopLevelPaths = append(best.TopLevelPaths, e.Path)
		}
	}
	return best, nil
}

func toSnapshotFormat(f logfmt.CheckpointFormat) snapshot.CheckpointFormat {
	switch f {
	case logfmt.FormatClassicSingleFile:
		return snapshot.FormatClassicSingleFile
	case logfmt.FormatClassicMultipart:
		return snapshot.FormatClassicMultipart
	case logfmt.FormatV2TopLevel:
		return snapshot.FormatV2TopLevel
	default:
		return snapshot.FormatNone
	}
}
