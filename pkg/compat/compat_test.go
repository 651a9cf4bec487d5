// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compat

import (
	"context"
	"testing"

	"github.com/tablelake/cleanup/pkg/snapshot"
)

type fakeScanner struct {
	version int64
	found   bool
}

func (f *fakeScanner) ClassicCheckpointAtOrBelow(ctx context.Context, ceiling int64) (int64, bool, error) {
	return f.version, f.found, nil
}

type fakeActionSource struct {
	actions []snapshot.Action
}

func (f *fakeActionSource) ReadActionsFromV2Checkpoint(ctx context.Context, paths []string) ([]snapshot.Action, error) {
	return f.actions, nil
}

type fakeWriter struct {
	written bool
	path    string
	actions []snapshot.Action
}

func (f *fakeWriter) WriteClassicSingleFile(ctx context.Context, actions []snapshot.Action, path string) error {
	f.written = true
	f.path = path
	f.actions = actions
	return nil
}

func TestCheckpointer_SkipsWhenAlreadyClassic(t *testing.T) {
	snap := snapshot.NewFakeSnapshot("_delta_log", snapshot.Metadata{V2CheckpointsEnabled: true})
	snap.Provider = snapshot.CheckpointProvider{Present: true, Version: 10, Format: snapshot.FormatClassicSingleFile}
	writer := &fakeWriter{}
	c := New(&fakeScanner{}, &fakeActionSource{}, writer, nil, &snapshot.FakeClock{})

	result, err := c.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.VersionWritten != -1 {
		t.Errorf("VersionWritten = %d, want -1", result.VersionWritten)
	}
	if writer.written {
		t.Error("writer should not have been invoked")
	}
}

func TestCheckpointer_SkipsWhenClassicCoverageExists(t *testing.T) {
	snap := snapshot.NewFakeSnapshot("_delta_log", snapshot.Metadata{V2CheckpointsEnabled: true})
	snap.Provider = snapshot.CheckpointProvider{Present: true, Version: 20, Format: snapshot.FormatV2TopLevel}
	writer := &fakeWriter{}
	c := New(&fakeScanner{version: 18, found: true}, &fakeActionSource{}, writer, nil, &snapshot.FakeClock{})

	result, err := c.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.VersionWritten != -1 {
		t.Errorf("VersionWritten = %d, want -1", result.VersionWritten)
	}
	if writer.written {
		t.Error("writer should not have been invoked")
	}
}

func TestCheckpointer_WritesClassicCheckpointWhenMissing(t *testing.T) {
	snap := snapshot.NewFakeSnapshot("_delta_log", snapshot.Metadata{V2CheckpointsEnabled: true})
	snap.Provider = snapshot.CheckpointProvider{
		Present:       true,
		Version:       20,
		Format:        snapshot.FormatV2TopLevel,
		TopLevelPaths: []string{"_delta_log/00000000000000000020.checkpoint.abcd.json"},
	}
	actions := []snapshot.Action{{Path: "s1.parquet"}, {Path: "s2.parquet"}}
	writer := &fakeWriter{}
	c := New(&fakeScanner{found: false}, &fakeActionSource{actions: actions}, writer, nil, &snapshot.FakeClock{Millis: 1000})

	result, err := c.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.VersionWritten != 20 {
		t.Errorf("VersionWritten = %d, want 20", result.VersionWritten)
	}
	if !writer.written {
		t.Fatal("expected writer to be invoked")
	}
	if writer.path != "_delta_log/00000000000000000020.checkpoint.parquet" {
		t.Errorf("path = %q", writer.path)
	}
	if len(writer.actions) != 2 {
		t.Errorf("actions = %+v", writer.actions)
	}
}

func TestCheckpointer_NoCheckpointPresent(t *testing.T) {
	snap := snapshot.NewFakeSnapshot("_delta_log", snapshot.Metadata{})
	writer := &fakeWriter{}
	c := New(&fakeScanner{}, &fakeActionSource{}, writer, nil, &snapshot.FakeClock{})

	result, err := c.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.VersionWritten != -1 {
		t.Errorf("VersionWritten = %d, want -1", result.VersionWritten)
	}
}
