// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"testing"

	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/objectstore"
	"github.com/tablelake/cleanup/pkg/snapshot"
)

func seed(t *testing.T, m *objectstore.Memory, paths ...string) {
	t.Helper()
	ctx := context.Background()
	for _, p := range paths {
		if err := m.Write(ctx, p, []byte("x")); err != nil {
			t.Fatalf("Write(%s): %v", p, err)
		}
	}
}

func TestProbeLatestCheckpoint_NoCheckpoints(t *testing.T) {
	m := objectstore.NewMemory()
	seed(t, m, "00000000000000000000.json", "00000000000000000001.json")

	got, err := probeLatestCheckpoint(context.Background(), m, "")
	if err != nil {
		t.Fatalf("probeLatestCheckpoint: %v", err)
	}
	if got.Present {
		t.Fatalf("want no checkpoint present, got %+v", got)
	}
}

func TestProbeLatestCheckpoint_PicksHighestVersion(t *testing.T) {
	m := objectstore.NewMemory()
	seed(t, m,
		"00000000000000000005.checkpoint.parquet",
		"00000000000000000010.checkpoint.parquet",
		"00000000000000000010.json",
	)

	got, err := probeLatestCheckpoint(context.Background(), m, "")
	if err != nil {
		t.Fatalf("probeLatestCheckpoint: %v", err)
	}
	if !got.Present || got.Version != 10 {
		t.Fatalf("want version 10 present, got %+v", got)
	}
	if got.Format != snapshot.FormatClassicSingleFile {
		t.Fatalf("want FormatClassicSingleFile, got %v", got.Format)
	}
	if len(got.TopLevelPaths) != 1 || got.TopLevelPaths[0] != "00000000000000000010.checkpoint.parquet" {
		t.Fatalf("unexpected top-level paths: %v", got.TopLevelPaths)
	}
}

func TestProbeLatestCheckpoint_CollectsMultipartSiblings(t *testing.T) {
	m := objectstore.NewMemory()
	seed(t, m,
		"00000000000000000010.checkpoint.0000000001.0000000002.parquet",
		"00000000000000000010.checkpoint.0000000002.0000000002.parquet",
	)

	got, err := probeLatestCheckpoint(context.Background(), m, "")
	if err != nil {
		t.Fatalf("probeLatestCheckpoint: %v", err)
	}
	if !got.Present || got.Version != 10 {
		t.Fatalf("want version 10 present, got %+v", got)
	}
	if len(got.TopLevelPaths) != 2 {
		t.Fatalf("want both multipart parts collected, got %v", got.TopLevelPaths)
	}
}

func TestToSnapshotFormat(t *testing.T) {
	cases := []struct {
		in   logfmt.CheckpointFormat
		want snapshot.CheckpointFormat
	}{
		{logfmt.FormatNone, snapshot.FormatNone},
		{logfmt.FormatClassicSingleFile, snapshot.FormatClassicSingleFile},
		{logfmt.FormatClassicMultipart, snapshot.FormatClassicMultipart},
		{logfmt.FormatV2TopLevel, snapshot.FormatV2TopLevel},
	}
	for _, c := range cases {
		if got := toSnapshotFormat(c.in); got != c.want {
			t.Errorf("toSnapshotFormat(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
