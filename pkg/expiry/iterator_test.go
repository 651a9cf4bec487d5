// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package expiry

import (
	"context"
	"testing"
	"time"

	"github.com/tablelake/cleanup/pkg/logfmt"
)

type fixedSource struct {
	entries []Entry
	i       int
}

func (s *fixedSource) Next(ctx context.Context) (Entry, bool, error) {
	if s.i >= len(s.entries) {
		return Entry{}, false, nil
	}
	e := s.entries[s.i]
	s.i++
	return e, true, nil
}

func mkEntry(path string, version int64, ageDays int) Entry {
	return Entry{
		Path:       path,
		ModTime:    time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -ageDays),
		Classified: logfmt.Classified{Kind: logfmt.Commit, Version: version},
	}
}

func TestIterator_EmitsOnlyVersionsBelowHAndBeforeCutoff(t *testing.T) {
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	entries := []Entry{
		mkEntry("v0", 0, 40),
		mkEntry("v1", 1, 40),
		mkEntry("v2", 2, 40),
		mkEntry("v3", 3, 1), // young successor of v2: v2 fails condition "b"
	}
	src := &fixedSource{entries: entries}
	it := New(src, 5, cutoff) // H = 5, everything below threshold
	got, err := Drain(context.Background(), it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	// v0, v1 safe (old successor); v2 not safe (successor v3 exists, but
	// v3's time is young -> violates condition b) -- so v2 must NOT be emitted.
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(got), got)
	}
	if got[0].Path != "v0" || got[1].Path != "v1" {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestIterator_TerminalFlushDropsLastBuffered(t *testing.T) {
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	entries := []Entry{
		mkEntry("v0", 0, 40),
		mkEntry("v1", 1, 40), // old successor -> v0 should be emitted
	}
	src := &fixedSource{entries: entries}
	it := New(src, 10, cutoff)
	got, err := Drain(context.Background(), it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 1 || got[0].Path != "v0" {
		t.Fatalf("got %+v, want only v0 (v1 has no successor witness)", got)
	}
}

func TestIterator_SafetyThresholdExcludesVersionsAboveH(t *testing.T) {
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	entries := []Entry{
		mkEntry("v5", 5, 40),
		mkEntry("v6", 6, 40),
		mkEntry("v7", 7, 40),
	}
	src := &fixedSource{entries: entries}
	it := New(src, 5, cutoff) // H = 5: only version 5 is eligible
	got, err := Drain(context.Background(), it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 1 || got[0].Path != "v5" {
		t.Fatalf("got %+v, want only v5", got)
	}
}

func TestIterator_MultipleArtifactsPerVersionBufferTogether(t *testing.T) {
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	entries := []Entry{
		mkEntry("v0.checkpoint.parquet", 0, 40),
		mkEntry("v0.crc", 0, 40),
		mkEntry("v0.json", 0, 40),
		mkEntry("v1.json", 1, 40),
	}
	src := &fixedSource{entries: entries}
	it := New(src, 10, cutoff)
	got, err := Drain(context.Background(), it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3 (all of v0's artifacts): %+v", len(got), got)
	}
}

func TestIterator_EmptyStream(t *testing.T) {
	src := &fixedSource{}
	it := New(src, 10, 0)
	got, err := Drain(context.Background(), it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty, got %+v", got)
	}
}
