// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

// FakeSnapshot is an in-memory Snapshot used across the cleanup core's
// test suites, grounded on the project's own preference for small
// hand-written fakes over generated mocks.
type FakeSnapshot struct {
	Meta      Metadata
	Provider  CheckpointProvider
	Root      string
	StagedDir string
	SidecarDir string
}

// NewFakeSnapshot returns a FakeSnapshot rooted at root, with the
// conventional "_staged_commits" and "_sidecars" subdirectories.
func NewFakeSnapshot(root string, meta Metadata) *FakeSnapshot {
	return &FakeSnapshot{
		Meta:       meta,
		Root:       root,
		StagedDir:  joinNonEmpty(root, "_staged_commits"),
		SidecarDir: joinNonEmpty(root, "_sidecars"),
	}
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + "/" + b
}

func (f *FakeSnapshot) Metadata() Metadata                     { return f.Meta }
func (f *FakeSnapshot) CheckpointProvider() CheckpointProvider { return f.Provider }
func (f *FakeSnapshot) LogRoot() string                        { return f.Root }
func (f *FakeSnapshot) StagedCommitsRoot() string              { return f.StagedDir }
func (f *FakeSnapshot) SidecarsRoot() string                   { return f.SidecarDir }

var _ Snapshot = (*FakeSnapshot)(nil)

// FakeClock is a settable Clock for deterministic tests.
type FakeClock struct {
	Millis int64
}

func (c *FakeClock) NowMillis() int64 { return c.Millis }

var _ Clock = (*FakeClock)(nil)
