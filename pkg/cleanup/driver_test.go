// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cleanup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/objectstore"
	"github.com/tablelake/cleanup/pkg/snapshot"
)

const logRoot = "_delta_log"

var epoch = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func ageMillis(days int) time.Time { return epoch.AddDate(0, 0, -days) }

func putCommit(t *testing.T, store *objectstore.Memory, v int64, ageDays int) {
	t.Helper()
	path := logfmt.CommitPath(logRoot, v)
	if err := store.Write(context.Background(), path, []byte("{}")); err != nil {
		t.Fatalf("write commit %d: %v", v, err)
	}
	if err := store.SetModificationTime(context.Background(), path, ageMillis(ageDays)); err != nil {
		t.Fatalf("set mtime: %v", err)
	}
}

func putChecksum(t *testing.T, store *objectstore.Memory, v int64, ageDays int) {
	t.Helper()
	path := logfmt.ChecksumPath(logRoot, v)
	body := `{"minReaderVersion":1,"minWriterVersion":1}`
	if err := store.Write(context.Background(), path, []byte(body)); err != nil {
		t.Fatalf("write checksum %d: %v", v, err)
	}
	if err := store.SetModificationTime(context.Background(), path, ageMillis(ageDays)); err != nil {
		t.Fatalf("set mtime: %v", err)
	}
}

func putClassicCheckpoint(t *testing.T, store *objectstore.Memory, v int64, ageDays int) {
	t.Helper()
	path := fmt.Sprintf("%s/%020d.checkpoint.parquet", logRoot, v)
	if err := store.Write(context.Background(), path, []byte("parquet")); err != nil {
		t.Fatalf("write checkpoint %d: %v", v, err)
	}
	if err := store.SetModificationTime(context.Background(), path, ageMillis(ageDays)); err != nil {
		t.Fatalf("set mtime: %v", err)
	}
}

func baseMeta() snapshot.Metadata {
	return snapshot.Metadata{
		EnableExpiredLogCleanup: true,
		LogRetentionMillis:      int64(7 * 24 * time.Hour / time.Millisecond),
	}
}

func driverFor(store objectstore.ObjectStore) *Driver {
	clock := &snapshot.FakeClock{Millis: epoch.UnixMilli()}
	caps := snapshot.Capabilities{MaxReaderVersion: 99, MaxWriterVersion: 99}
	return New(store, clock, caps, nil, nil, nil)
}

func TestCleanup_MasterSwitchOff(t *testing.T) {
	store := objectstore.NewMemory()
	putCommit(t, store, 0, 40)
	snap := snapshot.NewFakeSnapshot(logRoot, snapshot.Metadata{EnableExpiredLogCleanup: false})
	d := driverFor(store)

	res, err := d.Cleanup(context.Background(), snap)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.FilesDeleted != 0 {
		t.Fatalf("expected no deletions with master switch off, got %d", res.FilesDeleted)
	}
	if ok, _ := store.Exists(context.Background(), logfmt.CommitPath(logRoot, 0)); !ok {
		t.Error("commit should still exist")
	}
}

// A commit is only ever a deletion candidate once a later checkpoint
// covers it (H = latestCheckpointVersion - 1), so every scenario below
// arranges a CheckpointProvider even though no real checkpoint file on
// disk is required for that bookkeeping.

func TestCleanup_SimpleExpiry(t *testing.T) {
	store := objectstore.NewMemory()
	putCommit(t, store, 0, 40)
	putCommit(t, store, 1, 40)
	putCommit(t, store, 2, 1) // young: keeps v1 from qualifying

	meta := baseMeta()
	snap := snapshot.NewFakeSnapshot(logRoot, meta)
	snap.Provider = snapshot.CheckpointProvider{Present: true, Version: 2} // H = 1
	d := driverFor(store)

	res, err := d.Cleanup(context.Background(), snap)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.FilesDeleted != 1 {
		t.Fatalf("expected 1 deletion (v0), got %d", res.FilesDeleted)
	}
	if ok, _ := store.Exists(context.Background(), logfmt.CommitPath(logRoot, 0)); ok {
		t.Error("v0 should have been deleted")
	}
	if ok, _ := store.Exists(context.Background(), logfmt.CommitPath(logRoot, 1)); !ok {
		t.Error("v1 should survive: its successor v2 is still young")
	}
}

func TestCleanup_ProtectionGateDeniesWithoutChecksumCoverage(t *testing.T) {
	store := objectstore.NewMemory()
	putCommit(t, store, 0, 40)
	putCommit(t, store, 1, 40)
	putCommit(t, store, 2, 1) // young successor keeps v1 back, so the proposed set is {v0}

	meta := baseMeta()
	meta.CheckpointProtectionVersion = 10 // protects [0, 9]; no checkpoint/checksum coverage
	snap := snapshot.NewFakeSnapshot(logRoot, meta)
	snap.Provider = snapshot.CheckpointProvider{Present: true, Version: 2} // H = 1
	d := driverFor(store)

	res, err := d.Cleanup(context.Background(), snap)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.FinalState != GateDenied {
		t.Fatalf("expected GateDenied, got %v", res.FinalState)
	}
	if res.FilesDeleted != 0 {
		t.Fatalf("expected no deletions when gate denies, got %d", res.FilesDeleted)
	}
	for _, v := range []int64{0, 1} {
		if ok, _ := store.Exists(context.Background(), logfmt.CommitPath(logRoot, v)); !ok {
			t.Errorf("v%d should survive a denied gate", v)
		}
	}
}

func TestCleanup_ProtectionGateAllowsViaChecksumCoverage(t *testing.T) {
	store := objectstore.NewMemory()
	putCommit(t, store, 0, 40)
	putCommit(t, store, 1, 40)
	putCommit(t, store, 2, 1)
	// Proposed set is {v0, v1} (R = [0,1]); rule 6 needs checksums through
	// the boundary version R.Hi+1 == 2.
	for v := int64(0); v <= 2; v++ {
		putChecksum(t, store, v, 40)
	}

	meta := baseMeta()
	meta.CheckpointProtectionVersion = 10
	snap := snapshot.NewFakeSnapshot(logRoot, meta)
	snap.Provider = snapshot.CheckpointProvider{Present: true, Version: 2} // H = 1
	d := driverFor(store)

	res, err := d.Cleanup(context.Background(), snap)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.FinalState != Idle {
		t.Fatalf("expected gate to allow via rule 6, got %v", res.FinalState)
	}
	if res.FilesDeleted == 0 {
		t.Fatalf("expected deletions once protocol coverage is established")
	}
}

func TestCleanup_UnbackfilledCommitsShadowedByDeletedBackfilledHistory(t *testing.T) {
	store := objectstore.NewMemory()
	putCommit(t, store, 0, 40)
	putCommit(t, store, 1, 40)
	putCommit(t, store, 2, 1)
	stagedPath := logfmt.StagedCommitPath(logRoot, 0, "3f29b6c1")
	if err := store.Write(context.Background(), stagedPath, []byte("{}")); err != nil {
		t.Fatalf("write staged commit: %v", err)
	}

	snap := snapshot.NewFakeSnapshot(logRoot, baseMeta())
	snap.Provider = snapshot.CheckpointProvider{Present: true, Version: 2} // H = 1
	d := driverFor(store)

	res, err := d.Cleanup(context.Background(), snap)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.MaxDeletedCommitVersion != 0 {
		t.Fatalf("expected max deleted commit version 0, got %d", res.MaxDeletedCommitVersion)
	}
	if ok, _ := store.Exists(context.Background(), stagedPath); ok {
		t.Error("staged commit at version 0 should have been swept once v0 was deleted")
	}
}

type fakeActionSource struct{ actions []snapshot.Action }

func (f *fakeActionSource) ReadActionsFromV2Checkpoint(ctx context.Context, paths []string) ([]snapshot.Action, error) {
	return f.actions, nil
}

func TestCleanup_CompatCheckpointWrittenForV2Table(t *testing.T) {
	store := objectstore.NewMemory()
	putCommit(t, store, 0, 40)
	putCommit(t, store, 1, 40)
	putCommit(t, store, 2, 1)

	meta := baseMeta()
	meta.V2CheckpointsEnabled = true
	snap := snapshot.NewFakeSnapshot(logRoot, meta)
	snap.Provider = snapshot.CheckpointProvider{
		Present:       true,
		Version:       2,
		Format:        snapshot.FormatV2TopLevel,
		TopLevelPaths: []string{"irrelevant"},
	}

	clock := &snapshot.FakeClock{Millis: epoch.UnixMilli()}
	caps := snapshot.Capabilities{MaxReaderVersion: 99, MaxWriterVersion: 99}
	d := New(store, clock, caps, &fakeActionSource{}, nil, nil)

	res, err := d.Cleanup(context.Background(), snap)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.CompatCheckpointVersion != 2 {
		t.Fatalf("expected a compat checkpoint written at version 2, got %d", res.CompatCheckpointVersion)
	}
	compatPath := logfmt.CompatClassicCheckpointPath(logRoot, 2)
	if ok, _ := store.Exists(context.Background(), compatPath); !ok {
		t.Error("expected compat checkpoint file to exist")
	}
}

func TestCleanup_SidecarGCRunsAfterCheckpointDeletion(t *testing.T) {
	store := objectstore.NewMemory()
	putCommit(t, store, 0, 40)
	putClassicCheckpoint(t, store, 0, 40)
	putCommit(t, store, 1, 40)
	putCommit(t, store, 2, 1)

	orphanPath := logRoot + "/_sidecars/orphan.parquet"
	if err := store.Write(context.Background(), orphanPath, []byte("x")); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	if err := store.SetModificationTime(context.Background(), orphanPath, ageMillis(40)); err != nil {
		t.Fatalf("set mtime: %v", err)
	}

	meta := baseMeta()
	meta.V2CheckpointsEnabled = true
	snap := snapshot.NewFakeSnapshot(logRoot, meta)
	snap.Provider = snapshot.CheckpointProvider{Present: true, Version: 2} // H = 1
	d := driverFor(store)

	res, err := d.Cleanup(context.Background(), snap)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.FilesDeleted == 0 {
		t.Fatalf("expected the v0 commit+checkpoint pair to be deleted")
	}
	if res.SidecarsDeleted != 1 {
		t.Fatalf("expected the orphaned sidecar to be collected, got %d deleted", res.SidecarsDeleted)
	}
	if ok, _ := store.Exists(context.Background(), orphanPath); ok {
		t.Error("orphan sidecar should have been deleted")
	}
}
