// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sidecar

import (
	"context"
	"testing"
	"time"

	"github.com/tablelake/cleanup/pkg/loglist"
	"github.com/tablelake/cleanup/pkg/objectstore"
)

type fakeCheckpointLister struct {
	paths []string
}

func (f *fakeCheckpointLister) SurvivingV2Checkpoints(ctx context.Context) ([]string, error) {
	return f.paths, nil
}

type fakeReader struct {
	refs map[string][]string
	calls int
}

func (f *fakeReader) SidecarReferences(ctx context.Context, topLevelPath string) ([]string, error) {
	f.calls++
	return f.refs[topLevelPath], nil
}

func TestGC_DeletesOrphanedOldSidecarsOnly(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	old := cutoff.AddDate(0, 0, -100)
	young := cutoff.Add(time.Hour)

	_ = store.Write(ctx, "_sidecars/s-active.parquet", []byte("x"))
	_ = store.SetModificationTime(ctx, "_sidecars/s-active.parquet", old)
	_ = store.Write(ctx, "_sidecars/s-old.parquet", []byte("x"))
	_ = store.SetModificationTime(ctx, "_sidecars/s-old.parquet", old)
	_ = store.Write(ctx, "_sidecars/s-new.parquet", []byte("x"))
	_ = store.SetModificationTime(ctx, "_sidecars/s-new.parquet", young)

	checkpoints := &fakeCheckpointLister{paths: []string{"00000000000000000020.checkpoint.abcd.json"}}
	reader := &fakeReader{refs: map[string][]string{
		"00000000000000000020.checkpoint.abcd.json": {"s-active.parquet"},
	}}
	gc := New(checkpoints, reader, store, nil, nil)

	lister := loglist.New(store, "_sidecars")
	deleted, errored, err := gc.Run(ctx, lister, cutoff.UnixMilli())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if errored != 0 {
		t.Errorf("errored = %d, want 0", errored)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	if ok, _ := store.Exists(ctx, "_sidecars/s-old.parquet"); ok {
		t.Error("s-old.parquet should have been deleted")
	}
	if ok, _ := store.Exists(ctx, "_sidecars/s-active.parquet"); !ok {
		t.Error("s-active.parquet (referenced) should survive")
	}
	if ok, _ := store.Exists(ctx, "_sidecars/s-new.parquet"); !ok {
		t.Error("s-new.parquet (young) should survive even though orphaned")
	}
}

func TestGC_MissingSidecarsDirIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	checkpoints := &fakeCheckpointLister{}
	reader := &fakeReader{refs: map[string][]string{}}
	gc := New(checkpoints, reader, store, nil, nil)

	lister := loglist.New(store, "_sidecars")
	deleted, errored, err := gc.Run(ctx, lister, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 0 || errored != 0 {
		t.Errorf("deleted=%d errored=%d, want 0,0", deleted, errored)
	}
}

type fakeCache struct {
	store map[string][]string
}

func (c *fakeCache) Get(p string) ([]string, bool) {
	v, ok := c.store[p]
	return v, ok
}

func (c *fakeCache) Put(p string, refs []string) {
	c.store[p] = refs
}

func TestGC_UsesCacheToAvoidRereading(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	checkpoints := &fakeCheckpointLister{paths: []string{"ckpt-a.json"}}
	reader := &fakeReader{refs: map[string][]string{"ckpt-a.json": {"s1.parquet"}}}
	cache := &fakeCache{store: map[string][]string{}}
	gc := New(checkpoints, reader, store, cache, nil)

	lister := loglist.New(store, "_sidecars")
	if _, _, err := gc.Run(ctx, lister, time.Now().UnixMilli()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("expected 1 reader call, got %d", reader.calls)
	}
	if _, _, err := gc.Run(ctx, lister, time.Now().UnixMilli()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("expected cache hit on second Run, reader called %d times", reader.calls)
	}
}
