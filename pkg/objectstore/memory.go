// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory ObjectStore, used by every package's test suite
// in place of a real object store. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty in-memory object store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

// List implements ObjectStore. A prefix matching nothing yields an empty
// iterator rather than an error (spec §4.2).
func (m *Memory) List(ctx context.Context, prefix string) (EntryIter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var paths []string
	for p := range m.objects {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		obj := m.objects[p]
		entries = append(entries, Entry{Path: p, ModificationTime: obj.modTime, Size: int64(len(obj.data))})
	}
	return newSliceIter(entries), nil
}

// Delete implements ObjectStore.
func (m *Memory) Delete(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return false, nil
	}
	delete(m.objects, path)
	return true, nil
}

// Exists implements ObjectStore.
func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok, nil
}

// Write implements ObjectStore. The object's modification time is set to
// the current wall clock unless SetModificationTime is later called.
func (m *Memory) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[path] = memObject{data: cp, modTime: time.Now().UTC()}
	return nil
}

// SetModificationTime implements ModTimeSetter for tests that need to
// place an artifact at a specific age relative to a cutoff.
func (m *Memory) SetModificationTime(ctx context.Context, path string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	if !ok {
		obj = memObject{}
	}
	obj.modTime = t
	m.objects[path] = obj
	return nil
}

// Read implements ObjectStore.
func (m *Memory) Read(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, true, nil
}

var _ ObjectStore = (*Memory)(nil)
var _ ModTimeSetter = (*Memory)(nil)
