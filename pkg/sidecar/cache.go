// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sidecar

import (
	"bytes"
	"encoding/gob"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerCache is an ActiveSetCache backed by an embedded BadgerDB
// instance, for deployments that run SidecarGC frequently enough to make
// re-reading every surviving checkpoint's sidecar list wasteful.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache opens (creating if absent) a BadgerDB at dir.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger cache at %s: %w", dir, err)
	}
	return &BadgerCache{db: db}, nil
}

// Close releases the underlying BadgerDB.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// Get implements ActiveSetCache.
func (c *BadgerCache) Get(topLevelPath string) ([]string, bool) {
	var refs []string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(topLevelPath))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&refs)
		})
	})
	if err != nil {
		return nil, false
	}
	return refs, true
}

// Put implements ActiveSetCache.
func (c *BadgerCache) Put(topLevelPath string, sidecars []string) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sidecars); err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(topLevelPath), buf.Bytes())
	})
}

var _ ActiveSetCache = (*BadgerCache)(nil)
