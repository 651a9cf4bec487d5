// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package loglist implements LogLister (spec §4.2): a lazy, forward-only
// enumeration of a log-directory prefix in filename order, which equals
// version order because artifact filenames are zero-padded.
package loglist

import (
	"context"
	"strings"

	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/objectstore"
)

// Lister enumerates the direct children of a single prefix (the log
// root, the staged-commits subdirectory, or the sidecars subdirectory)
// in lexicographic order. A prefix that does not exist yields an empty
// stream, never an error.
type Lister struct {
	store  objectstore.ObjectStore
	prefix string
}

// New returns a Lister over prefix (may be "" for the log root itself).
func New(store objectstore.ObjectStore, prefix string) *Lister {
	return &Lister{store: store, prefix: normalizePrefix(prefix)}
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Iter is a lazy, forward-only stream of direct children of a Lister's
// prefix, in lexicographic (== version) order.
type Iter struct {
	inner        objectstore.EntryIter
	prefix       string
	startVersion int64
	versionsOnly bool
}

// Next returns the next qualifying entry. It returns (Entry{}, false,
// nil) once the underlying prefix is exhausted (including the case
// where the prefix never existed).
func (it *Iter) Next(ctx context.Context) (objectstore.Entry, bool, error) {
	for {
		e, ok, err := it.inner.Next(ctx)
		if err != nil || !ok {
			return objectstore.Entry{}, false, err
		}
		rel := strings.TrimPrefix(e.Path, it.prefix)
		if strings.Contains(rel, "/") {
			continue // nested deeper than a direct child; not ours
		}
		if it.versionsOnly {
			v, ok := logfmt.VersionOf(rel)
			if !ok || v < it.startVersion {
				continue
			}
		}
		return e, true, nil
	}
}

// List returns a lazy stream of direct children whose classified version
// is >= startVersion; entries that don't classify to a versioned kind
// (Commit/Checkpoint/Checksum) are skipped. Restartable across calls by
// varying startVersion.
func (l *Lister) List(ctx context.Context, startVersion int64) (*Iter, error) {
	inner, err := l.store.List(ctx, l.prefix)
	if err != nil {
		return nil, err
	}
	return &Iter{inner: inner, prefix: l.prefix, startVersion: startVersion, versionsOnly: true}, nil
}

// All returns a lazy stream of every direct child of the prefix,
// regardless of classification. Used for sidecar enumeration and
// staged-commit sweeps where the caller applies its own filter.
func (l *Lister) All(ctx context.Context) (*Iter, error) {
	inner, err := l.store.List(ctx, l.prefix)
	if err != nil {
		return nil, err
	}
	return &Iter{inner: inner, prefix: l.prefix}, nil
}

// Drain fully consumes it into a slice. Convenience for small,
// known-bounded prefixes (e.g. the staged-commits sweep); avoid for
// large log roots where the caller should pull incrementally instead.
func Drain(ctx context.Context, it *Iter) ([]objectstore.Entry, error) {
	var out []objectstore.Entry
	for {
		e, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, e)
	}
}
