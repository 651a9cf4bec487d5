// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package expiry implements ExpiryIterator (spec §4.4): a forward-ordered
// stream of log entries that are safe to delete, derived by buffering a
// single version's artifacts until the next version's first artifact is
// observed (spec §9, "streams with boundary lookahead" — the full input
// is never materialized).
package expiry

import (
	"context"
	"time"

	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/objectstore"
)

// Entry is a single classified log artifact, the unit this package
// buffers, decides on, and emits.
type Entry struct {
	Path       string
	ModTime    time.Time
	Size       int64
	Classified logfmt.Classified
}

// Source yields classified log artifacts in ascending version order. A
// loglist.Iter adapted via NewSource satisfies this for the common case.
type Source interface {
	Next(ctx context.Context) (Entry, bool, error)
}

// RawIter is the minimal shape loglist.Iter satisfies; kept separate so
// this package does not need to import loglist.
type RawIter interface {
	Next(ctx context.Context) (objectstore.Entry, bool, error)
}

// NewSource adapts a raw path-ordered iterator into a Source, classifying
// each entry and dropping anything that isn't a Commit, Checkpoint, or
// Checksum (spec §4.4's input filter).
func NewSource(raw RawIter) Source {
	return &classifyingSource{raw: raw}
}

type classifyingSource struct {
	raw RawIter
}

func (s *classifyingSource) Next(ctx context.Context) (Entry, bool, error) {
	for {
		e, ok, err := s.raw.Next(ctx)
		if err != nil || !ok {
			return Entry{}, false, err
		}
		c := logfmt.Classify(e.Path)
		switch c.Kind {
		case logfmt.Commit, logfmt.Checkpoint, logfmt.Checksum:
			return Entry{Path: e.Path, ModTime: e.ModificationTime, Size: e.Size, Classified: c}, true, nil
		default:
			continue
		}
	}
}

// Iterator is the ExpiryIterator state machine: Empty -> Buffering(v) ->
// Buffering(v) | Emitting(v -> v') | Exhausted (spec §4.9).
//
// # Description
//
// Buffers a single version's artifacts at a time rather than
// materializing the full log, deciding the buffered version's fate only
// once the next version's first artifact supplies the successor witness
// that spec §4.4's rule requires. The last buffered version is never
// emitted: the terminal flush has no successor to witness its age.
//
// # Thread Safety
//
// Not safe for concurrent use; an Iterator is a single forward-only
// cursor over one Source and is meant to be drained by one goroutine.
type Iterator struct {
	src Source

	// H is the safety threshold version (latestCheckpointVersion - 1):
	// only versions <= H are ever eligible for deletion.
	H int64
	// cutoffMillis is T: the (already DAY-truncated) deletion cutoff.
	cutoffMillis int64

	bufferedVersion int64
	hasBuffer       bool
	buffer          []Entry

	emitQueue []Entry
	exhausted bool
}

// New returns an Iterator over src using safety threshold h and cutoff
// (epoch millis) t.
func New(src Source, h int64, cutoffMillis int64) *Iterator {
	return &Iterator{src: src, H: h, cutoffMillis: cutoffMillis}
}

// Next returns the next entry safe to delete, in ascending version order,
// or (Entry{}, false, nil) once the stream is exhausted.
func (it *Iterator) Next(ctx context.Context) (Entry, bool, error) {
	for {
		if len(it.emitQueue) > 0 {
			e := it.emitQueue[0]
			it.emitQueue = it.emitQueue[1:]
			return e, true, nil
		}
		if it.exhausted {
			return Entry{}, false, nil
		}

		next, ok, err := it.src.Next(ctx)
		if err != nil {
			return Entry{}, false, err
		}
		if !ok {
			// Terminal flush: the last buffered version is never
			// emitted (spec §4.4, "no next witness").
			it.buffer = nil
			it.exhausted = true
			continue
		}

		if !it.hasBuffer {
			it.hasBuffer = true
			it.bufferedVersion = next.Classified.Version
			it.buffer = append(it.buffer[:0], next)
			continue
		}

		if next.Classified.Version == it.bufferedVersion {
			it.buffer = append(it.buffer, next)
			continue
		}

		// Boundary: next is the first artifact of a later version.
		// Decide the buffered version's fate using next's time as the
		// successor witness (spec §4.4 Mechanics).
		safe := it.bufferedVersion <= it.H && next.ModTime.UnixMilli() <= it.cutoffMillis
		if safe {
			it.emitQueue = append(it.emitQueue, it.buffer...)
		}
		it.bufferedVersion = next.Classified.Version
		it.buffer = append(it.buffer[:0], next)
	}
}

// Drain fully consumes it into a slice. For use where the expired set is
// known to be small (tests, or a pre-pass that just checks emptiness).
func Drain(ctx context.Context, it *Iterator) ([]Entry, error) {
	var out []Entry
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
