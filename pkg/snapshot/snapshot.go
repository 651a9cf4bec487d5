// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot defines the read-only handles the cleanup core consumes:
// Snapshot, Metadata, ProtocolDescriptor, CheckpointProvider, and the
// version-range value type shared by ExpiryIterator and ProtectionGate.
package snapshot

import (
	"context"
	"fmt"
)

// CheckpointFormat mirrors logfmt.CheckpointFormat without importing it,
// keeping this package dependency-free for downstream packages that only
// need the Snapshot contract.
type CheckpointFormat int

const (
	FormatNone CheckpointFormat = iota
	FormatClassicSingleFile
	FormatClassicMultipart
	FormatV2TopLevel
)

func (f CheckpointFormat) String() string {
	switch f {
	case FormatClassicSingleFile:
		return "ClassicSingleFile"
	case FormatClassicMultipart:
		return "ClassicMultipart"
	case FormatV2TopLevel:
		return "V2TopLevel"
	default:
		return "None"
	}
}

// ProtocolDescriptor is the {minReaderVersion, minWriterVersion, features}
// tuple carried by a checksum record, evaluated against the local client's
// capability set (spec §3).
type ProtocolDescriptor struct {
	MinReaderVersion int
	MinWriterVersion int
	ReaderFeatures   []string
	WriterFeatures   []string
}

// Capabilities is the local client's supported-feature set, consulted by
// ProtocolDescriptor.SupportedForRead/SupportedForWrite.
type Capabilities struct {
	MaxReaderVersion int
	MaxWriterVersion int
	ReaderFeatures   map[string]bool
	WriterFeatures   map[string]bool
}

// SupportedForRead reports whether caps can read a commit described by d.
func (d ProtocolDescriptor) SupportedForRead(caps Capabilities) bool {
	if d.MinReaderVersion > caps.MaxReaderVersion {
		return false
	}
	return allKnown(d.ReaderFeatures, caps.ReaderFeatures)
}

// SupportedForWrite reports whether caps can write a commit described by d.
func (d ProtocolDescriptor) SupportedForWrite(caps Capabilities) bool {
	if d.MinWriterVersion > caps.MaxWriterVersion {
		return false
	}
	return allKnown(d.WriterFeatures, caps.WriterFeatures)
}

func allKnown(required []string, known map[string]bool) bool {
	for _, f := range required {
		if !known[f] {
			return false
		}
	}
	return true
}

// Metadata is the subset of table properties the cleanup core reads
// (spec §6's per-table configuration).
type Metadata struct {
	EnableExpiredLogCleanup    bool
	LogRetentionMillis         int64
	CheckpointProtectionVersion int64
	V2CheckpointsEnabled       bool
}

// CheckpointProvider describes the table's current (latest complete)
// checkpoint: its version, format, and top-level file paths.
type CheckpointProvider struct {
	// Present is false when the table has never been checkpointed.
	Present bool
	Version int64
	Format  CheckpointFormat
	// TopLevelPaths holds the checkpoint's top-level index file(s): one
	// path for ClassicSingleFile/V2TopLevel, many for ClassicMultipart.
	TopLevelPaths []string
}

// VersionRange is an inclusive [Lo, Hi] range over non-negative integers.
// The sentinel empty range has Lo > Hi.
type VersionRange struct {
	Lo, Hi int64
}

// EmptyRange is the canonical empty VersionRange.
var EmptyRange = VersionRange{Lo: 0, Hi: -1}

// Empty reports whether r contains no versions.
func (r VersionRange) Empty() bool {
	return r.Lo > r.Hi
}

func (r VersionRange) String() string {
	if r.Empty() {
		return "[]"
	}
	return fmt.Sprintf("[%d, %d]", r.Lo, r.Hi)
}

// Extend returns the smallest VersionRange containing both r and v.
func (r VersionRange) Extend(v int64) VersionRange {
	if r.Empty() {
		return VersionRange{Lo: v, Hi: v}
	}
	lo, hi := r.Lo, r.Hi
	if v < lo {
		lo = v
	}
	if v > hi {
		hi = v
	}
	return VersionRange{Lo: lo, Hi: hi}
}

// Snapshot is the read-only handle the cleanup core is invoked with.
//
// # Description
//
// Gives Driver access to table metadata (including the retention and
// protection configuration of spec §6), the current checkpoint provider,
// and the three log-directory roots (backfilled commits, staged commits,
// sidecars). A Snapshot is supplied by the surrounding transaction
// engine; this core only ever reads from it.
//
// # Thread Safety
//
// Implementations must be safe for concurrent read access from multiple
// goroutines, since a single Driver.Cleanup call and the external writer
// may both be consulting the same Snapshot. A Snapshot must outlive the
// cleanup run it is passed to but is never mutated by this core (spec §9,
// "long-lived handles").
type Snapshot interface {
	Metadata() Metadata
	CheckpointProvider() CheckpointProvider

	// LogRoot is the prefix under which backfilled commits, checkpoints,
	// and checksums live.
	LogRoot() string
	// StagedCommitsRoot is the prefix for unbackfilled commits.
	StagedCommitsRoot() string
	// SidecarsRoot is the prefix for v2 checkpoint sidecar part-files.
	SidecarsRoot() string
}

// CheckpointReader yields the sidecar references of a v2 top-level
// checkpoint at path (spec §6).
type CheckpointReader interface {
	SidecarReferences(ctx context.Context, topLevelPath string) ([]string, error)
}

// Action is an opaque log action (add-file, remove-file, metadata, ...)
// as materialized from a checkpoint by an ActionSource. The cleanup core
// never interprets Action's contents; it only shuttles them from a v2
// checkpoint's index into a freshly written classic checkpoint.
type Action struct {
	Path string
}

// ActionSource materializes the actions referenced by a v2 top-level
// checkpoint index, reading through sidecars as needed (spec §6).
type ActionSource interface {
	ReadActionsFromV2Checkpoint(ctx context.Context, topLevelIndexPaths []string) ([]Action, error)
}

// CheckpointWriter writes a new checkpoint. The cleanup core only ever
// calls WriteClassicSingleFile, and only from CompatCheckpointer.
type CheckpointWriter interface {
	WriteClassicSingleFile(ctx context.Context, actions []Action, path string) error
}

// Clock supplies the current wall-clock time, abstracted for tests.
type Clock interface {
	NowMillis() int64
}
