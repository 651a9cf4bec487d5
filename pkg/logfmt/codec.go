// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logfmt parses and emits the filenames used in a table's log
// directory. It is pure: no I/O, no allocation beyond the returned
// record, and it never fails — an unrecognized name classifies as Unknown
// rather than returning an error (spec §4.1).
//
// Layout assumed, relative to the log root (e.g. "_delta_log/"):
//
//	00000000000000000010.json                               backfilled commit
//	_staged_commits/00000000000000000010.<uuid>.json         unbackfilled commit
//	00000000000000000010.checkpoint.parquet                  classic single-file checkpoint
//	00000000000000000010.checkpoint.0000000002.0000000004.parquet  multipart classic checkpoint part
//	00000000000000000010.checkpoint.<uuid>.json              v2 top-level checkpoint
//	00000000000000000010.crc                                 checksum record
//	_sidecars/<name>.parquet                                  sidecar part-file
package logfmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the artifact type a path classifies as.
type Kind int

const (
	Unknown Kind = iota
	Commit
	Checkpoint
	Checksum
	Sidecar
)

func (k Kind) String() string {
	switch k {
	case Commit:
		return "Commit"
	case Checkpoint:
		return "Checkpoint"
	case Checksum:
		return "Checksum"
	case Sidecar:
		return "Sidecar"
	default:
		return "Unknown"
	}
}

// CheckpointFormat distinguishes the three checkpoint encodings of spec §3.
type CheckpointFormat int

const (
	FormatNone CheckpointFormat = iota
	FormatClassicSingleFile
	FormatClassicMultipart
	FormatV2TopLevel
)

// StagedCommitsDir and SidecarsDir are the conventional subdirectory
// names for unbackfilled commits and sidecar part-files, relative to the
// log root.
const (
	StagedCommitsDir = "_staged_commits"
	SidecarsDir      = "_sidecars"
)

const versionWidth = 20

var (
	commitRe     = regexp.MustCompile(`^(\d{20})\.json$`)
	stagedRe     = regexp.MustCompile(`^(\d{20})\.[0-9a-fA-F-]{8,36}\.json$`)
	classicRe    = regexp.MustCompile(`^(\d{20})\.checkpoint\.parquet$`)
	multipartRe  = regexp.MustCompile(`^(\d{20})\.checkpoint\.(\d{10})\.(\d{10})\.parquet$`)
	v2TopLevelRe = regexp.MustCompile(`^(\d{20})\.checkpoint\.[0-9a-fA-F-]{8,36}\.(json|parquet)$`)
	checksumRe   = regexp.MustCompile(`^(\d{20})\.crc$`)
)

// Classified is the result of classifying a single log-directory path.
type Classified struct {
	Kind Kind

	// Version is defined for Commit, Checkpoint, and Checksum.
	Version int64

	// Backfilled is defined for Commit: true if the commit lives at the
	// log root, false if it is staged under StagedCommitsDir.
	Backfilled bool

	// Format is defined for Checkpoint.
	Format CheckpointFormat

	// PartIndex/PartCount are defined when Format == FormatClassicMultipart.
	PartIndex, PartCount int
}

// Classify parses a path relative to (or including) the log root and
// returns its artifact classification. Unrecognized names classify as
// {Kind: Unknown}. Classify never errors.
func Classify(path string) Classified {
	dir, name := splitDirBase(path)

	switch {
	case dir == StagedCommitsDir || strings.HasSuffix(dir, "/"+StagedCommitsDir):
		if m := stagedRe.FindStringSubmatch(name); m != nil {
			return Classified{Kind: Commit, Version: mustParseVersion(m[1]), Backfilled: false}
		}
		return Classified{Kind: Unknown}
	case dir == SidecarsDir || strings.HasSuffix(dir, "/"+SidecarsDir):
		if name != "" {
			return Classified{Kind: Sidecar}
		}
		return Classified{Kind: Unknown}
	}

	if m := commitRe.FindStringSubmatch(name); m != nil {
		return Classified{Kind: Commit, Version: mustParseVersion(m[1]), Backfilled: true}
	}
	if m := classicRe.FindStringSubmatch(name); m != nil {
		return Classified{Kind: Checkpoint, Version: mustParseVersion(m[1]), Format: FormatClassicSingleFile}
	}
	if m := multipartRe.FindStringSubmatch(name); m != nil {
		idx, _ := strconv.Atoi(m[2])
		cnt, _ := strconv.Atoi(m[3])
		return Classified{Kind: Checkpoint, Version: mustParseVersion(m[1]), Format: FormatClassicMultipart, PartIndex: idx, PartCount: cnt}
	}
	if m := v2TopLevelRe.FindStringSubmatch(name); m != nil {
		return Classified{Kind: Checkpoint, Version: mustParseVersion(m[1]), Format: FormatV2TopLevel}
	}
	if m := checksumRe.FindStringSubmatch(name); m != nil {
		return Classified{Kind: Checksum, Version: mustParseVersion(m[1])}
	}
	return Classified{Kind: Unknown}
}

// VersionOf returns the version encoded in path. Panics-free: it returns
// (0, false) for paths that do not classify to a versioned kind, leaving
// the caller to treat that as the InternalError case described in
// spec §7 (this never happens for paths produced by LogLister).
func VersionOf(path string) (int64, bool) {
	c := Classify(path)
	switch c.Kind {
	case Commit, Checkpoint, Checksum:
		return c.Version, true
	default:
		return 0, false
	}
}

// CompatClassicCheckpointPath returns the path at which CompatCheckpointer
// writes the single-file classic checkpoint for version v under root.
func CompatClassicCheckpointPath(root string, v int64) string {
	return joinPath(root, fmt.Sprintf("%s.checkpoint.parquet", formatVersion(v)))
}

// StagedCommitPath returns the conventional path for an unbackfilled
// commit at version v with the given staging suffix (typically a UUID).
func StagedCommitPath(root string, v int64, suffix string) string {
	return joinPath(root, StagedCommitsDir, fmt.Sprintf("%s.%s.json", formatVersion(v), suffix))
}

// CommitPath returns the conventional path for a backfilled commit.
func CommitPath(root string, v int64) string {
	return joinPath(root, fmt.Sprintf("%s.json", formatVersion(v)))
}

// ChecksumPath returns the conventional path for the checksum record
// accompanying the commit at version v.
func ChecksumPath(root string, v int64) string {
	return joinPath(root, fmt.Sprintf("%s.crc", formatVersion(v)))
}

func formatVersion(v int64) string {
	return fmt.Sprintf("%0*d", versionWidth, v)
}

func mustParseVersion(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// The regexp only matches digit runs; this cannot happen.
		return 0
	}
	return n
}

// splitDirBase splits path into its directory prefix (possibly empty,
// possibly multi-segment) and its base filename.
func splitDirBase(path string) (dir, base string) {
	path = strings.TrimRight(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

func joinPath(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, strings.Trim(p, "/"))
		}
	}
	return strings.Join(nonEmpty, "/")
}
