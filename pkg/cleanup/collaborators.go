// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cleanup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/loglist"
	"github.com/tablelake/cleanup/pkg/objectstore"
	"github.com/tablelake/cleanup/pkg/snapshot"
)

// logCheckpoints answers the questions ProtectionGate, CompatCheckpointer,
// and SidecarGC each ask of the log root: does a checkpoint exist at a
// given version, what's the highest classic checkpoint at or below a
// ceiling, and which v2 top-level checkpoints currently survive.
type logCheckpoints struct {
	store   objectstore.ObjectStore
	logRoot string
}

func newLogCheckpoints(store objectstore.ObjectStore, logRoot string) *logCheckpoints {
	return &logCheckpoints{store: store, logRoot: logRoot}
}

// CheckpointExistsAt implements protection.CheckpointExistenceChecker.
func (l *logCheckpoints) CheckpointExistsAt(ctx context.Context, version int64) (bool, error) {
	it, err := loglist.New(l.store, l.logRoot).List(ctx, version)
	if err != nil {
		return false, err
	}
	for {
		e, ok, err := it.Next(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		c := logfmt.Classify(e.Path)
		if c.Version > version {
			return false, nil
		}
		if c.Kind == logfmt.Checkpoint && c.Version == version {
			return true, nil
		}
	}
}

// ClassicCheckpointAtOrBelow implements compat.LogScanner.
func (l *logCheckpoints) ClassicCheckpointAtOrBelow(ctx context.Context, ceiling int64) (int64, bool, error) {
	it, err := loglist.New(l.store, l.logRoot).List(ctx, 0)
	if err != nil {
		return 0, false, err
	}
	var best int64 = -1
	for {
		e, ok, err := it.Next(ctx)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			break
		}
		c := logfmt.Classify(e.Path)
		if c.Version > ceiling {
			break
		}
		if c.Kind == logfmt.Checkpoint && c.Format != logfmt.FormatV2TopLevel {
			best = c.Version
		}
	}
	if best < 0 {
		return 0, false, nil
	}
	return best, true, nil
}

// SurvivingV2Checkpoints implements sidecar.CheckpointLister.
func (l *logCheckpoints) SurvivingV2Checkpoints(ctx context.Context) ([]string, error) {
	it, err := loglist.New(l.store, l.logRoot).List(ctx, 0)
	if err != nil {
		return nil, err
	}
	var out []string
	for {
		e, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		c := logfmt.Classify(e.Path)
		if c.Kind == logfmt.Checkpoint && c.Format == logfmt.FormatV2TopLevel {
			out = append(out, e.Path)
		}
	}
}

// checksumDocument is the on-disk JSON shape of a checksum record: the
// protocol descriptor in force as of that commit.
type checksumDocument struct {
	MinReaderVersion int      `json:"minReaderVersion"`
	MinWriterVersion int      `json:"minWriterVersion"`
	ReaderFeatures   []string `json:"readerFeatures"`
	WriterFeatures   []string `json:"writerFeatures"`
}

// checksumReader implements protection.ChecksumReader by reading and
// decoding the checksum record at the conventional path for a version.
type checksumReader struct {
	store   objectstore.ObjectStore
	logRoot string
}

func newChecksumReader(store objectstore.ObjectStore, logRoot string) *checksumReader {
	return &checksumReader{store: store, logRoot: logRoot}
}

func (r *checksumReader) ReadProtocol(ctx context.Context, version int64) (snapshot.ProtocolDescriptor, bool, error) {
	path := logfmt.ChecksumPath(r.logRoot, version)
	data, ok, err := r.store.Read(ctx, path)
	if err != nil {
		return snapshot.ProtocolDescriptor{}, false, fmt.Errorf("read checksum %s: %w", path, err)
	}
	if !ok {
		return snapshot.ProtocolDescriptor{}, false, nil
	}
	var doc checksumDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return snapshot.ProtocolDescriptor{}, false, fmt.Errorf("decode checksum %s: %w", path, err)
	}
	return snapshot.ProtocolDescriptor{
		MinReaderVersion: doc.MinReaderVersion,
		MinWriterVersion: doc.MinWriterVersion,
		ReaderFeatures:   doc.ReaderFeatures,
		WriterFeatures:   doc.WriterFeatures,
	}, true, nil
}
