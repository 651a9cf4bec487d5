// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package checkpointio implements the CheckpointReader and CheckpointWriter
// collaborators of spec §6: reading a v2 top-level checkpoint's sidecar
// references, and writing a classic single-file checkpoint, adapted from
// the pack's schema-driven Parquet sink into a single-column action log.
package checkpointio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tablelake/cleanup/pkg/objectstore"
	"github.com/tablelake/cleanup/pkg/snapshot"
)

// v2TopLevelIndex is the JSON shape a v2 top-level checkpoint file is
// assumed to carry: the bare filenames of its sidecar part-files.
type v2TopLevelIndex struct {
	Sidecars []string `json:"sidecars"`
}

// Reader reads v2 top-level checkpoints from an ObjectStore.
type Reader struct {
	store objectstore.ObjectStore
}

// NewReader returns a Reader backed by store.
func NewReader(store objectstore.ObjectStore) *Reader {
	return &Reader{store: store}
}

// SidecarReferences implements snapshot.CheckpointReader: it reads the
// top-level file at path and returns the bare filenames it references.
// It reads one top-level file per call; callers holding several
// top-level paths call it once per path.
func (r *Reader) SidecarReferences(ctx context.Context, topLevelPath string) ([]string, error) {
	data, err := r.readFile(ctx, topLevelPath)
	if err != nil {
		return nil, err
	}
	var idx v2TopLevelIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode v2 checkpoint index %s: %w", topLevelPath, err)
	}
	return idx.Sidecars, nil
}

func (r *Reader) readFile(ctx context.Context, path string) ([]byte, error) {
	data, ok, err := r.store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("read %s: not found", path)
	}
	return data, nil
}

var _ snapshot.CheckpointReader = (*Reader)(nil)

// Writer writes classic single-file checkpoints.
type Writer struct {
	store objectstore.ObjectStore
}

// NewWriter returns a Writer backed by store.
func NewWriter(store objectstore.ObjectStore) *Writer {
	return &Writer{store: store}
}

// actionSchema describes a single-column Parquet row: the action's path.
// Real table actions (add/remove/metadata) are richer; the cleanup core
// only shuttles opaque records through, so one column suffices to
// exercise the same schema-driven writer the pack uses elsewhere.
const actionSchema = `{
  "Tag": "name=parquet_go_root, repetitiontype=REQUIRED",
  "Fields": [
    {"Tag": "name=path, type=BYTE_ARRAY, repetitiontype=OPTIONAL"}
  ]
}`

// WriteClassicSingleFile implements snapshot.CheckpointWriter: it encodes
// actions as a single-file classic Parquet checkpoint at path, written
// directly (no rename-based atomicity — spec §4.6 accepts this because
// the target filename is unique per version).
func (w *Writer) WriteClassicSingleFile(ctx context.Context, actions []snapshot.Action, path string) error {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(actionSchema, pfw, 4)
	if err != nil {
		return fmt.Errorf("create parquet writer for %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, a := range actions {
		row, err := json.Marshal(map[string]any{"path": a.Path})
		if err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return fmt.Errorf("encode parquet row: %w", err)
		}
		if err := pw.Write(string(row)); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return fmt.Errorf("finalize parquet checkpoint %s: %w", path, err)
	}
	if err := pfw.Close(); err != nil {
		return fmt.Errorf("close parquet writer for %s: %w", path, err)
	}

	if err := w.store.Write(ctx, path, buf.Bytes()); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

var _ snapshot.CheckpointWriter = (*Writer)(nil)

// sidecarDocument is the on-disk JSON shape of a JSON-serialized sidecar
// (spec §4.7 step 1 distinguishes parquet/json/other-warn sidecars): the
// actions it carries.
type sidecarDocument struct {
	Actions []snapshot.Action `json:"actions"`
}

// ActionReader implements snapshot.ActionSource by reading each v2
// checkpoint's sidecar files (resolved via Reader.SidecarReferences) and
// concatenating their actions, so CompatCheckpointer can materialize a
// classic single-file checkpoint from a live v2 checkpoint.
type ActionReader struct {
	store       objectstore.ObjectStore
	sidecarsDir func(bareName string) string
	checkpoints *Reader
}

// NewActionReader returns an ActionReader backed by store. sidecarsRoot
// is the prefix under which bare sidecar filenames (as returned by
// Reader.SidecarReferences) resolve to full paths.
func NewActionReader(store objectstore.ObjectStore, sidecarsRoot string) *ActionReader {
	return &ActionReader{
		store:       store,
		sidecarsDir: func(name string) string { return sidecarsRoot + "/" + name },
		checkpoints: NewReader(store),
	}
}

// ReadActionsFromV2Checkpoint implements snapshot.ActionSource: for each
// top-level index path, it resolves the sidecars it references and reads
// their actions. Every sidecar is decoded as a JSON action document,
// whatever its file extension; a sidecar that does not decode as JSON
// ends the call with an error identifying it, so no actions are
// silently lost from the synthesized checkpoint.
func (r *ActionReader) ReadActionsFromV2Checkpoint(ctx context.Context, topLevelIndexPaths []string) ([]snapshot.Action, error) {
	var actions []snapshot.Action
	for _, topLevel := range topLevelIndexPaths {
		refs, err := r.checkpoints.SidecarReferences(ctx, topLevel)
		if err != nil {
			return nil, fmt.Errorf("resolve sidecars for %s: %w", topLevel, err)
		}
		for _, name := range refs {
			data, err := r.checkpoints.readFile(ctx, r.sidecarsDir(name))
			if err != nil {
				return nil, fmt.Errorf("read sidecar %s: %w", name, err)
			}
			var doc sidecarDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("decode sidecar %s (unsupported serialization): %w", name, err)
			}
			actions = append(actions, doc.Actions...)
		}
	}
	return actions, nil
}

var _ snapshot.ActionSource = (*ActionReader)(nil)
