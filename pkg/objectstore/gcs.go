// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS is an ObjectStore backed by a Google Cloud Storage bucket, adapted
// from the project's original single-purpose upload client into a full
// ObjectStore implementation.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a GCS-backed ObjectStore. If saKeyPath is non-empty, the
// client authenticates with that service account key file; otherwise it
// uses application-default credentials.
func NewGCS(ctx context.Context, bucket, saKeyPath string) (*GCS, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) List(ctx context.Context, prefix string) (EntryIter, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	return &gcsIter{it: it}, nil
}

type gcsIter struct {
	it *storage.ObjectIterator
}

func (g *gcsIter) Next(ctx context.Context) (Entry, bool, error) {
	attrs, err := g.it.Next()
	if errors.Is(err, iterator.Done) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("list GCS objects: %w", err)
	}
	return Entry{Path: attrs.Name, ModificationTime: attrs.Updated, Size: attrs.Size}, true, nil
}

func (g *GCS) Delete(ctx context.Context, path string) (bool, error) {
	err := g.client.Bucket(g.bucket).Object(path).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete gs://%s/%s: %w", g.bucket, path, err)
	}
	return true, nil
}

func (g *GCS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat gs://%s/%s: %w", g.bucket, path, err)
	}
	return true, nil
}

func (g *GCS) Write(ctx context.Context, path string, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", g.bucket, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for gs://%s/%s: %w", g.bucket, path, err)
	}
	return nil
}

func (g *GCS) Read(ctx context.Context, path string) ([]byte, bool, error) {
	r, err := g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open reader for gs://%s/%s: %w", g.bucket, path, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("read gs://%s/%s: %w", g.bucket, path, err)
	}
	return data, true, nil
}

// Close releases the underlying GCS client.
func (g *GCS) Close() error {
	return g.client.Close()
}

var _ ObjectStore = (*GCS)(nil)
