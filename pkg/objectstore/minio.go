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

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIO is an ObjectStore backed by any S3-compatible endpoint reachable
// via the MinIO client, grounded on the pack's gateway-backed logstore
// prefix-list/prune pattern but talking to the object store directly
// rather than through a gateway RPC.
type MinIO struct {
	client *minio.Client
	bucket string
}

// NewMinIO creates a MinIO-backed ObjectStore against endpoint/bucket
// using static access/secret credentials.
func NewMinIO(endpoint, bucket, accessKey, secretKey string, useTLS bool) (*MinIO, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}
	return &MinIO{client: client, bucket: bucket}, nil
}

func (s *MinIO) List(ctx context.Context, prefix string) (EntryIter, error) {
	ch := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	return &minioIter{ch: ch}, nil
}

type minioIter struct {
	ch <-chan minio.ObjectInfo
}

func (it *minioIter) Next(ctx context.Context) (Entry, bool, error) {
	select {
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	case info, ok := <-it.ch:
		if !ok {
			return Entry{}, false, nil
		}
		if info.Err != nil {
			return Entry{}, false, fmt.Errorf("list minio objects: %w", info.Err)
		}
		return Entry{Path: info.Key, ModificationTime: info.LastModified, Size: info.Size}, true, nil
	}
}

func (s *MinIO) Delete(ctx context.Context, path string) (bool, error) {
	existed, err := s.Exists(ctx, path)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("delete s3://%s/%s: %w", s.bucket, path, err)
	}
	return true, nil
}

func (s *MinIO) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("stat s3://%s/%s: %w", s.bucket, path, err)
	}
	return true, nil
}

func (s *MinIO) Write(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("write s3://%s/%s: %w", s.bucket, path, err)
	}
	return nil
}

func (s *MinIO) Read(ctx context.Context, path string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("open s3://%s/%s: %w", s.bucket, path, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read s3://%s/%s: %w", s.bucket, path, err)
	}
	return data, true, nil
}

var _ ObjectStore = (*MinIO)(nil)
