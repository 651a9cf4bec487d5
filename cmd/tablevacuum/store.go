// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	"github.com/tablelake/cleanup/pkg/objectstore"
)

// buildStore constructs the ObjectStore backend named by backend, using
// whichever of the GCS/MinIO flag groups applies. "memory" is a
// throwaway backend useful only for --dry-run smoke tests against no
// real table.
func buildStore(ctx context.Context, backend string) (objectstore.ObjectStore, error) {
	switch backend {
	case "memory":
		return objectstore.NewMemory(), nil
	case "gcs":
		if gcsBucket == "" {
			return nil, fmt.Errorf("--gcs-bucket is required for --backend=gcs")
		}
		return objectstore.NewGCS(ctx, gcsBucket, gcsServiceAccountKey)
	case "minio", "s3":
		if minioEndpoint == "" || minioBucket == "" {
			return nil, fmt.Errorf("--minio-endpoint and --minio-bucket are required for --backend=%s", backend)
		}
		return objectstore.NewMinIO(minioEndpoint, minioBucket, minioAccessKey, minioSecretKey, minioUseTLS)
	default:
		return nil, fmt.Errorf("unknown --backend %q (want memory, gcs, or minio)", backend)
	}
}
