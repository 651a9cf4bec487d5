// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package protection

import "context"

type ctxKey int

const (
	keyAllowWhenAllProtocolsSupported ctxKey = iota
	keyCheckpointExistenceCheckDisabled
)

// WithAllowMetadataCleanupWhenAllProtocolsSupported threads the
// client-global knob of the same name (spec §6) through ctx. When false,
// rule 6 is forced to deny. Defaults to true when absent from ctx.
func WithAllowMetadataCleanupWhenAllProtocolsSupported(ctx context.Context, allow bool) context.Context {
	return context.WithValue(ctx, keyAllowWhenAllProtocolsSupported, allow)
}

// WithAllowMetadataCleanupCheckpointExistenceCheckDisabled threads the
// client-global knob of the same name (spec §6) through ctx. When true,
// rule 5 is forced to deny. Defaults to false when absent from ctx.
func WithAllowMetadataCleanupCheckpointExistenceCheckDisabled(ctx context.Context, disabled bool) context.Context {
	return context.WithValue(ctx, keyCheckpointExistenceCheckDisabled, disabled)
}

func allowWhenAllProtocolsSupported(ctx context.Context) bool {
	v, ok := ctx.Value(keyAllowWhenAllProtocolsSupported).(bool)
	if !ok {
		return true
	}
	return v
}

func checkpointExistenceCheckDisabled(ctx context.Context) bool {
	v, ok := ctx.Value(keyCheckpointExistenceCheckDisabled).(bool)
	if !ok {
		return false
	}
	return v
}
