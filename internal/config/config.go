// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the per-table cleanup configuration: the table
// properties CleanupDriver reads (spec §6) plus the two client-global
// runtime knobs that bypass individual ProtectionGate rules, following
// the pack's YAML-file-with-defaults loading convention.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tablelake/cleanup/pkg/snapshot"
)

// TableConfig is the on-disk shape of a table's cleanup-relevant
// properties, loaded from a YAML file (typically the table's own
// configuration, not a separate CLI config).
type TableConfig struct {
	// EnableExpiredLogCleanup is the master switch (spec §4.8 step 1).
	EnableExpiredLogCleanup bool `yaml:"enable_expired_log_cleanup"`

	// LogRetentionMillis is the minimum age, in milliseconds, an
	// artifact must reach before it becomes a deletion candidate.
	LogRetentionMillis int64 `yaml:"log_retention_millis"`

	// CheckpointProtectionVersion gates ProtectionGate rule 1. Zero or
	// negative disables protection entirely.
	CheckpointProtectionVersion int64 `yaml:"checkpoint_protection_version"`

	// V2CheckpointsEnabled turns on CompatCheckpointer and SidecarGC.
	V2CheckpointsEnabled bool `yaml:"v2_checkpoints_enabled"`
}

// RuntimeKnobs are the two client-global overrides spec §6 and §9
// describe: each forces a specific ProtectionGate rule's outcome when
// set, and both default to their "not overridden" value when absent.
type RuntimeKnobs struct {
	// AllowMetadataCleanupWhenAllProtocolsSupported, when explicitly
	// false, forces rule 6 to deny regardless of protocol coverage.
	AllowMetadataCleanupWhenAllProtocolsSupported bool `yaml:"allow_metadata_cleanup_when_all_protocols_supported"`

	// AllowMetadataCleanupCheckpointExistenceCheckDisabled, when true,
	// skips rule 5's checkpoint-existence short-circuit.
	AllowMetadataCleanupCheckpointExistenceCheckDisabled bool `yaml:"allow_metadata_cleanup_checkpoint_existence_check_disabled"`
}

// DefaultTableConfig mirrors spec §6's defaults: cleanup disabled until
// a table opts in, a 7-day retention window, and no protection version.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		EnableExpiredLogCleanup:    false,
		LogRetentionMillis:         7 * 24 * 60 * 60 * 1000,
		CheckpointProtectionVersion: 0,
		V2CheckpointsEnabled:       false,
	}
}

// DefaultRuntimeKnobs matches protection's absent-from-context
// defaults: rule 6 is not forced to deny, rule 5's short-circuit is
// not disabled.
func DefaultRuntimeKnobs() RuntimeKnobs {
	return RuntimeKnobs{
		AllowMetadataCleanupWhenAllProtocolsSupported:        true,
		AllowMetadataCleanupCheckpointExistenceCheckDisabled: false,
	}
}

// Load reads a TableConfig from path. It starts from DefaultTableConfig
// and unmarshals onto it, so a file that only sets some fields leaves
// the rest at their defaults.
func Load(path string) (TableConfig, error) {
	cfg := DefaultTableConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return TableConfig{}, fmt.Errorf("read table config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TableConfig{}, fmt.Errorf("parse table config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadRuntimeKnobs reads RuntimeKnobs from path. A missing file is not
// an error: the knobs are optional, and the zero-override defaults
// apply (spec §9's "absent means not overridden").
func LoadRuntimeKnobs(path string) (RuntimeKnobs, error) {
	knobs := DefaultRuntimeKnobs()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return knobs, nil
		}
		return RuntimeKnobs{}, fmt.Errorf("read runtime knobs %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &knobs); err != nil {
		return RuntimeKnobs{}, fmt.Errorf("parse runtime knobs %s: %w", path, err)
	}
	return knobs, nil
}

// ToMetadata converts TableConfig into the snapshot.Metadata shape the
// cleanup core consumes directly.
func (c TableConfig) ToMetadata() snapshot.Metadata {
	return snapshot.Metadata{
		EnableExpiredLogCleanup:    c.EnableExpiredLogCleanup,
		LogRetentionMillis:         c.LogRetentionMillis,
		CheckpointProtectionVersion: c.CheckpointProtectionVersion,
		V2CheckpointsEnabled:       c.V2CheckpointsEnabled,
	}
}
