// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package protection implements ProtectionGate (spec §4.5): the
// six-rule decision procedure that forbids discarding history below a
// table's checkpoint-protection version unless the client can demonstrate
// full protocol support for the commits it would delete.
package protection

import (
	"context"

	"github.com/tablelake/cleanup/pkg/expiry"
	"github.com/tablelake/cleanup/pkg/logfmt"
	"github.com/tablelake/cleanup/pkg/snapshot"
)

// CheckpointExistenceChecker reports whether a complete checkpoint (any
// format) exists at the given version. Rule 5 consults it to decide
// whether the protected-prefix boundary is already anchored.
type CheckpointExistenceChecker interface {
	CheckpointExistsAt(ctx context.Context, version int64) (bool, error)
}

// ChecksumReader reads the protocol descriptor recorded in the checksum
// for a commit version. ok is false when no checksum record exists,
// which rule 6 treats as a veto.
type ChecksumReader interface {
	ReadProtocol(ctx context.Context, version int64) (snapshot.ProtocolDescriptor, bool, error)
}

// Decision is the outcome of Evaluate, carrying enough detail for the
// driver to log an informative message on denial.
type Decision struct {
	Allowed bool
	// Reason is a short, log-friendly explanation (e.g. "rule3: no
	// proposed commits in protected prefix", "rule6: missing checksum").
	Reason string
}

// Gate evaluates proposed deletions against a table's protection version.
//
// # Description
//
// Gate implements the six-rule decision table of spec §4.5: it never
// allows an artifact below checkpointProtectionVersion to be deleted
// unless the proposed batch clears the entire protected prefix, a
// checkpoint already anchors the boundary, or every commit in the
// affected range carries a checksum whose protocol is locally supported
// for read (and, at the boundary, for write). A denial is not an error;
// it ends the enclosing cleanup run cleanly (spec §7).
//
// # Thread Safety
//
// A Gate holds only its injected collaborators (checkpoints, checksums,
// caps) and is safe to reuse concurrently across Evaluate calls for
// different tables. Evaluate itself must not be called twice
// concurrently against overlapping proposed slices for the same table,
// which holds because the surrounding transaction engine serializes
// cleanup runs per table (spec §5).
type Gate struct {
	checkpoints CheckpointExistenceChecker
	checksums   ChecksumReader
	caps        snapshot.Capabilities
}

// New returns a Gate consulting checkpoints and checksums for existence
// and protocol-support checks, evaluated against the local client's caps.
func New(checkpoints CheckpointExistenceChecker, checksums ChecksumReader, caps snapshot.Capabilities) *Gate {
	return &Gate{checkpoints: checkpoints, checksums: checksums, caps: caps}
}

// Evaluate runs the six-rule procedure of spec §4.5 against proposed.
//
// # Description
//
// Walks the monotone commit versions in proposed to find the range R
// falling inside the protected prefix [0, checkpointProtectionVersion).
// Returns allowed as soon as any escape clause fires (protection
// disabled, nothing in the protected prefix, the whole prefix is being
// cleaned, or a checkpoint already anchors R.Hi+1); otherwise requires
// every commit in [R.Lo, R.Hi+1] to carry a checksum whose protocol this
// client supports, with write-support additionally required at the
// boundary.
//
// # Inputs
//
//   - ctx: carries the two runtime knobs via protection.With*; also
//     passed through to checkpoint/checksum lookups.
//   - meta: table metadata; only CheckpointProtectionVersion is read.
//   - proposed: the fully-drained expiry stream for this run, in
//     ascending version order.
//
// # Outputs
//
//   - Decision: Allowed plus a short, log-friendly Reason naming which
//     rule fired.
//   - error: non-nil only if a checkpoint or checksum lookup fails;
//     never returned for a denial, which is a normal Decision value.
func (g *Gate) Evaluate(ctx context.Context, meta snapshot.Metadata, proposed []expiry.Entry) (Decision, error) {
	p := meta.CheckpointProtectionVersion

	// Rule 1.
	if p <= 0 {
		return Decision{Allowed: true, Reason: "rule1: protection disabled"}, nil
	}

	// Rule 2: R is the version range of proposed commits in [0, p-1].
	// Commits are monotone in the stream, so scanning stops as soon as a
	// commit at version >= p is seen.
	r := snapshot.EmptyRange
	for _, e := range proposed {
		if e.Classified.Kind != logfmt.Commit {
			continue
		}
		if e.Classified.Version >= p {
			break
		}
		r = r.Extend(e.Classified.Version)
	}

	// Rule 3.
	if r.Empty() {
		return Decision{Allowed: true, Reason: "rule3: no proposed commits in protected prefix"}, nil
	}

	// Rule 4: cleaning the entire protected prefix is always allowed.
	if r.Hi >= p-1 {
		return Decision{Allowed: true, Reason: "rule4: cleaning entire protected prefix"}, nil
	}

	// Rule 5: a checkpoint already anchors the boundary, unless the
	// client-global knob forces this short-circuit off.
	if !checkpointExistenceCheckDisabled(ctx) {
		exists, err := g.checkpoints.CheckpointExistsAt(ctx, r.Hi+1)
		if err != nil {
			return Decision{}, err
		}
		if exists {
			return Decision{Allowed: true, Reason: "rule5: checkpoint anchors boundary"}, nil
		}
	}

	// Rule 6: every commit in [R.Lo, R.Hi+1] must carry a read-supported
	// protocol; the boundary version R.Hi+1 additionally needs
	// write-support (we will write a checkpoint there).
	if !allowWhenAllProtocolsSupported(ctx) {
		return Decision{Allowed: false, Reason: "rule6: forced deny by runtime knob"}, nil
	}
	for v := r.Lo; v <= r.Hi+1; v++ {
		desc, ok, err := g.checksums.ReadProtocol(ctx, v)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{Allowed: false, Reason: "rule6: missing checksum"}, nil
		}
		if !desc.SupportedForRead(g.caps) {
			return Decision{Allowed: false, Reason: "rule6: unsupported protocol for read"}, nil
		}
		if v == r.Hi+1 && !desc.SupportedForWrite(g.caps) {
			return Decision{Allowed: false, Reason: "rule6: unsupported protocol for write at boundary"}, nil
		}
	}
	return Decision{Allowed: true, Reason: "rule6: all protocols supported"}, nil
}
