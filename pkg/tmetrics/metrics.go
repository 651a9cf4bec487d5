// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tmetrics provides the cleanup core's metrics recorder,
// following the project's Open Core split: a no-op in-memory recorder for
// the FOSS tier and a Prometheus-backed recorder for deployments that
// export to Grafana/Alertmanager. The interface is public; the
// implementation dictates the value.
package tmetrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "tablelake"
	subsystem = "cleanup"
)

// Recorder is the metrics surface the cleanup core writes to. CompatCheckpointer
// and sidecar.GC consume the narrower interfaces they each need; Driver
// wires a single Recorder implementation that satisfies both plus the
// counters of spec §4.8 step 9.
type Recorder interface {
	RecordFilesProcessed(n int)
	RecordFilesDeleted(n int)
	RecordBytesFreed(n int64)
	RecordGateDenied()
	RecordCompatCheckpoint(versionWritten int64, elapsed time.Duration)
	RecordSidecarGC(deleted, errored int)
}

// NoopRecorder tracks counts in memory without exporting them, for FOSS
// deployments and for tests that only need coarse assertions.
type NoopRecorder struct {
	filesProcessed  atomic.Int64
	filesDeleted    atomic.Int64
	bytesFreed      atomic.Int64
	gateDenied      atomic.Int64
	compatWritten   atomic.Int64
	sidecarsDeleted atomic.Int64
	sidecarsErrored atomic.Int64
}

// NewNoopRecorder returns a Recorder that only tallies counts in memory.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (r *NoopRecorder) RecordFilesProcessed(n int)   { r.filesProcessed.Add(int64(n)) }
func (r *NoopRecorder) RecordFilesDeleted(n int)     { r.filesDeleted.Add(int64(n)) }
func (r *NoopRecorder) RecordBytesFreed(n int64)     { r.bytesFreed.Add(n) }
func (r *NoopRecorder) RecordGateDenied()            { r.gateDenied.Add(1) }
func (r *NoopRecorder) RecordSidecarGC(deleted, errored int) {
	r.sidecarsDeleted.Add(int64(deleted))
	r.sidecarsErrored.Add(int64(errored))
}
func (r *NoopRecorder) RecordCompatCheckpoint(versionWritten int64, _ time.Duration) {
	if versionWritten >= 0 {
		r.compatWritten.Add(1)
	}
}

// FilesDeleted returns the running total, for test assertions.
func (r *NoopRecorder) FilesDeleted() int64 { return r.filesDeleted.Load() }

// PrometheusRecorder exports cleanup-core metrics to Prometheus.
//
// Metrics exported:
//   - tablelake_cleanup_files_processed_total
//   - tablelake_cleanup_files_deleted_total
//   - tablelake_cleanup_bytes_freed_total
//   - tablelake_cleanup_gate_denied_total
//   - tablelake_cleanup_compat_checkpoints_written_total
//   - tablelake_cleanup_compat_checkpoint_duration_seconds
//   - tablelake_cleanup_sidecar_orphans_deleted_total
//   - tablelake_cleanup_sidecar_gc_errors_total
type PrometheusRecorder struct {
	filesProcessed     prometheus.Counter
	filesDeleted       prometheus.Counter
	bytesFreed         prometheus.Counter
	gateDenied         prometheus.Counter
	compatWritten      prometheus.Counter
	compatDuration     prometheus.Histogram
	sidecarsDeleted    prometheus.Counter
	sidecarsGCErrors   prometheus.Counter

	mu         sync.Mutex
	registered bool
}

// NewPrometheusRecorder builds the collector set. Call Register before
// the first metric is recorded.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		filesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "files_processed_total",
			Help: "Log artifacts considered for deletion.",
		}),
		filesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "files_deleted_total",
			Help: "Log artifacts actually deleted.",
		}),
		bytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "bytes_freed_total",
			Help: "Bytes freed by deleted artifacts.",
		}),
		gateDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "gate_denied_total",
			Help: "Runs skipped because ProtectionGate denied the proposed deletion.",
		}),
		compatWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "compat_checkpoints_written_total",
			Help: "Legacy classic checkpoints synthesized by CompatCheckpointer.",
		}),
		compatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "compat_checkpoint_duration_seconds",
			Help:    "Wall time spent in CompatCheckpointer.Run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		sidecarsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "sidecar_orphans_deleted_total",
			Help: "Orphaned sidecar part-files deleted by SidecarGC.",
		}),
		sidecarsGCErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "sidecar_gc_errors_total",
			Help: "Sidecar deletions that failed during SidecarGC.",
		}),
	}
}

func (r *PrometheusRecorder) RecordFilesProcessed(n int) { r.filesProcessed.Add(float64(n)) }
func (r *PrometheusRecorder) RecordFilesDeleted(n int)   { r.filesDeleted.Add(float64(n)) }
func (r *PrometheusRecorder) RecordBytesFreed(n int64)   { r.bytesFreed.Add(float64(n)) }
func (r *PrometheusRecorder) RecordGateDenied()          { r.gateDenied.Inc() }

func (r *PrometheusRecorder) RecordCompatCheckpoint(versionWritten int64, elapsed time.Duration) {
	r.compatDuration.Observe(elapsed.Seconds())
	if versionWritten >= 0 {
		r.compatWritten.Inc()
	}
}

func (r *PrometheusRecorder) RecordSidecarGC(deleted, errored int) {
	r.sidecarsDeleted.Add(float64(deleted))
	r.sidecarsGCErrors.Add(float64(errored))
}

// Register registers all collectors with the Prometheus default registry.
// Safe to call more than once.
func (r *PrometheusRecorder) Register() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		return nil
	}
	collectors := []prometheus.Collector{
		r.filesProcessed, r.filesDeleted, r.bytesFreed, r.gateDenied,
		r.compatWritten, r.compatDuration, r.sidecarsDeleted, r.sidecarsGCErrors,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return err
		}
	}
	r.registered = true
	return nil
}

// NewDefaultRecorder returns a PrometheusRecorder when enablePrometheus is
// true (registering it immediately), otherwise a NoopRecorder.
func NewDefaultRecorder(enablePrometheus bool) (Recorder, error) {
	if !enablePrometheus {
		return NewNoopRecorder(), nil
	}
	r := NewPrometheusRecorder()
	if err := r.Register(); err != nil {
		return nil, err
	}
	return r, nil
}

var _ Recorder = (*NoopRecorder)(nil)
var _ Recorder = (*PrometheusRecorder)(nil)
