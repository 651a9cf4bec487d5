// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package timeutil truncates wall-clock instants to UTC bucket
// boundaries, implementing spec §4.3. Truncating the cutoff (rather than
// using the raw "now - retention") is what produces the grace window: a
// cleanup run only advances the deletable frontier at bucket boundaries,
// avoiding thrash from borderline timestamps.
package timeutil

// Granularity is the bucket size TruncateMillis truncates to.
type Granularity int

const (
	Day Granularity = iota
	Hour
	Minute
)

const (
	millisPerMinute = int64(60 * 1000)
	millisPerHour   = int64(60) * millisPerMinute
	millisPerDay    = int64(24) * millisPerHour
)

// TruncateMillis returns the epoch-millis of the start of the UTC bucket
// of the given granularity containing epochMillis. Day truncates to the
// previous midnight UTC; Hour and Minute truncate to the start of the
// containing hour/minute.
func TruncateMillis(epochMillis int64, granularity Granularity) int64 {
	var bucket int64
	switch granularity {
	case Hour:
		bucket = millisPerHour
	case Minute:
		bucket = millisPerMinute
	default:
		bucket = millisPerDay
	}
	return floorDiv(epochMillis, bucket) * bucket
}

// floorDiv performs integer division that rounds toward negative
// infinity, so truncation is correct for instants before the Unix epoch.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
