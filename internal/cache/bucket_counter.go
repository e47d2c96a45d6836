// Tapguard - Offline Edge Fraud Detection for Contactless Cards
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tapguard

// Package cache provides the time-bucketed counters behind the velocity rules.
package cache

import (
	"fmt"
	"slices"
)

// BucketCounter counts unique counterparts per entity in fixed-width time
// buckets. It backs both "unique cards per merchant" and "unique merchants per
// card" by swapping which ID is the entity.
//
// Buckets are half-open [start, start+window). Each entity keeps its bucket
// starts in ascending order, so pruning only looks at that entity's oldest
// buckets and never scans other entities.
//
// Complexity:
//   - Update: O(log b) to locate the bucket, O(p) to drop p expired buckets
//   - Memory: O(b * m) per entity, b = retained buckets, m = counterparts per bucket
//
// BucketCounter is not safe for concurrent use; the detection engine that owns
// it is driven by a single goroutine.
type BucketCounter[E comparable, C comparable] struct {
	window      int64
	keepWindows int64
	entities    map[E]*entityBuckets[C]
}

type entityBuckets[C comparable] struct {
	starts []int64 // ascending
	sets   map[int64]map[C]struct{}
}

// NewBucketCounter creates a counter with window-second buckets that retains
// keepWindows windows of history per entity.
func NewBucketCounter[E comparable, C comparable](window int64, keepWindows int) (*BucketCounter[E, C], error) {
	if window <= 0 {
		return nil, fmt.Errorf("bucket window must be positive, got %d", window)
	}
	if keepWindows <= 0 {
		return nil, fmt.Errorf("keep windows must be positive, got %d", keepWindows)
	}
	return &BucketCounter[E, C]{
		window:      window,
		keepWindows: int64(keepWindows),
		entities:    make(map[E]*entityBuckets[C]),
	}, nil
}

// Window returns the bucket width in seconds.
func (b *BucketCounter[E, C]) Window() int64 {
	return b.window
}

// BucketStart floors ts to the start of its bucket.
func (b *BucketCounter[E, C]) BucketStart(ts int64) int64 {
	r := ts % b.window
	if r < 0 {
		r += b.window
	}
	return ts - r
}

// Update records counterpart for entity in the bucket containing ts, drops the
// entity's buckets that started more than keepWindows*window before that
// bucket, and returns the number of distinct counterparts in the bucket.
// Recording the same counterpart twice does not change the count.
func (b *BucketCounter[E, C]) Update(entity E, ts int64, counterpart C) int {
	start := b.BucketStart(ts)
	eb := b.entry(entity)

	set := eb.bucket(start)
	set[counterpart] = struct{}{}
	count := len(set)

	eb.prune(start - b.window*b.keepWindows)
	return count
}

// Count returns the number of distinct counterparts recorded for entity in the
// bucket containing ts, without modifying anything.
func (b *BucketCounter[E, C]) Count(entity E, ts int64) int {
	eb, ok := b.entities[entity]
	if !ok {
		return 0
	}
	return len(eb.sets[b.BucketStart(ts)])
}

// Buckets returns the retained bucket starts for entity, oldest first.
func (b *BucketCounter[E, C]) Buckets(entity E) []int64 {
	eb, ok := b.entities[entity]
	if !ok {
		return nil
	}
	return slices.Clone(eb.starts)
}

// Entities returns the number of entities with retained buckets.
func (b *BucketCounter[E, C]) Entities() int {
	return len(b.entities)
}

// entry returns the entity's buckets, creating them on first use.
// A missing entity has simply never been observed.
func (b *BucketCounter[E, C]) entry(entity E) *entityBuckets[C] {
	eb, ok := b.entities[entity]
	if !ok {
		eb = &entityBuckets[C]{sets: make(map[int64]map[C]struct{})}
		b.entities[entity] = eb
	}
	return eb
}

func (eb *entityBuckets[C]) bucket(start int64) map[C]struct{} {
	if set, ok := eb.sets[start]; ok {
		return set
	}
	set := make(map[C]struct{})
	eb.sets[start] = set

	// Appending is the common case: timestamps mostly move forward.
	if n := len(eb.starts); n == 0 || eb.starts[n-1] < start {
		eb.starts = append(eb.starts, start)
	} else {
		i, _ := slices.BinarySearch(eb.starts, start)
		eb.starts = slices.Insert(eb.starts, i, start)
	}
	return set
}

// prune drops buckets whose start is strictly before cutoff.
func (eb *entityBuckets[C]) prune(cutoff int64) {
	n := 0
	for n < len(eb.starts) && eb.starts[n] < cutoff {
		delete(eb.sets, eb.starts[n])
		n++
	}
	if n > 0 {
		eb.starts = slices.Delete(eb.starts, 0, n)
	}
}
