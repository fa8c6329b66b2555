// Package perf collects translation and dispatch metrics: the block-miss
// and blocks-invalidated counters the testable properties in spec.md §8
// (S2, S3) require, plus per-translation compile statistics in the same
// shape the teacher's performance package used for its PVM-to-x86 code
// expansion ratios (here: guest-x86-to-host-ARM64).
package perf

import (
	"sync/atomic"
	"time"
)

// Counters are process-wide atomic counters sampled by the dispatcher,
// translator and SMC detector. All fields are safe for concurrent use.
type Counters struct {
	Translations      atomic.Int64 // blocks translated from scratch
	BlockMisses       atomic.Int64 // cache misses that reached the translator
	BlockHits         atomic.Int64 // cache hits on the fast path
	BlocksInvalidated atomic.Int64 // blocks invalidated by SMC
	InterpreterFallbacks atomic.Int64 // blocks that fell back to the interpreter
}

// Snapshot is an immutable copy of Counters for reporting/charting.
type Snapshot struct {
	Translations         int64
	BlockMisses          int64
	BlockHits            int64
	BlocksInvalidated    int64
	InterpreterFallbacks int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Translations:         c.Translations.Load(),
		BlockMisses:          c.BlockMisses.Load(),
		BlockHits:            c.BlockHits.Load(),
		BlocksInvalidated:    c.BlocksInvalidated.Load(),
		InterpreterFallbacks: c.InterpreterFallbacks.Load(),
	}
}

// CompileStats records the outcome of a single block translation.
type CompileStats struct {
	GuestStart uint64
	GuestBytes int
	HostBytes  int

	CompileTime time.Duration

	HostToGuestCodeRatio float64
}

// NewCompileStats derives ratios from raw sizes, mirroring the teacher's
// X86ToPVMCodeRatio computation but for the reverse direction (host ARM64
// code generated per guest x86_64 byte).
func NewCompileStats(guestStart uint64, guestBytes, hostBytes int, elapsed time.Duration) *CompileStats {
	s := &CompileStats{
		GuestStart:  guestStart,
		GuestBytes:  guestBytes,
		HostBytes:   hostBytes,
		CompileTime: elapsed,
	}
	if guestBytes > 0 {
		s.HostToGuestCodeRatio = float64(hostBytes) / float64(guestBytes)
	}
	return s
}

// AggregateStats summarizes a run of CompileStats, matching the teacher's
// AggregateStats field shape (totals, min/max/average compile time, average
// expansion ratio) one-for-one.
type AggregateStats struct {
	TotalBlocks int

	TotalCompileTime   time.Duration
	AverageCompileTime time.Duration
	MinCompileTime     time.Duration
	MaxCompileTime     time.Duration

	TotalGuestBytes int
	TotalHostBytes  int

	AverageHostToGuestCodeRatio float64
}

func CalculateAggregate(stats []*CompileStats) *AggregateStats {
	if len(stats) == 0 {
		return &AggregateStats{}
	}
	agg := &AggregateStats{
		TotalBlocks:    len(stats),
		MinCompileTime: stats[0].CompileTime,
		MaxCompileTime: stats[0].CompileTime,
	}
	var totalRatio float64
	for _, s := range stats {
		agg.TotalCompileTime += s.CompileTime
		if s.CompileTime < agg.MinCompileTime {
			agg.MinCompileTime = s.CompileTime
		}
		if s.CompileTime > agg.MaxCompileTime {
			agg.MaxCompileTime = s.CompileTime
		}
		agg.TotalGuestBytes += s.GuestBytes
		agg.TotalHostBytes += s.HostBytes
		totalRatio += s.HostToGuestCodeRatio
	}
	agg.AverageCompileTime = agg.TotalCompileTime / time.Duration(len(stats))
	agg.AverageHostToGuestCodeRatio = totalRatio / float64(len(stats))
	return agg
}
