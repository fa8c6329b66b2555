package perf

import (
	"testing"
	"time"
)

func TestCounters(t *testing.T) {
	var c Counters
	c.Translations.Add(1)
	c.BlockHits.Add(999_999)
	c.BlockMisses.Add(1)

	snap := c.Snapshot()
	if snap.Translations != 1 {
		t.Errorf("Translations = %d, want 1", snap.Translations)
	}
	if snap.BlockHits != 999_999 {
		t.Errorf("BlockHits = %d, want 999999", snap.BlockHits)
	}
}

func TestCalculateAggregate(t *testing.T) {
	stats := []*CompileStats{
		NewCompileStats(0x1000, 10, 40, 5*time.Millisecond),
		NewCompileStats(0x2000, 20, 60, 15*time.Millisecond),
	}
	agg := CalculateAggregate(stats)
	if agg.TotalBlocks != 2 {
		t.Errorf("TotalBlocks = %d, want 2", agg.TotalBlocks)
	}
	if agg.TotalGuestBytes != 30 || agg.TotalHostBytes != 100 {
		t.Errorf("totals = %d/%d, want 30/100", agg.TotalGuestBytes, agg.TotalHostBytes)
	}
	if agg.MinCompileTime != 5*time.Millisecond || agg.MaxCompileTime != 15*time.Millisecond {
		t.Errorf("min/max = %v/%v", agg.MinCompileTime, agg.MaxCompileTime)
	}
	wantAvgRatio := (4.0 + 3.0) / 2
	if agg.AverageHostToGuestCodeRatio != wantAvgRatio {
		t.Errorf("AverageHostToGuestCodeRatio = %v, want %v", agg.AverageHostToGuestCodeRatio, wantAvgRatio)
	}
}

func TestCalculateAggregateEmpty(t *testing.T) {
	agg := CalculateAggregate(nil)
	if agg.TotalBlocks != 0 {
		t.Errorf("expected zero-value aggregate for empty input")
	}
}
