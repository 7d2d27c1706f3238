package metrics

import (
	"math"
	"testing"

	"github.com/psantana5/svcguard/internal/store"
	"github.com/psantana5/svcguard/pkg/models"
)

func sampleWithRSS(ts int64, rss float64) models.MetricSample {
	return models.MetricSample{TimestampSec: ts, ServiceRSSMB: rss}
}

func TestTrend_RetentionCapHolds(t *testing.T) {
	st := store.NewMemoryStore(50)
	trend := NewTrend(st)

	for i := 0; i < 200; i++ {
		if err := trend.Record(sampleWithRSS(int64(i), 100)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	count, err := st.SampleCount()
	if err != nil {
		t.Fatalf("SampleCount failed: %v", err)
	}
	if count != 50 {
		t.Errorf("Expected 50 retained samples, got %d", count)
	}

	// Oldest must have been evicted first
	samples, _ := st.Samples()
	if samples[0].TimestampSec != 150 {
		t.Errorf("Expected oldest retained ts 150, got %d", samples[0].TimestampSec)
	}
}

func TestTrend_DetectGrowthNeedsHistory(t *testing.T) {
	st := store.NewMemoryStore(100)
	trend := NewTrend(st)

	for i := 0; i < 29; i++ {
		trend.Record(sampleWithRSS(int64(i), 100))
	}

	growth, err := trend.DetectGrowth(200)
	if err != nil {
		t.Fatalf("DetectGrowth failed: %v", err)
	}
	if growth != nil {
		t.Errorf("Expected nil below 30 samples, got %+v", growth)
	}
}

func TestTrend_DetectGrowthFormula(t *testing.T) {
	st := store.NewMemoryStore(100)
	trend := NewTrend(st)

	// The comparison point is 30 samples back: the first of exactly 30
	trend.Record(sampleWithRSS(0, 100))
	for i := 1; i < 30; i++ {
		trend.Record(sampleWithRSS(int64(i), 110))
	}

	growth, err := trend.DetectGrowth(150)
	if err != nil {
		t.Fatalf("DetectGrowth failed: %v", err)
	}
	if growth == nil {
		t.Fatal("Expected growth result with 30 samples")
	}
	if math.Abs(growth.Pct-50.0) > 0.001 {
		t.Errorf("Expected 50%% growth, got %.3f", growth.Pct)
	}
	if !growth.Flagged {
		t.Error("50% growth should be flagged")
	}
}

func TestTrend_SmallGrowthNotFlagged(t *testing.T) {
	st := store.NewMemoryStore(100)
	trend := NewTrend(st)

	for i := 0; i < 30; i++ {
		trend.Record(sampleWithRSS(int64(i), 100))
	}

	growth, _ := trend.DetectGrowth(110)
	if growth == nil {
		t.Fatal("Expected growth result")
	}
	if growth.Flagged {
		t.Errorf("10%% growth should not be flagged, pct=%.1f", growth.Pct)
	}
}

func TestTrend_ZeroBaselineReturnsNil(t *testing.T) {
	st := store.NewMemoryStore(100)
	trend := NewTrend(st)

	for i := 0; i < 30; i++ {
		trend.Record(sampleWithRSS(int64(i), 0))
	}

	growth, _ := trend.DetectGrowth(100)
	if growth != nil {
		t.Errorf("Expected nil with zero baseline, got %+v", growth)
	}
}
