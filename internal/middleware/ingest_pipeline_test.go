package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"RankPulse/internal/domain/models"
	"RankPulse/pkg/util"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]models.RankingObservation
	fail    bool
}

func (s *recordingSink) UpsertObservations(_ context.Context, rows []models.RankingObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.batches = append(s.batches, rows)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *countingMetrics) RecordQuery(string, float64) {}
func (m *countingMetrics) RecordCache(string, bool)    {}
func (m *countingMetrics) RecordInference(float64)     {}
func (m *countingMetrics) RecordIngest(int)            {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

func batch(country string) []models.RankingObservation {
	d, _ := util.ParseDay("2025-03-10")
	return []models.RankingObservation{{
		ChartDate: d,
		Country:   country,
		Device:    "iphone",
		Chart:     models.ChartFree,
		AppID:     "a",
	}}
}

func TestPipelineForwardsValidBatch(t *testing.T) {
	sink := &recordingSink{}
	p := NewIngestPipeline(sink, &countingMetrics{})

	if err := p.UpsertObservations(context.Background(), batch("cn")); err != nil {
		t.Fatalf("UpsertObservations: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("sink batches = %d, want 1", sink.count())
	}
}

func TestPipelineRejectsInvalidBatch(t *testing.T) {
	sink := &recordingSink{}
	m := &countingMetrics{}
	p := NewIngestPipeline(sink, m)

	rows := batch("cn")
	rows[0].AppID = ""
	if err := p.UpsertObservations(context.Background(), rows); err == nil {
		t.Fatal("want validation error")
	}
	if err := p.UpsertObservations(context.Background(), nil); err == nil {
		t.Fatal("want error for empty batch")
	}
	if sink.count() != 0 {
		t.Fatalf("invalid batches reached the sink")
	}
	if m.errors["pipeline_validate"] != 2 {
		t.Fatalf("validate errors = %d, want 2", m.errors["pipeline_validate"])
	}
}

func TestPipelineThrottlesPerDimension(t *testing.T) {
	sink := &recordingSink{}
	m := &countingMetrics{}
	p := NewIngestPipeline(sink, m, WithMaxBatchesPerSecond(1))

	// Two immediate batches on the same dimension: second is dropped.
	if err := p.UpsertObservations(context.Background(), batch("cn")); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := p.UpsertObservations(context.Background(), batch("cn")); err != nil {
		t.Fatalf("throttled batch must not error: %v", err)
	}
	// A different dimension is unaffected.
	if err := p.UpsertObservations(context.Background(), batch("us")); err != nil {
		t.Fatalf("other dimension: %v", err)
	}
	if sink.count() != 2 {
		t.Fatalf("sink batches = %d, want 2", sink.count())
	}
	if m.errors["pipeline_throttle"] != 1 {
		t.Fatalf("throttle errors = %d, want 1", m.errors["pipeline_throttle"])
	}
}

func TestPipelineBuffersAndFlushesOnRecovery(t *testing.T) {
	sink := &recordingSink{fail: true}
	m := &countingMetrics{}
	p := NewIngestPipeline(sink, m)

	if err := p.UpsertObservations(context.Background(), batch("cn")); err == nil {
		t.Fatal("want downstream error while sink is failing")
	}

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("buffered batch never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
