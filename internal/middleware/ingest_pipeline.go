package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
)

// Sink is the minimal downstream the pipeline needs.
type Sink interface {
	UpsertObservations(ctx context.Context, rows []models.RankingObservation) error
}

// IngestPipeline sits between the snapshot consumer and the ranking
// store. It validates, throttles runaway re-crawls per chart dimension,
// and buffers batches when the store is unavailable so a ClickHouse
// restart does not force the consumer into redelivery storms.
type IngestPipeline struct {
	sink     Sink
	metrics  domrepo.Metrics
	maxBPS   int
	bufSize  int
	bufCh    chan []models.RankingObservation
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-dimension last accepted time
}

type PipelineOption func(*IngestPipeline)

// WithMaxBatchesPerSecond sets the max accepted batches per second for
// one (country, device, chart) dimension.
func WithMaxBatchesPerSecond(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.maxBPS = n
		}
	}
}

// WithBufferSize sets the batch buffer size used when the store is
// unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewIngestPipeline creates a new pipeline in front of sink.
func NewIngestPipeline(sink Sink, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		sink:     sink,
		metrics:  metrics,
		maxBPS:   20,
		bufSize:  256,
		bufCh:    make(chan []models.RankingObservation, 256),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan []models.RankingObservation, p.bufSize)
	}
	return p
}

// Start launches background flushing of buffered batches.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case rows := <-p.bufCh:
				if len(rows) == 0 {
					continue
				}
				if err := p.sink.UpsertObservations(ctx, rows); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- rows:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// UpsertObservations validates and throttles one snapshot batch and
// forwards it to the store, buffering on store errors.
func (p *IngestPipeline) UpsertObservations(ctx context.Context, rows []models.RankingObservation) error {
	start := time.Now()
	if err := validateBatch(rows); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(dimensionKey(rows[0]), start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.sink.UpsertObservations(ctx, rows); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- rows:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordQuery("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateBatch(rows []models.RankingObservation) error {
	if len(rows) == 0 {
		return fmt.Errorf("batch empty")
	}
	for i := range rows {
		r := &rows[i]
		if r.AppID == "" {
			return fmt.Errorf("row %d: app id empty", i)
		}
		if r.ChartDate.IsZero() {
			return fmt.Errorf("row %d: chart date zero", i)
		}
		if r.Country == "" || r.Device == "" || r.Chart == "" {
			return fmt.Errorf("row %d: dimension empty", i)
		}
	}
	return nil
}

func dimensionKey(r models.RankingObservation) string {
	return r.Country + "_" + r.Device + "_" + string(r.Chart)
}

func (p *IngestPipeline) allow(key string, now time.Time) bool {
	if p.maxBPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[key]
	if last.IsZero() {
		p.lastSeen[key] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxBPS) {
		return false
	}
	p.lastSeen[key] = now
	return true
}
