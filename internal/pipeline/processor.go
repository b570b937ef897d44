// Package pipeline runs every inbound snapshot through annotation, storage and scoring on a
// single consumer goroutine, so summaries are produced in arrival order. Each sink publishes
// from its own goroutine and never holds up the consumer.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/alerting"
	"archaeoscan-gateway/internal/anomaly"
	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/metrics"
	"archaeoscan-gateway/internal/scoring"
	"archaeoscan-gateway/internal/storage"
)

var (
	ErrQueueFull = errors.New("snapshot queue full")
	ErrStopped   = errors.New("pipeline stopped")
)

const (
	DefaultQueueSize      = 256
	DefaultPublishTimeout = 2 * time.Second
	DefaultSinkBuffer     = 16
)

// Publisher is an outbound sink for computed summaries.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, b scoring.BlockSummaries) error
}

// Broadcaster pushes a typed message to dashboard clients.
type Broadcaster interface {
	Broadcast(kind string, payload interface{})
}

type Options struct {
	QueueSize      int
	PublishTimeout time.Duration
	// SinkBuffer is how many summaries wait per sink; the oldest is dropped when full.
	SinkBuffer int
	Scoring    scoring.Options
}

type Processor struct {
	queue    chan *data.Snapshot
	done     chan struct{}
	stopOnce sync.Once

	detector *anomaly.Detector
	store    *storage.MemoryStore
	alerter  *alerting.Alerter
	hub      Broadcaster
	sinks    []*sinkWorker
	metrics  *metrics.Metrics
	log      *zap.Logger

	publishTimeout time.Duration
	scoring        scoring.Options
	now            func() time.Time
}

func New(opts Options, detector *anomaly.Detector, store *storage.MemoryStore, alerter *alerting.Alerter,
	hub Broadcaster, m *metrics.Metrics, log *zap.Logger, sinks ...Publisher) *Processor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.SinkBuffer <= 0 {
		opts.SinkBuffer = DefaultSinkBuffer
	}
	workers := make([]*sinkWorker, 0, len(sinks))
	for _, sink := range sinks {
		workers = append(workers, &sinkWorker{
			sink:    sink,
			pending: make(chan scoring.BlockSummaries, opts.SinkBuffer),
		})
	}
	return &Processor{
		queue:          make(chan *data.Snapshot, opts.QueueSize),
		done:           make(chan struct{}),
		detector:       detector,
		store:          store,
		alerter:        alerter,
		hub:            hub,
		sinks:          workers,
		metrics:        m,
		log:            log.With(zap.String("component", "pipeline")),
		publishTimeout: opts.PublishTimeout,
		scoring:        opts.Scoring,
		now:            time.Now,
	}
}

// Submit enqueues snap without blocking.
func (p *Processor) Submit(snap *data.Snapshot) error {
	select {
	case <-p.done:
		p.metrics.SnapshotDropped("stopped")
		return ErrStopped
	default:
	}
	select {
	case p.queue <- snap:
		return nil
	default:
		p.metrics.SnapshotDropped("queue_full")
		return ErrQueueFull
	}
}

// SubmitWait enqueues snap, waiting for room until ctx is done or the pipeline stops.
func (p *Processor) SubmitWait(ctx context.Context, snap *data.Snapshot) error {
	select {
	case p.queue <- snap:
		return nil
	case <-p.done:
		p.metrics.SnapshotDropped("stopped")
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the queue and drives the sinks until ctx is cancelled. Snapshots still
// queued at that point are dropped.
func (p *Processor) Run(ctx context.Context) {
	defer p.stopOnce.Do(func() { close(p.done) })

	var wg sync.WaitGroup
	for _, w := range p.sinks {
		wg.Add(1)
		go func(w *sinkWorker) {
			defer wg.Done()
			p.drain(ctx, w)
		}(w)
	}
	defer wg.Wait()

	p.log.Info("pipeline started", zap.Int("queue_size", cap(p.queue)), zap.Int("sinks", len(p.sinks)))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("pipeline stopped", zap.Int("dropped", len(p.queue)))
			return
		case snap := <-p.queue:
			p.Process(ctx, snap)
		}
	}
}

// Process handles one snapshot and returns the summaries it produced. Sinks receive the
// summaries asynchronously while Run is active.
func (p *Processor) Process(ctx context.Context, snap *data.Snapshot) scoring.BlockSummaries {
	snap, rejected := p.store.Admit(snap)
	if len(rejected) > 0 {
		p.metrics.ReadingsRejected(len(rejected))
		p.log.Debug("sensor limit reached", zap.Strings("rejected", rejected))
	}
	if len(snap.Readings) == 0 {
		p.metrics.SnapshotDropped("sensor_limit")
		latest, _ := p.store.Latest()
		return latest
	}

	annotated, alerts := p.detector.Check(snap)
	p.store.Merge(annotated)

	now := p.now()
	current := p.store.Current(now)

	start := time.Now()
	summaries := scoring.Summarize(current, p.store.Histories(), p.scoring, now)
	elapsed := time.Since(start)
	p.store.AddSummaries(summaries)

	if len(summaries.Defaulted) > 0 {
		p.log.Debug("sensors defaulted", zap.Strings("sensors", summaries.Defaulted))
	}

	p.alerter.ProcessAlerts(alerts)
	if p.hub != nil {
		p.hub.Broadcast("sensors", current)
		p.hub.Broadcast("summaries", summaries)
	}
	for _, w := range p.sinks {
		if w.offer(summaries) {
			p.metrics.PublishDropped(w.sink.Name())
		}
	}

	p.metrics.SnapshotProcessed(snap.Source, elapsed)
	return summaries
}

// sinkWorker feeds one sink from a bounded buffer.
type sinkWorker struct {
	sink    Publisher
	pending chan scoring.BlockSummaries
}

// offer queues b, evicting the oldest pending summary when the buffer is full. It reports
// whether anything was evicted.
func (w *sinkWorker) offer(b scoring.BlockSummaries) (dropped bool) {
	for {
		select {
		case w.pending <- b:
			return dropped
		default:
		}
		select {
		case <-w.pending:
			dropped = true
		default:
		}
	}
}

func (p *Processor) drain(ctx context.Context, w *sinkWorker) {
	name := w.sink.Name()
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-w.pending:
			pctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
			err := w.sink.Publish(pctx, b)
			cancel()
			if err != nil && ctx.Err() == nil {
				p.metrics.PublishFailed(name)
				p.log.Warn("publish failed", zap.String("sink", name), zap.Error(err))
			}
		}
	}
}
