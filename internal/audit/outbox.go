package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"assent/internal/audit/metrics"
)

// Sink delivers one audit entry to a remote compliance backend. Delivery is
// best-effort: a returned error means the entry is logged and dropped, never
// retried synchronously.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Outbox is a bounded in-memory queue between the emitter and the sink
// worker. On overflow the oldest entry is dropped so back-pressure can never
// reach the ledger's mutation path.
type Outbox struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	metrics *metrics.Metrics
}

// NewOutbox creates an outbox holding at most max entries.
func NewOutbox(max int, m *metrics.Metrics) *Outbox {
	if max <= 0 {
		max = 256
	}
	return &Outbox{max: max, metrics: m}
}

// Push enqueues an entry, evicting the oldest one when the queue is full.
func (o *Outbox) Push(entry Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.entries) >= o.max {
		o.entries = o.entries[1:]
		if o.metrics != nil {
			o.metrics.IncDropped("overflow")
		}
	}
	o.entries = append(o.entries, entry)
	if o.metrics != nil {
		o.metrics.SetQueueDepth(len(o.entries))
	}
}

// Drain removes and returns up to max entries in emission order.
func (o *Outbox) Drain(max int) []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.entries) == 0 {
		return nil
	}
	n := len(o.entries)
	if max > 0 && max < n {
		n = max
	}
	batch := make([]Entry, n)
	copy(batch, o.entries[:n])
	o.entries = o.entries[n:]
	if o.metrics != nil {
		o.metrics.SetQueueDepth(len(o.entries))
	}
	return batch
}

// Len returns the current queue depth.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Worker polls the outbox and forwards entries to the sink. Entries are
// published in emission order; out-of-order arrival at the remote side is
// acceptable, so no sequence numbers are attached.
type Worker struct {
	outbox       *Outbox
	sink         Sink
	batchSize    int
	pollInterval time.Duration
	sendTimeout  time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

// WithBatchSize sets the maximum number of entries to drain per poll.
func WithBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithPollInterval sets the interval between polls.
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithSendTimeout bounds each sink delivery.
func WithSendTimeout(timeout time.Duration) WorkerOption {
	return func(w *Worker) {
		if timeout > 0 {
			w.sendTimeout = timeout
		}
	}
}

// WithWorkerMetrics sets the metrics collector.
func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates an outbox worker. Call Start to begin polling and Close
// to drain on shutdown.
func NewWorker(outbox *Outbox, sink Sink, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		outbox:       outbox,
		sink:         sink,
		batchSize:    50,
		pollInterval: 250 * time.Millisecond,
		sendTimeout:  3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the polling loop in a background goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll drains and publishes one batch.
func (w *Worker) poll() {
	start := time.Now()

	batch := w.outbox.Drain(w.batchSize)
	if len(batch) == 0 {
		return
	}
	if w.metrics != nil {
		w.metrics.ObserveBatchSize(len(batch))
	}

	for _, entry := range batch {
		w.publish(entry)
	}

	if w.metrics != nil {
		w.metrics.ObservePollDuration(time.Since(start).Seconds())
	}
}

// publish delivers a single entry. Failures are logged and the entry is
// dropped; the ledger mutation that produced it has already committed.
func (w *Worker) publish(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.sendTimeout)
	defer cancel()

	if err := w.sink.Publish(ctx, entry); err != nil {
		if w.logger != nil {
			w.logger.Warn("audit sink delivery failed, entry dropped",
				"event_type", entry.EventType,
				"category", entry.Category,
				"error", err,
			)
		}
		if w.metrics != nil {
			w.metrics.IncPublishFailures()
			w.metrics.IncDropped("sink_failure")
		}
		return
	}
	if w.metrics != nil {
		w.metrics.IncPublished()
	}
}

// drain makes one final best-effort pass over the queue during shutdown.
func (w *Worker) drain() {
	for {
		batch := w.outbox.Drain(w.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, entry := range batch {
			w.publish(entry)
		}
	}
}

// Close stops the worker and drains remaining entries.
func (w *Worker) Close() {
	w.cancel()
	w.wg.Wait()
}
