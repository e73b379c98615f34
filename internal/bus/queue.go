// Package bus decouples update receivers from the pipeline with a bounded
// in-memory queue drained by a fixed worker pool.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mediarelay/internal/domain"
	"mediarelay/internal/metrics"
)

const (
	DefaultWorkers        = 4
	DefaultQueueSize      = 100
	DefaultPublishTimeout = 10 * time.Second
)

// QueueConfig configures a Queue.
type QueueConfig struct {
	Handler        domain.UpdateHandler
	Workers        int
	Size           int
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

// Queue buffers inbound updates and hands them to Handler from Workers
// goroutines. It implements domain.UpdateHandler so receivers can publish
// into it directly.
type Queue struct {
	updates        chan domain.InboundUpdate
	handler        domain.UpdateHandler
	workers        int
	publishTimeout time.Duration
	logger         *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewQueue creates a Queue. Call Start before publishing.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultQueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Queue{
		updates:        make(chan domain.InboundUpdate, cfg.Size),
		handler:        cfg.Handler,
		workers:        cfg.Workers,
		publishTimeout: cfg.PublishTimeout,
		logger:         cfg.Logger,
	}
}

// Start launches the workers. Updates already accepted are still processed
// after ctx is cancelled; Close and Wait drain them.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	work := context.WithoutCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for u := range q.updates {
				metrics.QueueDepth.Dec()
				q.handler.HandleUpdate(work, u)
			}
		}()
	}
}

// HandleUpdate publishes u. The caller's context only bounds the wait for
// queue space.
func (q *Queue) HandleUpdate(ctx context.Context, u domain.InboundUpdate) {
	q.Publish(ctx, u)
}

// Publish enqueues u and reports whether it was accepted. When the queue is
// full it waits up to the publish timeout, then drops the update.
func (q *Queue) Publish(ctx context.Context, u domain.InboundUpdate) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("update published to closed queue", "update_id", u.ID, "chat_id", u.ChatID)
		metrics.QueueDropped.Inc()
		return false
	}

	// Counted before the send so a worker's Dec never runs first.
	metrics.QueueDepth.Inc()
	select {
	case q.updates <- u:
		return true
	default:
	}

	q.logger.Warn("update queue full, waiting", "update_id", u.ID, "chat_id", u.ChatID)
	timer := time.NewTimer(q.publishTimeout)
	defer timer.Stop()
	select {
	case q.updates <- u:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	metrics.QueueDepth.Dec()
	q.logger.Error("update dropped", "update_id", u.ID, "chat_id", u.ChatID, "queue_size", cap(q.updates))
	metrics.QueueDropped.Inc()
	return false
}

// Close stops accepting updates. Workers finish what is queued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.updates)
	}
}

// Wait blocks until every worker has returned. Call Close first.
func (q *Queue) Wait() { q.wg.Wait() }

// Len returns the number of queued updates.
func (q *Queue) Len() int { return len(q.updates) }
