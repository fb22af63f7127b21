// Package processing runs short background jobs off the request path. The
// orchestrator uses it for the post-upload hand-off (cache, enqueue, mark
// EXTRACTING) so the HTTP response never waits on Redis.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Submit after Shutdown.
var ErrStopped = errors.New("processor stopped")

// ErrQueueFull is returned by Submit when the buffer is full.
var ErrQueueFull = errors.New("processing queue full")

// Job is one unit of background work. Key identifies it in logs.
type Job struct {
	Key string
	Run func(ctx context.Context) error
}

// Processor consumes Jobs on a fixed pool of goroutines.
type Processor struct {
	queue   chan Job
	workers int
	onDrop  func(Job)
	log     *slog.Logger

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a Processor with queue capacity tied to worker count. onDrop,
// if set, runs synchronously when a job is rejected because the buffer is
// full.
func New(workers int, onDrop func(Job), logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		queue:   make(chan Job, workers*4),
		workers: workers,
		onDrop:  onDrop,
		log:     logger,
		stop:    make(chan struct{}),
	}
}

// Start launches worker goroutines. They exit once the buffer is drained
// after Shutdown or after ctx is cancelled. Jobs drained after cancellation
// run with the cancelled ctx so they can record their own failure.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit queues a job without blocking.
func (p *Processor) Submit(job Job) error {
	select {
	case <-p.stop:
		return ErrStopped
	default:
	}
	select {
	case p.queue <- job:
		return nil
	default:
		p.log.Warn("processing.queue_full", "job", job.Key)
		if p.onDrop != nil {
			p.onDrop(job)
		}
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs, lets workers finish what is buffered and
// waits for them or for ctx.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown processor: %w", ctx.Err())
	}
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.drain(ctx)
			return
		case job := <-p.queue:
			p.process(ctx, job)
		case <-p.stop:
			p.drain(ctx)
			return
		}
	}
}

func (p *Processor) drain(ctx context.Context) {
	for {
		select {
		case job := <-p.queue:
			p.process(ctx, job)
		default:
			return
		}
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("processing.job_panic", "job", job.Key, "panic", r)
		}
	}()
	if err := job.Run(ctx); err != nil {
		p.log.Error("processing.job_failed", "job", job.Key, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	p.log.Debug("processing.job_done", "job", job.Key, "elapsed_ms", time.Since(start).Milliseconds())
}
