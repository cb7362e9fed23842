// Package queue runs OCR jobs in-process on a pool of worker goroutines.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/log"
)

var (
	ErrClosed    = errors.New("queue is closed")
	ErrQueueFull = errors.New("queue is full")
)

// Handler processes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, job core.OCRJob) error

type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is multiplied by the attempt number before each retry.
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:    2,
		BufferSize: 100,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

type envelope struct {
	job     core.OCRJob
	attempt int
}

// Queue is a buffered channel drained by Config.Workers goroutines.
type Queue struct {
	cfg     Config
	jobs    chan envelope
	closeCh chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
	logger  *log.Logger
}

func New(cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Queue{
		cfg:     cfg,
		jobs:    make(chan envelope, cfg.BufferSize),
		closeCh: make(chan struct{}),
		logger:  log.Default(log.ComponentQueue),
	}
}

// DispatchOCR enqueues job without waiting for a worker. The caller's ctx
// only bounds the enqueue; jobs run under the context given to Start.
func (q *Queue) DispatchOCR(ctx context.Context, job core.OCRJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.enqueue(envelope{job: job, attempt: 1})
}

func (q *Queue) enqueue(e envelope) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.jobs <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. Jobs stop being picked up when ctx is done or
// Stop is called.
func (q *Queue) Start(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.started {
		return errors.New("queue already started")
	}
	q.started = true

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	q.logger.Info("OCR queue started", "workers", q.cfg.Workers, "buffer", q.cfg.BufferSize)
	return nil
}

func (q *Queue) worker(ctx context.Context, handler Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeCh:
			return
		case e := <-q.jobs:
			q.process(ctx, e, handler)
		}
	}
}

func (q *Queue) process(ctx context.Context, e envelope, handler Handler) {
	err := handler(ctx, e.job)
	if err == nil {
		q.logger.DebugContext(ctx, "OCR job completed",
			log.FieldJobID, e.job.JobID,
			log.FieldReceiptID, e.job.ReceiptID.String(),
			log.FieldAttempt, e.attempt)
		return
	}

	if e.attempt > q.cfg.MaxRetries {
		q.logger.ErrorContext(ctx, "OCR job failed, giving up",
			log.FieldJobID, e.job.JobID,
			log.FieldReceiptID, e.job.ReceiptID.String(),
			log.FieldAttempt, e.attempt,
			"error", err)
		return
	}

	delay := q.cfg.RetryDelay * time.Duration(e.attempt)
	q.logger.WarnContext(ctx, "OCR job failed, retrying",
		log.FieldJobID, e.job.JobID,
		log.FieldReceiptID, e.job.ReceiptID.String(),
		log.FieldAttempt, e.attempt,
		"retry_in", delay,
		"error", err)

	next := envelope{job: e.job, attempt: e.attempt + 1}
	time.AfterFunc(delay, func() {
		if err := q.enqueue(next); err != nil && !errors.Is(err, ErrClosed) {
			q.logger.Warn("Dropping OCR retry", log.FieldJobID, next.job.JobID, "error", err)
		}
	})
}

// Stop closes the queue and waits for in-flight jobs.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("OCR queue stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many jobs are waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}
