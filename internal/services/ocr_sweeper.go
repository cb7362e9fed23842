package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zetafin/internal/core"
	"zetafin/internal/log"
)

// SweeperConfig holds configuration for the pending-OCR sweeper
type SweeperConfig struct {
	// PollInterval is how often to look for stuck receipts (default: 1m)
	PollInterval time.Duration

	// Age is how long a receipt may stay unprocessed since its last attempt
	// before it is dispatched again (default: 5m)
	Age time.Duration

	// BatchSize is the max number of receipts re-dispatched per cycle (default: 20)
	BatchSize int

	// MaxAttempts stops re-dispatching a receipt once reached (default: 5)
	MaxAttempts int
}

// DefaultSweeperConfig returns sensible defaults
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		PollInterval: 1 * time.Minute,
		Age:          5 * time.Minute,
		BatchSize:    20,
		MaxAttempts:  5,
	}
}

// OCRSweeper re-dispatches receipts whose background OCR never completed,
// recovering jobs lost by a crashed worker or a dropped message.
type OCRSweeper struct {
	receipts   ReceiptStore
	dispatcher OCRDispatcher
	clock      core.Clock
	config     SweeperConfig
	logger     *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	// stopping is set once stopCh has been closed for the current run.
	stopping bool
}

func NewOCRSweeper(receipts ReceiptStore, dispatcher OCRDispatcher, clock core.Clock, config SweeperConfig) *OCRSweeper {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &OCRSweeper{
		receipts:   receipts,
		dispatcher: dispatcher,
		clock:      clock,
		config:     config,
		logger:     log.Default(log.ComponentSweeper),
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *OCRSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("ocr sweeper is already running")
	}
	s.running = true
	s.stopping = false
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx, s.stopCh, s.doneCh)

	s.logger.InfoContext(ctx, "OCR sweeper started",
		"poll_interval", s.config.PollInterval,
		"age", s.config.Age,
		"batch_size", s.config.BatchSize)

	return nil
}

// Stop gracefully stops the sweeper and waits for the current cycle. After a
// timeout the sweeper still counts as running and Stop may be called again.
func (s *OCRSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.stopping {
		s.stopping = true
		close(s.stopCh)
	}
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "OCR sweeper stopped gracefully")
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "OCR sweeper stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the sweeper is currently running
func (s *OCRSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *OCRSweeper) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "OCR sweep failed", log.FieldError, err)
			}
		}
	}
}

// Sweep runs one cycle and returns how many receipts were re-dispatched.
func (s *OCRSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.config.Age)
	pending, err := s.receipts.ListPendingOCR(ctx, cutoff, s.config.MaxAttempts, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending ocr: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	dispatched := 0
	for _, r := range pending {
		select {
		case <-s.stopCh:
			return dispatched, nil
		case <-ctx.Done():
			return dispatched, ctx.Err()
		default:
		}

		job := NewOCRJob(r, s.clock.Now())
		if err := s.dispatcher.DispatchOCR(ctx, job); err != nil {
			s.logger.WarnContext(ctx, "Failed to re-dispatch OCR job",
				log.FieldReceiptID, r.ID,
				log.FieldAttempt, r.OcrAttempts,
				log.FieldError, err)
			continue
		}
		dispatched++
	}

	s.logger.InfoContext(ctx, "Re-dispatched pending OCR jobs",
		log.FieldOperation, log.OpSweep,
		"count", dispatched)
	return dispatched, nil
}
