// Package worker binds OCR requests consumed from the broker to the receipt
// service.
package worker

import (
	"context"
	"fmt"

	"zetafin/internal/amqp"
	"zetafin/internal/core"
	"zetafin/internal/log"
)

// JobHandler runs OCR for one job. ReceiptService implements it.
type JobHandler interface {
	HandleOCRJob(ctx context.Context, job core.OCRJob) error
}

// Sweeper re-dispatches receipts whose OCR never completed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// OCRWorker handles OCR request messages from AMQP.
type OCRWorker struct {
	jobs    JobHandler
	sweeper Sweeper
	logger  *log.Logger
}

func NewOCRWorker(jobs JobHandler, sweeper Sweeper) *OCRWorker {
	return &OCRWorker{
		jobs:    jobs,
		sweeper: sweeper,
		logger:  log.Default(log.ComponentWorker),
	}
}

// HandleOCRMessage processes a single OCR request message.
func (w *OCRWorker) HandleOCRMessage(ctx context.Context, msg *amqp.OCRRequestMessage) error {
	w.logger.InfoContext(ctx, "Processing OCR request",
		log.FieldJobID, msg.JobID,
		log.FieldReceiptID, msg.ReceiptID.String(),
		log.FieldUserID, msg.UserID.String())

	if err := w.jobs.HandleOCRJob(ctx, msg.Job()); err != nil {
		return fmt.Errorf("handle ocr job %s: %w", msg.JobID, err)
	}
	return nil
}

// StartupSweep recovers receipts left unprocessed while the worker was down.
func (w *OCRWorker) StartupSweep(ctx context.Context) error {
	if w.sweeper == nil {
		return nil
	}
	n, err := w.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	if n == 0 {
		w.logger.InfoContext(ctx, "No pending receipts found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Re-dispatched pending receipts on startup", "count", n)
	return nil
}
