package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/log"
)

// DefaultOCRTimeout bounds one extraction call.
const DefaultOCRTimeout = 60 * time.Second

// UploadInput is one receipt file. TransactionID optionally links the receipt
// to an existing entry of the same user.
type UploadInput struct {
	UserID        uuid.UUID
	FileName      string
	MimeType      string
	Data          []byte
	TransactionID *uuid.UUID
}

// ReceiptService stores receipt files and runs OCR extraction for them.
type ReceiptService struct {
	receipts   ReceiptStore
	txs        TransactionStore
	files      FileStorage
	ocr        OCRProvider
	dispatcher OCRDispatcher
	clock      core.Clock
	ocrTimeout time.Duration
	logger     *log.Logger
}

type ReceiptServiceConfig struct {
	// OCRTimeout bounds each extraction (default: 60s)
	OCRTimeout time.Duration
}

func NewReceiptService(
	receipts ReceiptStore,
	txs TransactionStore,
	files FileStorage,
	ocr OCRProvider,
	dispatcher OCRDispatcher,
	clock core.Clock,
	cfg ReceiptServiceConfig,
) *ReceiptService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = DefaultOCRTimeout
	}
	return &ReceiptService{
		receipts:   receipts,
		txs:        txs,
		files:      files,
		ocr:        ocr,
		dispatcher: dispatcher,
		clock:      clock,
		ocrTimeout: cfg.OCRTimeout,
		logger:     log.Default(log.ComponentReceipt),
	}
}

// Upload validates and stores the file, persists the receipt with
// ocrProcessed=false and schedules extraction in the background. The
// returned receipt never reflects OCR progress.
func (s *ReceiptService) Upload(ctx context.Context, in UploadInput) (core.Receipt, error) {
	size := int64(len(in.Data))
	if err := core.ValidateUpload(size, in.MimeType); err != nil {
		return core.Receipt{}, err
	}

	if in.TransactionID != nil {
		tx, err := s.txs.GetTransaction(ctx, *in.TransactionID)
		if err != nil {
			return core.Receipt{}, readError("get transaction", err)
		}
		if tx.UserID != in.UserID {
			return core.Receipt{}, core.Unauthorized("transaction", tx.ID)
		}
		if tx.HasReceipt {
			return core.Receipt{}, core.Conflict("transaction already has a receipt")
		}
	}

	mimeType := normalizeMimeType(in.MimeType)
	name := cleanFileName(in.FileName)
	url, err := s.files.Upload(ctx, in.Data, name, mimeType, core.ReceiptFolder)
	if err != nil {
		return core.Receipt{}, core.UpstreamFailed("store receipt file", err)
	}

	r := core.Receipt{
		ID:        uuid.New(),
		UserID:    in.UserID,
		FileName:  name,
		FileURL:   url,
		FileSize:  size,
		MimeType:  mimeType,
		CreatedAt: s.clock.Now(),
	}
	if in.TransactionID != nil {
		id := *in.TransactionID
		r.TransactionID = &id
		err = s.receipts.AttachReceipt(ctx, &r, id)
	} else {
		err = s.receipts.CreateReceipt(ctx, &r)
	}
	if err != nil {
		s.discardFile(ctx, url)
		return core.Receipt{}, storeError("save receipt", err)
	}

	log.NewStructuredLogger(s.logger).LogReceiptUploaded(ctx,
		r.ID.String(), r.UserID.String(), r.FileSize, r.MimeType)

	s.scheduleOCR(ctx, r)
	return r, nil
}

func (s *ReceiptService) scheduleOCR(ctx context.Context, r core.Receipt) {
	if s.dispatcher == nil {
		s.logger.WarnContext(ctx, "No OCR dispatcher configured, receipt left for the sweeper",
			log.FieldReceiptID, r.ID)
		return
	}
	job := NewOCRJob(r, s.clock.Now())
	if err := s.dispatcher.DispatchOCR(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "Failed to dispatch OCR job",
			log.FieldReceiptID, r.ID,
			log.FieldJobID, job.JobID,
			log.FieldError, err)
	}
}

// NewOCRJob builds the background work item for r.
func NewOCRJob(r core.Receipt, now time.Time) core.OCRJob {
	return core.OCRJob{
		JobID:       uuid.NewString(),
		ReceiptID:   r.ID,
		UserID:      r.UserID,
		FileURL:     r.FileURL,
		RequestedAt: now,
	}
}

// HandleOCRJob is the background step. It records the attempt, runs the
// extraction and saves the result. Failures are logged and returned to the
// dispatcher for retry; they never reach the uploader. Receipts that are
// gone or already processed are skipped.
func (s *ReceiptService) HandleOCRJob(ctx context.Context, job core.OCRJob) error {
	r, err := s.receipts.GetReceipt(ctx, job.ReceiptID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.logger.WarnContext(ctx, "Receipt no longer exists, dropping OCR job",
				log.FieldReceiptID, job.ReceiptID,
				log.FieldJobID, job.JobID)
			return nil
		}
		return err
	}
	if r.OcrProcessed {
		return nil
	}

	now := s.clock.Now()
	if err := s.receipts.RecordOCRAttempt(ctx, r.ID, now); err != nil {
		s.logger.WarnContext(ctx, "Failed to record OCR attempt",
			log.FieldReceiptID, r.ID,
			log.FieldError, err)
	}

	if _, err := s.extract(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "Background OCR failed",
			log.FieldReceiptID, r.ID,
			log.FieldJobID, job.JobID,
			log.FieldAttempt, r.OcrAttempts+1,
			log.FieldError, err)
		return err
	}
	return nil
}

// ProcessOCR re-runs extraction synchronously for the owner and returns the
// updated receipt.
func (s *ReceiptService) ProcessOCR(ctx context.Context, receiptID, userID uuid.UUID) (core.Receipt, error) {
	r, err := s.GetReceipt(ctx, receiptID, userID)
	if err != nil {
		return core.Receipt{}, err
	}
	return s.extract(ctx, r)
}

func (s *ReceiptService) extract(ctx context.Context, r core.Receipt) (core.Receipt, error) {
	if s.ocr == nil {
		return core.Receipt{}, core.UpstreamFailed("ocr extraction", errors.New("no OCR provider configured"))
	}

	octx, cancel := context.WithTimeout(ctx, s.ocrTimeout)
	defer cancel()

	data, err := s.ocr.Extract(octx, r.FileURL)
	if err != nil {
		return core.Receipt{}, core.UpstreamFailed("ocr extraction", err)
	}
	if data.ExtractedDate != nil {
		d := core.Normalize(*data.ExtractedDate)
		data.ExtractedDate = &d
	}
	if data.LineItems == nil {
		data.LineItems = []core.OcrLineItem{}
	}

	now := s.clock.Now()
	if err := s.receipts.SaveOCRResult(ctx, r.ID, data, now); err != nil {
		return core.Receipt{}, storeError("save ocr result", err)
	}

	r.OcrProcessed = true
	r.OcrData = &data
	r.UpdatedAt = &now

	var cents *int64
	if data.ExtractedValue != nil {
		cents = &data.ExtractedValue.Cents
	}
	log.NewStructuredLogger(s.logger).LogOCRCompleted(ctx,
		r.ID.String(), r.UserID.String(), data.MerchantName, len(data.LineItems), cents, data.Confidence)
	return r, nil
}

// GetReceipt returns a receipt owned by userID.
func (s *ReceiptService) GetReceipt(ctx context.Context, receiptID, userID uuid.UUID) (core.Receipt, error) {
	r, err := s.receipts.GetReceipt(ctx, receiptID)
	if err != nil {
		return core.Receipt{}, readError("get receipt", err)
	}
	if r.UserID != userID {
		return core.Receipt{}, core.Unauthorized("receipt", receiptID)
	}
	return r, nil
}

// ListReceipts returns the user's receipts, newest first.
func (s *ReceiptService) ListReceipts(ctx context.Context, userID uuid.UUID) ([]core.Receipt, error) {
	rs, err := s.receipts.ListReceipts(ctx, userID)
	if err != nil {
		return nil, core.QueryFailed("list receipts", err)
	}
	if rs == nil {
		rs = []core.Receipt{}
	}
	return rs, nil
}

// DeleteReceipt removes an unlinked receipt and its file. A missing id
// reports false without error.
func (s *ReceiptService) DeleteReceipt(ctx context.Context, receiptID, userID uuid.UUID) (bool, error) {
	r, err := s.receipts.GetReceipt(ctx, receiptID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, readError("get receipt", err)
	}
	if r.UserID != userID {
		return false, core.Unauthorized("receipt", receiptID)
	}
	if r.Linked() {
		return false, core.Conflict("receipt is linked to a transaction")
	}

	deleted, err := s.receipts.DeleteReceipt(ctx, receiptID)
	if err != nil {
		return false, storeError("delete receipt", err)
	}
	if deleted {
		s.discardFile(ctx, r.FileURL)
	}
	return deleted, nil
}

func (s *ReceiptService) discardFile(ctx context.Context, url string) {
	if _, err := s.files.Delete(ctx, url); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete receipt file",
			log.FieldFileURL, url,
			log.FieldError, err)
	}
}

func normalizeMimeType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "receipt"
	}
	return name
}
