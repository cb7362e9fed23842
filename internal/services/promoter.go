package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/log"
)

// PromoteInput names the receipt to turn into an expense. Empty overrides
// fall back to the OCR data or the defaults.
type PromoteInput struct {
	ReceiptID   uuid.UUID
	UserID      uuid.UUID
	Description string
	Category    string
	ExpenseType core.ExpenseType
}

type PromoteResult struct {
	Transaction core.Transaction `json:"transaction"`
	Receipt     core.Receipt     `json:"receipt"`
}

// Promoter materializes a processed receipt as a ledger expense and links
// the two permanently.
type Promoter struct {
	receipts ReceiptStore
	clock    core.Clock
	logger   *log.Logger
}

func NewPromoter(receipts ReceiptStore, clock core.Clock) *Promoter {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Promoter{
		receipts: receipts,
		clock:    clock,
		logger:   log.Default(log.ComponentReceipt),
	}
}

// Promote builds an expense from the receipt's OCR data and commits it
// together with the receipt link. The receipt must belong to the caller,
// be OCR-processed and not yet linked.
func (p *Promoter) Promote(ctx context.Context, in PromoteInput) (PromoteResult, error) {
	r, err := p.receipts.GetReceipt(ctx, in.ReceiptID)
	if err != nil {
		return PromoteResult{}, readError("get receipt", err)
	}
	if r.UserID != in.UserID {
		return PromoteResult{}, core.Unauthorized("receipt", in.ReceiptID)
	}
	if !r.OCRReady() {
		return PromoteResult{}, core.InvalidState("OCR not ready")
	}
	if r.Linked() {
		return PromoteResult{}, core.Conflict("receipt already linked to a transaction")
	}

	now := p.clock.Now()
	tx := expenseFromReceipt(r, in, now)
	if err := core.ValidateTransaction(tx, now); err != nil {
		return PromoteResult{}, err
	}

	if err := p.receipts.PromoteReceipt(ctx, r.ID, &tx); err != nil {
		return PromoteResult{}, storeError("promote receipt", err)
	}

	r.TransactionID = &tx.ID
	r.UpdatedAt = &now

	p.logger.InfoContext(ctx, "Receipt promoted to transaction",
		log.FieldReceiptID, r.ID,
		log.FieldTransactionID, tx.ID,
		log.FieldUserID, tx.UserID,
		log.FieldValueCents, tx.Value.Cents)
	return PromoteResult{Transaction: tx, Receipt: r}, nil
}

func expenseFromReceipt(r core.Receipt, in PromoteInput, now time.Time) core.Transaction {
	data := r.OcrData

	var value core.Money
	if data.ExtractedValue != nil {
		value = *data.ExtractedValue
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = strings.TrimSpace(data.MerchantName)
	}
	if description == "" {
		description = core.FallbackDescription
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = core.FallbackCategory
	}

	date := now
	if data.ExtractedDate != nil {
		date = core.Normalize(*data.ExtractedDate)
	}

	expenseType := in.ExpenseType
	if expenseType == "" {
		expenseType = core.Variaveis
	}

	receiptID := r.ID
	ocr := *data
	return core.Transaction{
		ID:          uuid.New(),
		UserID:      r.UserID,
		Type:        core.Expense,
		Value:       value,
		Description: description,
		Category:    category,
		ExpenseType: expenseType,
		Date:        date,
		HasReceipt:  true,
		ReceiptID:   &receiptID,
		ReceiptURL:  r.FileURL,
		ReceiptOCR:  &ocr,
		CreatedAt:   now,
	}
}
