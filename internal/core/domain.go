package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// Expense buckets, in canonical order.
const (
	Fixas          ExpenseType = "fixas"
	Variaveis      ExpenseType = "variaveis"
	Desnecessarios ExpenseType = "desnecessarios"
)

const (
	MaxDescriptionLength = 500
	MaxCategoryLength    = 100

	// MaxReceiptSize is the upload limit for receipt files (10MB).
	MaxReceiptSize int64 = 10 * 1024 * 1024

	// ReceiptFolder is the storage folder receipts are uploaded into.
	ReceiptFolder = "receipts"
)

type (
	TransactionType string

	// ExpenseType is the fixed/variable/unnecessary bucket of an expense.
	// The zero value means "no expense type" and is only valid on income.
	ExpenseType string

	Transaction struct {
		ID          uuid.UUID       `json:"id"`
		UserID      uuid.UUID       `json:"userId"`
		Type        TransactionType `json:"type"`
		Value       Money           `json:"value"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		ExpenseType ExpenseType     `json:"expenseType,omitempty"`
		Date        time.Time       `json:"date"`
		HasReceipt  bool            `json:"hasReceipt"`
		ReceiptID   *uuid.UUID      `json:"receiptId,omitempty"`
		ReceiptURL  string          `json:"receiptUrl,omitempty"`
		ReceiptOCR  *OcrExtraction  `json:"receiptOcrData,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`

		// Seq is the store-assigned creation sequence used to order entries
		// that share the same date.
		Seq int64 `json:"-"`
	}

	Receipt struct {
		ID            uuid.UUID      `json:"id"`
		UserID        uuid.UUID      `json:"userId"`
		TransactionID *uuid.UUID     `json:"transactionId,omitempty"`
		FileName      string         `json:"fileName"`
		FileURL       string         `json:"fileUrl"`
		FileSize      int64          `json:"fileSize"`
		MimeType      string         `json:"mimeType"`
		OcrProcessed  bool           `json:"ocrProcessed"`
		OcrData       *OcrExtraction `json:"ocrData,omitempty"`
		OcrAttempts   int            `json:"-"`
		CreatedAt     time.Time      `json:"createdAt"`
		UpdatedAt     *time.Time     `json:"updatedAt,omitempty"`
	}

	// OcrExtraction holds the structured fields an OCR provider read off a receipt.
	OcrExtraction struct {
		MerchantName   string        `json:"merchantName,omitempty"`
		ExtractedDate  *time.Time    `json:"extractedDate,omitempty"`
		ExtractedValue *Money        `json:"extractedValue,omitempty"`
		Currency       string        `json:"currency,omitempty"`
		LineItems      []OcrLineItem `json:"items"`
		Confidence     *float64      `json:"confidence,omitempty"`
	}

	OcrLineItem struct {
		Name       string `json:"name"`
		Quantity   int    `json:"quantity"`
		UnitPrice  Money  `json:"unitPrice"`
		TotalPrice Money  `json:"totalPrice"`
	}

	// TransactionFilter narrows a listing. Zero-valued fields do not filter.
	// Start and End are inclusive.
	TransactionFilter struct {
		Type        TransactionType
		Start       *time.Time
		End         *time.Time
		Category    string
		ExpenseType ExpenseType
	}

	// OCRJob asks a worker to run OCR extraction for one receipt.
	OCRJob struct {
		JobID       string    `json:"jobId"`
		ReceiptID   uuid.UUID `json:"receiptId"`
		UserID      uuid.UUID `json:"userId"`
		FileURL     string    `json:"fileUrl"`
		RequestedAt time.Time `json:"requestedAt"`
	}
)

// ExpenseTypes returns the canonical expense buckets in order.
func ExpenseTypes() []ExpenseType {
	return []ExpenseType{Fixas, Variaveis, Desnecessarios}
}

// ParseTransactionType accepts "income"/"expense" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", Validation("type", "must be one of income, expense")
}

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

// ParseExpenseType accepts the canonical names in any case ("Fixas", "fixas").
func ParseExpenseType(s string) (ExpenseType, error) {
	et := ExpenseType(strings.ToLower(strings.TrimSpace(s)))
	if et.IsValid() {
		return et, nil
	}
	return "", Validation("expenseType", "must be one of Fixas, Variaveis, Desnecessarios")
}

func (e ExpenseType) IsValid() bool {
	switch e {
	case Fixas, Variaveis, Desnecessarios:
		return true
	}
	return false
}

// Key is the lower-case summary key of the bucket.
func (e ExpenseType) Key() string {
	return string(e)
}

// Linked reports whether the receipt already produced or belongs to a transaction.
func (r Receipt) Linked() bool {
	return r.TransactionID != nil
}

// OCRReady reports whether the receipt carries usable OCR output.
func (r Receipt) OCRReady() bool {
	return r.OcrProcessed && r.OcrData != nil
}

// AllowedReceiptMimeTypes lists the accepted upload content types.
func AllowedReceiptMimeTypes() []string {
	return []string{"image/jpeg", "image/png", "application/pdf"}
}

// IsAllowedReceiptMimeType matches case-insensitively and ignores parameters
// such as "; charset=".
func IsAllowedReceiptMimeType(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	for _, allowed := range AllowedReceiptMimeTypes() {
		if mt == allowed {
			return true
		}
	}
	return false
}
