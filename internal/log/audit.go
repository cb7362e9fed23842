package log

import (
	"context"
	"log/slog"
	"net/http"
)

type ContextKey string

// LoggerContextKey holds the request-scoped *Logger.
const LoggerContextKey ContextKey = "logger"

// FromContext returns the request logger, or a default logger tagged
// "unknown" outside a request.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// StructuredLogger writes the audit records the ledger, the receipt pipeline
// and the HTTP shell share, so each event always carries the same fields.
// Every record is tagged with the component of the event, once.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)
	sl.logger.WithComponent(ComponentHTTP).InfoContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs at Warn for 4xx and Error for 5xx.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)
	sl.logger.WithComponent(ComponentHTTP).LogContext(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogTransactionCreated(ctx context.Context, id, userID, txType string, valueCents int64, category string) {
	fields := NewFields().
		WithTransaction(id, userID, txType, valueCents, category).
		WithOperation(OpCreate)
	sl.logger.WithComponent(ComponentLedger).InfoContext(ctx, "Transaction created", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogReceiptUploaded(ctx context.Context, id, userID string, size int64, mimeType string) {
	fields := NewFields().
		WithReceipt(id, userID, size, mimeType).
		WithOperation(OpUpload)
	sl.logger.WithComponent(ComponentReceipt).InfoContext(ctx, "Receipt uploaded", fields.ToSlice()...)
}

// LogOCRCompleted records a saved extraction. valueCents and confidence are
// nil when the provider could not read them.
func (sl *StructuredLogger) LogOCRCompleted(ctx context.Context, receiptID, userID, merchant string, lineItems int, valueCents *int64, confidence *float64) {
	fields := NewFields().
		WithExtraction(merchant, lineItems, valueCents, confidence).
		WithOperation(OpOCR)
	fields[FieldReceiptID] = receiptID
	fields[FieldUserID] = userID
	sl.logger.WithComponent(ComponentOCR).InfoContext(ctx, "OCR extraction saved", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	fields = fields.
		WithError(err).
		WithOperation(operation)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, fields.ToSlice()...)
}
