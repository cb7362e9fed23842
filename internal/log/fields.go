package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorKind     = "error_kind"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldTransactionID = "transaction_id"
	FieldReceiptID     = "receipt_id"
	FieldGoalID        = "goal_id"
	FieldMemberID      = "member_id"
	FieldJobID         = "job_id"
	FieldAttempt       = "attempt"
	FieldTxType        = "type"
	FieldCategory      = "category"
	FieldExpenseType   = "expense_type"
	FieldValueCents    = "value_cents"
	FieldFileURL       = "file_url"
	FieldFileSize      = "file_size"
	FieldMimeType      = "mime_type"
	FieldMerchant      = "merchant"
	FieldLineItems     = "line_items"
	FieldConfidence    = "confidence"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentQuery     = "query"
	ComponentReceipt   = "receipt"
	ComponentOCR       = "ocr"
	ComponentGoal      = "goal"
	ComponentQueue     = "queue"
	ComponentStorage   = "storage"
	ComponentBlob      = "blob"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSweeper   = "sweeper"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentAuth      = "auth"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpSummary  = "summary"
	OpUpload   = "upload"
	OpOCR      = "ocr"
	OpPromote  = "promote"
	OpDeposit  = "deposit"
	OpShare    = "share"
	OpDispatch = "dispatch"
	OpSweep    = "sweep"
	OpValidate = "validate"
	OpParse    = "parse"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds ledger entry fields
func (f LogFields) WithTransaction(id, userID, txType string, valueCents int64, category string) LogFields {
	f[FieldTransactionID] = id
	f[FieldUserID] = userID
	f[FieldTxType] = txType
	f[FieldValueCents] = valueCents
	f[FieldCategory] = category
	return f
}

// WithReceipt adds receipt fields
func (f LogFields) WithReceipt(id, userID string, size int64, mimeType string) LogFields {
	f[FieldReceiptID] = id
	f[FieldUserID] = userID
	f[FieldFileSize] = size
	f[FieldMimeType] = mimeType
	return f
}

// WithExtraction adds the summary of an OCR result. Absent values are omitted.
func (f LogFields) WithExtraction(merchant string, lineItems int, valueCents *int64, confidence *float64) LogFields {
	if merchant != "" {
		f[FieldMerchant] = merchant
	}
	f[FieldLineItems] = lineItems
	if valueCents != nil {
		f[FieldValueCents] = *valueCents
	}
	if confidence != nil {
		f[FieldConfidence] = *confidence
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
