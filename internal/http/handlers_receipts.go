package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/log"
	"zetafin/internal/services"
)

// multipart overhead allowed on top of the receipt size limit
const uploadSlack = 1 << 20

func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, core.MaxReceiptSize+uploadSlack)
	if err := r.ParseMultipartForm(core.MaxReceiptSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, log.OpUpload, core.Validation("file", "exceeds the 10MB limit"))
			return
		}
		writeError(w, r, log.OpUpload, &requestError{msg: "expected a multipart/form-data body"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, log.OpUpload, &requestError{field: "file", msg: "is required"})
		return
	}
	defer file.Close()

	// one byte past the limit is enough for validation to reject it
	data, err := io.ReadAll(io.LimitReader(file, core.MaxReceiptSize+1))
	if err != nil {
		writeError(w, r, log.OpUpload, &requestError{field: "file", msg: "could not be read"})
		return
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	var txID *uuid.UUID
	if raw := strings.TrimSpace(r.FormValue("transactionId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, log.OpUpload, core.Validation("transactionId", "must be a valid UUID"))
			return
		}
		txID = &id
	}

	receipt, err := s.svc.Receipts.Upload(r.Context(), services.UploadInput{
		UserID:        userID,
		FileName:      sanitizeInput(header.Filename),
		MimeType:      mimeType,
		Data:          data,
		TransactionID: txID,
	})
	if err != nil {
		writeError(w, r, log.OpUpload, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/receipts/"+receipt.ID.String()).
		Data(receipt).
		Write(w)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}

	receipts, err := s.svc.Receipts.ListReceipts(r.Context(), userID)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if receipts == nil {
		receipts = []core.Receipt{}
	}
	NewJSONResponse().Data(map[string]any{"receipts": receipts}).Write(w)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}

	receipt, err := s.svc.Receipts.GetReceipt(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(receipt).Write(w)
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}

	deleted, err := s.svc.Receipts.DeleteReceipt(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	if !deleted {
		writeError(w, r, log.OpDelete, core.NotFound("receipt", id))
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleProcessOCR(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpOCR, err)
		return
	}

	receipt, err := s.svc.Receipts.ProcessOCR(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, log.OpOCR, err)
		return
	}
	NewJSONResponse().Data(receipt).Write(w)
}

func (s *Server) handlePromoteReceipt(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpPromote, err)
		return
	}

	var req PromoteRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			writeError(w, r, log.OpPromote, err)
			return
		}
	}
	var expenseType core.ExpenseType
	if req.ExpenseType != "" {
		if expenseType, err = core.ParseExpenseType(req.ExpenseType); err != nil {
			writeError(w, r, log.OpPromote, err)
			return
		}
	}

	result, err := s.svc.Promoter.Promote(r.Context(), services.PromoteInput{
		ReceiptID:   id,
		UserID:      userID,
		Description: sanitizeInput(req.Description),
		Category:    sanitizeInput(req.Category),
		ExpenseType: expenseType,
	})
	if err != nil {
		writeError(w, r, log.OpPromote, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(result).Write(w)
}
