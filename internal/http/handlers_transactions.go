package http

import (
	"net/http"

	"zetafin/internal/core"
	"zetafin/internal/log"
	"zetafin/internal/services"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}

	var req TransactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	var expenseType core.ExpenseType
	if req.ExpenseType != "" {
		if expenseType, err = core.ParseExpenseType(req.ExpenseType); err != nil {
			writeError(w, r, log.OpCreate, err)
			return
		}
	}
	date, err := ParseDateField(req.Date)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	tx, err := s.svc.Ledger.Create(r.Context(), services.CreateTransactionInput{
		UserID:      userID,
		Type:        typ,
		Value:       req.Value,
		Description: sanitizeInput(req.Description),
		Category:    sanitizeInput(req.Category),
		Date:        date,
		ExpenseType: expenseType,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+tx.ID.String()).
		Data(tx).
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}

	query := r.URL.Query()
	filter, err := ParseTransactionFilter(query)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	page, limit, err := ParsePagination(query)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	result, err := s.svc.Queries.List(r.Context(), services.ListQuery{
		UserID: userID,
		Filter: filter,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(result).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
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

	tx, err := s.svc.Ledger.Get(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	var req UpdateTransactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	date, err := ParseDateField(req.Date)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	tx, err := s.svc.Ledger.Update(r.Context(), services.UpdateTransactionInput{
		ID:          id,
		UserID:      userID,
		Value:       req.Value,
		Description: sanitizeInput(req.Description),
		Category:    sanitizeInput(req.Category),
		Date:        date,
	})
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(tx).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
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

	deleted, err := s.svc.Ledger.Delete(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	if !deleted {
		writeError(w, r, log.OpDelete, core.NotFound("transaction", id))
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		UnauthorizedError("missing caller").Write(w)
		return
	}

	query := r.URL.Query()
	start, err := ParseTimeParam(query, "startDate")
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}
	end, err := ParseTimeParam(query, "endDate")
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}

	summary, err := s.svc.Queries.Summary(r.Context(), userID, start, end)
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}
	NewJSONResponse().Data(summary).Write(w)
}
