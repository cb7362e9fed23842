// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// path identifiers, query filters, pagination and JSON bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

// Pagination defaults for list endpoints.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

const maxJSONBody = 1 << 20

// TransactionRequest is the body of POST /api/transactions.
type TransactionRequest struct {
	Type        string     `json:"type"`
	Value       core.Money `json:"value"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Date        string     `json:"date"`
	ExpenseType string     `json:"expenseType"`
}

// UpdateTransactionRequest is the body of PUT /api/transactions/{id}.
type UpdateTransactionRequest struct {
	Value       core.Money `json:"value"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Date        string     `json:"date"`
}

// PromoteRequest is the body of POST /api/receipts/{id}/transaction.
type PromoteRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	ExpenseType string `json:"expenseType"`
}

// GoalRequest is the body of POST /api/goals.
type GoalRequest struct {
	Description   string      `json:"description"`
	TargetAmount  core.Money  `json:"targetAmount"`
	TargetDate    string      `json:"targetDate"`
	MonthlyTarget *core.Money `json:"customMonthlyTarget"`
}

// DepositRequest is the body of POST /api/goals/{id}/deposits. An empty date
// means today.
type DepositRequest struct {
	Amount core.Money `json:"amount"`
	Date   string     `json:"date"`
	Source string     `json:"source"`
}

// MemberRequest is the body of POST /api/goals/{id}/members.
type MemberRequest struct {
	UserID        string      `json:"userId"`
	MonthlyTarget *core.Money `json:"customMonthlyTarget"`
}

// MonthlyTargetRequest is the body of PUT /api/goals/{id}/members/{userId}.
// A null target clears the pledge.
type MonthlyTargetRequest struct {
	MonthlyTarget *core.Money `json:"customMonthlyTarget"`
}

// PathUUID reads the named path value as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, core.Validation(name, "must be a valid UUID")
	}
	return id, nil
}

// ParseTimeParam reads an optional timestamp. Absent values return nil.
func ParseTimeParam(query url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := core.ParseTime(raw)
	if err != nil {
		return nil, core.Validation(name, "must be an ISO-8601 date or timestamp")
	}
	return &t, nil
}

// ParseIntParam reads an optional integer, returning def when absent.
func ParseIntParam(query url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.Validation(name, "must be an integer")
	}
	return n, nil
}

// ParsePagination reads page and limit. An explicit limit of zero is passed
// through so the query layer rejects it.
func ParsePagination(query url.Values) (page, limit int, err error) {
	if page, err = ParseIntParam(query, "page", DefaultPage); err != nil {
		return 0, 0, err
	}
	if limit, err = ParseIntParam(query, "limit", DefaultLimit); err != nil {
		return 0, 0, err
	}
	if limit > MaxLimit {
		return 0, 0, core.Validation("limit", fmt.Sprintf("must not exceed %d", MaxLimit))
	}
	return page, limit, nil
}

// ParseTransactionFilter reads the list filters from the query string.
func ParseTransactionFilter(query url.Values) (core.TransactionFilter, error) {
	var (
		f   core.TransactionFilter
		err error
	)
	if v := strings.TrimSpace(query.Get("type")); v != "" {
		if f.Type, err = core.ParseTransactionType(v); err != nil {
			return f, err
		}
	}
	if v := strings.TrimSpace(query.Get("expenseType")); v != "" {
		if f.ExpenseType, err = core.ParseExpenseType(v); err != nil {
			return f, err
		}
	}
	if f.Start, err = ParseTimeParam(query, "startDate"); err != nil {
		return f, err
	}
	if f.End, err = ParseTimeParam(query, "endDate"); err != nil {
		return f, err
	}
	f.Category = sanitizeInput(query.Get("category"))
	return f, nil
}

// ParseDateField reads a required body date. Empty values yield the zero time
// and are rejected by domain validation.
func ParseDateField(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := core.ParseTime(raw)
	if err != nil {
		return time.Time{}, core.Validation("date", "must be an ISO-8601 date or timestamp")
	}
	return t, nil
}

// ParseOptionalDate reads an optional body date under the given field name.
func ParseOptionalDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := core.ParseTime(raw)
	if err != nil {
		return nil, core.Validation(field, "must be an ISO-8601 date or timestamp")
	}
	return &t, nil
}

// ParseUUIDField reads a required body identifier.
func ParseUUIDField(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, core.Validation(field, "must be a valid UUID")
	}
	return id, nil
}

// requestError marks a body that could not be decoded at all.
type requestError struct {
	field string
	msg   string
}

func (e *requestError) Error() string { return e.msg }

// DecodeJSON reads one JSON object from r into dst, rejecting unknown fields
// and trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
			maxErr    *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			return &requestError{msg: "request body is empty"}
		case errors.As(err, &syntaxErr):
			return &requestError{msg: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)}
		case errors.As(err, &typeErr):
			return &requestError{field: typeErr.Field, msg: "has the wrong type"}
		case errors.As(err, &maxErr):
			return &requestError{msg: "request body is too large"}
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return &requestError{field: field, msg: "is not a known field"}
		default:
			return &requestError{msg: "malformed request body: " + err.Error()}
		}
	}
	if dec.More() {
		return &requestError{msg: "request body must contain a single JSON object"}
	}
	return nil
}
