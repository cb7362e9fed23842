// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps domain error kinds onto status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"zetafin/internal/core"
)

// Error kinds reported in the response body beyond the domain kinds.
const (
	KindUnauthenticated = "unauthenticated"
	KindRateLimited     = "rate_limited"
	KindInternal        = "internal"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter. A nil payload
// writes no body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"kind":"internal","message":"failed to encode response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// ErrorResponse creates an error response with the given status and body.
func ErrorResponse(statusCode int, kind, field, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(errorEnvelope{Error: ErrorBody{Kind: kind, Field: field, Message: message}})
}

// BadRequestError creates a 400 response for requests that could not be read.
func BadRequestError(field, message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, kindName(core.ErrValidation), field, message)
}

// UnauthorizedError creates a 401 response.
func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, KindUnauthenticated, "", message).
		Header("WWW-Authenticate", `Bearer realm="zetafin"`)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, KindRateLimited, "", "rate limit exceeded, please try again later")
}

// NotFoundError creates a 404 response for unknown routes.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, kindName(core.ErrNotFound), "", message)
}

// DomainError translates err into a response. Query, upstream and unclassified
// failures hide their cause from the client.
func DomainError(err error) *JSONResponseBuilder {
	kind := core.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	var e *core.Error
	if errors.As(err, &e) && e.Message != "" {
		message = e.Message
	}
	switch {
	case kind == nil:
		message = "internal server error"
	case errors.Is(kind, core.ErrQuery):
		message = "query failed"
	case errors.Is(kind, core.ErrUpstream):
		message = "upstream service failed"
	}
	return ErrorResponse(status, kindName(kind), core.FieldOf(err), message)
}

func statusFor(kind error) int {
	switch kind {
	case core.ErrValidation:
		return http.StatusUnprocessableEntity
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrAuthorization:
		return http.StatusForbidden
	case core.ErrConflict, core.ErrInvalidState:
		return http.StatusConflict
	case core.ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindName(kind error) string {
	switch kind {
	case core.ErrValidation:
		return "validation"
	case core.ErrNotFound:
		return "not_found"
	case core.ErrAuthorization:
		return "authorization"
	case core.ErrConflict:
		return "conflict"
	case core.ErrInvalidState:
		return "invalid_state"
	case core.ErrQuery:
		return "query"
	case core.ErrUpstream:
		return "upstream"
	default:
		return KindInternal
	}
}
