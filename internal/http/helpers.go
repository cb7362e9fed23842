package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"zetafin/internal/core"
	"zetafin/internal/log"
	"zetafin/internal/middleware/auth"
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// callerID returns the authenticated user. Routes under /api/ always run
// behind the auth middleware, so a missing id is a wiring bug.
func callerID(r *http.Request) (uuid.UUID, bool) {
	return auth.UserIDFrom(r.Context())
}

// writeError answers with the JSON error body for err. Server-side failures
// are logged with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		BadRequestError(reqErr.field, reqErr.msg).Write(w)
		return
	}

	resp := DomainError(err)
	if resp.statusCode >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(),
			"Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()))
	} else if errors.Is(err, core.ErrAuthorization) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Access to another user's resource denied",
			log.FieldPath, r.URL.Path,
			log.FieldOperation, op)
	}
	resp.Write(w)
}
