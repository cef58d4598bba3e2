package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"ebank-ledger/pkg/ledger"
	"ebank-ledger/pkg/logging"
	"ebank-ledger/pkg/resilience"

	"go.uber.org/zap"
)

const (
	codeInvalidRequest = "invalid_request"
	codeUnavailable    = "unavailable"
	codeInternal       = "internal"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error from the ledger or its infrastructure to an HTTP
// status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrOwnerNotFound):
		return http.StatusNotFound, ledger.Classify(err)
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidExternalNumber),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, ledger.ErrInvalidUsername):
		return http.StatusBadRequest, ledger.Classify(err)
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrDuplicateExternalNumber),
		errors.Is(err, ledger.ErrUserExists):
		return http.StatusConflict, ledger.Classify(err)
	case resilience.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// fail writes the error response for err. Server errors are logged and
// their details withheld from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		msg = http.StatusText(status)
	}

	writeError(w, status, code, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
