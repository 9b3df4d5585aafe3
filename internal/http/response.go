package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"faturas/internal/core"
	applog "faturas/internal/log"
	"faturas/internal/middleware/trace"
)

// errBadRequest marks malformed requests: unreadable bodies and query values
// that do not parse.
var errBadRequest = errors.New("bad request")

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorBody{Error: message, RequestID: trace.GetRequestID(r.Context())})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, applog.ErrorTypeValidation
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation
	case errors.Is(err, core.ErrMalformedLoan):
		return http.StatusConflict, applog.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrInstallmentNotFound):
		return http.StatusNotFound, applog.ErrorTypeNotFound
	case errors.Is(err, core.ErrProRequired):
		return http.StatusForbidden, applog.ErrorTypeForbidden
	default:
		return http.StatusInternalServerError, applog.ErrorTypeInternal
	}
}

// writeErr logs err and answers with its status. Internal details never
// reach the client.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := statusFor(err)
	ctx := r.Context()
	fields := applog.NewFields().WithError(err, errType).ToSlice()

	message := err.Error()
	if status >= http.StatusInternalServerError {
		applog.FromContext(ctx).ErrorContext(ctx, "Request failed", fields...)
		message = "internal error, try again"
	} else {
		applog.FromContext(ctx).DebugContext(ctx, "Request rejected", fields...)
	}
	writeError(w, r, status, message)
}
