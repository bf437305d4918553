package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fzdarsky/realmgate/internal/logging"
)

// Error codes returned in ErrorResponse.Error.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeSystemError  = "system_error"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorHandler turns a handler panic into a 500 response. http.ErrAbortHandler
// is passed through so the server aborts the response as usual.
func ErrorHandler(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger.Error("panic recovered", map[string]any{
					"error": fmt.Sprint(rec),
					"path":  r.URL.Path,
					"stack": string(debug.Stack()),
				})
				WriteJSONError(w, http.StatusInternalServerError, ErrCodeSystemError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WriteJSON writes data as a JSON response. Operations data describes live
// state, so responses are marked uncacheable.
func WriteJSON(w http.ResponseWriter, data any, statusCode int) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteJSONError writes an ErrorResponse.
func WriteJSONError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, ErrorResponse{Error: code, Message: message}, statusCode)
}
