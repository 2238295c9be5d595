package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/RBarbieri13/decant/internal/common"
)

// redactedMessage replaces non-operational error detail in production.
const redactedMessage = "An internal error occurred"

// RequireMethod validates the HTTP method, writing 405 on mismatch.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the wire shape of every error reply.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// WriteError maps a coded error to its HTTP status and serializes it. In
// production, 5xx messages are redacted; the code survives.
func WriteError(w http.ResponseWriter, err error, production bool) error {
	code := common.CodeOf(err)
	status := common.HTTPStatus(code)

	message := err.Error()
	var appErr *common.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if production && status >= http.StatusInternalServerError {
		message = redactedMessage
	}

	response := &ErrorResponse{
		Error:     message,
		Code:      string(code),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if appErr != nil && appErr.RetryAfter > 0 {
		response.RetryAfter = appErr.RetryAfter
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}

	return WriteJSON(w, status, response)
}

// QueryInt reads an integer query parameter with a default.
func QueryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// DecodeBody decodes a JSON request body into dst, rejecting unknown noise
// with a VALIDATION_FAILED error.
func DecodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return common.NewError(common.ErrValidationFailed, "request body is required")
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return common.NewError(common.ErrValidationFailed, "invalid JSON body").WithCause(err)
	}
	return nil
}
