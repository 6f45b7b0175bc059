package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goodtune/accesstime/internal/service"
	"github.com/goodtune/accesstime/internal/token"
)

// ErrorResponse represents an API error response. Code is the domain error
// code, or zero for errors outside the domain.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

var statusByCode = map[int]int{
	service.ErrAlreadyInitialized.Code:  http.StatusConflict,
	service.ErrNotInitialized.Code:      http.StatusPreconditionFailed,
	service.ErrUnauthorized.Code:        http.StatusForbidden,
	service.ErrPackageNotFound.Code:     http.StatusNotFound,
	service.ErrInsufficientBalance.Code: http.StatusPaymentRequired,
	service.ErrOrderNotFound.Code:       http.StatusNotFound,
	service.ErrAlreadyGranted.Code:      http.StatusConflict,
}

// writeServiceError maps a service error onto a response. It reports
// whether the error was an internal failure.
func writeServiceError(w http.ResponseWriter, err error) bool {
	if domainErr, ok := service.AsError(err); ok {
		WriteJSON(w, statusByCode[domainErr.Code], ErrorResponse{
			Error:   domainErr.Name,
			Message: err.Error(),
			Code:    domainErr.Code,
		})
		return false
	}

	switch {
	case errors.Is(err, token.ErrInsufficientFunds):
		WriteJSON(w, http.StatusPaymentRequired, ErrorResponse{Error: "InsufficientFunds", Message: err.Error()})
	case errors.Is(err, token.ErrUnauthorized):
		WriteJSON(w, http.StatusForbidden, ErrorResponse{Error: "TransferUnauthorized", Message: err.Error()})
	default:
		WriteError(w, http.StatusInternalServerError, "Internal error")
		return true
	}
	return false
}
