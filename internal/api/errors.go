package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/portfolio-tracker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body, rejecting unknown fields.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Error codes surfaced by the HTTP layer itself
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondServiceError maps a service error onto an HTTP response.
// Internal details are logged, never echoed.
func respondServiceError(w http.ResponseWriter, err error) {
	status, code, message := mapServiceError(err)
	respondError(w, status, code, message, nil)
}

// mapServiceError maps service errors to HTTP status codes.
func mapServiceError(err error) (int, string, string) {
	var serviceErr *types.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Code {
		case types.ErrInvalidInput, types.ErrInvalidCurrency, types.ErrNoPortfolio:
			return http.StatusBadRequest, serviceErr.Code, serviceErr.Message
		case types.ErrInsufficientFunds:
			return http.StatusBadRequest, serviceErr.Code, serviceErr.Message
		case types.ErrHoldingNotFound, types.ErrPortfolioNotFound, types.ErrUserNotFound:
			return http.StatusNotFound, serviceErr.Code, serviceErr.Message
		case types.ErrUsernameTaken, types.ErrAmbiguousPortfolio, types.ErrMarketClosed, types.ErrPortfolioNotEmpty:
			return http.StatusConflict, serviceErr.Code, serviceErr.Message
		case types.ErrUnauthorized:
			return http.StatusUnauthorized, serviceErr.Code, serviceErr.Message
		case types.ErrQuoteUnavailable, types.ErrConversionFailed:
			return http.StatusBadGateway, serviceErr.Code, serviceErr.Message
		default:
			return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
		}
	}

	// Default to internal server error
	return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred"
}
