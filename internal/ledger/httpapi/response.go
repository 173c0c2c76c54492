package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error envelope. Details carries the
// insufficient-balance figures when present.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: code, Message: message})
}

// respondErrorDetails sends an error response with a details payload
func respondErrorDetails(w http.ResponseWriter, statusCode int, code, message string, details interface{}) {
	respondJSON(w, statusCode, ErrorResponse{Error: code, Message: message, Details: details})
}
