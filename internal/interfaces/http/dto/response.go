package dto

import "net/http"

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// Error codes surfaced by the API. Domain error codes pass through
// unchanged; these cover the HTTP-layer ones.
const (
	ErrCodeInternal     = "INTERNAL"
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

// errorCodeHTTPStatus maps error codes to HTTP status codes
var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeRateLimited:  http.StatusTooManyRequests,

	"NOT_FOUND":      http.StatusNotFound,
	"ALREADY_EXISTS": http.StatusConflict,
	"INVALID_INPUT":  http.StatusBadRequest,
	"INVALID_NAME":   http.StatusBadRequest,
	"INVALID_EMAIL":  http.StatusBadRequest,
	"INVALID_TIER":   http.StatusBadRequest,
	"INVALID_STATE":  http.StatusUnprocessableEntity,

	// Rejected webhook deliveries: the sender is known but the payload
	// cannot be trusted.
	"INVALID_SIGNATURE": http.StatusForbidden,

	// Quota rejections are authorization failures, not client mistakes.
	"LIMIT_REACHED":        http.StatusForbidden,
	"SUBSCRIPTION_EXPIRED": http.StatusForbidden,
}

// GetHTTPStatus returns the HTTP status for an error code, defaulting to
// 500 for unknown codes
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
