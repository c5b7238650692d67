package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation and input error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidArgument = "ERR_INVALID_ARGUMENT"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Business rule error codes
const (
	ErrCodeInvalidState   = "ERR_INVALID_STATE"
	ErrCodeChainIntegrity = "ERR_CHAIN_INTEGRITY"
)

// Pipeline error codes
const (
	// ErrCodeLockTimeout is returned when the tenant ledger lock wait expires
	ErrCodeLockTimeout = "ERR_LOCK_TIMEOUT"
	// ErrCodeAeatCommunication covers transport failures and SOAP faults
	ErrCodeAeatCommunication = "ERR_AEAT_COMMUNICATION"
	// ErrCodeCircuitBreakerOpen is returned while the pipeline is paused
	ErrCodeCircuitBreakerOpen = "ERR_CIRCUIT_BREAKER_OPEN"
	// ErrCodeFlowControl is returned when the minimum submission interval
	// has not elapsed
	ErrCodeFlowControl = "ERR_FLOW_CONTROL"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidArgument: http.StatusBadRequest,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeInvalidState:   http.StatusUnprocessableEntity,
	ErrCodeChainIntegrity: http.StatusConflict,

	ErrCodeLockTimeout:        http.StatusLocked,
	ErrCodeAeatCommunication:  http.StatusBadGateway,
	ErrCodeCircuitBreakerOpen: http.StatusServiceUnavailable,
	ErrCodeFlowControl:        http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not found.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"INVALID_ARGUMENT":     ErrCodeInvalidArgument,
	"LOCK_TIMEOUT":         ErrCodeLockTimeout,
	"AEAT_COMMUNICATION":   ErrCodeAeatCommunication,
	"CHAIN_INTEGRITY":      ErrCodeChainIntegrity,
	"CIRCUIT_BREAKER_OPEN": ErrCodeCircuitBreakerOpen,
	"FLOW_CONTROL":         ErrCodeFlowControl,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes pass through unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
