package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// Error codes for the ledger and submission pipeline. Every failure path in
// the core maps to one of these so callers can branch without string matching.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeLockTimeout        = "LOCK_TIMEOUT"
	CodeAeatCommunication  = "AEAT_COMMUNICATION"
	CodeChainIntegrity     = "CHAIN_INTEGRITY"
	CodeCircuitBreakerOpen = "CIRCUIT_BREAKER_OPEN"
	CodeFlowControl        = "FLOW_CONTROL"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
)

var (
	// ErrLockTimeout is returned when the per-tenant ledger lock cannot be
	// acquired within the bounded wait. Never retried internally.
	ErrLockTimeout = NewDomainError(CodeLockTimeout, "Could not acquire tenant ledger lock within timeout")

	// ErrCircuitBreakerOpen is returned when the submission pipeline is paused
	// after repeated consecutive failures. No network attempt is made.
	ErrCircuitBreakerOpen = NewDomainError(CodeCircuitBreakerOpen, "Circuit breaker is open, too many consecutive failures")
)

// NewValidationError creates a VALIDATION_ERROR domain error
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewCommunicationError creates an AEAT_COMMUNICATION domain error
func NewCommunicationError(message string) *DomainError {
	return NewDomainError(CodeAeatCommunication, message)
}

// NewFlowControlError creates a FLOW_CONTROL domain error
func NewFlowControlError(message string) *DomainError {
	return NewDomainError(CodeFlowControl, message)
}
