package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DomainErrorType represents the category of domain error
type DomainErrorType string

const (
	// DomainValidationError indicates input validation failure
	DomainValidationError DomainErrorType = "VALIDATION_ERROR"

	// DomainBusinessRuleError indicates a business rule violation
	DomainBusinessRuleError DomainErrorType = "BUSINESS_RULE_ERROR"

	// DomainNotFoundError indicates a resource was not found
	DomainNotFoundError DomainErrorType = "NOT_FOUND"

	// DomainConflictError indicates a conflict with existing state
	DomainConflictError DomainErrorType = "CONFLICT"

	// DomainAdvisory marks a non-fatal report that never blocks the caller
	DomainAdvisory DomainErrorType = "ADVISORY"

	// DomainInfrastructureError indicates an infrastructure-level failure
	DomainInfrastructureError DomainErrorType = "INFRASTRUCTURE_ERROR"

	// DomainRateLimitError indicates rate limit exceeded
	DomainRateLimitError DomainErrorType = "RATE_LIMIT_ERROR"
)

// DomainError represents a domain-specific error with rich context
type DomainError struct {
	Type       DomainErrorType        `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

// NewDomainError creates a new domain error
func NewDomainError(errorType DomainErrorType, code string, message string) *DomainError {
	return &DomainError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Details:    make(map[string]interface{}),
		StatusCode: domainErrorTypeToStatusCode(errorType),
	}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// WithCause adds a cause to the error
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	e.Details[key] = value
	return e
}

// WithRetryable sets whether the error is retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// WithStatusCode sets a custom HTTP status code
func (e *DomainError) WithStatusCode(code int) *DomainError {
	e.StatusCode = code
	return e
}

// Is reports whether target is a DomainError with the same type and code,
// so errors.Is(err, ErrStaleProposal) matches any stale proposal instance
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// Unwrap returns the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// GetDomainError extracts a DomainError from an error chain
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// domainErrorTypeToStatusCode maps error types to HTTP status codes
func domainErrorTypeToStatusCode(errorType DomainErrorType) int {
	switch errorType {
	case DomainValidationError:
		return 400
	case DomainBusinessRuleError:
		return 422
	case DomainNotFoundError:
		return 404
	case DomainConflictError:
		return 409
	case DomainAdvisory:
		return 200
	case DomainRateLimitError:
		return 429
	default:
		return 500
	}
}

// Error codes of the draft reconciliation taxonomy
const (
	CodeStaleProposal       = "STALE_PROPOSAL"
	CodeUnresolvedConflicts = "UNRESOLVED_CONFLICTS"
	CodeInvalidPatchPath    = "INVALID_PATCH_PATH"
	CodeSandboxAdvisory     = "SANDBOX_ADVISORY"
	CodeInvalidDraftState   = "INVALID_DRAFT_STATE"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeConflictNotFound    = "CONFLICT_NOT_FOUND"
	CodeVersionExists       = "VERSION_EXISTS"
	CodeRateLimited         = "RATE_LIMITED"
)

// Sentinels for errors.Is matching. Never mutate these; use the constructors
// below to obtain an instance carrying details.
var (
	ErrStaleProposal = NewDomainError(DomainConflictError, CodeStaleProposal,
		"proposal targets a stale base version")

	ErrUnresolvedConflicts = NewDomainError(DomainConflictError, CodeUnresolvedConflicts,
		"conflicts must be resolved before commit")

	ErrInvalidPatchPath = NewDomainError(DomainBusinessRuleError, CodeInvalidPatchPath,
		"patch references a path that does not exist")

	ErrSandboxAdvisory = NewDomainError(DomainAdvisory, CodeSandboxAdvisory,
		"preview reported errors")

	ErrInvalidDraftState = NewDomainError(DomainConflictError, CodeInvalidDraftState,
		"operation is not valid in the current draft state")

	ErrSessionNotFound = NewDomainError(DomainNotFoundError, CodeSessionNotFound,
		"editing session does not exist")

	ErrConflictNotFound = NewDomainError(DomainNotFoundError, CodeConflictNotFound,
		"no conflict record for path")

	ErrVersionExists = NewDomainError(DomainConflictError, CodeVersionExists,
		"blueprint version already committed")

	ErrRateLimited = NewDomainError(DomainRateLimitError, CodeRateLimited,
		"too many proposals, try again later")
)

// StaleProposal reports a proposal computed against a base other than the current one
func StaleProposal(current, proposed int) *DomainError {
	return NewDomainError(DomainConflictError, CodeStaleProposal,
		fmt.Sprintf("proposal targets base version %d, current base is %d", proposed, current)).
		WithDetail("current_version", current).
		WithDetail("proposal_version", proposed)
}

// UnresolvedConflicts reports the paths still awaiting a resolution
func UnresolvedConflicts(paths []string) *DomainError {
	return NewDomainError(DomainConflictError, CodeUnresolvedConflicts,
		fmt.Sprintf("%d conflict(s) unresolved", len(paths))).
		WithDetail("paths", paths)
}

// InvalidPatchPath reports an op that cannot be applied at path
func InvalidPatchPath(path, reason string) *DomainError {
	return NewDomainError(DomainBusinessRuleError, CodeInvalidPatchPath,
		fmt.Sprintf("invalid patch path %q: %s", path, reason)).
		WithDetail("path", path)
}

// SandboxAdvisory wraps preview errors as a non-fatal advisory
func SandboxAdvisory(messages []string) *DomainError {
	return NewDomainError(DomainAdvisory, CodeSandboxAdvisory,
		fmt.Sprintf("preview reported %d error(s): %s", len(messages), strings.Join(messages, "; "))).
		WithDetail("errors", messages)
}

// InvalidDraftState reports an operation attempted in the wrong state
func InvalidDraftState(operation, state string) *DomainError {
	return NewDomainError(DomainConflictError, CodeInvalidDraftState,
		fmt.Sprintf("%s is not valid while draft is %s", operation, state)).
		WithDetail("operation", operation).
		WithDetail("state", state)
}

// SessionNotFound reports an unknown session id
func SessionNotFound(sessionID string) *DomainError {
	return NewDomainError(DomainNotFoundError, CodeSessionNotFound,
		fmt.Sprintf("session %s not found", sessionID)).
		WithDetail("session_id", sessionID)
}

// ConflictNotFound reports a resolution for a path without a conflict record
func ConflictNotFound(path string) *DomainError {
	return NewDomainError(DomainNotFoundError, CodeConflictNotFound,
		fmt.Sprintf("no conflict recorded for %s", path)).
		WithDetail("path", path)
}

// VersionExists reports a commit racing another writer for the same version
func VersionExists(blueprintID string, version int) *DomainError {
	return NewDomainError(DomainConflictError, CodeVersionExists,
		fmt.Sprintf("version %d of blueprint %s already exists", version, blueprintID)).
		WithDetail("blueprint_id", blueprintID).
		WithDetail("version", version).
		WithRetryable(true)
}

// RateLimited reports a proposal source exceeding its budget
func RateLimited(source string) *DomainError {
	return NewDomainError(DomainRateLimitError, CodeRateLimited,
		fmt.Sprintf("proposal source %s is rate limited", source)).
		WithDetail("source", source).
		WithRetryable(true)
}

// ValidationErrors aggregates multiple validation errors
type ValidationErrors struct {
	Errors []*DomainError `json:"errors"`
}

// NewValidationErrors creates a new validation errors collection
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]*DomainError, 0),
	}
}

// Add adds a validation error
func (v *ValidationErrors) Add(field string, message string) {
	err := NewDomainError(DomainValidationError, "FIELD_VALIDATION_ERROR", message).
		WithDetail("field", field)
	v.Errors = append(v.Errors, err)
}

// AddError adds a pre-existing domain error
func (v *ValidationErrors) AddError(err *DomainError) {
	v.Errors = append(v.Errors, err)
}

// HasErrors returns true if there are validation errors
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}

	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Message
	}
	return fmt.Sprintf("Validation failed: %s", strings.Join(messages, "; "))
}

// ToMap converts validation errors to a map for JSON serialization
func (v *ValidationErrors) ToMap() map[string][]string {
	result := make(map[string][]string)

	for _, err := range v.Errors {
		field, ok := err.Details["field"].(string)
		if !ok {
			field = "general"
		}
		result[field] = append(result[field], err.Message)
	}

	return result
}

// DomainErrorResponse represents the API error response format for domain errors
type DomainErrorResponse struct {
	Error     bool                   `json:"error"`
	Type      DomainErrorType        `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// NewDomainErrorResponse creates an error response from a domain error
func NewDomainErrorResponse(err *DomainError, requestID string) *DomainErrorResponse {
	return &DomainErrorResponse{
		Error:     true,
		Type:      err.Type,
		Code:      err.Code,
		Message:   err.Message,
		Details:   err.Details,
		Retryable: err.Retryable,
		RequestID: requestID,
		Timestamp: fmt.Sprintf("%d", timeNow().Unix()),
	}
}

// Helper function for testing (can be mocked)
var timeNow = func() time.Time {
	return time.Now()
}
