// Package errors provides categorized error types for the reconciliation
// service. Errors carry a category, a machine-readable code, an optional
// suggestion for the operator, and structured context, on top of stack
// traces from github.com/pkg/errors.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not_found"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryLedger        ErrorCategory = "ledger"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories.
type ErrorCode string

const (
	// Validation errors
	CodeMissingField  ErrorCode = "missing_field"
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Not-found errors
	CodeTransactionNotFound ErrorCode = "transaction_not_found"
	CodeAccountNotFound     ErrorCode = "account_not_found"
	CodeVoucherNotFound     ErrorCode = "voucher_not_found"

	// Conflict errors
	CodeOverAllocated    ErrorCode = "over_allocated"
	CodeAlreadyConsumed  ErrorCode = "already_consumed"
	CodeNotSubmitted     ErrorCode = "not_submitted"

	// Ledger errors
	CodeQueryFailed ErrorCode = "query_failed"
	CodeWriteFailed ErrorCode = "write_failed"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors.
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error.
type Context map[string]interface{}

// Error implements the error interface.
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error.
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryConflict:
		return 5
	case CategoryLedger, CategoryInternal:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error.
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error.
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError.
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context.
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// ValidationError creates a validation error for a missing or invalid field.
// Validation failures abort the single operation; they are never retried.
func ValidationError(code ErrorCode, field string, value interface{}) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are positive decimal numbers"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return New(CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// NotFoundError creates an error for a missing transaction, account or voucher.
func NotFoundError(code ErrorCode, kind string, name string) *ReconcilerError {
	message := fmt.Sprintf("%s not found: %s", kind, name)

	return New(CategoryNotFound, code, message).
		WithSuggestion("check the identifier and that the document exists in the ledger").
		WithContext("kind", kind).
		WithContext("name", name)
}

// ConflictError creates an error for a concurrent-allocation race detected
// by the ledger at write time. The core does not retry; the caller decides.
func ConflictError(code ErrorCode, transactionID string, err error) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeOverAllocated:
		message = fmt.Sprintf("allocation exceeds remaining unallocated amount on transaction %s", transactionID)
		suggestion = "refetch candidates; another reconciliation may have consumed the voucher"
	case CodeAlreadyConsumed:
		message = fmt.Sprintf("voucher already fully allocated for transaction %s", transactionID)
		suggestion = "refetch candidates and retry with the remaining amount"
	case CodeNotSubmitted:
		message = fmt.Sprintf("transaction %s is not in a submitted state", transactionID)
		suggestion = "only submitted transactions can be reconciled"
	default:
		message = fmt.Sprintf("conflict reconciling transaction %s", transactionID)
		suggestion = "refetch the transaction state and retry"
	}

	result := New(CategoryConflict, code, message)
	if err != nil {
		result = Wrap(err, CategoryConflict, code, message)
	}
	return result.
		WithSuggestion(suggestion).
		WithContext("transaction", transactionID)
}

// LedgerError creates an error for a failed ledger store operation.
func LedgerError(code ErrorCode, operation string, err error) *ReconcilerError {
	message := fmt.Sprintf("ledger operation failed: %s", operation)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryLedger, code, message)
	} else {
		result = New(CategoryLedger, code, message)
	}
	return result.
		WithSuggestion("check the ledger store connection and schema").
		WithContext("operation", operation)
}

// ConfigurationError creates a configuration-related error.
func ConfigurationError(code ErrorCode, setting string, value interface{}) *ReconcilerError {
	var message, suggestion string

	switch code {
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting via flag, env or config file"
	default:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	}

	return New(CategoryConfiguration, code, message).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error.
func InternalError(operation string, err error) *ReconcilerError {
	message := fmt.Sprintf("unexpected error during %s", operation)

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, message)
	} else {
		result = New(CategoryInternal, CodeUnexpectedError, message)
	}
	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// IsReconcilerError checks if an error is a ReconcilerError.
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain.
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, category ErrorCategory) bool {
	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr.Category == category
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// IsConflict reports whether err is a concurrency-conflict error.
func IsConflict(err error) bool {
	return IsCategory(err, CategoryConflict)
}
