package engine

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by a Repository when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrorClass is the coarse category of an EngineError. The CLI maps it to an
// exit code.
type ErrorClass string

const (
	// ErrorClassPersistence is a failed repository read or write. Writes
	// already made by the run stay; the remedy is a rerun.
	ErrorClassPersistence ErrorClass = "persistence"

	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassConflict is contention with another run over a batch.
	ErrorClassConflict ErrorClass = "conflict"

	ErrorClassNotFound ErrorClass = "not_found"
)

// Error codes carried in EngineError.Code.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeBatchLocked    = "BATCH_LOCKED"
	ErrCodePolicyRejected = "POLICY_REJECTED"
	ErrCodeDuplicateCrew  = "DUPLICATE_CREW"
)

// EngineError is the error type returned by Engine operations.
// nolint:revive // stutters with the package name, kept for grep-ability
type EngineError struct {
	Class     ErrorClass             `json:"class"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	BatchID   string                 `json:"batch_id,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Err       error                  `json:"-"`
}

func newEngineError(class ErrorClass, code, message string, err error) *EngineError {
	return &EngineError{Class: class, Code: code, Message: message, Err: err}
}

// NewPersistenceError wraps a repository failure.
func NewPersistenceError(message string, err error) *EngineError {
	return newEngineError(ErrorClassPersistence, ErrCodeStorage, message, err)
}

func NewValidationError(message string, err error) *EngineError {
	return newEngineError(ErrorClassValidation, ErrCodeValidation, message, err)
}

// NewConflictError reports a batch held by another run.
func NewConflictError(message string, err error) *EngineError {
	return newEngineError(ErrorClassConflict, ErrCodeBatchLocked, message, err)
}

func NewNotFoundError(message string, err error) *EngineError {
	return newEngineError(ErrorClassNotFound, ErrCodeNotFound, message, err)
}

// Error renders "[class] message (batch=b, operation=op): cause", omitting
// the parts that are unset.
func (e *EngineError) Error() string {
	var b strings.Builder
	b.WriteString("[" + string(e.Class) + "] " + e.Message)

	var where []string
	if e.BatchID != "" {
		where = append(where, "batch="+e.BatchID)
	}
	if e.Operation != "" {
		where = append(where, "operation="+e.Operation)
	}
	if len(where) > 0 {
		b.WriteString(" (" + strings.Join(where, ", ") + ")")
	}

	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches another *EngineError with the same class and code, so callers
// can test errors.Is(err, &EngineError{Class: ErrorClassConflict, Code: ErrCodeBatchLocked}).
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && e.Class == t.Class && e.Code == t.Code
}

func (e *EngineError) WithBatch(batchID string) *EngineError {
	e.BatchID = batchID
	return e
}

func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail attaches a structured detail such as the failing event id or
// the list of policy violations.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

func classOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

func IsPersistence(err error) bool { return classOf(err) == ErrorClassPersistence }

func IsValidation(err error) bool { return classOf(err) == ErrorClassValidation }

func IsConflict(err error) bool { return classOf(err) == ErrorClassConflict }

// IsNotFound also matches a bare ErrNotFound from a Repository.
func IsNotFound(err error) bool {
	return classOf(err) == ErrorClassNotFound || errors.Is(err, ErrNotFound)
}
