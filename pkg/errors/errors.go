package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure independently of its message.
type ErrorCode string

const (
	ErrUnknown       ErrorCode = "UNKNOWN"
	ErrInternal      ErrorCode = "INTERNAL"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrPermission    ErrorCode = "PERMISSION"
	ErrUnsupported   ErrorCode = "UNSUPPORTED"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Transform programming errors. These indicate a caller bug.
	ErrDuplicateKey      ErrorCode = "DUPLICATE_KEY"
	ErrReusingTransform  ErrorCode = "REUSING_TRANSFORM"
	ErrMultipleRoots     ErrorCode = "MULTIPLE_ROOTS"
	ErrCantMoveRoot      ErrorCode = "CANT_MOVE_ROOT"
	ErrNoFinalPath       ErrorCode = "NO_FINAL_PATH"
	ErrNotEmptyTransform ErrorCode = "NOT_EMPTY_TRANSFORM"
	ErrStalePreview      ErrorCode = "STALE_PREVIEW"

	// Structural conflicts
	ErrMalformedTransform ErrorCode = "MALFORMED_TRANSFORM"

	// Environmental errors
	ErrExistingLimbo           ErrorCode = "EXISTING_LIMBO"
	ErrExistingPendingDeletion ErrorCode = "EXISTING_PENDING_DELETION"
	ErrImmortalLimbo           ErrorCode = "IMMORTAL_LIMBO"
	ErrImmortalPendingDeletion ErrorCode = "IMMORTAL_PENDING_DELETION"
	ErrRenameFailed            ErrorCode = "RENAME_FAILED"
	ErrFileExists              ErrorCode = "FILE_EXISTS"
	ErrLockContention          ErrorCode = "LOCK_CONTENTION"
	ErrNotLocked               ErrorCode = "NOT_LOCKED"
	ErrInventory               ErrorCode = "INVENTORY"
	ErrSerialize               ErrorCode = "SERIALIZE"
	ErrOrphaning               ErrorCode = "ORPHANING"

	// Filesystem
	ErrFileNotFound  ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess    ErrorCode = "FILE_ACCESS"
	ErrFileWrite     ErrorCode = "FILE_WRITE"
	ErrSymlinkCreate ErrorCode = "SYMLINK_CREATE"
	ErrDirCreate     ErrorCode = "DIR_CREATE"
)

// Category groups codes by how a caller is expected to react.
type Category int

const (
	// CategoryEnvironment covers disk, permission and lock failures.
	CategoryEnvironment Category = iota
	// CategoryProgramming marks misuse of the transform API. Not recoverable.
	CategoryProgramming
	// CategoryStructural is a conflict in the staged end state. Callers may
	// resolve it and try again.
	CategoryStructural
)

func (c Category) String() string {
	switch c {
	case CategoryProgramming:
		return "programming"
	case CategoryStructural:
		return "structural"
	}
	return "environment"
}

var categories = map[ErrorCode]Category{
	ErrDuplicateKey:       CategoryProgramming,
	ErrReusingTransform:   CategoryProgramming,
	ErrMultipleRoots:      CategoryProgramming,
	ErrCantMoveRoot:       CategoryProgramming,
	ErrNoFinalPath:        CategoryProgramming,
	ErrNotEmptyTransform:  CategoryProgramming,
	ErrStalePreview:       CategoryProgramming,
	ErrInvalidInput:       CategoryProgramming,
	ErrInternal:           CategoryProgramming,
	ErrMalformedTransform: CategoryStructural,
}

// CategoryOf returns the category of err's code. Errors that are not a
// *TxError count as environmental.
func CategoryOf(err error) Category {
	if c, ok := categories[GetErrorCode(err)]; ok {
		return c
	}
	return CategoryEnvironment
}

// TxError carries a code, a message, optional details and the cause.
type TxError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

func (e *TxError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TxError) Unwrap() error {
	return e.Wrapped
}

// Is matches any *TxError with the same code.
func (e *TxError) Is(target error) bool {
	var targetErr *TxError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

func New(code ErrorCode, message string) *TxError {
	return &TxError{Code: code, Message: message, Details: map[string]interface{}{}}
}

func Newf(code ErrorCode, format string, args ...interface{}) *TxError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns nil when err is nil, so it can wrap a call's result directly.
func Wrap(err error, code ErrorCode, message string) *TxError {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Wrapped = err
	return e
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *TxError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithDetail attaches a value for callers that need more than the code, such
// as the conflict list of a MALFORMED_TRANSFORM error.
func (e *TxError) WithDetail(key string, value interface{}) *TxError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode reports whether err, or an error it wraps, is a *TxError with
// the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Code == code
	}
	return false
}

// GetErrorCode returns ErrUnknown for errors that are not a *TxError.
func GetErrorCode(err error) ErrorCode {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Code
	}
	return ErrUnknown
}

func GetErrorDetails(err error) map[string]interface{} {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Details
	}
	return nil
}
