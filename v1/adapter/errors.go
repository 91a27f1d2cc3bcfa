package adapter

import (
	"errors"
	"fmt"
)

// ErrorKind is the coarse error category, derived from the numeric code.
type ErrorKind string

const (
	KindConnection  ErrorKind = "connection"
	KindQuery       ErrorKind = "query"
	KindExecute     ErrorKind = "execute"
	KindTransaction ErrorKind = "transaction"
	KindConfig      ErrorKind = "config"
	KindUnknown     ErrorKind = "unknown"
)

// Error codes surfaced to callers, grouped by first digit.
const (
	// 1xxx connection
	CodeConnectionFailed    = 1000
	CodeNotConnected        = 1001
	CodeConnectionTimeout   = 1002
	CodeAlreadyDisconnected = 1003

	// 2xxx query
	CodeQueryFailed = 2000

	// 3xxx execute
	CodeExecuteFailed = 3000

	// 4xxx transaction
	CodeTransactionFailed        = 4000
	CodeSavepointsNotSupported   = 4001
	CodeSavepointNotFound        = 4002
	CodeTransactionsNotSupported = 4003
	CodeNotInTransaction         = 4004
	CodeTransactionOwnsLifecycle = 4005

	// 5xxx configuration
	CodeInvalidConfig = 5000
)

// Error is the error type returned by every adapter operation. It tags the
// failure with a numeric code, keeps the offending target and parameters for
// diagnostics and always wraps the underlying cause.
type Error struct {
	Code   int
	Op     string
	Target string
	Params []any
	Err    error
}

// Kind derives the coarse category from the numeric code.
func (e *Error) Kind() ErrorKind {
	switch e.Code / 1000 {
	case 1:
		return KindConnection
	case 2:
		return KindQuery
	case 3:
		return KindExecute
	case 4:
		return KindTransaction
	case 5:
		return KindConfig
	default:
		return KindUnknown
	}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("adapter: %s failed (code %d)", e.Op, e.Code)
	if e.Target != "" {
		msg += " on " + e.Target
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error. cause may be nil for failures that originate in
// the adapter itself (for example a savepoint-not-found resolution miss).
func NewError(code int, op, target string, cause error) *Error {
	return &Error{Code: code, Op: op, Target: target, Err: cause}
}

// WithParams attaches statement parameters for diagnostics and returns the
// error for chaining.
func (e *Error) WithParams(params ...any) *Error {
	e.Params = params
	return e
}

// CodeOf extracts the adapter error code from err, or 0 when err is not an
// adapter error.
func CodeOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return 0
}

// KindOf extracts the coarse category from err, defaulting to KindUnknown.
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind()
	}
	return KindUnknown
}

// IsNotConnected reports whether err means the adapter had no usable
// connection and no prior config to reconnect from.
func IsNotConnected(err error) bool {
	return CodeOf(err) == CodeNotConnected
}

// IsSavepointNotFound reports whether err is a savepoint resolution miss.
func IsSavepointNotFound(err error) bool {
	return CodeOf(err) == CodeSavepointNotFound
}
