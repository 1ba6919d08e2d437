package elastic

import (
	"errors"
	"fmt"
)

// Error codes for index operations. Unavailable is the only retryable
// class; callers translate the rest into degraded outcomes or failures.
const (
	CodeValidationFailed = "validation_failed"
	CodeEncodeFailed     = "encode_failed"
	CodeDecodeFailed     = "decode_failed"
	CodeTransportFailed  = "transport_failed"
	CodeTimeout          = "timeout"
	CodeUnavailable      = "index_unavailable"
	CodeConflict         = "index_conflict"
	CodeMalformed        = "index_malformed"
	CodePartialFailure   = "index_partial"
)

// OperationError carries the operation name, a stable code and the HTTP
// status (when the backend answered at all).
type OperationError struct {
	Code       string
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("elastic %s: %s (status=%d): %s", e.Operation, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("elastic %s: %s: %s", e.Operation, e.Code, e.Message)
}

func (e *OperationError) Unwrap() error { return e.Cause }

func opErr(op, code, msg string, status int, cause error) *OperationError {
	return &OperationError{
		Code:       code,
		Operation:  op,
		StatusCode: status,
		Message:    msg,
		Cause:      cause,
	}
}

// IsUnavailable reports whether the error is retryable: the backend timed
// out, rate limited, or answered 5xx.
func IsUnavailable(err error) bool {
	var oe *OperationError
	if !errors.As(err, &oe) {
		return false
	}
	return oe.Code == CodeUnavailable || oe.Code == CodeTimeout || oe.Code == CodeTransportFailed
}

func IsConflict(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == CodeConflict
}

func IsMalformed(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == CodeMalformed
}

func IsPartial(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == CodePartialFailure
}
