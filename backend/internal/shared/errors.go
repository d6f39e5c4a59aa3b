package shared

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Every error type below carries a gRPC status code so that callers on either
// transport (HTTP gateway, gRPC) translate it the same way.

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or out-of-range input. Never retried.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func NewValidationError(msg string, fields ...FieldError) error {
	return &ValidationError{Message: msg, Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// ConsistencyError reports a cross-entity mismatch inside one computation,
// e.g. a fee payment whose school differs from the student's.
type ConsistencyError struct {
	Entity   string
	EntityID string
	Field    string
	Expected string
	Actual   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s %s: %s mismatch (expected %q, got %q)", e.Entity, e.EntityID, e.Field, e.Expected, e.Actual)
}

func (e *ConsistencyError) GRPCStatus() *status.Status {
	return status.New(codes.FailedPrecondition, e.Error())
}

// SignatureMismatchError means the payment gateway did not authorize the claimed payment.
type SignatureMismatchError struct {
	OrderID   string
	PaymentID string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("payment signature mismatch for order %s / payment %s", e.OrderID, e.PaymentID)
}

func (e *SignatureMismatchError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// StateError reports an invalid state transition. The record is left untouched.
type StateError struct {
	Entity string
	From   string
	To     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *StateError) GRPCStatus() *status.Status {
	return status.New(codes.Aborted, e.Error())
}

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration %s is required", e.Key)
	}
	return fmt.Sprintf("configuration %s %s", e.Key, e.Reason)
}

func (e *ConfigurationError) GRPCStatus() *status.Status {
	return status.New(codes.Internal, e.Error())
}

// NotFoundError reports a missing document.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, e.Error())
}

// ErrDuplicate is returned by stores when a unique index rejects a write.
var ErrDuplicate = errors.New("duplicate key")

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrorCode returns the gRPC code attached to err, or codes.Unknown.
func ErrorCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
