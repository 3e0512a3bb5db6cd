// Package kerr defines the relayer's typed error taxonomy and its mapping
// onto JSON-RPC error responses. Handlers bubble these up; the server layer
// is the only place that serializes them.
package kerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a relayer error.
type Kind int

const (
	AccountNotFound Kind = iota
	RpcError
	SigningError
	InvalidTransaction
	TransactionExecutionFailed
	FeeEstimationFailed
	UnsupportedFeeToken
	InsufficientFunds
	InternalServerError
	ValidationError
	SerializationError
	TokenOperationError
	InvalidRequest
	Unauthorized
	RateLimitExceeded
	UsageLimitExceeded
	ConfigError
)

var kindNames = map[Kind]string{
	AccountNotFound:            "account_not_found",
	RpcError:                   "rpc_error",
	SigningError:               "signing_error",
	InvalidTransaction:         "invalid_transaction",
	TransactionExecutionFailed: "transaction_execution_failed",
	FeeEstimationFailed:        "fee_estimation_failed",
	UnsupportedFeeToken:        "unsupported_fee_token",
	InsufficientFunds:          "insufficient_funds",
	InternalServerError:        "internal_server_error",
	ValidationError:            "validation_error",
	SerializationError:         "serialization_error",
	TokenOperationError:        "token_operation_error",
	InvalidRequest:             "invalid_request",
	Unauthorized:               "unauthorized",
	RateLimitExceeded:          "rate_limit_exceeded",
	UsageLimitExceeded:         "usage_limit_exceeded",
	ConfigError:                "config_error",
}

// String returns the stable snake_case name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a categorized relayer error. The wrapped cause (if any) is
// preserved for logging but only Msg crosses the wire.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap categorizes an underlying error without losing the cause chain.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Uncategorized errors are
// treated as internal.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return InternalServerError
}

// Is lets errors.Is match on kind: errors.Is(err, kerr.New(kerr.ValidationError, "")).
func (e *Error) Is(target error) bool {
	var ke *Error
	if errors.As(target, &ke) {
		return e.Kind == ke.Kind
	}
	return false
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}
