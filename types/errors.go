package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the stable classification surfaced to callers. Node error
// payloads are coalesced into one of these before they leave a provider.
type ErrorCode string

const (
	ErrInsufficientFunds      ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCallException          ErrorCode = "CALL_EXCEPTION"
	ErrActionRejected         ErrorCode = "ACTION_REJECTED"
	ErrNonceExpired           ErrorCode = "NONCE_EXPIRED"
	ErrReplacementUnderpriced ErrorCode = "REPLACEMENT_UNDERPRICED"
	ErrUnsupportedOperation   ErrorCode = "UNSUPPORTED_OPERATION"
	ErrUnknown                ErrorCode = "UNKNOWN_ERROR"
	ErrNetwork                ErrorCode = "NETWORK_ERROR"
	ErrBadData                ErrorCode = "BAD_DATA"
	ErrInvalidArgument        ErrorCode = "INVALID_ARGUMENT"
	ErrServer                 ErrorCode = "SERVER_ERROR"
	ErrUnconfiguredName       ErrorCode = "UNCONFIGURED_NAME"
	ErrTimeout                ErrorCode = "TIMEOUT"
)

// Error is the single error type returned by providers, adapters and signers.
// Only the fields relevant to the Code are populated.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// Operation names the unsupported operation (UNSUPPORTED_OPERATION).
	Operation string `json:"operation,omitempty"`
	// Action is the semantic user action that was rejected (ACTION_REJECTED)
	// or attempted (CALL_EXCEPTION).
	Action string `json:"action,omitempty"`
	// Reason is the decoded revert reason, if any.
	Reason string `json:"reason,omitempty"`
	// RevertData is the raw hex revert payload (CALL_EXCEPTION).
	RevertData string `json:"revertData,omitempty"`
	// Transaction is the wire transaction the failing request carried.
	Transaction any `json:"transaction,omitempty"`

	Payload  *Payload  `json:"payload,omitempty"`
	RPCError *RPCError `json:"rpcError,omitempty"`
	Data     any       `json:"data,omitempty"`

	Err error `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString(" (code=")
	b.WriteString(string(e.Code))
	if e.Operation != "" {
		fmt.Fprintf(&b, ", operation=%q", e.Operation)
	}
	if e.Action != "" {
		fmt.Fprintf(&b, ", action=%q", e.Action)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ", reason=%q", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ", error=%q", e.Err.Error())
	}
	b.WriteString(")")
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code so errors.Is(err, &Error{Code: ErrNetwork}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// IsErrorCode reports whether err, or anything it wraps, is an *Error with
// the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Unsupported builds an UNSUPPORTED_OPERATION error for operation.
func Unsupported(operation, message string) *Error {
	return &Error{Code: ErrUnsupportedOperation, Message: message, Operation: operation}
}

// InvalidArgument builds an INVALID_ARGUMENT error naming the argument.
func InvalidArgument(message, argument string, value any) *Error {
	return &Error{
		Code:    ErrInvalidArgument,
		Message: message,
		Data:    map[string]any{"argument": argument, "value": value},
	}
}
