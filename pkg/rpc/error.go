package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes carried in Error.Code. The negative codes follow JSON-RPC 2.0,
// the positive ones the EIP-1193 provider errors dApps already understand.
const (
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInvalidParams      = -32602
	CodeInternal           = -32603
	CodeResourceNotFound   = -32001
	CodeUserRejected       = 4001
	CodeUnauthorized       = 4100
	CodeMethodNotSupported = 4200
	CodeUnrecognizedChain  = 4902
)

// ErrNoPeer is returned by Notify when no connection of the target role
// accepted the message.
var ErrNoPeer = errors.New("no connected peer accepted the message")

// Error is the client-facing error of a request. Its message is sent to the
// peer verbatim, so it must never carry internal details. Any other error
// type returned from a handler is replaced by a fallback message.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// WithData returns a copy of e carrying data as its JSON-encoded data member.
func (e Error) WithData(data any) Error {
	raw, err := json.Marshal(data)
	if err != nil {
		return e
	}
	e.Data = raw
	return e
}

// Errorf creates an Internal error with a formatted, client-safe message.
func Errorf(format string, args ...any) Error {
	return Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

func InvalidRequest(message string) Error {
	return Error{Code: CodeInvalidRequest, Message: message}
}

func InvalidParams(message string) Error {
	return Error{Code: CodeInvalidParams, Message: message}
}

func Internal(message string) Error {
	return Error{Code: CodeInternal, Message: message}
}

func ResourceNotFound(message string) Error {
	return Error{Code: CodeResourceNotFound, Message: message}
}

// UserRejected is the error of a request the user declined. An empty message
// defaults to the standard provider wording.
func UserRejected(message string) Error {
	if message == "" {
		message = "User rejected the request"
	}
	return Error{Code: CodeUserRejected, Message: message}
}

func Unauthorized(message string) Error {
	return Error{Code: CodeUnauthorized, Message: message}
}

func MethodNotSupported(method string) Error {
	return Error{Code: CodeMethodNotSupported, Message: fmt.Sprintf("Method %s is not supported", method)}
}

func UnrecognizedChain(message string) Error {
	return Error{Code: CodeUnrecognizedChain, Message: message}
}

// AsError unwraps err into an Error. The second value is false when err does
// not carry one.
func AsError(err error) (Error, bool) {
	var rpcErr Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return Error{}, false
}

// ToError converts any error into a client-facing Error, hiding the message
// of errors that are not already an Error behind fallback.
func ToError(err error, fallback string) Error {
	if rpcErr, ok := AsError(err); ok {
		return rpcErr
	}
	if fallback == "" {
		fallback = defaultNodeErrorMessage
	}
	return Internal(fallback)
}

// IsUserRejected reports whether err is a UserRejected error.
func IsUserRejected(err error) bool {
	rpcErr, ok := AsError(err)
	return ok && rpcErr.Code == CodeUserRejected
}
