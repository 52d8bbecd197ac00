package protocol

import "fmt"

// Code is the taxonomy of errors this host can raise, independent of which
// wire binding (JSON-RPC or REST) ends up reporting it.
type Code string

const (
	CodeParseError                   Code = "parse_error"
	CodeInvalidRequest               Code = "invalid_request"
	CodeInvalidParams                Code = "invalid_params"
	CodeMethodNotFound               Code = "method_not_found"
	CodeTaskNotFound                 Code = "task_not_found"
	CodeTaskNotCancelable             Code = "task_not_cancelable"
	CodeUnsupportedOperation         Code = "unsupported_operation"
	CodePushNotificationNotSupported Code = "push_notification_not_supported"
	CodeContentTypeNotSupported      Code = "content_type_not_supported"
	CodeInternalError                Code = "internal_error"
)

// JSONRPCCode returns the numeric JSON-RPC 2.0 error code for this taxonomy
// entry, per spec §6.
func (c Code) JSONRPCCode() int {
	switch c {
	case CodeParseError:
		return -32700
	case CodeInvalidRequest:
		return -32600
	case CodeMethodNotFound:
		return -32601
	case CodeInvalidParams:
		return -32602
	case CodeTaskNotFound:
		return -32001
	case CodeTaskNotCancelable:
		return -32002
	case CodePushNotificationNotSupported:
		return -32003
	case CodeUnsupportedOperation:
		return -32004
	case CodeContentTypeNotSupported:
		return -32005
	default:
		return -32603
	}
}

// HTTPStatus returns the REST status code for this taxonomy entry, per
// spec §4.8.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeTaskNotFound, CodeMethodNotFound:
		return 404
	case CodeInvalidRequest, CodeInvalidParams, CodeParseError,
		CodeTaskNotCancelable, CodeUnsupportedOperation, CodePushNotificationNotSupported:
		return 400
	case CodeContentTypeNotSupported:
		return 422
	default:
		return 500
	}
}

// Error is the error type every component in this module raises; it
// carries a taxonomy Code and a short human message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into an *Error, defaulting to CodeInternalError for
// anything this module didn't raise itself.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
