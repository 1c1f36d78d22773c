package goerror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates that the requested resource could not be found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates that a write lost against a concurrent writer.
	ErrConflict = errors.New("resource conflict")
)

// Type classifies errors into high-level buckets used by the application.
type Type int

const (
	// TypeServer represents server-side failures.
	TypeServer Type = iota
	// TypeBusiness represents business rule violations.
	TypeBusiness
	// TypeValidation represents input validation failures.
	TypeValidation
)

// String returns the string representation of the error type.
func (t Type) String() string {
	switch t {
	case TypeServer, TypeBusiness, TypeValidation:
		return typeNames[t]
	default:
		return "ERROR_TYPE_UNKNOWN"
	}
}

//nolint:gochecknoglobals // lookup table
var typeNames = [...]string{
	TypeServer:     "ERROR_TYPE_SERVER",
	TypeBusiness:   "ERROR_TYPE_BUSINESS",
	TypeValidation: "ERROR_TYPE_VALIDATION",
}

// Code is a stable identifier used for mapping errors to HTTP status codes.
type Code int

const (
	// CodeInternal represents an internal or unspecified error.
	CodeInternal Code = iota
	// CodeInvalidFormat indicates a malformed request.
	CodeInvalidFormat
	// CodeInvalidInput indicates a well-formed request with invalid values.
	CodeInvalidInput
	// CodeInvalidIdentity indicates that the identity is not a usable email address.
	CodeInvalidIdentity
	// CodeNotFound indicates a missing resource.
	CodeNotFound
	// CodeConflict indicates a conflict (e.g., duplicate).
	CodeConflict
	// CodeUnauthorized indicates authentication failure.
	CodeUnauthorized
	// CodeForbidden indicates authorization failure.
	CodeForbidden
	// CodeTimeout indicates a timeout.
	CodeTimeout
	// CodeStorageFailed indicates that the backing store rejected or timed out an operation.
	CodeStorageFailed
	// CodeDeliveryFailed indicates that an upstream delivery channel failed.
	CodeDeliveryFailed
)

//nolint:gochecknoglobals // lookup tables
var (
	codeNames = map[Code]string{
		CodeInternal:        "ERROR_CODE_INTERNAL",
		CodeInvalidFormat:   "ERROR_CODE_INVALID_FORMAT",
		CodeInvalidInput:    "ERROR_CODE_INVALID_INPUT",
		CodeInvalidIdentity: "ERROR_CODE_INVALID_IDENTITY",
		CodeNotFound:        "ERROR_CODE_NOT_FOUND",
		CodeConflict:        "ERROR_CODE_CONFLICT",
		CodeUnauthorized:    "ERROR_CODE_UNAUTHORIZED",
		CodeForbidden:       "ERROR_CODE_FORBIDDEN",
		CodeTimeout:         "ERROR_CODE_TIMEOUT",
		CodeStorageFailed:   "ERROR_CODE_STORAGE_FAILED",
		CodeDeliveryFailed:  "ERROR_CODE_DELIVERY_FAILED",
	}

	codeStatus = map[Code]int{
		CodeInvalidFormat:   http.StatusBadRequest,
		CodeInvalidIdentity: http.StatusBadRequest,
		CodeInvalidInput:    http.StatusUnprocessableEntity,
		CodeNotFound:        http.StatusNotFound,
		CodeUnauthorized:    http.StatusUnauthorized,
		CodeForbidden:       http.StatusForbidden,
		CodeTimeout:         http.StatusRequestTimeout,
		CodeConflict:        http.StatusConflict,
		CodeDeliveryFailed:  http.StatusBadGateway,
	}
)

// String returns the wire name of the code. Unknown codes read as internal.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return codeNames[CodeInternal]
}

// Error is a structured error used across the application.
//
// It can wrap an underlying error while also carrying a user-facing message,
// a high-level type, and a stable error code. Only the message and code are
// ever written to clients; the wrapped error is for logs.
type Error struct {
	err     error
	msg     string
	errType Type
	code    Code
	fields  map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}

	if e.msg != "" {
		return e.msg
	}

	switch e.errType {
	case TypeValidation:
		return "Validation violation"
	case TypeBusiness:
		return "Logical business not meet with requirement"
	case TypeServer:
		return "Internal error"
	}

	return "Unknown error"
}

// String returns a verbose representation of the error for debugging/logging.
func (e *Error) String() string {
	return fmt.Sprintf(
		"Error Type: %s, Code: %s, Message: %s, Underlying Error: %v",
		e.errType.String(),
		e.code.String(),
		e.msg,
		e.err,
	)
}

// Msg returns the user-facing error message, if set.
func (e *Error) Msg() string {
	return e.msg
}

// Type returns the high-level error type.
func (e *Error) Type() Type {
	return e.errType
}

// Code returns the stable error code.
func (e *Error) Code() Code {
	return e.code
}

// Fields returns validation errors (field to message map), if any.
func (e *Error) Fields() map[string]string {
	return e.fields
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.err
}

// StatusCode maps the error code to an HTTP status code. Storage, internal
// and unknown codes are 500.
func (e *Error) StatusCode() int {
	if status, ok := codeStatus[e.code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func new(err error, msg string, et Type, code Code) error {
	return &Error{err: err, msg: msg, errType: et, code: code}
}

// NewServer creates a server-type error with the provided error.
func NewServer(err error) error {
	return new(err, "Internal server error", TypeServer, CodeInternal)
}

// NewStorage creates a server-type error for a failed or timed out store call.
func NewStorage(err error) error {
	return new(err, "Storage is unavailable", TypeServer, CodeStorageFailed)
}

// NewDelivery creates a server-type error for a failed delivery attempt.
func NewDelivery(err error) error {
	return new(err, "Unable to deliver the code", TypeServer, CodeDeliveryFailed)
}

// NewBusiness creates a business-type error with the specified message and code.
func NewBusiness(msg string, code Code) error {
	return new(nil, msg, TypeBusiness, code)
}

// NewInvalidInput creates a validation error for invalid input with a message and underlying error.
func NewInvalidInput(err error, kv ...string) error {
	if err != nil {
		return new(err, "Validation error", TypeValidation, CodeInvalidInput)
	}

	if len(kv)%2 != 0 {
		return new(nil, "Invalid request body", TypeValidation, CodeInvalidFormat)
	}

	e := &Error{msg: "Validation error", errType: TypeValidation, code: CodeInvalidInput, fields: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		e.fields[kv[i]] = kv[i+1]
	}

	return e
}

// NewInvalidFormat creates a validation error for an invalid request body format.
func NewInvalidFormat(msgs ...string) error {
	if len(msgs) == 0 {
		return new(nil, "Invalid request body", TypeValidation, CodeInvalidFormat)
	}
	return new(nil, msgs[0], TypeValidation, CodeInvalidFormat)
}

// HasCode reports whether err is a *Error carrying code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.code == code
	}
	return false
}
