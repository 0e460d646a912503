package jsonrpc

import (
	"errors"
	"fmt"

	"github.com/mnehpets/schemarpc/schema"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeServerError    = -32000
)

// Kind classifies a dispatch-time failure.
type Kind int

const (
	ParseError Kind = iota + 1
	InvalidEnvelope
	MethodNotFound
	MissingHeader
	HeaderMismatch
	MissingParams
	InvalidParams
	ServerError
)

var kindNames = map[Kind]string{
	ParseError:      "parse_error",
	InvalidEnvelope: "invalid_envelope",
	MethodNotFound:  "method_not_found",
	MissingHeader:   "missing_header",
	HeaderMismatch:  "header_mismatch",
	MissingParams:   "missing_params",
	InvalidParams:   "invalid_params",
	ServerError:     "server_error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a JSON-RPC error object. It is what clients see in the "error"
// member of a response.
//
// Every Kind except ServerError is a client input defect.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates an Error with the given code. Handlers may return one to
// control the code and message of the response.
func NewError(code int, message string) *Error {
	return &Error{Kind: ServerError, Code: code, Message: message}
}

// EnvelopeErrorData is the "data" member of an invalid envelope error.
type EnvelopeErrorData struct {
	ValidationError string `json:"validation_error"`
	Value           any    `json:"value"`
	Path            []any  `json:"path"`
}

// ParamsErrorData is the "data" member of an invalid params error.
type ParamsErrorData struct {
	FailedValidator string `json:"failed_validator"`
	Value           any    `json:"value"`
	Path            []any  `json:"path"`
}

// HandlerError is a handler failure that carries an explicit error code and
// an optional structured payload for the "data" member.
//
// A zero Code means CodeServerError.
type HandlerError struct {
	Code int
	Data any
	Err  error
}

// NewHandlerError creates a HandlerError with the given code, message and
// optional data.
func NewHandlerError(code int, message string, data any) *HandlerError {
	return &HandlerError{Code: code, Data: data, Err: errors.New(message)}
}

func (e *HandlerError) Error() string {
	if e.Err == nil {
		return "handler error"
	}
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ContractError reports a handler that broke its own contract: its result
// could not be encoded, or (in development mode) did not match the result
// schema. It is never turned into a JSON-RPC error body.
type ContractError struct {
	Method string
	Err    error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("jsonrpc: method %q broke its result contract: %v", e.Method, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// ErrPathNotFound is returned by dispatch when a subpath names no child
// registry.
var ErrPathNotFound = errors.New("jsonrpc: path not found")

func parseError() *Error {
	return &Error{Kind: ParseError, Code: CodeParseError, Message: "Failed when parsing body as json"}
}

func invalidEnvelope(verr *schema.ValidationError) *Error {
	return &Error{
		Kind:    InvalidEnvelope,
		Code:    CodeInvalidRequest,
		Message: "Invalid JSON RPC 2.0 request",
		Data: EnvelopeErrorData{
			ValidationError: verr.Message,
			Value:           verr.Value,
			Path:            nonNil(verr.Path),
		},
	}
}

func batchTooLarge(n, limit int) *Error {
	return &Error{
		Kind:    InvalidEnvelope,
		Code:    CodeInvalidRequest,
		Message: "Invalid JSON RPC 2.0 request",
		Data: EnvelopeErrorData{
			ValidationError: fmt.Sprintf("batch of %d requests exceeds the limit of %d", n, limit),
			Path:            []any{},
		},
	}
}

func methodNotFound(name string) *Error {
	return &Error{Kind: MethodNotFound, Code: CodeMethodNotFound, Message: fmt.Sprintf("Unknown method: '%s'", name)}
}

func unknownPath(segment string) *Error {
	return &Error{Kind: MethodNotFound, Code: CodeMethodNotFound, Message: fmt.Sprintf("Unknown path: '%s'", segment)}
}

func missingHeader(key string) *Error {
	return &Error{
		Kind:    MissingHeader,
		Code:    CodeInvalidParams,
		Message: fmt.Sprintf("Header with key '%s' required but not provided.", key),
	}
}

func headerMismatch(key, pattern string) *Error {
	return &Error{
		Kind:    HeaderMismatch,
		Code:    CodeInvalidParams,
		Message: fmt.Sprintf("Header with key '%s' does not match the format '%s'.", key, pattern),
	}
}

func missingParams() *Error {
	return &Error{Kind: MissingParams, Code: CodeInvalidParams, Message: "Missing params"}
}

func invalidParams(verr *schema.ValidationError) *Error {
	return &Error{
		Kind:    InvalidParams,
		Code:    CodeInvalidParams,
		Message: verr.Message,
		Data: ParamsErrorData{
			FailedValidator: verr.Keyword,
			Value:           verr.Value,
			Path:            nonNil(verr.Path),
		},
	}
}

// serverError converts a handler failure into a ServerError.
func serverError(err error) *Error {
	out := &Error{Kind: ServerError, Code: CodeServerError, Message: err.Error()}

	var he *HandlerError
	var re *Error
	switch {
	case errors.As(err, &he):
		if he.Code != 0 {
			out.Code = he.Code
		}
		out.Data = he.Data
	case errors.As(err, &re):
		if re.Code != 0 {
			out.Code = re.Code
		}
		out.Message = re.Message
		out.Data = re.Data
	}
	return out
}

func nonNil(path []any) []any {
	if path == nil {
		return []any{}
	}
	return path
}

// Registration errors. They are returned wrapped in a *RegistrationError.
var (
	ErrDuplicateMethod  = errors.New("method already registered")
	ErrDuplicateSubpath = errors.New("subpath already registered")
	ErrSchemaConflict   = schema.ErrSchemaConflict
	ErrSealed           = errors.New("registry is sealed")
	ErrUnknownHandle    = errors.New("handle does not belong to this registry")
	ErrInvalidName      = errors.New("invalid name")
)

// RegistrationError is returned by the registry's mutation methods.
type RegistrationError struct {
	Op   string
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("jsonrpc: %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
