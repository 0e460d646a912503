package jsonrpc

import (
	"encoding/json"

	"github.com/mnehpets/schemarpc/schema"
)

// Version is the protocol version echoed in every response.
const Version = "2.0"

// EnvelopeSchema is the request shape every call is checked against before
// a method is resolved. It is deliberately lenient: "jsonrpc" and "id" are
// optional, but must be well-formed when present.
var EnvelopeSchema = schema.MustParse(`{
	"type": "object",
	"required": ["method"],
	"properties": {
		"method": {"type": "string"},
		"id": {"type": ["integer", "string", "number", "null"]},
		"params": {"type": ["array", "object"]},
		"jsonrpc": {"const": "2.0"}
	}
}`)

// Response is a JSON-RPC response envelope. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// request is a call that passed the envelope check.
type request struct {
	id        any
	method    string
	params    any
	hasParams bool
}

// requestID returns the "id" member of msg, or nil when msg is not an object
// or has no id.
func requestID(msg any) any {
	obj, ok := msg.(map[string]any)
	if !ok {
		return nil
	}
	return obj["id"]
}

// checkEnvelope validates msg against the envelope schema and extracts the
// call.
func checkEnvelope(v schema.Validator, msg any) (*request, *Error) {
	if verr := v.Validate(msg); verr != nil {
		return nil, invalidEnvelope(verr)
	}
	obj := msg.(map[string]any)
	req := &request{id: obj["id"], method: obj["method"].(string)}
	req.params, req.hasParams = obj["params"]
	if req.params == nil {
		req.hasParams = false
	}
	return req, nil
}

func success(id any, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func failure(id any, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}
