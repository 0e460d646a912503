// Package jsonrpc provides a declarative JSON-RPC 2.0 server: methods are
// registered with optional parameter and result schemas, required headers
// and deprecation notices, and every call is validated the same way before
// it reaches a handler.
//
// # Basic Usage
//
// Build a registry, then serve it:
//
//	reg := jsonrpc.NewRegistry("Echo API", "Repeats what you say.")
//	h, _ := reg.Register("echo", "Echo a message ten times", jsonrpc.Typed(echo))
//	reg.Params(h, schema.MustParse(`{
//	    "type": "object",
//	    "required": ["message"],
//	    "properties": {"message": {"type": "string"}}
//	}`))
//
//	e, err := jsonrpc.NewEndpoint(reg, jsonrpc.WithCORS(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", e.Handler())
//
// Typed handlers receive decoded params and the HTTP request headers:
//
//	func echo(ctx context.Context, p EchoParams, _ http.Header) (EchoResult, error) {
//	    return EchoResult{Message: strings.Repeat(p.Message, 10)}, nil
//	}
//
// # Handles
//
// Register returns a Handle. Schemas, header requirements and deprecation
// notices are attached through it, so metadata never depends on function
// identity:
//
//	reg.RequireHeader(h, "Authorization", `Bearer .+`)
//	reg.Deprecate(h, "use echo2")
//
// # Subpaths
//
// A registry can mount child registries, each served under its own URL
// segment. Children have their own methods and schema references:
//
//	v2, _ := reg.Subpath("v2", "Echo API v2", "")
//	v2.Register("echo", "", jsonrpc.Typed(echo2))   // POST /v2
//
// # Validation Order
//
// A call stops at the first failing step:
//
//  1. Parse the body (-32700).
//  2. Check the envelope against EnvelopeSchema (-32600).
//  3. Route the subpath (HTTP 404, empty body).
//  4. Resolve the method (-32601).
//  5. Check required headers (-32602).
//  6. Check params against the params schema (-32602); absent or null
//     params fail with "Missing params".
//  7. Invoke the handler (-32000, or the handler's code).
//  8. In development mode, check the result against the result schema.
//
// Client input failures answer HTTP 400, handler failures 500. A result that
// breaks its schema is a bug in the handler, not a client error: it answers
// an empty 500 and is logged.
//
// # Batches
//
// An array body is a batch. Elements are dispatched concurrently and the
// responses come back in input order with HTTP 200.
//
// # Errors
//
// Handlers control the error they produce by returning a *HandlerError
// (code and data) or an *Error. Any other error becomes -32000 with the
// error's text as the message.
//
//	return nil, jsonrpc.NewHandlerError(-32050, "pet is sold", map[string]any{"id": id})
package jsonrpc
