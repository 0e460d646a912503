package jsonrpc

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mnehpets/schemarpc/jsonrpc"

// Span names and attribute keys.
const (
	SpanDispatch = "jsonrpc.dispatch"
	SpanBatch    = "jsonrpc.batch"

	AttrSystem     = "rpc.system"
	AttrMethod     = "rpc.method"
	AttrPath       = "rpc.jsonrpc.path"
	AttrErrorCode  = "rpc.jsonrpc.error_code"
	AttrBatchSize  = "rpc.jsonrpc.batch_size"
	AttrDeprecated = "rpc.jsonrpc.deprecated"
)

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// endSpan records the outcome of one call on its span.
func endSpan(span trace.Span, resp *Response, err error) {
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case resp != nil && resp.Error != nil:
		span.SetAttributes(attribute.Int(AttrErrorCode, resp.Error.Code))
		span.SetStatus(codes.Error, resp.Error.Message)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
