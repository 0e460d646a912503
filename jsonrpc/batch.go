package jsonrpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/sourcegraph/conc/iter"
	"go.opentelemetry.io/otel/attribute"
)

// handleBatch dispatches every element of a batch concurrently and returns
// the responses in input order. A batch always answers 200, except when it
// exceeds the configured size limit.
//
// Elements never affect each other. An element whose handler broke its
// result contract has no response and is left out of the array.
func (d *dispatcher) handleBatch(ctx context.Context, batch []any, subpath string, headers http.Header) reply {
	if d.maxBatch > 0 && len(batch) > d.maxBatch {
		return reply{status: http.StatusBadRequest, body: failure(nil, batchTooLarge(len(batch), d.maxBatch))}
	}
	d.metrics.observeBatch(len(batch))
	if len(batch) == 0 {
		return reply{status: http.StatusOK, body: []*Response{}}
	}

	ctx, span := d.tracer.Start(ctx, SpanBatch)
	span.SetAttributes(attribute.Int(AttrBatchSize, len(batch)))
	defer span.End()

	workers := len(batch)
	if d.batchConcurrency > 0 && d.batchConcurrency < workers {
		workers = d.batchConcurrency
	}
	mapper := iter.Mapper[any, *Response]{MaxGoroutines: workers}
	results := mapper.Map(batch, func(msg *any) *Response {
		resp, err := d.dispatch(ctx, *msg, subpath, headers)
		switch {
		case errors.Is(err, ErrPathNotFound):
			return failure(requestID(*msg), unknownPath(subpath))
		case err != nil:
			d.logger.Error(err, "batch element dropped", "path", subpath, "id", requestID(*msg))
			return nil
		}
		return resp
	})

	out := make([]*Response, 0, len(results))
	for _, resp := range results {
		if resp != nil {
			out = append(out, resp)
		}
	}
	return reply{status: http.StatusOK, body: out}
}
