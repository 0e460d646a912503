package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnehpets/schemarpc/schema"
)

// dispatcher runs the request pipeline against a sealed registry tree.
type dispatcher struct {
	root             *Registry
	envelope         schema.Validator
	development      bool
	logger           logr.Logger
	metrics          *callMetrics
	tracer           trace.Tracer
	maxBatch         int
	batchConcurrency int
}

// reply is the transport-level outcome of one request body. A nil body means
// the response has no content.
type reply struct {
	status int
	body   any
}

// route resolves a URL subpath to the registry that serves it. Only the
// root's direct children are reachable.
func route(root *Registry, subpath string) (*Registry, error) {
	subpath = strings.Trim(subpath, "/")
	if subpath == "" {
		return root, nil
	}
	child, ok := root.Child(subpath)
	if !ok {
		return nil, ErrPathNotFound
	}
	return child, nil
}

// handle decodes a request body and dispatches it as a single call or a
// batch.
func (d *dispatcher) handle(ctx context.Context, body []byte, subpath string, headers http.Header) reply {
	msg, err := decodeBody(body)
	if err != nil {
		d.logger.V(1).Info("unparseable request body", "error", err.Error())
		return reply{status: http.StatusBadRequest, body: failure(nil, parseError())}
	}
	if batch, ok := msg.([]any); ok {
		return d.handleBatch(ctx, batch, subpath, headers)
	}

	resp, err := d.dispatch(ctx, msg, subpath, headers)
	switch {
	case errors.Is(err, ErrPathNotFound):
		return reply{status: http.StatusNotFound}
	case err != nil:
		d.logger.Error(err, "request failed", "path", subpath)
		return reply{status: http.StatusInternalServerError}
	}
	return reply{status: statusOf(resp), body: resp}
}

// statusOf maps a single response to its HTTP status.
func statusOf(resp *Response) int {
	switch {
	case resp.Error == nil:
		return http.StatusOK
	case resp.Error.Kind == ServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// dispatch runs the pipeline for one decoded call. The pipeline stops at the
// first failing step.
//
// A client or handler failure is returned as an error response. A non-nil
// error is returned only for an unknown subpath (ErrPathNotFound) or a
// handler that broke its result contract (*ContractError); neither has a
// JSON-RPC representation.
func (d *dispatcher) dispatch(ctx context.Context, msg any, subpath string, headers http.Header) (resp *Response, err error) {
	start := time.Now()
	subpath = strings.Trim(subpath, "/")
	ctx, span := d.tracer.Start(ctx, SpanDispatch, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(attribute.String(AttrSystem, "jsonrpc"), attribute.String(AttrPath, subpath))

	var method string
	defer func() {
		endSpan(span, resp, err)
		var cerr *ContractError
		switch {
		case errors.As(err, &cerr):
			d.metrics.observeContract(subpath, method)
		case resp != nil && resp.Error != nil:
			d.metrics.observe(subpath, method, resp.Error.Code, start)
		case resp != nil:
			d.metrics.observe(subpath, method, 0, start)
		}
	}()

	id := requestID(msg)
	req, rerr := checkEnvelope(d.envelope, msg)
	if rerr != nil {
		return failure(id, rerr), nil
	}
	span.SetName("jsonrpc " + req.method)
	span.SetAttributes(attribute.String(AttrMethod, req.method))

	reg, err := route(d.root, subpath)
	if err != nil {
		return nil, err
	}

	m, ok := reg.Method(req.method)
	if !ok {
		return failure(id, methodNotFound(req.method)), nil
	}
	method = m.name
	if m.deprecated {
		span.SetAttributes(attribute.Bool(AttrDeprecated, true))
	}

	log := logr.FromContextOrDiscard(ctx)
	if log.GetSink() == nil {
		log = d.logger
	}
	log = log.WithValues("method", m.name)
	ctx = logr.NewContext(ctx, log)

	if rerr := checkHeaders(m, headers); rerr != nil {
		return failure(id, rerr), nil
	}

	if m.params != nil {
		if !req.hasParams {
			return failure(id, missingParams()), nil
		}
		if verr := m.params.Validate(req.params); verr != nil {
			log.V(1).Info("invalid params", "error", verr.Error())
			return failure(id, invalidParams(verr)), nil
		}
	}

	var raw json.RawMessage
	if req.hasParams {
		if raw, err = marshal(req.params); err != nil {
			return nil, fmt.Errorf("jsonrpc: re-encode params: %w", err)
		}
	}

	result, herr := invoke(ctx, m, raw, headers)
	if herr != nil {
		log.V(1).Info("handler failed", "error", herr.Error())
		return failure(id, serverError(herr)), nil
	}

	encoded, err := marshal(result)
	if err != nil {
		return nil, &ContractError{Method: m.name, Err: fmt.Errorf("encode result: %w", err)}
	}
	if d.development && m.result != nil {
		instance, err := decodeBody(encoded)
		if err != nil {
			return nil, &ContractError{Method: m.name, Err: err}
		}
		if verr := m.result.Validate(instance); verr != nil {
			return nil, &ContractError{Method: m.name, Err: verr}
		}
	}
	return success(id, encoded), nil
}

func checkHeaders(m *Method, headers http.Header) *Error {
	for _, rule := range m.headers {
		if len(headers.Values(rule.Key)) == 0 {
			return missingHeader(rule.Key)
		}
		if rule.re != nil && !rule.re.MatchString(headers.Get(rule.Key)) {
			return headerMismatch(rule.Key, rule.Pattern)
		}
	}
	return nil
}

// decodeBody decodes exactly one JSON value, keeping numbers as
// json.Number.
func decodeBody(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// marshal encodes v as compact JSON without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
