package jsonrpc

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnehpets/schemarpc/endpoint"
	"github.com/mnehpets/schemarpc/middleware"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// Endpoint serves a sealed registry tree over HTTP.
//
// The root registry is served at "/" and each child registry at
// "/<segment>". Every path accepts OPTIONS, GET, POST, PUT and DELETE.
type Endpoint struct {
	root *Registry
	d    *dispatcher

	cors         bool
	corsOrigin   string
	maxBodyBytes int64
	processors   []endpoint.Processor
	upgrader     websocket.Upgrader
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithDevelopment enables result schema checking. A result that does not
// match its schema fails the request with an empty 500 response and an
// error log entry.
func WithDevelopment(enabled bool) Option {
	return func(e *Endpoint) {
		e.d.development = enabled
	}
}

// WithCORS sets permissive CORS headers on every response.
func WithCORS(enabled bool) Option {
	return func(e *Endpoint) {
		e.cors = enabled
	}
}

// WithCORSOrigin sets the Access-Control-Allow-Origin value sent when CORS
// is enabled. The default is "*". With a specific origin, WebSocket upgrades
// are accepted from that origin and the server's own.
func WithCORSOrigin(origin string) Option {
	return func(e *Endpoint) {
		e.corsOrigin = origin
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger logr.Logger) Option {
	return func(e *Endpoint) {
		e.d.logger = logger
	}
}

// WithMetrics records call counts and latencies into set.
func WithMetrics(set *metrics.Set) Option {
	return func(e *Endpoint) {
		e.d.metrics = newCallMetrics(set)
	}
}

// WithTracer sets the tracer used for dispatch spans. The default is the
// global provider's tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Endpoint) {
		e.d.tracer = tracer
	}
}

// WithMaxBatchSize rejects batches with more than n elements. Zero means no
// limit.
func WithMaxBatchSize(n int) Option {
	return func(e *Endpoint) {
		e.d.maxBatch = n
	}
}

// WithBatchConcurrency caps how many elements of one batch run at once.
// Zero runs every element concurrently.
func WithBatchConcurrency(n int) Option {
	return func(e *Endpoint) {
		e.d.batchConcurrency = n
	}
}

// WithMaxBodyBytes limits the size of request bodies. Zero means no limit.
func WithMaxBodyBytes(n int64) Option {
	return func(e *Endpoint) {
		e.maxBodyBytes = n
	}
}

// WithProcessors appends processors that run after the built-in ones and
// before dispatch.
func WithProcessors(processors ...endpoint.Processor) Option {
	return func(e *Endpoint) {
		e.processors = append(e.processors, processors...)
	}
}

// NewEndpoint seals root and returns an Endpoint serving it. Registration
// must be complete: any later mutation of the tree fails with ErrSealed.
func NewEndpoint(root *Registry, opts ...Option) (*Endpoint, error) {
	if root == nil {
		return nil, fmt.Errorf("jsonrpc: nil registry")
	}
	if err := root.Seal(); err != nil {
		return nil, err
	}
	envelope, err := root.compiler.Compile(EnvelopeSchema, nil)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: compile envelope schema: %w", err)
	}
	e := &Endpoint{
		root: root,
		d: &dispatcher{
			root:     root,
			envelope: envelope,
			logger:   logr.Discard(),
			tracer:   defaultTracer(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.upgrader = websocket.Upgrader{
		CheckOrigin: e.checkOrigin,
	}
	return e, nil
}

// Registry returns the root registry.
func (e *Endpoint) Registry() *Registry {
	return e.root
}

// Handler returns an http.Handler for the registry tree.
func (e *Endpoint) Handler() http.Handler {
	processors := []endpoint.Processor{
		middleware.NewRequestIDProcessor(),
		middleware.NewAccessLogProcessor(e.d.logger),
	}
	if e.cors {
		var opts []middleware.CORSOption
		if e.corsOrigin != "" {
			opts = append(opts, middleware.WithAllowOrigin(e.corsOrigin))
		}
		processors = append(processors, middleware.NewCORSProcessor(opts...))
	}
	if e.maxBodyBytes > 0 {
		processors = append(processors, middleware.NewBodyLimitProcessor(e.maxBodyBytes))
	}
	processors = append(processors, e.processors...)

	mux := http.NewServeMux()
	mux.Handle("/{subpath...}", endpoint.Handler(e.serve, processors...))
	return mux
}

// rpcParams captures the raw request body and the headers that pick its
// encoding. Parsing is deferred to the dispatcher, since a malformed body is
// a JSON-RPC error rather than an HTTP one.
type rpcParams struct {
	Subpath     string   `path:"subpath"`
	ContentType string   `header:"Content-Type"`
	Accept      []string `header:"Accept"`
	Body        []byte   `body:"" maxLength:""`
}

func (e *Endpoint) serve(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	subpath := strings.Trim(params.Subpath, "/")

	switch r.Method {
	case http.MethodOptions:
		return &endpoint.NoContentRenderer{}, nil
	case http.MethodGet:
		if websocket.IsWebSocketUpgrade(r) {
			if _, err := route(e.root, subpath); err != nil {
				return &endpoint.NoContentRenderer{Status: http.StatusNotFound}, nil
			}
			return &wsRenderer{e: e, subpath: subpath}, nil
		}
	case http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		w.Header().Set("Allow", "OPTIONS, GET, POST, PUT, DELETE")
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "", nil)
	}

	body := params.Body
	if mediaType(params.ContentType) == contentTypeCBOR && len(body) > 0 {
		converted, err := endpoint.CBORToJSON(body)
		if err != nil {
			e.d.logger.V(1).Info("undecodable CBOR body", "error", err.Error())
			return e.render(params.Accept, reply{status: http.StatusBadRequest, body: failure(nil, parseError())}), nil
		}
		body = converted
	}

	return e.render(params.Accept, e.d.handle(r.Context(), body, subpath, r.Header)), nil
}

// render picks the response encoding from the Accept header values.
func (e *Endpoint) render(accept []string, rep reply) endpoint.Renderer {
	if rep.body == nil {
		return &endpoint.NoContentRenderer{Status: rep.status}
	}
	if accepts(accept, contentTypeCBOR) {
		return &endpoint.CBORRenderer{Status: rep.status, Value: rep.body}
	}
	return &endpoint.JSONRenderer{Status: rep.status, Value: rep.body}
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

// accepts reports whether the Accept header names contentType explicitly.
func accepts(accept []string, contentType string) bool {
	for _, v := range accept {
		for _, part := range strings.Split(v, ",") {
			if mediaType(part) == contentType {
				return true
			}
		}
	}
	return false
}
