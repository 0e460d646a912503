package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/mnehpets/schemarpc/endpoint"
)

// AccessLogProcessor logs one line per request after the response has been
// written, and makes a request-scoped logger available to everything after
// it through logr.FromContextOrDiscard.
//
// Requests are logged at verbosity 1; responses with a 5xx status are logged
// at verbosity 0 so they show up at the default level.
type AccessLogProcessor struct {
	Logger logr.Logger
	now    func() time.Time
}

// NewAccessLogProcessor creates an AccessLogProcessor writing to logger.
func NewAccessLogProcessor(logger logr.Logger) *AccessLogProcessor {
	return &AccessLogProcessor{Logger: logger, now: time.Now}
}

// Process implements endpoint.Processor.
func (p *AccessLogProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	start := p.now()
	log := p.Logger
	if id := RequestIDFromContext(r.Context()); id != "" {
		log = log.WithValues("request_id", id)
	}
	sw := &statusWriter{ResponseWriter: w}
	r = r.WithContext(logr.NewContext(r.Context(), log))

	err := next(sw, r)

	status := sw.status
	var ee *endpoint.EndpointError
	switch {
	case err != nil && errors.As(err, &ee) && ee.Status >= 100:
		status = ee.Status
	case err != nil:
		status = http.StatusInternalServerError
	case status == 0:
		status = http.StatusOK
	}
	kv := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"bytes", sw.written,
		"duration", p.now().Sub(start).String(),
		"remote", r.RemoteAddr,
	}
	if status >= http.StatusInternalServerError {
		log.Info("request", kv...)
	} else {
		log.V(1).Info("request", kv...)
	}
	return err
}

// statusWriter records the status and body size written through it.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Hijack lets WebSocket upgrades through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: response writer does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

// Unwrap is used by http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

var _ endpoint.Processor = (*AccessLogProcessor)(nil)
