package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/mnehpets/schemarpc/endpoint"
)

// RequestIDHeader is the header a request ID is read from and echoed in.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// RequestIDProcessor assigns every request an ID. A well-formed ID supplied
// by the client in X-Request-Id is kept; otherwise a random UUID is
// generated. The ID is echoed in the response header and stored in the
// request context.
type RequestIDProcessor struct {
	// MaxLength bounds client-supplied IDs. Longer IDs are replaced.
	// Default: 128
	MaxLength int
}

// NewRequestIDProcessor creates a RequestIDProcessor.
func NewRequestIDProcessor() *RequestIDProcessor {
	return &RequestIDProcessor{MaxLength: 128}
}

// Process implements endpoint.Processor.
func (p *RequestIDProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || (p.MaxLength > 0 && len(id) > p.MaxLength) || !printable(id) {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return next(w, r.WithContext(WithRequestID(r.Context(), id)))
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by RequestIDProcessor,
// or "" if there is none.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

var _ endpoint.Processor = (*RequestIDProcessor)(nil)
