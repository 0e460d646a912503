// Package middleware provides endpoint.Processor implementations shared by
// the RPC endpoint: CORS headers, request IDs, access logging and request
// body limits.
package middleware

import (
	"net/http"
	"strings"

	"github.com/mnehpets/schemarpc/endpoint"
)

// CORSProcessor sets Cross-Origin Resource Sharing headers on every
// response, whether or not the request carried an Origin header.
//
// Default configuration:
//   - Access-Control-Allow-Origin: *
//   - Access-Control-Allow-Methods: POST, GET, OPTIONS
//   - Access-Control-Allow-Headers: *
type CORSProcessor struct {
	// AllowOrigin is the Access-Control-Allow-Origin value.
	AllowOrigin string

	// AllowMethods are joined into Access-Control-Allow-Methods.
	AllowMethods []string

	// AllowHeaders are joined into Access-Control-Allow-Headers.
	AllowHeaders []string
}

// CORSOption is a functional option for configuring CORSProcessor.
type CORSOption func(*CORSProcessor)

// NewCORSProcessor creates a CORSProcessor with permissive defaults.
func NewCORSProcessor(opts ...CORSOption) *CORSProcessor {
	p := &CORSProcessor{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithAllowOrigin sets Access-Control-Allow-Origin.
func WithAllowOrigin(origin string) CORSOption {
	return func(p *CORSProcessor) {
		p.AllowOrigin = origin
	}
}

// Process implements endpoint.Processor. Headers are set before next runs
// so they are present on error responses too.
func (p *CORSProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if p.AllowOrigin != "" {
		h.Set("Access-Control-Allow-Origin", p.AllowOrigin)
	}
	if len(p.AllowMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(p.AllowMethods, ", "))
	}
	if len(p.AllowHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(p.AllowHeaders, ", "))
	}
	return next(w, r)
}

var _ endpoint.Processor = (*CORSProcessor)(nil)
