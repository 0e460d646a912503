package middleware

import (
	"net/http"

	"github.com/mnehpets/schemarpc/endpoint"
)

// BodyLimitProcessor caps the number of request body bytes that can be read.
// Reading past the limit fails with *http.MaxBytesError, which the endpoint
// decoder reports as 413.
type BodyLimitProcessor struct {
	// Limit is the maximum body size in bytes. Zero or negative disables the
	// limit.
	Limit int64
}

// NewBodyLimitProcessor creates a BodyLimitProcessor.
func NewBodyLimitProcessor(limit int64) *BodyLimitProcessor {
	return &BodyLimitProcessor{Limit: limit}
}

// Process implements endpoint.Processor.
func (p *BodyLimitProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p.Limit > 0 && r.Body != nil && r.Body != http.NoBody {
		if r.ContentLength > p.Limit {
			return endpoint.Error(http.StatusRequestEntityTooLarge, "", nil)
		}
		r.Body = http.MaxBytesReader(w, r.Body, p.Limit)
	}
	return next(w, r)
}

var _ endpoint.Processor = (*BodyLimitProcessor)(nil)
