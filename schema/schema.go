// Package schema holds the JSON Schema documents attached to RPC methods and
// the validation capability used to enforce them.
//
// Validation is consumed as a black box through two small interfaces:
//
//	type Compiler interface {
//	    Compile(doc Document, refs *Store) (Validator, error)
//	}
//
//	type Validator interface {
//	    Validate(instance any) *ValidationError
//	}
//
// NewCompiler returns the default draft-07 implementation. Dispatch code only
// sees these interfaces, so a different validator can be swapped in without
// touching it.
//
// # Schema References
//
// A document with an "$id" of the form "#name" can be interned in a Store.
// Any "$ref" of the same form, in a method schema or in another stored
// document, resolves to the stored document:
//
//	store.Register(schema.MustParse(`{"$id": "#tag", "type": "object"}`))
//	params := schema.MustParse(`{"type": "array", "items": {"$ref": "#tag"}}`)
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Document is a decoded JSON Schema object.
type Document map[string]any

// Parse decodes a JSON Schema document. Numbers are kept as json.Number so
// that integer bounds round-trip exactly.
func Parse(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	if doc == nil {
		return nil, errors.New("schema: parse: document must be a JSON object")
	}
	return doc, nil
}

// MustParse is like Parse but panics on error. It is intended for schemas
// written as literals in setup code.
func MustParse(s string) Document {
	doc, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return doc
}

// ID returns the document's "$id", or "" if it has none.
func (d Document) ID() string {
	id, _ := d["$id"].(string)
	return id
}

// Name returns the reference name for ids of the form "#name".
func (d Document) Name() string {
	return RefName(d.ID())
}

// String returns a short description, used in logs and docs.
func (d Document) String() string {
	if title, ok := d["title"].(string); ok && title != "" {
		return title
	}
	if id := d.ID(); id != "" {
		return id
	}
	if t, ok := d["type"].(string); ok {
		return t
	}
	return "schema"
}

// RefName strips the leading "#" of a plain-name reference.
func RefName(id string) string {
	return strings.TrimPrefix(id, "#")
}

// isPlainRef reports whether ref names a stored document ("#name") rather
// than a JSON pointer ("#/definitions/x") or an external URL.
func isPlainRef(ref string) bool {
	return len(ref) > 1 && ref[0] == '#' && !strings.Contains(ref, "/")
}

// ValidationError describes the first failure found when validating an
// instance against a schema.
type ValidationError struct {
	// Message is the validator's human-readable description.
	Message string
	// Keyword is the schema keyword that failed, e.g. "type" or "required".
	Keyword string
	// Value is the part of the instance that failed.
	Value any
	// Path locates Value inside the instance: strings for object members and
	// ints for array indices. The root is an empty, non-nil slice.
	Path []any
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "schema: <nil>"
	}
	if len(e.Path) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, FormatPointer(e.Path))
}

// Validator checks instances against one compiled schema.
//
// Validate returns nil when the instance is valid. Implementations must be
// safe for concurrent use.
type Validator interface {
	Validate(instance any) *ValidationError
}

// Compiler turns a document into a Validator, resolving plain-name
// references against refs (which may be nil).
type Compiler interface {
	Compile(doc Document, refs *Store) (Validator, error)
}
