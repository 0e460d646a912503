package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// ErrSchemaConflict is returned when a document is registered under an "$id"
// that already holds a structurally different document.
var ErrSchemaConflict = errors.New("schema: conflicting definitions for $id")

// Store interns documents by "$id" and keeps a reverse index from each
// reference to the methods whose schemas use it.
//
// A Store is written during registration only and is not safe for
// concurrent mutation. Concurrent reads are fine once registration is done.
type Store struct {
	docs  map[string]Document
	canon map[string][]byte
	order []string
	users map[string]map[string]struct{}
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		docs:  make(map[string]Document),
		canon: make(map[string][]byte),
		users: make(map[string]map[string]struct{}),
	}
}

// Register interns doc under its "$id" and returns it.
//
// Documents without an "$id" are returned unchanged and not stored.
// Registering an identical document twice is a no-op; registering a
// different document under an existing "$id" fails with ErrSchemaConflict.
func (s *Store) Register(doc Document) (Document, error) {
	if doc == nil {
		return nil, errors.New("schema: nil document")
	}
	id := doc.ID()
	if id == "" {
		return doc, nil
	}
	c, err := canonical(doc)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", id, err)
	}
	if prev, ok := s.canon[id]; ok {
		if !bytes.Equal(prev, c) {
			return nil, fmt.Errorf("%w %q", ErrSchemaConflict, id)
		}
		return s.docs[id], nil
	}
	s.docs[id] = doc
	s.canon[id] = c
	s.order = append(s.order, id)
	return doc, nil
}

// Lookup returns the document stored under id.
func (s *Store) Lookup(id string) (Document, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

// IDs returns the stored ids in registration order.
func (s *Store) IDs() []string {
	return slices.Clone(s.order)
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	return len(s.order)
}

// Link records that methodID uses the reference refID.
func (s *Store) Link(refID, methodID string) {
	set, ok := s.users[refID]
	if !ok {
		set = make(map[string]struct{})
		s.users[refID] = set
	}
	set[methodID] = struct{}{}
}

// Users returns the sorted ids of methods that use refID.
func (s *Store) Users(refID string) []string {
	return slices.Sorted(maps.Keys(s.users[refID]))
}

// Closure returns doc's plain-name references together with everything they
// reference in turn, restricted to ids present in the store.
func (s *Store) Closure(doc Document) []string {
	seen := make(map[string]bool)
	queue := References(doc)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		ref, ok := s.docs[id]
		if !ok {
			continue
		}
		seen[id] = true
		queue = append(queue, References(ref)...)
	}
	return slices.Sorted(maps.Keys(seen))
}

// References returns the distinct plain-name "$ref" values ("#name") that
// appear anywhere in doc, sorted.
func References(doc Document) []string {
	found := make(map[string]struct{})
	collectRefs(map[string]any(doc), found)
	out := make([]string, 0, len(found))
	for ref := range found {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func collectRefs(v any, found map[string]struct{}) {
	switch t := v.(type) {
	case Document:
		collectRefs(map[string]any(t), found)
	case map[string]any:
		for key, val := range t {
			if ref, ok := val.(string); ok && key == "$ref" && isPlainRef(ref) {
				found[ref] = struct{}{}
				continue
			}
			collectRefs(val, found)
		}
	case []any:
		for _, val := range t {
			collectRefs(val, found)
		}
	case []Document:
		for _, val := range t {
			collectRefs(val, found)
		}
	case []map[string]any:
		for _, val := range t {
			collectRefs(val, found)
		}
	}
}

// canonical encodes doc so that structurally equal documents compare equal
// byte-for-byte: keys sorted, numbers normalised through float64.
func canonical(doc Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
