package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const messageSchema = `{
	"$id": "#message",
	"type": "object",
	"required": ["message"],
	"properties": {"message": {"type": "string"}}
}`

func TestStoreRegisterIdempotent(t *testing.T) {
	s := NewStore()
	first, err := s.Register(MustParse(messageSchema))
	require.NoError(t, err)

	second, err := s.Register(MustParse(messageSchema))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"#message"}, s.IDs())
	assert.Equal(t, 1, s.Len())
}

func TestStoreRegisterConflict(t *testing.T) {
	s := NewStore()
	_, err := s.Register(MustParse(messageSchema))
	require.NoError(t, err)

	_, err = s.Register(MustParse(`{"$id": "#message", "type": "string"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaConflict))

	doc, ok := s.Lookup("#message")
	require.True(t, ok)
	assert.Equal(t, "object", doc["type"])
}

func TestStoreNumbersComparedByValue(t *testing.T) {
	s := NewStore()
	_, err := s.Register(MustParse(`{"$id": "#n", "minimum": 1}`))
	require.NoError(t, err)
	_, err = s.Register(Document{"$id": "#n", "minimum": 1.0})
	assert.NoError(t, err)
}

func TestStoreWithoutID(t *testing.T) {
	s := NewStore()
	doc := MustParse(`{"type": "integer"}`)
	got, err := s.Register(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.Zero(t, s.Len())
}

func TestStoreUsers(t *testing.T) {
	s := NewStore()
	s.Link("#pet", "get_pet")
	s.Link("#pet", "create_pet")
	s.Link("#pet", "get_pet")

	assert.Equal(t, []string{"create_pet", "get_pet"}, s.Users("#pet"))
	assert.Empty(t, s.Users("#unknown"))
}

func TestReferences(t *testing.T) {
	doc := MustParse(`{
		"type": "object",
		"properties": {
			"category": {"$ref": "#category"},
			"tags": {"type": "array", "items": {"$ref": "#tag"}},
			"local": {"$ref": "#/definitions/x"},
			"again": {"$ref": "#tag"}
		}
	}`)
	assert.Equal(t, []string{"#category", "#tag"}, References(doc))
}

func TestClosure(t *testing.T) {
	s := NewStore()
	_, err := s.Register(MustParse(`{"$id": "#tag", "type": "object"}`))
	require.NoError(t, err)
	_, err = s.Register(MustParse(`{"$id": "#pet", "properties": {"tags": {"items": {"$ref": "#tag"}}}}`))
	require.NoError(t, err)

	doc := MustParse(`{"properties": {"pet": {"$ref": "#pet"}, "other": {"$ref": "#missing"}}}`)
	assert.Equal(t, []string{"#pet", "#tag"}, s.Closure(doc))
}

func TestStoreIdempotenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "name")
		typ := rapid.SampledFrom([]string{"string", "integer", "object", "array"}).Draw(t, "type")
		other := rapid.SampledFrom([]string{"string", "integer", "object", "array"}).Draw(t, "other")

		s := NewStore()
		doc := Document{"$id": "#" + name, "type": typ}
		if _, err := s.Register(doc); err != nil {
			t.Fatalf("first register: %v", err)
		}
		if _, err := s.Register(Document{"$id": "#" + name, "type": typ}); err != nil {
			t.Fatalf("identical register: %v", err)
		}
		_, err := s.Register(Document{"$id": "#" + name, "type": other})
		if other == typ && err != nil {
			t.Fatalf("identical body rejected: %v", err)
		}
		if other != typ && !errors.Is(err, ErrSchemaConflict) {
			t.Fatalf("want ErrSchemaConflict, got %v", err)
		}
		if s.Len() != 1 {
			t.Fatalf("store holds %d documents, want 1", s.Len())
		}
	})
}
