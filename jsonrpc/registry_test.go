package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnehpets/schemarpc/schema"
)

func constHandler(v any) Handler {
	return HandlerFunc(func(context.Context, json.RawMessage, http.Header) (any, error) {
		return v, nil
	})
}

func TestRegisterDuplicateMethod(t *testing.T) {
	reg := NewRegistry("test", "")
	_, err := reg.Register("hello", "first", constHandler("first"))
	require.NoError(t, err)

	_, err = reg.Register("hello", "second", constHandler("second"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateMethod))

	var rerr *RegistrationError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "hello", rerr.Name)

	m, ok := reg.Method("hello")
	require.True(t, ok)
	assert.Equal(t, "first", m.Summary())
	assert.Len(t, reg.Methods(), 1)
}

func TestRegisterRejectsEmptyNameAndNilHandler(t *testing.T) {
	reg := NewRegistry("test", "")
	_, err := reg.Register("", "", constHandler(nil))
	assert.True(t, errors.Is(err, ErrInvalidName))

	_, err = reg.Register("x", "", nil)
	assert.Error(t, err)
}

func TestMethodsKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry("test", "")
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := reg.Register(name, "", constHandler(nil))
		require.NoError(t, err)
	}
	var names []string
	for _, m := range reg.Methods() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestParamsSchemaInterned(t *testing.T) {
	reg := NewRegistry("test", "")
	h, err := reg.Register("echo", "", constHandler(nil))
	require.NoError(t, err)

	require.NoError(t, reg.Params(h, schema.MustParse(`{"$id": "#echo_params", "type": "object"}`)))
	_, ok := reg.References().Lookup("#echo_params")
	assert.True(t, ok)

	h2, err := reg.Register("echo2", "", constHandler(nil))
	require.NoError(t, err)
	err = reg.Result(h2, schema.MustParse(`{"$id": "#echo_params", "type": "string"}`))
	assert.True(t, errors.Is(err, ErrSchemaConflict))
	assert.Nil(t, reg.methods["echo2"].ResultSchema())
}

func TestHandleFromAnotherRegistry(t *testing.T) {
	a := NewRegistry("a", "")
	b := NewRegistry("b", "")
	h, err := a.Register("x", "", constHandler(nil))
	require.NoError(t, err)
	_, err = b.Register("x", "", constHandler(nil))
	require.NoError(t, err)

	err = b.Deprecate(h, "gone")
	assert.True(t, errors.Is(err, ErrUnknownHandle))
	_, deprecated := b.methods["x"].Deprecation()
	assert.False(t, deprecated)
}

func TestRequireHeaderAccumulates(t *testing.T) {
	reg := NewRegistry("test", "")
	h, err := reg.Register("x", "", constHandler(nil))
	require.NoError(t, err)

	require.NoError(t, reg.RequireHeader(h, "custom", `xyz[0-9]+`))
	require.NoError(t, reg.RequireHeader(h, "other", ""))
	err = reg.RequireHeader(h, "bad", `(`)
	assert.Error(t, err)

	m, _ := reg.Method("x")
	rules := m.Headers()
	require.Len(t, rules, 2)
	assert.Equal(t, "custom", rules[0].Key)
	assert.Equal(t, `xyz[0-9]+`, rules[0].Pattern)
	assert.Equal(t, "other", rules[1].Key)
}

func TestDeprecate(t *testing.T) {
	reg := NewRegistry("test", "")
	h, err := reg.Register("old", "", constHandler(nil))
	require.NoError(t, err)
	require.NoError(t, reg.Deprecate(h, "use new"))

	m, _ := reg.Method("old")
	reason, ok := m.Deprecation()
	assert.True(t, ok)
	assert.Equal(t, "use new", reason)
}

func TestSubpathDuplicateAndInvalid(t *testing.T) {
	reg := NewRegistry("root", "")
	child, err := reg.Subpath("v1", "Version 1", "first")
	require.NoError(t, err)
	assert.Equal(t, "v1", child.Segment())
	assert.Equal(t, "Version 1", child.Title())

	_, err = reg.Subpath("v1", "again", "")
	assert.True(t, errors.Is(err, ErrDuplicateSubpath))

	_, err = reg.Subpath("a/b", "", "")
	assert.True(t, errors.Is(err, ErrInvalidName))

	got, ok := reg.Child("v1")
	require.True(t, ok)
	assert.Same(t, child, got)
	assert.Len(t, reg.Subpaths(), 1)
}

func TestRegisterReferenceNeedsID(t *testing.T) {
	reg := NewRegistry("root", "")
	_, err := reg.RegisterReference(schema.MustParse(`{"type": "object"}`))
	assert.Error(t, err)

	doc, err := reg.RegisterReference(schema.MustParse(`{"$id": "#pet", "type": "object"}`))
	require.NoError(t, err)
	assert.Equal(t, "#pet", doc.ID())

	_, err = reg.RegisterReference(schema.MustParse(`{"$id": "#pet", "type": "object"}`))
	assert.NoError(t, err)
}

func TestSealFreezesTree(t *testing.T) {
	reg := NewRegistry("root", "")
	child, err := reg.Subpath("v1", "", "")
	require.NoError(t, err)
	h, err := child.Register("x", "", constHandler(nil))
	require.NoError(t, err)

	require.NoError(t, reg.Seal())
	require.NoError(t, reg.Seal())
	assert.True(t, child.Sealed())

	_, err = reg.Register("y", "", constHandler(nil))
	assert.True(t, errors.Is(err, ErrSealed))
	_, err = child.Register("y", "", constHandler(nil))
	assert.True(t, errors.Is(err, ErrSealed))
	assert.True(t, errors.Is(child.Deprecate(h, "late"), ErrSealed))
	_, err = reg.Subpath("v2", "", "")
	assert.True(t, errors.Is(err, ErrSealed))
	_, err = reg.RegisterReference(schema.MustParse(`{"$id": "#late"}`))
	assert.True(t, errors.Is(err, ErrSealed))
}

func TestSealFromChildSealsWholeTree(t *testing.T) {
	reg := NewRegistry("root", "")
	h, err := reg.Register("echo", "", constHandler(nil))
	require.NoError(t, err)
	require.NoError(t, reg.Params(h, schema.MustParse(`{"type": "object"}`)))
	child, err := reg.Subpath("v1", "", "")
	require.NoError(t, err)
	ch, err := child.Register("x", "", constHandler(nil))
	require.NoError(t, err)
	require.NoError(t, child.Result(ch, schema.MustParse(`{"type": "string"}`)))

	require.NoError(t, child.Seal())
	assert.True(t, reg.Sealed())

	m, ok := reg.Method("echo")
	require.True(t, ok)
	assert.NotNil(t, m.params)
	m, ok = child.Method("x")
	require.True(t, ok)
	assert.NotNil(t, m.result)
}

func TestSealFromChildReportsRootSchema(t *testing.T) {
	reg := NewRegistry("root", "")
	h, err := reg.Register("x", "", constHandler(nil))
	require.NoError(t, err)
	require.NoError(t, reg.Params(h, schema.MustParse(`{"type": 5}`)))
	child, err := reg.Subpath("v1", "", "")
	require.NoError(t, err)

	assert.Error(t, child.Seal())
	assert.False(t, child.Sealed())
	assert.False(t, reg.Sealed())
}

func TestSealReportsInvalidSchema(t *testing.T) {
	reg := NewRegistry("root", "")
	h, err := reg.Register("x", "", constHandler(nil))
	require.NoError(t, err)
	require.NoError(t, reg.Params(h, schema.MustParse(`{"type": 5}`)))

	err = reg.Seal()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
	assert.False(t, reg.Sealed())
}

func TestSealBuildsReverseIndex(t *testing.T) {
	reg := NewRegistry("pets", "")
	_, err := reg.RegisterReference(schema.MustParse(`{"$id": "#tag", "type": "object"}`))
	require.NoError(t, err)
	_, err = reg.RegisterReference(schema.MustParse(`{
		"$id": "#pet",
		"type": "object",
		"properties": {"tags": {"type": "array", "items": {"$ref": "#tag"}}}
	}`))
	require.NoError(t, err)

	get, err := reg.Register("get_pet", "", constHandler(nil))
	require.NoError(t, err)
	require.NoError(t, reg.Result(get, schema.MustParse(`{"$ref": "#pet"}`)))

	tag, err := reg.Register("list_tags", "", constHandler(nil))
	require.NoError(t, err)
	require.NoError(t, reg.Result(tag, schema.MustParse(`{"type": "array", "items": {"$ref": "#tag"}}`)))

	require.NoError(t, reg.Seal())
	assert.Equal(t, []string{"get_pet"}, reg.References().Users("#pet"))
	assert.Equal(t, []string{"get_pet", "list_tags"}, reg.References().Users("#tag"))
}
