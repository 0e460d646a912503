package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resourceBase is the URL namespace that compiled documents live under. It
// is never fetched: every resource is added to the compiler up front.
const resourceBase = "https://schemarpc.invalid/"

// NewCompiler returns the default Compiler, which validates against JSON
// Schema draft-07 with format assertions enabled.
func NewCompiler() Compiler {
	return &draft7Compiler{}
}

type draft7Compiler struct {
	seq atomic.Uint64
}

func refURL(id string) string {
	return resourceBase + "refs/" + url.PathEscape(RefName(id)) + ".json"
}

// Compile implements Compiler.
//
// Stored references are added as separate resources and every plain-name
// "$ref" that names one is rewritten to point at it, so references work
// across documents the same way they work inside one.
func (c *draft7Compiler) Compile(doc Document, refs *Store) (Validator, error) {
	if doc == nil {
		return nil, errors.New("schema: compile: nil document")
	}
	jc := jsonschema.NewCompiler()
	jc.Draft = jsonschema.Draft7
	jc.AssertFormat = true

	if refs != nil {
		for _, id := range refs.IDs() {
			ref, _ := refs.Lookup(id)
			if err := addResource(jc, refURL(id), rewrite(map[string]any(ref), refs, true)); err != nil {
				return nil, fmt.Errorf("schema: reference %s: %w", id, err)
			}
		}
	}

	target := fmt.Sprintf("%sschema-%d.json", resourceBase, c.seq.Add(1))
	if err := addResource(jc, target, rewrite(map[string]any(doc), refs, true)); err != nil {
		return nil, fmt.Errorf("schema: %s: %w", doc, err)
	}
	compiled, err := jc.Compile(target)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", doc, err)
	}
	return &draft7Validator{schema: compiled}, nil
}

func addResource(jc *jsonschema.Compiler, target string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return jc.AddResource(target, bytes.NewReader(raw))
}

// rewrite deep-copies v, pointing plain-name references at their resources
// and dropping the root "$id" (the resource URL identifies it instead).
func rewrite(v any, refs *Store, root bool) any {
	switch t := v.(type) {
	case Document:
		return rewrite(map[string]any(t), refs, root)
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, val := range t {
			if root && key == "$id" {
				if id, ok := val.(string); ok && isPlainRef(id) {
					continue
				}
			}
			if ref, ok := val.(string); ok && key == "$ref" && isPlainRef(ref) && refs != nil {
				if _, stored := refs.Lookup(ref); stored {
					out[key] = refURL(ref)
					continue
				}
			}
			out[key] = rewrite(val, refs, false)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = rewrite(val, refs, false)
		}
		return out
	case []Document:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = rewrite(val, refs, false)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = rewrite(val, refs, false)
		}
		return out
	default:
		return v
	}
}

type draft7Validator struct {
	schema *jsonschema.Schema
}

// Validate implements Validator. The reported failure is a leaf of the
// validator's error tree, which names the innermost failing keyword. Among
// sibling failures the one at the earliest instance location wins, then the
// earliest keyword location, so the same input always reports the same
// failure.
func (v *draft7Validator) Validate(instance any) *ValidationError {
	err := v.schema.Validate(instance)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Message: err.Error(), Value: instance, Path: []any{}}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = slices.MinFunc(leaf.Causes, compareCauses)
	}
	value, path := Resolve(instance, leaf.InstanceLocation)
	return &ValidationError{
		Message: leaf.Message,
		Keyword: lastSegment(leaf.KeywordLocation),
		Value:   value,
		Path:    path,
	}
}

func compareCauses(a, b *jsonschema.ValidationError) int {
	if c := comparePointers(a.InstanceLocation, b.InstanceLocation); c != 0 {
		return c
	}
	return comparePointers(a.KeywordLocation, b.KeywordLocation)
}

// comparePointers orders JSON pointers segment by segment. Array indices
// compare numerically, so "/ids/2" sorts before "/ids/10".
func comparePointers(a, b string) int {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			return an - bn
		}
		return strings.Compare(as[i], bs[i])
	}
	return len(as) - len(bs)
}
