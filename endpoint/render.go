package endpoint

import (
	"bytes"
	"encoding/json"
	"net/http"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// RawRenderer writes pre-encoded bytes.
//
// If Status is 0 it defaults to 200. An empty ContentType leaves the header
// unset, which is what an empty-bodied error response wants.
type RawRenderer struct {
	Status      int
	ContentType string
	Body        []byte
}

func (rr *RawRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if rr.ContentType != "" {
		w.Header().Set("Content-Type", rr.ContentType)
	}
	status := rr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(rr.Body) == 0 {
		return nil
	}
	_, err := w.Write(rr.Body)
	return err
}

// NoContentRenderer writes a response with no body.
//
// If Status is 0, it defaults to http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}

// JSONRenderer serializes Value as compact JSON without HTML escaping and
// without a trailing newline.
type JSONRenderer struct {
	Status int
	Value  any
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	body, err := MarshalJSON(jr.Value)
	if err != nil {
		return err
	}
	return (&RawRenderer{Status: jr.Status, ContentType: "application/json", Body: body}).Render(w, r)
}

// MarshalJSON encodes v the way JSONRenderer does.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// CBORRenderer serializes Value as CBOR (RFC 8949).
//
// Values are first normalised through JSON, so json.RawMessage and
// json.Number content is encoded as the CBOR data it represents rather than
// as byte or text strings.
type CBORRenderer struct {
	Status int
	Value  any
}

func (cr *CBORRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	body, err := MarshalCBOR(cr.Value)
	if err != nil {
		return err
	}
	return (&RawRenderer{Status: cr.Status, ContentType: "application/cbor", Body: body}).Render(w, r)
}

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// MarshalCBOR encodes v as deterministic CBOR.
func MarshalCBOR(v any) ([]byte, error) {
	raw, err := MarshalJSON(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(numbersToNative(generic))
}

// CBORToJSON decodes a CBOR data item and re-encodes it as JSON. Byte
// strings become base64 text, the way encoding/json encodes []byte.
func CBORToJSON(data []byte) ([]byte, error) {
	var v any
	if err := cborDecMode.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return MarshalJSON(v)
}

func numbersToNative(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, val := range t {
			t[k] = numbersToNative(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = numbersToNative(val)
		}
		return t
	default:
		return v
	}
}
