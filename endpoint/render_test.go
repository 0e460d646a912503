package endpoint

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestJSONRenderer_CompactNoEscape(t *testing.T) {
	rec := httptest.NewRecorder()
	jr := &JSONRenderer{Status: http.StatusCreated, Value: map[string]string{"html": "<b>&</b>"}}
	if err := jr.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"html":"<b>&</b>"}` {
		t.Fatalf("unexpected body %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestJSONRenderer_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	jr := &JSONRenderer{Value: func() {}}
	if err := jr.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNoContentRenderer(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = (&NoContentRenderer{}).Render(rec, nil)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	_ = (&NoContentRenderer{Status: http.StatusNotFound}).Render(rec, nil)
	if rec.Code != http.StatusNotFound || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 404, got %d", rec.Code)
	}
}

func TestCBORRenderer(t *testing.T) {
	rec := httptest.NewRecorder()
	value := map[string]any{"id": json.Number("7"), "ratio": json.Number("1.5"), "name": "x"}
	if err := (&CBORRenderer{Value: value}).Render(rec, nil); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/cbor" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var out struct {
		ID    int64   `cbor:"id"`
		Ratio float64 `cbor:"ratio"`
		Name  string  `cbor:"name"`
	}
	if err := cbor.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != 7 || out.Ratio != 1.5 || out.Name != "x" {
		t.Fatalf("unexpected value %+v", out)
	}
}

func TestCBORToJSON(t *testing.T) {
	in, err := cbor.Marshal(map[string]any{"method": "echo", "params": []any{1, "two", true}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := CBORToJSON(in)
	if err != nil {
		t.Fatalf("CBORToJSON returned error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("not JSON: %s", out)
	}
	if got["method"] != "echo" {
		t.Fatalf("unexpected value %v", got)
	}
	params := got["params"].([]any)
	if len(params) != 3 || params[0] != float64(1) || params[1] != "two" || params[2] != true {
		t.Fatalf("unexpected params %v", params)
	}

	if _, err := CBORToJSON([]byte{0xff, 0xff}); err == nil {
		t.Fatalf("expected error for malformed CBOR")
	}
}
