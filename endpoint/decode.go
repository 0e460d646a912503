package endpoint

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// defaultFieldLimit is the default maximum byte length of a decoded value.
var defaultFieldLimit = 16 * 1024

// Unmarshal populates dst, which must be a non-nil pointer to a struct, from
// the request.
//
// Supported struct tags:
//   - `path:"name"`: r.PathValue(name)
//   - `header:"name"`: the request header; []string fields get every value
//   - `body:""`: the request body
//   - `maxLength:"n"`: maximum byte length of the value; the default is 16KB,
//     and `maxLength:""` or `maxLength:"0"` means no limit
//
// Tagged fields must be string, []byte or []string. An empty name defaults
// to the lower-cased field name. Fields with no data are left unchanged.
//
// The body is read verbatim whatever its content type; form bodies are not
// parsed.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}
	return decodeStruct(r, root)
}

// source fetches the raw values for a tag name. ok is false when the
// request has no value for it.
type source func(r *http.Request, name string) (values []string, ok bool, err error)

var sources = []struct {
	tag   string
	fetch source
}{
	{"path", fetchPath},
	{"header", fetchHeader},
	{"body", fetchBody},
}

type fieldTag struct {
	source string
	name   string
	limit  int
}

var (
	bytesType   = reflect.TypeFor[[]byte]()
	stringsType = reflect.TypeFor[[]string]()
)

func decodeStruct(r *http.Request, sv reflect.Value) error {
	t := sv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		limit, err := fieldLimit(sf)
		if err != nil {
			return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}
		for _, src := range sources {
			tag, ok, err := parseTag(sf, src.tag, limit)
			if err != nil {
				return Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
			}
			if !ok || tag.name == "-" {
				continue
			}
			values, found, err := src.fetch(r, tag.name)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			if err := setField(sv.Field(i), tag, values); err != nil {
				return Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: %w", tag.source, tag.name, sf.Name, err))
			}
			break
		}
	}
	return nil
}

func parseTag(sf reflect.StructField, key string, limit int) (fieldTag, bool, error) {
	val, ok := sf.Tag.Lookup(key)
	if !ok {
		return fieldTag{}, false, nil
	}
	name, flags, _ := strings.Cut(val, ",")
	if flags != "" {
		return fieldTag{}, false, fmt.Errorf("unsupported %s tag flags %q", key, flags)
	}
	tag := fieldTag{source: key, name: strings.TrimSpace(name), limit: limit}
	if tag.name == "-" {
		return tag, true, nil
	}
	if t := sf.Type; t.Kind() != reflect.String && t != bytesType && t != stringsType {
		return fieldTag{}, false, fmt.Errorf("unsupported field type %s", t)
	}
	if tag.name == "" {
		tag.name = strings.ToLower(sf.Name)
	}
	return tag, true, nil
}

func fieldLimit(sf reflect.StructField) (int, error) {
	val, ok := sf.Tag.Lookup("maxLength")
	if !ok {
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("maxLength: invalid integer %q", val)
	}
	if n < 0 {
		return 0, errors.New("maxLength: must be >= 0")
	}
	return n, nil
}

func fetchPath(r *http.Request, name string) ([]string, bool, error) {
	v := r.PathValue(name)
	if v == "" {
		return nil, false, nil
	}
	return []string{v}, true, nil
}

func fetchHeader(r *http.Request, name string) ([]string, bool, error) {
	values := r.Header.Values(name)
	if len(values) == 0 {
		return nil, false, nil
	}
	return values, true, nil
}

func fetchBody(r *http.Request, _ string) ([]string, bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false, nil
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, false, Error(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: body exceeds %d bytes", mbe.Limit))
		}
		return nil, false, Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
	}
	return []string{string(b)}, true, nil
}

func setField(v reflect.Value, tag fieldTag, values []string) error {
	for _, s := range values {
		if tag.limit > 0 && len(s) > tag.limit {
			return fmt.Errorf("value exceeds max length %d", tag.limit)
		}
	}
	switch {
	case v.Type() == stringsType:
		v.Set(reflect.ValueOf(slices.Clone(values)))
	case v.Type() == bytesType:
		v.SetBytes([]byte(values[0]))
	default:
		v.SetString(values[0])
	}
	return nil
}
