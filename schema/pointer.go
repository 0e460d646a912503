package schema

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
)

// Resolve walks a JSON pointer (RFC 6901) through a decoded JSON value.
//
// It returns the value found and the path as typed segments: object members
// as strings, array indices as ints. If the pointer leaves the document, the
// value is nil and the path holds the segments walked so far plus the
// remaining ones as strings.
func Resolve(instance any, pointer string) (any, []any) {
	path := []any{}
	if pointer == "" {
		return instance, path
	}
	segments := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	cur := instance
	for i, raw := range segments {
		seg := pointerUnescaper.Replace(raw)
		switch v := cur.(type) {
		case map[string]any:
			path = append(path, seg)
			next, ok := v[seg]
			if !ok {
				return nil, appendRest(path, segments[i+1:])
			}
			cur = next
		case Document:
			path = append(path, seg)
			next, ok := v[seg]
			if !ok {
				return nil, appendRest(path, segments[i+1:])
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				path = append(path, seg)
				return nil, appendRest(path, segments[i+1:])
			}
			path = append(path, idx)
			cur = v[idx]
		default:
			path = append(path, seg)
			return nil, appendRest(path, segments[i+1:])
		}
	}
	return cur, path
}

func appendRest(path []any, rest []string) []any {
	for _, raw := range rest {
		path = append(path, pointerUnescaper.Replace(raw))
	}
	return path
}

// FormatPointer renders typed path segments back into a JSON pointer.
func FormatPointer(path []any) string {
	if len(path) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range path {
		b.WriteByte('/')
		switch s := seg.(type) {
		case string:
			b.WriteString(pointerEscaper.Replace(s))
		default:
			fmt.Fprint(&b, s)
		}
	}
	return b.String()
}

// lastSegment returns the final unescaped segment of a pointer.
func lastSegment(pointer string) string {
	i := strings.LastIndexByte(pointer, '/')
	if i < 0 {
		return pointerUnescaper.Replace(pointer)
	}
	return pointerUnescaper.Replace(pointer[i+1:])
}
