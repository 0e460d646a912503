// Package docs generates Markdown reference documentation for a registry
// tree: one file per registry, listing its methods and the shared data
// types they use.
package docs

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/mnehpets/schemarpc/jsonrpc"
	"github.com/mnehpets/schemarpc/schema"
)

// RootFile is the file name of the root registry's page.
const RootFile = "api.md"

//go:embed api.md.tmpl
var pageTemplate string

var page = template.Must(template.New("api.md").Funcs(template.FuncMap{
	"code": func(items []string) string {
		quoted := make([]string, len(items))
		for i, s := range items {
			quoted[i] = "`" + s + "`"
		}
		return strings.Join(quoted, ", ")
	},
}).Parse(pageTemplate))

// File is one generated page.
type File struct {
	Name    string
	Content []byte
}

// FileName returns the page name of reg: RootFile for the root, otherwise
// "<segment>.md".
func FileName(reg *jsonrpc.Registry) string {
	if reg.Segment() == "" {
		return RootFile
	}
	return reg.Segment() + ".md"
}

// Generate seals root and renders a page for it and one for each of its
// subpaths.
func Generate(root *jsonrpc.Registry) ([]File, error) {
	if err := root.Seal(); err != nil {
		return nil, err
	}
	regs := append([]*jsonrpc.Registry{root}, root.Subpaths()...)
	files := make([]File, 0, len(regs))
	for _, reg := range regs {
		md, err := Markdown(reg)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: FileName(reg), Content: md})
	}
	return files, nil
}

// Markdown renders the page of a single registry. Subpaths are linked, not
// inlined.
func Markdown(reg *jsonrpc.Registry) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, newPageView(reg)); err != nil {
		return nil, fmt.Errorf("docs: render %s: %w", FileName(reg), err)
	}
	return buf.Bytes(), nil
}

// WriteDir writes every page generated for root into dir, creating it if
// needed.
func WriteDir(dir string, root *jsonrpc.Registry) error {
	files, err := Generate(root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("docs: %w", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Content, 0o644); err != nil {
			return fmt.Errorf("docs: %w", err)
		}
	}
	return nil
}

type pageView struct {
	Title       string
	Description string
	Subpaths    []subpathView
	Methods     []methodView
	Types       []typeView
}

type subpathView struct {
	Segment string
	Title   string
	File    string
}

type methodView struct {
	Name        string
	Summary     string
	Deprecated  bool
	Deprecation string
	Headers     []jsonrpc.HeaderRule
	Params      string
	Result      string
}

type typeView struct {
	Name        string
	Description string
	Body        string
	UsedBy      []string
}

func newPageView(reg *jsonrpc.Registry) pageView {
	v := pageView{Title: reg.Title(), Description: reg.Description()}
	for _, child := range reg.Subpaths() {
		v.Subpaths = append(v.Subpaths, subpathView{Segment: child.Segment(), Title: child.Title(), File: FileName(child)})
	}
	for _, m := range reg.Methods() {
		mv := methodView{Name: m.Name(), Summary: m.Summary(), Headers: m.Headers()}
		mv.Deprecation, mv.Deprecated = m.Deprecation()
		if doc := m.ParamsSchema(); doc != nil {
			mv.Params = describe(doc)
		}
		if doc := m.ResultSchema(); doc != nil {
			mv.Result = describe(doc)
		}
		v.Methods = append(v.Methods, mv)
	}
	refs := reg.References()
	for _, id := range refs.IDs() {
		doc, _ := refs.Lookup(id)
		desc, _ := doc["description"].(string)
		v.Types = append(v.Types, typeView{
			Name:        doc.Name(),
			Description: desc,
			Body:        describe(withoutDescription(doc)),
			UsedBy:      refs.Users(id),
		})
	}
	return v
}

// describe summarises a schema in a few Markdown lines: the keys of an
// object, the element type of an array, a link for a reference, or just the
// type name.
func describe(doc schema.Document) string {
	if name, ok := refName(doc); ok {
		return fmt.Sprintf("See [%s](#%s).\n", name, strings.ToLower(name))
	}
	var b strings.Builder
	title, _ := doc["title"].(string)
	desc, _ := doc["description"].(string)
	switch {
	case title != "" && desc != "":
		fmt.Fprintf(&b, "%s - %s\n\n", title, desc)
	case title != "" || desc != "":
		fmt.Fprintf(&b, "%s%s\n\n", title, desc)
	}

	switch typeOf(doc) {
	case "object":
		props, _ := doc["properties"].(map[string]any)
		if len(props) == 0 {
			b.WriteString("Object.\n")
			break
		}
		b.WriteString("Object with keys:\n\n")
		required := requiredSet(doc)
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			prop, _ := props[name].(map[string]any)
			req := "optional"
			if required[name] {
				req = "required"
			}
			fmt.Fprintf(&b, "* `%s` - %s %s", name, req, typeName(prop))
			if d, _ := prop["description"].(string); d != "" {
				fmt.Fprintf(&b, " - %s", d)
			}
			b.WriteString("\n")
		}
	case "":
		if b.Len() == 0 {
			b.WriteString("Any value.\n")
		}
	default:
		fmt.Fprintf(&b, "Type: %s\n", typeName(doc))
	}
	return b.String()
}

// typeName is the one-line type of a property: a scalar type, a reference
// name, or "array of" its element type.
func typeName(doc map[string]any) string {
	if name, ok := refName(doc); ok {
		return "[" + name + "](#" + strings.ToLower(name) + ")"
	}
	switch t := doc["type"].(type) {
	case string:
		if t == "array" {
			if items, ok := doc["items"].(map[string]any); ok {
				return "array of " + typeName(items)
			}
		}
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " | ")
	}
	if _, ok := doc["enum"]; ok {
		return "enum"
	}
	return "any"
}

func typeOf(doc map[string]any) string {
	t, _ := doc["type"].(string)
	return t
}

func refName(doc map[string]any) (string, bool) {
	ref, _ := doc["$ref"].(string)
	if len(ref) < 2 || ref[0] != '#' || strings.Contains(ref, "/") {
		return "", false
	}
	return schema.RefName(ref), true
}

func requiredSet(doc map[string]any) map[string]bool {
	out := make(map[string]bool)
	list, _ := doc["required"].([]any)
	for _, v := range list {
		if s, ok := v.(string); ok {
			out[s] = true
		}
	}
	return out
}

// withoutDescription drops the top-level description, which the Data Types
// section prints on its own line.
func withoutDescription(doc schema.Document) schema.Document {
	out := make(schema.Document, len(doc))
	for k, v := range doc {
		if k != "description" {
			out[k] = v
		}
	}
	return out
}
