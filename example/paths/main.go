// Command paths serves two API versions side by side: the root path and /v2.
//
//	curl -d '{"jsonrpc":"2.0","id":1,"method":"add","params":[1,2]}' localhost:8080/
//	curl -d '{"jsonrpc":"2.0","id":1,"method":"add","params":{"a":1,"b":2}}' localhost:8080/v2
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/mnehpets/schemarpc/cli"
	"github.com/mnehpets/schemarpc/jsonrpc"
	"github.com/mnehpets/schemarpc/schema"
)

type AddParams struct {
	A int `json:"a"`
	B int `json:"b"`
}

func addV1(_ context.Context, p [2]int, _ http.Header) (int, error) {
	return p[0] + p[1], nil
}

func addV2(_ context.Context, p AddParams, _ http.Header) (int, error) {
	return p.A + p.B, nil
}

func registry() (*jsonrpc.Registry, error) {
	root := jsonrpc.NewRegistry("Calculator", "Integer arithmetic.")
	h, err := root.Register("add", "Add two integers", jsonrpc.Typed(addV1))
	if err != nil {
		return nil, err
	}
	if err := root.Params(h, schema.MustParse(`{
		"type": "array",
		"items": {"type": "integer"},
		"minItems": 2,
		"maxItems": 2
	}`)); err != nil {
		return nil, err
	}
	if err := root.Deprecate(h, "use /v2"); err != nil {
		return nil, err
	}

	v2, err := root.Subpath("v2", "Calculator v2", "Named arguments.")
	if err != nil {
		return nil, err
	}
	h, err = v2.Register("add", "Add a and b", jsonrpc.Typed(addV2))
	if err != nil {
		return nil, err
	}
	if err := v2.Params(h, schema.MustParse(`{
		"type": "object",
		"required": ["a", "b"],
		"properties": {
			"a": {"type": "integer"},
			"b": {"type": "integer"}
		}
	}`)); err != nil {
		return nil, err
	}
	return root, v2.Result(h, schema.MustParse(`{"type": "integer"}`))
}

func main() {
	reg, err := registry()
	if err != nil {
		log.Fatal(err)
	}
	cli.Execute("paths", reg)
}
