// Command echo serves a single method that repeats its message ten times.
package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/mnehpets/schemarpc/cli"
	"github.com/mnehpets/schemarpc/jsonrpc"
	"github.com/mnehpets/schemarpc/schema"
)

type EchoParams struct {
	Message string `json:"message"`
}

type EchoResult struct {
	Message string `json:"message"`
}

func Echo(_ context.Context, p EchoParams, _ http.Header) (EchoResult, error) {
	return EchoResult{Message: strings.Repeat(p.Message, 10)}, nil
}

var messageSchema = schema.MustParse(`{
	"type": "object",
	"required": ["message"],
	"properties": {"message": {"type": "string"}}
}`)

func main() {
	reg := jsonrpc.NewRegistry("Echo", "Repeats what you say.")
	h, err := reg.Register("echo", "Repeat a message ten times", jsonrpc.Typed(Echo))
	if err == nil {
		err = reg.Params(h, messageSchema)
	}
	if err == nil {
		err = reg.Result(h, messageSchema)
	}
	if err != nil {
		panic(err)
	}
	cli.Execute("echo", reg)
}
