package jsonrpc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rpcclient "github.com/ybbus/jsonrpc/v2"
)

// These tests drive the endpoint with a stock JSON-RPC 2.0 client.

func TestClientCall(t *testing.T) {
	srv := httptest.NewServer(newEndpoint(t, newEchoRegistry(t)))
	defer srv.Close()
	client := rpcclient.NewClient(srv.URL)

	var out echoResult
	require.NoError(t, client.CallFor(&out, "echo", &echoParams{Message: "hi"}))
	assert.Equal(t, "hihihihihihihihihihi", out.Message)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(newEndpoint(t, newEchoRegistry(t)))
	defer srv.Close()
	client := rpcclient.NewClient(srv.URL)

	resp, err := client.Call("nope")
	var herr *rpcclient.HTTPError
	if errors.As(err, &herr) {
		assert.Equal(t, http.StatusBadRequest, herr.Code)
	}
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Unknown method: 'nope'", resp.Error.Message)
}

func TestClientCustomHeaders(t *testing.T) {
	reg := NewRegistry("test", "")
	hdl, err := reg.Register("secret", "", constHandler("ok"))
	require.NoError(t, err)
	require.NoError(t, reg.RequireHeader(hdl, "custom", `xyz[0-9]+`))
	srv := httptest.NewServer(newEndpoint(t, reg))
	defer srv.Close()

	client := rpcclient.NewClientWithOpts(srv.URL, &rpcclient.RPCClientOpts{
		CustomHeaders: map[string]string{"custom": "xyz123"},
	})
	var out string
	require.NoError(t, client.CallFor(&out, "secret"))
	assert.Equal(t, "ok", out)
}

func TestClientBatch(t *testing.T) {
	srv := httptest.NewServer(newEndpoint(t, newEchoRegistry(t)))
	defer srv.Close()
	client := rpcclient.NewClient(srv.URL)

	resps, err := client.CallBatch(rpcclient.RPCRequests{
		rpcclient.NewRequest("echo", &echoParams{Message: "a"}),
		rpcclient.NewRequest("nope"),
	})
	require.NoError(t, err)
	require.Len(t, resps, 2)

	first := resps.GetByID(0)
	require.NotNil(t, first)
	var out echoResult
	require.NoError(t, first.GetObject(&out))
	assert.Equal(t, "aaaaaaaaaa", out.Message)

	second := resps.GetByID(1)
	require.NotNil(t, second)
	require.NotNil(t, second.Error)
	assert.Equal(t, CodeMethodNotFound, second.Error.Code)
}
