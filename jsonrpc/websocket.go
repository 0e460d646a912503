package jsonrpc

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/mnehpets/schemarpc/endpoint"
)

// wsRenderer upgrades the connection and serves calls on it until the
// client goes away. Each text or binary message is one request body (single
// call or batch) and gets one response message. Messages on a connection
// are handled in order.
//
// The HTTP headers of the upgrade request are the headers every call on the
// connection is checked against.
type wsRenderer struct {
	e       *Endpoint
	subpath string
}

func (wr *wsRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	log := logr.FromContextOrDiscard(r.Context())
	if log.GetSink() == nil {
		log = wr.e.d.logger
	}
	conn, err := wr.e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		log.V(1).Info("websocket upgrade failed", "error", err.Error())
		return nil
	}
	defer conn.Close()

	ctx := logr.NewContext(r.Context(), log.WithValues("transport", "websocket"))
	headers := r.Header.Clone()
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.V(1).Info("websocket read failed", "error", err.Error())
			}
			return nil
		}
		out, ok := wr.handleMessage(ctx, kind, msg, headers)
		if !ok {
			continue
		}
		if err := conn.WriteMessage(kind, out); err != nil {
			log.V(1).Info("websocket write failed", "error", err.Error())
			return nil
		}
	}
}

// handleMessage dispatches one message. ok is false when the call has no
// response, which happens only for a single call whose handler broke its
// result contract.
func (wr *wsRenderer) handleMessage(ctx context.Context, kind int, msg []byte, headers http.Header) ([]byte, bool) {
	cbor := kind == websocket.BinaryMessage
	if cbor {
		converted, err := endpoint.CBORToJSON(msg)
		if err != nil {
			return wr.encode(failure(nil, parseError()), cbor)
		}
		msg = converted
	}
	rep := wr.e.d.handle(ctx, msg, wr.subpath, headers)
	if rep.body == nil {
		return nil, false
	}
	return wr.encode(rep.body, cbor)
}

func (wr *wsRenderer) encode(v any, cbor bool) ([]byte, bool) {
	var out []byte
	var err error
	if cbor {
		out, err = endpoint.MarshalCBOR(v)
	} else {
		out, err = endpoint.MarshalJSON(v)
	}
	if err != nil {
		wr.e.d.logger.Error(err, "encode websocket response")
		return nil, false
	}
	return out, true
}

// sameOrigin reports whether the Origin header, if any, names the host the
// request was sent to.
// checkOrigin admits same-origin upgrades, and cross-origin ones that the
// CORS settings allow.
func (e *Endpoint) checkOrigin(r *http.Request) bool {
	if sameOrigin(r) {
		return true
	}
	if !e.cors {
		return false
	}
	return e.corsOrigin == "" || e.corsOrigin == "*" || r.Header.Get("Origin") == e.corsOrigin
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
