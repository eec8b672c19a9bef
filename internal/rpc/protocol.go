// Package rpc carries todo operations and live-query callbacks across a
// websocket connection.
//
// Requests and responses are JSON objects correlated by id; the server
// answers requests on one connection in the order they were sent. Functions
// cannot cross the connection, so a callback is sent as a Proxy: the caller
// keeps the function in a local table under a random handle and sends only
// the handle. The server invokes it by sending "callback" notifications
// addressed to that handle.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// Method names.
const (
	MethodList       = "todos.list"
	MethodGet        = "todos.get"
	MethodAdd        = "todos.add"
	MethodToggle     = "todos.toggle"
	MethodUpdate     = "todos.update"
	MethodDelete     = "todos.delete"
	MethodClear      = "todos.clear"
	MethodWatchStart = "watch.start"
	MethodWatchStop  = "watch.stop"

	// MethodCallback is the server to client notification invoking a Proxy.
	MethodCallback = "callback"
)

// Protocol errors.
var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrInvalidParams = errors.New("invalid params")
)

// Message is a request (ID and Method), a notification (Method only) or a
// response (ID with Result or Error).
type Message struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is the wire form of a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Proxy is a serialisable reference to a callback that lives on the other
// side of the connection.
type Proxy struct {
	Handle string `json:"handle"`
}

type idParams struct {
	ID int64 `json:"id"`
}

type addParams struct {
	Description string `json:"description"`
}

type updateParams struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
}

type clearResult struct {
	Removed int `json:"removed"`
}

type watchStartParams struct {
	Query    string `json:"query"`
	Params   []any  `json:"params,omitempty"`
	Callback Proxy  `json:"callback"`
}

type watchStartResult struct {
	ID string `json:"id"`
}

type watchStopParams struct {
	ID string `json:"id"`
}

type callbackParams struct {
	Handle string      `json:"handle"`
	Rows   []types.Row `json:"rows"`
}

// errorCodes maps sentinel errors to stable wire codes. Order matters: the
// first match wins.
var errorCodes = []struct {
	code string
	err  error
}{
	{"not_found", types.ErrNotFound},
	{"invalid_id", types.ErrInvalidID},
	{"invalid_description", types.ErrInvalidDescription},
	{"invalid_query", types.ErrInvalidQuery},
	{"detached", types.ErrDetached},
	{"unknown_method", ErrUnknownMethod},
	{"invalid_params", ErrInvalidParams},
}

// toWireError converts err for transmission.
func toWireError(err error) *Error {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return &Error{Code: ec.code, Message: err.Error()}
		}
	}
	return &Error{Code: "internal", Message: err.Error()}
}

// RemoteError is an error reported by the other side. It unwraps to the
// matching sentinel when the code is known, so errors.Is works across the
// connection.
type RemoteError struct {
	Code    string
	Message string
	cause   error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.cause
}

func fromWireError(e *Error) error {
	re := &RemoteError{Code: e.Code, Message: e.Message}
	for _, ec := range errorCodes {
		if ec.code == e.Code {
			re.cause = ec.err
			break
		}
	}
	return re
}

// normalizeParams turns JSON numbers that hold whole values back into
// integers before they are bound to a query.
func normalizeParams(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		if f, ok := p.(float64); ok && f == float64(int64(f)) {
			out[i] = int64(f)
			continue
		}
		out[i] = p
	}
	return out
}
