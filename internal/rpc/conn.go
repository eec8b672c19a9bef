package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/queue"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

// Conn is the client side of a connection. It implements types.Source, so a
// client.Client works the same over a Conn as over a local backend.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Message
	proxies map[string]*proxy
	closed  bool
	err     error

	done chan struct{}
}

var _ types.Source = (*Conn)(nil)

// proxy holds a callback the server may invoke by handle. The first
// invocation carries the initial rows of the watch; the rest are changes,
// delivered in order on the proxy's own queue.
type proxy struct {
	initial    chan []types.Row
	gotInitial bool
	deliver    *queue.Serial
	onChange   types.ChangeFunc
}

// Dial connects to a server's websocket endpoint, e.g.
// ws://127.0.0.1:8080/rpc.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	c := &Conn{
		ws:      ws,
		pending: make(map[uint64]chan Message),
		proxies: make(map[string]*proxy),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the connection. In-flight calls fail with types.ErrClosed and
// no further callbacks are delivered. The server tears down every watch the
// connection started.
func (c *Conn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}

// Done is closed when the connection has gone away.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.shutdown(err)
			return
		}
		switch {
		case msg.Method == MethodCallback:
			c.dispatchCallback(msg.Params)
		case msg.ID != 0:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		default:
			logger.Debug("dropping unexpected rpc message", "method", msg.Method)
		}
	}
}

func (c *Conn) shutdown(err error) {
	c.mu.Lock()
	c.closed = true
	c.err = err
	proxies := c.proxies
	c.proxies = make(map[string]*proxy)
	c.pending = make(map[uint64]chan Message)
	c.mu.Unlock()

	for _, p := range proxies {
		p.deliver.Close()
	}
	close(c.done)
}

func (c *Conn) dispatchCallback(raw json.RawMessage) {
	var p callbackParams
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.Warn("dropping malformed callback", "error", err)
		return
	}
	rows := p.Rows
	if rows == nil {
		rows = []types.Row{}
	}

	c.mu.Lock()
	px, ok := c.proxies[p.Handle]
	first := ok && !px.gotInitial
	if first {
		px.gotInitial = true
	}
	c.mu.Unlock()

	switch {
	case !ok:
		// Stopped or never ours.
	case first:
		px.initial <- rows
	default:
		onChange := px.onChange
		px.deliver.Push(func() { onChange(rows) })
	}
}

// call sends one request and waits for its response.
func (c *Conn) call(ctx context.Context, method string, params, result any) error {
	id, ch, err := c.send(method, params)
	if err != nil {
		return err
	}
	err = c.await(ctx, method, ch, result)
	if err != nil && ctx.Err() != nil {
		c.forget(id)
	}
	return err
}

// send writes one request and returns the channel its response arrives on.
func (c *Conn) send(method string, params any) (uint64, chan Message, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encoding params: %w", method, err)
		}
		raw = b
	}

	ch := make(chan Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, nil, fmt.Errorf("%s: %w", method, types.ErrClosed)
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(Message{ID: id, Method: method, Params: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return 0, nil, fmt.Errorf("%s: %w", method, err)
	}
	return id, ch, nil
}

// await waits for the response on ch. The request stays pending when ctx
// ends first.
func (c *Conn) await(ctx context.Context, method string, ch chan Message, result any) error {
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, fromWireError(resp.Error))
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%s: decoding result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.done:
		return fmt.Errorf("%s: %w", method, types.ErrClosed)
	}
}

func (c *Conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Todos implements types.TodoStore.
func (c *Conn) Todos(ctx context.Context) ([]types.Todo, error) {
	var todos []types.Todo
	if err := c.call(ctx, MethodList, nil, &todos); err != nil {
		return nil, err
	}
	if todos == nil {
		todos = []types.Todo{}
	}
	return todos, nil
}

// Todo implements types.TodoStore.
func (c *Conn) Todo(ctx context.Context, id int64) (types.Todo, error) {
	var t types.Todo
	err := c.call(ctx, MethodGet, idParams{ID: id}, &t)
	return t, err
}

// AddTodo implements types.TodoStore.
func (c *Conn) AddTodo(ctx context.Context, description string) (types.Todo, error) {
	var t types.Todo
	err := c.call(ctx, MethodAdd, addParams{Description: description}, &t)
	return t, err
}

// ToggleTodo implements types.TodoStore.
func (c *Conn) ToggleTodo(ctx context.Context, id int64) (types.Todo, error) {
	var t types.Todo
	err := c.call(ctx, MethodToggle, idParams{ID: id}, &t)
	return t, err
}

// UpdateTodo implements types.TodoStore.
func (c *Conn) UpdateTodo(ctx context.Context, id int64, description string) (types.Todo, error) {
	var t types.Todo
	err := c.call(ctx, MethodUpdate, updateParams{ID: id, Description: description}, &t)
	return t, err
}

// DeleteTodo implements types.TodoStore.
func (c *Conn) DeleteTodo(ctx context.Context, id int64) error {
	return c.call(ctx, MethodDelete, idParams{ID: id}, nil)
}

// ClearCompleted implements types.TodoStore.
func (c *Conn) ClearCompleted(ctx context.Context) (int, error) {
	var r clearResult
	if err := c.call(ctx, MethodClear, struct{}{}, &r); err != nil {
		return 0, err
	}
	return r.Removed, nil
}

// StartWatch implements types.DataSource. onChange is registered locally
// under a fresh handle and only the handle is sent to the server.
func (c *Conn) StartWatch(ctx context.Context, query string, params []any, onChange types.ChangeFunc) (*types.Watch, error) {
	handle := uuid.NewString()
	px := &proxy{
		initial:  make(chan []types.Row, 1),
		deliver:  queue.NewSerial("proxy-" + handle[:8]),
		onChange: onChange,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		px.deliver.Close()
		return nil, fmt.Errorf("%s: %w", MethodWatchStart, types.ErrClosed)
	}
	c.proxies[handle] = px
	c.mu.Unlock()

	id, ch, err := c.send(MethodWatchStart, watchStartParams{
		Query:    query,
		Params:   params,
		Callback: Proxy{Handle: handle},
	})
	if err != nil {
		c.dropProxy(handle)
		return nil, err
	}

	var res watchStartResult
	if err := c.await(ctx, MethodWatchStart, ch, &res); err != nil {
		c.dropProxy(handle)
		if ctx.Err() != nil {
			// The server may still establish the watch; stop it once it
			// answers.
			go c.stopLate(ctx, id, ch)
		}
		return nil, err
	}

	// The server sends the initial rows before answering, and the read loop
	// handles messages in order, so they are already here.
	var initial []types.Row
	select {
	case initial = <-px.initial:
	default:
		c.dropProxy(handle)
		c.stopRemote(ctx, res.ID)
		return nil, fmt.Errorf("%s: no initial rows for handle %s", MethodWatchStart, handle)
	}

	stop := func(ctx context.Context) error {
		err := c.call(ctx, MethodWatchStop, watchStopParams{ID: res.ID}, nil)
		px := c.dropProxy(handle)
		if px != nil {
			if werr := px.deliver.Wait(ctx); werr != nil && err == nil {
				err = werr
			}
		}
		// A closed connection has already torn the watch down server side.
		if errors.Is(err, types.ErrClosed) {
			return nil
		}
		return err
	}
	return &types.Watch{InitialRows: initial, Stop: stop}, nil
}

// stopLate waits for the answer to an abandoned watch.start request and
// stops the watch it established, if any.
func (c *Conn) stopLate(ctx context.Context, reqID uint64, ch chan Message) {
	var res watchStartResult
	err := c.await(context.WithoutCancel(ctx), MethodWatchStart, ch, &res)
	if err != nil {
		c.forget(reqID)
		return
	}
	if res.ID != "" {
		c.stopRemote(ctx, res.ID)
	}
}

// stopRemote stops a server-side watch that has no local owner.
func (c *Conn) stopRemote(ctx context.Context, id string) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeWait)
	defer cancel()
	err := c.call(sctx, MethodWatchStop, watchStopParams{ID: id}, nil)
	if err != nil && !errors.Is(err, types.ErrClosed) {
		logger.Warn("stopping abandoned watch", "subscription", id, "error", err)
	}
}

// dropProxy forgets handle and closes its queue. Returns nil if it was
// already gone.
func (c *Conn) dropProxy(handle string) *proxy {
	c.mu.Lock()
	px, ok := c.proxies[handle]
	delete(c.proxies, handle)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	px.deliver.Close()
	return px
}
