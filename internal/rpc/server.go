package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mesh-intelligence/livetodo/internal/client"
	"github.com/mesh-intelligence/livetodo/internal/logger"
	"github.com/mesh-intelligence/livetodo/internal/metrics"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
	teardownWait   = 5 * time.Second
)

// Server accepts websocket connections and serves todo operations and live
// queries from a shared Source. Each connection gets its own client and so
// its own subscription registry; when the connection goes away every
// subscription it created is torn down.
type Server struct {
	source   types.Source
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer returns a server over source. An empty allowedOrigin accepts any
// Origin header.
func NewServer(source types.Source, allowedOrigin string) *Server {
	return &Server{
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := newSession(s, conn)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		s.wg.Done()
	}()
	sess.run()
}

// Sessions returns the number of open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close drops every connection and waits until their subscriptions are torn
// down or ctx ends. New connections are refused afterwards.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("closing rpc sessions: %w", ctx.Err())
	}
}

// session is one websocket connection.
type session struct {
	conn   *websocket.Conn
	client *client.Client
	log    *slog.Logger

	send chan Message
	done chan struct{}
}

func newSession(s *Server, conn *websocket.Conn) *session {
	return &session{
		conn:   conn,
		client: client.New(s.source),
		log:    logger.With("remote", conn.RemoteAddr().String()),
		send:   make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (s *session) run() {
	metrics.RPCConnections.Inc()
	defer metrics.RPCConnections.Dec()
	s.log.Info("rpc connection opened")

	ctx, cancel := context.WithCancel(context.Background())
	go s.writePump()
	s.readPump(ctx)

	// Unblock callbacks waiting to enqueue before tearing their watches down.
	close(s.done)
	cancel()

	tctx, tcancel := context.WithTimeout(context.Background(), teardownWait)
	defer tcancel()
	if err := s.client.Close(tctx); err != nil {
		s.log.Error("tearing down connection subscriptions", "error", err)
	}
	_ = s.conn.Close()
	s.log.Info("rpc connection closed")
}

func (s *session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("rpc read failed", "error", err)
			}
			return
		}
		if msg.ID == 0 || msg.Method == "" {
			s.log.Warn("dropping message that is not a request", "method", msg.Method, "id", msg.ID)
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Debug("rpc write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// enqueue hands msg to the writer. Returns false once the connection is gone.
func (s *session) enqueue(msg Message) bool {
	select {
	case s.send <- msg:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) handle(ctx context.Context, req Message) {
	result, err := s.dispatch(ctx, req)

	resp := Message{ID: req.ID}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		resp.Error = toWireError(err)
		s.log.Debug("rpc request failed", "method", req.Method, "error", err)
	} else {
		raw, merr := json.Marshal(result)
		if merr != nil {
			outcome = "error"
			resp.Error = toWireError(fmt.Errorf("encoding result: %w", merr))
		} else {
			resp.Result = raw
		}
	}
	metrics.RPCRequests.WithLabelValues(req.Method, outcome).Inc()
	s.enqueue(resp)
}

func (s *session) dispatch(ctx context.Context, req Message) (any, error) {
	switch req.Method {
	case MethodList:
		return s.client.Todos(ctx)

	case MethodGet:
		var p idParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.client.Get(ctx, p.ID)

	case MethodAdd:
		var p addParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.client.Add(ctx, p.Description)

	case MethodToggle:
		var p idParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.client.Toggle(ctx, p.ID)

	case MethodUpdate:
		var p updateParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.client.Update(ctx, p.ID, p.Description)

	case MethodDelete:
		var p idParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.client.Delete(ctx, p.ID)

	case MethodClear:
		n, err := s.client.ClearCompleted(ctx)
		return clearResult{Removed: n}, err

	case MethodWatchStart:
		var p watchStartParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Callback.Handle == "" {
			return nil, fmt.Errorf("%w: missing callback handle", ErrInvalidParams)
		}
		// The initial render is the first callback for the handle and is
		// queued before the response.
		id, err := s.client.Watch(ctx, p.Query, normalizeParams(p.Params), func(rows []types.Row) {
			s.callback(p.Callback, rows)
		})
		if err != nil {
			return nil, err
		}
		return watchStartResult{ID: id}, nil

	case MethodWatchStop:
		var p watchStopParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.client.Unsubscribe(ctx, p.ID)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}
}

func (s *session) callback(p Proxy, rows []types.Row) {
	raw, err := json.Marshal(callbackParams{Handle: p.Handle, Rows: rows})
	if err != nil {
		s.log.Error("encoding callback", "handle", p.Handle, "error", err)
		return
	}
	s.enqueue(Message{Method: MethodCallback, Params: raw})
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrInvalidParams, err)
	}
	return nil
}
