package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/typewell/typewell/errors"
)

// request is one client message. Notifications (didOpen, didChange,
// didClose) carry no id and get no reply unless they fail.
type request struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is one server message
type response struct {
	ID     string `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type hoverParams struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
}

type completionParams struct {
	Path   string `json:"path"`
	Prefix string `json:"prefix"`
}

type documentParams struct {
	Path string `json:"path"`
	Text string `json:"text,omitempty"`
}

// clientConn is the per-connection state: the socket, a write lock, and the
// set of documents this client opened in the shared overlay.
type clientConn struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	docs    map[string]struct{}
}

// handleWebSocket upgrades the request and serves the connection until the
// client goes away
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &clientConn{
		id:   uuid.New().String(),
		conn: conn,
		docs: make(map[string]struct{}),
	}
	s.register(c)
	s.logger.Infow("client connected", "conn_id", c.id, "remote", r.RemoteAddr)

	defer func() {
		// Close this client's documents so acquired state for other
		// clients is unaffected but abandoned edits do not linger
		for path := range c.docs {
			s.overlay.Close(path)
		}
		s.deregister(c)
		_ = conn.Close()
		s.logger.Infow("client disconnected", "conn_id", c.id)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnw("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			s.send(c, response{Error: "malformed request"})
			continue
		}

		s.dispatch(r.Context(), c, req)
	}
}

// dispatch routes one request to its handler and writes the reply
func (s *Server) dispatch(ctx context.Context, c *clientConn, req request) {
	result, err := s.handle(ctx, c, req)
	if err != nil {
		s.logger.Debugw("request failed",
			"conn_id", c.id,
			"method", req.Method,
			"error", err)
		s.send(c, response{ID: req.ID, Error: err.Error()})
		return
	}

	// Notifications succeed silently
	if req.ID == "" {
		return
	}
	s.send(c, response{ID: req.ID, Result: result})
}

func (s *Server) handle(ctx context.Context, c *clientConn, req request) (any, error) {
	service := s.queryService()

	switch req.Method {
	case "didOpen":
		var p documentParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "didOpen params")
		}
		if _, open := c.docs[p.Path]; !open && len(c.docs) >= s.maxDocsPerClient() {
			s.logger.Warnw("document limit reached",
				"conn_id", c.id,
				"path", p.Path,
				"open", len(c.docs))
			return nil, errors.Newf("document limit reached (%d open)", s.maxDocsPerClient())
		}
		c.docs[p.Path] = struct{}{}
		s.overlay.Open(p.Path, p.Text)
		return nil, nil

	case "didChange":
		var p documentParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "didChange params")
		}
		if _, open := c.docs[p.Path]; !open {
			return nil, errors.Wrapf(errors.ErrNotFound, "document %s not open", p.Path)
		}
		s.overlay.Update(p.Path, p.Text)
		return nil, nil

	case "didClose":
		var p documentParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "didClose params")
		}
		delete(c.docs, p.Path)
		s.overlay.Close(p.Path)
		return nil, nil

	case "hover":
		var p hoverParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "hover params")
		}
		return service.Hover(ctx, p.Path, p.Offset)

	case "completions":
		var p completionParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "completions params")
		}
		return service.Completions(ctx, p.Path, p.Prefix)

	case "diagnostics":
		var p documentParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "diagnostics params")
		}
		return service.Diagnostics(ctx, p.Path)

	case "snapshot":
		return service.SnapshotID(), nil

	default:
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown method %q", req.Method)
	}
}

// send writes one response, serialized per connection
func (s *Server) send(c *clientConn, resp response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
	if err := c.conn.WriteJSON(resp); err != nil {
		s.logger.Warnw("websocket write failed", "conn_id", c.id, "error", err)
	}
}
