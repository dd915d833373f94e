// Package rpcserver exposes Homestar's event bus and workflow
// submission path over a WebSocket transport: a client authenticates
// with a bearer token, subscribes to the connection-wide notification
// feed, and can submit a workflow document for execution. It is an
// external collaborator — no other pkg/ package depends on it;
// cmd/homestar-node wires it — with its execution path named by Submitter so a caller can swap in a different execution
// path (e.g. a queue-backed one) without this package changing.
package rpcserver

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

	"github.com/Mindburn-Labs/homestar/pkg/events"
	"github.com/Mindburn-Labs/homestar/pkg/workflow"
)

// Submitter runs a submitted workflow to completion. pkg/worker's Run,
// wrapped by the caller into this narrower shape, satisfies it.
type Submitter interface {
	Submit(ctx context.Context, wf workflow.Workflow) (map[string]workflow.Receipt, error)
}

// Config configures the server.
type Config struct {
	// KeySet validates submission tokens. A nil KeySet rejects every
	// connection (fail closed), matching the teacher's auth middleware
	// behavior for a nil validator.
	KeySet *KeySet

	// WriteTimeout bounds a single outbound frame write.
	WriteTimeout time.Duration

	// PingInterval is how often the server pings an idle connection to
	// detect a dead peer.
	PingInterval time.Duration
}

const (
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	return c
}

// Server upgrades HTTP connections to WebSocket, authenticates them,
// and relays bus events plus request/response JSON-RPC calls.
type Server struct {
	cfg       Config
	bus       *events.Bus
	submitter Submitter
	logger    *slog.Logger

	upgrader websocket.Upgrader
}

// New builds a Server. bus is the node's event bus, fanned out to every
// connected subscriber; submitter runs workflows submitted over the
// "workflow/run" method.
func New(cfg Config, bus *events.Bus, submitter Submitter) *Server {
	return &Server{
		cfg:       cfg.withDefaults(),
		bus:       bus,
		submitter: submitter,
		logger:    slog.Default().With("component", "rpcserver"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Homestar's websocket endpoint is meant for local/trusted
			// network clients (cf. pkg/p2p's reliance on transport-level
			// auth); it doesn't serve a browser origin that needs a
			// same-origin check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection after validating the bearer token
// (header or "token" query parameter), then relays traffic until the
// client disconnects, handing the connection the request's context.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID, err := s.authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.handleConnection(r.Context(), conn, clientID)
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	if s.cfg.KeySet == nil {
		return "", errors.New("rpcserver: no key set configured, refusing all connections")
	}
	token := bearerToken(r)
	if token == "" {
		return "", errors.New("rpcserver: missing bearer token")
	}
	claims, err := s.cfg.KeySet.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.ClientID, nil
}

// request is an inbound JSON-RPC-shaped call. The only method
// implemented today is "workflow/run"; unknown methods get an error
// response rather than being silently ignored.
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn, clientID string) {
	logger := s.logger.With("client_id", clientID)
	defer conn.Close()

	sub := s.bus.Subscribe()
	defer sub.Unsubscribe()

	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		return conn.WriteJSON(v)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.relayEvents(connCtx, sub.Events, writeJSON, logger)
	go s.pingLoop(connCtx, conn, &writeMu, logger)

	s.readLoop(connCtx, conn, writeJSON, clientID, logger)
	cancel()
}

func (s *Server) relayEvents(ctx context.Context, ch <-chan events.Event, writeJSON func(interface{}) error, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeJSON(evt.ToNotification()); err != nil {
				logger.Debug("event relay write failed, closing", "error", err)
				return
			}
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, logger *slog.Logger) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				logger.Debug("ping failed, closing", "error", err)
				return
			}
		}
	}
}

// readLoop handles inbound JSON-RPC requests until reading a request or
// writing a response fails (e.g. the client disconnects); it does not
// watch ctx, which is only passed on to dispatch.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, writeJSON func(interface{}) error, clientID string, logger *slog.Logger) {
	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("connection closed unexpectedly", "error", err)
			}
			return
		}

		resp := s.dispatch(ctx, req, clientID)
		if err := writeJSON(resp); err != nil {
			logger.Debug("response write failed, closing", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request, clientID string) response {
	switch req.Method {
	case "workflow/run":
		return s.handleWorkflowRun(ctx, req, clientID)
	default:
		return response{ID: req.ID, Error: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

type workflowRunParams struct {
	Workflow workflow.Workflow `json:"workflow"`
}

type workflowRunResult struct {
	Receipts map[string]workflow.Receipt `json:"receipts"`
}

func (s *Server) handleWorkflowRun(ctx context.Context, req request, clientID string) response {
	if s.submitter == nil {
		return response{ID: req.ID, Error: "rpcserver: no submitter configured"}
	}

	var params workflowRunParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return response{ID: req.ID, Error: "invalid params: " + err.Error()}
	}

	s.logger.InfoContext(ctx, "workflow submitted", "client_id", clientID)
	receipts, err := s.submitter.Submit(ctx, params.Workflow)
	if err != nil {
		return response{ID: req.ID, Error: err.Error()}
	}
	return response{ID: req.ID, Result: workflowRunResult{Receipts: receipts}}
}
