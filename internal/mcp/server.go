package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
)

// DefaultRequestTimeout bounds one endpoint call end to end.
const DefaultRequestTimeout = 30 * time.Second

type rpcRequest struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *Envelope       `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type ServerOptions struct {
	Addr string
	// Path is the HTTP path serving JSON-RPC; defaults to /mcp.
	Path           string
	Handler        *Handler
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// Server speaks JSON-RPC 2.0 over HTTP POST. One method per endpoint; the
// result of every successful call is the standard response envelope.
type Server struct {
	handler *Handler
	timeout time.Duration
	log     zerolog.Logger

	listener net.Listener
	srv      *http.Server
}

func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("mcp: handler is required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("mcp: listen on %s: %w", opts.Addr, err)
	}

	s := &Server{
		handler:  opts.Handler,
		timeout:  opts.RequestTimeout,
		log:      opts.Logger,
		listener: listener,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(opts.Path, s.handleRPC)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Addr reports the bound address, which matters when the configured port
// was 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(s.listener) }()
	s.log.Info().Str("addr", s.Addr()).Msg("endpoint server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, rpcResponse{
			Version: "2.0",
			Error:   &rpcError{Code: rpcParseError, Message: "parse error"},
		})
		return
	}
	if req.Version != "2.0" || req.Method == "" {
		writeRPC(w, rpcResponse{
			Version: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: rpcInvalidRequest, Message: "invalid request"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	env, ok := s.handler.Dispatch(ctx, req.Method, req.Params)
	if !ok {
		writeRPC(w, rpcResponse{
			Version: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: rpcMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)},
		})
		return
	}
	writeRPC(w, rpcResponse{Version: "2.0", ID: req.ID, Result: &env})
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// headers are already out; nothing left to report to the client
		return
	}
}
