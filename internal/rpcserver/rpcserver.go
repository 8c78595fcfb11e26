// Package rpcserver is the node's JSON-RPC 2.0 surface: proof, info and
// status, exposed to both clients and peers over a single HTTP endpoint.
// Grounded on prover/service.go's net/http ServeMux + encoding/json
// idiom, adapted from REST paths to a single JSON-RPC 2.0 dispatch table
// per §4.8 and §6's wire format.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taikochain/proverd/internal/provertypes"
	"github.com/taikochain/proverd/internal/queue"
)

// Backend is everything the RPC surface needs from the node; internal/node
// implements it, keeping this package free of a dependency on the node's
// duty-cycle machinery.
type Backend interface {
	Proof(ctx context.Context, opts provertypes.ProofRequestOptions) (queue.Outcome, error)
	Info() provertypes.NodeInformation
	Status() provertypes.NodeStatus
}

// request is a JSON-RPC 2.0 request envelope. Params is a positional
// array per §6.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// response is a JSON-RPC 2.0 response envelope.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codePending        = -32001
	codeInternal       = -32603
)

// Server is the JSON-RPC 2.0 HTTP handler.
type Server struct {
	backend Backend
	log     *slog.Logger
}

// New constructs a Server over backend. log may be nil to use slog's
// default handler.
func New(backend Backend, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{backend: backend, log: log}
}

// Handler returns the net/http handler for the RPC surface: a single
// JSON-RPC 2.0 endpoint at POST /.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	return mux
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, codeParseError, "parse error")
		return
	}

	result, rpcErr := s.dispatch(r.Context(), req.Method, req.Params)
	if rpcErr != nil {
		s.writeError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	s.writeResult(w, req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *rpcError) {
	switch method {
	case "proof":
		var p [1]provertypes.ProofRequestOptions
		if err := decodePositional(params, &p); err != nil {
			return nil, &rpcError{codeInvalidParams, err.Error()}
		}
		outcome, err := s.backend.Proof(ctx, p[0])
		if err != nil {
			return nil, &rpcError{codeInternal, err.Error()}
		}
		if outcome.Pending {
			return nil, &rpcError{codePending, "pending"}
		}
		if outcome.Err != "" {
			return nil, &rpcError{codeInternal, outcome.Err}
		}
		return outcome.Proof, nil

	case "info":
		return s.backend.Info(), nil

	case "status":
		return s.backend.Status(), nil

	default:
		return nil, &rpcError{codeMethodNotFound, "method not found: " + method}
	}
}

// decodePositional unmarshals a JSON-RPC positional-array params field
// into exactly len(out) typed slots.
func decodePositional(params json.RawMessage, out *[1]provertypes.ProofRequestOptions) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return errors.New("params must be a positional array")
	}
	if len(raw) != 1 {
		return errors.New("proof expects exactly one params element")
	}
	return json.Unmarshal(raw[0], &out[0])
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: id, Result: result}); err != nil {
		s.log.Error("rpcserver: encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: id, Error: &rpcError{code, message}}); err != nil {
		s.log.Error("rpcserver: encode error response", "error", err)
	}
}
