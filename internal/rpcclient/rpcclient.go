// Package rpcclient is the outbound JSON-RPC 2.0 caller PeerGossip uses to
// reach a peer's info/status/proof methods. No example repo carries a
// JSON-RPC client library (§4.6), so this is a small, direct net/http +
// encoding/json caller in the teacher's own plain-HTTP style
// (prover/service.go never reaches for a client library either).
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/taikochain/proverd/internal/provertypes"
)

// CallTimeout is the per-call deadline every outbound RPC is bound by,
// per §5's "every outbound RPC has a 5-second deadline."
const CallTimeout = 5 * time.Second

// Client calls a single peer's JSON-RPC 2.0 endpoint.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New constructs a Client against baseURL (e.g. "http://10.0.0.2:8080").
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: CallTimeout}}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Err is returned when the peer answers with a JSON-RPC error object.
// "pending" is not wrapped specially: PeerGossip's proof dispatch treats
// any non-nil error as a transient failure and continues, per §7's
// "errors in gossip loops are logged and swallowed."
type Err struct {
	Code    int
	Message string
}

func (e *Err) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	body, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("rpcclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpcclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("rpcclient: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("rpcclient: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return &Err{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("rpcclient: unmarshal result: %w", err)
		}
	}
	return nil
}

// Info calls the peer's info method.
func (c *Client) Info(ctx context.Context) (provertypes.NodeInformation, error) {
	var out provertypes.NodeInformation
	err := c.call(ctx, "info", []any{}, &out)
	return out, err
}

// Status calls the peer's status method.
func (c *Client) Status(ctx context.Context) (provertypes.NodeStatus, error) {
	var out provertypes.NodeStatus
	err := c.call(ctx, "status", []any{}, &out)
	return out, err
}

// Proof forwards a task to the peer's proof method for dispatch.
func (c *Client) Proof(ctx context.Context, opts provertypes.ProofRequestOptions) error {
	return c.call(ctx, "proof", []any{opts}, nil)
}
