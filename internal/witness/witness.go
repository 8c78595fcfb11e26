// Package witness is the external WitnessFetcher contract: turning a
// client's ProofRequestOptions into the opaque Witness ComputeWrapper
// consults for its gas-used circuit lookup. Blockchain RPC access and
// circuit-specific witness derivation are out of scope per spec §1; this
// package only owns the one field the core cares about (gas used) plus a
// thin, real HTTP/JSON-RPC round trip to a chain node, in the same plain
// net/http style internal/rpcclient uses for peer calls.
package witness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/taikochain/proverd/internal/circuits"
	"github.com/taikochain/proverd/internal/provertypes"
)

// FetchTimeout bounds a single witness fetch call.
const FetchTimeout = 5 * time.Second

// Fetcher implements circuits.WitnessFetcher against an Ethereum-style
// JSON-RPC endpoint, reading eth_getBlockByNumber's gasUsed field. It is
// the one concrete WitnessFetcher this repository ships; any deployment
// with circuit-specific witness derivation would swap in its own
// implementation of the same interface.
type Fetcher struct {
	HTTP *http.Client
}

// New constructs a Fetcher with a bounded default HTTP client.
func New() *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: FetchTimeout}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type blockHeader struct {
	GasUsed string `json:"gasUsed"`
}

// Fetch calls opts.RPC's eth_getBlockByNumber for opts.Block and returns a
// Witness carrying the block's gas used. The protocol-instance payload is
// passed through verbatim as opaque witness data; this package never
// interprets its contents, per §1's "witness derivation... out of scope."
func (f *Fetcher) Fetch(ctx context.Context, opts provertypes.ProofRequestOptions) (circuits.Witness, error) {
	if opts.RPC == "" {
		return circuits.Witness{}, fmt.Errorf("witness: options have no rpc endpoint")
	}

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_getBlockByNumber",
		Params:  []any{fmt.Sprintf("0x%x", opts.Block), false},
	})
	if err != nil {
		return circuits.Witness{}, fmt.Errorf("witness: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.RPC, bytes.NewReader(reqBody))
	if err != nil {
		return circuits.Witness{}, fmt.Errorf("witness: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return circuits.Witness{}, fmt.Errorf("witness: fetch block %d: %w", opts.Block, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return circuits.Witness{}, fmt.Errorf("witness: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return circuits.Witness{}, fmt.Errorf("witness: rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	var header blockHeader
	if err := json.Unmarshal(rpcResp.Result, &header); err != nil {
		return circuits.Witness{}, fmt.Errorf("witness: unmarshal block header: %w", err)
	}

	gasUsed, err := parseHexUint(header.GasUsed)
	if err != nil {
		return circuits.Witness{}, fmt.Errorf("witness: parse gasUsed %q: %w", header.GasUsed, err)
	}

	data := make(map[string]string, len(opts.Protocol))
	for k, v := range opts.Protocol {
		data[k] = v
	}

	return circuits.Witness{GasUsed: gasUsed, Data: data}, nil
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex value %q", s)
	}
	return n.Uint64(), nil
}
