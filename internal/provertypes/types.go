// Package provertypes holds the wire and in-memory data model shared by the
// task queue, peer gossip, compute wrapper and RPC surface: task records,
// proof results and node introspection types.
package provertypes

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ProtocolInstance is the opaque, circuit-specific payload a client attaches
// to a proof request (addresses, hashes, gas metadata). The coordinator
// never interprets its contents; it only compares it for task identity and
// forwards it to the ProofEngine.
type ProtocolInstance map[string]string

// ProofRequestOptions is the client-supplied job descriptor. Equality over
// this type (see Equal) defines task identity and therefore task dedup.
type ProofRequestOptions struct {
	Circuit      string           `json:"circuit"`
	Block        uint64           `json:"block"`
	RPC          string           `json:"rpc"`
	Protocol     ProtocolInstance `json:"protocol_instance"`
	Param        string           `json:"param,omitempty"`
	Retry        bool             `json:"retry"`
	Mock         bool             `json:"mock"`
	Aggregate    bool             `json:"aggregate"`
	MockFeedback bool             `json:"mock_feedback"`
	VerifyProof  bool             `json:"verify_proof"`
}

// Equal implements the structural-identity comparison from §3: block
// number, protocol-instance contents, RPC endpoint, parameter path, circuit
// tag, mock and aggregate. Retry, mock_feedback and verify_proof are
// deliberately excluded.
func (o ProofRequestOptions) Equal(other ProofRequestOptions) bool {
	if o.Block != other.Block ||
		o.RPC != other.RPC ||
		o.Param != other.Param ||
		o.Circuit != other.Circuit ||
		o.Mock != other.Mock ||
		o.Aggregate != other.Aggregate {
		return false
	}
	if len(o.Protocol) != len(other.Protocol) {
		return false
	}
	for k, v := range o.Protocol {
		if other.Protocol[k] != v {
			return false
		}
	}
	return true
}

// ProofResultInstrumentation carries millisecond timings for each phase of
// proof generation. A zero value means the phase did not run.
type ProofResultInstrumentation struct {
	VK              uint32 `json:"vk"`
	PK              uint32 `json:"pk"`
	Proof           uint32 `json:"proof"`
	Verify          uint32 `json:"verify"`
	Mock            uint32 `json:"mock"`
	Circuit         uint32 `json:"circuit"`
	ProtocolCompile uint32 `json:"protocol_compile"`
}

// ProofResult is a single proof artifact, either the circuit-level proof or
// the aggregation proof.
type ProofResult struct {
	Proof      HexBytes                   `json:"proof"`
	Instance   []string                   `json:"instance"`
	K          uint8                      `json:"k"`
	Randomness HexBytes                   `json:"randomness"`
	Label      string                     `json:"label"`
	Aux        ProofResultInstrumentation `json:"aux"`
}

// CircuitConfig is a fixed-size parameter record selected by a
// gas-used lookup in CircuitParamTable. See spec §3.
type CircuitConfig struct {
	BlockGasLimit   uint64 `json:"block_gas_limit"`
	MaxTxs          int    `json:"max_txs"`
	MaxCalldata     int    `json:"max_calldata"`
	MaxBytecode     int    `json:"max_bytecode"`
	MaxRws          int    `json:"max_rws"`
	MaxCopyRows     int    `json:"max_copy_rows"`
	MaxExpSteps     int    `json:"max_exp_steps"`
	MinK            int    `json:"min_k"`
	PadTo           int    `json:"pad_to"`
	MinKAggregation int    `json:"min_k_aggregation"`
	KeccakPadding   int    `json:"keccak_padding"`
}

// Proofs is the successful result of computing a task.
type Proofs struct {
	Config      CircuitConfig `json:"config"`
	Circuit     ProofResult   `json:"circuit"`
	Aggregation ProofResult   `json:"aggregation"`
	Gas         uint64        `json:"gas"`
}

// Result holds at most one of an Ok or Err outcome, or neither if the task
// is still pending. It mirrors the Rust `Option<Result<Proofs, String>>`
// from the original source.
type Result struct {
	Done  bool   `json:"done"`
	Err   string `json:"error,omitempty"`
	Proof Proofs `json:"proof,omitempty"`
}

// IsErr reports whether the result is a completed error.
func (r *Result) IsErr() bool {
	return r != nil && r.Done && r.Err != ""
}

// IsOk reports whether the result is a completed success.
func (r *Result) IsOk() bool {
	return r != nil && r.Done && r.Err == ""
}

// ProofRequest is a task record in the queue.
type ProofRequest struct {
	Options ProofRequestOptions `json:"options"`
	Result  *Result             `json:"result"`
	Edition uint64              `json:"edition"`
}

// Clone returns a deep-enough copy for safe cross-goroutine handoff: the
// Options map and Result are copied by value/new pointer so the original
// task is never mutated through an aliased reference.
func (t ProofRequest) Clone() ProofRequest {
	clone := t
	if t.Options.Protocol != nil {
		p := make(ProtocolInstance, len(t.Options.Protocol))
		for k, v := range t.Options.Protocol {
			p[k] = v
		}
		clone.Options.Protocol = p
	}
	if t.Result != nil {
		r := *t.Result
		clone.Result = &r
	}
	return clone
}

// NodeInformation is the full queue + self id snapshot returned by `info`.
type NodeInformation struct {
	ID    string         `json:"id"`
	Tasks []ProofRequest `json:"tasks"`
}

// NodeStatus is the self id, pending task and obtained flag returned by
// `status`.
type NodeStatus struct {
	ID       string               `json:"id"`
	Task     *ProofRequestOptions `json:"task"`
	Obtained bool                 `json:"obtained"`
}

// HexBytes marshals as a 0x-prefixed lowercase hex string, matching the
// opaque byte-string convention the proving library uses on the wire (§6).
type HexBytes []byte

// MarshalJSON implements json.Marshaler.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("hex bytes: %w", err)
	}
	s = strings.TrimPrefix(s, "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode hex bytes: %w", err)
	}
	*b = decoded
	return nil
}

// NewNodeID derives a 16-byte random hex node identifier using google/uuid
// as the entropy source, matching §3's "16-byte random hex" requirement
// without introducing a second random-id dependency.
func NewNodeID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])
}
