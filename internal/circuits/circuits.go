// Package circuits defines the boundary contracts ComputeWrapper drives:
// an opaque witness fetcher, an opaque circuit handle, and the tagged
// circuit-factory dispatch keyed by a ProofRequestOptions.Circuit tag.
// Witness derivation and the proving library itself are out of scope
// (they live behind these interfaces); this package only owns the
// dispatch and the shapes everything else is built against.
package circuits

import (
	"context"
	"fmt"
	"sync"

	"github.com/taikochain/proverd/internal/paramstore"
	"github.com/taikochain/proverd/internal/provertypes"
)

// Witness is the opaque data a WitnessFetcher produces for a task: the
// gas-used value CircuitParamTable keys its lookup on, plus whatever
// circuit-specific fields the protocol instance carries. Its contents
// beyond GasUsed are never interpreted by this package.
type Witness struct {
	GasUsed uint64
	Data    map[string]string
}

// WitnessFetcher is the external contract that turns task options into a
// Witness. Implementations typically call out to a blockchain RPC
// endpoint; that client is out of scope here and lives in internal/witness
// only as a plain HTTP caller, never as a circuit-witness deriver.
type WitnessFetcher interface {
	Fetch(ctx context.Context, opts provertypes.ProofRequestOptions) (Witness, error)
}

// Circuit is an opaque, already-built circuit handle: a ProofEngine
// implementation's own representation of a compiled constraint system for
// one tag. ComputeWrapper never inspects it beyond the Tag it reports.
type Circuit interface {
	Tag() string
}

// Factory builds a Circuit for one circuit tag given the CircuitConfig
// CircuitParamTable matched and the fetched Witness.
type Factory func(cfg provertypes.CircuitConfig, w Witness) (Circuit, error)

// ProofEngine is the opaque, CPU-bound, panic-prone proving library
// contract. Every method may be slow and every method may panic.
// internal/compute runs Prove, and internal/keycache runs GenerateKeys, on
// internal/blockingpool under a timeout; internal/compute calls MockProve,
// BuildAggregation and Verify directly.
type ProofEngine interface {
	// MockProve evaluates the circuit without generating a real proof,
	// returning only the public instance. Used when options.mock is set.
	MockProve(circuit Circuit, k int) (instance []string, err error)

	// GenerateKeys derives a proving/verifying key pair for circuit sized
	// to params.K. The returned key is an opaque handle passed back into
	// Prove and Verify.
	GenerateKeys(circuit Circuit, params *paramstore.Params) (key any, err error)

	// Prove runs the real proving routine and returns the proof transcript,
	// the stringified public instance, and prover randomness bytes.
	Prove(circuit Circuit, key any, params *paramstore.Params) (proof []byte, instance []string, randomness []byte, err error)

	// Verify checks a proof against a verifying key handle and instance.
	Verify(circuit Circuit, key any, proof []byte, instance []string) error

	// BuildAggregation constructs the aggregation circuit over a set of
	// inner circuit proofs, for options.aggregate == true.
	BuildAggregation(cfg provertypes.CircuitConfig, innerProofs [][]byte) (Circuit, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs the circuit factory for a tag. Called from init()
// functions in packages that provide concrete circuits (internal/gnarkengine),
// matching the spec's "tagged variant, each arm compiled against the proper
// constant parameters" design note.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = f
}

// Build dispatches to the registered factory for tag. Panics with a message
// naming the tag if none is registered — an unknown circuit tag is fatal
// to the task per the error-handling design (recorded as a panic message
// by the caller).
func Build(tag string, cfg provertypes.CircuitConfig, w Witness) (Circuit, error) {
	registryMu.RLock()
	f, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("unknown circuit tag %q", tag))
	}
	return f(cfg, w)
}

// Registered reports the tags currently registered, for introspection and
// tests.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for t := range registry {
		tags = append(tags, t)
	}
	return tags
}
