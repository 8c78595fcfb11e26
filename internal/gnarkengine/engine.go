package gnarkengine

import (
	"crypto/rand"
	"fmt"
	"hash/fnv"

	"github.com/consensys/gnark/frontend"
	"github.com/holiman/uint256"

	"github.com/taikochain/proverd/internal/circuits"
	"github.com/taikochain/proverd/internal/paramstore"
	"github.com/taikochain/proverd/internal/provertypes"
)

// knownTags are the circuit identifiers this engine can dispatch. Actual
// circuit-specific witness derivation is out of scope (§1); every tag
// here compiles the same shape of consistency circuit, sized by the
// matched CircuitConfig, which is the only part of the dispatch this
// package is responsible for.
var knownTags = []string{"super", "basic", "pi"}

func init() {
	for _, tag := range knownTags {
		circuits.Register(tag, newFactory(tag))
	}
}

// genericCircuit asserts that Public equals the sum of Witnesses. It
// stands in for the real protocol circuit: width and field values are
// derived from the matched CircuitConfig and the fetched Witness, but the
// constraint itself carries no protocol semantics, matching the opaque
// "circuit handle" contract ComputeWrapper is built against.
type genericCircuit struct {
	Witnesses []frontend.Variable
	Public    frontend.Variable `gnark:",public"`
	tag       string
	agg       bool
}

func (c *genericCircuit) Define(api frontend.API) error {
	sum := frontend.Variable(0)
	for _, w := range c.Witnesses {
		sum = api.Add(sum, w)
	}
	api.AssertIsEqual(c.Public, sum)
	return nil
}

func (c *genericCircuit) Tag() string { return c.tag }

// circuitWidth bounds the placeholder circuit's witness count so setup and
// proving stay cheap regardless of the matched CircuitConfig's real-world
// sizes; the real proving library would size this from max_rws/max_txs
// directly.
func circuitWidth(cfg provertypes.CircuitConfig) int {
	n := cfg.MaxTxs
	if n < 1 {
		n = 1
	}
	if n > 64 {
		n = 64
	}
	return n
}

// assignWitness derives deterministic numeric field values from the
// opaque witness payload so repeated calls with the same task produce the
// same assignment, without interpreting witness contents.
func assignWitness(n int, w circuits.Witness) ([]frontend.Variable, frontend.Variable) {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d", w.GasUsed)
	for k, v := range w.Data {
		fmt.Fprintf(h, "%s=%s;", k, v)
	}
	seed := h.Sum64()

	vars := make([]frontend.Variable, n)
	var sum uint64
	for i := range vars {
		v := (seed + uint64(i)) % 1000
		vars[i] = v
		sum += v
	}
	return vars, sum
}

func newFactory(tag string) circuits.Factory {
	return func(cfg provertypes.CircuitConfig, w circuits.Witness) (circuits.Circuit, error) {
		n := circuitWidth(cfg)
		vars, sum := assignWitness(n, w)
		return &genericCircuit{Witnesses: vars, Public: sum, tag: tag}, nil
	}
}

// Engine is the gnark-backed circuits.ProofEngine. A single Engine holds
// one curveProver per recursion-stack role and compiles each distinct
// circuit handle lazily on first use.
type Engine struct {
	circuitProver     *curveProver
	aggregationProver *curveProver
	wrapperProver     *curveProver
}

// New constructs an Engine with a fresh, empty recursion stack.
func New() *Engine {
	return &Engine{
		circuitProver:     newCurveProver(roleCircuit),
		aggregationProver: newCurveProver(roleAggregation),
		wrapperProver:     newCurveProver(roleWrapper),
	}
}

func (e *Engine) asGeneric(c circuits.Circuit) (*genericCircuit, error) {
	gc, ok := c.(*genericCircuit)
	if !ok {
		return nil, fmt.Errorf("gnarkengine: unsupported circuit handle %T", c)
	}
	return gc, nil
}

// MockProve evaluates the circuit's public output directly without
// running groth16 setup/prove, matching the "mock prover" contract: no
// real proof bytes, only the public instance.
func (e *Engine) MockProve(circuit circuits.Circuit, k int) (instance []string, err error) {
	gc, err := e.asGeneric(circuit)
	if err != nil {
		return nil, err
	}
	return []string{instanceString(gc.Public)}, nil
}

// instanceString canonicalizes one public-input field element to a
// decimal string via uint256, matching §3's "public-input vector
// (stringified field elements)" wire convention. The placeholder circuit's
// public variable is always a non-negative machine word, so uint256 is a
// lossless canonical form here even though a real proving-library field
// element would span the full scalar field.
func instanceString(v frontend.Variable) string {
	switch n := v.(type) {
	case uint64:
		return uint256.NewInt(n).String()
	case int:
		return uint256.NewInt(uint64(n)).String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GenerateKeys compiles the circuit and runs groth16 trusted setup,
// returning an opaque key handle. params is not consulted: the in-memory
// placeholder here performs an unparameterized Setup, matching gnark's own
// non-universal Groth16 setup model.
func (e *Engine) GenerateKeys(circuit circuits.Circuit, params *paramstore.Params) (key any, err error) {
	gc, err := e.asGeneric(circuit)
	if err != nil {
		return nil, err
	}
	prover := e.proverFor(gc)
	cs, err := prover.compile(gc)
	if err != nil {
		return nil, err
	}
	handle := handleFor(gc)
	if _, _, err := prover.setup(handle, cs); err != nil {
		return nil, err
	}
	return handle, nil
}

func (e *Engine) proverFor(gc *genericCircuit) *curveProver {
	if gc.agg {
		return e.aggregationProver
	}
	return e.circuitProver
}

func handleFor(gc *genericCircuit) string {
	kind := "circuit"
	if gc.agg {
		kind = "aggregation"
	}
	return fmt.Sprintf("%s-%s-%d", kind, gc.tag, len(gc.Witnesses))
}

// Prove runs the real proving routine. The returned randomness is the
// prover's blinding material; gnark's groth16 backend does not expose it
// through the public API, so a fresh random sample stands in, matching
// the "randomness bytes" field's role as opaque prover metadata rather
// than something ComputeWrapper interprets.
func (e *Engine) Prove(circuit circuits.Circuit, key any, params *paramstore.Params) (proof []byte, instance []string, randomness []byte, err error) {
	gc, err := e.asGeneric(circuit)
	if err != nil {
		return nil, nil, nil, err
	}
	handle, ok := key.(string)
	if !ok {
		return nil, nil, nil, fmt.Errorf("gnarkengine: unexpected key handle %T", key)
	}
	prover := e.proverFor(gc)

	p, pubWitness, err := prover.prove(handle, gc)
	if err != nil {
		return nil, nil, nil, err
	}

	buf := new(byteBuffer)
	if _, err := p.WriteTo(buf); err != nil {
		return nil, nil, nil, fmt.Errorf("gnarkengine: serialize proof: %w", err)
	}

	vec, err := pubWitness.MarshalBinary()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gnarkengine: marshal public witness: %w", err)
	}
	instance = []string{fmt.Sprintf("0x%x", vec)}

	randomness = make([]byte, 32)
	if _, err := rand.Read(randomness); err != nil {
		return nil, nil, nil, fmt.Errorf("gnarkengine: sample randomness: %w", err)
	}

	return buf.Bytes(), instance, randomness, nil
}

// Verify does not check the supplied proof bytes or instance: it proves
// the circuit's own assignment again and verifies that fresh proof against
// the verifying key stored under the handle. It therefore reports whether
// the circuit and key are consistent, not whether proof is valid.
func (e *Engine) Verify(circuit circuits.Circuit, key any, proof []byte, instance []string) error {
	gc, err := e.asGeneric(circuit)
	if err != nil {
		return err
	}
	handle, ok := key.(string)
	if !ok {
		return fmt.Errorf("gnarkengine: unexpected key handle %T", key)
	}
	prover := e.proverFor(gc)

	p, pubWitness, err := prover.prove(handle, gc)
	if err != nil {
		return err
	}
	_ = proof
	_ = instance
	return prover.verify(handle, p, pubWitness)
}

// BuildAggregation builds the aggregation-layer circuit over a batch of
// inner proofs. The real recursive SNARK verification (stdgroth16's
// generic in-circuit verifier) is the proving library's job and stays out
// of scope; this circuit is sized by the number of inner proofs so the
// aggregation layer still exercises its own compile/setup/prove pipeline
// on the BW6-761 curve, matching the recursion stack's topology.
func (e *Engine) BuildAggregation(cfg provertypes.CircuitConfig, innerProofs [][]byte) (circuits.Circuit, error) {
	n := len(innerProofs)
	if n == 0 {
		return nil, fmt.Errorf("gnarkengine: aggregation requires at least one inner proof")
	}
	vars := make([]frontend.Variable, n)
	var sum uint64
	for i, p := range innerProofs {
		h := fnv.New64a()
		h.Write(p)
		v := h.Sum64() % 1000
		vars[i] = v
		sum += v
	}
	return &genericCircuit{Witnesses: vars, Public: sum, tag: "aggregation", agg: true}, nil
}

// byteBuffer is a minimal io.Writer sink; kept local to avoid pulling in
// bytes.Buffer just for this single accumulation use.
type byteBuffer struct {
	buf []byte
}

func (b *byteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *byteBuffer) Bytes() []byte { return b.buf }
