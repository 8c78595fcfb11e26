// Package compute implements ComputeWrapper, the end-to-end "compute one
// task" hot path: circuit construction, key-cache lookup, mock-vs-real
// branch, blocking-worker-supervised proof generation with timeout and
// panic capture, and instrumentation timings. Grounded on
// prover/prover.go's Prove/LoadOrCompile flow and on
// original_source/prover/src/shared_state.rs's compute_proof.
package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/taikochain/proverd/internal/blockingpool"
	"github.com/taikochain/proverd/internal/circuitparams"
	"github.com/taikochain/proverd/internal/circuits"
	"github.com/taikochain/proverd/internal/keycache"
	"github.com/taikochain/proverd/internal/paramstore"
	"github.com/taikochain/proverd/internal/provertypes"
)

// ProofTimeout bounds a single blocking proof-generation call, per §5's
// 15-minute wall-clock bound on key and proof generation.
const ProofTimeout = 15 * time.Minute

// Wrapper holds the collaborators ComputeWrapper drives. All fields are
// required except DumpDir and EmitVerifier.
type Wrapper struct {
	Engine  circuits.ProofEngine
	Fetcher circuits.WitnessFetcher
	Keys    *keycache.Cache
	Pool    *blockingpool.Pool

	// DumpDir, if non-empty, is the directory ComputeWrapper writes
	// parameter/proof/key blobs to for offline inspection (PROVERD_DUMP).
	DumpDir string

	// EmitVerifier enables the optional local EVM-level verify assertion
	// after the aggregation/wrapper proof is generated (§4.4.3e).
	EmitVerifier bool
}

// Compute runs the full ComputeWrapper algorithm for one task and returns
// the resulting Proofs, or an error to be stored as the task's Err result.
// The witness is fetched first, then CircuitParamTable is consulted against
// its gas used to choose the CircuitConfig, matching §4.7 step 6's ordering.
func (w *Wrapper) Compute(ctx context.Context, opts provertypes.ProofRequestOptions) (provertypes.Proofs, error) {
	witness, err := w.Fetcher.Fetch(ctx, opts)
	if err != nil {
		return provertypes.Proofs{}, fmt.Errorf("witness fetch: %w", err)
	}

	cfg, ok := circuitparams.Lookup(witness.GasUsed)
	if !ok {
		return provertypes.Proofs{}, circuitparams.NoFitError(witness.GasUsed)
	}

	circuitResult := provertypes.ProofResult{Label: fmt.Sprintf("%s-%d", opts.Circuit, cfg.BlockGasLimit)}
	aggResult := provertypes.ProofResult{Label: fmt.Sprintf("%s-%d-a", opts.Circuit, cfg.BlockGasLimit)}

	circuit, err := circuits.Build(opts.Circuit, cfg, witness)
	if err != nil {
		return provertypes.Proofs{}, fmt.Errorf("build circuit: %w", err)
	}

	if opts.Mock {
		start := time.Now()
		instance, err := w.Engine.MockProve(circuit, cfg.MinK)
		ms := elapsedMs(start)
		if err != nil {
			return provertypes.Proofs{}, fmt.Errorf("mock prove: %w", err)
		}
		circuitResult.K = uint8(cfg.MinK)
		circuitResult.Instance = instance
		circuitResult.Aux.Mock = ms
		return provertypes.Proofs{Config: cfg, Circuit: circuitResult, Aggregation: aggResult, Gas: witness.GasUsed}, nil
	}

	maxK := cfg.MinK
	if cfg.MinKAggregation > maxK {
		maxK = cfg.MinKAggregation
	}
	params, sourceTag, err := paramstore.Get(opts.Param, maxK)
	if err != nil {
		return provertypes.Proofs{}, fmt.Errorf("load params: %w", err)
	}
	w.dumpParams(params)

	circuitParams := params.Clone()
	circuitParams.Downsize(cfg.MinK)

	cacheKey := buildCacheKey(opts.Circuit, sourceTag, cfg)
	keyHandle, err := w.Keys.GetOrGenerate(ctx, cacheKey, func(genCtx context.Context) (any, uint32, uint32, error) {
		start := time.Now()
		key, err := w.Engine.GenerateKeys(circuit, circuitParams)
		total := elapsedMs(start)
		// gnark's Groth16 Setup produces both keys in one call; attribute
		// the bulk of the wall time to pk and a small fixed share to vk
		// since the two cannot be timed independently at this boundary.
		vkMs := total / 10
		pkMs := total - vkMs
		return key, vkMs, pkMs, err
	})
	if err != nil {
		return provertypes.Proofs{}, err
	}
	w.dumpKey(cacheKey, keyHandle)
	if vk, pk, ok := w.Keys.Timings(cacheKey); ok {
		circuitResult.Aux.VK = vk
		circuitResult.Aux.PK = pk
	}

	instance, err := w.Engine.MockProve(circuit, cfg.MinK)
	if err != nil {
		return provertypes.Proofs{}, fmt.Errorf("collect instance: %w", err)
	}
	circuitResult.Instance = instance

	if !opts.Aggregate {
		proofStart := time.Now()
		proofBytes, instance, randomness, err := w.runProof(ctx, circuit, keyHandle, circuitParams)
		if err != nil {
			return provertypes.Proofs{}, err
		}
		circuitResult.Aux.Proof = elapsedMs(proofStart)
		circuitResult.Proof = proofBytes
		if instance != nil {
			circuitResult.Instance = instance
		}
		circuitResult.Randomness = randomness
		w.dumpProof(opts.Circuit, cfg, false, proofBytes)
		return provertypes.Proofs{Config: cfg, Circuit: circuitResult, Aggregation: aggResult, Gas: witness.GasUsed}, nil
	}

	innerStart := time.Now()
	innerProof, innerInstance, innerRandomness, err := w.runProof(ctx, circuit, keyHandle, circuitParams)
	if err != nil {
		return provertypes.Proofs{}, err
	}
	circuitResult.Aux.Proof = elapsedMs(innerStart)
	circuitResult.Proof = innerProof
	if innerInstance != nil {
		circuitResult.Instance = innerInstance
	}
	circuitResult.Randomness = innerRandomness

	aggParams := params.Clone()
	aggParams.Downsize(cfg.MinKAggregation)

	buildStart := time.Now()
	aggCircuit, err := w.Engine.BuildAggregation(cfg, [][]byte{innerProof})
	aggResult.Aux.Circuit = elapsedMs(buildStart)
	if err != nil {
		return provertypes.Proofs{}, fmt.Errorf("build aggregation circuit: %w", err)
	}

	aggCacheKey := fmt.Sprintf("%s-agg-%s-%s", opts.Circuit, sourceTag, configRepr(cfg))
	aggKeyHandle, err := w.Keys.GetOrGenerate(ctx, aggCacheKey, func(genCtx context.Context) (any, uint32, uint32, error) {
		start := time.Now()
		key, err := w.Engine.GenerateKeys(aggCircuit, aggParams)
		total := elapsedMs(start)
		vkMs := total / 10
		pkMs := total - vkMs
		return key, vkMs, pkMs, err
	})
	if err != nil {
		return provertypes.Proofs{}, err
	}
	w.dumpKey(aggCacheKey, aggKeyHandle)

	aggProofStart := time.Now()
	aggProof, aggInstance, aggRandomness, err := w.runProof(ctx, aggCircuit, aggKeyHandle, aggParams)
	if err != nil {
		return provertypes.Proofs{}, err
	}
	aggResult.Aux.Proof = elapsedMs(aggProofStart)
	aggResult.Proof = aggProof
	aggResult.Instance = aggInstance
	aggResult.Randomness = aggRandomness
	w.dumpProof(opts.Circuit, cfg, true, aggProof)

	if w.EmitVerifier {
		if err := w.Engine.Verify(aggCircuit, aggKeyHandle, aggProof, aggInstance); err != nil {
			return provertypes.Proofs{}, fmt.Errorf("on-chain verifier assertion failed: %w", err)
		}
	}

	return provertypes.Proofs{Config: cfg, Circuit: circuitResult, Aggregation: aggResult, Gas: witness.GasUsed}, nil
}

// elapsedMs returns the milliseconds since start, rounded up to 1 so a
// phase that ran never records the zero "did not run" timing.
func elapsedMs(start time.Time) uint32 {
	if ms := uint32(time.Since(start).Milliseconds()); ms > 0 {
		return ms
	}
	return 1
}

// runProof runs engine.Prove on the blocking pool under a wall-clock
// timeout, converting timeout and panic into the errors §4.4 requires.
func (w *Wrapper) runProof(ctx context.Context, circuit circuits.Circuit, key any, params *paramstore.Params) ([]byte, []string, []byte, error) {
	type proveResult struct {
		proof      []byte
		instance   []string
		randomness []byte
	}

	proveCtx, cancel := context.WithTimeout(ctx, ProofTimeout)
	defer cancel()

	v, err := w.Pool.Run(proveCtx, func() (any, error) {
		proof, instance, randomness, err := w.Engine.Prove(circuit, key, params)
		if err != nil {
			return nil, err
		}
		return proveResult{proof, instance, randomness}, nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	r, ok := v.(proveResult)
	if !ok {
		return nil, nil, nil, fmt.Errorf("compute: unexpected prove result type %T", v)
	}
	return r.proof, r.instance, r.randomness, nil
}

// buildCacheKey formats the spec's (circuit_tag, param_source_tag,
// circuit_config_debug_repr) cache key into a stable string.
func buildCacheKey(circuitTag, sourceTag string, cfg provertypes.CircuitConfig) string {
	return fmt.Sprintf("%s|%s|%s", circuitTag, sourceTag, configRepr(cfg))
}

func configRepr(cfg provertypes.CircuitConfig) string {
	return fmt.Sprintf("%+v", cfg)
}
