// Package gnarkengine is the concrete ProofEngine backed by
// github.com/consensys/gnark and github.com/consensys/gnark-crypto, laid
// out on the recursive three-curve proof topology: circuit proofs on
// BLS12-377, aggregation on BW6-761 (which verifies BLS12-377 natively,
// since BW6-761's base field equals BLS12-377's scalar field), and a BN254
// wrapper role. The wrapper prover is constructed but no Engine method
// uses it, so no BN254 wrapper proof is produced.
package gnarkengine

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// role identifies a circuit's position in the recursion stack.
type role int

const (
	roleCircuit role = iota
	roleAggregation
	roleWrapper
)

var curveForRole = map[role]ecc.ID{
	roleCircuit:     ecc.BLS12_377,
	roleAggregation: ecc.BW6_761,
	roleWrapper:     ecc.BN254,
}

// curveProver compiles, sets up, proves and verifies against one curve.
// Distinct compiled circuits are keyed by an opaque handle name so the
// same prover can serve every tag dispatched to it.
type curveProver struct {
	curve ecc.ID
	mu    sync.RWMutex
	cs    map[string]compiledCircuit
}

type compiledCircuit struct {
	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey
}

func newCurveProver(r role) *curveProver {
	return &curveProver{curve: curveForRole[r], cs: make(map[string]compiledCircuit)}
}

// compile compiles circuit to an R1CS over this curve's scalar field.
func (cp *curveProver) compile(circuit frontend.Circuit) (constraint.ConstraintSystem, error) {
	cs, err := frontend.Compile(cp.curve.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("gnarkengine: compile on %s: %w", cp.curve, err)
	}
	return cs, nil
}

// setup runs trusted setup for an already-compiled circuit and stores the
// result under handle for later Prove/Verify calls.
func (cp *curveProver) setup(handle string, cs constraint.ConstraintSystem) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, nil, fmt.Errorf("gnarkengine: setup on %s: %w", cp.curve, err)
	}
	cp.mu.Lock()
	cp.cs[handle] = compiledCircuit{cs: cs, pk: pk, vk: vk}
	cp.mu.Unlock()
	return pk, vk, nil
}

func (cp *curveProver) get(handle string) (compiledCircuit, bool) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	cc, ok := cp.cs[handle]
	return cc, ok
}

func (cp *curveProver) prove(handle string, assignment frontend.Circuit) (groth16.Proof, witness.Witness, error) {
	cc, ok := cp.get(handle)
	if !ok {
		return nil, nil, fmt.Errorf("gnarkengine: handle %q not compiled on %s", handle, cp.curve)
	}
	fullWitness, err := frontend.NewWitness(assignment, cp.curve.ScalarField())
	if err != nil {
		return nil, nil, fmt.Errorf("gnarkengine: witness: %w", err)
	}
	proof, err := groth16.Prove(cc.cs, cc.pk, fullWitness)
	if err != nil {
		return nil, nil, fmt.Errorf("gnarkengine: prove: %w", err)
	}
	pubWitness, err := fullWitness.Public()
	if err != nil {
		return nil, nil, fmt.Errorf("gnarkengine: public witness: %w", err)
	}
	return proof, pubWitness, nil
}

func (cp *curveProver) verify(handle string, proof groth16.Proof, pubWitness witness.Witness) error {
	cc, ok := cp.get(handle)
	if !ok {
		return fmt.Errorf("gnarkengine: handle %q not compiled on %s", handle, cp.curve)
	}
	return groth16.Verify(proof, cc.vk, pubWitness)
}
