package compute

import (
	"context"
	"errors"
	"testing"

	"github.com/taikochain/proverd/internal/blockingpool"
	"github.com/taikochain/proverd/internal/circuitparams"
	"github.com/taikochain/proverd/internal/circuits"
	"github.com/taikochain/proverd/internal/keycache"
	"github.com/taikochain/proverd/internal/paramstore"
	"github.com/taikochain/proverd/internal/provertypes"
)

type fakeCircuit struct{ tag string }

func (c *fakeCircuit) Tag() string { return c.tag }

func init() {
	circuits.Register("compute-test", func(cfg provertypes.CircuitConfig, w circuits.Witness) (circuits.Circuit, error) {
		return &fakeCircuit{tag: "compute-test"}, nil
	})
}

type fakeFetcher struct {
	gasUsed uint64
	err     error
}

func (f fakeFetcher) Fetch(ctx context.Context, opts provertypes.ProofRequestOptions) (circuits.Witness, error) {
	if f.err != nil {
		return circuits.Witness{}, f.err
	}
	return circuits.Witness{GasUsed: f.gasUsed}, nil
}

type fakeEngine struct {
	mockErr  error
	proveErr error
	panicVal any
}

func (e *fakeEngine) MockProve(circuit circuits.Circuit, k int) ([]string, error) {
	if e.mockErr != nil {
		return nil, e.mockErr
	}
	return []string{"0x1"}, nil
}

func (e *fakeEngine) GenerateKeys(circuit circuits.Circuit, params *paramstore.Params) (any, error) {
	return "fake-key", nil
}

func (e *fakeEngine) Prove(circuit circuits.Circuit, key any, params *paramstore.Params) ([]byte, []string, []byte, error) {
	if e.panicVal != nil {
		panic(e.panicVal)
	}
	if e.proveErr != nil {
		return nil, nil, nil, e.proveErr
	}
	return []byte{0xAA, 0xBB}, []string{"0x2"}, []byte{0x01}, nil
}

func (e *fakeEngine) Verify(circuit circuits.Circuit, key any, proof []byte, instance []string) error {
	return nil
}

func (e *fakeEngine) BuildAggregation(cfg provertypes.CircuitConfig, innerProofs [][]byte) (circuits.Circuit, error) {
	return &fakeCircuit{tag: "compute-test-agg"}, nil
}

// lowBandGasUsed is any gas-used value inside circuitparams' first
// [0, 200_000) band, so tests can assert against its fixed CircuitConfig.
const lowBandGasUsed = 100

func TestCompute_MockBranch(t *testing.T) {
	w := &Wrapper{
		Engine:  &fakeEngine{},
		Fetcher: fakeFetcher{gasUsed: lowBandGasUsed},
		Keys:    keycache.New(nil),
		Pool:    blockingpool.New(2),
	}
	opts := provertypes.ProofRequestOptions{Circuit: "compute-test", Mock: true}

	wantCfg, _ := circuitparams.Lookup(lowBandGasUsed)
	proofs, err := w.Compute(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proofs.Circuit.K != uint8(wantCfg.MinK) {
		t.Errorf("expected K=%d, got %d", wantCfg.MinK, proofs.Circuit.K)
	}
	if proofs.Circuit.Aux.Mock == 0 {
		t.Errorf("expected non-zero mock timing")
	}
	if len(proofs.Circuit.Proof) != 0 {
		t.Errorf("expected no proof bytes on mock branch, got %d bytes", len(proofs.Circuit.Proof))
	}
}

func TestCompute_RealBranchNonAggregate(t *testing.T) {
	w := &Wrapper{
		Engine:  &fakeEngine{},
		Fetcher: fakeFetcher{gasUsed: lowBandGasUsed},
		Keys:    keycache.New(nil),
		Pool:    blockingpool.New(2),
	}
	opts := provertypes.ProofRequestOptions{Circuit: "compute-test", Mock: false}

	proofs, err := w.Compute(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proofs.Circuit.Proof) == 0 {
		t.Errorf("expected proof bytes on real branch")
	}
	if proofs.Circuit.Aux.PK == 0 && proofs.Circuit.Aux.VK == 0 {
		t.Errorf("expected non-zero key generation timings")
	}
	if len(proofs.Aggregation.Proof) != 0 {
		t.Errorf("expected aggregation proof to stay empty when aggregate is false")
	}
}

func TestCompute_RealBranchAggregate(t *testing.T) {
	w := &Wrapper{
		Engine:  &fakeEngine{},
		Fetcher: fakeFetcher{gasUsed: lowBandGasUsed},
		Keys:    keycache.New(nil),
		Pool:    blockingpool.New(2),
	}
	opts := provertypes.ProofRequestOptions{Circuit: "compute-test", Aggregate: true}

	proofs, err := w.Compute(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proofs.Circuit.Proof) == 0 {
		t.Errorf("expected inner circuit proof bytes")
	}
	if len(proofs.Aggregation.Proof) == 0 {
		t.Errorf("expected aggregation proof bytes")
	}
}

func TestCompute_WitnessFetchErrorPropagates(t *testing.T) {
	wantErr := errors.New("rpc down")
	w := &Wrapper{
		Engine:  &fakeEngine{},
		Fetcher: fakeFetcher{err: wantErr},
		Keys:    keycache.New(nil),
		Pool:    blockingpool.New(2),
	}
	opts := provertypes.ProofRequestOptions{Circuit: "compute-test", Mock: true}

	_, err := w.Compute(context.Background(), opts)
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped witness fetch error, got %v", err)
	}
}

func TestCompute_ProvePanicBecomesError(t *testing.T) {
	w := &Wrapper{
		Engine:  &fakeEngine{panicVal: "boom"},
		Fetcher: fakeFetcher{gasUsed: lowBandGasUsed},
		Keys:    keycache.New(nil),
		Pool:    blockingpool.New(2),
	}
	opts := provertypes.ProofRequestOptions{Circuit: "compute-test", Mock: false}

	_, err := w.Compute(context.Background(), opts)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected panic message %q, got %v", "boom", err)
	}
}

func TestCompute_UnknownCircuitTagPanics(t *testing.T) {
	w := &Wrapper{
		Engine:  &fakeEngine{},
		Fetcher: fakeFetcher{gasUsed: lowBandGasUsed},
		Keys:    keycache.New(nil),
		Pool:    blockingpool.New(2),
	}
	opts := provertypes.ProofRequestOptions{Circuit: "no-such-tag", Mock: true}

	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for unknown circuit tag")
		}
	}()
	w.Compute(context.Background(), opts)
}

func TestCompute_NoFitGasUsedReturnsError(t *testing.T) {
	w := &Wrapper{
		Engine:  &fakeEngine{},
		Fetcher: fakeFetcher{gasUsed: 1_000_000_000},
		Keys:    keycache.New(nil),
		Pool:    blockingpool.New(2),
	}
	opts := provertypes.ProofRequestOptions{Circuit: "compute-test", Mock: true}

	_, err := w.Compute(context.Background(), opts)
	wantMsg := "No circuit parameters found for block with gas used=1000000000"
	if err == nil || err.Error() != wantMsg {
		t.Fatalf("expected %q, got %v", wantMsg, err)
	}
}
