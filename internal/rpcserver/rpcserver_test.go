package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/taikochain/proverd/internal/provertypes"
	"github.com/taikochain/proverd/internal/queue"
)

type fakeBackend struct {
	proofOutcome queue.Outcome
	proofErr     error
	info         provertypes.NodeInformation
	status       provertypes.NodeStatus
	gotOpts      provertypes.ProofRequestOptions
}

func (b *fakeBackend) Proof(ctx context.Context, opts provertypes.ProofRequestOptions) (queue.Outcome, error) {
	b.gotOpts = opts
	return b.proofOutcome, b.proofErr
}
func (b *fakeBackend) Info() provertypes.NodeInformation { return b.info }
func (b *fakeBackend) Status() provertypes.NodeStatus    { return b.status }

func doRequest(t *testing.T, srv *Server, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
	return out
}

func TestProofPending(t *testing.T) {
	backend := &fakeBackend{proofOutcome: queue.Outcome{Pending: true}}
	srv := New(backend, nil)

	out := doRequest(t, srv, `{"jsonrpc":"2.0","id":1,"method":"proof","params":[{"circuit":"pi","block":10,"rpc":"http://x","mock":true}]}`)
	errObj, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope for pending, got %+v", out)
	}
	if errObj["message"] != "pending" {
		t.Errorf("message = %v, want pending", errObj["message"])
	}
	if backend.gotOpts.Circuit != "pi" || backend.gotOpts.Block != 10 {
		t.Errorf("backend did not receive decoded options: %+v", backend.gotOpts)
	}
}

func TestProofOk(t *testing.T) {
	backend := &fakeBackend{proofOutcome: queue.Outcome{Proof: provertypes.Proofs{Gas: 42}}}
	srv := New(backend, nil)

	out := doRequest(t, srv, `{"jsonrpc":"2.0","id":1,"method":"proof","params":[{"circuit":"pi","block":10,"rpc":"http://x"}]}`)
	if out["error"] != nil {
		t.Fatalf("unexpected error: %+v", out["error"])
	}
	result, ok := out["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %+v", out)
	}
	if result["gas"].(float64) != 42 {
		t.Errorf("gas = %v, want 42", result["gas"])
	}
}

func TestInfoAndStatus(t *testing.T) {
	backend := &fakeBackend{
		info:   provertypes.NodeInformation{ID: "abc"},
		status: provertypes.NodeStatus{ID: "abc", Obtained: true},
	}
	srv := New(backend, nil)

	out := doRequest(t, srv, `{"jsonrpc":"2.0","id":1,"method":"info","params":[]}`)
	result := out["result"].(map[string]any)
	if result["id"] != "abc" {
		t.Errorf("info id = %v, want abc", result["id"])
	}

	out = doRequest(t, srv, `{"jsonrpc":"2.0","id":1,"method":"status","params":[]}`)
	result = out["result"].(map[string]any)
	if result["obtained"] != true {
		t.Errorf("status obtained = %v, want true", result["obtained"])
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(&fakeBackend{}, nil)
	out := doRequest(t, srv, `{"jsonrpc":"2.0","id":1,"method":"bogus","params":[]}`)
	errObj, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error for unknown method, got %+v", out)
	}
	if errObj["code"].(float64) != codeMethodNotFound {
		t.Errorf("code = %v, want %d", errObj["code"], codeMethodNotFound)
	}
}

func TestParseError(t *testing.T) {
	srv := New(&fakeBackend{}, nil)
	out := doRequest(t, srv, `not json`)
	errObj, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected parse error, got %+v", out)
	}
	if errObj["code"].(float64) != codeParseError {
		t.Errorf("code = %v, want %d", errObj["code"], codeParseError)
	}
}
