package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taikochain/proverd/internal/provertypes"
)

func TestInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["method"] != "info" {
			t.Errorf("method = %v, want info", req["method"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"result": map[string]any{"id": "peer-1", "tasks": []any{}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	info, err := c.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.ID != "peer-1" {
		t.Errorf("ID = %q, want peer-1", info.ID)
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"result": map[string]any{"id": "peer-1", "obtained": true},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Obtained {
		t.Errorf("Obtained = false, want true")
	}
}

func TestProofForwardsOptions(t *testing.T) {
	var gotParams []provertypes.ProofRequestOptions
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params []provertypes.ProofRequestOptions `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotParams = req.Params
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": nil})
	}))
	defer srv.Close()

	c := New(srv.URL)
	opts := provertypes.ProofRequestOptions{Circuit: "pi", Block: 7}
	if err := c.Proof(context.Background(), opts); err != nil {
		t.Fatalf("Proof: %v", err)
	}
	if len(gotParams) != 1 || gotParams[0].Circuit != "pi" || gotParams[0].Block != 7 {
		t.Fatalf("unexpected forwarded params: %+v", gotParams)
	}
}

func TestRPCErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]any{"code": -32001, "message": "pending"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Info(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	rpcErr, ok := err.(*Err)
	if !ok {
		t.Fatalf("expected *Err, got %T", err)
	}
	if rpcErr.Code != -32001 || rpcErr.Message != "pending" {
		t.Errorf("unexpected error: %+v", rpcErr)
	}
}
