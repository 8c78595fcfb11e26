package queue

import (
	"testing"

	"github.com/taikochain/proverd/internal/provertypes"
)

func opts(block uint64) provertypes.ProofRequestOptions {
	return provertypes.ProofRequestOptions{Circuit: "pi", Block: block, RPC: "http://x", Mock: true}
}

func TestGetOrEnqueue_CreatesPendingTask(t *testing.T) {
	q := New(DefaultMaxTasks)
	o := outcomeMustPending(t, q.GetOrEnqueue(opts(10)))
	_ = o

	snap := q.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 task, got %d", len(snap))
	}
	if snap[0].Edition != 0 {
		t.Errorf("expected edition 0, got %d", snap[0].Edition)
	}
	if snap[0].Result.IsOk() || snap[0].Result.IsErr() {
		t.Errorf("expected absent result")
	}
}

func outcomeMustPending(t *testing.T, o Outcome) Outcome {
	t.Helper()
	if !o.Pending {
		t.Fatalf("expected pending outcome, got %+v", o)
	}
	return o
}

func TestGetOrEnqueue_DedupRoundTrip(t *testing.T) {
	q := New(DefaultMaxTasks)
	q.GetOrEnqueue(opts(10))
	q.GetOrEnqueue(opts(10))

	if q.Len() != 1 {
		t.Fatalf("expected dedup to keep a single task, got %d", q.Len())
	}
}

func TestGetOrEnqueue_ReturnsOkUnchanged(t *testing.T) {
	q := New(DefaultMaxTasks)
	o := opts(10)
	q.GetOrEnqueue(o)
	q.Publish(o, provertypes.Result{Proof: provertypes.Proofs{Gas: 42}})

	out := q.GetOrEnqueue(o)
	if out.Pending {
		t.Fatalf("expected completed result, got pending")
	}
	if out.Proof.Gas != 42 {
		t.Errorf("expected unchanged Ok result, got %+v", out.Proof)
	}
}

func TestGetOrEnqueue_RetryLawBumpsEditionByOne(t *testing.T) {
	q := New(DefaultMaxTasks)
	o := opts(10)
	o.Retry = true
	q.GetOrEnqueue(o)
	q.Publish(o, provertypes.Result{Err: "boom"})

	task, ok := q.Find(o)
	if !ok || task.Edition != 1 {
		t.Fatalf("expected edition 1 after publish, got %+v", task)
	}

	out := q.GetOrEnqueue(o)
	if !out.Pending {
		t.Fatalf("expected retry to clear error and report pending, got %+v", out)
	}
	task, ok = q.Find(o)
	if !ok || task.Edition != 2 {
		t.Fatalf("expected edition to bump by exactly 1 on retry, got %+v", task)
	}
	if task.Result.IsErr() || task.Result.IsOk() {
		t.Errorf("expected result cleared to absent after retry")
	}
}

func TestGetOrEnqueue_ReturnsErrWithoutRetry(t *testing.T) {
	q := New(DefaultMaxTasks)
	o := opts(10)
	q.GetOrEnqueue(o)
	q.Publish(o, provertypes.Result{Err: "boom"})

	out := q.GetOrEnqueue(o)
	if out.Pending || out.Err != "boom" {
		t.Fatalf("expected Err result without retry, got %+v", out)
	}
}

func TestPruneTasks_DropsOldestHalfByBlock(t *testing.T) {
	q := New(4)
	for _, b := range []uint64{40, 10, 30, 20} {
		q.GetOrEnqueue(opts(b))
	}

	snap := q.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected pruning to 2 tasks, got %d", len(snap))
	}
	for _, t2 := range snap {
		if t2.Options.Block < 30 {
			t.Errorf("expected only the higher-block tasks to survive, found block %d", t2.Options.Block)
		}
	}
}

func TestPruneTasks_DisabledWhenMaxTasksZero(t *testing.T) {
	q := New(0)
	for i := uint64(0); i < 10; i++ {
		q.GetOrEnqueue(opts(i))
	}
	if q.Len() != 10 {
		t.Errorf("expected no pruning with maxTasks=0, got %d tasks", q.Len())
	}
}

func TestMerge_WinsByHigherEdition(t *testing.T) {
	q := New(DefaultMaxTasks)
	o := opts(10)
	q.GetOrEnqueue(o)

	peerResult := provertypes.Result{Done: true, Proof: provertypes.Proofs{Gas: 99}}
	q.Merge([]provertypes.ProofRequest{{Options: o, Edition: 5, Result: &peerResult}})

	task, ok := q.Find(o)
	if !ok || task.Edition != 5 {
		t.Fatalf("expected merge to adopt peer edition 5, got %+v", task)
	}
	if task.Result.Proof.Gas != 99 {
		t.Errorf("expected merged proof, got %+v", task.Result)
	}
}

func TestMerge_IgnoresLowerOrEqualEdition(t *testing.T) {
	q := New(DefaultMaxTasks)
	o := opts(10)
	q.GetOrEnqueue(o)
	q.Publish(o, provertypes.Result{Proof: provertypes.Proofs{Gas: 7}})
	task, _ := q.Find(o)
	localEdition := task.Edition

	stale := provertypes.Result{Done: true, Err: "stale"}
	q.Merge([]provertypes.ProofRequest{{Options: o, Edition: 0, Result: &stale}})

	task, _ = q.Find(o)
	if task.Edition != localEdition {
		t.Errorf("expected local edition to win over stale peer edition, got %d want %d", task.Edition, localEdition)
	}
	if task.Result.Proof.Gas != 7 {
		t.Errorf("expected local result preserved, got %+v", task.Result)
	}
}

func TestMerge_CopiesUnknownPeerTaskVerbatim(t *testing.T) {
	q := New(DefaultMaxTasks)
	o := opts(99)
	peerResult := provertypes.Result{Done: true, Proof: provertypes.Proofs{Gas: 3}}
	q.Merge([]provertypes.ProofRequest{{Options: o, Edition: 2, Result: &peerResult}})

	task, ok := q.Find(o)
	if !ok || task.Edition != 2 {
		t.Fatalf("expected peer-only task copied verbatim, got %+v ok=%v", task, ok)
	}
}

func TestPublish_DiscardsSilentlyWhenTaskMissing(t *testing.T) {
	q := New(DefaultMaxTasks)
	o := opts(10)
	q.Publish(o, provertypes.Result{Proof: provertypes.Proofs{Gas: 1}})
	if q.Len() != 0 {
		t.Errorf("expected publish on a missing task to be a no-op, got %d tasks", q.Len())
	}
}
