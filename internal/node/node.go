// Package node wires SharedState and DutyCycle: the node's pending/obtained
// claim state, and the background loops that drive claim -> compute ->
// publish on workers, and dispatch/merge on aggregators. Grounded on the
// teacher's actor/actor.go Start/Stop/processLoop idiom (mutex-guarded
// running flag, stopCh channel, one goroutine per loop) and on
// original_source/prover/src/bin/prover_rpcd.rs's three-loop wiring
// (duty_cycle every 1s on workers; dispatch_tasks_to_peers every 5s and
// merge_tasks_from_peers every 10s on aggregators).
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/taikochain/proverd/internal/blockingpool"
	"github.com/taikochain/proverd/internal/compute"
	"github.com/taikochain/proverd/internal/gossip"
	"github.com/taikochain/proverd/internal/provertypes"
	"github.com/taikochain/proverd/internal/queue"
)

// Role selects which background loops a Node runs, per spec §4.7.
type Role int

const (
	// RoleWorker runs the 1-second duty cycle: claim, compute, publish.
	RoleWorker Role = iota
	// RoleAggregator runs dispatch (5s) and merge (10s) only; it never
	// computes.
	RoleAggregator
)

func (r Role) String() string {
	if r == RoleAggregator {
		return "aggregator"
	}
	return "worker"
}

const (
	// DutyCycleInterval is the worker role's claim/compute/publish tick.
	DutyCycleInterval = 1 * time.Second
	// DispatchInterval is the aggregator role's peer-dispatch tick.
	DispatchInterval = 5 * time.Second
	// MergeInterval is the aggregator role's peer-merge tick.
	MergeInterval = 10 * time.Second
)

// Node holds one process's share of SharedState: its identity, task queue,
// peer gossip, compute wrapper, and the pending/obtained claim flags.
type Node struct {
	ID       string
	Role     Role
	Queue    *queue.Queue
	Resolver *gossip.Resolver
	Compute  *compute.Wrapper
	Log      *slog.Logger

	mu       sync.Mutex
	pending  *provertypes.ProofRequestOptions
	obtained bool

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Node. log may be nil to use slog's default handler.
func New(id string, role Role, q *queue.Queue, resolver *gossip.Resolver, comp *compute.Wrapper, log *slog.Logger) *Node {
	if log == nil {
		log = slog.Default()
	}
	return &Node{ID: id, Role: role, Queue: q, Resolver: resolver, Compute: comp, Log: log}
}

// Start launches the role's background loops. Calling Start twice without
// an intervening Stop returns an error, matching the teacher's Actor.Start
// guard.
func (n *Node) Start() error {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.running {
		return fmt.Errorf("node: %s already running", n.ID)
	}
	n.running = true
	n.stopCh = make(chan struct{})

	switch n.Role {
	case RoleAggregator:
		n.wg.Add(2)
		go n.loop("dispatch", DispatchInterval, n.dispatchTick)
		go n.loop("merge", MergeInterval, n.mergeTick)
	default:
		n.wg.Add(1)
		go n.loop("duty-cycle", DutyCycleInterval, n.dutyCycleTick)
	}
	return nil
}

// Stop halts all background loops and waits for them to exit.
func (n *Node) Stop() {
	n.runMu.Lock()
	if !n.running {
		n.runMu.Unlock()
		return
	}
	n.running = false
	close(n.stopCh)
	n.runMu.Unlock()

	n.wg.Wait()
}

// loop ticks fn every interval until Stop, isolating each tick behind a
// panic recover so one bad tick never tears down the loop, per §4.7's
// "panic-isolated task wrapper."
func (n *Node) loop(name string, interval time.Duration, fn func(ctx context.Context)) {
	defer n.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.tick(name, fn)
		}
	}
}

func (n *Node) tick(name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			n.Log.Error("panic in background loop", "loop", name, "panic", blockingpool.PanicMessage(r))
		}
	}()
	fn(context.Background())
}

// dispatchTick implements the aggregator role's dispatch_tasks_to_peers.
func (n *Node) dispatchTick(ctx context.Context) {
	if err := n.Resolver.DispatchTasksToPeers(ctx, n.Queue); err != nil {
		n.Log.Warn("dispatch tasks to peers", "error", err)
	}
}

// mergeTick implements the aggregator role's merge_tasks_from_peers. The
// worker role's duty cycle runs the same merge itself before claiming.
func (n *Node) mergeTick(ctx context.Context) {
	if err := n.Resolver.MergeTasksFromPeers(ctx, n.Queue); err != nil {
		n.Log.Warn("merge tasks from peers", "error", err)
	}
}

// dutyCycleTick implements §4.7's duty_cycle(): refresh from peers, claim
// the first winnable pending task, compute it outside any lock, then
// publish the result.
func (n *Node) dutyCycleTick(ctx context.Context) {
	if err := n.Resolver.MergeTasksFromPeers(ctx, n.Queue); err != nil {
		n.Log.Warn("merge tasks from peers", "error", err)
		return
	}

	n.mu.Lock()
	busy := n.pending != nil || n.obtained
	n.mu.Unlock()
	if busy {
		return
	}

	claimed, ok := n.claimNext(ctx)
	if !ok {
		return
	}

	start := time.Now()
	result := n.runCompute(ctx, claimed)
	elapsed := time.Since(start)

	n.mu.Lock()
	n.pending = nil
	n.obtained = false
	n.mu.Unlock()

	if result.err != nil {
		n.Log.Info("duty cycle failed",
			"circuit", claimed.Circuit, "block", claimed.Block,
			"elapsed", elapsed, "error", result.err)
		n.Queue.Publish(claimed, provertypes.Result{Err: result.err.Error()})
		return
	}

	n.Log.Info("duty cycle computed proof",
		"circuit", claimed.Circuit, "block", claimed.Block,
		"elapsed", elapsed,
		"proof_bytes", humanize.Bytes(uint64(len(result.proof.Circuit.Proof))),
		"queue_len", humanize.Comma(int64(n.Queue.Len())))
	n.Queue.Publish(claimed, provertypes.Result{Proof: result.proof})
}

// claimNext snapshots pending task options and races each through
// obtain_task in order, matching §4.7 step 4: set pending, obtain, and
// either win (stop) or clear pending and try the next candidate.
func (n *Node) claimNext(ctx context.Context) (provertypes.ProofRequestOptions, bool) {
	for _, opts := range n.Queue.PendingOptions() {
		n.mu.Lock()
		n.pending = &opts
		n.mu.Unlock()

		won, err := n.Resolver.ObtainTask(ctx, opts)
		if err != nil || !won {
			n.mu.Lock()
			n.pending = nil
			n.mu.Unlock()
			continue
		}

		n.mu.Lock()
		n.obtained = true
		n.mu.Unlock()
		return opts, true
	}
	return provertypes.ProofRequestOptions{}, false
}

type computeOutcome struct {
	proof provertypes.Proofs
	err   error
}

// runCompute invokes ComputeWrapper outside any lock, converting any panic
// (e.g. circuits.Build's unknown-circuit-tag panic) into an error with the
// same priority-coerced message blockingpool.Run uses for proof-generation
// panics, per §4.7 step 7.
func (n *Node) runCompute(ctx context.Context, opts provertypes.ProofRequestOptions) (out computeOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = computeOutcome{err: fmt.Errorf("%s", blockingpool.PanicMessage(r))}
		}
	}()
	proof, err := n.Compute.Compute(ctx, opts)
	return computeOutcome{proof: proof, err: err}
}

// Proof implements rpcserver.Backend: get-or-enqueue the task, per §4.5.
func (n *Node) Proof(ctx context.Context, opts provertypes.ProofRequestOptions) (queue.Outcome, error) {
	return n.Queue.GetOrEnqueue(opts), nil
}

// Info implements rpcserver.Backend: the full queue snapshot plus self id.
func (n *Node) Info() provertypes.NodeInformation {
	return provertypes.NodeInformation{ID: n.ID, Tasks: n.Queue.Snapshot()}
}

// Status implements rpcserver.Backend: self id, current pending task, and
// the obtained flag.
func (n *Node) Status() provertypes.NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	var task *provertypes.ProofRequestOptions
	if n.pending != nil {
		cp := *n.pending
		task = &cp
	}
	return provertypes.NodeStatus{ID: n.ID, Task: task, Obtained: n.obtained}
}
