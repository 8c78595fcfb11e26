// Package queue is the in-memory TaskQueue: an ordered list of tasks with
// dedup by options equality, retry-on-read semantics, and block-ordered
// pruning. Grounded on original_source/prover/src/shared_state.rs's
// get_or_enqueue/prune_tasks and on the teacher's eventlog package's
// append-and-scan idiom, adapted from a map to a slice since ordered-by-
// block pruning needs a sortable sequence, not a keyed lookup.
package queue

import (
	"sort"
	"sync"

	"github.com/taikochain/proverd/internal/provertypes"
)

// DefaultMaxTasks is the default pruning threshold (§6, MAX_TASKS).
const DefaultMaxTasks = 240

// Queue is a mutex-guarded, ordered list of tasks.
type Queue struct {
	mu       sync.Mutex
	tasks    []provertypes.ProofRequest
	maxTasks int
}

// New creates an empty queue pruning at maxTasks entries; 0 disables
// pruning.
func New(maxTasks int) *Queue {
	return &Queue{maxTasks: maxTasks}
}

// Outcome is the result of GetOrEnqueue: when Pending is false, either
// Proof holds the completed result or Err holds the error message.
type Outcome struct {
	Pending bool
	Proof   provertypes.Proofs
	Err     string
}

// GetOrEnqueue implements §4.5's get_or_enqueue. If a task with equal
// options already exists: a completed Ok result is returned unchanged; a
// completed Err result with Retry set clears the result (bumping edition)
// and reports pending; a completed Err result without Retry is returned
// as-is; an absent result reports pending. Otherwise a new task is
// created with edition 0 and the queue is pruned.
func (q *Queue) GetOrEnqueue(opts provertypes.ProofRequestOptions) Outcome {
	q.mu.Lock()

	for i := range q.tasks {
		t := &q.tasks[i]
		if !t.Options.Equal(opts) {
			continue
		}
		switch {
		case t.Result.IsOk():
			q.mu.Unlock()
			return Outcome{Proof: t.Result.Proof}
		case t.Result.IsErr():
			if opts.Retry {
				t.Result = &provertypes.Result{}
				t.Edition++
				q.mu.Unlock()
				return Outcome{Pending: true}
			}
			q.mu.Unlock()
			return Outcome{Err: t.Result.Err}
		default:
			q.mu.Unlock()
			return Outcome{Pending: true}
		}
	}

	q.tasks = append(q.tasks, provertypes.ProofRequest{
		Options: opts,
		Result:  &provertypes.Result{},
		Edition: 0,
	})
	q.mu.Unlock()

	q.PruneTasks()
	return Outcome{Pending: true}
}

// PruneTasks implements §4.5's prune_tasks: if the queue has reached
// maxTasks (and pruning is enabled), sort ascending by block and drop the
// first maxTasks/2 entries. This is not result-preserving by design (§9).
func (q *Queue) PruneTasks() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.maxTasks == 0 || len(q.tasks) < q.maxTasks {
		return
	}
	sort.Slice(q.tasks, func(i, j int) bool {
		return q.tasks[i].Options.Block < q.tasks[j].Options.Block
	})
	drop := q.maxTasks / 2
	q.tasks = append([]provertypes.ProofRequest{}, q.tasks[drop:]...)
}

// Snapshot returns a deep-enough copy of the current task list.
func (q *Queue) Snapshot() []provertypes.ProofRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]provertypes.ProofRequest, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.Clone()
	}
	return out
}

// PendingOptions returns the options of every task whose result is still
// absent, in queue order, for DutyCycle's snapshot-then-iterate step.
func (q *Queue) PendingOptions() []provertypes.ProofRequestOptions {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []provertypes.ProofRequestOptions
	for _, t := range q.tasks {
		if t.Result == nil || (!t.Result.IsOk() && !t.Result.IsErr()) {
			out = append(out, t.Options)
		}
	}
	return out
}

// Publish writes a result for the task matching options, bumping its
// edition. If the task is no longer present (pruned during compute), the
// result is discarded silently, matching §4.7 step 8.
func (q *Queue) Publish(opts provertypes.ProofRequestOptions, result provertypes.Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.tasks {
		if q.tasks[i].Options.Equal(opts) {
			result.Done = true
			q.tasks[i].Result = &result
			q.tasks[i].Edition++
			return
		}
	}
}

// Merge implements §4.6's merge_tasks: peer tasks not present locally are
// copied verbatim; tasks present in both are kept if the local edition is
// >= the peer's, else overwritten with the peer's edition and result.
// Runs PruneTasks afterward.
func (q *Queue) Merge(peerTasks []provertypes.ProofRequest) {
	q.mu.Lock()
	for _, pt := range peerTasks {
		matched := false
		for i := range q.tasks {
			if q.tasks[i].Options.Equal(pt.Options) {
				matched = true
				if q.tasks[i].Edition < pt.Edition {
					q.tasks[i].Edition = pt.Edition
					q.tasks[i].Result = pt.Result
				}
				break
			}
		}
		if !matched {
			q.tasks = append(q.tasks, pt.Clone())
		}
	}
	q.mu.Unlock()

	q.PruneTasks()
}

// Find returns the task matching options, if present.
func (q *Queue) Find(opts provertypes.ProofRequestOptions) (provertypes.ProofRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.Options.Equal(opts) {
			return t.Clone(), true
		}
	}
	return provertypes.ProofRequest{}, false
}

// Len reports the number of tasks currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
