// Package miner implements the cooperative proof-of-work search: a
// long-running task that takes a (candidate block, difficulty suffix) work
// item and reports back the (hash, nonce) pair that satisfies it.
package miner

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/maticnetwork/crand"

	"github.com/wooffie/powchain/block"
)

// yieldInterval is the suspension point between search attempts — short
// enough that throughput approximates a tight loop, long enough to give the
// scheduler a chance to run the Node's select alongside it.
const yieldInterval = time.Nanosecond

// Result is a solved work item: the hash and nonce that satisfy the
// difficulty suffix supplied with the work.
type Result struct {
	Hash  block.Hash
	Nonce uint64
}

// Work is a single (candidate, suffix) unit handed to the Worker.
type Work struct {
	Candidate  block.Block
	Difficulty string
}

// Worker searches for a nonce satisfying a difficulty suffix.
//
// It holds at most one in-flight work item. A new item overwrites whatever
// is currently being searched — there is no explicit cancellation of the
// previous search, because the search is memoryless between attempts: the
// overwrite alone is enough to redirect the next iteration onto the new
// block. The Worker is a single cooperative task; concurrency comes from
// the scheduler interleaving it with the Node's select loop, not from
// parallel search goroutines.
type Worker struct {
	workCh   chan Work
	resultCh chan Result
}

// New constructs a Worker with the given channel capacities. Capacities in
// the range 16-64 give the Node and Worker natural backpressure without
// either task being able to starve the other — see spec §5.
func New(bufSize int) *Worker {
	return &Worker{
		workCh:   make(chan Work, bufSize),
		resultCh: make(chan Result, bufSize),
	}
}

// Submit hands the Worker a new work item, pre-empting whatever it is
// currently searching for.
func (w *Worker) Submit(work Work) {
	w.workCh <- work
}

// Results returns the channel on which solved (hash, nonce) pairs arrive.
func (w *Worker) Results() <-chan Result {
	return w.resultCh
}

// Run drives the search loop until ctx is cancelled. It has no "no
// solution found" outcome: it searches until pre-empted by a new Submit or
// cancelled by ctx.
func (w *Worker) Run(ctx context.Context) {
	var (
		armed     bool
		candidate block.Block
		difficult string
	)

	ticker := time.NewTicker(yieldInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case work := <-w.workCh:
			candidate = work.Candidate
			difficult = work.Difficulty
			armed = true

		case <-ticker.C:
			if !armed {
				continue
			}
			// crand mirrors math/rand's top-level functions but is safe for
			// concurrent use; Int63 gives ample entropy for a nonce that only
			// needs to vary, not resist cryptanalysis.
			candidate.Nonce = uint64(crand.Int63())<<1 | uint64(crand.Int63()&1)
			candidate.UpdateHash()
			if candidate.SatisfiesDifficulty(difficult) {
				w.emit(Result{Hash: candidate.Hash, Nonce: candidate.Nonce})
				armed = false
			}
		}
	}
}

// emit delivers a result, logging (and continuing) if the receiver has gone
// away — spec §4.3 treats a full or abandoned result channel as a transient,
// recoverable condition, never a reason to stop searching.
func (w *Worker) emit(r Result) {
	select {
	case w.resultCh <- r:
	default:
		log.Warn("miner: result channel full, dropping solved nonce", "hash", r.Hash, "nonce", r.Nonce)
	}
}
