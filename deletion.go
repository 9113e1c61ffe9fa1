package synthcore

import (
	"sync"
	"sync/atomic"
)

// deletionRecord pairs a destructor with the iteration after which it
// becomes safe to run (§4.C): any weak reference resolved during the
// iteration the record was enqueued in has had a full block to be
// dropped or upgraded before the destructor fires.
type deletionRecord struct {
	iterationDue uint64
	destructor   func()
}

// deletionQueue is the audio-thread-owned queue of pending object
// destructions (component C). enqueue is safe from any thread;
// drain/drainSync run only on the audio thread (or, in headless mode,
// the caller's thread acting as the audio thread).
type deletionQueue struct {
	// pending uses a plain slice guarded by a mutex-free single
	// producer discipline is not possible here (many external threads
	// enqueue), so a mutex guards the slice; this mirrors the handle
	// table's "external threads may block briefly" allowance in §5 —
	// the critical section is just an append/swap, never held across
	// a ring operation.
	mu      sync.Mutex
	pending []deletionRecord

	// deletesInProgress bounds the shutdown spin-wait (§4.C): it is
	// incremented only across the enqueue critical region.
	deletesInProgress atomic.Int64
	directDelete      atomic.Bool
}

func newDeletionQueue() *deletionQueue {
	return &deletionQueue{}
}

// enqueue is callable from any thread. current is the Context's
// block_time at the moment of the call; the record is stamped
// due = current+1 and becomes eligible once current_iteration > due,
// i.e. once current_iteration >= current+2.
func (q *deletionQueue) enqueue(current uint64, destructor func()) {
	q.deletesInProgress.Add(1)
	defer q.deletesInProgress.Add(-1)

	if q.directDelete.Load() {
		destructor()
		return
	}

	q.mu.Lock()
	q.pending = append(q.pending, deletionRecord{iterationDue: current + 1, destructor: destructor})
	q.mu.Unlock()
}

// drain runs every record whose iterationDue < currentIteration, up to
// limit records (limit<=0 means unlimited). Intended to run once per
// block, between blocks, per §4.I step 9.
func (q *deletionQueue) drain(currentIteration uint64, limit int) int {
	q.mu.Lock()
	due := q.pending[:0:0]
	remaining := q.pending[:0:0]
	for _, rec := range q.pending {
		if (limit <= 0 || len(due) < limit) && rec.iterationDue < currentIteration {
			due = append(due, rec)
		} else {
			remaining = append(remaining, rec)
		}
	}
	q.pending = remaining
	q.mu.Unlock()

	for _, rec := range due {
		rec.destructor()
	}
	return len(due)
}

// beginShutdown flips delete_directly and spin-waits for
// deletes_in_progress to reach zero, then drains synchronously
// regardless of iteration due-dates. After this returns,
// enqueue performs immediate destruction, matching §4.C's shutdown
// path.
func (q *deletionQueue) beginShutdown() {
	q.directDelete.Store(true)
	for q.deletesInProgress.Load() != 0 {
		// Bounded: deletesInProgress is only ever incremented across
		// the tiny enqueue critical region above.
	}
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, rec := range pending {
		rec.destructor()
	}
}

// Len reports the number of records awaiting their due iteration.
func (q *deletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
