package capture

import (
	"sync/atomic"

	"github.com/teslashibe/go-recorder/pkg/audioio"
)

type node struct {
	block audioio.Block
	next  atomic.Pointer[node]
}

// Queue hands blocks from the audio callback to the consumer.
//
// It is an unbounded linked queue: Push is a single atomic swap plus one
// node allocation and never blocks; DrainAll, IsEmpty and Reset must only be
// called from the single consumer goroutine. Blocks come out in push order.
type Queue struct {
	head *node // consumer-owned; head is a drained stub
	tail atomic.Pointer[node]
	size atomic.Int64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	stub := &node{}
	q := &Queue{head: stub}
	q.tail.Store(stub)
	return q
}

// Push appends a block. Safe to call from the real-time thread.
func (q *Queue) Push(b audioio.Block) {
	n := &node{block: b}
	prev := q.tail.Swap(n)
	prev.next.Store(n)
	q.size.Add(1)
}

// DrainAll removes and returns every block currently linked into the
// queue, oldest first. A push racing with the drain is picked up by the
// next call.
func (q *Queue) DrainAll() []audioio.Block {
	var out []audioio.Block
	for {
		next := q.head.next.Load()
		if next == nil {
			break
		}
		out = append(out, next.block)
		next.block = audioio.Block{}
		q.head = next
	}
	q.size.Add(-int64(len(out)))
	return out
}

// IsEmpty reports whether the consumer would currently drain nothing.
func (q *Queue) IsEmpty() bool {
	return q.head.next.Load() == nil
}

// Len returns an approximate number of queued blocks.
func (q *Queue) Len() int {
	if n := q.size.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// Reset discards everything queued and returns the number of blocks dropped.
func (q *Queue) Reset() int {
	return len(q.DrainAll())
}
