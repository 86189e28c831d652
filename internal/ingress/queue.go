// Package ingress implements the bounded, byte-capped audio FIFO that
// sits between the websocket reader and the feeder.
package ingress

import (
	"container/list"
	"sync"
	"time"

	"github.com/vtranser/captionstream/internal/sttsession"
)

// AudioItem is one enqueued chunk of raw audio awaiting resampling.
// Invariant: ByteCount == len(Buffer).
type AudioItem struct {
	Buffer     []byte
	SourceRate int
	Dtype      sttsession.Dtype
	ByteCount  int
	EnqueuedAt time.Time // monotonic
}

// eosSentinel, when present as the last queued item, signals the feeder
// to drain and then flush tail silence before exiting.
type eosSentinel struct{}

// ShedReason names why an item was dropped under backpressure.
type ShedReason string

const (
	ShedDropGuardQ    ShedReason = "drop_guard_q"
	ShedQBytesHardCap ShedReason = "qbytes_hard_cap"
)

// Queue is a bounded FIFO of AudioItems with byte-total tracking and a
// two-tier shedding policy: once depth reaches DropGuardQ, drop the
// oldest before enqueuing; once the running byte total reaches
// QBytesHardCap, repeatedly drop the oldest until below cap.
type Queue struct {
	mu         sync.Mutex
	items      *list.List
	byteTotal  int64
	maxItems   int
	dropGuardQ int
	byteCap    int64

	onShed func(reason ShedReason)
}

// NewQueue builds a Queue with the given caps.
func NewQueue(maxItems, dropGuardQ int, byteCap int64) *Queue {
	return &Queue{
		items:      list.New(),
		maxItems:   maxItems,
		dropGuardQ: dropGuardQ,
		byteCap:    byteCap,
	}
}

// OnShed installs a callback invoked (outside the lock) whenever an item
// is dropped for backpressure.
func (q *Queue) OnShed(fn func(reason ShedReason)) {
	q.mu.Lock()
	q.onShed = fn
	q.mu.Unlock()
}

// Push enqueues an AudioItem, applying the shedding policy first.
func (q *Queue) Push(item AudioItem) {
	var shed []ShedReason

	q.mu.Lock()
	if q.items.Len() >= q.dropGuardQ {
		if q.popOldestLocked() {
			shed = append(shed, ShedDropGuardQ)
		}
	}
	q.items.PushBack(item)
	q.byteTotal += int64(item.ByteCount)

	for q.byteTotal >= q.byteCap && q.items.Len() > 1 {
		if !q.popOldestLocked() {
			break
		}
		shed = append(shed, ShedQBytesHardCap)
	}
	if q.items.Len() >= q.maxItems {
		// Absolute backstop even if byte accounting somehow lagged.
		if q.popOldestLocked() {
			shed = append(shed, ShedDropGuardQ)
		}
	}
	cb := q.onShed
	q.mu.Unlock()

	if cb != nil {
		for _, r := range shed {
			cb(r)
		}
	}
}

// PushEOS enqueues the terminal sentinel marking end-of-stream.
func (q *Queue) PushEOS() {
	q.mu.Lock()
	q.items.PushBack(eosSentinel{})
	q.mu.Unlock()
}

// Pop removes and returns the oldest entry. ok is false if the queue is
// empty. The second return reports whether the popped entry was the EOS
// sentinel, in which case item is the zero value.
func (q *Queue) Pop() (item AudioItem, isEOS bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return AudioItem{}, false, false
	}
	q.items.Remove(front)
	switch v := front.Value.(type) {
	case eosSentinel:
		return AudioItem{}, true, true
	case AudioItem:
		q.byteTotal -= int64(v.ByteCount)
		return v, false, true
	default:
		return AudioItem{}, false, false
	}
}

// popOldestLocked removes the single oldest entry; caller holds q.mu.
func (q *Queue) popOldestLocked() bool {
	front := q.items.Front()
	if front == nil {
		return false
	}
	q.items.Remove(front)
	if v, ok := front.Value.(AudioItem); ok {
		q.byteTotal -= int64(v.ByteCount)
	}
	return true
}

// Depth returns the current item count.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Bytes returns the current running byte total.
func (q *Queue) Bytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.byteTotal
}
