package ingress

import (
	"testing"
	"time"

	"github.com/vtranser/captionstream/internal/sttsession"
)

func item(n int) AudioItem {
	return AudioItem{
		Buffer:     make([]byte, n),
		SourceRate: 48000,
		Dtype:      sttsession.DtypeI16,
		ByteCount:  n,
		EnqueuedAt: time.Now(),
	}
}

func TestQueuePushPopOrder(t *testing.T) {
	q := NewQueue(10, 8, 1<<20)
	q.Push(item(4))
	q.Push(item(8))

	got, isEOS, ok := q.Pop()
	if !ok || isEOS || got.ByteCount != 4 {
		t.Fatalf("expected first item of size 4, got %+v isEOS=%v ok=%v", got, isEOS, ok)
	}
	got, isEOS, ok = q.Pop()
	if !ok || isEOS || got.ByteCount != 8 {
		t.Fatalf("expected second item of size 8, got %+v", got)
	}
}

func TestQueueDropGuardQShedsOldest(t *testing.T) {
	q := NewQueue(100, 2, 1<<20)
	var shed []ShedReason
	q.OnShed(func(r ShedReason) { shed = append(shed, r) })

	q.Push(item(1)) // depth 1
	q.Push(item(2)) // depth 2 == dropGuardQ, next push sheds first
	q.Push(item(3)) // depth reaches 2 again after shedding the size-1 item

	if q.Depth() != 2 {
		t.Fatalf("expected depth 2 after shed, got %d", q.Depth())
	}
	if len(shed) != 1 || shed[0] != ShedDropGuardQ {
		t.Fatalf("expected one drop_guard_q shed, got %+v", shed)
	}
	got, _, _ := q.Pop()
	if got.ByteCount != 2 {
		t.Fatalf("expected oldest surviving item to be size 2, got %d", got.ByteCount)
	}
}

func TestQueueByteCapShedsUntilBelowCap(t *testing.T) {
	q := NewQueue(100, 100, 10)
	var shed []ShedReason
	q.OnShed(func(r ShedReason) { shed = append(shed, r) })

	q.Push(item(4))
	q.Push(item(4))
	q.Push(item(4)) // total would be 12 >= 10, must shed oldest(s)

	if q.Bytes() >= 10 {
		t.Fatalf("expected byte total below cap, got %d", q.Bytes())
	}
	found := false
	for _, r := range shed {
		if r == ShedQBytesHardCap {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a qbytes_hard_cap shed event, got %+v", shed)
	}
}

func TestQueueByteCountInvariant(t *testing.T) {
	q := NewQueue(10, 10, 1<<20)
	it := item(16)
	q.Push(it)
	got, _, _ := q.Pop()
	if got.ByteCount != len(got.Buffer) {
		t.Fatalf("byte_count invariant violated: %d != %d", got.ByteCount, len(got.Buffer))
	}
}

func TestQueueEOSSentinel(t *testing.T) {
	q := NewQueue(10, 10, 1<<20)
	q.Push(item(4))
	q.PushEOS()

	_, isEOS, ok := q.Pop()
	if !ok || isEOS {
		t.Fatal("expected the data item first")
	}
	_, isEOS, ok = q.Pop()
	if !ok || !isEOS {
		t.Fatal("expected EOS sentinel second")
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := NewQueue(10, 10, 1<<20)
	_, _, ok := q.Pop()
	if ok {
		t.Fatal("expected ok=false on empty queue")
	}
}
