package emitter

import (
	"context"
	"testing"
	"time"

	"github.com/vtranser/captionstream/internal/protocol"
	"github.com/vtranser/captionstream/internal/stabilizer"
)

func TestSendPatchImmediateWhenUnderLimit(t *testing.T) {
	out := make(chan any, 4)
	e := New(out, 1000, nil) // effectively unlimited for this test
	e.SendPatch(stabilizer.Patch{Delete: 0, Insert: "hi", Seq: 1, TMs: 1})

	select {
	case msg := <-out:
		p, ok := msg.(protocol.Patch)
		if !ok || p.Insert != "hi" {
			t.Fatalf("expected patch message, got %+v", msg)
		}
	default:
		t.Fatal("expected patch to be sent immediately")
	}
}

func TestSendPatchBuffersLastWriterWinsUnderLimit(t *testing.T) {
	out := make(chan any, 4)
	e := New(out, 5, nil) // 200ms interval, easy to exhaust burst of 1

	e.SendPatch(stabilizer.Patch{Insert: "first", Seq: 1})
	e.SendPatch(stabilizer.Patch{Insert: "second", Seq: 2})
	e.SendPatch(stabilizer.Patch{Insert: "third", Seq: 3})

	// First call consumes the token and sends immediately; subsequent
	// calls before the next token should overwrite the buffered patch.
	first := <-out
	p, ok := first.(protocol.Patch)
	if !ok || p.Insert != "first" {
		t.Fatalf("expected first patch sent immediately, got %+v", first)
	}

	select {
	case <-out:
		t.Fatal("second/third patches should not be sent yet")
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	select {
	case msg := <-out:
		got, ok := msg.(protocol.Patch)
		if !ok || got.Insert != "third" {
			t.Fatalf("expected last-writer-wins flush of 'third', got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected buffered patch to flush within the rate window")
	}
}

func TestSendStableBypassesRateLimit(t *testing.T) {
	out := make(chan any, 4)
	e := New(out, 1, nil)
	e.SendStable(stabilizer.Stable{Full: "hello world", Seq: 1, TMs: 1})
	e.SendStable(stabilizer.Stable{Full: "hello world again", Seq: 2, TMs: 2})

	first := (<-out).(protocol.Stable)
	second := (<-out).(protocol.Stable)
	if first.Full != "hello world" || second.Full != "hello world again" {
		t.Fatalf("expected both stable messages delivered unconditionally, got %+v %+v", first, second)
	}
}

func TestEnqueueDropsWhenOutboundFull(t *testing.T) {
	out := make(chan any, 1)
	e := New(out, 1000, nil)
	e.SendPatch(stabilizer.Patch{Insert: "a"})
	// channel now full; this send should be dropped rather than block.
	done := make(chan struct{})
	go func() {
		e.SendPatch(stabilizer.Patch{Insert: "b"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendPatch should not block when outbound channel is full")
	}
}
