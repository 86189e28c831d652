package mtworkers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vtranser/captionstream/internal/mtengine"
	"github.com/vtranser/captionstream/internal/protocol"
)

func TestGarbageFilterRejectsRepetition(t *testing.T) {
	if !garbageFilter("la la la la la la") {
		t.Fatal("expected repetitive text to be flagged as garbage")
	}
}

func TestGarbageFilterRejectsLowUniqueRatio(t *testing.T) {
	if !garbageFilter("the the the a the the a") {
		t.Fatal("expected low unique-token ratio text to be flagged as garbage")
	}
}

func TestGarbageFilterAcceptsNormalText(t *testing.T) {
	if garbageFilter("xin chào các bạn hôm nay") {
		t.Fatal("expected normal varied text to pass the garbage filter")
	}
}

func TestGarbageFilterRejectsEmpty(t *testing.T) {
	if !garbageFilter("") {
		t.Fatal("expected empty text to be flagged as garbage")
	}
}

func TestCommitWorkerTranslatesAndAppends(t *testing.T) {
	out := make(chan any, 4)
	state := &sharedState{}
	translator := mtengine.NewMockProvider("vi:")
	w := NewCommitWorker(10, 4, translator, out, state, nil, zerolog.Nop(), "sess-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	w.Submit(CommitJob{EnSeq: 1, Segment: "hello world."})

	select {
	case msg := <-out:
		vc, ok := msg.(protocol.ViCommit)
		if !ok || vc.Append != "vi:hello world." || vc.EnSeq != 1 {
			t.Fatalf("unexpected commit message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a vi-commit message")
	}
}

func TestCommitWorkerBatchesAvailableJobs(t *testing.T) {
	out := make(chan any, 4)
	state := &sharedState{}
	translator := mtengine.NewMockProvider("vi:")
	w := NewCommitWorker(10, 4, translator, out, state, nil, zerolog.Nop(), "sess-1", nil)

	// Queue several jobs before the worker starts so they're all ready
	// together and should be batched into one translation call.
	w.queue <- CommitJob{EnSeq: 1, Segment: "one."}
	w.queue <- CommitJob{EnSeq: 2, Segment: "two."}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	select {
	case msg := <-out:
		vc := msg.(protocol.ViCommit)
		if vc.EnSeq != 2 {
			t.Fatalf("expected batched commit to report the last en_seq, got %d", vc.EnSeq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a batched vi-commit message")
	}
}

func TestCommitWorkerTripsDisableFlagOnFailure(t *testing.T) {
	out := make(chan any, 4)
	state := &sharedState{}
	translator := &mtengine.MockProvider{Err: errors.New("boom")}
	w := NewCommitWorker(10, 4, translator, out, state, nil, zerolog.Nop(), "sess-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	w.Submit(CommitJob{EnSeq: 1, Segment: "hello."})

	select {
	case msg := <-out:
		em, ok := msg.(protocol.ErrorMessage)
		if !ok || em.Code != protocol.CodeMTFailed {
			t.Fatalf("expected MT_FAILED error message, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an error message on translation failure")
	}
}

func TestDraftWorkerDropsStaleEpoch(t *testing.T) {
	out := make(chan any, 4)
	state := &sharedState{}
	translator := mtengine.NewMockProvider("vi:")
	w := NewDraftWorker(translator, out, state, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	w.Submit("first draft")
	w.InvalidateAndClear() // bumps epoch past the first submission's req_id

	select {
	case msg := <-out:
		vd, ok := msg.(protocol.ViDraft)
		if !ok || vd.Text != "" {
			t.Fatalf("expected a clear message from InvalidateAndClear, got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a clear message")
	}

	// The first submission's translation (if it ever runs) should have
	// been dropped for a stale req_id; assert no further non-empty draft
	// leaks out.
	select {
	case msg := <-out:
		vd := msg.(protocol.ViDraft)
		if vd.Text != "" {
			t.Fatalf("expected stale draft to be suppressed, got %+v", vd)
		}
	case <-time.After(200 * time.Millisecond):
		// no further message is also an acceptable outcome
	}
}

func TestDraftWorkerSuppressesGarbageOutput(t *testing.T) {
	out := make(chan any, 4)
	state := &sharedState{}
	translator := mtengine.NewMockProvider("") // echoes input verbatim
	w := NewDraftWorker(translator, out, state, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	w.Submit("la la la la la")

	select {
	case msg := <-out:
		vd := msg.(protocol.ViDraft)
		if vd.Text != "" {
			t.Fatalf("expected garbage draft to be suppressed to empty text, got %q", vd.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a suppressed draft message")
	}
}
