package stabilizer

import "testing"

func defaultConfig() Config {
	return Config{
		MaxRollbackChars:     20,
		MinRewriteIntervalMS: 0,
		RewriteConfirmN:      2,
		MicroMaxChars:        1 << 30,
	}
}

func TestNoOpWhenRawEqualsShown(t *testing.T) {
	s := New(defaultConfig())
	s.ProcessHypothesis("hello")
	if got := s.ProcessHypothesis("hello"); got != nil {
		t.Fatalf("expected nil for no-op, got %+v", got)
	}
}

func TestIgnoresStrictPrefixShrink(t *testing.T) {
	s := New(defaultConfig())
	s.ProcessHypothesis("hello there")
	if got := s.ProcessHypothesis("hello"); got != nil {
		t.Fatalf("expected shrink to be ignored, got %+v", got)
	}
	if s.Shown() != "hello there" {
		t.Fatalf("shown should be unchanged, got %q", s.Shown())
	}
}

func TestPureAppendAcceptsImmediately(t *testing.T) {
	s := New(defaultConfig())
	patches := s.ProcessHypothesis("hello")
	if len(patches) != 1 || patches[0].Insert != "hello" {
		t.Fatalf("expected initial insert, got %+v", patches)
	}
	patches = s.ProcessHypothesis("hello there")
	if len(patches) != 1 {
		t.Fatalf("expected one patch, got %d", len(patches))
	}
	if patches[0].Delete != 0 || patches[0].Insert != " there" {
		t.Fatalf("expected pure append patch, got %+v", patches[0])
	}
	if s.Shown() != "hello there" {
		t.Fatalf("shown mismatch: %q", s.Shown())
	}
}

func TestPunctTolerantAppendAcceptsImmediately(t *testing.T) {
	s := New(defaultConfig())
	s.ProcessHypothesis("hello world.")
	patches := s.ProcessHypothesis("hello world!")
	if len(patches) != 1 {
		t.Fatalf("expected a punct-tolerant patch, got %+v", patches)
	}
	if patches[0].Delete != 1 || patches[0].Insert != "!" {
		t.Fatalf("expected delete=1 insert=!, got %+v", patches[0])
	}
}

func TestRewriteRequiresConfirmCount(t *testing.T) {
	s := New(defaultConfig())
	s.ProcessHypothesis("hello world")

	// First occurrence of the rewrite candidate should not yet be accepted.
	if got := s.ProcessHypothesis("hello there"); got != nil {
		t.Fatalf("expected rewrite to wait for confirm count, got %+v", got)
	}
	// Second identical occurrence clears RewriteConfirmN=2.
	patches := s.ProcessHypothesis("hello there")
	if len(patches) != 1 {
		t.Fatalf("expected rewrite patch on confirm, got %+v", patches)
	}
	if s.Shown() != "hello there" {
		t.Fatalf("shown mismatch: %q", s.Shown())
	}
}

func TestRewriteIgnoredWhenRollbackTooLarge(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxRollbackChars = 3
	s := New(cfg)
	s.ProcessHypothesis("hello world")
	if got := s.ProcessHypothesis("goodbye world"); got != nil {
		t.Fatalf("expected rollback-gated rewrite to be ignored, got %+v", got)
	}
	if s.Shown() != "hello world" {
		t.Fatalf("shown should be unchanged, got %q", s.Shown())
	}
}

func TestMicroDeltaChunking(t *testing.T) {
	cfg := defaultConfig()
	cfg.MicroMaxChars = 6
	s := New(cfg)
	patches := s.ProcessHypothesis("one two three four")
	if len(patches) < 2 {
		t.Fatalf("expected multiple chunked patches, got %d: %+v", len(patches), patches)
	}
	if patches[0].Continuation {
		t.Fatal("first patch should not be a continuation")
	}
	for _, p := range patches[1:] {
		if !p.Continuation {
			t.Fatal("later patches should be continuations")
		}
		if p.Delete != 0 {
			t.Fatalf("continuations should carry delete=0, got %d", p.Delete)
		}
	}
	var rebuilt string
	for _, p := range patches {
		rebuilt += p.Insert
	}
	if rebuilt != "one two three four" {
		t.Fatalf("chunked inserts should reconstruct the full text, got %q", rebuilt)
	}
}

func TestStableSnapshotMonotonicNonDecreasing(t *testing.T) {
	s := New(defaultConfig())
	st := s.ProcessStable("hello world")
	if st == nil || st.Full != "hello world" {
		t.Fatalf("expected stable snapshot, got %+v", st)
	}
	if got := s.ProcessStable("hello"); got != nil {
		t.Fatalf("expected shorter stable snapshot to be ignored, got %+v", got)
	}
	if s.Shown() != "hello world" {
		t.Fatalf("shown should remain at the longer snapshot, got %q", s.Shown())
	}
}

func TestStableResetsRewriteState(t *testing.T) {
	s := New(defaultConfig())
	s.ProcessHypothesis("hello world")
	s.ProcessHypothesis("hello there") // first rewrite occurrence, pending
	st := s.ProcessStable("hello world final")
	if st == nil {
		t.Fatal("expected stable snapshot")
	}
	// Confirm pending-rewrite counters were reset: a single repeat of the
	// old candidate should not immediately accept.
	if got := s.ProcessHypothesis("hello there"); got != nil {
		t.Fatalf("expected rewrite confirm counter to have reset, got %+v", got)
	}
}

func TestPatchSequenceNumbersAreMonotonic(t *testing.T) {
	s := New(defaultConfig())
	p1 := s.ProcessHypothesis("hello")
	p2 := s.ProcessHypothesis("hello world")
	if p1[0].Seq != 1 || p2[0].Seq != 2 {
		t.Fatalf("expected monotonic seq 1,2 got %d,%d", p1[0].Seq, p2[0].Seq)
	}
}
