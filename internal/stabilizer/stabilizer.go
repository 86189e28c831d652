// Package stabilizer turns raw, rewriting hypothesis text from the STT
// recorder into a sequence of end-diff patches plus monotonic stable
// snapshots.
package stabilizer

import (
	"regexp"
	"strings"
	"time"
)

// Config carries the rewrite-gating and chunking tunables.
type Config struct {
	MaxRollbackChars     int
	MinRewriteIntervalMS int64
	RewriteConfirmN      int
	MicroMaxChars        int
}

// Patch is an end-diff instruction: delete Delete characters from the end
// of the client's current transcript, then append Insert.
type Patch struct {
	Delete       int
	Insert       string
	Seq          int64
	TMs          int64
	Continuation bool
}

// Stable is a full-text resync snapshot.
type Stable struct {
	Full string
	Seq  int64
	TMs  int64
}

var wordTrailingSpace = regexp.MustCompile(`\S+\s*|\s+`)

// Stabilizer holds the mutable per-session state: shown text, pending
// rewrite candidate, confirmation count, and last-rewrite timestamp.
type Stabilizer struct {
	cfg Config

	shown         string
	pending       string
	pendingCount  int
	lastRewriteMs int64

	maxStableLen int
	patchSeq     int64
	stableSeq    int64

	nowFn func() time.Time
}

// New builds a Stabilizer with the given gating config.
func New(cfg Config) *Stabilizer {
	return &Stabilizer{cfg: cfg, nowFn: time.Now}
}

// Shown returns the text currently believed applied on the client.
func (s *Stabilizer) Shown() string {
	return s.shown
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func trimTrailingPunct(s string) string {
	return strings.TrimRight(s, ".,!?…;: ")
}

// ProcessHypothesis classifies a new raw hypothesis against the current
// shown text and, if accepted, returns the resulting patch(es) — possibly
// micro-chunked. Returns nil when no output is warranted (no-op, ignored
// shrink, or a rewrite candidate that hasn't yet cleared its gates).
func (s *Stabilizer) ProcessHypothesis(raw string) []Patch {
	raw = collapseWhitespace(raw)
	shown := s.shown

	if raw == shown {
		return nil
	}

	if strings.HasPrefix(shown, raw) && len(raw) < len(shown) {
		// strict prefix shrink: ignore, shrink-ignoring is always on.
		return nil
	}

	if strings.HasPrefix(raw, shown) && len(raw) > len(shown) {
		return s.accept(raw)
	}

	trimmedRaw := trimTrailingPunct(raw)
	trimmedShown := trimTrailingPunct(shown)
	if strings.HasPrefix(trimmedRaw, trimmedShown) && len(trimmedRaw) >= len(trimmedShown) {
		return s.accept(raw)
	}

	lcp := commonPrefixLen(shown, raw)
	rollback := len(shown) - lcp

	if rollback > s.cfg.MaxRollbackChars {
		s.pending = ""
		s.pendingCount = 0
		return nil
	}

	now := s.nowFn().UnixMilli()
	if now-s.lastRewriteMs < s.cfg.MinRewriteIntervalMS {
		return nil
	}

	if s.pending == raw {
		s.pendingCount++
	} else {
		s.pending = raw
		s.pendingCount = 1
	}

	if s.pendingCount < s.cfg.RewriteConfirmN {
		return nil
	}

	s.lastRewriteMs = now
	s.pending = ""
	s.pendingCount = 0
	return s.accept(raw)
}

// accept commits raw as the new shown text and builds the resulting
// (possibly micro-chunked) patch sequence.
func (s *Stabilizer) accept(raw string) []Patch {
	lcp := commonPrefixLen(s.shown, raw)
	deleteN := len(s.shown) - lcp
	insert := raw[lcp:]
	s.shown = raw

	now := s.nowFn().UnixMilli()

	if s.cfg.MicroMaxChars <= 0 || len(insert) <= s.cfg.MicroMaxChars {
		s.patchSeq++
		return []Patch{{Delete: deleteN, Insert: insert, Seq: s.patchSeq, TMs: now}}
	}

	return s.chunkInsert(deleteN, insert, now)
}

// chunkInsert slices a long insert along token (word-or-punct +
// trailing-whitespace) boundaries into sub-patches of at most
// MICRO_MAX_CHARS characters. Only the first sub-patch carries the
// delete count; continuations carry delete=0 and Continuation=true.
func (s *Stabilizer) chunkInsert(deleteN int, insert string, tMs int64) []Patch {
	tokens := wordTrailingSpace.FindAllString(insert, -1)
	if len(tokens) == 0 {
		s.patchSeq++
		return []Patch{{Delete: deleteN, Insert: insert, Seq: s.patchSeq, TMs: tMs}}
	}

	var patches []Patch
	var chunk strings.Builder
	first := true

	flush := func() {
		if chunk.Len() == 0 {
			return
		}
		s.patchSeq++
		d := 0
		if first {
			d = deleteN
		}
		patches = append(patches, Patch{
			Delete:       d,
			Insert:       chunk.String(),
			Seq:          s.patchSeq,
			TMs:          tMs,
			Continuation: !first,
		})
		first = false
		chunk.Reset()
	}

	for _, tok := range tokens {
		if chunk.Len() > 0 && chunk.Len()+len(tok) > s.cfg.MicroMaxChars {
			flush()
		}
		chunk.WriteString(tok)
		if chunk.Len() >= s.cfg.MicroMaxChars {
			flush()
		}
	}
	flush()

	return patches
}

// ProcessStable applies an authoritative full-text resync from the STT
// recorder: shown snaps to the snapshot, pending-rewrite state resets, and
// a Stable message is emitted — unless doing so would shrink the
// monotonically non-decreasing stable length, in which case it is ignored.
func (s *Stabilizer) ProcessStable(full string) *Stable {
	full = collapseWhitespace(full)
	if len(full) < s.maxStableLen {
		return nil
	}
	s.maxStableLen = len(full)
	s.shown = full
	s.pending = ""
	s.pendingCount = 0

	s.stableSeq++
	return &Stable{Full: full, Seq: s.stableSeq, TMs: s.nowFn().UnixMilli()}
}
