// Package segmenter maintains the sliding uncommitted English buffer: it
// consumes upstream base/stable/patch updates, re-anchors a
// never-retreating commit boundary across non-prefix rewrites, and
// produces commit segments plus a draft tail on a translate-lag-by-N-words
// delayed view of the text.
package segmenter

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vtranser/captionstream/internal/protocol"
)

// Config carries the segmentation tunables.
type Config struct {
	ReanchorMaxTailChars  int
	HardRewriteTailChars  int
	PunctStableCount      int
	PunctMaxWaitMS        int64
	SegPauseMS            int64
	SegMinWords           int
	SegMaxWords           int
	SegMaxChars           int
	BeatStableCount       int
	TranslateDelayWords   int
	TranslateDelayReleaseMS int64
}

// CommitSegment is a short English fragment that will be translated and
// appended; it is never retracted once produced.
type CommitSegment struct {
	Text    string
	Trigger string
}

var sentenceEndPunct = regexp.MustCompile(`[.!?…;:]`)

var trailingConjunctionOrPreposition = map[string]bool{
	"and": true, "or": true, "but": true, "so": true, "because": true,
	"of": true, "in": true, "on": true, "to": true, "for": true,
	"with": true, "at": true, "by": true, "from": true, "a": true, "the": true,
}

type gate struct {
	text  string
	count int
	since time.Time
}

// Segmenter holds the per-connection segmenter state: base_full, buf
// (implicit via buf_start), last_rx, punct_gate, safe_gate. A connection
// drives it from two goroutines — the reader calling Ingest and a
// release ticker calling CheckRelease — so mu guards every field below.
type Segmenter struct {
	cfg Config

	mu sync.Mutex

	baseFull string
	bufStart int
	lastRx   time.Time

	punctGate gate
	safeGate  gate

	nowFn func() time.Time
}

// New builds a Segmenter with the given config.
func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg, nowFn: time.Now}
}

// BaseFull returns the last-known full upstream English text.
func (s *Segmenter) BaseFull() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseFull
}

// BufStart returns the absolute, never-decreasing commit boundary.
func (s *Segmenter) BufStart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufStart
}

// Ingest applies one upstream message (baseline/stable/patch/reset) to
// base_full, re-anchors the commit boundary across any non-prefix
// rewrite, evaluates commit triggers, and returns any newly committed
// segments plus the refreshed draft tail.
func (s *Segmenter) Ingest(msg protocol.UpstreamMessage) ([]CommitSegment, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	old := s.baseFull
	oldBufStart := s.bufStart

	var newFull string
	switch msg.Kind {
	case protocol.KindReset:
		s.baseFull = ""
		s.bufStart = 0
		s.punctGate = gate{}
		s.safeGate = gate{}
		s.lastRx = now
		return nil, ""
	case protocol.KindBaseline, protocol.KindStable:
		newFull = msg.Full
	case protocol.KindPatch:
		del := msg.Delete
		if del > len(old) {
			del = len(old)
		}
		newFull = old[:len(old)-del] + msg.Insert
	default:
		newFull = old
	}

	s.baseFull = newFull
	s.bufStart = reanchor(old, newFull, oldBufStart, s.cfg)

	// Evaluate triggers against the silence gap since the *previous*
	// reception before recording this one, so SEG_PAUSE_MS is measured
	// against actual inter-message gaps rather than always reading zero.
	commits := s.evaluateTriggers(now)
	s.lastRx = now
	return commits, s.draftTail()
}

// CheckRelease re-runs segmentation against the full, non-lagged text
// after TranslateDelayReleaseMS of silence, flushing any tail that the
// translate-lag view was holding back.
func (s *Segmenter) CheckRelease(now time.Time) ([]CommitSegment, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRx.IsZero() {
		return nil, s.draftTail()
	}
	elapsed := now.Sub(s.lastRx).Milliseconds()
	if elapsed < s.cfg.TranslateDelayReleaseMS {
		return nil, s.draftTail()
	}
	saved := s.cfg.TranslateDelayWords
	s.cfg.TranslateDelayWords = 0
	commits := s.evaluateTriggers(now)
	draft := s.draftTail()
	s.cfg.TranslateDelayWords = saved
	return commits, draft
}

// laggedFull returns base_full with its last TranslateDelayWords word
// tokens dropped, implementing the translate-lag-by-N-words delayed view.
func (s *Segmenter) laggedFull() string {
	if s.cfg.TranslateDelayWords <= 0 {
		return s.baseFull
	}
	tokens := wordIndexes(s.baseFull)
	if n := len(s.baseFull); n > 0 {
		if c := s.baseFull[n-1]; c != ' ' && c != '\t' && c != '\n' {
			tokens = append(tokens, n)
		}
	}
	if len(tokens) <= s.cfg.TranslateDelayWords {
		return ""
	}
	cut := tokens[len(tokens)-s.cfg.TranslateDelayWords-1]
	return s.baseFull[:cut]
}

// buf returns the current uncommitted suffix under the lagged view.
func (s *Segmenter) buf() string {
	lagged := s.laggedFull()
	if s.bufStart >= len(lagged) {
		return ""
	}
	return strings.TrimLeft(lagged[s.bufStart:], " \t\n")
}

// wordIndexes returns the byte offset of the start of each whitespace-run
// that follows a word, i.e. candidate "drop from here" cut points.
func wordIndexes(s string) []int {
	var idx []int
	inWord := false
	for i, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if !isSpace && !inWord {
			inWord = true
		} else if isSpace && inWord {
			idx = append(idx, i)
			inWord = false
		}
	}
	return idx
}

func cleanWords(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.ToLower(strings.Trim(f, ".,!?…;:\"'"))
	}
	return out
}

// reanchor computes the new buf_start across the non-prefix-rewrite
// strategies below, never letting it decrease.
func reanchor(old, newFull string, oldBufStart int, cfg Config) int {
	lcp := commonPrefixLen(old, newFull)

	// Strategy 1: rewrite only touches inside buf.
	if lcp >= oldBufStart {
		return clampBufStart(oldBufStart, oldBufStart, newFull)
	}

	committed := old
	if oldBufStart <= len(old) {
		committed = old[:oldBufStart]
	}

	// Strategy 2a: substring re-anchor on the tail of committed text.
	tail := committed
	if len(tail) > cfg.ReanchorMaxTailChars && cfg.ReanchorMaxTailChars > 0 {
		tail = tail[len(tail)-cfg.ReanchorMaxTailChars:]
	}
	if tail != "" {
		if idx := strings.LastIndex(newFull, tail); idx >= 0 {
			return clampBufStart(idx+len(tail), oldBufStart, newFull)
		}
	}

	// Strategy 2b: case-insensitive word-sequence match. Punctuation is
	// stripped from the committed tail's words only; newFull is lowercased
	// but keeps its punctuation, so the match succeeds when the rewrite
	// drops punctuation between those words and fails when it adds or
	// changes punctuation between them.
	words := cleanWords(tail)
	if n := len(words); n > 0 {
		needle := strings.Join(words, " ")
		cleanNew := strings.ToLower(newFull)
		if idx := strings.LastIndex(cleanNew, needle); idx >= 0 {
			// The end of the match in the lowercased text is used directly
			// as the new buf_start in newFull.
			approx := idx + len(needle)
			if approx <= len(newFull) {
				return clampBufStart(approx, oldBufStart, newFull)
			}
		}
	}

	// Strategy 3: suffix-prefix overlap on a boundary.
	maxK := len(committed)
	if len(newFull) < maxK {
		maxK = len(newFull)
	}
	for k := maxK; k > 0; k-- {
		suffix := committed[len(committed)-k:]
		if strings.HasPrefix(newFull, suffix) && isBoundary(suffix) {
			return clampBufStart(k, oldBufStart, newFull)
		}
	}

	// Strategy 4: hard rewrite, clamped to never retreat below buf_start.
	hard := len(newFull) - cfg.HardRewriteTailChars
	return clampBufStart(hard, oldBufStart, newFull)
}

func isBoundary(s string) bool {
	if s == "" {
		return true
	}
	r := rune(s[0])
	return r == ' ' || sentenceEndPunct.MatchString(string(r))
}

// clampBufStart bounds candidate to [floor, len(newFull)], enforcing that
// buf_start never retreats below its previous value.
func clampBufStart(candidate, floor int, newFull string) int {
	if candidate < floor {
		candidate = floor
	}
	if candidate > len(newFull) {
		candidate = len(newFull)
	}
	return candidate
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

// evaluateTriggers runs the four commit triggers, in spec order, until
// none fire, returning every segment popped from buf left-to-right.
func (s *Segmenter) evaluateTriggers(now time.Time) []CommitSegment {
	var commits []CommitSegment
	for {
		buf := s.buf()
		if buf == "" {
			s.punctGate = gate{}
			s.safeGate = gate{}
			return commits
		}

		if seg, ok := s.punctuationTrigger(buf, now); ok {
			commits = append(commits, seg)
			s.commitAdvance(len(seg.Text))
			continue
		}
		if seg, ok := s.pauseTrigger(buf, now); ok {
			commits = append(commits, seg)
			s.commitAdvance(len(seg.Text))
			continue
		}
		if seg, ok := s.maxTrigger(buf); ok {
			commits = append(commits, seg)
			s.commitAdvance(len(seg.Text))
			continue
		}
		if seg, ok := s.beatTrigger(buf, now); ok {
			commits = append(commits, seg)
			s.commitAdvance(len(seg.Text))
			continue
		}
		return commits
	}
}

// commitAdvance moves buf_start forward by n bytes of the lagged view
// (which sits at the same offsets as base_full's prefix) and invalidates
// both gates, since the text under them has just been consumed.
func (s *Segmenter) commitAdvance(n int) {
	lagged := s.laggedFull()
	start := s.bufStart
	// account for the leading whitespace trimmed by buf().
	trimmedLead := 0
	if start < len(lagged) {
		for trimmedLead < len(lagged)-start {
			c := lagged[start+trimmedLead]
			if c != ' ' && c != '\t' && c != '\n' {
				break
			}
			trimmedLead++
		}
	}
	s.bufStart = start + trimmedLead + n
	s.punctGate = gate{}
	s.safeGate = gate{}
}

func (s *Segmenter) punctuationTrigger(buf string, now time.Time) (CommitSegment, bool) {
	loc := sentenceEndPunct.FindStringIndex(buf)
	if loc == nil {
		s.punctGate = gate{}
		return CommitSegment{}, false
	}
	candidate := buf[:loc[1]]

	if s.punctGate.text == candidate {
		s.punctGate.count++
	} else {
		s.punctGate = gate{text: candidate, count: 1, since: now}
	}

	waited := now.Sub(s.punctGate.since).Milliseconds()
	if s.punctGate.count >= s.cfg.PunctStableCount || waited >= s.cfg.PunctMaxWaitMS {
		return CommitSegment{Text: candidate, Trigger: "punctuation"}, true
	}
	return CommitSegment{}, false
}

func (s *Segmenter) pauseTrigger(buf string, now time.Time) (CommitSegment, bool) {
	if s.lastRx.IsZero() {
		return CommitSegment{}, false
	}
	if now.Sub(s.lastRx).Milliseconds() < s.cfg.SegPauseMS {
		return CommitSegment{}, false
	}
	words := strings.Fields(buf)
	if len(words) < s.cfg.SegMinWords {
		return CommitSegment{}, false
	}
	chunk := firstChunk(buf, s.cfg.SegMaxWords, s.cfg.SegMaxChars)
	if chunk == "" {
		return CommitSegment{}, false
	}
	return CommitSegment{Text: chunk, Trigger: "pause"}, true
}

func (s *Segmenter) maxTrigger(buf string) (CommitSegment, bool) {
	words := strings.Fields(buf)
	if len(words) <= s.cfg.SegMaxWords && len(buf) <= s.cfg.SegMaxChars {
		return CommitSegment{}, false
	}
	chunk := firstChunk(buf, s.cfg.SegMaxWords, s.cfg.SegMaxChars)
	if chunk == "" {
		return CommitSegment{}, false
	}
	return CommitSegment{Text: chunk, Trigger: "max"}, true
}

func (s *Segmenter) beatTrigger(buf string, _ time.Time) (CommitSegment, bool) {
	safe := safePrefix(buf)
	if safe == "" {
		s.safeGate = gate{}
		return CommitSegment{}, false
	}
	if s.safeGate.text == safe {
		s.safeGate.count++
	} else {
		s.safeGate = gate{text: safe, count: 1}
	}
	if s.safeGate.count < s.cfg.BeatStableCount {
		return CommitSegment{}, false
	}
	if len(strings.Fields(safe)) < s.cfg.SegMinWords {
		return CommitSegment{}, false
	}
	return CommitSegment{Text: safe, Trigger: "beat"}, true
}

// firstChunk takes a word-boundary-respecting leading chunk of buf
// bounded by maxWords words and maxChars characters.
func firstChunk(buf string, maxWords, maxChars int) string {
	words := strings.Fields(buf)
	if len(words) == 0 {
		return ""
	}
	if maxWords <= 0 || maxWords > len(words) {
		maxWords = len(words)
	}
	var b strings.Builder
	taken := 0
	for i := 0; i < maxWords; i++ {
		w := words[i]
		sep := ""
		if i > 0 {
			sep = " "
		}
		if maxChars > 0 && b.Len()+len(sep)+len(w) > maxChars {
			break
		}
		b.WriteString(sep)
		b.WriteString(w)
		taken++
	}
	if taken == 0 {
		// Even the first word exceeds maxChars; take it anyway to avoid
		// a stuck buffer.
		return words[0]
	}
	return b.String()
}

// safePrefix trims buf to a word boundary, dropping the trailing
// (possibly still-growing) partial word.
func safePrefix(buf string) string {
	trimmed := strings.TrimRight(buf, " \t\n")
	if trimmed == "" {
		return ""
	}
	if strings.HasSuffix(buf, " ") || strings.HasSuffix(buf, "\t") || strings.HasSuffix(buf, "\n") {
		return trimmed
	}
	idx := strings.LastIndexAny(trimmed, " \t\n")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx]
}

// draftTail derives a safe preview from the remaining buf: trimmed to a
// word boundary, rejecting punctuation-only, too-short, or
// conjunction/preposition-terminated previews.
func (s *Segmenter) draftTail() string {
	buf := strings.TrimSpace(s.buf())
	if buf == "" {
		return ""
	}
	words := strings.Fields(buf)
	if len(words) == 0 {
		return ""
	}
	last := strings.ToLower(strings.Trim(words[len(words)-1], ".,!?…;:\"'"))
	if trailingConjunctionOrPreposition[last] {
		return ""
	}
	preview := strings.Join(words, " ")
	if sentenceEndPunct.MatchString(preview) && strings.TrimFunc(preview, func(r rune) bool {
		return sentenceEndPunct.MatchString(string(r)) || r == ' '
	}) == "" {
		return ""
	}
	if len(preview) < 2 {
		return ""
	}
	return preview
}
