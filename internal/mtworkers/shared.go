// Package mtworkers implements the Commit and Draft translation workers:
// a bounded-FIFO batched commit worker appending to an ever-growing
// Vietnamese transcript, and a single-slot, epoch-gated draft worker for
// low-latency overlay text.
package mtworkers

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// sharedState holds the fields the commit and draft workers both touch:
// the growing Vietnamese transcript and its sequence counter. The epoch
// field and its helpers are not used for draft gating; stale drafts are
// rejected by DraftWorker's own req_id counter.
type sharedState struct {
	mu    sync.Mutex
	full  string
	seq   int64
	epoch int64
}

// NewSharedState builds the state one connection's commit and draft
// workers share. The returned type is unexported; callers hold it purely
// to pass into NewCommitWorker/NewDraftWorker.
func NewSharedState() *sharedState {
	return &sharedState{}
}

func (s *sharedState) appendCommit(text string) (full string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full != "" && text != "" {
		s.full += " " + text
	} else {
		s.full += text
	}
	s.seq++
	return s.full, s.seq
}

func (s *sharedState) bumpEpoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	return s.epoch
}

func (s *sharedState) currentEpoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// garbageFilter suppresses degenerate translator output: a low
// unique-token ratio, excessive consecutive repetition, or mostly
// single-character tokens.
func garbageFilter(text string) bool {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return true
	}

	uniq := make(map[string]bool, len(tokens))
	singleChar := 0
	for _, t := range tokens {
		uniq[strings.ToLower(t)] = true
		if utf8.RuneCountInString(t) <= 1 {
			singleChar++
		}
	}

	if len(tokens) > 3 {
		ratio := float64(len(uniq)) / float64(len(tokens))
		if ratio < 0.3 {
			return true
		}
	}

	if float64(singleChar)/float64(len(tokens)) > 0.6 {
		return true
	}

	maxRepeat, cur := 1, 1
	for i := 1; i < len(tokens); i++ {
		if strings.EqualFold(tokens[i], tokens[i-1]) {
			cur++
			if cur > maxRepeat {
				maxRepeat = cur
			}
		} else {
			cur = 1
		}
	}
	return maxRepeat >= 4
}
