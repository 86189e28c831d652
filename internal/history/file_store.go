package history

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// FileStore appends archived text to a flat file, one sentence per line,
// fsyncing after every write so a crash never loses an acknowledged
// sentence.
type FileStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

var sentenceBoundary = regexp.MustCompile(`[^.!?…]+[.!?…]+|[^.!?…]+$`)

// NewFileStore opens (creating if necessary) the file at path for
// append-only writes.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history: file path is required for file-mode history")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	return &FileStore{path: path, f: f}, nil
}

// splitSentences breaks text into sentence-ending fragments, trimming
// surrounding whitespace and dropping empty fragments.
func splitSentences(text string) []string {
	matches := sentenceBoundary.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (s *FileStore) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sentence := range splitSentences(r.Text) {
		line := fmt.Sprintf("[%s #%d] %s\n", r.SessionID, r.Seq, sentence)
		if _, err := s.f.WriteString(line); err != nil {
			return fmt.Errorf("history: write: %w", err)
		}
	}
	return s.f.Sync()
}

// Reset truncates the file, discarding all previously archived history.
func (s *FileStore) Reset(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("history: truncate: %w", err)
	}
	if _, err := s.f.Seek(0, 0); err != nil {
		return fmt.Errorf("history: seek: %w", err)
	}
	return s.f.Sync()
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
