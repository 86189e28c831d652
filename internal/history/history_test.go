package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hello world. How are you? Great!")
	want := []string{"Hello world.", "How are you?", "Great!"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentence %d mismatch: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSentencesKeepsTrailingFragment(t *testing.T) {
	got := splitSentences("Finished sentence. trailing fragment without punctuation")
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %+v", got)
	}
	if got[1] != "trailing fragment without punctuation" {
		t.Fatalf("unexpected trailing fragment: %q", got[1])
	}
}

func TestFileStoreAppendWritesAndFsyncs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.log")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	if err := store.Append(context.Background(), Record{SessionID: "s1", Seq: 1, Text: "Hello world."}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "Hello world.") {
		t.Fatalf("expected archived sentence in file, got %q", string(data))
	}
	if !strings.Contains(string(data), "s1") {
		t.Fatalf("expected session id in archived line, got %q", string(data))
	}
}

func TestFileStoreResetTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.log")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	_ = store.Append(context.Background(), Record{SessionID: "s1", Seq: 1, Text: "Hello."})
	if err := store.Reset(context.Background(), "s1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected file truncated after reset, got %d bytes", len(data))
	}
}

func TestNewStoreDefaultsToNoop(t *testing.T) {
	store, err := NewStore(context.Background(), "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Append(context.Background(), Record{SessionID: "s1", Text: "x"}); err != nil {
		t.Fatalf("noop append should never fail: %v", err)
	}
}

func TestNewStoreFileModeRequiresPath(t *testing.T) {
	if _, err := NewStore(context.Background(), "file", "", ""); err == nil {
		t.Fatal("expected error when file mode has no path")
	}
}

type fakeStore struct {
	appendErr error
	resetErr  error
	appends   int
	resets    int
	closed    bool
}

func (f *fakeStore) Append(context.Context, Record) error {
	f.appends++
	return f.appendErr
}

func (f *fakeStore) Reset(context.Context, string) error {
	f.resets++
	return f.resetErr
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func TestMultiStoreFansOutToEveryBackend(t *testing.T) {
	a, b := &fakeStore{}, &fakeStore{}
	m := &MultiStore{stores: []Store{a, b}}

	if err := m.Append(context.Background(), Record{SessionID: "s1", Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.appends != 1 || b.appends != 1 {
		t.Fatalf("expected both backends to receive the append, got a=%d b=%d", a.appends, b.appends)
	}

	if err := m.Reset(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.resets != 1 || b.resets != 1 {
		t.Fatalf("expected both backends to receive the reset, got a=%d b=%d", a.resets, b.resets)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatal("expected both backends closed")
	}
}

func TestMultiStoreJoinsErrorsButStillWritesBoth(t *testing.T) {
	a := &fakeStore{appendErr: errors.New("disk full")}
	b := &fakeStore{}
	m := &MultiStore{stores: []Store{a, b}}

	err := m.Append(context.Background(), Record{SessionID: "s1", Text: "hi"})
	if err == nil {
		t.Fatal("expected joined error from failing backend")
	}
	if a.appends != 1 || b.appends != 1 {
		t.Fatalf("expected both backends attempted, got a=%d b=%d", a.appends, b.appends)
	}
}
