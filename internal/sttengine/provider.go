// Package sttengine declares the opaque STT recorder boundary, treating
// the actual decoder as a black-box external collaborator; this package
// only defines the interface the feeder drives and a deterministic mock
// for tests.
package sttengine

import "context"

// Hypothesis is one raw, possibly-rewriting text update from the recorder.
type Hypothesis struct {
	Text       string
	Confidence float64
	TSMs       int64
}

// StableUpdate is an authoritative full-text resync from the recorder.
type StableUpdate struct {
	Full string
	TSMs int64
}

// Recorder is fed 16 kHz mono PCM16LE frames by the feeder. It is driven
// exclusively from the feeder's thread of execution — the application
// never calls it from multiple goroutines concurrently.
type Recorder interface {
	Feed(ctx context.Context, pcm16 []byte) error
	Close() error
}

// Provider starts one Recorder per session along with its two output
// channels.
type Provider interface {
	StartSession(ctx context.Context, sessionID string) (Recorder, <-chan Hypothesis, <-chan StableUpdate, error)
}

// MockRecorder is a deterministic test double: it appends each fed frame's
// length to an internal counter and never produces hypotheses on its own;
// tests push synthetic Hypothesis/StableUpdate values directly onto the
// channels returned by MockProvider.
type MockRecorder struct {
	FramesFed   int
	BytesFed    int
	ClosedCount int
}

func (m *MockRecorder) Feed(_ context.Context, pcm16 []byte) error {
	m.FramesFed++
	m.BytesFed += len(pcm16)
	return nil
}

func (m *MockRecorder) Close() error {
	m.ClosedCount++
	return nil
}

// MockProvider hands back a single shared MockRecorder plus writable
// channels the test can push into.
type MockProvider struct {
	Recorder   *MockRecorder
	Hypotheses chan Hypothesis
	Stables    chan StableUpdate
}

// NewMockProvider builds a MockProvider with buffered channels.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Recorder:   &MockRecorder{},
		Hypotheses: make(chan Hypothesis, 64),
		Stables:    make(chan StableUpdate, 64),
	}
}

func (p *MockProvider) StartSession(_ context.Context, _ string) (Recorder, <-chan Hypothesis, <-chan StableUpdate, error) {
	return p.Recorder, p.Hypotheses, p.Stables, nil
}
