package protocol

import "testing"

func TestParseUpstreamMessagePrecedenceBaseOverStable(t *testing.T) {
	raw := []byte(`{"type":"baseline","full":"hello world"}`)
	msg, err := ParseUpstreamMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindBaseline || msg.Full != "hello world" {
		t.Fatalf("unexpected: %+v", msg)
	}
}

func TestParseUpstreamMessageReset(t *testing.T) {
	raw := []byte(`{"type":"reset"}`)
	msg, err := ParseUpstreamMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindReset {
		t.Fatalf("expected reset, got %+v", msg)
	}
}

func TestParseUpstreamMessageStableAliases(t *testing.T) {
	cases := []string{
		`{"full":"a b c"}`,
		`{"stable_full":"a b c"}`,
		`{"stableText":"a b c"}`,
	}
	for _, raw := range cases {
		msg, err := ParseUpstreamMessage([]byte(raw))
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", raw, err)
		}
		if msg.Kind != KindStable || msg.Full != "a b c" {
			t.Fatalf("unexpected for %s: %+v", raw, msg)
		}
	}
}

func TestParseUpstreamMessagePatchAliases(t *testing.T) {
	cases := []string{
		`{"insert":" world","delete":0}`,
		`{"append":" world"}`,
		`{"delta":" world"}`,
	}
	for _, raw := range cases {
		msg, err := ParseUpstreamMessage([]byte(raw))
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", raw, err)
		}
		if msg.Kind != KindPatch || msg.Insert != " world" {
			t.Fatalf("unexpected for %s: %+v", raw, msg)
		}
	}
}

func TestParseUpstreamMessageDeleteOnlyIsPatch(t *testing.T) {
	raw := []byte(`{"delete":5}`)
	msg, err := ParseUpstreamMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindPatch || msg.Delete != 5 {
		t.Fatalf("unexpected: %+v", msg)
	}
}

func TestParseUpstreamMessageUnknown(t *testing.T) {
	raw := []byte(`{"foo":"bar"}`)
	msg, err := ParseUpstreamMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindUnknown {
		t.Fatalf("expected unknown, got %+v", msg)
	}
}
