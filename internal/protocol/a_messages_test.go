package protocol

import "testing"

func TestParseClientMessageAudioJSON(t *testing.T) {
	raw := []byte(`{"audio":"AAAA","sr":48000,"dtype":"i16"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, ok := msg.(ClientAudioJSON)
	if !ok {
		t.Fatalf("expected ClientAudioJSON, got %T", msg)
	}
	if a.SR != 48000 || a.Dtype != "i16" || a.Audio != "AAAA" {
		t.Fatalf("unexpected fields: %+v", a)
	}
}

func TestParseClientMessageAudioJSONMissingSR(t *testing.T) {
	raw := []byte(`{"audio":"AAAA"}`)
	if _, err := ParseClientMessage(raw); err == nil {
		t.Fatal("expected error for missing sr")
	}
}

func TestParseClientMessageStartEvent(t *testing.T) {
	raw := []byte(`{"event":"start","sample_rate":44100,"dtype":"f32"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, ok := msg.(ClientEvent)
	if !ok {
		t.Fatalf("expected ClientEvent, got %T", msg)
	}
	if e.Event != "start" || e.SampleRate != 44100 || e.Dtype != "f32" {
		t.Fatalf("unexpected fields: %+v", e)
	}
}

func TestParseClientMessageAuth(t *testing.T) {
	raw := []byte(`{"type":"auth","token":"abc.def.ghi"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, ok := msg.(ClientAuth)
	if !ok {
		t.Fatalf("expected ClientAuth, got %T", msg)
	}
	if a.Token != "abc.def.ghi" {
		t.Fatalf("unexpected token: %q", a.Token)
	}
}

func TestParseClientMessageUnsupported(t *testing.T) {
	raw := []byte(`{"foo":"bar"}`)
	if _, err := ParseClientMessage(raw); err != ErrUnsupportedType {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestParseClientMessageInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
