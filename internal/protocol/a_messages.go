// Package protocol defines the wire messages for both services and a
// tolerant parser for each direction.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a Service A websocket payload variant.
type MessageType string

const (
	TypeHello   MessageType = "hello"
	TypeAck     MessageType = "ack"
	TypePatch   MessageType = "patch"
	TypeStable  MessageType = "stable"
	TypeStatus  MessageType = "status"
	TypeError   MessageType = "error"
	TypeAuth    MessageType = "auth"
	TypeStart   MessageType = "start"
	TypeStopEOS MessageType = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// HelloDetail is the handshake payload sent once a session is admitted.
type HelloDetail struct {
	SampleRateInDefault int               `json:"sample_rate_in_default"`
	SampleRateOut       int               `json:"sample_rate_out"`
	FrameMS             int               `json:"frame_ms"`
	QueueMax            int               `json:"queue_max"`
	Device              string            `json:"device"`
	Model               string            `json:"model"`
	IdleTimeoutSec      float64           `json:"idle_timeout_sec"`
	Stabilizer          map[string]any    `json:"stabilizer"`
}

type Hello struct {
	Type   MessageType `json:"type"`
	Detail HelloDetail `json:"detail"`
}

type AckDetail struct {
	SrcSR       int    `json:"src_sr"`
	Dtype       string `json:"dtype"`
	AutoStarted bool   `json:"auto_started"`
}

type Ack struct {
	Type   MessageType `json:"type"`
	Detail AckDetail   `json:"detail"`
}

// Patch is an end-diff message: delete the last `Delete` characters of the
// client's current transcript, then append `Insert`.
type Patch struct {
	Type       MessageType `json:"type"`
	Delete     int         `json:"delete"`
	Insert     string      `json:"insert"`
	Seq        int64       `json:"seq"`
	TMs        int64       `json:"t_ms"`
	Continuation bool      `json:"continuation,omitempty"`
}

// Stable is an authoritative full-text snapshot.
type Stable struct {
	Type MessageType `json:"type"`
	Full string      `json:"full"`
	Seq  int64       `json:"seq"`
	TMs  int64       `json:"t_ms"`
}

type StatusDetail struct {
	FramesTotal  int64   `json:"frames_total"`
	Queue        int     `json:"queue"`
	BytesInQueue int64   `json:"bytes_in_queue"`
	BufMS        float64 `json:"buf_ms"`
	UIE2EMsLast  float64 `json:"ui_e2e_ms_last"`
}

type Status struct {
	Type   MessageType  `json:"type"`
	Stage  string       `json:"stage"`
	Detail StatusDetail `json:"detail"`
}

// ErrorMessage is the generic server->client error envelope.
type ErrorMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
	Code  string      `json:"code"`
}

// Error codes for the outbound error taxonomy.
const (
	CodeBusy        = "BUSY"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeIdleTimeout = "IDLE_TIMEOUT"
	CodeParseError  = "PARSE_ERROR"
	CodeInitFailed  = "INIT_FAILED"
	CodeMTFailed    = "MT_FAILED"
	CodeQueueShed   = "QUEUE_SHED"
)

// ---- client -> server ----

// ClientEvent models {event:"start"|"stop"|"eos"|"end", ...}.
type ClientEvent struct {
	Event      string `json:"event"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Dtype      string `json:"dtype,omitempty"`
}

// ClientAudioJSON models {audio, sr, dtype} JSON-framed PCM.
type ClientAudioJSON struct {
	Audio string `json:"audio"`
	SR    int    `json:"sr"`
	Dtype string `json:"dtype"`
}

// ClientAuth models {type:"auth", token}.
type ClientAuth struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token"`
}

// clientInbound is a superset struct tolerant of any client->server shape;
// ParseClientMessage picks the variant by which fields are populated.
type clientInbound struct {
	Type  MessageType `json:"type"`
	Event string      `json:"event"`

	SampleRate int    `json:"sample_rate"`
	Dtype      string `json:"dtype"`

	Audio string `json:"audio"`
	SR    int    `json:"sr"`

	Token string `json:"token"`
}

// ParseClientMessage is the tolerant parser for Service A inbound JSON
// text frames (binary PCM frames bypass this and are handled directly by
// the ingress reader).
func ParseClientMessage(raw []byte) (any, error) {
	var inbound clientInbound
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return nil, fmt.Errorf("invalid json message: %w", err)
	}

	switch {
	case inbound.Type == TypeAuth:
		if inbound.Token == "" {
			return nil, errors.New("invalid auth message: missing token")
		}
		return ClientAuth{Type: TypeAuth, Token: inbound.Token}, nil
	case inbound.Event != "":
		return ClientEvent{Event: inbound.Event, SampleRate: inbound.SampleRate, Dtype: inbound.Dtype}, nil
	case inbound.Audio != "":
		if inbound.SR <= 0 {
			return nil, errors.New("invalid audio message: missing sr")
		}
		return ClientAudioJSON{Audio: inbound.Audio, SR: inbound.SR, Dtype: inbound.Dtype}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
