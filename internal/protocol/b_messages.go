package protocol

import "encoding/json"

// UpstreamKind is the canonical classification of an inbound Service B
// message, derived from field presence rather than a string-keyed type
// match: upstream senders use inconsistent type/event names —
// "stable", "stable_full", "stableText", "patch", "delta", "append", etc.
type UpstreamKind string

const (
	KindBaseline UpstreamKind = "baseline"
	KindStable   UpstreamKind = "stable"
	KindPatch    UpstreamKind = "patch"
	KindReset    UpstreamKind = "reset"
	KindUnknown  UpstreamKind = "unknown"
)

// UpstreamMessage is the canonical, parsed form of any inbound Service B
// message, regardless of the sender's exact field naming.
type UpstreamMessage struct {
	Kind   UpstreamKind
	Full   string // baseline/stable: authoritative full text
	Delete int    // patch: trailing chars to delete
	Insert string // patch: text to append
	Seq    int64
	TMs    int64
}

// upstreamRaw is a superset struct accepting every field-name variant seen
// across upstream senders.
type upstreamRaw struct {
	Type MessageType `json:"type"`

	Full       string `json:"full"`
	StableFull string `json:"stable_full"`
	StableText string `json:"stableText"`

	Delta  string `json:"delta"`
	Append string `json:"append"`
	Insert string `json:"insert"`
	Delete int     `json:"delete"`

	Seq int64 `json:"seq"`
	TMs int64 `json:"t_ms"`
}

// ParseUpstreamMessage implements the precedence rule:
// base > stable > patch. "base"/"baseline" and a declared reset always win;
// among the remainder, any full-text field wins over a delta/patch field,
// since a full resync is strictly more informative than an incremental one.
func ParseUpstreamMessage(raw []byte) (UpstreamMessage, error) {
	var r upstreamRaw
	if err := json.Unmarshal(raw, &r); err != nil {
		return UpstreamMessage{}, err
	}

	msg := UpstreamMessage{Seq: r.Seq, TMs: r.TMs}

	switch r.Type {
	case "reset":
		msg.Kind = KindReset
		return msg, nil
	case "baseline", "base":
		msg.Kind = KindBaseline
		msg.Full = firstNonEmpty(r.Full, r.StableFull, r.StableText)
		return msg, nil
	}

	full := firstNonEmpty(r.Full, r.StableFull, r.StableText)
	if full != "" {
		msg.Kind = KindStable
		msg.Full = full
		return msg, nil
	}

	insert := firstNonEmpty(r.Insert, r.Append, r.Delta)
	if insert != "" || r.Delete != 0 {
		msg.Kind = KindPatch
		msg.Insert = insert
		msg.Delete = r.Delete
		return msg, nil
	}

	msg.Kind = KindUnknown
	return msg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ---- server -> client (Service B) ----

// ViCommit is an append-only committed translation chunk.
type ViCommit struct {
	Type   MessageType `json:"type"`
	Append string      `json:"append"`
	Seq    int64       `json:"seq"`
	EnSeq  int64       `json:"en_seq"`
}

// ViDraft replaces the previous draft preview; Text=="" clears it.
type ViDraft struct {
	Type  MessageType `json:"type"`
	Text  string      `json:"text"`
	Seq   int64       `json:"seq"`
	EnSeq int64       `json:"en_seq"`
	ReqID int64       `json:"req_id"`
}

const (
	TypeViCommit MessageType = "vi-commit"
	TypeViDraft  MessageType = "vi-draft"
	TypeViDelta  MessageType = "vi-delta"
)

// ViDeltaCompat mirrors ViCommit under the legacy "vi-delta" type name for
// compatibility mode consumers.
type ViDeltaCompat struct {
	Type   MessageType `json:"type"`
	Append string      `json:"append"`
	Seq    int64       `json:"seq"`
	EnSeq  int64       `json:"en_seq"`
}

func NewViDeltaCompat(c ViCommit) ViDeltaCompat {
	return ViDeltaCompat{Type: TypeViDelta, Append: c.Append, Seq: c.Seq, EnSeq: c.EnSeq}
}
