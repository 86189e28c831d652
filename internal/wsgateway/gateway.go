// Package wsgateway wires the chi-routed, gorilla-upgraded websocket
// transport for both services onto the component graph built underneath:
// admission/auth/session/ingress/feeder/stabilizer/emitter for the STT
// server (Service A), and protocol/segmenter/mtworkers/history for the
// translator (Service B). Each session runs an errgroup-supervised set
// of read/write/worker goroutines rather than a single run loop.
package wsgateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vtranser/captionstream/internal/protocol"
)

// newUpgrader builds a websocket.Upgrader whose CheckOrigin defaults to
// same-origin: browser clients must share the request's Host unless
// allowAnyOrigin opts out (e.g. for CLI/service clients behind a reverse
// proxy).
func newUpgrader(allowAnyOrigin bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAnyOrigin {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
}

// messageTypeOf extracts the wire `type` discriminant from an outbound
// payload for metrics labeling.
func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.Hello:
		return m.Type, true
	case protocol.Ack:
		return m.Type, true
	case protocol.Patch:
		return m.Type, true
	case protocol.Stable:
		return m.Type, true
	case protocol.Status:
		return m.Type, true
	case protocol.ErrorMessage:
		return m.Type, true
	case protocol.ViCommit:
		return m.Type, true
	case protocol.ViDraft:
		return m.Type, true
	case protocol.ViDeltaCompat:
		return m.Type, true
	default:
		return "", false
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": message, "code": code})
}

// writeCloseAndError sends a best-effort error message followed by a
// close frame carrying closeCode, then lets the caller tear the
// connection down. Errors writing either are ignored: the connection is
// closing regardless.
func writeCloseAndError(conn *websocket.Conn, errMsg protocol.ErrorMessage, closeCode int) {
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_ = conn.WriteJSON(errMsg)
	closeMsg := websocket.FormatCloseMessage(closeCode, errMsg.Code)
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(2*time.Second))
}
