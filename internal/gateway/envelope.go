package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// Inbound actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// Request is a client → server message.
type Request struct {
	Action  string `json:"action"`
	Symbol  string `json:"symbol,omitempty"`
	LastSeq int64  `json:"last_seq,omitempty"` // replay envelopes after this seq
	Ping    int64  `json:"ping,omitempty"`
}

// Ack confirms a subscription change.
type Ack struct {
	Type   string `json:"type"` // "subscribed" | "unsubscribed"
	Symbol string `json:"symbol"`
	Seq    int64  `json:"seq"`
}

// Pong answers a ping.
type Pong struct {
	Type     string `json:"type"`
	Ping     int64  `json:"ping"`
	ServerTS int64  `json:"server_ts"`
}

// ErrorMsg reports a rejected request.
type ErrorMsg struct {
	Type   string `json:"type"` // "error"
	Symbol string `json:"symbol,omitempty"`
	Error  string `json:"error"`
}

// Envelope is the server → client update wrapper.
type Envelope struct {
	Type    string          `json:"type"`
	Symbol  string          `json:"symbol"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
	Initial bool            `json:"initial,omitempty"`
}

// buildEnvelope hand-crafts the Envelope JSON so data is embedded without a
// second marshal. kind and symbol must not need JSON escaping.
func buildEnvelope(kind, symbol string, data []byte, now time.Time, seq int64, initial bool) []byte {
	buf := make([]byte, 0, len(kind)+len(symbol)+len(data)+128)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","symbol":"`...)
	buf = append(buf, symbol...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
