package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// request is one outbound framed message. Every request carries an
// identifier the agent echoes back in its response.
type request struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// inbound is one line received from the agent's stdout. Exactly one of two
// shapes is valid: an unsolicited event ({"type": "ready"}, no id) or a
// response ({"id", "ok", "payload"} / {"id", "ok": false, "error"}).
// OK is a pointer so a response can be told apart from an event.
type inbound struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	OK      *bool           `json:"ok"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

// encodeRequest serializes a request as a single newline-terminated line.
func encodeRequest(id, typ string, payload any) ([]byte, error) {
	data, err := json.Marshal(request{ID: id, Type: typ, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", typ, err)
	}
	return append(data, '\n'), nil
}

// decodeInbound parses one complete line from the agent. It returns an
// error for lines that are not valid JSON objects; classification of the
// decoded shape is the caller's job.
func decodeInbound(line []byte) (*inbound, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("empty line")
	}

	var msg inbound
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return &msg, nil
}
