// Package protocol encodes the "<command> <json>" text frames exchanged
// with clients.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyFrame is returned for a frame with no command.
var ErrEmptyFrame = errors.New("empty frame")

// Encode renders one frame. A nil payload is sent as {}.
func Encode(command string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", command, err)
	}
	frame := make([]byte, 0, len(command)+1+len(data))
	frame = append(frame, command...)
	frame = append(frame, ' ')
	frame = append(frame, data...)
	return frame, nil
}

// Decode splits a frame into its command and raw JSON payload. A frame with
// no payload yields {}.
func Decode(frame []byte) (string, json.RawMessage, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return "", nil, ErrEmptyFrame
	}
	command, payload, found := bytes.Cut(frame, []byte(" "))
	if !found || len(bytes.TrimSpace(payload)) == 0 {
		return string(command), json.RawMessage("{}"), nil
	}
	payload = bytes.TrimSpace(payload)
	if !json.Valid(payload) {
		return string(command), nil, fmt.Errorf("%s: malformed payload", command)
	}
	return string(command), json.RawMessage(payload), nil
}
