package channel

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"kanchat-cli/internal/model"
)

type FrameKind string

const (
	KindMessage FrameKind = "message"
	KindError   FrameKind = "error"
	KindPong    FrameKind = "pong"
	KindJoined  FrameKind = "joined"
	KindLeft    FrameKind = "left"
)

// Frame is one decoded inbound frame. Only KindMessage frames carry a Message.
type Frame struct {
	Kind    FrameKind
	Message model.Message
	// Error is the server's message for KindError frames.
	Error string
}

type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return "decode frame: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

type envelope struct {
	Type    string                 `json:"type"`
	Payload sonic.NoCopyRawMessage `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Decode accepts a flat chat frame or a typed {type, payload} envelope.
func Decode(data []byte) (Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Frame{}, &DecodeError{Reason: "not a json object"}
	}
	var env envelope
	if err := sonic.ConfigStd.Unmarshal(data, &env); err != nil {
		return Frame{}, &DecodeError{Reason: "invalid json", Err: err}
	}

	kind := FrameKind(strings.ToLower(strings.TrimSpace(env.Type)))
	switch kind {
	case "":
		return decodeMessage(data)
	case KindMessage:
		if len(env.Payload) == 0 {
			return Frame{}, &DecodeError{Reason: "message frame without payload"}
		}
		return decodeMessage(env.Payload)
	case KindError:
		var p errorPayload
		if len(env.Payload) > 0 {
			if err := sonic.ConfigStd.Unmarshal(env.Payload, &p); err != nil {
				return Frame{}, &DecodeError{Reason: "invalid error payload", Err: err}
			}
		}
		if p.Message == "" {
			p.Message = "server error"
		}
		return Frame{Kind: KindError, Error: p.Message}, nil
	case KindPong, KindJoined, KindLeft:
		return Frame{Kind: kind}, nil
	default:
		return Frame{}, &DecodeError{Reason: "unknown frame type " + env.Type}
	}
}

func decodeMessage(data []byte) (Frame, error) {
	var m model.Message
	if err := sonic.ConfigStd.Unmarshal(data, &m); err != nil {
		return Frame{}, &DecodeError{Reason: "invalid message", Err: err}
	}
	m.Username = strings.TrimSpace(m.Username)
	switch {
	case m.BoardID.IsZero():
		return Frame{}, &DecodeError{Reason: "missing board_id"}
	case strings.TrimSpace(m.Content) == "":
		return Frame{}, &DecodeError{Reason: "missing content"}
	case m.UserID.IsZero() && m.Username == "":
		return Frame{}, &DecodeError{Reason: "missing author"}
	}
	return Frame{Kind: KindMessage, Message: m}, nil
}

// Encode builds the outbound chat frame.
func Encode(req model.MessageRequest) ([]byte, error) {
	return sonic.ConfigStd.Marshal(req)
}
