// Package telephony implements the Twilio Media Streams wire protocol used on
// the caller-facing WebSocket leg: envelope decoding of inbound events and
// construction of outbound media/mark/clear frames.
package telephony

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Mark name attached to every outbound assistant audio frame. The telephony
// side echoes it back once the chunk has been played.
const MarkResponsePart = "responsePart"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// MediaFormat is the negotiated audio shape reported by the stream start
// event. Twilio narrowband telephony is audio/x-mulaw @8000Hz mono.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type Connected struct {
	Event    string `json:"event"`
	Protocol string `json:"protocol,omitempty"`
	Version  string `json:"version,omitempty"`
}

type StreamStart struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Start     struct {
		AccountSID       string            `json:"accountSid,omitempty"`
		CallSID          string            `json:"callSid,omitempty"`
		StreamSID        string            `json:"streamSid"`
		Tracks           []string          `json:"tracks,omitempty"`
		MediaFormat      MediaFormat       `json:"mediaFormat,omitempty"`
		CustomParameters map[string]string `json:"customParameters,omitempty"`
	} `json:"start"`
}

// MediaFrame is one inbound caller audio chunk. Payload stays base64 encoded;
// the relay forwards it verbatim. Timestamp is the presentation time in
// milliseconds since stream start, monotonic per stream.
type MediaFrame struct {
	Event       string
	StreamSID   string
	Track       string
	TimestampMS int64
	Payload     string
}

// Twilio serializes numeric media fields as JSON strings. Accept both.
func (m *MediaFrame) UnmarshalJSON(data []byte) error {
	var raw struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Track     string          `json:"track"`
			Timestamp json.RawMessage `json:"timestamp"`
			Payload   string          `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := flexInt64(raw.Media.Timestamp)
	if err != nil {
		return fmt.Errorf("media.timestamp: %w", err)
	}
	m.Event = raw.Event
	m.StreamSID = raw.StreamSID
	m.Track = raw.Media.Track
	m.TimestampMS = ts
	m.Payload = raw.Media.Payload
	return nil
}

type MarkEvent struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type StreamStop struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// DecodeEvent dispatches one inbound telephony frame to its typed form.
// Unknown event names return a DecodeError so callers can log and skip the
// frame without tearing down the call.
func DecodeEvent(data []byte) (any, error) {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	event := strings.TrimSpace(envelope.Event)
	if event == "" {
		return nil, badFrame("missing event", "event")
	}

	switch event {
	case "connected":
		var msg Connected
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid connected frame", "")
		}
		return msg, nil
	case "start":
		var msg StreamStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid start frame", "")
		}
		if strings.TrimSpace(msg.Start.StreamSID) == "" && strings.TrimSpace(msg.StreamSID) == "" {
			return nil, badFrame("start.streamSid is required", "start.streamSid")
		}
		if strings.TrimSpace(msg.Start.StreamSID) == "" {
			msg.Start.StreamSID = msg.StreamSID
		}
		return msg, nil
	case "media":
		var msg MediaFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid media frame", "")
		}
		if strings.TrimSpace(msg.Payload) == "" {
			return nil, badFrame("media.payload is required", "media.payload")
		}
		if msg.TimestampMS < 0 {
			return nil, badFrame("media.timestamp must be >= 0", "media.timestamp")
		}
		return msg, nil
	case "mark":
		var msg MarkEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid mark frame", "")
		}
		return msg, nil
	case "stop":
		var msg StreamStop
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid stop frame", "")
		}
		return msg, nil
	default:
		return nil, badFrame("unsupported event", "event")
	}
}

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundMark struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// EncodeMedia builds an outbound assistant audio frame. The payload is the
// base64 audio exactly as received from the AI leg.
func EncodeMedia(streamSID, payloadB64 string) ([]byte, error) {
	if strings.TrimSpace(streamSID) == "" {
		return nil, fmt.Errorf("streamSid is required")
	}
	frame := outboundMedia{Event: "media", StreamSID: streamSID}
	frame.Media.Payload = payloadB64
	return json.Marshal(frame)
}

func EncodeMark(streamSID, name string) ([]byte, error) {
	if strings.TrimSpace(streamSID) == "" {
		return nil, fmt.Errorf("streamSid is required")
	}
	frame := outboundMark{Event: "mark", StreamSID: streamSID}
	frame.Mark.Name = name
	return json.Marshal(frame)
}

func EncodeClear(streamSID string) ([]byte, error) {
	if strings.TrimSpace(streamSID) == "" {
		return nil, fmt.Errorf("streamSid is required")
	}
	return json.Marshal(outboundClear{Event: "clear", StreamSID: streamSID})
}

func flexInt64(raw json.RawMessage) (int64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}
