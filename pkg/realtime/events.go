package realtime

import (
	"encoding/json"
	"strings"
)

// Event is a decoded server event from the realtime session. The relay
// loop switches on the concrete type; events it does not care about are
// never surfaced.
type Event interface {
	realtimeEvent()
}

// AudioDelta carries one base64 G.711 u-law chunk of assistant speech.
type AudioDelta struct {
	ItemID  string
	Payload string
}

// SpeechStarted signals that server-side VAD detected the caller
// speaking again.
type SpeechStarted struct{}

// InputTranscript is the completed transcription of one caller turn.
type InputTranscript struct {
	Text string
}

// ResponseDone is emitted when the assistant finishes a response; Text
// is the assistant transcript extracted from the response output, empty
// when the response carried none.
type ResponseDone struct {
	Text string
}

// ServerError surfaces an error event from the session.
type ServerError struct {
	Code    string
	Message string
}

func (AudioDelta) realtimeEvent()      {}
func (SpeechStarted) realtimeEvent()   {}
func (InputTranscript) realtimeEvent() {}
func (ResponseDone) realtimeEvent()    {}
func (ServerError) realtimeEvent()     {}

const (
	typeAudioDelta          = "response.audio.delta"
	typeSpeechStarted       = "input_audio_buffer.speech_started"
	typeInputTranscriptDone = "conversation.item.input_audio_transcription.completed"
	typeResponseDone        = "response.done"
	typeError               = "error"
)

// decodeServerEvent turns a raw server frame into an Event. ok is false
// for frames the relay has no use for, including malformed ones; the
// session keeps going either way.
func decodeServerEvent(data []byte) (Event, bool) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}

	switch env.Type {
	case typeAudioDelta:
		var msg struct {
			ItemID string `json:"item_id"`
			Delta  string `json:"delta"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Delta == "" {
			return nil, false
		}
		return AudioDelta{ItemID: msg.ItemID, Payload: msg.Delta}, true

	case typeSpeechStarted:
		return SpeechStarted{}, true

	case typeInputTranscriptDone:
		var msg struct {
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, false
		}
		text := strings.TrimSpace(msg.Transcript)
		if text == "" {
			return nil, false
		}
		return InputTranscript{Text: text}, true

	case typeResponseDone:
		var msg struct {
			Response struct {
				Output []struct {
					Content []struct {
						Type       string `json:"type"`
						Transcript string `json:"transcript"`
					} `json:"content"`
				} `json:"output"`
			} `json:"response"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return ResponseDone{}, true
		}
		for _, out := range msg.Response.Output {
			for _, part := range out.Content {
				if part.Type == "audio" && strings.TrimSpace(part.Transcript) != "" {
					return ResponseDone{Text: strings.TrimSpace(part.Transcript)}, true
				}
			}
		}
		return ResponseDone{}, true

	case typeError:
		var msg struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, false
		}
		return ServerError{Code: msg.Error.Code, Message: msg.Error.Message}, true
	}

	return nil, false
}
