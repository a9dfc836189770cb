package handlers

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"
)

// RootHandler answers the bare probe Twilio consoles tend to hit.
type RootHandler struct{}

func (h RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Twilio media stream gateway is running"})
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Pause   *twimlPause  `xml:"Pause,omitempty"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlPause struct {
	Length int `xml:"length,attr"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// IncomingCallHandler is the Twilio voice webhook. It answers every
// call with a <Connect><Stream> TwiML document pointing back at this
// gateway's media-stream endpoint. Twilio sends the webhook as POST by
// default but can be configured for GET, so both are accepted.
type IncomingCallHandler struct {
	// StreamURL overrides the derived wss://<host>/media-stream URL.
	StreamURL string
}

func (h IncomingCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	streamURL := strings.TrimSpace(h.StreamURL)
	if streamURL == "" {
		streamURL = "wss://" + r.Host + "/media-stream"
	}

	doc := twimlResponse{
		// Leading pause gives the media stream a beat to come up
		// before the caller hears anything.
		Pause:   &twimlPause{Length: 1},
		Connect: twimlConnect{Stream: twimlStream{URL: streamURL}},
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}
