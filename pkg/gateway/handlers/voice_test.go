package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRootHandler_Message(t *testing.T) {
	rr := httptest.NewRecorder()
	RootHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "running") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestRootHandler_UnknownPathIs404(t *testing.T) {
	rr := httptest.NewRecorder()
	RootHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestIncomingCall_TwiMLPointsAtMediaStream(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/incoming-call", nil)
	req.Host = "voice.example.com"
	rr := httptest.NewRecorder()
	IncomingCallHandler{}.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("content-type=%q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `<Stream url="wss://voice.example.com/media-stream">`) &&
		!strings.Contains(body, `<Stream url="wss://voice.example.com/media-stream"/>`) {
		t.Fatalf("body=%q", body)
	}
	if !strings.Contains(body, "<Connect>") {
		t.Fatalf("missing Connect element: %q", body)
	}
	if !strings.Contains(body, `<Pause length="1"`) {
		t.Fatalf("missing Pause element: %q", body)
	}
}

func TestIncomingCall_ExplicitStreamURLWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/incoming-call", nil)
	rr := httptest.NewRecorder()
	IncomingCallHandler{StreamURL: "wss://edge.example.com/media-stream"}.ServeHTTP(rr, req)

	if !strings.Contains(rr.Body.String(), "wss://edge.example.com/media-stream") {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestIncomingCall_RejectsOtherMethods(t *testing.T) {
	rr := httptest.NewRecorder()
	IncomingCallHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/incoming-call", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}
