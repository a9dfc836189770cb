package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/orderline/orderline/pkg/gateway/calls"
	"github.com/orderline/orderline/pkg/gateway/config"
	"github.com/orderline/orderline/pkg/gateway/lifecycle"
)

func readyConfig() config.Config {
	return config.Config{
		OpenAIAPIKey:          "sk-test",
		RealtimeWSBaseURL:     "wss://api.openai.com/v1/realtime",
		RealtimeModel:         "gpt-4o-realtime-preview-2024-10-01",
		ChatBaseURL:           "https://api.openai.com",
		ChatModel:             "gpt-4o",
		ExtractionTimeout:     20 * time.Second,
		WSMaxJSONMessageBytes: 64 * 1024,
		WSPingInterval:        20 * time.Second,
		WSWriteTimeout:        5 * time.Second,
		OutboundQueueSize:     128,
		MaxConcurrentCalls:    50,
		ReadHeaderTimeout:     time.Second,
		ReadTimeout:           time.Second,
	}
}

func TestHealthHandler_OK(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Body.String() != "ok\n" {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestReadyHandler_Ready(t *testing.T) {
	tracker := calls.NewTracker()
	defer tracker.Register("call_1", calls.Handle{})()

	h := ReadyHandler{Config: readyConfig(), Lifecycle: &lifecycle.Lifecycle{}, Calls: tracker}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp struct {
		OK          bool `json:"ok"`
		ActiveCalls int  `json:"active_calls"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.OK {
		t.Fatalf("ok=false body=%q", rr.Body.String())
	}
	if resp.ActiveCalls != 1 {
		t.Fatalf("active_calls=%d, want 1", resp.ActiveCalls)
	}
}

func TestReadyHandler_MissingAPIKeyNotReady(t *testing.T) {
	cfg := readyConfig()
	cfg.OpenAIAPIKey = ""

	h := ReadyHandler{Config: cfg, Lifecycle: &lifecycle.Lifecycle{}, Calls: calls.NewTracker()}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyHandler_DrainingNotReady(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)

	h := ReadyHandler{Config: readyConfig(), Lifecycle: lc, Calls: calls.NewTracker()}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp struct {
		Draining bool `json:"draining"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Draining {
		t.Fatalf("draining=false body=%q", rr.Body.String())
	}
}
