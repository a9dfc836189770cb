package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/orderline/orderline/pkg/gateway/calls"
	"github.com/orderline/orderline/pkg/gateway/config"
	"github.com/orderline/orderline/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Calls     *calls.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                   bool     `json:"ok"`
		Draining             bool     `json:"draining"`
		ActiveCalls          int      `json:"active_calls"`
		RestaurantConfigured bool     `json:"restaurant_configured"`
		Issues               []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "openai api key is not configured")
	}
	if h.Config.RealtimeWSBaseURL == "" || h.Config.RealtimeModel == "" {
		issues = append(issues, "realtime endpoint must be configured")
	}
	if h.Config.ChatBaseURL == "" || h.Config.ChatModel == "" {
		issues = append(issues, "extraction endpoint must be configured")
	}
	if h.Config.ExtractionTimeout <= 0 {
		issues = append(issues, "extraction timeout must be > 0")
	}
	if h.Config.WSMaxJSONMessageBytes <= 0 {
		issues = append(issues, "ws max json message bytes must be > 0")
	}
	if h.Config.WSPingInterval <= 0 || h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "ws keepalive settings must be > 0")
	}
	if h.Config.OutboundQueueSize <= 0 {
		issues = append(issues, "outbound queue size must be > 0")
	}
	if h.Config.MaxConcurrentCalls <= 0 {
		issues = append(issues, "max concurrent calls must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "gateway is draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:                   ok,
		Draining:             draining,
		ActiveCalls:          h.Calls.Count(),
		RestaurantConfigured: h.Config.RestaurantServiceURL != "",
		Issues:               issues,
	})
}
