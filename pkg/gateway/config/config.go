package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once at process start and passed into constructors.
// Core call logic never reads ambient process state.
type Config struct {
	Addr string

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the service is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	// OpenAI: realtime leg for the live call, chat leg for extraction.
	OpenAIAPIKey      string
	RealtimeWSBaseURL string
	RealtimeModel     string
	Voice             string
	Temperature       float64
	ChatBaseURL       string
	ChatModel         string
	ExtractionTimeout time.Duration

	// Restaurant catalog backend.
	RestaurantServiceURL    string
	RestaurantServiceAPIKey string
	RestaurantRefID         string
	RestaurantName          string

	// Telephony WebSocket.
	WSMaxJSONMessageBytes int64
	WSPingInterval        time.Duration
	WSWriteTimeout        time.Duration
	WSReadTimeout         time.Duration
	OutboundQueueSize     int
	MaxConcurrentCalls    int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("ORDERLINE_ADDR", ":5050"),
		TrustProxyHeaders:       envBoolOr("ORDERLINE_TRUST_PROXY_HEADERS", false),
		OpenAIAPIKey:            strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		RealtimeWSBaseURL:       envOr("ORDERLINE_REALTIME_WS_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:           envOr("ORDERLINE_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-10-01"),
		Voice:                   envOr("ORDERLINE_VOICE", "alloy"),
		Temperature:             envFloat64Or("ORDERLINE_TEMPERATURE", 0.8),
		ChatBaseURL:             envOr("ORDERLINE_CHAT_BASE_URL", "https://api.openai.com"),
		ChatModel:               envOr("ORDERLINE_CHAT_MODEL", "gpt-4o"),
		ExtractionTimeout:       envDurationOr("ORDERLINE_EXTRACTION_TIMEOUT", 20*time.Second),
		RestaurantServiceURL:    envOr("ORDERLINE_RESTAURANT_SERVICE_URL", ""),
		RestaurantServiceAPIKey: strings.TrimSpace(os.Getenv("ORDERLINE_RESTAURANT_SERVICE_API_KEY")),
		RestaurantRefID:         envOr("ORDERLINE_RESTAURANT_REF_ID", ""),
		RestaurantName:          envOr("ORDERLINE_RESTAURANT_NAME", "Cafe Tazza"),
		WSMaxJSONMessageBytes:   envInt64Or("ORDERLINE_WS_MAX_JSON_MESSAGE_BYTES", 64*1024),
		WSPingInterval:          envDurationOr("ORDERLINE_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:          envDurationOr("ORDERLINE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:           envDurationOr("ORDERLINE_WS_READ_TIMEOUT", 0),
		OutboundQueueSize:       envIntOr("ORDERLINE_OUTBOUND_QUEUE_SIZE", 128),
		MaxConcurrentCalls:      envIntOr("ORDERLINE_MAX_CONCURRENT_CALLS", 50),
		ReadHeaderTimeout:       envDurationOr("ORDERLINE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:             envDurationOr("ORDERLINE_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:     envDurationOr("ORDERLINE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.RealtimeWSBaseURL) == "" {
		return Config{}, fmt.Errorf("ORDERLINE_REALTIME_WS_URL must not be empty")
	}
	if strings.TrimSpace(cfg.RealtimeModel) == "" {
		return Config{}, fmt.Errorf("ORDERLINE_REALTIME_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		return Config{}, fmt.Errorf("ORDERLINE_VOICE must not be empty")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("ORDERLINE_TEMPERATURE must be within [0, 2]")
	}
	if strings.TrimSpace(cfg.ChatBaseURL) == "" {
		return Config{}, fmt.Errorf("ORDERLINE_CHAT_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.ChatModel) == "" {
		return Config{}, fmt.Errorf("ORDERLINE_CHAT_MODEL must not be empty")
	}
	if cfg.ExtractionTimeout <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_EXTRACTION_TIMEOUT must be > 0")
	}
	if (cfg.RestaurantServiceURL == "") != (cfg.RestaurantServiceAPIKey == "") {
		return Config{}, fmt.Errorf("ORDERLINE_RESTAURANT_SERVICE_URL and ORDERLINE_RESTAURANT_SERVICE_API_KEY must be set together")
	}
	if cfg.RestaurantServiceURL != "" && strings.TrimSpace(cfg.RestaurantRefID) == "" {
		return Config{}, fmt.Errorf("ORDERLINE_RESTAURANT_REF_ID must be set when the restaurant service is configured")
	}
	if cfg.WSMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_WS_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("ORDERLINE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.MaxConcurrentCalls <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_MAX_CONCURRENT_CALLS must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("ORDERLINE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
