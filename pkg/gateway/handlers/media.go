package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orderline/orderline/pkg/gateway/calls"
	"github.com/orderline/orderline/pkg/gateway/config"
	"github.com/orderline/orderline/pkg/gateway/lifecycle"
	"github.com/orderline/orderline/pkg/gateway/metrics"
	"github.com/orderline/orderline/pkg/gateway/mw"
	"github.com/orderline/orderline/pkg/menu"
	"github.com/orderline/orderline/pkg/realtime"
	"github.com/orderline/orderline/pkg/relay"
	"github.com/orderline/orderline/pkg/telephony"
)

// CatalogSource yields the menu snapshot a call should be answered
// with. Each call takes one snapshot at connect time and never sees
// later menu edits.
type CatalogSource interface {
	CatalogSnapshot(ctx context.Context) (*menu.Catalog, error)
}

// UpstreamDialer opens the AI leg for one call.
type UpstreamDialer func(ctx context.Context, instructions string) (relay.Upstream, error)

// MediaStreamHandler handles /media-stream websocket calls from Twilio.
type MediaStreamHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Calls     *calls.Tracker
	Metrics   *metrics.Metrics
	Catalog   CatalogSource
	Extractor relay.Extractor

	// DialUpstream overrides the OpenAI realtime dialer, for tests.
	DialUpstream UpstreamDialer
}

func (h MediaStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}
	if h.Config.MaxConcurrentCalls > 0 && h.Calls.Count() >= h.Config.MaxConcurrentCalls {
		http.Error(w, "too many active calls", http.StatusServiceUnavailable)
		return
	}

	// Twilio does not send an Origin header; nothing to check.
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.WSMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxJSONMessageBytes)
	}

	callID := "call_" + uuid.NewString()
	logger = logger.With("call_id", callID, "request_id", reqID)
	logger.Info("call connected", "remote", mw.ClientIP(r, h.Config.TrustProxyHeaders))

	// The request context dies with handler teardown rules that do not
	// fit a hijacked connection, so the call gets its own lineage.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unregister := h.Calls.Register(callID, calls.Handle{Cancel: cancel})
	defer unregister()

	h.Metrics.RecordCallStart()
	start := time.Now()

	writer := relay.NewDownstreamWriter(conn, relay.WriterConfig{
		QueueSize:    h.Config.OutboundQueueSize,
		WriteTimeout: h.Config.WSWriteTimeout,
		PingInterval: h.Config.WSPingInterval,
	})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := writer.Run(ctx); err != nil {
			logger.Warn("outbound writer stopped", "err", err)
		}
	}()

	inbound := make(chan any, 64)
	go h.readTelephony(ctx, conn, inbound, logger)

	catalog := h.fetchCatalog(ctx, logger)

	dial := h.DialUpstream
	if dial == nil {
		dial = h.dialRealtime
	}

	session, err := relay.New(relay.Dependencies{
		Logger:       logger,
		DialUpstream: dial,
		Downstream:   countingDownstream{down: writer, metrics: h.Metrics},
		Catalog:      catalog,
		Extractor:    h.Extractor,
		CallID:       callID,
		Config: relay.Config{
			RestaurantName: h.Config.RestaurantName,
		},
	})
	if err != nil {
		logger.Error("call setup failed", "err", err)
		h.Metrics.RecordCallEnd("setup_error", time.Since(start))
		return
	}

	res, runErr := session.Run(ctx, inbound)
	canceled := ctx.Err() != nil

	// Stop the writer before reporting so close frames flush.
	cancel()
	select {
	case <-writerDone:
	case <-time.After(2 * time.Second):
	}

	status := "completed"
	switch {
	case runErr != nil && canceled:
		status = "canceled"
	case runErr != nil:
		status = "error"
	}
	h.Metrics.RecordCallEnd(status, time.Since(start))

	if runErr != nil {
		logger.Warn("call ended with error", "err", runErr, "duration_ms", time.Since(start).Milliseconds())
		return
	}

	h.Metrics.RecordBargeIns(res.BargeIns)
	switch {
	case res.Order != nil:
		h.Metrics.RecordExtraction("ok")
	case res.ExtractErr != nil:
		h.Metrics.RecordExtraction("error")
	default:
		h.Metrics.RecordExtraction("skipped")
	}
	logger.Info("call ended",
		"stream_sid", res.StreamSID,
		"duration_ms", time.Since(start).Milliseconds(),
		"utterances", res.Transcript.Len(),
		"barge_ins", res.BargeIns,
		"order_extracted", res.Order != nil)
}

// readTelephony decodes inbound Twilio frames into the relay's event
// channel. Closing the channel is the only way the relay learns the
// telephony leg is gone.
func (h MediaStreamHandler) readTelephony(ctx context.Context, conn *websocket.Conn, inbound chan<- any, logger *slog.Logger) {
	defer close(inbound)
	for {
		if h.Config.WSReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.Config.WSReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Debug("telephony read ended", "err", err)
			}
			return
		}
		ev, err := telephony.DecodeEvent(data)
		if err != nil {
			var derr *telephony.DecodeError
			if errors.As(err, &derr) {
				logger.Warn("dropping malformed telephony frame", "err", derr)
				continue
			}
			logger.Warn("dropping undecodable telephony frame", "err", err)
			continue
		}
		if _, ok := ev.(telephony.MediaFrame); ok {
			h.Metrics.RecordAudioFrame("inbound")
		}
		select {
		case inbound <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (h MediaStreamHandler) fetchCatalog(ctx context.Context, logger *slog.Logger) *menu.Catalog {
	if h.Catalog == nil {
		return nil
	}
	catalog, err := h.Catalog.CatalogSnapshot(ctx)
	if err != nil {
		// The call still goes through; the agent just works without a
		// menu and extraction validates against nothing.
		logger.Warn("menu snapshot unavailable", "err", err)
		return nil
	}
	return catalog
}

func (h MediaStreamHandler) dialRealtime(ctx context.Context, instructions string) (relay.Upstream, error) {
	cfg := realtime.Config{
		APIKey:      h.Config.OpenAIAPIKey,
		BaseWSURL:   h.Config.RealtimeWSBaseURL,
		Model:       h.Config.RealtimeModel,
		Voice:       h.Config.Voice,
		Temperature: h.Config.Temperature,
	}
	client, err := realtime.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := client.ConfigureSession(ctx, cfg, instructions); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// countingDownstream layers frame metrics over the writer without the
// relay knowing about prometheus.
type countingDownstream struct {
	down    relay.Downstream
	metrics *metrics.Metrics
}

func (c countingDownstream) SendMedia(streamSID, payloadB64 string) error {
	err := c.down.SendMedia(streamSID, payloadB64)
	if err == nil {
		c.metrics.RecordAudioFrame("outbound")
	}
	return err
}

func (c countingDownstream) SendMark(streamSID, name string) error {
	return c.down.SendMark(streamSID, name)
}

func (c countingDownstream) SendClear(streamSID string) error {
	return c.down.SendClear(streamSID)
}
