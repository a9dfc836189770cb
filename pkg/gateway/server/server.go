package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/orderline/orderline/pkg/gateway/calls"
	"github.com/orderline/orderline/pkg/gateway/config"
	"github.com/orderline/orderline/pkg/gateway/handlers"
	"github.com/orderline/orderline/pkg/gateway/lifecycle"
	"github.com/orderline/orderline/pkg/gateway/metrics"
	"github.com/orderline/orderline/pkg/gateway/mw"
	"github.com/orderline/orderline/pkg/menu"
	"github.com/orderline/orderline/pkg/order"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	httpClient *http.Client
	lifecycle  *lifecycle.Lifecycle
	calls      *calls.Tracker
	metrics    *metrics.Metrics
	menuClient *menu.Client
	extractor  *order.Extractor
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		httpClient: httpClient,
		lifecycle:  &lifecycle.Lifecycle{},
		calls:      calls.NewTracker(),
		metrics:    metrics.New("orderline"),
		menuClient: menu.NewClient(cfg.RestaurantServiceURL, cfg.RestaurantServiceAPIKey, httpClient),
		extractor:  order.NewExtractor(cfg.OpenAIAPIKey, cfg.ChatBaseURL, cfg.ChatModel, cfg.ExtractionTimeout, httpClient),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.RootHandler{})
	s.mux.Handle("/incoming-call", handlers.IncomingCallHandler{})
	s.mux.Handle("/media-stream", handlers.MediaStreamHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		Lifecycle: s.lifecycle,
		Calls:     s.calls,
		Metrics:   s.metrics,
		Catalog:   menuSource{client: s.menuClient, refID: s.cfg.RestaurantRefID},
		Extractor: s.extractor,
	})

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle, Calls: s.calls})
	s.mux.Handle("/metrics", s.metrics.Handler())
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// MenuClient exposes the restaurant backend client for startup probes.
func (s *Server) MenuClient() *menu.Client {
	return s.menuClient
}

func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) ActiveCalls() int {
	return s.calls.Count()
}

// WaitCalls blocks until in-flight calls finish or ctx expires.
func (s *Server) WaitCalls(ctx context.Context) bool {
	return s.calls.Wait(ctx)
}

func (s *Server) CancelCalls() int {
	return s.calls.CancelAll()
}

// menuSource adapts the restaurant backend client to the per-call
// snapshot the media handler wants. An unconfigured backend yields a
// nil catalog, which downgrades the agent to a menuless conversation.
type menuSource struct {
	client *menu.Client
	refID  string
}

func (m menuSource) CatalogSnapshot(ctx context.Context) (*menu.Catalog, error) {
	if m.client == nil || !m.client.Configured() {
		return nil, nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.MenuCatalog(fetchCtx, m.refID)
}
