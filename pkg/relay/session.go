// Package relay owns one phone call: it bridges the telephony leg and
// the realtime AI leg, handles caller barge-in with audio truncation,
// accumulates the transcript, and drives order extraction when the
// call ends.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/orderline/orderline/pkg/menu"
	"github.com/orderline/orderline/pkg/order"
	"github.com/orderline/orderline/pkg/realtime"
	"github.com/orderline/orderline/pkg/telephony"
)

// State is the explicit answer to "is an assistant response currently
// audible", so the barge-in precondition is one check instead of an
// inference from queue lengths.
type State int

const (
	StateIdle State = iota
	StateResponding
	StateInterrupting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResponding:
		return "responding"
	case StateInterrupting:
		return "interrupting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Upstream is the AI leg as the relay sees it. *realtime.Client
// satisfies it.
type Upstream interface {
	AppendAudio(ctx context.Context, payloadB64 string) error
	SendGreetingPrompt(ctx context.Context, text string) error
	TruncateItem(ctx context.Context, itemID string, audioEndMs int64) error
	Events() <-chan realtime.Event
	Close() error
}

// Downstream sends frames back to the caller. Implementations may
// return ErrBackpressure to have the frame dropped instead of queued
// without bound.
type Downstream interface {
	SendMedia(streamSID, payloadB64 string) error
	SendMark(streamSID, name string) error
	SendClear(streamSID string) error
}

// ErrBackpressure marks a dropped outbound frame. Audio is real time;
// stale audio is worse than missing audio.
var ErrBackpressure = errors.New("relay outbound backpressure")

// Extractor turns a finished transcript into a structured order.
type Extractor interface {
	Extract(ctx context.Context, transcript string, catalog *menu.Catalog) (*order.Order, error)
}

type Config struct {
	RestaurantName string
	// Greeting overrides the synthetic greeting turn; empty uses
	// GreetingPrompt(RestaurantName).
	Greeting string
}

type Dependencies struct {
	Logger       *slog.Logger
	DialUpstream func(ctx context.Context, instructions string) (Upstream, error)
	Downstream   Downstream
	Catalog      *menu.Catalog
	Extractor    Extractor
	CallID       string
	Config       Config
}

// Result is what a cleanly stopped call produced.
type Result struct {
	StreamSID  string
	Transcript *Transcript
	Order      *order.Order
	ExtractErr error
	BargeIns   int
}

// CallSession relays one call. All per-call state lives inside Run,
// which is the single serialization point for both legs' events.
type CallSession struct {
	logger       *slog.Logger
	dialUpstream func(ctx context.Context, instructions string) (Upstream, error)
	down         Downstream
	catalog      *menu.Catalog
	extractor    Extractor
	callID       string
	cfg          Config
}

func New(deps Dependencies) (*CallSession, error) {
	if deps.DialUpstream == nil {
		return nil, fmt.Errorf("upstream dialer is required")
	}
	if deps.Downstream == nil {
		return nil, fmt.Errorf("downstream is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &CallSession{
		logger:       deps.Logger,
		dialUpstream: deps.DialUpstream,
		down:         deps.Downstream,
		catalog:      deps.Catalog,
		extractor:    deps.Extractor,
		callID:       deps.CallID,
		cfg:          deps.Config,
	}, nil
}

// Run drives the call until the telephony leg stops or either leg
// fails. inbound carries decoded telephony events in arrival order; the
// channel closing means the telephony connection is gone. A non-nil
// Result is returned only for a clean stop.
func (s *CallSession) Run(ctx context.Context, inbound <-chan any) (*Result, error) {
	var (
		streamSID           string
		latestMediaMS       int64
		responseStartMS     int64
		haveResponseStart   bool
		lastAssistantItem   string
		markQueue           []string
		state               = StateIdle
		responseDonePending bool

		upstream       Upstream
		upstreamEvents <-chan realtime.Event

		transcript = &Transcript{}
		bargeIns   int
	)

	defer func() {
		if upstream != nil {
			_ = upstream.Close()
		}
	}()

	// Barge-in. No-op unless a response is audible right now; repeated
	// speech-started events after a reset fall through here.
	interrupt := func() {
		if state != StateResponding || len(markQueue) == 0 || !haveResponseStart {
			return
		}
		state = StateInterrupting

		elapsed := latestMediaMS - responseStartMS
		if elapsed < 0 {
			elapsed = 0
		}
		if lastAssistantItem != "" {
			if err := upstream.TruncateItem(ctx, lastAssistantItem, elapsed); err != nil {
				s.logger.Warn("relay truncate failed", "call_id", s.callID, "item_id", lastAssistantItem, "err", err)
			}
		}
		if err := s.down.SendClear(streamSID); err != nil && !errors.Is(err, ErrBackpressure) {
			s.logger.Warn("relay clear failed", "call_id", s.callID, "err", err)
		}
		s.logger.Info("relay barge-in",
			"call_id", s.callID,
			"item_id", lastAssistantItem,
			"elapsed_ms", elapsed,
			"marks_outstanding", len(markQueue))

		markQueue = markQueue[:0]
		lastAssistantItem = ""
		haveResponseStart = false
		responseDonePending = false
		state = StateIdle
		bargeIns++
	}

	finish := func() (*Result, error) {
		res := &Result{StreamSID: streamSID, Transcript: transcript, BargeIns: bargeIns}
		if transcript.Len() == 0 {
			s.logger.Info("relay call ended without transcript", "call_id", s.callID, "stream_sid", streamSID)
			return res, nil
		}
		if s.extractor == nil {
			s.logger.Warn("relay order extraction skipped: no extractor", "call_id", s.callID)
			return res, nil
		}
		// The caller already hung up; extraction must not inherit the
		// call's cancellation but still gets the extractor's own timeout.
		extracted, err := s.extractor.Extract(context.WithoutCancel(ctx), transcript.Join(), s.catalog)
		if err != nil {
			res.ExtractErr = err
			var verr *order.ValidationError
			if errors.As(err, &verr) {
				s.logger.Error("relay order rejected by validation", "call_id", s.callID, "stream_sid", streamSID, "err", err)
			} else {
				s.logger.Error("relay order extraction failed", "call_id", s.callID, "stream_sid", streamSID, "err", err)
			}
			return res, nil
		}
		res.Order = extracted
		s.logger.Info("relay order extracted",
			"call_id", s.callID,
			"stream_sid", streamSID,
			"lines", len(extracted.Items),
			"total", extracted.Total)
		return res, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ev, ok := <-inbound:
			if !ok {
				return nil, fmt.Errorf("telephony leg closed")
			}
			switch ev := ev.(type) {
			case telephony.Connected:
				s.logger.Debug("relay telephony connected", "call_id", s.callID, "protocol", ev.Protocol)

			case telephony.StreamStart:
				if upstream != nil {
					// Twilio sends one start per connection; a repeat
					// must not re-dial over the live upstream leg.
					s.logger.Warn("relay ignoring duplicate stream start",
						"call_id", s.callID,
						"stream_sid", ev.Start.StreamSID)
					continue
				}
				streamSID = ev.Start.StreamSID
				latestMediaMS = 0
				responseStartMS = 0
				haveResponseStart = false
				lastAssistantItem = ""
				markQueue = markQueue[:0]
				state = StateIdle

				instructions := SystemInstructions(s.cfg.RestaurantName, s.catalog)
				up, err := s.dialUpstream(ctx, instructions)
				if err != nil {
					return nil, fmt.Errorf("open upstream session: %w", err)
				}
				upstream = up
				upstreamEvents = up.Events()

				greeting := s.cfg.Greeting
				if greeting == "" {
					greeting = GreetingPrompt(s.cfg.RestaurantName)
				}
				if err := upstream.SendGreetingPrompt(ctx, greeting); err != nil {
					return nil, fmt.Errorf("send greeting: %w", err)
				}
				s.logger.Info("relay stream started", "call_id", s.callID, "stream_sid", streamSID)

			case telephony.MediaFrame:
				latestMediaMS = ev.TimestampMS
				if upstream == nil {
					// Upstream not open yet; dropping beats buffering
					// stale audio.
					continue
				}
				if err := upstream.AppendAudio(ctx, ev.Payload); err != nil {
					return nil, fmt.Errorf("append caller audio: %w", err)
				}

			case telephony.MarkEvent:
				if len(markQueue) > 0 {
					markQueue = markQueue[1:]
				}
				if len(markQueue) == 0 && responseDonePending && state == StateResponding {
					haveResponseStart = false
					lastAssistantItem = ""
					responseDonePending = false
					state = StateIdle
				}

			case telephony.StreamStop:
				s.logger.Info("relay stream stopped", "call_id", s.callID, "stream_sid", streamSID, "utterances", transcript.Len())
				return finish()

			default:
				s.logger.Warn("relay dropped unexpected telephony event", "call_id", s.callID, "type", fmt.Sprintf("%T", ev))
			}

		case ev, ok := <-upstreamEvents:
			if !ok {
				return nil, fmt.Errorf("ai leg closed")
			}
			switch ev := ev.(type) {
			case realtime.AudioDelta:
				if streamSID == "" {
					continue
				}
				if err := s.down.SendMedia(streamSID, ev.Payload); err != nil {
					if errors.Is(err, ErrBackpressure) {
						s.logger.Warn("relay dropped assistant audio", "call_id", s.callID)
						continue
					}
					return nil, fmt.Errorf("forward assistant audio: %w", err)
				}
				if !haveResponseStart {
					responseStartMS = latestMediaMS
					haveResponseStart = true
					state = StateResponding
				}
				if ev.ItemID != "" {
					lastAssistantItem = ev.ItemID
				}
				markQueue = append(markQueue, telephony.MarkResponsePart)
				if err := s.down.SendMark(streamSID, telephony.MarkResponsePart); err != nil && !errors.Is(err, ErrBackpressure) {
					return nil, fmt.Errorf("send mark: %w", err)
				}

			case realtime.SpeechStarted:
				interrupt()

			case realtime.InputTranscript:
				transcript.Append(SpeakerCustomer, ev.Text)

			case realtime.ResponseDone:
				if ev.Text != "" {
					transcript.Append(SpeakerAssistant, ev.Text)
				}
				if state == StateResponding {
					responseDonePending = true
					if len(markQueue) == 0 {
						haveResponseStart = false
						lastAssistantItem = ""
						responseDonePending = false
						state = StateIdle
					}
				}

			case realtime.ServerError:
				s.logger.Warn("relay ai session error", "call_id", s.callID, "code", ev.Code, "msg", ev.Message)
			}
		}
	}
}
