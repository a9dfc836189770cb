package relay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orderline/orderline/pkg/telephony"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type WriterConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DownstreamWriter serializes all outbound telephony frames onto one
// writer goroutine. Clear frames ride a priority queue so a barge-in
// flush is never stuck behind buffered audio; media and marks are
// dropped with ErrBackpressure when the normal queue is full.
type DownstreamWriter struct {
	ws       wsWriter
	cfg      WriterConfig
	priority chan []byte
	normal   chan []byte
}

func NewDownstreamWriter(ws wsWriter, cfg WriterConfig) *DownstreamWriter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &DownstreamWriter{
		ws:       ws,
		cfg:      cfg,
		priority: make(chan []byte, 8),
		normal:   make(chan []byte, cfg.QueueSize),
	}
}

func (w *DownstreamWriter) SendMedia(streamSID, payloadB64 string) error {
	frame, err := telephony.EncodeMedia(streamSID, payloadB64)
	if err != nil {
		return err
	}
	return w.enqueue(w.normal, frame)
}

func (w *DownstreamWriter) SendMark(streamSID, name string) error {
	frame, err := telephony.EncodeMark(streamSID, name)
	if err != nil {
		return err
	}
	return w.enqueue(w.normal, frame)
}

func (w *DownstreamWriter) SendClear(streamSID string) error {
	frame, err := telephony.EncodeClear(streamSID)
	if err != nil {
		return err
	}
	return w.enqueue(w.priority, frame)
}

func (w *DownstreamWriter) enqueue(ch chan []byte, frame []byte) error {
	select {
	case ch <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Run writes queued frames until ctx is canceled or a write fails.
func (w *DownstreamWriter) Run(ctx context.Context) error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingTicker := time.NewTicker(w.cfg.PingInterval)
	defer pingTicker.Stop()

	var pendingNormal []byte

	for {
		select {
		case <-ctx.Done():
			w.flushPriorityOnShutdown()
			_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(w.cfg.WriteTimeout))
			_ = w.ws.Close()
			return nil
		default:
		}

		// Hard priority: drain clear frames before anything else.
		select {
		case frame := <-w.priority:
			if err := w.writeFrame(frame); err != nil {
				return err
			}
			continue
		default:
		}

		// A pending normal frame still yields to a newly-queued clear.
		if pendingNormal != nil {
			select {
			case frame := <-w.priority:
				if err := w.writeFrame(frame); err != nil {
					return err
				}
				continue
			default:
			}
			if err := w.writeFrame(pendingNormal); err != nil {
				return err
			}
			pendingNormal = nil
			continue
		}

		select {
		case <-ctx.Done():
			continue
		case <-pingTicker.C:
			deadline := time.Now().Add(w.cfg.WriteTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame := <-w.priority:
			if err := w.writeFrame(frame); err != nil {
				return err
			}
		case frame := <-w.normal:
			pendingNormal = frame
		}
	}
}

func (w *DownstreamWriter) flushPriorityOnShutdown() {
	deadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; i < 8 && time.Now().Before(deadline); i++ {
		select {
		case frame := <-w.priority:
			_ = w.writeFrame(frame)
		default:
			return
		}
	}
}

func (w *DownstreamWriter) writeFrame(frame []byte) error {
	if err := w.ws.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, frame)
}
