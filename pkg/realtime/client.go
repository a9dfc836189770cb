// Package realtime maintains the upstream speech-to-speech session: one
// WebSocket to the OpenAI Realtime API carrying caller audio up and
// assistant audio plus transcripts back down.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultRealtimeWSBase = "wss://api.openai.com/v1/realtime"

// Config holds everything needed to open a session.
type Config struct {
	APIKey      string
	BaseWSURL   string
	Model       string
	Voice       string
	Temperature float64
}

// Client is a live realtime session. Writers are safe for concurrent
// use; Events is read by exactly one consumer.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	errMu   sync.Mutex

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once

	lastServerError string
	lastClose       string
}

// Dial opens the session WebSocket. The session is not usable for
// conversation until ConfigureSession has been sent.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("realtime model is required")
	}
	wsURL, err := buildRealtimeWSURL(strings.TrimSpace(cfg.BaseWSURL), strings.TrimSpace(cfg.Model))
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:   conn,
		events: make(chan Event, 256),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ConfigureSession applies the audio formats, voice, VAD mode, and
// system instructions for the call. Must be the first message sent.
func (c *Client) ConfigureSession(ctx context.Context, cfg Config, instructions string) error {
	return c.writeJSON(ctx, map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"turn_detection":      map[string]any{"type": "server_vad"},
			"input_audio_format":  "g711_ulaw",
			"output_audio_format": "g711_ulaw",
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
			"voice":        cfg.Voice,
			"instructions": instructions,
			"modalities":   []string{"text", "audio"},
			"temperature":  cfg.Temperature,
		},
	})
}

// AppendAudio forwards one base64 u-law chunk of caller audio into the
// input buffer. Server VAD decides turn boundaries.
func (c *Client) AppendAudio(ctx context.Context, payloadB64 string) error {
	return c.writeJSON(ctx, map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": payloadB64,
	})
}

// SendGreetingPrompt seeds the conversation with a user item asking the
// assistant to greet the caller, then requests a response so the
// assistant speaks first.
func (c *Client) SendGreetingPrompt(ctx context.Context, text string) error {
	if err := c.writeJSON(ctx, map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}); err != nil {
		return err
	}
	return c.CreateResponse(ctx)
}

// CreateResponse asks the session to generate the next assistant turn.
func (c *Client) CreateResponse(ctx context.Context) error {
	return c.writeJSON(ctx, map[string]any{"type": "response.create"})
}

// TruncateItem cuts the given assistant item at audioEndMs so the
// session's view of what the caller heard matches reality after a
// barge-in.
func (c *Client) TruncateItem(ctx context.Context, itemID string, audioEndMs int64) error {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return fmt.Errorf("item id is required")
	}
	if audioEndMs < 0 {
		audioEndMs = 0
	}
	return c.writeJSON(ctx, map[string]any{
		"type":          "conversation.item.truncate",
		"item_id":       itemID,
		"content_index": 0,
		"audio_end_ms":  audioEndMs,
	})
}

// Events returns the stream of decoded server events. The channel is
// closed when the session ends.
func (c *Client) Events() <-chan Event {
	if c == nil {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	return c.events
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		close(c.closed)
		c.setLastClose("closed")
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				c.setLastClose(fmt.Sprintf("code=%d msg=%s", closeErr.Code, strings.TrimSpace(closeErr.Text)))
			} else {
				c.setLastClose(strings.TrimSpace(err.Error()))
			}
			return
		}

		ev, ok := decodeServerEvent(data)
		if !ok {
			continue
		}
		if se, isErr := ev.(ServerError); isErr {
			c.setLastServerError(fmt.Sprintf("code=%s msg=%s", se.Code, se.Message))
		}

		select {
		case c.events <- ev:
		case <-c.closed:
			return
		}
	}
}

func (c *Client) writeJSON(ctx context.Context, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}
	if err := c.conn.WriteJSON(payload); err != nil {
		reason := strings.TrimSpace(c.failureReason())
		if reason == "" {
			return err
		}
		return fmt.Errorf("%w (realtime %s)", err, reason)
	}
	return nil
}

func buildRealtimeWSURL(base, model string) (string, error) {
	if base == "" {
		base = defaultRealtimeWSBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid realtime ws base url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	q := u.Query()
	if q.Get("model") == "" {
		q.Set("model", model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) setLastServerError(msg string) {
	if c == nil {
		return
	}
	msg = collapseWhitespace(msg)
	if msg == "" {
		return
	}
	c.errMu.Lock()
	c.lastServerError = msg
	c.errMu.Unlock()
}

func (c *Client) setLastClose(msg string) {
	if c == nil {
		return
	}
	msg = collapseWhitespace(msg)
	if msg == "" {
		return
	}
	c.errMu.Lock()
	c.lastClose = msg
	c.errMu.Unlock()
}

func (c *Client) failureReason() string {
	if c == nil {
		return ""
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	parts := make([]string, 0, 2)
	if c.lastServerError != "" {
		parts = append(parts, "server_error="+c.lastServerError)
	}
	if c.lastClose != "" {
		parts = append(parts, "close="+c.lastClose)
	}
	return strings.Join(parts, " ")
}

func collapseWhitespace(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > 300 {
		msg = msg[:300] + "…"
	}
	return msg
}
