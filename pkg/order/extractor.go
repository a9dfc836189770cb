package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orderline/orderline/pkg/menu"
)

const (
	defaultChatBaseURL = "https://api.openai.com"
	defaultChatModel   = "gpt-4o"
	defaultTimeout     = 20 * time.Second
)

// orderSchema is the strict response schema the completion must follow.
var orderSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":       map[string]any{"type": "string"},
					"item":     map[string]any{"type": "string"},
					"quantity": map[string]any{"type": "integer"},
					"cost":     map[string]any{"type": "number"},
				},
				"required":             []string{"id", "item", "quantity", "cost"},
				"additionalProperties": false,
			},
		},
		"total_bill_amount": map[string]any{"type": "number"},
	},
	"required":             []string{"items", "total_bill_amount"},
	"additionalProperties": false,
}

// Extractor runs one chat completion per finished call. No retries; a
// call that fails extraction is reported, not replayed.
type Extractor struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

func NewExtractor(apiKey, baseURL, model string, timeout time.Duration, httpClient *http.Client) *Extractor {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultChatBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultChatModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Extractor{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      model,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

func (e *Extractor) Configured() bool {
	return e != nil && e.apiKey != ""
}

// Extract parses the transcript into an Order and validates it against
// the catalog. The returned error is a *ValidationError when the model
// produced an order the catalog rejects.
func (e *Extractor) Extract(ctx context.Context, transcript string, catalog *menu.Catalog) (*Order, error) {
	if !e.Configured() {
		return nil, fmt.Errorf("order extractor is not configured")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("transcript is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	system := "You are a helpful assistant. Here is an audio transcript between the customer and the restaurant customer care. " +
		"Below is the restaurant menu for your reference to pick the id of each of the items.\n" + catalog.ExtractionText()

	body, err := json.Marshal(map[string]any{
		"model": e.model,
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": transcript},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "order",
				"strict": true,
				"schema": orderSchema,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("completion error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}
	msg := decoded.Choices[0].Message
	if strings.TrimSpace(msg.Refusal) != "" {
		return nil, fmt.Errorf("completion refused: %s", strings.TrimSpace(msg.Refusal))
	}

	var out Order
	if err := json.Unmarshal([]byte(msg.Content), &out); err != nil {
		return nil, fmt.Errorf("parse order payload: %w", err)
	}
	if err := Validate(&out, catalog); err != nil {
		return nil, err
	}
	return &out, nil
}
