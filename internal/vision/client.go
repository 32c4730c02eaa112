// Package vision calls a vision-capable chat-completion API to read refund
// status from a result-page screenshot. The model is instructed to answer
// with a single JSON object {status, details, found}; anything it returns is
// treated as untrusted free text and run through a validating parser.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1/chat/completions"
	defaultModel   = "gpt-4o-mini"

	maxRetries   = 3
	initialDelay = 1 * time.Second
)

// Client is a minimal HTTP client for a single-turn vision request.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// New creates a Client. Empty baseURL and model fall back to the OpenAI
// defaults; timeout bounds each HTTP round trip.
func New(apiKey, baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Describe sends one system+user turn with the PNG screenshot attached and
// returns the model's raw text answer.
func (c *Client) Describe(ctx context.Context, png []byte, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("vision API key not set")
	}
	if len(png) == 0 {
		return "", errors.New("no screenshot provided")
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: user},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
				}},
			}},
		},
		MaxTokens:   300,
		Temperature: 0,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// Retry with exponential backoff on rate limits and server errors.
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var ae apiError
			if json.Unmarshal(respBody, &ae) == nil && ae.Error.Message != "" {
				lastErr = fmt.Errorf("vision API error (%d): %s", resp.StatusCode, ae.Error.Message)
			} else {
				lastErr = fmt.Errorf("vision API error (%d): %s", resp.StatusCode, string(respBody))
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return "", lastErr
		}

		var cr chatResponse
		if err := json.Unmarshal(respBody, &cr); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
		if len(cr.Choices) == 0 {
			return "", errors.New("empty completion")
		}
		return cr.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// StatusRead is the validated shape the model is instructed to produce.
// Found is a pointer so a missing field is distinguishable from false.
type StatusRead struct {
	Status  string `json:"status"`
	Details string `json:"details"`
	Found   *bool  `json:"found"`
}

// ErrNoJSON is returned when no parsable JSON object could be extracted from
// the model's answer.
var ErrNoJSON = errors.New("no JSON object in model response")

// ParseStatusRead extracts the first brace-delimited JSON block from free
// text and validates the required fields. Any missing or malformed field is
// a parse failure: callers fall back to deterministic extraction instead of
// trusting partial data.
func ParseStatusRead(text string) (StatusRead, error) {
	var zero StatusRead

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return zero, ErrNoJSON
	}

	// Walk to the matching close brace, respecting strings and escapes.
	depth := 0
	inStr := false
	esc := false
	end := -1
scan:
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case esc:
			esc = false
		case inStr:
			if ch == '\\' {
				esc = true
			} else if ch == '"' {
				inStr = false
			}
		case ch == '"':
			inStr = true
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				end = i
				break scan
			}
		}
	}
	if end < 0 {
		return zero, ErrNoJSON
	}

	var out StatusRead
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return zero, fmt.Errorf("invalid JSON block: %w", err)
	}
	if out.Found == nil {
		return zero, errors.New("missing required field: found")
	}
	if *out.Found && strings.TrimSpace(out.Status) == "" {
		return zero, errors.New("missing required field: status")
	}
	return out, nil
}
