package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spherical/lecture-ingest/internal/domain"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	OpenAIURL     = "https://api.openai.com/v1/chat/completions"
	defaultModel  = "openai/gpt-4o-mini"
)

// ErrMalformedResponse is returned when a response body cannot be used
var ErrMalformedResponse = errors.New("malformed response")

// StatusError is a non-success HTTP response from the extraction API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Client sends page batches to an OpenAI-compatible chat completions API
type Client struct {
	apiKey string
	model  string
	settings
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Response represents the API response structure
type Response struct {
	ID      string        `json:"id"`
	Choices []Choice      `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message or a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// Usage reports token accounting for a request
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ErrorPayload is the error object some providers return with a 200 status
type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NewClient creates a new chat completions client
func NewClient(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = defaultModel
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	return &Client{
		apiKey:   apiKey,
		model:    model,
		settings: s,
	}
}

// Model returns the model name requests are sent to
func (c *Client) Model() string {
	return c.model
}

// Extract sends one batch with the prompt and returns the raw response text
func (c *Client) Extract(ctx context.Context, prompt string, batch domain.Batch) (string, error) {
	if len(batch.Pages) == 0 {
		return "", domain.ValidationError("batch has no pages", nil)
	}

	body, err := json.Marshal(c.buildRequest(prompt, batch))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug().
		Int("batch", batch.Index).
		Int("pages", len(batch.Pages)).
		Str("model", c.model).
		Msg("sending extraction request")

	return c.retryWithBackoff(ctx, isRetryableHTTP, func(ctx context.Context) (string, error) {
		return c.send(ctx, body)
	})
}

// buildRequest constructs the API request: the prompt first, then images in page order
func (c *Client) buildRequest(prompt string, batch domain.Batch) *Request {
	content := make([]ContentPart, 0, len(batch.Pages)+1)
	content = append(content, ContentPart{Type: "text", Text: prompt})
	for _, page := range batch.Pages {
		content = append(content, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + page.Data},
		})
	}

	return &Request{
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: content}},
		Stream:   c.stream,
	}
}

// send performs a single HTTP attempt
func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/spherical/lecture-ingest")
	req.Header.Set("X-Title", "Lecture Slide Ingest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	var text string
	if c.stream {
		text, err = c.parseStream(resp.Body)
	} else {
		text, err = c.parseResponse(resp.Body)
	}
	// A deadline that fires mid-body is an attempt timeout, not a malformed payload
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", ctx.Err()
	}
	return text, err
}

func (c *Client) parseResponse(body io.Reader) (string, error) {
	var resp Response
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if resp.Error != nil {
		code := resp.Error.Code
		if code == 0 {
			code = http.StatusBadGateway
		}
		return "", &StatusError{StatusCode: code, Body: resp.Error.Message}
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	if resp.Usage != nil {
		c.logger.Debug().
			Int("prompt_tokens", resp.Usage.PromptTokens).
			Int("completion_tokens", resp.Usage.CompletionTokens).
			Msg("extraction usage")
	}

	return content, nil
}

// parseStream collects a Server-Sent Events stream into one text
func (c *Client) parseStream(body io.Reader) (string, error) {
	text, err := NewStreamParser(body).Collect()
	if err != nil {
		return "", fmt.Errorf("parse stream: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty stream", ErrMalformedResponse)
	}
	return text, nil
}

// isRetryableHTTP classifies errors from a single HTTP attempt
func isRetryableHTTP(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return shouldRetry(se.StatusCode)
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	// Transport failures
	return true
}
