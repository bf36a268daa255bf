package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/spherical/lecture-ingest/internal/domain"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient sends page batches to Gemini through the generative-ai SDK
type GeminiClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	settings
}

// NewGeminiClient creates a Gemini extraction backend
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...Option) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, domain.ConfigError("GEMINI_API_KEY not set", nil)
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, domain.ConfigError("failed to create gemini client", err)
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	gm := client.GenerativeModel(model)
	// Transcription, not creative writing
	gm.SetTemperature(0.1)

	return &GeminiClient{
		client:    client,
		model:     gm,
		modelName: model,
		settings:  s,
	}, nil
}

// Model returns the model name requests are sent to
func (g *GeminiClient) Model() string {
	return g.modelName
}

// Extract sends one batch with the prompt and returns the raw response text
func (g *GeminiClient) Extract(ctx context.Context, prompt string, batch domain.Batch) (string, error) {
	parts, err := geminiParts(prompt, batch)
	if err != nil {
		return "", err
	}

	return g.retryWithBackoff(ctx, isRetryableGemini, func(ctx context.Context) (string, error) {
		resp, err := g.model.GenerateContent(ctx, parts...)
		if err != nil {
			return "", err
		}
		return responseText(resp)
	})
}

// Close releases the underlying SDK client
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func geminiParts(prompt string, batch domain.Batch) ([]genai.Part, error) {
	if len(batch.Pages) == 0 {
		return nil, domain.ValidationError("batch has no pages", nil)
	}

	parts := make([]genai.Part, 0, len(batch.Pages)+1)
	parts = append(parts, genai.Text(prompt))
	for _, page := range batch.Pages {
		data, err := base64.StdEncoding.DecodeString(page.Data)
		if err != nil {
			return nil, domain.EncodeError(fmt.Sprintf("page %d is not valid base64", page.Index), err)
		}
		parts = append(parts, genai.ImageData("jpeg", data))
	}
	return parts, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	return sb.String(), nil
}

func isRetryableGemini(err error) bool {
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable, codes.Internal, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
