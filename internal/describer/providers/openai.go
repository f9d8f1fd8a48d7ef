package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ibeckermayer/camposter/internal/config"
)

const openAIAPIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIProvider describes images through an OpenAI-compatible chat completions endpoint
type OpenAIProvider struct {
	apiKey    string
	endpoint  string
	model     string
	detail    string
	maxTokens int
	client    *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, cfg config.InferenceConfig, timeout time.Duration) *OpenAIProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = openAIAPIURL
	}
	return &OpenAIProvider{
		apiKey:    apiKey,
		endpoint:  endpoint,
		model:     cfg.Model,
		detail:    cfg.Detail,
		maxTokens: cfg.MaxTokens,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// chatRequest represents the request body for the chat completions API
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// chatMessage content is either a plain string or a list of parts
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
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// chatResponse represents the parts of the response we read
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatChoice struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Describe sends the image to the chat completions endpoint
func (p *OpenAIProvider) Describe(ctx context.Context, image []byte, mimeType string) (string, error) {
	reqBody := chatRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: UserPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: DataURI(image, mimeType), Detail: p.detail}},
			}},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call inference API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	return parseChatResponse(resp.StatusCode, body)
}

// parseChatResponse extracts the caption from a chat completions response
func parseChatResponse(statusCode int, body []byte) (string, error) {
	var chatResp chatResponse
	decodeErr := json.Unmarshal(body, &chatResp)

	ok := statusCode >= 200 && statusCode <= 299
	if !ok && decodeErr == nil && chatResp.Error != nil && chatResp.Error.Message != "" {
		return "", &APIError{
			StatusCode: statusCode,
			Type:       chatResp.Error.Type,
			Message:    chatResp.Error.Message,
		}
	}

	if decodeErr != nil || len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil {
		return "", fmt.Errorf("%w (status %d): %.200s", ErrUnexpectedFormat, statusCode, string(body))
	}

	if content := chatResp.Choices[0].Message.Content; content != "" {
		return content, nil
	}
	return NoDescription, nil
}
