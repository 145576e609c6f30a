package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
)

const (
	DefaultBaseURL        = "https://generativelanguage.googleapis.com"
	defaultRequestTimeout = 60 * time.Second
	maxErrorBodyBytes     = 4 << 10
)

// Generator produces raw text for a prompt on one model.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// GeminiConfig configures the REST generateContent client.
type GeminiConfig struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	HTTPClient  *http.Client
}

// GeminiGenerator calls the Gemini generateContent REST endpoint.
type GeminiGenerator struct {
	apiKey      string
	baseURL     string
	temperature float64
	httpClient  *http.Client
}

// NewGeminiGenerator builds a client. An empty API key is allowed; every
// call then fails with apperr.ErrNotConfigured.
func NewGeminiGenerator(cfg GeminiConfig) *GeminiGenerator {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.4
	}
	return &GeminiGenerator{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     baseURL,
		temperature: temperature,
		httpClient:  httpClient,
	}
}

// Configured reports whether an API key is present.
func (g *GeminiGenerator) Configured() bool {
	return g != nil && g.apiKey != ""
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	if !g.Configured() {
		return "", apperr.Wrap(apperr.ErrNotConfigured, "model API key missing")
	}
	payload := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}}
	payload.GenerationConfig.Temperature = g.temperature
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &HTTPError{Model: model, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("llm: decode %s response: %w", model, err)
	}
	if reason := decoded.PromptFeedback.BlockReason; reason != "" {
		return "", apperr.Wrap(apperr.ErrContentRejected, "prompt blocked: %s", reason)
	}
	var builder strings.Builder
	for _, candidate := range decoded.Candidates {
		switch candidate.FinishReason {
		case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII":
			return "", apperr.Wrap(apperr.ErrContentRejected, "response blocked: %s", candidate.FinishReason)
		}
		for _, part := range candidate.Content.Parts {
			builder.WriteString(part.Text)
		}
		if builder.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(builder.String()) == "" {
		return "", ErrEmptyResponse
	}
	return builder.String(), nil
}
