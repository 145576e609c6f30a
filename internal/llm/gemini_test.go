package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
)

func TestGeminiGenerateSuccess(t *testing.T) {
	var gotPath, gotKey, gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		var request geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err == nil && len(request.Contents) == 1 {
			gotPrompt = request.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello "},{"text":"world"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	generator := NewGeminiGenerator(GeminiConfig{APIKey: "key-123", BaseURL: server.URL})
	text, err := generator.Generate(context.Background(), "gemini-1.5-flash", "the prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotPath != "/v1beta/models/gemini-1.5-flash:generateContent" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "key-123" || gotPrompt != "the prompt" {
		t.Fatalf("unexpected request key=%q prompt=%q", gotKey, gotPrompt)
	}
}

func TestGeminiGenerateFailures(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "blocked prompt", status: http.StatusOK, body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, wantErr: apperr.ErrContentRejected},
		{name: "safety finish", status: http.StatusOK, body: `{"candidates":[{"finishReason":"SAFETY","content":{"parts":[]}}]}`, wantErr: apperr.ErrContentRejected},
		{name: "empty candidates", status: http.StatusOK, body: `{"candidates":[]}`, wantErr: ErrEmptyResponse},
		{name: "unknown model", status: http.StatusNotFound, body: `{"error":{"message":"not found"}}`, wantErr: apperr.ErrModelUnavailable},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			}))
			defer server.Close()
			generator := NewGeminiGenerator(GeminiConfig{APIKey: "key", BaseURL: server.URL})
			_, err := generator.Generate(context.Background(), "m", "p")
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("want %v got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestGeminiRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()
	generator := NewGeminiGenerator(GeminiConfig{APIKey: "key", BaseURL: server.URL})
	_, err := generator.Generate(context.Background(), "m", "p")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected HTTPError 429, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatalf("429 should be transient")
	}
}

func TestGeminiWithoutKey(t *testing.T) {
	generator := NewGeminiGenerator(GeminiConfig{})
	if generator.Configured() {
		t.Fatalf("generator without key must not report configured")
	}
	if _, err := generator.Generate(context.Background(), "m", "p"); !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
