package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Iam-samyog/EduCircle/internal/analysis"
	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/extract"
	"github.com/Iam-samyog/EduCircle/internal/llm"
)

const studyText = "Photosynthesis converts light energy into chemical energy. " +
	"Chlorophyll absorbs mostly blue and red light. " +
	"The Calvin cycle fixes carbon dioxide into sugars."

const modelAnalysis = "```json\n" +
	`{"summary":"Plants turn light into sugar.","keyPoints":["Light reactions","Calvin cycle"],` +
	`"flashcards":[{"question":"What absorbs light?","answer":"Chlorophyll"}]}` +
	"\n```"

func multipartUpload(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestHealthReportsModelReadiness(t *testing.T) {
	h := newHarness(t)
	h.ready = false
	var body map[string]any
	h.expectStatus(h.do(http.MethodGet, "/api/health", "", nil, &body), http.StatusOK)
	if body["status"] != "ok" || body["aiReady"] != false {
		t.Fatalf("unexpected health body %#v", body)
	}
}

func TestAnalyzeJSONText(t *testing.T) {
	h := newHarness(t)
	h.invoker.text = modelAnalysis
	var body analyzeResponse
	h.expectStatus(h.do(http.MethodPost, "/api/ai/analyze", "", map[string]string{"text": studyText}, &body), http.StatusOK)
	if body.Summary != "Plants turn light into sugar." || len(body.KeyPoints) != 2 {
		t.Fatalf("unexpected analysis %#v", body)
	}
	if len(body.Flashcards) != 1 || body.Flashcards[0].Answer != "Chlorophyll" {
		t.Fatalf("unexpected flashcards %#v", body.Flashcards)
	}
}

func TestAnalyzeUploadFallsBackOnProse(t *testing.T) {
	h := newHarness(t)
	h.invoker.text = "I'm sorry, here is a summary in prose instead of JSON."
	body, contentType := multipartUpload(t, "notes.txt", studyText, nil)
	request := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	h.expectStatus(recorder, http.StatusOK)

	var response analyzeResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Summary == "" || len(response.Flashcards) == 0 {
		t.Fatalf("fallback should still produce content: %#v", response)
	}
}

func TestGenerateFlashcardsAndSummarizeShapes(t *testing.T) {
	h := newHarness(t)
	h.invoker.text = `[{"question":"Q1","answer":"A1"},{"question":"Q2","answer":"A2"}]`
	var cards map[string]json.RawMessage
	h.expectStatus(h.do(http.MethodPost, "/api/generate-flashcards", "", map[string]string{"text": studyText}, &cards), http.StatusOK)
	if _, ok := cards["flashcards"]; !ok || len(cards) != 1 {
		t.Fatalf("expected only flashcards, got %#v", cards)
	}

	h.invoker.text = `{"summary":"Short.","keyPoints":["one"]}`
	var summary summarizeResponse
	h.expectStatus(h.do(http.MethodPost, "/api/summarize", "", map[string]string{"text": studyText}, &summary), http.StatusOK)
	if summary.Summary != "Short." || summary.ExtractedText != studyText {
		t.Fatalf("unexpected summary %#v", summary)
	}
}

func TestAnalyzeInputErrors(t *testing.T) {
	h := newHarness(t)
	var missing map[string]string
	h.expectStatus(h.do(http.MethodPost, "/api/analyze", "", map[string]string{"text": "  "}, &missing), http.StatusBadRequest)
	if missing["error"] != "No file or text provided" {
		t.Fatalf("unexpected body %#v", missing)
	}

	var short map[string]string
	h.expectStatus(h.do(http.MethodPost, "/api/analyze", "", map[string]string{"text": "Too short."}, &short), http.StatusBadRequest)
	if !strings.Contains(short["message"], "too short") {
		t.Fatalf("unexpected message %q", short["message"])
	}

	body, contentType := multipartUpload(t, "slides.pptx", "binary", nil)
	request := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	h.expectStatus(recorder, http.StatusBadRequest)
	if h.invoker.calls != 0 {
		t.Fatalf("model must not be called for rejected input")
	}
}

func withUploadLimit(limit int64) harnessOption {
	return func(deps *Dependencies) {
		service, err := analysis.NewService(analysis.ServiceConfig{
			Extractor:      extract.NewRegistry(),
			Invoker:        &stubInvoker{text: modelAnalysis},
			MaxUploadBytes: limit,
		})
		if err != nil {
			panic(err)
		}
		deps.Analysis = service
	}
}

func TestAnalyzeJSONBodyIsBounded(t *testing.T) {
	h := newHarness(t, withUploadLimit(1<<10))
	payload, err := json.Marshal(map[string]string{"text": strings.Repeat("Light bends. ", 200_000)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	h.expectStatus(recorder, http.StatusRequestEntityTooLarge)

	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Invalid document" || !strings.Contains(body["message"], "too large") {
		t.Fatalf("unexpected body %#v", body)
	}
}

func TestAnalyzeModelFailures(t *testing.T) {
	h := newHarness(t)
	h.ready = false
	var unconfigured map[string]string
	h.expectStatus(h.do(http.MethodPost, "/api/analyze", "", map[string]string{"text": studyText}, &unconfigured), http.StatusInternalServerError)
	if !strings.Contains(unconfigured["message"], "GEMINI_API_KEY") {
		t.Fatalf("unexpected message %q", unconfigured["message"])
	}

	h.ready = true
	h.invoker.err = &llm.AllModelsExhaustedError{Models: []string{"gemini-1.5-flash"}, LastErr: apperr.ErrModelUnavailable}
	var exhausted map[string]string
	h.expectStatus(h.do(http.MethodPost, "/api/analyze", "", map[string]string{"text": studyText}, &exhausted), http.StatusInternalServerError)
	if exhausted["error"] != "Failed to analyze content" {
		t.Fatalf("unexpected body %#v", exhausted)
	}
}
