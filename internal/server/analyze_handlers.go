package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Iam-samyog/EduCircle/internal/analysis"
	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/flashcards"
	"github.com/Iam-samyog/EduCircle/internal/prompts"
)

const (
	multipartOverheadBytes = 1 << 20
	multipartMemoryBytes   = 32 << 20
)

type analyzeJSONRequest struct {
	Text string `json:"text"`
	Task string `json:"task"`
}

type analyzeResponse struct {
	Summary    string            `json:"summary"`
	KeyPoints  []string          `json:"keyPoints"`
	Flashcards []flashcards.Card `json:"flashcards"`
}

type flashcardsResponse struct {
	Flashcards []flashcards.Card `json:"flashcards"`
}

type summarizeResponse struct {
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"keyPoints"`
	ExtractedText string   `json:"extractedText"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.clock().UTC(),
		"aiReady":   h.analysis.Ready(),
	})
}

func (h *httpHandler) handleAnalyze(c *gin.Context) {
	response, ok := h.runAnalysis(c, prompts.TaskAnalyze)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{
		Summary:    response.Result.Summary,
		KeyPoints:  response.Result.KeyPoints,
		Flashcards: response.Result.Flashcards,
	})
}

func (h *httpHandler) handleGenerateFlashcards(c *gin.Context) {
	response, ok := h.runAnalysis(c, prompts.TaskFlashcards)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, flashcardsResponse{Flashcards: response.Result.Flashcards})
}

func (h *httpHandler) handleSummarize(c *gin.Context) {
	response, ok := h.runAnalysis(c, prompts.TaskSummary)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, summarizeResponse{
		Summary:       response.Result.Summary,
		KeyPoints:     response.Result.KeyPoints,
		ExtractedText: response.ExtractedText,
	})
}

// runAnalysis writes the error response itself and reports whether the
// caller should continue.
func (h *httpHandler) runAnalysis(c *gin.Context, defaultTask prompts.Task) (analysis.Response, bool) {
	request, ok := h.readAnalysisRequest(c, defaultTask)
	if !ok {
		return analysis.Response{}, false
	}
	response, err := h.analysis.Analyze(c.Request.Context(), request)
	if err != nil {
		h.respondAnalysisError(c, err)
		return analysis.Response{}, false
	}
	if response.Result.IsFallback() {
		h.logger.Info("served fallback analysis", zap.String("path", c.FullPath()), zap.Error(response.Result.Reason))
	}
	return response, true
}

// readAnalysisRequest accepts multipart uploads ("file", "text", "task") or
// a JSON body with text and task.
func (h *httpHandler) readAnalysisRequest(c *gin.Context, defaultTask prompts.Task) (analysis.Request, bool) {
	request := analysis.Request{Task: defaultTask}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.analysis.MaxUploadBytes()+multipartOverheadBytes)
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		var body analyzeJSONRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.respondAnalysisError(c, apperr.Wrap(apperr.ErrFileTooLarge, "request body exceeds %d bytes", tooLarge.Limit))
				return analysis.Request{}, false
			}
			h.respondBadRequest(c, "invalid JSON body")
			return analysis.Request{}, false
		}
		request.Text = body.Text
		if body.Task != "" {
			request.Task = prompts.ParseTask(body.Task)
		}
		return h.requireInput(c, request)
	}

	if err := c.Request.ParseMultipartForm(multipartMemoryBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondAnalysisError(c, apperr.Wrap(apperr.ErrFileTooLarge, "request body exceeds %d bytes", tooLarge.Limit))
			return analysis.Request{}, false
		}
		h.respondBadRequest(c, "invalid multipart form")
		return analysis.Request{}, false
	}
	request.Text = c.PostForm("text")
	if task := c.PostForm("task"); task != "" {
		request.Task = prompts.ParseTask(task)
	}
	fileHeader, err := c.FormFile("file")
	if err == nil {
		file, openErr := fileHeader.Open()
		if openErr != nil {
			h.respondBadRequest(c, "unreadable file")
			return analysis.Request{}, false
		}
		defer file.Close()
		data, readErr := io.ReadAll(io.LimitReader(file, h.analysis.MaxUploadBytes()+1))
		if readErr != nil {
			h.respondBadRequest(c, "unreadable file")
			return analysis.Request{}, false
		}
		request.File = &analysis.Upload{
			FileName:  fileHeader.Filename,
			MediaType: fileHeader.Header.Get("Content-Type"),
			Data:      data,
		}
	}
	return h.requireInput(c, request)
}

func (h *httpHandler) requireInput(c *gin.Context, request analysis.Request) (analysis.Request, bool) {
	if request.File == nil && strings.TrimSpace(request.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": analysis.NoInputMessage})
		return analysis.Request{}, false
	}
	return request, true
}

func (h *httpHandler) respondAnalysisError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	label := "Failed to analyze content"
	if status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge {
		label = "Invalid document"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("analysis request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Warn("analysis request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": label, "message": apperr.UserMessage(err)})
}
