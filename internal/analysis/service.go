// Package analysis runs the note ingestion pipeline: extract text, compose a
// prompt, invoke the model and normalize its answer.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/extract"
	"github.com/Iam-samyog/EduCircle/internal/llm"
	"github.com/Iam-samyog/EduCircle/internal/normalize"
	"github.com/Iam-samyog/EduCircle/internal/prompts"
)

const (
	operationAnalyze = "analysis.analyze"

	DefaultMaxUploadBytes  int64 = 10 << 20
	DefaultMinContentChars       = 50
	DefaultInvokeTimeout         = 3 * time.Minute
)

// NoInputMessage is reported when neither a file nor text was supplied.
const NoInputMessage = "No file or text provided"

// DocumentExtractor converts an uploaded document to text.
type DocumentExtractor interface {
	Extract(ctx context.Context, doc extract.Document) (string, error)
}

// ModelInvoker returns raw model output for a prompt.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt string) (llm.Invocation, error)
}

// Upload is a file received from a client.
type Upload struct {
	FileName  string
	MediaType string
	Data      []byte
}

// Request selects a task and its input. A file wins over text.
type Request struct {
	Task prompts.Task
	File *Upload
	Text string
}

// Response carries the normalized result and the text it was derived from.
type Response struct {
	Result        normalize.Result
	ExtractedText string
	Model         string
}

// ServiceConfig describes the pipeline dependencies.
type ServiceConfig struct {
	Extractor       DocumentExtractor
	Invoker         ModelInvoker
	Ready           func() bool
	MaxPromptChars  int
	MaxUploadBytes  int64
	MinContentChars int
	// InvokeTimeout bounds a shared model call once it is detached from the
	// request that started it.
	InvokeTimeout time.Duration
	Logger        *zap.Logger
}

// Service coordinates one analysis per request; identical concurrent prompts
// share a single model call.
type Service struct {
	extractor       DocumentExtractor
	invoker         ModelInvoker
	ready           func() bool
	maxPromptChars  int
	maxUploadBytes  int64
	minContentChars int
	invokeTimeout   time.Duration
	logger          *zap.Logger
	inflight        singleflight.Group
}

// NewService validates the configuration and applies defaults.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Extractor == nil {
		return nil, apperr.New("analysis.new_service", "missing_extractor", errors.New("extractor is required"))
	}
	if cfg.Invoker == nil {
		return nil, apperr.New("analysis.new_service", "missing_invoker", errors.New("invoker is required"))
	}
	service := &Service{
		extractor:       cfg.Extractor,
		invoker:         cfg.Invoker,
		ready:           cfg.Ready,
		maxPromptChars:  cfg.MaxPromptChars,
		maxUploadBytes:  cfg.MaxUploadBytes,
		minContentChars: cfg.MinContentChars,
		invokeTimeout:   cfg.InvokeTimeout,
		logger:          cfg.Logger,
	}
	if service.ready == nil {
		service.ready = func() bool { return true }
	}
	if service.maxPromptChars <= 0 {
		service.maxPromptChars = prompts.DefaultMaxChars
	}
	if service.maxUploadBytes <= 0 {
		service.maxUploadBytes = DefaultMaxUploadBytes
	}
	if service.minContentChars <= 0 {
		service.minContentChars = DefaultMinContentChars
	}
	if service.invokeTimeout <= 0 {
		service.invokeTimeout = DefaultInvokeTimeout
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	return service, nil
}

// Ready reports whether a model credential is configured.
func (s *Service) Ready() bool {
	return s.ready()
}

// MaxUploadBytes is the upload ceiling enforced before extraction.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Analyze runs the pipeline. Text shorter than the content threshold fails
// with apperr.ErrInsufficientContent before the model is called.
func (s *Service) Analyze(ctx context.Context, request Request) (Response, error) {
	text, err := s.inputText(ctx, request)
	if err != nil {
		return Response{}, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < s.minContentChars {
		return Response{}, apperr.New(operationAnalyze, "insufficient_content",
			apperr.Wrap(apperr.ErrInsufficientContent, "need at least %d characters", s.minContentChars))
	}
	if !s.ready() {
		return Response{}, apperr.New(operationAnalyze, "not_configured",
			apperr.Wrap(apperr.ErrNotConfigured, "model API key missing"))
	}

	task := request.Task
	if task == "" {
		task = prompts.TaskAnalyze
	}
	prompt := prompts.Compose(task, text, s.maxPromptChars)
	invocation, err := s.invoke(ctx, prompt)
	if err != nil {
		s.logError("model_failed", err, zap.String("task", string(task)))
		return Response{}, apperr.New(operationAnalyze, "model_failed", err)
	}

	result := normalize.Normalize(invocation.Text, schemaFor(task), text)
	if result.IsFallback() {
		s.logger.Warn("model response unusable, using fallback",
			zap.String("operation", operationAnalyze),
			zap.String("model", invocation.Model),
			zap.Error(result.Reason))
	}
	return Response{Result: result, ExtractedText: text, Model: invocation.Model}, nil
}

// ExtractText returns the request's text without calling the model. It
// applies the same input and size checks as Analyze.
func (s *Service) ExtractText(ctx context.Context, request Request) (string, error) {
	text, err := s.inputText(ctx, request)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", apperr.New(operationAnalyze, "insufficient_content",
			apperr.Wrap(apperr.ErrInsufficientContent, "document contains no text"))
	}
	return text, nil
}

func (s *Service) inputText(ctx context.Context, request Request) (string, error) {
	if request.File == nil {
		if strings.TrimSpace(request.Text) == "" {
			return "", apperr.New(operationAnalyze, "missing_input", apperr.Wrap(apperr.ErrInvalidInput, NoInputMessage))
		}
		return request.Text, nil
	}
	if int64(len(request.File.Data)) > s.maxUploadBytes {
		return "", apperr.New(operationAnalyze, "file_too_large",
			apperr.Wrap(apperr.ErrFileTooLarge, "%s exceeds %d bytes", request.File.FileName, s.maxUploadBytes))
	}
	text, err := s.extractor.Extract(ctx, extract.Document{
		FileName:  request.File.FileName,
		MediaType: request.File.MediaType,
		Data:      request.File.Data,
	})
	if err != nil {
		s.logError("extract_failed", err, zap.String("file_name", request.File.FileName))
		return "", apperr.New(operationAnalyze, "extract_failed", err)
	}
	return text, nil
}

func (s *Service) invoke(ctx context.Context, prompt string) (llm.Invocation, error) {
	digest := sha256.Sum256([]byte(prompt))
	// The shared call outlives any one waiter; each waiter still stops on its
	// own context below.
	resultChannel := s.inflight.DoChan(hex.EncodeToString(digest[:]), func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.invokeTimeout)
		defer cancel()
		return s.invoker.Invoke(sharedCtx, prompt)
	})
	select {
	case <-ctx.Done():
		return llm.Invocation{}, ctx.Err()
	case outcome := <-resultChannel:
		if outcome.Err != nil {
			return llm.Invocation{}, outcome.Err
		}
		return outcome.Val.(llm.Invocation), nil
	}
}

func schemaFor(task prompts.Task) normalize.Schema {
	switch task {
	case prompts.TaskSummary:
		return normalize.SchemaSummary
	case prompts.TaskFlashcards:
		return normalize.SchemaFlashcards
	default:
		return normalize.SchemaAnalysis
	}
}

func (s *Service) logError(reason string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	logFields := append([]zap.Field{zap.String("operation", operationAnalyze), zap.String("reason", reason)}, fields...)
	logFields = append(logFields, zap.Error(err))
	s.logger.Error("analysis failed", logFields...)
}
