package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared by every service. Services wrap them in ServiceError so
// callers can match with errors.Is while the HTTP layer keeps a stable code.
var (
	ErrUnsupportedFormat      = errors.New("unsupported format")
	ErrInsufficientContent    = errors.New("insufficient content")
	ErrModelUnavailable       = errors.New("model unavailable")
	ErrAllModelsExhausted     = errors.New("all models exhausted")
	ErrMalformedModelResponse = errors.New("malformed model response")
	ErrContentRejected        = errors.New("content rejected by model policy")
	ErrNotConfigured          = errors.New("not configured")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrConflict               = errors.New("conflict")
	ErrFileTooLarge           = errors.New("file too large")
)

// ServiceError carries a dotted operation code alongside the wrapped cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation code, e.g. "decks.delete_flashcard.permission_denied".
func (e *ServiceError) Code() string {
	return e.code
}

// New builds a ServiceError with code "<operation>.<reason>".
func New(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Wrap attaches a kind to a detail message so both match with errors.Is.
func Wrap(kind error, format string, args ...any) error {
	return &detailError{kind: kind, detail: fmt.Sprintf(format, args...)}
}

// detailError is a kind plus a message written for the caller.
type detailError struct {
	kind   error
	detail string
}

func (e *detailError) Error() string {
	return fmt.Sprintf("%v: %s", e.kind, e.detail)
}

func (e *detailError) Unwrap() error {
	return e.kind
}

// CodeOf extracts the ServiceError code, if any.
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}

// HTTPStatus maps an error kind onto the response status used by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrInsufficientContent):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrContentRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage renders an actionable message for end users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return "This file type is not supported. Try a .txt, .pdf or .docx file instead."
	case errors.Is(err, ErrInsufficientContent):
		return "The document content seems too short for AI analysis. Please provide more text."
	case errors.Is(err, ErrFileTooLarge):
		return "File too large (max 10MB)."
	case errors.Is(err, ErrContentRejected):
		return "The AI model declined to process this content."
	case errors.Is(err, ErrNotConfigured):
		return "AI analysis is not configured on the server. Set GEMINI_API_KEY."
	case errors.Is(err, ErrAllModelsExhausted), errors.Is(err, ErrModelUnavailable):
		return "The AI service is currently unavailable. Please try again later."
	case errors.Is(err, ErrPermissionDenied):
		return "You do not have permission to change this item."
	case errors.Is(err, ErrNotFound):
		return "The requested item no longer exists."
	case errors.Is(err, ErrConflict):
		return "This item was changed by someone else. Reload and try again."
	case errors.Is(err, ErrInvalidInput):
		var detail *detailError
		if errors.As(err, &detail) && detail.detail != "" {
			return detail.detail
		}
		return "The request is invalid."
	default:
		return internalMessage
	}
}

const internalMessage = "Something went wrong on our side. Please try again later."
