package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
)

// ErrEmptyResponse reports a successful call that produced no candidate text.
var ErrEmptyResponse = errors.New("llm: empty response")

// HTTPStatusCoder is implemented by errors that carry an upstream status.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// HTTPError is a non-2xx response from the model API.
type HTTPError struct {
	Model      string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("llm: model %s returned %d: %s", e.Model, e.StatusCode, body)
}

func (e *HTTPError) HTTPStatusCode() int {
	return e.StatusCode
}

// Unwrap classifies 404 as an unavailable model so callers can match it.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return apperr.ErrModelUnavailable
	}
	return nil
}

// AllModelsExhaustedError is returned when every configured model failed.
type AllModelsExhaustedError struct {
	Models  []string
	LastErr error
}

func (e *AllModelsExhaustedError) Error() string {
	return fmt.Sprintf("llm: all models exhausted (%s): %v", strings.Join(e.Models, ", "), e.LastErr)
}

func (e *AllModelsExhaustedError) Unwrap() error {
	return e.LastErr
}

func (e *AllModelsExhaustedError) Is(target error) bool {
	return target == apperr.ErrAllModelsExhausted
}

// IsRetryableHTTPStatus reports statuses worth one more attempt on the same model.
func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// IsTransient reports timeouts, network failures and retryable statuses.
// Caller cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var coder HTTPStatusCoder
	if errors.As(err, &coder) {
		return IsRetryableHTTPStatus(coder.HTTPStatusCode())
	}
	return false
}

// isTerminal reports failures that no other model can fix.
func isTerminal(err error) bool {
	return errors.Is(err, apperr.ErrContentRejected) || errors.Is(err, apperr.ErrNotConfigured)
}
