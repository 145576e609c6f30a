package roomclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
)

// APIError is a non-2xx response from the room API. It unwraps to the
// matching apperr kind so callers can use errors.Is.
type APIError struct {
	StatusCode int
	Label      string
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("roomclient: %d %s: %s", e.StatusCode, e.Label, e.Message)
	}
	return fmt.Sprintf("roomclient: %d %s", e.StatusCode, e.Label)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return apperr.ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.ErrPermissionDenied
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusConflict:
		return apperr.ErrConflict
	case http.StatusRequestEntityTooLarge:
		return apperr.ErrFileTooLarge
	default:
		return nil
	}
}

func decodeAPIError(response *http.Response) error {
	apiErr := &APIError{StatusCode: response.StatusCode, Label: http.StatusText(response.StatusCode)}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			apiErr.Label = body.Error
		}
		apiErr.Message = body.Message
		apiErr.Code = body.Code
	}
	return apiErr
}
