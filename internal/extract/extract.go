// Package extract turns uploaded documents into plain text.
package extract

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
)

const (
	MediaTypePlainText = "text/plain"
	MediaTypeMarkdown  = "text/markdown"
	MediaTypePDF       = "application/pdf"
	MediaTypeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mediaTypeOctet     = "application/octet-stream"
)

// Extractor converts one document format to UTF-8 text. Documents without a
// text layer yield "" rather than an error.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Document is an uploaded file with its declared media type.
type Document struct {
	FileName  string
	MediaType string
	Data      []byte
}

// Registry resolves extractors by media type, falling back to the file
// extension when the declared type is missing or generic.
type Registry struct {
	byMediaType map[string]Extractor
	byExtension map[string]string
	textPrefix  Extractor
}

// NewRegistry returns a registry with plain text, PDF and DOCX support.
func NewRegistry() *Registry {
	plain := PlainText{}
	registry := &Registry{
		byMediaType: map[string]Extractor{},
		byExtension: map[string]string{},
		textPrefix:  plain,
	}
	registry.Register(MediaTypePlainText, plain, ".txt", ".text")
	registry.Register(MediaTypeMarkdown, plain, ".md", ".markdown")
	registry.Register(MediaTypePDF, PDF{}, ".pdf")
	registry.Register(MediaTypeDOCX, DOCX{}, ".docx")
	return registry
}

// Register binds an extractor to a media type and optional extensions.
func (r *Registry) Register(mediaType string, extractor Extractor, extensions ...string) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	r.byMediaType[mediaType] = extractor
	for _, extension := range extensions {
		r.byExtension[strings.ToLower(extension)] = mediaType
	}
}

// Resolve finds the extractor for a document.
func (r *Registry) Resolve(mediaType, fileName string) (Extractor, error) {
	normalized := normalizeMediaType(mediaType)
	if normalized == "" || normalized == mediaTypeOctet {
		if byExtension, ok := r.byExtension[strings.ToLower(filepath.Ext(fileName))]; ok {
			normalized = byExtension
		}
	}
	if extractor, ok := r.byMediaType[normalized]; ok {
		return extractor, nil
	}
	if strings.HasPrefix(normalized, "text/") {
		return r.textPrefix, nil
	}
	label := normalized
	if label == "" {
		label = filepath.Ext(fileName)
	}
	return nil, apperr.Wrap(apperr.ErrUnsupportedFormat, "%q cannot be read; try a .txt, .pdf or .docx file instead", label)
}

// Extract resolves and runs the extractor for doc.
func (r *Registry) Extract(ctx context.Context, doc Document) (string, error) {
	extractor, err := r.Resolve(doc.MediaType, doc.FileName)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := extractor.Extract(ctx, doc.Data)
	if err != nil {
		return "", err
	}
	return text, nil
}

func normalizeMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return strings.ToLower(parsed)
}

func unreadable(format string, cause any) error {
	return apperr.Wrap(apperr.ErrUnsupportedFormat, "could not read %s document: %v", format, cause)
}

