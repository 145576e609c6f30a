// Package normalize turns free-form model output into structured study
// material, falling back to a deterministic extraction from the source text
// when the output cannot be used.
package normalize

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/flashcards"
)

// Schema names the expected shape of a model response.
type Schema string

const (
	SchemaAnalysis   Schema = "analysis"
	SchemaSummary    Schema = "summary"
	SchemaFlashcards Schema = "flashcards"
)

const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Result is the structured output. Slices are never nil.
type Result struct {
	Summary    string            `json:"summary"`
	KeyPoints  []string          `json:"keyPoints"`
	Flashcards []flashcards.Card `json:"flashcards"`
	Source     string            `json:"-"`
	// Reason explains why the fallback was used; empty for model results.
	Reason error `json:"-"`
}

// IsFallback reports whether the result was derived from the source text.
func (r Result) IsFallback() bool {
	return r.Source == SourceFallback
}

// Normalize parses raw against schema. Any failure, including a panic while
// parsing, yields Fallback(source, schema).
func Normalize(raw string, schema Schema, source string) (result Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Fallback(source, schema)
			result.Reason = apperr.Wrap(apperr.ErrMalformedModelResponse, "panic while parsing: %v", recovered)
		}
	}()
	parsed, err := parse(raw, schema)
	if err != nil {
		result = Fallback(source, schema)
		result.Reason = err
		return result
	}
	parsed.Source = SourceModel
	return parsed
}

func parse(raw string, schema Schema) (Result, error) {
	candidate, ok := ExtractJSON(raw)
	if !ok {
		return Result{}, apperr.Wrap(apperr.ErrMalformedModelResponse, "no JSON value found")
	}
	switch schema {
	case SchemaFlashcards:
		return parseFlashcardsOnly(candidate)
	case SchemaSummary:
		return parseObject(candidate, true, false)
	default:
		return parseObject(candidate, true, true)
	}
}

func parseFlashcardsOnly(candidate string) (Result, error) {
	trimmed := strings.TrimSpace(candidate)
	if strings.HasPrefix(trimmed, "[") {
		cards, err := decodeCards(json.RawMessage(trimmed))
		if err != nil {
			return Result{}, err
		}
		return Result{KeyPoints: []string{}, Flashcards: cards}, nil
	}
	return parseObject(candidate, false, true)
}

func parseObject(candidate string, wantSummary, wantCards bool) (Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return Result{}, apperr.Wrap(apperr.ErrMalformedModelResponse, "expected a JSON object: %v", err)
	}
	result := Result{KeyPoints: []string{}, Flashcards: []flashcards.Card{}}
	if wantSummary {
		rawSummary, ok := fields["summary"]
		if !ok {
			return Result{}, missingField("summary")
		}
		if err := json.Unmarshal(rawSummary, &result.Summary); err != nil || strings.TrimSpace(result.Summary) == "" {
			return Result{}, invalidField("summary", err)
		}
		rawPoints, ok := fields["keyPoints"]
		if !ok {
			return Result{}, missingField("keyPoints")
		}
		var points []string
		if err := json.Unmarshal(rawPoints, &points); err != nil || points == nil {
			return Result{}, invalidField("keyPoints", err)
		}
		result.KeyPoints = points
	}
	if wantCards {
		rawCards, ok := fields["flashcards"]
		if !ok {
			return Result{}, missingField("flashcards")
		}
		cards, err := decodeCards(rawCards)
		if err != nil {
			return Result{}, err
		}
		result.Flashcards = cards
	}
	return result, nil
}

type rawCard struct {
	Question *string `json:"question"`
	Answer   *string `json:"answer"`
}

func decodeCards(raw json.RawMessage) ([]flashcards.Card, error) {
	var decoded []rawCard
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return nil, invalidField("flashcards", err)
	}
	if len(decoded) == 0 {
		return nil, apperr.Wrap(apperr.ErrMalformedModelResponse, "flashcards is empty")
	}
	cards := make([]flashcards.Card, 0, len(decoded))
	for index, card := range decoded {
		if card.Question == nil || card.Answer == nil {
			return nil, apperr.Wrap(apperr.ErrMalformedModelResponse, "flashcard %d lacks question or answer", index)
		}
		candidate := flashcards.Card{Question: *card.Question, Answer: *card.Answer}
		if err := candidate.Validate(); err != nil {
			return nil, apperr.Wrap(apperr.ErrMalformedModelResponse, "flashcard %d: %v", index, err)
		}
		cards = append(cards, candidate)
	}
	return cards, nil
}

func missingField(name string) error {
	return apperr.Wrap(apperr.ErrMalformedModelResponse, "missing %q", name)
}

func invalidField(name string, cause error) error {
	if cause == nil {
		cause = errors.New("empty")
	}
	return apperr.Wrap(apperr.ErrMalformedModelResponse, "invalid %q: %v", name, cause)
}
