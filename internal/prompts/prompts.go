// Package prompts builds model instructions for the study-material tasks.
// Output is a pure function of its inputs so prompts can key caches and
// request coalescing.
package prompts

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars bounds the document text embedded in a prompt.
const DefaultMaxChars = 15000

// Task selects the instruction template.
type Task string

const (
	TaskAnalyze    Task = "analyze"
	TaskSummary    Task = "summary"
	TaskFlashcards Task = "flashcards"
)

// ParseTask maps request values to a Task, defaulting to TaskAnalyze.
func ParseTask(raw string) Task {
	switch Task(strings.ToLower(strings.TrimSpace(raw))) {
	case TaskSummary:
		return TaskSummary
	case TaskFlashcards:
		return TaskFlashcards
	default:
		return TaskAnalyze
	}
}

const analyzeInstructions = `Analyze the following educational content and provide:
1. A concise summary (max 300 words). Use LaTeX for mathematical formulas where appropriate (e.g. $E=mc^2$).
2. 5-10 key points.
3. 5-10 flashcards (question and answer pairs) for studying.

Return ONLY a JSON object with this exact structure:
{
  "summary": "string",
  "keyPoints": ["string"],
  "flashcards": [{"question": "string", "answer": "string"}]
}

Escape backslashes and double quotes inside JSON strings. Do not wrap the JSON in prose.`

const summaryInstructions = `Summarize the following study notes for a student.
Provide a concise summary (max 300 words) and 5-8 key points.

Return ONLY a JSON object with this exact structure:
{
  "summary": "string",
  "keyPoints": ["string"]
}

Escape backslashes and double quotes inside JSON strings. Do not wrap the JSON in prose.`

const flashcardInstructions = `Create 8-12 flashcards from the following study material.
Each flashcard should test a single fact or concept. Keep answers short.

Return ONLY a JSON array of objects with "question" and "answer" fields:
[{"question": "string", "answer": "string"}]

Escape backslashes and double quotes inside JSON strings. Do not wrap the JSON in prose.`

// Compose returns the prompt for task over text truncated to maxChars runes.
// A non-positive maxChars uses DefaultMaxChars.
func Compose(task Task, text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	var builder strings.Builder
	builder.WriteString(instructionsFor(task))
	builder.WriteString("\n\nContent:\n")
	builder.WriteString(Truncate(strings.TrimSpace(text), maxChars))
	return builder.String()
}

func instructionsFor(task Task) string {
	switch task {
	case TaskSummary:
		return summaryInstructions
	case TaskFlashcards:
		return flashcardInstructions
	default:
		return analyzeInstructions
	}
}

// Truncate keeps at most maxRunes code points, never splitting one. Invalid
// UTF-8 bytes count as one rune each.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if len(text) <= maxRunes {
		return text
	}
	count := 0
	for index := range text {
		if count == maxRunes {
			return text[:index]
		}
		count++
	}
	return text
}

// RuneLen counts code points the same way Truncate does.
func RuneLen(text string) int {
	return utf8.RuneCountInString(text)
}
