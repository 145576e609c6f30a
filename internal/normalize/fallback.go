package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Iam-samyog/EduCircle/internal/flashcards"
)

const (
	summarySentences     = 3
	extendedSentences    = 5
	shortSummaryChars    = 100
	maxKeyPoints         = 5
	maxFallbackCards     = 6
	minClozeSentenceLen  = 20
	maxFallbackCardRunes = 1000
	clozeBlank           = "_____"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// PlaceholderCard is returned when no sentence is long enough to quiz on.
var PlaceholderCard = flashcards.Card{
	Question: "What is the main topic of this text?",
	Answer:   "Review the uploaded notes for details.",
}

// Fallback derives a result from source text alone. It never fails.
func Fallback(source string, schema Schema) Result {
	sentences := Sentences(source)
	result := Result{KeyPoints: []string{}, Flashcards: []flashcards.Card{}, Source: SourceFallback}
	if schema != SchemaFlashcards {
		result.Summary = fallbackSummary(sentences)
		result.KeyPoints = fallbackKeyPoints(sentences)
	}
	if schema != SchemaSummary {
		result.Flashcards = ClozeCards(sentences)
	}
	return result
}

// Sentences splits on runs of terminal punctuation and drops blanks.
func Sentences(text string) []string {
	parts := sentenceBoundary.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.Join(strings.Fields(part), " "); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

func fallbackSummary(sentences []string) string {
	if len(sentences) == 0 {
		return ""
	}
	summary := joinSentences(sentences, summarySentences)
	if len([]rune(summary)) < shortSummaryChars && len(sentences) > summarySentences {
		summary = joinSentences(sentences, extendedSentences)
	}
	return summary
}

func joinSentences(sentences []string, limit int) string {
	if limit > len(sentences) {
		limit = len(sentences)
	}
	return strings.Join(sentences[:limit], ". ") + "."
}

func fallbackKeyPoints(sentences []string) []string {
	points := make([]string, 0, maxKeyPoints)
	for _, sentence := range eligibleSentences(sentences) {
		if len(points) == maxKeyPoints {
			break
		}
		points = append(points, clip(sentence))
	}
	return points
}

// ClozeCards blanks the middle word of the first min(6, n) sentences longer
// than 20 characters. Without any such sentence it returns PlaceholderCard.
func ClozeCards(sentences []string) []flashcards.Card {
	eligible := eligibleSentences(sentences)
	if len(eligible) == 0 {
		return []flashcards.Card{PlaceholderCard}
	}
	if len(eligible) > maxFallbackCards {
		eligible = eligible[:maxFallbackCards]
	}
	cards := make([]flashcards.Card, 0, len(eligible))
	for _, sentence := range eligible {
		cards = append(cards, clozeCard(clip(sentence)))
	}
	return cards
}

func eligibleSentences(sentences []string) []string {
	eligible := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if len([]rune(sentence)) > minClozeSentenceLen {
			eligible = append(eligible, sentence)
		}
	}
	return eligible
}

func clozeCard(sentence string) flashcards.Card {
	words := strings.Fields(sentence)
	if len(words) < 2 {
		return flashcards.Card{Question: "What does this mean: \"" + sentence + "\"?", Answer: sentence}
	}
	middle := len(words) / 2
	answer := strings.TrimFunc(words[middle], func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if answer == "" {
		answer = words[middle]
	}
	blanked := make([]string, len(words))
	copy(blanked, words)
	blanked[middle] = strings.Replace(words[middle], answer, clozeBlank, 1)
	return flashcards.Card{Question: strings.Join(blanked, " "), Answer: answer}
}

func clip(sentence string) string {
	runes := []rune(sentence)
	if len(runes) <= maxFallbackCardRunes {
		return sentence
	}
	return string(runes[:maxFallbackCardRunes])
}
