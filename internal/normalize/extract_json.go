package normalize

import (
	"encoding/json"
	"strings"
)

const codeFence = "```"

// ExtractJSON finds the first balanced, parseable JSON object or array in
// raw. Fenced blocks are tried before the surrounding text. Brackets inside
// string literals are ignored.
func ExtractJSON(raw string) (string, bool) {
	for _, candidate := range fenceCandidates(raw) {
		if found, ok := firstBalancedValue(candidate); ok {
			return found, true
		}
	}
	return "", false
}

// fenceCandidates returns the bodies of markdown code fences followed by raw.
func fenceCandidates(raw string) []string {
	var candidates []string
	rest := raw
	for {
		start := strings.Index(rest, codeFence)
		if start < 0 {
			break
		}
		body := rest[start+len(codeFence):]
		// Drop the info string ("json") up to the end of the line.
		if newline := strings.IndexByte(body, '\n'); newline >= 0 && !strings.ContainsAny(body[:newline], "{[") {
			body = body[newline+1:]
		}
		end := strings.Index(body, codeFence)
		if end < 0 {
			candidates = append(candidates, body)
			break
		}
		candidates = append(candidates, body[:end])
		rest = body[end+len(codeFence):]
	}
	return append(candidates, raw)
}

func firstBalancedValue(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		end, ok := matchBrackets(text, start)
		if !ok {
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// matchBrackets returns the index closing the value opened at start.
func matchBrackets(text string, start int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false
	for index := start; index < len(text); index++ {
		char := text[index]
		if inString {
			switch {
			case escaped:
				escaped = false
			case char == '\\':
				escaped = true
			case char == '"':
				inString = false
			}
			continue
		}
		switch char {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != char {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return index, true
			}
		}
	}
	return 0, false
}
