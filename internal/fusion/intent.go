package fusion

import (
	"strings"
	"unicode"
)

// IntentKind labels the query classification used for adaptive weighting.
type IntentKind string

const (
	IntentFactual     IntentKind = "factual"
	IntentExploratory IntentKind = "exploratory"
)

// Intent carries the fusion parameters chosen for a query.
type Intent struct {
	Kind          IntentKind
	VectorWeight  float64
	LexicalWeight float64
	K             int
}

const factualMaxTokens = 8

var interrogativePrefixes = []string{
	"what", "when", "where", "who", "which", "how", "why",
	"define", "list", "name", "is", "are", "does", "do", "can",
}

// Classify buckets a query by simple lexical rules — no ML. Short
// interrogative queries carrying a numeric or named-entity signal are
// factual (definition/measurement/procedure) and get balanced weights with
// a wider pool; everything else is exploratory and leans on dense search.
// Pure function of the query text: same text, same intent.
func Classify(text string) Intent {
	tokens := strings.Fields(strings.TrimSpace(text))

	if isFactual(text, tokens) {
		return Intent{Kind: IntentFactual, VectorWeight: 0.5, LexicalWeight: 0.5, K: 16}
	}
	return Intent{Kind: IntentExploratory, VectorWeight: 0.7, LexicalWeight: 0.3, K: 12}
}

func isFactual(text string, tokens []string) bool {
	if len(tokens) == 0 || len(tokens) > factualMaxTokens {
		return false
	}

	interrogative := strings.HasSuffix(strings.TrimSpace(text), "?")
	if !interrogative {
		first := strings.ToLower(strings.Trim(tokens[0], ",.;:"))
		for _, p := range interrogativePrefixes {
			if first == p {
				interrogative = true
				break
			}
		}
	}
	if !interrogative {
		return false
	}

	return hasNumericSignal(tokens) || hasEntitySignal(tokens)
}

// hasNumericSignal reports whether any token contains a digit.
func hasNumericSignal(tokens []string) bool {
	for _, tok := range tokens {
		for _, r := range tok {
			if unicode.IsDigit(r) {
				return true
			}
		}
	}
	return false
}

// hasEntitySignal reports whether a non-leading token is capitalized —
// a cheap proxy for a proper noun.
func hasEntitySignal(tokens []string) bool {
	for i, tok := range tokens {
		if i == 0 {
			continue // sentence-initial capitalization is not a signal
		}
		runes := []rune(strings.Trim(tok, "\"'?.,;:()"))
		if len(runes) > 1 && unicode.IsUpper(runes[0]) && unicode.IsLower(runes[1]) {
			return true
		}
	}
	return false
}
