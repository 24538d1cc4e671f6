package llm

import "strings"

// Hint selects the system template based on the guardrail decision.
type Hint string

const (
	// HintHighConfidence is used when the guardrail passed comfortably:
	// answer comprehensively, cite aggressively.
	HintHighConfidence Hint = "high_confidence"
	// HintDefault is the stricter template: refuse when context is thin.
	HintDefault Hint = "default"
)

// RefusalPhrase is the fixed phrase the default template instructs the
// model to use when the context cannot support an answer. The quality
// heuristic matches on it.
const RefusalPhrase = "I don't have enough information in the provided context to answer this question."

const highConfidenceTemplate = `You are a precise assistant answering questions strictly from the provided context documents.

Rules:
- Answer comprehensively using only the context below.
- Preserve tables, lists, and code blocks from the source documents.
- Cite every factual claim with a marker like [^1] referring to the document number it came from.
- Never invent a citation number that does not appear as a [Document N] header.
- Never reference information outside the context.

Context:
%CONTEXT%`

const defaultTemplate = `You are a careful assistant answering questions strictly from the provided context documents.

Rules:
- Use only the context below. Never reference outside information.
- Cite claims with a marker like [^1] referring to the document number it came from.
- Never invent a citation number that does not appear as a [Document N] header.
- If the context does not contain enough information to answer, reply exactly: "` + RefusalPhrase + `"

Context:
%CONTEXT%`

// RenderSystem builds the system prompt for the given hint, embedding the
// packed context verbatim.
func RenderSystem(hint Hint, packedContext string) string {
	tmpl := defaultTemplate
	if hint == HintHighConfidence {
		tmpl = highConfidenceTemplate
	}
	return strings.Replace(tmpl, "%CONTEXT%", packedContext, 1)
}
