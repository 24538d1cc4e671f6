package synthesis

import "github.com/shiori-ai/shiori/internal/model"

// IDK response templates keyed by guardrail reason. The answer text never
// includes retrieved content.

func idkAnswer(code model.ReasonCode) string {
	switch code {
	case model.ReasonNoRelevantDocs:
		return "I couldn't find any documents relevant to your question in the knowledge base."
	case model.ReasonLowConfidence:
		return "I found some potentially related documents, but I'm not confident enough in their relevance to give you a reliable answer."
	case model.ReasonUnclearAnswer:
		return "The documents I found don't clearly address your question, so I'd rather not guess."
	default:
		return "I don't have enough information to answer this question reliably."
	}
}

func idkSuggestions(code model.ReasonCode) []string {
	switch code {
	case model.ReasonNoRelevantDocs:
		return []string{
			"Try rephrasing with different keywords.",
			"Check that the relevant documents have been indexed.",
			"Broaden the question; it may be too specific for the current corpus.",
		}
	case model.ReasonLowConfidence:
		return []string{
			"Add more specific terms to narrow the search.",
			"Break a compound question into smaller ones.",
		}
	case model.ReasonUnclearAnswer:
		return []string{
			"Rephrase the question to match the terminology used in your documents.",
			"Ask about one topic at a time.",
		}
	default:
		return nil
	}
}
