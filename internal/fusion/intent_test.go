package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want IntentKind
	}{
		{"interrogative with number", "what is HTTP 429", IntentFactual},
		{"question mark with entity", "rate limit for Acme tenants?", IntentFactual},
		{"interrogative with entity", "who maintains the Kubernetes runbook", IntentFactual},
		{"define prefix with version", "define the v2 ingestion format", IntentFactual},
		{"interrogative without signal", "what should we improve next", IntentExploratory},
		{"no interrogative marker", "deployment checklist for Postgres upgrades", IntentExploratory},
		{"too long", "what are all of the steps required to configure Qdrant replication?", IntentExploratory},
		{"empty", "", IntentExploratory},
		{"whitespace only", "   ", IntentExploratory},
		{"leading capital ignored", "Explain retries", IntentExploratory},
		{"acronym not an entity", "why does TLS matter", IntentExploratory},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.text)
			assert.Equal(t, tc.want, got.Kind)
			switch tc.want {
			case IntentFactual:
				assert.Equal(t, 0.5, got.VectorWeight)
				assert.Equal(t, 0.5, got.LexicalWeight)
				assert.Equal(t, 16, got.K)
			case IntentExploratory:
				assert.Equal(t, 0.7, got.VectorWeight)
				assert.Equal(t, 0.3, got.LexicalWeight)
				assert.Equal(t, 12, got.K)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	first := Classify("how many replicas does Qdrant need?")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify("how many replicas does Qdrant need?"))
	}
}
