package shiori

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiori-ai/shiori/internal/model"
)

func TestToInternalQuery(t *testing.T) {
	q := Query{
		Text:             "how often do the signing keys rotate?",
		User:             UserContext{UserID: "alice", TenantID: "acme", GroupIDs: []string{"eng"}},
		K:                5,
		Filter:           map[string]string{"lang": "en"},
		Format:           FormatPlain,
		MaxContextTokens: 2048,
		PriorGuardrail: &GuardrailDecision{
			IsAnswerable: false,
			Confidence:   0.12,
			ReasonCode:   "LOW_CONFIDENCE",
		},
	}

	got := toInternalQuery(q)
	assert.Equal(t, "alice", got.User.UserID)
	assert.Equal(t, "acme", got.User.TenantID)
	assert.Equal(t, []string{"eng"}, got.User.GroupIDs)
	assert.Equal(t, 5, got.K)
	assert.Equal(t, map[string]string{"lang": "en"}, got.Filter)
	assert.Equal(t, model.FormatPlain, got.Format)
	assert.Equal(t, 2048, got.MaxContextTokens)

	require.NotNil(t, got.PriorGuardrail)
	assert.False(t, got.PriorGuardrail.IsAnswerable)
	assert.Equal(t, 0.12, got.PriorGuardrail.Confidence)
	assert.Equal(t, model.ReasonLowConfidence, got.PriorGuardrail.ReasonCode)
}

func TestToInternalQueryNoPriorGuardrail(t *testing.T) {
	got := toInternalQuery(Query{
		Text: "q",
		User: UserContext{UserID: "alice", TenantID: "acme"},
	})
	assert.Nil(t, got.PriorGuardrail)
}
