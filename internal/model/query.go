// Package model defines the request-scoped entities that flow through the
// query pipeline. Every type here lives for exactly one request; nothing is
// shared across requests.
package model

import (
	"fmt"
	"strings"
)

// Format selects the answer output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPlain    Format = "plain"
)

// UserContext identifies the caller for ACL filtering. Immutable per request.
type UserContext struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	GroupIDs []string `json:"group_ids,omitempty"`
}

// Principals returns the set of ACL principals the user may match:
// the user ID plus all group IDs.
func (u UserContext) Principals() []string {
	out := make([]string, 0, len(u.GroupIDs)+1)
	if u.UserID != "" {
		out = append(out, u.UserID)
	}
	out = append(out, u.GroupIDs...)
	return out
}

// Validate checks basic well-formedness. A missing user or tenant is an
// authorization failure, not a retrieval miss.
func (u UserContext) Validate() error {
	if u.UserID == "" {
		return &UnauthorizedError{Reason: "missing user id"}
	}
	if u.TenantID == "" {
		return &UnauthorizedError{Reason: "missing tenant id"}
	}
	return nil
}

// Query is a single natural-language question plus its execution hints.
type Query struct {
	Text string      `json:"text"`
	User UserContext `json:"user"`

	// K overrides the tenant's candidate pool size when > 0.
	K int `json:"k,omitempty"`

	// Filter holds extra conjunctive keyword predicates applied inside each
	// backend query, on top of the mandatory tenant + ACL filter.
	Filter map[string]string `json:"filter,omitempty"`

	Format Format `json:"format,omitempty"`

	// MaxContextTokens overrides the tenant's packing budget when > 0.
	MaxContextTokens int `json:"max_context_tokens,omitempty"`

	// PriorGuardrail carries a decision pre-computed upstream. When set the
	// guardrail trusts it verbatim and does not re-evaluate.
	PriorGuardrail *GuardrailDecision `json:"prior_guardrail,omitempty"`
}

// Validate checks the query is executable. Text must be non-empty after
// trimming; the user context must be well-formed.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return &InvalidRequestError{Reason: "query text is empty"}
	}
	if q.User.UserID == "" && q.User.TenantID == "" {
		return &InvalidRequestError{Reason: "missing user context"}
	}
	if err := q.User.Validate(); err != nil {
		return err
	}
	if q.Format != "" && q.Format != FormatMarkdown && q.Format != FormatPlain {
		return &InvalidRequestError{Reason: fmt.Sprintf("unknown format %q", q.Format)}
	}
	return nil
}
