package model

import "time"

// Backend names a retrieval backend.
type Backend string

const (
	BackendVector  Backend = "vector"
	BackendLexical Backend = "lexical"
)

// DocumentPayload is the metadata stored alongside each indexed chunk.
// Only docID, tenantID, and acl are mandatory; the pipeline functions
// correctly when every optional field is absent.
type DocumentPayload struct {
	DocID    string   `json:"doc_id"`
	TenantID string   `json:"tenant_id"`
	ACL      []string `json:"acl"`

	Source   string   `json:"source,omitempty"`
	URL      string   `json:"url,omitempty"`
	Filepath string   `json:"filepath,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Version  string   `json:"version,omitempty"`

	CreatedAt  *time.Time `json:"created_at,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`

	Lang            string `json:"lang,omitempty"`
	SectionPath     string `json:"section_path,omitempty"`
	OrderIndex      *int   `json:"order_index,omitempty"`
	Header          string `json:"header,omitempty"`
	DocTitle        string `json:"doc_title,omitempty"`
	EmbedderVersion string `json:"embedder_version,omitempty"`
}

// LastTouched returns the best available modification timestamp:
// modifiedAt, falling back to createdAt, else nil.
func (p DocumentPayload) LastTouched() *time.Time {
	if p.ModifiedAt != nil {
		return p.ModifiedAt
	}
	return p.CreatedAt
}

// RetrievalHit is a single backend result. Rank is 1-based and backend-local;
// Score is the backend's native score, passed through for telemetry only.
type RetrievalHit struct {
	DocID      string          `json:"doc_id"`
	InternalID string          `json:"internal_id,omitempty"`
	Score      float64         `json:"score"`
	Rank       int             `json:"rank"`
	Payload    DocumentPayload `json:"payload"`
	Content    string          `json:"content"`
}

// BackendSet records which backends contributed to a fused hit.
type BackendSet struct {
	Vector  bool `json:"vector"`
	Lexical bool `json:"lexical"`
}

// Count returns the number of contributing backends.
func (b BackendSet) Count() int {
	n := 0
	if b.Vector {
		n++
	}
	if b.Lexical {
		n++
	}
	return n
}

// FusedHit is a deduplicated document after reciprocal-rank fusion.
// At most one FusedHit exists per (tenant, docID) per query.
type FusedHit struct {
	DocID       string          `json:"doc_id"`
	InternalID  string          `json:"internal_id,omitempty"`
	FusionScore float64         `json:"fusion_score"`
	Backends    BackendSet      `json:"backends"`
	Payload     DocumentPayload `json:"payload"`
	Content     string          `json:"content"`

	// Backend-local 1-based ranks; 0 means the backend did not return the doc.
	// Kept for deterministic tie-breaking and telemetry.
	VectorRank  int `json:"vector_rank,omitempty"`
	LexicalRank int `json:"lexical_rank,omitempty"`

	// Raw backend scores, telemetry only.
	VectorScore  float64 `json:"vector_score,omitempty"`
	LexicalScore float64 `json:"lexical_score,omitempty"`
}

// RankSum returns the sum of backend-local ranks, treating absence as a
// large rank so single-backend hits sort after dual-backend ties.
func (f FusedHit) RankSum() int {
	const absent = 1 << 20
	sum := 0
	if f.VectorRank > 0 {
		sum += f.VectorRank
	} else {
		sum += absent
	}
	if f.LexicalRank > 0 {
		sum += f.LexicalRank
	} else {
		sum += absent
	}
	return sum
}

// RerankedHit is a fused hit with its cross-encoder score and final position.
// When the reranker is bypassed, RerankScore equals FusionScore.
type RerankedHit struct {
	FusedHit
	RerankScore float64 `json:"rerank_score"`
	FinalRank   int     `json:"final_rank"`
}
