// Package audit records one entry per request for compliance review.
// Writes are fire-and-forget: a slow or unavailable sink never blocks or
// fails the request path.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shiori-ai/shiori/internal/model"
)

// StageTimings holds per-stage wall-clock durations for one request.
type StageTimings struct {
	Retrieval time.Duration `json:"retrieval"`
	Rerank    time.Duration `json:"rerank"`
	Guardrail time.Duration `json:"guardrail"`
	Packing   time.Duration `json:"packing"`
	LLM       time.Duration `json:"llm"`
	Total     time.Duration `json:"total"`
}

// Record is one audit entry. QueryText is populated only for tenants that
// opted in; document content is never recorded.
type Record struct {
	RequestID string    `json:"request_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`

	QueryText string `json:"query_text,omitempty"`

	Outcome      model.OutcomeKind `json:"outcome,omitempty"`
	ReasonCode   model.ReasonCode  `json:"reason_code,omitempty"`
	Confidence   float64           `json:"confidence"`
	IsAnswerable bool              `json:"is_answerable"`

	VectorHits    int `json:"vector_hits"`
	LexicalHits   int `json:"lexical_hits"`
	FusedCount    int `json:"fused_count"`
	SelectedCount int `json:"selected_count"`
	CitationCount int `json:"citation_count"`
	TokensUsed    int `json:"tokens_used"`

	RerankerBypassed bool `json:"reranker_bypassed"`
	ContextTruncated bool `json:"context_truncated"`

	ModelUsed string          `json:"model_used,omitempty"`
	ErrorCode model.ErrorCode `json:"error_code,omitempty"`

	Timings StageTimings `json:"timings"`
}

// Sink persists audit records.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

const writeTimeout = 5 * time.Second

// Logger accepts records on a bounded queue and writes them on a single
// background worker. A full queue drops the record with a warning.
type Logger struct {
	sink   Sink
	queue  chan Record
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewLogger starts the background writer. bufferSize bounds the queue.
func NewLogger(sink Sink, bufferSize int, logger *slog.Logger) *Logger {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	l := &Logger{
		sink:   sink,
		queue:  make(chan Record, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Log enqueues a record without blocking. Overflow drops the record.
func (l *Logger) Log(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	select {
	case l.queue <- rec:
	default:
		l.logger.Warn("audit: queue full, dropping record", "request_id", rec.RequestID)
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for rec := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.sink.Write(ctx, rec); err != nil {
			l.logger.Warn("audit: sink write failed", "request_id", rec.RequestID, "error", err)
		}
		cancel()
	}
}

// Close drains the queue and closes the sink.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.queue)
	})
	<-l.done
	return l.sink.Close()
}
