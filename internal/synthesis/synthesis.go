// Package synthesis orchestrates the query pipeline: retrieval fan-out,
// fusion, reranking, the answerability guardrail, context packing, LLM
// generation, and answer formatting.
package synthesis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shiori-ai/shiori/internal/audit"
	"github.com/shiori-ai/shiori/internal/citation"
	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/fusion"
	"github.com/shiori-ai/shiori/internal/guardrail"
	"github.com/shiori-ai/shiori/internal/llm"
	"github.com/shiori-ai/shiori/internal/model"
	"github.com/shiori-ai/shiori/internal/packer"
	"github.com/shiori-ai/shiori/internal/rerank"
	"github.com/shiori-ai/shiori/internal/retrieval"
	"github.com/shiori-ai/shiori/internal/telemetry"
)

// ModelGuardrail is the ModelUsed value on refused answers: no LLM ran.
const ModelGuardrail = "guardrail"

// highConfidenceMargin above the tenant's minimum confidence selects the
// comprehensive prompt template instead of the strict one.
const highConfidenceMargin = 0.15

// Deps wires the orchestrator's collaborators. Audit may be nil.
type Deps struct {
	Resolver *config.Resolver
	Fanout   *retrieval.Fanout
	Reranker *rerank.Reranker
	Packer   *packer.Packer
	LLM      *llm.Client
	Audit    *audit.Logger
	Logger   *slog.Logger

	Quality QualityPolicy

	// Metrics records stage-duration histograms; nil disables them.
	Metrics *telemetry.PipelineMetrics

	// StreamBufferSize bounds the per-request event channel.
	StreamBufferSize int
}

// Orchestrator runs the pipeline for one query at a time; instances are
// safe for concurrent use across requests.
type Orchestrator struct {
	deps Deps
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Quality == (QualityPolicy{}) {
		deps.Quality = DefaultQualityPolicy()
	}
	if deps.StreamBufferSize <= 0 {
		deps.StreamBufferSize = 512
	}
	return &Orchestrator{deps: deps}
}

// pipelineState carries intermediate results between stages.
type pipelineState struct {
	requestID string
	started   time.Time
	tc        config.TenantConfig

	candidates []model.RerankedHit
	decision   model.GuardrailDecision
	freshness  model.FreshnessStats
	builder    *citation.Builder
	warnings   []string

	rec audit.Record
}

// Ask runs the full pipeline and returns one synthesized result.
func (o *Orchestrator) Ask(ctx context.Context, q model.Query) (model.SynthesisResult, error) {
	st, err := o.prepare(ctx, q)
	if err != nil {
		o.logFailure(q, st, err)
		return model.SynthesisResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, st.tc.OverallTimeout)
	defer cancel()

	if err := o.retrieveAndGate(ctx, q, st); err != nil {
		o.logFailure(q, st, err)
		return model.SynthesisResult{}, err
	}

	if !st.decision.IsAnswerable {
		res := o.idkResult(st)
		o.logResult(q, st, res)
		return res, nil
	}

	res, err := o.generate(ctx, q, st, nil)
	if err != nil {
		o.logFailure(q, st, err)
		return model.SynthesisResult{}, err
	}
	o.logResult(q, st, res)
	return res, nil
}

// prepare validates the query and resolves tenant configuration.
func (o *Orchestrator) prepare(ctx context.Context, q model.Query) (*pipelineState, error) {
	st := &pipelineState{
		requestID: uuid.NewString(),
		started:   time.Now(),
	}
	if err := q.Validate(); err != nil {
		return st, err
	}
	st.tc = o.deps.Resolver.Resolve(ctx, q.User.TenantID)
	st.builder = citation.NewBuilder(st.tc.Freshness, o.deps.Logger)
	return st, nil
}

// retrieveAndGate runs retrieval, fusion, reranking, and the guardrail.
func (o *Orchestrator) retrieveAndGate(ctx context.Context, q model.Query, st *pipelineState) error {
	rc := st.tc.Retrieval
	k := rc.KBase
	if q.K > 0 {
		k = q.K
	}

	vectorWeight, lexicalWeight := rc.VectorWeight, rc.LexicalWeight
	if rc.QueryAdaptiveWeights {
		intent := fusion.Classify(q.Text)
		vectorWeight, lexicalWeight = intent.VectorWeight, intent.LexicalWeight
		if q.K <= 0 {
			k = intent.K
		}
	}

	retStart := time.Now()
	res, err := o.deps.Fanout.Search(ctx, q, rc, k)
	st.rec.Timings.Retrieval = time.Since(retStart)
	if err != nil {
		return err
	}
	if res.Warning != "" {
		st.warnings = append(st.warnings, res.Warning)
	}
	st.rec.VectorHits = len(res.Vector)
	st.rec.LexicalHits = len(res.Lexical)

	fused := fusion.Fuse(res.Vector, res.Lexical, vectorWeight, lexicalWeight)
	st.rec.FusedCount = len(fused)

	rerankStart := time.Now()
	out, err := o.deps.Reranker.Rerank(ctx, q.Text, fused, st.tc.Reranker)
	st.rec.Timings.Rerank = time.Since(rerankStart)
	if err != nil {
		return err
	}
	if out.Bypassed {
		st.warnings = append(st.warnings, "reranker unavailable; results in fusion order")
		st.rec.RerankerBypassed = true
	}
	st.candidates = out.Hits
	st.freshness = st.builder.Stats(st.candidates)

	gateStart := time.Now()
	if q.PriorGuardrail != nil {
		st.decision = *q.PriorGuardrail
	} else {
		st.decision = guardrail.Evaluate(st.candidates, st.tc.Guardrail)
	}
	st.rec.Timings.Guardrail = time.Since(gateStart)
	st.rec.IsAnswerable = st.decision.IsAnswerable
	st.rec.Confidence = st.decision.Confidence
	st.rec.ReasonCode = st.decision.ReasonCode

	o.deps.Logger.Debug("synthesis: guardrail decision",
		"request_id", st.requestID,
		"tenant_id", q.User.TenantID,
		"answerable", st.decision.IsAnswerable,
		"confidence", st.decision.Confidence,
		"reason_code", st.decision.ReasonCode,
	)
	return nil
}

// idkResult builds the refusal response. Freshness stats still describe
// the candidate set so the caller can show corpus age context.
func (o *Orchestrator) idkResult(st *pipelineState) model.SynthesisResult {
	return model.SynthesisResult{
		Outcome:       model.OutcomeIDK,
		Answer:        idkAnswer(st.decision.ReasonCode),
		Citations:     model.CitationMap{},
		Confidence:    st.decision.Confidence,
		ModelUsed:     ModelGuardrail,
		SynthesisTime: time.Since(st.started),
		Freshness:     st.freshness,
		ReasonCode:    st.decision.ReasonCode,
		Suggestions:   idkSuggestions(st.decision.ReasonCode),
		Warnings:      st.warnings,
	}
}

// generate packs the context, calls the LLM, and formats the answer. When
// emit is non-nil the call streams and text fragments flow through it.
func (o *Orchestrator) generate(ctx context.Context, q model.Query, st *pipelineState, emit llm.EmitFunc) (model.SynthesisResult, error) {
	budget := st.tc.Context.MaxContextTokens
	if q.MaxContextTokens > 0 {
		budget = q.MaxContextTokens
	}

	packStart := time.Now()
	packed, _ := o.deps.Packer.Pack(q.Text, st.candidates, budget, st.tc.Context)
	citations := st.builder.Extract(packed.Selected)
	st.rec.Timings.Packing = time.Since(packStart)
	st.rec.SelectedCount = len(packed.Selected)
	st.rec.CitationCount = len(citations)
	st.rec.ContextTruncated = packed.Truncated

	hint := llm.HintDefault
	if st.decision.Confidence >= st.tc.Guardrail.MinConfidence+highConfidenceMargin {
		hint = llm.HintHighConfidence
	}

	req := llm.Request{
		System:      llm.RenderSystem(hint, packed.Text),
		User:        q.Text,
		Temperature: st.tc.LLM.Temperature,
		TopP:        st.tc.LLM.TopP,
		MaxTokens:   st.tc.LLM.MaxOutputTokens,
	}

	llmStart := time.Now()
	var completion llm.Completion
	var err error
	if emit != nil {
		completion, err = o.deps.LLM.GenerateStreaming(ctx, q.User.TenantID, st.tc.LLM, req, emit)
	} else {
		completion, err = o.deps.LLM.Generate(ctx, q.User.TenantID, st.tc.LLM, req)
	}
	st.rec.Timings.LLM = time.Since(llmStart)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.SynthesisResult{}, &model.TimeoutError{Stage: "overall"}
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return model.SynthesisResult{}, &model.CancellationError{Reason: "request cancelled during generation"}
		}
		return model.SynthesisResult{}, err
	}

	answer, err := o.format(completion.Text, citations, q.Format, st)
	if err != nil {
		return model.SynthesisResult{}, err
	}

	res := model.SynthesisResult{
		Outcome:          model.OutcomeAnswered,
		Answer:           answer,
		Citations:        citations,
		TokensUsed:       completion.TokensUsed,
		SynthesisTime:    time.Since(st.started),
		Confidence:       st.decision.Confidence,
		ModelUsed:        completion.Model,
		ContextTruncated: packed.Truncated,
		Freshness:        st.freshness,
		Warnings:         st.warnings,
	}
	st.rec.TokensUsed = completion.TokensUsed
	st.rec.ModelUsed = completion.Model

	applyQuality(&res, o.deps.Quality, avgScore(st.candidates))
	return res, nil
}

// format normalizes citation markers and applies the output format.
// Unknown markers fail the request when citation enforcement is on;
// otherwise they are silently removed.
func (o *Orchestrator) format(raw string, citations model.CitationMap, format model.Format, st *pipelineState) (string, error) {
	if ok, missing := citation.Validate(raw, citations); !ok {
		if o.deps.Quality.EnforceCitations {
			return "", &model.CitationValidationError{Missing: missing}
		}
		o.deps.Logger.Warn("synthesis: answer references unknown citations, removing markers",
			"request_id", st.requestID, "missing", missing)
	}

	answer := citation.Normalize(raw, citations)

	switch format {
	case model.FormatPlain:
		answer = strings.TrimSpace(citation.Strip(answer))
	default:
		if len(citations) > 0 {
			answer = strings.TrimRight(answer, "\n") + citation.Bibliography(citations)
		}
	}
	return answer, nil
}

func avgScore(hits []model.RerankedHit) float64 {
	if len(hits) == 0 {
		return 0
	}
	sum := 0.0
	for _, h := range hits {
		sum += h.RerankScore
	}
	return sum / float64(len(hits))
}

func (o *Orchestrator) logResult(q model.Query, st *pipelineState, res model.SynthesisResult) {
	o.deps.Logger.Info("synthesis: request complete",
		"request_id", st.requestID,
		"tenant_id", q.User.TenantID,
		"outcome", res.Outcome,
		"confidence", res.Confidence,
		"citations", len(res.Citations),
		"tokens_used", res.TokensUsed,
		"elapsed_ms", res.SynthesisTime.Milliseconds(),
	)
	st.rec.Outcome = res.Outcome
	o.deps.Metrics.Record(context.Background(), q.User.TenantID, string(res.Outcome), telemetry.StageTimings{
		Retrieval: st.rec.Timings.Retrieval,
		Rerank:    st.rec.Timings.Rerank,
		LLM:       st.rec.Timings.LLM,
	})
	o.writeAudit(q, st)
}

func (o *Orchestrator) logFailure(q model.Query, st *pipelineState, err error) {
	o.deps.Logger.Error("synthesis: request failed",
		"request_id", st.requestID,
		"tenant_id", q.User.TenantID,
		"code", model.CodeOf(err),
		"error", err,
	)
	st.rec.ErrorCode = model.CodeOf(err)
	o.writeAudit(q, st)
}

func (o *Orchestrator) writeAudit(q model.Query, st *pipelineState) {
	if o.deps.Audit == nil {
		return
	}
	rec := st.rec
	rec.RequestID = st.requestID
	rec.TenantID = q.User.TenantID
	rec.UserID = q.User.UserID
	rec.Timestamp = st.started.UTC()
	rec.Timings.Total = time.Since(st.started)
	if st.tc.AuditQueryText {
		rec.QueryText = q.Text
	}
	o.deps.Audit.Log(rec)
}
