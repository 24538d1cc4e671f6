package synthesis

import (
	"context"
	"errors"

	"github.com/shiori-ai/shiori/internal/llm"
	"github.com/shiori-ai/shiori/internal/model"
	"github.com/shiori-ai/shiori/internal/stream"
)

// errStreamOverflow marks a consumer that stopped draining the bounded
// event buffer; the upstream is closed and the stream ends with error.
var errStreamOverflow = errors.New("synthesis: stream buffer overflow")

// AskStream runs the pipeline and delivers the response as an ordered
// event stream. Validation failures are returned synchronously so the
// transport can reject before opening a stream; everything later arrives
// on the channel, which always ends with exactly one done or error event
// and is then closed.
func (o *Orchestrator) AskStream(ctx context.Context, q model.Query) (<-chan stream.Envelope, error) {
	st, err := o.prepare(ctx, q)
	if err != nil {
		o.logFailure(q, st, err)
		return nil, err
	}

	ch := make(chan stream.Envelope, o.deps.StreamBufferSize)
	go o.runStream(ctx, q, st, ch)
	return ch, nil
}

func (o *Orchestrator) runStream(ctx context.Context, q model.Query, st *pipelineState, ch chan stream.Envelope) {
	defer close(ch)

	ctx, cancel := context.WithTimeout(ctx, st.tc.OverallTimeout)
	defer cancel()

	send := func(t stream.EventType, data any) error {
		env := stream.New(t, st.requestID, data)
		if t.Terminal() {
			// The terminal event must land even when the buffer is behind
			// or the context is already cancelled: a free buffer slot
			// always wins over a concurrently cancelled ctx; only a full
			// buffer may wait on ctx.
			select {
			case ch <- env:
				return nil
			default:
			}
			select {
			case ch <- env:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case ch <- env:
			return nil
		default:
			return errStreamOverflow
		}
	}

	fail := func(err error) {
		o.logFailure(q, st, err)
		_ = send(stream.EventError, stream.Error{
			Code:    model.CodeOf(err),
			Message: err.Error(),
		})
	}

	if err := o.retrieveAndGate(ctx, q, st); err != nil {
		fail(err)
		return
	}

	if !st.decision.IsAnswerable {
		res := o.idkResult(st)
		if err := send(stream.EventChunk, stream.Chunk{Text: res.Answer}); err != nil {
			fail(err)
			return
		}
		if err := send(stream.EventMetadata, metadataOf(res)); err != nil {
			fail(err)
			return
		}
		o.logResult(q, st, res)
		_ = send(stream.EventDone, nil)
		return
	}

	emit := func(text string) error {
		return send(stream.EventChunk, stream.Chunk{Text: text})
	}

	res, err := o.generate(ctx, q, st, llm.EmitFunc(emit))
	if err != nil {
		fail(err)
		return
	}

	ordered := []struct {
		t    stream.EventType
		data any
	}{
		{stream.EventCitations, stream.Citations{Citations: res.Citations}},
		{stream.EventMetadata, metadataOf(res)},
		{stream.EventFormattedAnswer, stream.FormattedAnswer{Answer: res.Answer}},
		{stream.EventResponseCompleted, stream.ResponseCompleted{
			SynthesisTimeMs: res.SynthesisTime.Milliseconds(),
			TokensUsed:      res.TokensUsed,
		}},
	}
	for _, ev := range ordered {
		if err := send(ev.t, ev.data); err != nil {
			fail(err)
			return
		}
	}

	o.logResult(q, st, res)
	_ = send(stream.EventDone, nil)
}

func metadataOf(res model.SynthesisResult) stream.Metadata {
	return stream.Metadata{
		Outcome:          res.Outcome,
		Confidence:       res.Confidence,
		ModelUsed:        res.ModelUsed,
		TokensUsed:       res.TokensUsed,
		ContextTruncated: res.ContextTruncated,
		Freshness:        res.Freshness,
		ReasonCode:       res.ReasonCode,
		Suggestions:      res.Suggestions,
		Warnings:         res.Warnings,
	}
}
