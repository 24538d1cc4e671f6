package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiori-ai/shiori/internal/config"
	"github.com/shiori-ai/shiori/internal/llm"
	"github.com/shiori-ai/shiori/internal/model"
	"github.com/shiori-ai/shiori/internal/stream"
)

func collect(t *testing.T, ch <-chan stream.Envelope) []stream.Envelope {
	t.Helper()
	var out []stream.Envelope
	for env := range ch {
		out = append(out, env)
	}
	return out
}

func eventTypes(events []stream.Envelope) []stream.EventType {
	out := make([]stream.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestAskStreamAnsweredOrdering(t *testing.T) {
	fx := newFixture(t, nil)

	ch, err := fx.orch.AskStream(context.Background(), askQuery())
	require.NoError(t, err)
	events := collect(t, ch)
	require.NotEmpty(t, events)

	types := eventTypes(events)

	// One or more chunks first, then the fixed tail.
	var i int
	for i < len(types) && types[i] == stream.EventChunk {
		i++
	}
	require.Greater(t, i, 0, "expected at least one chunk, got %v", types)
	require.Equal(t, []stream.EventType{
		stream.EventCitations,
		stream.EventMetadata,
		stream.EventFormattedAnswer,
		stream.EventResponseCompleted,
		stream.EventDone,
	}, types[i:])

	// Every envelope carries the same request id.
	for _, e := range events {
		assert.Equal(t, events[0].RequestID, e.RequestID)
	}
}

func TestAskStreamChunksReassembleAnswer(t *testing.T) {
	fx := newFixture(t, nil)

	ch, err := fx.orch.AskStream(context.Background(), askQuery())
	require.NoError(t, err)

	var text string
	var formatted stream.FormattedAnswer
	for env := range ch {
		switch env.Type {
		case stream.EventChunk:
			var c stream.Chunk
			require.NoError(t, json.Unmarshal(env.Data, &c))
			text += c.Text
		case stream.EventFormattedAnswer:
			require.NoError(t, json.Unmarshal(env.Data, &formatted))
		}
	}

	assert.Equal(t, fx.provider.text, text)
	assert.Contains(t, formatted.Answer, "## Sources")
	assert.True(t, fx.provider.streamed)
}

func TestAskStreamMetadataPayload(t *testing.T) {
	fx := newFixture(t, nil)

	ch, err := fx.orch.AskStream(context.Background(), askQuery())
	require.NoError(t, err)

	var meta stream.Metadata
	for env := range ch {
		if env.Type == stream.EventMetadata {
			require.NoError(t, json.Unmarshal(env.Data, &meta))
		}
	}
	assert.Equal(t, model.OutcomeAnswered, meta.Outcome)
	assert.Equal(t, "gpt-4o-mini", meta.ModelUsed)
	assert.Equal(t, 42, meta.TokensUsed)
	assert.Greater(t, meta.Confidence, 0.4)
}

func TestAskStreamIDKOrdering(t *testing.T) {
	fx := newFixture(t, nil)
	fx.vector.hits = nil
	fx.lexical.hits = nil

	ch, err := fx.orch.AskStream(context.Background(), askQuery())
	require.NoError(t, err)
	events := collect(t, ch)

	require.Equal(t, []stream.EventType{
		stream.EventChunk,
		stream.EventMetadata,
		stream.EventDone,
	}, eventTypes(events))

	var meta stream.Metadata
	require.NoError(t, json.Unmarshal(events[1].Data, &meta))
	assert.Equal(t, model.OutcomeIDK, meta.Outcome)
	assert.Equal(t, model.ReasonNoRelevantDocs, meta.ReasonCode)
	assert.NotEmpty(t, meta.Suggestions)
	assert.Zero(t, fx.provider.calls)
}

func TestAskStreamValidationFailsSynchronously(t *testing.T) {
	fx := newFixture(t, nil)

	q := askQuery()
	q.Text = ""
	ch, err := fx.orch.AskStream(context.Background(), q)
	require.Error(t, err)
	assert.Nil(t, ch)
	var ire *model.InvalidRequestError
	assert.ErrorAs(t, err, &ire)
}

func TestAskStreamBackendFailureEndsWithErrorEvent(t *testing.T) {
	fx := newFixture(t, nil)
	fx.vector.err = errors.New("down")
	fx.lexical.err = errors.New("down")

	ch, err := fx.orch.AskStream(context.Background(), askQuery())
	require.NoError(t, err)
	events := collect(t, ch)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, stream.EventError, last.Type)

	var e stream.Error
	require.NoError(t, json.Unmarshal(last.Data, &e))
	assert.Equal(t, model.CodeRetrievalBackend, e.Code)
	assert.NotEmpty(t, e.Message)
}

// stallingLLM emits a single chunk and then holds the stream open until
// the request context is cancelled.
type stallingLLM struct{}

func (stallingLLM) Name() string { return "openai" }

func (stallingLLM) Complete(context.Context, llm.Request) (llm.Completion, error) {
	return llm.Completion{}, errors.New("streaming only")
}

func (stallingLLM) CompleteStreaming(ctx context.Context, _ llm.Request, emit llm.EmitFunc) (llm.Completion, error) {
	if err := emit("partial "); err != nil {
		return llm.Completion{}, err
	}
	<-ctx.Done()
	return llm.Completion{}, ctx.Err()
}

func TestAskStreamCancelledMidStreamEndsWithErrorEvent(t *testing.T) {
	// The cancelled context and the event buffer become ready at the same
	// moment, so run many rounds to shake out any ordering the scheduler
	// happens to pick.
	for i := 0; i < 60; i++ {
		fx := newFixture(t, nil)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		pool, err := llm.NewPool(config.Config{})
		require.NoError(t, err)
		pool.Register("acme", stallingLLM{})
		fx.orch.deps.LLM = llm.NewClient(pool, logger)
		fx.orch.deps.Resolver = fastRetryResolver(t)

		ctx, cancel := context.WithCancel(context.Background())
		ch, err := fx.orch.AskStream(ctx, askQuery())
		require.NoError(t, err)

		first, ok := <-ch
		require.True(t, ok)
		require.Equal(t, stream.EventChunk, first.Type)
		cancel()

		events := collect(t, ch)
		require.NotEmpty(t, events, "round %d: stream closed without a terminal event", i)
		last := events[len(events)-1]
		require.Equal(t, stream.EventError, last.Type, "round %d: last event %s", i, last.Type)

		var e stream.Error
		require.NoError(t, json.Unmarshal(last.Data, &e))
		assert.Equal(t, model.CodeCancelled, e.Code)
	}
}

func TestAskStreamExactlyOneTerminalEvent(t *testing.T) {
	for _, setup := range []func(*fixture){
		func(*fixture) {},
		func(fx *fixture) { fx.vector.hits = nil; fx.lexical.hits = nil },
		func(fx *fixture) { fx.provider.err = errors.New("llm down") },
	} {
		fx := newFixture(t, nil)
		setup(fx)
		// Keep the failing-provider case fast.
		fx.orch.deps.Resolver = fastRetryResolver(t)

		ch, err := fx.orch.AskStream(context.Background(), askQuery())
		require.NoError(t, err)
		events := collect(t, ch)

		terminals := 0
		for i, e := range events {
			if e.Type.Terminal() {
				terminals++
				assert.Equal(t, len(events)-1, i, "terminal event must be last")
			}
		}
		assert.Equal(t, 1, terminals)
	}
}
