package guardrails

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm"
)

// streamState is the accumulator of a single stream
type streamState struct {
	batchSize int
	count     int
	text      strings.Builder
}

// add records a fragment and reports whether a batch boundary was reached
func (s *streamState) add(chunk *interfaces.Chunk) bool {
	s.count++
	if chunk != nil {
		s.text.WriteString(chunk.Content)
	}
	return s.count%s.batchSize == 0
}

// needsTailCheck reports whether fragments after the last boundary are unchecked
func (s *streamState) needsTailCheck() bool {
	return s.count > 0 && s.count%s.batchSize != 0
}

// Stream validates the prompt, then forwards the model's fragments while
// re-validating the whole text received so far every ChunkBatchSize fragments
// and once more at the end if the last batch was partial. A blocked check
// ends the sequence with a single override fragment.
func (g *GuardedModel) Stream(ctx context.Context, input any, options ...interfaces.CallOption) iter.Seq2[*interfaces.Chunk, error] {
	return func(yield func(*interfaces.Chunk, error) bool) {
		messages, err := g.model.ToMessages(input)
		if err != nil {
			yield(nil, fmt.Errorf("failed to convert input to messages: %w", err))
			return
		}

		promptCheck, err := g.check(ctx, messages, "", aporia.TargetPrompt)
		if err != nil {
			yield(nil, err)
			return
		}
		if promptCheck.ShouldBlock() {
			yield(overrideChunk(promptCheck.Revised(DefaultOverrideMessage)), nil)
			return
		}

		state := &streamState{batchSize: g.config.ChunkBatchSize}
		for chunk, err := range g.model.Stream(ctx, input, options...) {
			if err != nil {
				if state.count == 0 && llm.IsContentFilter(err) {
					yield(overrideChunk(ContentFilterMessage), nil)
					return
				}
				yield(nil, err)
				return
			}

			if state.add(chunk) {
				blocked, ok := g.checkStream(ctx, messages, state, yield)
				if !ok || blocked {
					return
				}
			}

			if !yield(chunk, nil) {
				return
			}
		}

		if state.needsTailCheck() {
			g.checkStream(ctx, messages, state, yield)
		}
	}
}

// checkStream validates the accumulated text and yields an override or error
// when needed. ok is false when the sequence has to stop because of an error.
func (g *GuardedModel) checkStream(ctx context.Context, messages []interfaces.Message, state *streamState, yield func(*interfaces.Chunk, error) bool) (blocked bool, ok bool) {
	check, err := g.check(ctx, messages, state.text.String(), aporia.TargetResponse)
	if err != nil {
		yield(nil, err)
		return false, false
	}
	if check.ShouldBlock() {
		g.settings.logger.Debug(ctx, "Stopping stream after blocked batch", map[string]interface{}{
			"fragments": state.count,
		})
		yield(overrideChunk(check.Revised(DefaultOverrideMessage)), nil)
		return true, true
	}
	return false, true
}

func overrideChunk(content string) *interfaces.Chunk {
	return &interfaces.Chunk{
		ID:           uuid.NewString(),
		Content:      content,
		FinishReason: "stop",
	}
}
