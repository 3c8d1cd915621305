package openai

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// displayReasoning controls whether reasoning text is rendered into the
// content stream. Toggled from configuration at startup and on reload.
var displayReasoning atomic.Bool

func init() {
	displayReasoning.Store(true)
}

// SetReasoningDisplay switches reasoning rendering on or off. When off,
// reasoning deltas are dropped instead of spliced into the content stream.
func SetReasoningDisplay(enabled bool) {
	displayReasoning.Store(enabled)
}

// reasoningState is the per-stream splicer state. One value is created per
// request at the first frame and threaded through param; it is never shared
// across streams.
type reasoningState struct {
	// open tracks whether a think span has been opened and not yet closed.
	open bool

	// Identity of the stream, captured from frames so a synthesized closing
	// chunk matches the stream it terminates.
	id    string
	model string
}

// ConvertNIMResponseToOpenAI rewrites one streaming payload. Reasoning deltas
// are removed from their own field and spliced into content: the first
// reasoning delta opens a think span, the first non-empty content delta after
// it closes the span. Reasoning that arrives together with content in a
// single frame is rendered before the content. Every other field of the
// frame passes through byte-identical. A payload that is not a JSON object
// is returned unchanged.
func ConvertNIMResponseToOpenAI(_ context.Context, _ string, _, _, rawJSON []byte, param *any) []string {
	if *param == nil {
		*param = &reasoningState{}
	}
	state, ok := (*param).(*reasoningState)
	if !ok {
		return []string{string(rawJSON)}
	}

	if !gjson.ValidBytes(rawJSON) {
		return []string{string(rawJSON)}
	}
	root := gjson.ParseBytes(rawJSON)
	if !root.IsObject() {
		return []string{string(rawJSON)}
	}

	if id := root.Get("id"); id.Exists() {
		state.id = id.String()
	}
	if model := root.Get("model"); model.Exists() {
		state.model = model.String()
	}

	delta := root.Get("choices.0.delta")
	if !delta.Exists() {
		return []string{string(rawJSON)}
	}

	reasoning := delta.Get("reasoning_content")
	if !reasoning.Exists() {
		reasoning = delta.Get("reasoning")
	}
	content := delta.Get("content")

	out := rawJSON
	out, _ = sjson.DeleteBytes(out, "choices.0.delta.reasoning_content")
	out, _ = sjson.DeleteBytes(out, "choices.0.delta.reasoning")

	if !displayReasoning.Load() {
		// Reasoning hidden: drop it and keep the content stream null-safe. A
		// frame that carried only reasoning still emits an empty content delta.
		if (content.Exists() && content.Type == gjson.Null) ||
			(!content.Exists() && reasoning.Exists()) {
			out, _ = sjson.SetBytes(out, "choices.0.delta.content", "")
		}
		return []string{string(out)}
	}

	var sb strings.Builder
	if reasoning.Exists() && reasoning.String() != "" {
		if !state.open {
			sb.WriteString(thinkOpenTag)
			state.open = true
		}
		sb.WriteString(reasoning.String())
	}
	if content.Exists() && content.String() != "" {
		if state.open {
			sb.WriteString(thinkCloseTag)
			state.open = false
		}
		sb.WriteString(content.String())
	}

	if sb.Len() > 0 {
		out, _ = sjson.SetBytes(out, "choices.0.delta.content", sb.String())
	} else if content.Exists() && content.Type == gjson.Null {
		// A null content with nothing to splice is dropped; an explicit
		// empty string stays as it was.
		out, _ = sjson.DeleteBytes(out, "choices.0.delta.content")
	}

	return []string{string(out)}
}

// CloseNIMResponseStream flushes the splicer when the upstream terminates.
// A stream that ended while a think span was still open gets one final chunk
// carrying the closing marker, emitted before the terminator is relayed.
func CloseNIMResponseStream(param *any) []string {
	if param == nil || *param == nil {
		return nil
	}
	state, ok := (*param).(*reasoningState)
	if !ok || !state.open {
		return nil
	}
	state.open = false

	chunk := `{"id":"","object":"chat.completion.chunk","created":0,"model":"","choices":[{"index":0,"delta":{"content":"</think>"},"finish_reason":null}]}`
	chunk, _ = sjson.Set(chunk, "id", state.id)
	chunk, _ = sjson.Set(chunk, "model", state.model)
	return []string{chunk}
}

// ConvertNIMResponseToOpenAINonStream applies the same splice to a unary
// response: reasoning from the message object is wrapped in a complete think
// span ahead of the message content.
func ConvertNIMResponseToOpenAINonStream(_ context.Context, _ string, _, _, rawJSON []byte, _ *any) string {
	if !gjson.ValidBytes(rawJSON) {
		return string(rawJSON)
	}
	root := gjson.ParseBytes(rawJSON)
	if !root.IsObject() {
		return string(rawJSON)
	}

	message := root.Get("choices.0.message")
	if !message.Exists() {
		return string(rawJSON)
	}

	reasoning := message.Get("reasoning_content")
	if !reasoning.Exists() {
		reasoning = message.Get("reasoning")
	}
	content := message.Get("content")

	out := rawJSON
	out, _ = sjson.DeleteBytes(out, "choices.0.message.reasoning_content")
	out, _ = sjson.DeleteBytes(out, "choices.0.message.reasoning")

	if !displayReasoning.Load() {
		if content.Exists() && content.Type == gjson.Null {
			out, _ = sjson.SetBytes(out, "choices.0.message.content", "")
		}
		return string(out)
	}

	if reasoning.Exists() && reasoning.String() != "" {
		combined := thinkOpenTag + reasoning.String() + thinkCloseTag + content.String()
		out, _ = sjson.SetBytes(out, "choices.0.message.content", combined)
	}

	return string(out)
}
