// Package openai provides request and response translation between the
// OpenAI Chat Completions API surface exposed to clients and the NVIDIA NIM
// upstream. Requests are rewritten from public model aliases to NIM model
// identifiers, with the model's thinking capability applied the way NIM
// expects it. Responses carry reasoning in a separate delta field; the
// response translators splice that reasoning back into the content stream
// wrapped in think markers.
package openai

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ricejack10/openai-nim-proxy2/internal/registry"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.6

	thinkingSystemPrompt = "detailed thinking on"
)

// ConvertOpenAIRequestToNIM rewrites an incoming chat-completions request for
// the NIM upstream. The model alias is resolved through the registry; an
// unknown model passes through verbatim and the upstream decides its fate.
// Known models get their thinking capability applied: either a leading
// system message or the chat_template_kwargs thinking flag, depending on the
// model family. All other request fields are preserved byte for byte.
func ConvertOpenAIRequestToNIM(modelName string, rawJSON []byte, stream bool) []byte {
	out := rawJSON
	if !gjson.ValidBytes(rawJSON) {
		return out
	}

	info, ok := registry.GetGlobalRegistry().Lookup(modelName)
	if !ok || info.UpstreamName == "" {
		return out
	}
	out, _ = sjson.SetBytes(out, "model", info.UpstreamName)

	if info.Has(registry.CapThinkingSystemPrompt) {
		out = prependSystemMessage(out, thinkingSystemPrompt)
	}
	if info.Has(registry.CapThinkingFlag) {
		out, _ = sjson.SetBytes(out, "chat_template_kwargs.thinking", true)
	}

	// NIM rejects requests without an explicit token budget on some models.
	if !gjson.GetBytes(out, "max_tokens").Exists() {
		out, _ = sjson.SetBytes(out, "max_tokens", defaultMaxTokens)
	}
	if !gjson.GetBytes(out, "temperature").Exists() {
		out, _ = sjson.SetBytes(out, "temperature", defaultTemperature)
	}

	return out
}

// prependSystemMessage inserts a system message at the head of the messages
// array. When the caller already supplied the same directive it is left
// untouched.
func prependSystemMessage(rawJSON []byte, text string) []byte {
	first := gjson.GetBytes(rawJSON, "messages.0")
	if first.Get("role").String() == "system" && strings.Contains(first.Get("content").String(), text) {
		return rawJSON
	}

	sys, _ := sjson.Set(`{"role":"system","content":""}`, "content", text)

	messages := gjson.GetBytes(rawJSON, "messages")
	newRaw := "[" + sys + "]"
	if messages.IsArray() {
		inner := strings.TrimSpace(messages.Raw)
		inner = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(inner, "["), "]"))
		if inner != "" {
			newRaw = "[" + sys + "," + inner + "]"
		}
	}

	out, err := sjson.SetRawBytes(rawJSON, "messages", []byte(newRaw))
	if err != nil {
		return rawJSON
	}
	return out
}
