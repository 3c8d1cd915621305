package openai

import (
	"testing"

	"github.com/tidwall/gjson"

	"github.com/ricejack10/openai-nim-proxy2/internal/registry"
)

func registerTestModels(t *testing.T) {
	t.Helper()
	clientID := "request-test-" + t.Name()
	registry.GetGlobalRegistry().RegisterClient(clientID, []*registry.ModelInfo{
		{ID: "plain-model", UpstreamName: "vendor/plain-model"},
		{ID: "flag-model", UpstreamName: "vendor/flag-model", Capabilities: registry.CapThinkingFlag},
		{ID: "prompt-model", UpstreamName: "vendor/prompt-model", Capabilities: registry.CapThinkingSystemPrompt},
	})
	t.Cleanup(func() {
		registry.GetGlobalRegistry().UnregisterClient(clientID)
	})
}

func TestRequestModelRewritten(t *testing.T) {
	registerTestModels(t)

	raw := `{"model":"plain-model","messages":[{"role":"user","content":"hi"}]}`
	out := ConvertOpenAIRequestToNIM("plain-model", []byte(raw), false)

	if got := gjson.GetBytes(out, "model").String(); got != "vendor/plain-model" {
		t.Fatalf("model = %q, want upstream name", got)
	}
	if got := gjson.GetBytes(out, "messages.0.content").String(); got != "hi" {
		t.Fatalf("messages altered: %s", out)
	}
}

func TestRequestUnknownModelPassesThrough(t *testing.T) {
	raw := `{"model":"somebody/custom-model","messages":[{"role":"user","content":"hi"}]}`
	out := ConvertOpenAIRequestToNIM("somebody/custom-model", []byte(raw), false)
	if string(out) != raw {
		t.Fatalf("unknown model must pass through verbatim: %s", out)
	}
}

func TestRequestThinkingFlag(t *testing.T) {
	registerTestModels(t)

	raw := `{"model":"flag-model","messages":[{"role":"user","content":"hi"}]}`
	out := ConvertOpenAIRequestToNIM("flag-model", []byte(raw), true)

	if !gjson.GetBytes(out, "chat_template_kwargs.thinking").Bool() {
		t.Fatalf("thinking flag not set: %s", out)
	}
}

func TestRequestThinkingSystemPrompt(t *testing.T) {
	registerTestModels(t)

	raw := `{"model":"prompt-model","messages":[{"role":"user","content":"hi"}]}`
	out := ConvertOpenAIRequestToNIM("prompt-model", []byte(raw), false)

	first := gjson.GetBytes(out, "messages.0")
	if first.Get("role").String() != "system" || first.Get("content").String() != "detailed thinking on" {
		t.Fatalf("system directive not prepended: %s", out)
	}
	if got := gjson.GetBytes(out, "messages.1.content").String(); got != "hi" {
		t.Fatalf("user message displaced: %s", out)
	}
}

func TestRequestThinkingSystemPromptNotDuplicated(t *testing.T) {
	registerTestModels(t)

	raw := `{"model":"prompt-model","messages":[{"role":"system","content":"detailed thinking on"},{"role":"user","content":"hi"}]}`
	out := ConvertOpenAIRequestToNIM("prompt-model", []byte(raw), false)

	if count := gjson.GetBytes(out, "messages.#").Int(); count != 2 {
		t.Fatalf("messages count = %d, directive must not be duplicated: %s", count, out)
	}
}

func TestRequestDefaultsApplied(t *testing.T) {
	registerTestModels(t)

	raw := `{"model":"plain-model","messages":[]}`
	out := ConvertOpenAIRequestToNIM("plain-model", []byte(raw), false)

	if got := gjson.GetBytes(out, "max_tokens").Int(); got != 4096 {
		t.Fatalf("max_tokens = %d, want default", got)
	}
	if got := gjson.GetBytes(out, "temperature").Float(); got != 0.6 {
		t.Fatalf("temperature = %v, want default", got)
	}
}

func TestRequestCallerValuesNotOverridden(t *testing.T) {
	registerTestModels(t)

	raw := `{"model":"plain-model","messages":[],"max_tokens":128,"temperature":0}`
	out := ConvertOpenAIRequestToNIM("plain-model", []byte(raw), false)

	if got := gjson.GetBytes(out, "max_tokens").Int(); got != 128 {
		t.Fatalf("caller max_tokens overridden: %d", got)
	}
	if got := gjson.GetBytes(out, "temperature").Float(); got != 0 {
		t.Fatalf("caller temperature overridden: %v", got)
	}
}
