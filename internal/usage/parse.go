package usage

import (
	"github.com/tidwall/gjson"
)

// ParseChatCompletionUsage extracts a token usage breakdown from the "usage"
// object of a chat completion response or stream chunk. It reports false when
// the payload carries no usage object.
func ParseChatCompletionUsage(data []byte) (Detail, bool) {
	usageNode := gjson.GetBytes(data, "usage")
	if !usageNode.IsObject() {
		return Detail{}, false
	}
	detail := Detail{
		InputTokens:  usageNode.Get("prompt_tokens").Int(),
		OutputTokens: usageNode.Get("completion_tokens").Int(),
		TotalTokens:  usageNode.Get("total_tokens").Int(),
	}
	if cached := usageNode.Get("prompt_tokens_details.cached_tokens"); cached.Exists() {
		detail.CachedTokens = cached.Int()
	}
	if reasoning := usageNode.Get("completion_tokens_details.reasoning_tokens"); reasoning.Exists() {
		detail.ReasoningTokens = reasoning.Int()
	}
	return detail, true
}
