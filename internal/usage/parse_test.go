package usage

import "testing"

func TestParseChatCompletionUsage(t *testing.T) {
	data := []byte(`{"id":"chatcmpl-1","usage":{"prompt_tokens":12,"completion_tokens":34,"total_tokens":46,"prompt_tokens_details":{"cached_tokens":4},"completion_tokens_details":{"reasoning_tokens":20}}}`)
	detail, ok := ParseChatCompletionUsage(data)
	if !ok {
		t.Fatal("usage object should be detected")
	}
	if detail.InputTokens != 12 || detail.OutputTokens != 34 || detail.TotalTokens != 46 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if detail.CachedTokens != 4 || detail.ReasoningTokens != 20 {
		t.Fatalf("token details not parsed: %+v", detail)
	}
}

func TestParseChatCompletionUsageAbsent(t *testing.T) {
	if _, ok := ParseChatCompletionUsage([]byte(`{"choices":[]}`)); ok {
		t.Fatal("missing usage object must report false")
	}
	if _, ok := ParseChatCompletionUsage([]byte(`{"usage":null}`)); ok {
		t.Fatal("null usage must report false")
	}
}
