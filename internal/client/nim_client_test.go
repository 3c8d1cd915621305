package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ricejack10/openai-nim-proxy2/internal/config"
	"github.com/ricejack10/openai-nim-proxy2/internal/constant"
	"github.com/ricejack10/openai-nim-proxy2/internal/interfaces"

	_ "github.com/ricejack10/openai-nim-proxy2/internal/translator/nim/openai"
)

type stubHandler struct{}

func (stubHandler) HandlerType() string { return constant.OpenAI }

func testContext() context.Context {
	return context.WithValue(context.Background(), "handler", stubHandler{})
}

func newTestClient(t *testing.T, upstream *httptest.Server) *NIMClient {
	t.Helper()
	cfg := &config.Config{
		NIM: config.NIM{
			BaseURL: upstream.URL,
			APIKeys: []string{"nvapi-test"},
		},
	}
	c := NewNIMClient(cfg)
	t.Cleanup(c.UnregisterClient)
	return c
}

func mustReadBody(t *testing.T, r *http.Request) []byte {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("failed to read request body: %v", err)
	}
	return body
}

func collectStream(t *testing.T, dataChan <-chan []byte, errChan <-chan *interfaces.ErrorMessage) (string, *interfaces.ErrorMessage) {
	t.Helper()
	var sb strings.Builder
	var errMsg *interfaces.ErrorMessage
	timeout := time.After(5 * time.Second)
	for dataChan != nil || errChan != nil {
		select {
		case chunk, ok := <-dataChan:
			if !ok {
				dataChan = nil
				continue
			}
			sb.Write(chunk)
		case e, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			errMsg = e
		case <-timeout:
			t.Fatal("stream did not finish in time")
		}
	}
	return sb.String(), errMsg
}

func TestSendRawMessageStreamSplicesReasoning(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer nvapi-test" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		if !gjson.GetBytes(mustReadBody(t, r), "stream").Bool() {
			t.Error("stream flag not set on upstream request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		// Write in awkward pieces so lines cross chunk boundaries.
		parts := []string{
			"data: {\"id\":\"chatcmpl-1\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"reasoning_co",
			"ntent\":\"think hard\"},\"finish_reason\":null}]}\n\n",
			": keep-alive\n",
			"data: {\"id\":\"chatcmpl-1\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hi\"},\"finish_reason\":null}]}\n\n",
			"data: [DONE]\n\n",
		}
		for _, p := range parts {
			_, _ = w.Write([]byte(p))
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	c := newTestClient(t, upstream)
	dataChan, errChan := c.SendRawMessageStream(testContext(), "deepseek-r1", []byte(`{"model":"deepseek-r1","messages":[{"role":"user","content":"hi"}]}`))
	out, errMsg := collectStream(t, dataChan, errChan)
	if errMsg != nil {
		t.Fatalf("unexpected stream error: %v", errMsg.Error)
	}

	if !strings.Contains(out, `"content":"<think>think hard"`) {
		t.Fatalf("reasoning not spliced: %q", out)
	}
	if !strings.Contains(out, `"content":"</think>Hi"`) {
		t.Fatalf("think span not closed before content: %q", out)
	}
	if !strings.Contains(out, ": keep-alive\n") {
		t.Fatalf("opaque line not forwarded: %q", out)
	}
	if strings.Contains(out, "[DONE]") {
		t.Fatalf("terminator must be left to the handler: %q", out)
	}
	if strings.Contains(out, "reasoning_content") {
		t.Fatalf("reasoning field leaked: %q", out)
	}
}

func TestSendRawMessageStreamMalformedPassthroughKeepsPrefix(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// A truncated payload behind the no-space data prefix variant.
		_, _ = w.Write([]byte("data:{\"choices\":[{\"index\":0,\"delta\":\n\ndata: [DONE]\n\n"))
	}))
	defer upstream.Close()

	c := newTestClient(t, upstream)
	dataChan, errChan := c.SendRawMessageStream(testContext(), "deepseek-r1", []byte(`{"model":"deepseek-r1","messages":[]}`))
	out, errMsg := collectStream(t, dataChan, errChan)
	if errMsg != nil {
		t.Fatalf("unexpected stream error: %v", errMsg.Error)
	}
	if out != "data:{\"choices\":[{\"index\":0,\"delta\":\n\n" {
		t.Fatalf("malformed record must pass through byte-identical, got %q", out)
	}
}

func TestConcurrentKeyRotationAndQuotaMarks(t *testing.T) {
	cfg := &config.Config{
		NIM: config.NIM{
			APIKeys: []string{"nvapi-a", "nvapi-b", "nvapi-c"},
		},
	}
	c := NewNIMClient(cfg)
	defer c.UnregisterClient()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if c.GetCurrentAPIKey() == "" {
					t.Error("rotation returned an empty key")
				}
				c.markModelQuotaExceeded("deepseek-r1")
				c.IsModelQuotaExceeded("deepseek-r1")
				c.clearModelQuotaMark("deepseek-r1")
			}
		}()
	}
	wg.Wait()

	if c.IsModelQuotaExceeded("deepseek-r1") {
		t.Fatal("quota mark should be cleared")
	}
}

func TestSendRawMessageStreamClosesSpanOnEOF(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"id\":\"chatcmpl-2\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"reasoning_content\":\"dangling\"}}]}\n\n"))
		// Connection ends without a terminator record.
	}))
	defer upstream.Close()

	c := newTestClient(t, upstream)
	dataChan, errChan := c.SendRawMessageStream(testContext(), "deepseek-r1", []byte(`{"model":"deepseek-r1","messages":[]}`))
	out, errMsg := collectStream(t, dataChan, errChan)
	if errMsg != nil {
		t.Fatalf("unexpected stream error: %v", errMsg.Error)
	}
	if !strings.Contains(out, `"content":"</think>"`) {
		t.Fatalf("open span must be closed when upstream ends early: %q", out)
	}
}

func TestSendRawMessageStreamUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer upstream.Close()

	c := newTestClient(t, upstream)
	dataChan, errChan := c.SendRawMessageStream(testContext(), "deepseek-r1", []byte(`{"model":"deepseek-r1","messages":[]}`))
	out, errMsg := collectStream(t, dataChan, errChan)
	if out != "" {
		t.Fatalf("no data expected on upstream error, got %q", out)
	}
	if errMsg == nil || errMsg.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 error message, got %+v", errMsg)
	}
}

func TestSendRawMessageNonStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := mustReadBody(t, r)
		if got := gjson.GetBytes(body, "model").String(); got != "deepseek-ai/deepseek-r1" {
			t.Errorf("model not rewritten for upstream: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-3","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","reasoning_content":"plan","content":"Done"},"finish_reason":"stop"}]}`))
	}))
	defer upstream.Close()

	c := newTestClient(t, upstream)
	resp, errMsg := c.SendRawMessage(testContext(), "deepseek-r1", []byte(`{"model":"deepseek-r1","messages":[{"role":"user","content":"go"}]}`))
	if errMsg != nil {
		t.Fatalf("unexpected error: %v", errMsg.Error)
	}
	if got := gjson.GetBytes(resp, "choices.0.message.content").String(); got != "<think>plan</think>Done" {
		t.Fatalf("content = %q", got)
	}
}

func TestMissingAPIKeyFailsFast(t *testing.T) {
	cfg := &config.Config{}
	c := NewNIMClient(cfg)
	defer c.UnregisterClient()

	_, errMsg := c.SendRawMessage(testContext(), "deepseek-r1", []byte(`{"model":"deepseek-r1","messages":[]}`))
	if errMsg == nil || errMsg.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected fixed 500, got %+v", errMsg)
	}
	if !strings.Contains(errMsg.Error.Error(), "NIM API key not configured") {
		t.Fatalf("unexpected error text: %v", errMsg.Error)
	}
}
