package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ricejack10/openai-nim-proxy2/internal/logging"
)

type recordedRequest struct {
	url         string
	status      int
	response    []byte
	apiRequest  []byte
	apiResponse []byte
}

type fakeRequestLogger struct {
	enabled   bool
	logged    []recordedRequest
	streaming *fakeStreamWriter
}

func (l *fakeRequestLogger) IsEnabled() bool { return l.enabled }

func (l *fakeRequestLogger) LogRequest(url, method string, requestHeaders map[string][]string, body []byte, statusCode int, responseHeaders map[string][]string, response, apiRequest, apiResponse []byte) error {
	l.logged = append(l.logged, recordedRequest{
		url:         url,
		status:      statusCode,
		response:    bytes.Clone(response),
		apiRequest:  bytes.Clone(apiRequest),
		apiResponse: bytes.Clone(apiResponse),
	})
	return nil
}

func (l *fakeRequestLogger) LogStreamingRequest(url, method string, headers map[string][]string, body []byte) (logging.StreamingLogWriter, error) {
	l.streaming = &fakeStreamWriter{}
	return l.streaming, nil
}

type fakeStreamWriter struct {
	status int
	chunks [][]byte
	closed bool
}

func (w *fakeStreamWriter) WriteChunkAsync(chunk []byte) {
	w.chunks = append(w.chunks, bytes.Clone(chunk))
}

func (w *fakeStreamWriter) WriteStatus(status int, headers map[string][]string) error {
	w.status = status
	return nil
}

func (w *fakeStreamWriter) Close() error {
	w.closed = true
	return nil
}

func newWrappedContext(t *testing.T, info *RequestInfo, logger logging.RequestLogger) (*gin.Context, *ResponseWriterWrapper) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(info.Method, info.URL, nil)
	wrapper := NewResponseWriterWrapper(c.Writer, logger, info)
	c.Writer = wrapper
	return c, wrapper
}

func TestResponseWriterWrapperNonStreaming(t *testing.T) {
	logger := &fakeRequestLogger{enabled: true}
	info := &RequestInfo{URL: "/v1/chat/completions", Method: "POST", Body: []byte(`{"model":"m"}`)}
	c, wrapper := newWrappedContext(t, info, logger)

	c.Set("API_REQUEST", []byte(`{"rewritten":true}`))
	c.Set("API_RESPONSE", []byte(`{"upstream":true}`))

	wrapper.WriteHeader(http.StatusOK)
	_, _ = wrapper.Write([]byte(`{"choices":[]}`))

	if err := wrapper.Finalize(c); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if len(logger.logged) != 1 {
		t.Fatalf("expected one logged request, got %d", len(logger.logged))
	}
	got := logger.logged[0]
	if got.status != http.StatusOK || got.url != "/v1/chat/completions" {
		t.Fatalf("unexpected logged request %+v", got)
	}
	if string(got.response) != `{"choices":[]}` {
		t.Fatalf("response body = %q", got.response)
	}
	if string(got.apiRequest) != `{"rewritten":true}` || string(got.apiResponse) != `{"upstream":true}` {
		t.Fatalf("upstream exchange not captured: %+v", got)
	}
	if wrapper.Size() != len(`{"choices":[]}`) {
		t.Fatalf("Size = %d", wrapper.Size())
	}
}

func TestResponseWriterWrapperStreaming(t *testing.T) {
	logger := &fakeRequestLogger{enabled: true}
	info := &RequestInfo{URL: "/v1/chat/completions", Method: "POST", Body: []byte(`{"stream":true}`)}
	c, wrapper := newWrappedContext(t, info, logger)

	wrapper.Header().Set("Content-Type", "text/event-stream")
	wrapper.WriteHeader(http.StatusOK)
	_, _ = wrapper.Write([]byte("data: {\"a\":1}\n\n"))
	_, _ = wrapper.Write([]byte("data: [DONE]\n\n"))

	if err := wrapper.Finalize(c); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if logger.streaming == nil {
		t.Fatal("streaming log writer never opened")
	}
	if logger.streaming.status != http.StatusOK {
		t.Fatalf("stream status = %d", logger.streaming.status)
	}
	if !logger.streaming.closed {
		t.Fatal("stream writer not closed on Finalize")
	}
	var joined strings.Builder
	for _, chunk := range logger.streaming.chunks {
		joined.Write(chunk)
	}
	if !strings.Contains(joined.String(), "data: {\"a\":1}") || !strings.Contains(joined.String(), "[DONE]") {
		t.Fatalf("chunks not relayed to stream writer: %q", joined.String())
	}
	if len(logger.logged) != 0 {
		t.Fatal("streaming response must not go through LogRequest")
	}
	if wrapper.Size() != -1 {
		t.Fatalf("streaming Size = %d", wrapper.Size())
	}
}

func TestDetectStreamingFromRequestBody(t *testing.T) {
	logger := &fakeRequestLogger{enabled: true}
	info := &RequestInfo{URL: "/v1/chat/completions", Method: "POST", Body: []byte(`{"model":"m","stream":true}`)}
	c, wrapper := newWrappedContext(t, info, logger)

	// No SSE content type yet; the request body decides.
	wrapper.WriteHeader(http.StatusBadGateway)

	if !wrapper.isStreaming {
		t.Fatal("stream flag in request body must mark the response streaming")
	}
	if err := wrapper.Finalize(c); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
}

func TestResponseWriterWrapperDisabledLogger(t *testing.T) {
	logger := &fakeRequestLogger{enabled: false}
	info := &RequestInfo{URL: "/v1/models", Method: "GET"}
	c, wrapper := newWrappedContext(t, info, logger)

	wrapper.WriteHeader(http.StatusOK)
	_, _ = wrapper.Write([]byte(`{"data":[]}`))

	if err := wrapper.Finalize(c); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if len(logger.logged) != 0 {
		t.Fatal("disabled logger must not record requests")
	}
}
