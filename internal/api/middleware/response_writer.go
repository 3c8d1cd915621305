// Package middleware provides the request trace capture middleware that
// feeds the file-based request logger.
package middleware

import (
	"bytes"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/ricejack10/openai-nim-proxy2/internal/logging"
)

// RequestInfo carries the inbound request details captured before the
// handlers run, for inclusion in the trace file.
type RequestInfo struct {
	URL     string
	Method  string
	Headers map[string][]string
	Body    []byte
}

// ResponseWriterWrapper tees response bytes into the request logger. The
// client write always happens first; logging rides behind it and never
// delays a chunk.
type ResponseWriterWrapper struct {
	gin.ResponseWriter
	body         *bytes.Buffer
	isStreaming  bool
	streamWriter logging.StreamingLogWriter
	chunkChannel chan []byte
	relayDone    chan struct{}
	logger       logging.RequestLogger
	requestInfo  *RequestInfo
	statusCode   int
	headers      map[string][]string
}

// NewResponseWriterWrapper wraps w so the response can be traced.
func NewResponseWriterWrapper(w gin.ResponseWriter, logger logging.RequestLogger, requestInfo *RequestInfo) *ResponseWriterWrapper {
	return &ResponseWriterWrapper{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
		logger:         logger,
		requestInfo:    requestInfo,
		headers:        make(map[string][]string),
	}
}

// Write relays data to the client, then copies it for the trace. Streaming
// chunks go through a buffered channel and are dropped when it is full;
// non-streaming bodies buffer in full for the final LogRequest call.
func (w *ResponseWriterWrapper) Write(data []byte) (int, error) {
	n, err := w.ResponseWriter.Write(data)

	if w.isStreaming {
		if w.chunkChannel != nil {
			select {
			case w.chunkChannel <- append([]byte(nil), data...):
			default:
			}
		}
	} else {
		w.body.Write(data)
	}

	return n, err
}

// WriteHeader records the status, snapshots the headers, and switches to
// streaming capture when the response turns out to be an event stream.
func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode

	for key, values := range w.ResponseWriter.Header() {
		w.headers[key] = values
	}

	w.isStreaming = w.detectStreaming()

	if w.isStreaming && w.logger.IsEnabled() {
		streamWriter, err := w.logger.LogStreamingRequest(
			w.requestInfo.URL,
			w.requestInfo.Method,
			w.requestInfo.Headers,
			w.requestInfo.Body,
		)
		if err == nil {
			w.streamWriter = streamWriter
			w.chunkChannel = make(chan []byte, 100)
			w.relayDone = make(chan struct{})
			go w.relayChunks()
			_ = streamWriter.WriteStatus(statusCode, w.headers)
		}
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

// detectStreaming reports whether this response is an event stream. The
// handlers set the SSE content type before the first write; the request
// body's stream flag covers a handler that fails before doing so.
func (w *ResponseWriterWrapper) detectStreaming() bool {
	if strings.Contains(w.ResponseWriter.Header().Get("Content-Type"), "text/event-stream") {
		return true
	}
	return gjson.GetBytes(w.requestInfo.Body, "stream").Bool()
}

// relayChunks moves queued chunks from the write path to the log writer.
func (w *ResponseWriterWrapper) relayChunks() {
	defer close(w.relayDone)

	for chunk := range w.chunkChannel {
		w.streamWriter.WriteChunkAsync(chunk)
	}
}

// Finalize closes out the trace once the handler chain returns: streaming
// traces flush and close, non-streaming traces write the whole file now.
func (w *ResponseWriterWrapper) Finalize(c *gin.Context) error {
	if !w.logger.IsEnabled() {
		return nil
	}

	if w.isStreaming {
		if w.chunkChannel != nil {
			close(w.chunkChannel)
			<-w.relayDone
			w.chunkChannel = nil
		}
		if w.streamWriter != nil {
			return w.streamWriter.Close()
		}
		return nil
	}

	finalHeaders := make(map[string][]string)
	for key, values := range w.ResponseWriter.Header() {
		finalHeaders[key] = values
	}
	for key, values := range w.headers {
		finalHeaders[key] = values
	}

	return w.logger.LogRequest(
		w.requestInfo.URL,
		w.requestInfo.Method,
		w.requestInfo.Headers,
		w.requestInfo.Body,
		w.Status(),
		finalHeaders,
		w.body.Bytes(),
		contextBytes(c, "API_REQUEST"),
		contextBytes(c, "API_RESPONSE"),
	)
}

// contextBytes reads a []byte value the client stashed on the gin context.
func contextBytes(c *gin.Context, key string) []byte {
	value, exists := c.Get(key)
	if !exists {
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return nil
	}
	return data
}

// Status returns the response status, defaulting to 200 when the handler
// wrote the body without an explicit WriteHeader.
func (w *ResponseWriterWrapper) Status() int {
	if w.statusCode == 0 {
		return 200
	}
	return w.statusCode
}

// Size returns the buffered body length, or -1 for streaming responses.
func (w *ResponseWriterWrapper) Size() int {
	if w.isStreaming {
		return -1
	}
	return w.body.Len()
}

// Written reports whether a status has been written.
func (w *ResponseWriterWrapper) Written() bool {
	return w.statusCode != 0
}
