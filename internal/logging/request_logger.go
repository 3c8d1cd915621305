// Package logging provides the log plumbing for the proxy: logrus setup,
// the Gin access log bridge, and per-request trace files that capture the
// inbound request, the rewritten upstream exchange, and the response.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestLogger records complete request/response cycles to per-request
// trace files when enabled.
type RequestLogger interface {
	// LogRequest records one non-streaming cycle: the inbound request, the
	// upstream request/response pair after rewriting, and the final body.
	LogRequest(url, method string, requestHeaders map[string][]string, body []byte, statusCode int, responseHeaders map[string][]string, response, apiRequest, apiResponse []byte) error

	// LogStreamingRequest opens a trace file for a streaming request and
	// returns a writer that accepts chunks as they are relayed.
	LogStreamingRequest(url, method string, headers map[string][]string, body []byte) (StreamingLogWriter, error)

	// IsEnabled reports whether request logging is currently on.
	IsEnabled() bool
}

// StreamingLogWriter receives the chunks of one streaming response.
type StreamingLogWriter interface {
	// WriteChunkAsync queues a response chunk without blocking the relay.
	WriteChunkAsync(chunk []byte)

	// WriteStatus records the response status and headers once.
	WriteStatus(status int, headers map[string][]string) error

	// Close flushes queued chunks and closes the trace file.
	Close() error
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"|?*\s]`)
	repeatedHyphens     = regexp.MustCompile(`-+`)
)

// FileRequestLogger writes one file per request under a logs directory.
// File names derive from the request path plus a correlation id, so
// concurrent requests to the same endpoint never collide.
type FileRequestLogger struct {
	enabled bool
	logsDir string
}

// NewFileRequestLogger creates a file-based request logger rooted at logsDir.
func NewFileRequestLogger(enabled bool, logsDir string) *FileRequestLogger {
	return &FileRequestLogger{
		enabled: enabled,
		logsDir: logsDir,
	}
}

// IsEnabled reports whether request logging is currently on.
func (l *FileRequestLogger) IsEnabled() bool {
	return l.enabled
}

// SetEnabled toggles request logging at runtime, used on config reload.
func (l *FileRequestLogger) SetEnabled(enabled bool) {
	l.enabled = enabled
}

// LogRequest records one non-streaming request/response cycle.
func (l *FileRequestLogger) LogRequest(url, method string, requestHeaders map[string][]string, body []byte, statusCode int, responseHeaders map[string][]string, response, apiRequest, apiResponse []byte) error {
	if !l.enabled {
		return nil
	}

	if err := l.ensureLogsDir(); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	filePath := filepath.Join(l.logsDir, l.generateFilename(url))
	content := l.formatLogContent(url, method, requestHeaders, body, apiRequest, apiResponse, response, statusCode, responseHeaders)
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}
	return nil
}

// LogStreamingRequest opens a trace file and starts its async writer.
func (l *FileRequestLogger) LogStreamingRequest(url, method string, headers map[string][]string, body []byte) (StreamingLogWriter, error) {
	if !l.enabled {
		return &NoOpStreamingLogWriter{}, nil
	}

	if err := l.ensureLogsDir(); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	filePath := filepath.Join(l.logsDir, l.generateFilename(url))
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if _, err = file.WriteString(l.formatRequestInfo(url, method, headers, body)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to write request info: %w", err)
	}

	writer := &FileStreamingLogWriter{
		file:      file,
		chunkChan: make(chan []byte, 100),
		closeChan: make(chan struct{}),
	}
	go writer.asyncWriter()

	return writer, nil
}

func (l *FileRequestLogger) ensureLogsDir() error {
	if _, err := os.Stat(l.logsDir); os.IsNotExist(err) {
		return os.MkdirAll(l.logsDir, 0755)
	}
	return nil
}

func (l *FileRequestLogger) generateFilename(url string) string {
	path := url
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimPrefix(path, "/")

	return fmt.Sprintf("%s-%s.log", sanitizeForFilename(path), uuid.NewString())
}

// sanitizeForFilename maps a request path to a safe file name stem.
func sanitizeForFilename(path string) string {
	sanitized := strings.ReplaceAll(path, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, ":", "-")
	sanitized = unsafeFilenameChars.ReplaceAllString(sanitized, "-")
	sanitized = repeatedHyphens.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		return "root"
	}
	return sanitized
}

// formatLogContent lays out the sections of a non-streaming trace file:
// the inbound request, the upstream exchange, then the response we sent.
func (l *FileRequestLogger) formatLogContent(url, method string, headers map[string][]string, body, apiRequest, apiResponse, response []byte, status int, responseHeaders map[string][]string) string {
	var content strings.Builder

	content.WriteString(l.formatRequestInfo(url, method, headers, body))

	content.WriteString("=== API REQUEST ===\n")
	content.Write(apiRequest)
	content.WriteString("\n\n")

	content.WriteString("=== API RESPONSE ===\n")
	content.Write(apiResponse)
	content.WriteString("\n\n")

	content.WriteString("=== RESPONSE ===\n")
	content.WriteString(fmt.Sprintf("Status: %d\n", status))
	writeHeaders(&content, responseHeaders)
	content.WriteString("\n")
	content.Write(response)
	content.WriteString("\n")

	return content.String()
}

func (l *FileRequestLogger) formatRequestInfo(url, method string, headers map[string][]string, body []byte) string {
	var content strings.Builder

	content.WriteString("=== REQUEST INFO ===\n")
	content.WriteString(fmt.Sprintf("URL: %s\n", url))
	content.WriteString(fmt.Sprintf("Method: %s\n", method))
	content.WriteString(fmt.Sprintf("Timestamp: %s\n", time.Now().Format(time.RFC3339Nano)))
	content.WriteString("\n")

	content.WriteString("=== HEADERS ===\n")
	writeHeaders(&content, headers)
	content.WriteString("\n")

	content.WriteString("=== REQUEST BODY ===\n")
	content.Write(body)
	content.WriteString("\n\n")

	return content.String()
}

func writeHeaders(content *strings.Builder, headers map[string][]string) {
	for key, values := range headers {
		for _, value := range values {
			content.WriteString(fmt.Sprintf("%s: %s\n", key, value))
		}
	}
}

// FileStreamingLogWriter appends streaming chunks to an open trace file
// through a buffered channel, keeping file IO off the relay goroutine.
type FileStreamingLogWriter struct {
	file          *os.File
	chunkChan     chan []byte
	closeChan     chan struct{}
	statusWritten bool
}

// WriteChunkAsync queues a copy of the chunk. When the buffer is full the
// chunk is dropped rather than stalling the stream.
func (w *FileStreamingLogWriter) WriteChunkAsync(chunk []byte) {
	if w.chunkChan == nil {
		return
	}

	select {
	case w.chunkChan <- append([]byte(nil), chunk...):
	default:
	}
}

// WriteStatus records the response status and headers. Repeat calls are
// no-ops so the section appears once per file.
func (w *FileStreamingLogWriter) WriteStatus(status int, headers map[string][]string) error {
	if w.file == nil || w.statusWritten {
		return nil
	}

	var content strings.Builder
	content.WriteString("========================================\n")
	content.WriteString("=== RESPONSE ===\n")
	content.WriteString(fmt.Sprintf("Status: %d\n", status))
	writeHeaders(&content, headers)
	content.WriteString("\n")

	_, err := w.file.WriteString(content.String())
	if err == nil {
		w.statusWritten = true
	}
	return err
}

// Close drains the chunk channel and closes the trace file.
func (w *FileStreamingLogWriter) Close() error {
	if w.chunkChan != nil {
		close(w.chunkChan)
		<-w.closeChan
		w.chunkChan = nil
	}

	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

func (w *FileStreamingLogWriter) asyncWriter() {
	defer close(w.closeChan)

	for chunk := range w.chunkChan {
		if w.file != nil {
			_, _ = w.file.Write(chunk)
		}
	}
}

// NoOpStreamingLogWriter stands in when request logging is disabled.
type NoOpStreamingLogWriter struct{}

func (w *NoOpStreamingLogWriter) WriteChunkAsync(chunk []byte) {}
func (w *NoOpStreamingLogWriter) WriteStatus(status int, headers map[string][]string) error {
	return nil
}
func (w *NoOpStreamingLogWriter) Close() error { return nil }
