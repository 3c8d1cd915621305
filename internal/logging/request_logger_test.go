package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeForFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"v1/chat/completions", "v1-chat-completions"},
		{"v1/models", "v1-models"},
		{"a b?c*d", "a-b-c-d"},
		{"///", "root"},
		{"", "root"},
	}
	for _, tc := range cases {
		if got := sanitizeForFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeForFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func readSoleLogFile(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read logs dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one log file, found %d", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	return string(data)
}

func TestLogRequestWritesTraceFile(t *testing.T) {
	dir := t.TempDir()
	logger := NewFileRequestLogger(true, dir)

	err := logger.LogRequest(
		"/v1/chat/completions?key=secret",
		"POST",
		map[string][]string{"Content-Type": {"application/json"}},
		[]byte(`{"model":"deepseek-r1"}`),
		200,
		map[string][]string{"X-Request-Id": {"abc"}},
		[]byte(`{"choices":[]}`),
		[]byte(`{"model":"deepseek-ai/deepseek-r1"}`),
		[]byte(`{"upstream":true}`),
	)
	if err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}

	content := readSoleLogFile(t, dir)
	for _, want := range []string{
		"=== REQUEST INFO ===",
		"URL: /v1/chat/completions?key=secret",
		"Method: POST",
		"Content-Type: application/json",
		`{"model":"deepseek-r1"}`,
		"=== API REQUEST ===",
		`{"model":"deepseek-ai/deepseek-r1"}`,
		"=== API RESPONSE ===",
		`{"upstream":true}`,
		"=== RESPONSE ===",
		"Status: 200",
		"X-Request-Id: abc",
		`{"choices":[]}`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("trace file missing %q", want)
		}
	}

	entries, _ := os.ReadDir(dir)
	if !strings.HasPrefix(entries[0].Name(), "v1-chat-completions-") {
		t.Fatalf("unexpected trace file name %q", entries[0].Name())
	}
}

func TestLogRequestDisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	logger := NewFileRequestLogger(false, dir)

	if err := logger.LogRequest("/v1/models", "GET", nil, nil, 200, nil, nil, nil, nil); err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read logs dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("disabled logger wrote %d files", len(entries))
	}
}

func TestLogStreamingRequestCapturesChunks(t *testing.T) {
	dir := t.TempDir()
	logger := NewFileRequestLogger(true, dir)

	writer, err := logger.LogStreamingRequest("/v1/chat/completions", "POST", nil, []byte(`{"stream":true}`))
	if err != nil {
		t.Fatalf("LogStreamingRequest failed: %v", err)
	}

	if err = writer.WriteStatus(200, map[string][]string{"Content-Type": {"text/event-stream"}}); err != nil {
		t.Fatalf("WriteStatus failed: %v", err)
	}
	// Repeat status writes are dropped.
	if err = writer.WriteStatus(500, nil); err != nil {
		t.Fatalf("repeat WriteStatus failed: %v", err)
	}

	writer.WriteChunkAsync([]byte("data: {\"a\":1}\n\n"))
	writer.WriteChunkAsync([]byte("data: [DONE]\n\n"))
	if err = writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content := readSoleLogFile(t, dir)
	for _, want := range []string{
		`{"stream":true}`,
		"Status: 200",
		"Content-Type: text/event-stream",
		"data: {\"a\":1}",
		"data: [DONE]",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("streaming trace missing %q", want)
		}
	}
	if strings.Contains(content, "Status: 500") {
		t.Error("repeated WriteStatus must be ignored")
	}
}

func TestLogStreamingRequestDisabledIsNoOp(t *testing.T) {
	dir := t.TempDir()
	logger := NewFileRequestLogger(false, dir)

	writer, err := logger.LogStreamingRequest("/v1/chat/completions", "POST", nil, nil)
	if err != nil {
		t.Fatalf("LogStreamingRequest failed: %v", err)
	}
	writer.WriteChunkAsync([]byte("data: x\n\n"))
	if err = writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("disabled logger wrote %d files", len(entries))
	}
}
