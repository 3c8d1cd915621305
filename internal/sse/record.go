package sse

import "bytes"

// Kind identifies what a framed line is.
type Kind int

const (
	// KindBlank is an empty or whitespace-only line, the event separator.
	KindBlank Kind = iota
	// KindData is a data record carrying a payload.
	KindData
	// KindDone is the stream terminator record.
	KindDone
	// KindOpaque is any other line, forwarded without interpretation.
	KindOpaque
)

var (
	dataTag = []byte("data: ")
	// Some providers don't put a space after the colon.
	dataUglyTag = []byte("data:")
	doneMarker  = []byte("[DONE]")
)

// Classify splits a framed line into its record kind and payload. For
// KindData the payload is the bytes after the data prefix; whether they are
// valid JSON is not this layer's concern. For KindOpaque the payload is the
// whole line.
func Classify(line []byte) ([]byte, Kind) {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, KindBlank
	}

	var payload []byte
	switch {
	case bytes.HasPrefix(line, dataTag):
		payload = line[len(dataTag):]
	case bytes.HasPrefix(line, dataUglyTag):
		payload = line[len(dataUglyTag):]
	default:
		return line, KindOpaque
	}

	if bytes.Equal(bytes.TrimSpace(payload), doneMarker) {
		return payload, KindDone
	}
	return payload, KindData
}
