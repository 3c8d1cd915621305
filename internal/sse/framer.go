// Package sse implements record framing and classification for server-sent
// event streams. Upstream reads arrive as arbitrary byte chunks; the framer
// reassembles them into complete lines regardless of where the network split
// them, and the classifier sorts each line into data, terminator, blank, or
// opaque records.
package sse

import "bytes"

// Framer reassembles newline-delimited records from chunked stream reads.
// A trailing partial line is buffered until its terminating newline arrives
// in a later chunk. One Framer serves exactly one stream.
type Framer struct {
	buf []byte
}

// Push appends a chunk of stream bytes and returns every line completed by
// it, oldest first. Line terminators are stripped, including a trailing
// carriage return. Returned lines are copies, later pushes never touch them.
func (f *Framer) Push(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(f.buf[:idx], []byte{'\r'})
		lines = append(lines, bytes.Clone(line))
		f.buf = f.buf[idx+1:]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// Pending reports whether an unterminated partial line is buffered.
func (f *Framer) Pending() bool {
	return len(f.buf) > 0
}

// Close drops any buffered partial line. A record that never received its
// terminator before the stream ended is discarded, not emitted.
func (f *Framer) Close() {
	f.buf = nil
}
